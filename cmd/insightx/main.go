// Package main is the insightx command-line client. It runs analyses
// directly against a dataset file or table without the HTTP server.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
