package main

import (
	"fmt"

	mw "github.com/kiranshivaraju/insightx/internal/api/middleware"
	"github.com/spf13/cobra"
)

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hashkey <api-key>",
		Short: "Print the bcrypt hash of an API key for API_KEY_HASHES",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := mw.HashKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
