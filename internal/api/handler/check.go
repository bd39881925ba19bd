package handler

import (
	"net/http"

	"github.com/kiranshivaraju/insightx/internal/api/response"
)

type checkResponse struct {
	Computable bool   `json:"computable"`
	Reason     string `json:"reason,omitempty"`
}

// NewCheckHandler returns an http.HandlerFunc for POST /api/v1/check. It
// reports computability without running any query.
func NewCheckHandler(svc Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := decodeIntent(w, r)
		if !ok {
			return
		}
		computable, reason := svc.Check(in)
		response.JSON(w, checkResponse{Computable: computable, Reason: reason})
	}
}
