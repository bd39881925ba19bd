package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/insightx/internal/analysis"
	mw "github.com/kiranshivaraju/insightx/internal/api/middleware"
	"github.com/kiranshivaraju/insightx/internal/api/response"
	"github.com/kiranshivaraju/insightx/pkg/models"
)

// Analyzer defines the interface the analysis handlers depend on.
type Analyzer interface {
	Analyze(ctx context.Context, in models.Intent) (*models.AnalysisResult, error)
	Check(in models.Intent) (bool, string)
}

type analyzeMeta struct {
	RequestID string `json:"request_id,omitempty"`
}

type failureDetails struct {
	Query string `json:"query_executed"`
	Args  []any  `json:"query_args,omitempty"`
	Error string `json:"error"`
}

// NewAnalyzeHandler returns an http.HandlerFunc for POST /api/v1/analyze.
func NewAnalyzeHandler(svc Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := decodeIntent(w, r)
		if !ok {
			return
		}

		res, err := svc.Analyze(r.Context(), in)
		if err != nil {
			var rej *analysis.RejectionError
			switch {
			case errors.As(err, &rej):
				response.Error(w, http.StatusUnprocessableEntity, "CLARIFICATION_NEEDED", rej.Reason, nil)
			default:
				slog.Error("analyze request failed", "error", err, "request_id", mw.GetRequestID(r))
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		if !res.Success {
			response.Error(w, http.StatusInternalServerError, "ANALYSIS_FAILED",
				"The analysis query could not be executed", failureDetails{
					Query: res.Query,
					Args:  res.Args,
					Error: res.Error,
				})
			return
		}

		response.WithMeta(w, res, analyzeMeta{RequestID: mw.GetRequestID(r)})
	}
}
