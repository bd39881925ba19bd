package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/insightx/internal/api/response"
	"github.com/kiranshivaraju/insightx/internal/dataset"
)

const (
	checkOK       = "ok"
	checkDegraded = "degraded"
	checkDisabled = "disabled"
)

// StatusReporter reports the dataset state without loading it.
type StatusReporter interface {
	Status() dataset.Status
}

// Pinger is satisfied by the result cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
// c may be nil when no cache is configured.
func NewHealthHandler(ds StatusReporter, c Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := ds.Status()
		checks := map[string]string{
			"dataset": checkOK,
			"cache":   checkDisabled,
		}

		if st.State != dataset.StateLoaded {
			checks["dataset"] = checkDegraded
		}
		if c != nil {
			checks["cache"] = checkOK
			if err := c.Ping(r.Context()); err != nil {
				checks["cache"] = checkDegraded
			}
		}

		degraded := checks["dataset"] != checkOK || checks["cache"] == checkDegraded
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", map[string]any{
					"services": checks,
					"dataset":  st,
				})
			return
		}

		response.JSON(w, map[string]any{
			"status":   checkOK,
			"services": checks,
			"dataset":  st,
		})
	}
}
