package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/insightx/internal/api/response"
	"github.com/kiranshivaraju/insightx/pkg/metric"
	"github.com/kiranshivaraju/insightx/pkg/models"
)

// ValueLister returns the distinct values of a dimension in the dataset.
type ValueLister interface {
	Values(ctx context.Context, d models.Dimension) ([]string, error)
}

type vocabularyResponse struct {
	Metrics    []string                      `json:"metrics"`
	Dimensions []models.Dimension            `json:"dimensions"`
	Accepted   map[models.Dimension][]string `json:"accepted_values"`
	Values     map[models.Dimension][]string `json:"dataset_values,omitempty"`
	Periods    []string                      `json:"periods"`
	Buckets    []models.Bucket               `json:"buckets"`
	Operations []models.OperationKind        `json:"operations"`
}

// NewVocabularyHandler returns an http.HandlerFunc for GET
// /api/v1/vocabulary. accepted holds the value sets the guard enforces;
// values may be nil when the dataset cannot be listed.
func NewVocabularyHandler(accepted map[models.Dimension][]string, values ValueLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := vocabularyResponse{
			Metrics:    metric.Names(),
			Dimensions: models.Dimensions,
			Accepted:   accepted,
			Periods:    []string{models.PeriodLast7Days, models.PeriodLast30Days, models.PeriodLast90Days},
			Buckets:    []models.Bucket{models.BucketDay, models.BucketWeek, models.BucketMonth},
			Operations: []models.OperationKind{
				models.KindSingleMetric,
				models.KindAggregate,
				models.KindCompare,
				models.KindTimeSeries,
				models.KindTopFailureReasons,
				models.KindSummary,
			},
		}

		if values != nil {
			resp.Values = make(map[models.Dimension][]string, len(models.Dimensions))
			for _, d := range models.Dimensions {
				vals, err := values.Values(r.Context(), d)
				if err != nil {
					slog.Warn("list dimension values", "dimension", d, "error", err)
					resp.Values = nil
					break
				}
				resp.Values[d] = vals
			}
		}

		response.JSON(w, resp)
	}
}
