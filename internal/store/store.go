package store

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/insightx/internal/config"
	"github.com/kiranshivaraju/insightx/internal/dataset"
)

// ErrTableNotFound is returned when the configured dataset table does not exist.
var ErrTableNotFound = errors.New("table not found")

// NewProvider returns the dataset provider for the configured source. For
// Postgres the pool only lives for the duration of the load.
func NewProvider(cfg *config.Config, opts ...dataset.Option) *dataset.Provider {
	if cfg.Data.Source != config.SourcePostgres {
		return dataset.FromSource(dataset.SourceForPath(cfg.Data.Path, cfg.Data.Sheet), opts...)
	}
	return dataset.NewProvider(func(ctx context.Context) (*dataset.Dataset, error) {
		pool, err := Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		defer pool.Close()
		return dataset.Load(ctx, NewPostgresSource(pool, cfg.Data.Table), opts...)
	})
}
