package dataset

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kiranshivaraju/insightx/pkg/models"
)

// LoadFunc produces the dataset. It runs at most once per Provider.
type LoadFunc func(ctx context.Context) (*Dataset, error)

// State is the lifecycle stage of a Provider.
type State string

const (
	StatePending State = "pending"
	StateLoaded  State = "loaded"
	StateFailed  State = "failed"
)

// Status is a point-in-time snapshot for health reporting.
type Status struct {
	State    State     `json:"state"`
	Source   string    `json:"source,omitempty"`
	Rows     int       `json:"rows"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Provider guards the one-time dataset load. Concurrent early callers block
// until the load finishes and then all observe the same dataset or error.
type Provider struct {
	load LoadFunc
	once sync.Once
	done atomic.Bool

	ds  *Dataset
	err error
}

// NewProvider returns a Provider that calls load on first use.
func NewProvider(load LoadFunc) *Provider {
	return &Provider{load: load}
}

// Ready returns a Provider around an already-loaded dataset.
func Ready(ds *Dataset) *Provider {
	return NewProvider(func(context.Context) (*Dataset, error) { return ds, nil })
}

// FromSource returns a Provider that loads src on first use.
func FromSource(src Source, opts ...Option) *Provider {
	return NewProvider(func(ctx context.Context) (*Dataset, error) {
		return Load(ctx, src, opts...)
	})
}

// Dataset returns the loaded dataset, loading it on the first call. After a
// failed load every call returns an error wrapping ErrDatasetUnavailable.
// The load ignores cancellation of ctx since its result outlives the caller.
func (p *Provider) Dataset(ctx context.Context) (*Dataset, error) {
	p.once.Do(func() {
		ds, err := p.load(context.WithoutCancel(ctx))
		if err == nil && ds == nil {
			err = errors.New("loader returned no dataset")
		}
		p.ds, p.err = ds, err
		p.done.Store(true)
	})
	if p.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatasetUnavailable, p.err)
	}
	return p.ds, nil
}

// Available reports whether a loaded dataset can serve queries. It never
// triggers a load.
func (p *Provider) Available() error {
	if !p.done.Load() {
		return fmt.Errorf("%w: not loaded yet", ErrDatasetUnavailable)
	}
	if p.err != nil {
		return fmt.Errorf("%w: %w", ErrDatasetUnavailable, p.err)
	}
	return nil
}

// Status snapshots the provider without triggering a load.
func (p *Provider) Status() Status {
	if !p.done.Load() {
		return Status{State: StatePending}
	}
	if p.err != nil {
		return Status{State: StateFailed, Error: p.err.Error()}
	}
	return Status{
		State:    StateLoaded,
		Source:   p.ds.Source(),
		Rows:     p.ds.Rows(),
		LoadedAt: p.ds.LoadedAt(),
	}
}

// Version identifies the loaded dataset instance for cache scoping. It is
// empty until a load succeeds.
func (p *Provider) Version() string {
	if !p.done.Load() || p.err != nil {
		return ""
	}
	return strconv.FormatInt(p.ds.LoadedAt().UnixNano(), 36)
}

// Values lists the distinct values of dim in the loaded dataset. It never
// triggers a load.
func (p *Provider) Values(ctx context.Context, dim models.Dimension) ([]string, error) {
	if err := p.Available(); err != nil {
		return nil, err
	}
	return p.ds.Values(ctx, dim)
}

// Close closes the dataset if one was loaded.
func (p *Provider) Close() error {
	if !p.done.Load() || p.ds == nil {
		return nil
	}
	return p.ds.Close()
}
