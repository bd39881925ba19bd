package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/insightx/internal/cache"
	"github.com/kiranshivaraju/insightx/internal/guard"
	"github.com/kiranshivaraju/insightx/internal/metrics"
	"github.com/kiranshivaraju/insightx/pkg/models"
	"github.com/kiranshivaraju/insightx/pkg/query"
	"golang.org/x/sync/singleflight"
)

// ErrNotComputable matches every guard rejection returned by Service.Analyze.
var ErrNotComputable = errors.New("intent not computable")

// RejectionError carries the guard's reason for refusing an intent.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }

func (e *RejectionError) Is(target error) bool { return target == ErrNotComputable }

// Runner executes an already-validated intent.
type Runner interface {
	Run(ctx context.Context, in models.Intent) *models.AnalysisResult
}

// Versioner identifies the loaded dataset instance.
type Versioner interface {
	Version() string
}

// Service is the entry point for callers: it checks an intent, serves
// cached results, coalesces identical concurrent intents and records metrics.
type Service struct {
	guard   *guard.Guard
	runner  Runner
	cache   cache.Cache
	ttl     time.Duration
	version Versioner
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	group singleflight.Group
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache stores successful results in c for ttl. The cache is only used
// when a Versioner is also configured.
func WithCache(c cache.Cache, ttl time.Duration, v Versioner) ServiceOption {
	return func(s *Service) {
		s.cache, s.ttl, s.version = c, ttl, v
	}
}

// WithMetrics records analysis and cache metrics on m.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService returns a Service validating with g and executing with r.
func NewService(g *guard.Guard, r Runner, opts ...ServiceOption) *Service {
	s := &Service{guard: g, runner: r, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check reports whether in is computable without executing it.
func (s *Service) Check(in models.Intent) (bool, string) {
	return s.guard.Check(in)
}

// Analyze validates and executes in. A guard rejection is returned as a
// *RejectionError; execution failures are reported on the result.
func (s *Service) Analyze(ctx context.Context, in models.Intent) (*models.AnalysisResult, error) {
	start := time.Now()
	op := string(in.Op().Kind())

	if ok, reason := s.guard.Check(in); !ok {
		s.metrics.ObserveAnalysis(op, metrics.OutcomeRejected, 0)
		return nil, &RejectionError{Reason: reason}
	}
	in = s.guard.Normalize(in)

	fp, err := s.fingerprint(in)
	if err != nil {
		return nil, fmt.Errorf("fingerprint intent: %w", err)
	}

	key := s.cacheKey(fp)
	if res, ok := s.lookup(ctx, key); ok {
		s.metrics.ObserveAnalysis(op, metrics.OutcomeSuccess, time.Since(start))
		return res, nil
	}

	v, _, shared := s.group.Do(fp, func() (any, error) {
		res := s.runner.Run(ctx, in)
		if res.Success {
			s.store(ctx, key, res)
		}
		return res, nil
	})
	if shared {
		s.metrics.IncCoalesced()
	}

	// Callers of a shared flight each get their own copy.
	res := *v.(*models.AnalysisResult)

	outcome := metrics.OutcomeSuccess
	if !res.Success {
		outcome = metrics.OutcomeFailed
		s.logger.Warn("analysis failed",
			"operation", op,
			"metric", res.Metric,
			"query", res.Query,
			"error", res.Error,
		)
	}
	s.metrics.ObserveAnalysis(op, outcome, time.Since(start))
	return &res, nil
}

// fingerprint hashes the normalized intent. Relative windows also hash the
// current day since they resolve against the clock.
func (s *Service) fingerprint(in models.Intent) (string, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(b)
	if in.TimeWindow != nil && in.TimeWindow.Period != "" {
		h.Write([]byte(s.now().Format(query.DateLayout)))
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// cacheKey returns "" when caching is off or no dataset is loaded.
func (s *Service) cacheKey(fp string) string {
	if s.cache == nil || s.version == nil {
		return ""
	}
	v := s.version.Version()
	if v == "" {
		return ""
	}
	return cache.AnalysisKey(v, fp)
}

func (s *Service) lookup(ctx context.Context, key string) (*models.AnalysisResult, bool) {
	if key == "" {
		return nil, false
	}
	b, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.ObserveCache(metrics.CacheError)
		s.logger.Warn("cache lookup failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		s.metrics.ObserveCache(metrics.CacheMiss)
		return nil, false
	}

	var res models.AnalysisResult
	if err := json.Unmarshal(b, &res); err != nil {
		s.metrics.ObserveCache(metrics.CacheError)
		s.logger.Warn("cached result unreadable", "key", key, "error", err)
		return nil, false
	}
	s.metrics.ObserveCache(metrics.CacheHit)
	return &res, true
}

func (s *Service) store(ctx context.Context, key string, res *models.AnalysisResult) {
	if key == "" {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		s.logger.Warn("encode result for cache", "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
		s.logger.Warn("cache store failed", "key", key, "error", err)
	}
}
