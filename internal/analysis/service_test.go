package analysis_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kiranshivaraju/insightx/internal/analysis"
	"github.com/kiranshivaraju/insightx/internal/cache"
	"github.com/kiranshivaraju/insightx/internal/dataset"
	"github.com/kiranshivaraju/insightx/internal/dataset/datasettest"
	"github.com/kiranshivaraju/insightx/internal/guard"
	"github.com/kiranshivaraju/insightx/internal/metrics"
	"github.com/kiranshivaraju/insightx/pkg/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRunner counts executions and optionally blocks until released.
type countingRunner struct {
	inner   analysis.Runner
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *countingRunner) Run(ctx context.Context, in models.Intent) *models.AnalysisResult {
	r.calls.Add(1)
	if r.started != nil {
		r.once.Do(func() { close(r.started) })
	}
	if r.release != nil {
		<-r.release
	}
	return r.inner.Run(ctx, in)
}

type failingRunner struct{ calls atomic.Int32 }

func (r *failingRunner) Run(context.Context, models.Intent) *models.AnalysisResult {
	r.calls.Add(1)
	return &models.AnalysisResult{Success: false, Query: "SELECT 1", Error: "boom", Numbers: []models.NumberResult{}}
}

type fixedVersion string

func (v fixedVersion) Version() string { return string(v) }

func newRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })
	return rc, mr
}

func fixtureRunner(t *testing.T) *countingRunner {
	t.Helper()
	return &countingRunner{inner: newEngine(t)}
}

func TestAnalyze_Rejection(t *testing.T) {
	m := metrics.New()
	r := fixtureRunner(t)
	svc := analysis.NewService(guard.New(), r, analysis.WithMetrics(m))

	res, err := svc.Analyze(context.Background(), models.Intent{Metric: "bogus_metric"})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrNotComputable)

	var rej *analysis.RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Contains(t, rej.Reason, "not supported")
	assert.Contains(t, rej.Reason, "failure_rate")

	assert.Equal(t, int32(0), r.calls.Load(), "rejected intents never execute")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Analyses.WithLabelValues("single_metric", metrics.OutcomeRejected)))
}

func TestAnalyze_NormalizesVocabulary(t *testing.T) {
	svc := analysis.NewService(guard.New(), newEngine(t))

	res, err := svc.Analyze(context.Background(), models.Intent{
		Metric:  "failure_rate",
		Filters: models.Filters{Device: "android"},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, []any{"Android"}, res.Args)
	assert.InDelta(t, 11.76, res.Numbers[0].RawValue, 1e-9)
}

func TestAnalyze_ExecutionFailureIsAResult(t *testing.T) {
	m := metrics.New()
	svc := analysis.NewService(guard.New(), &failingRunner{}, analysis.WithMetrics(m))

	res, err := svc.Analyze(context.Background(), models.Intent{Metric: "volume"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Analyses.WithLabelValues("single_metric", metrics.OutcomeFailed)))
}

func TestAnalyze_CachesSuccessfulResults(t *testing.T) {
	rc, _ := newRedis(t)
	m := metrics.New()
	r := fixtureRunner(t)
	svc := analysis.NewService(guard.New(), r,
		analysis.WithCache(rc, time.Minute, fixedVersion("v1")),
		analysis.WithMetrics(m),
	)
	in := models.Intent{Metric: "volume", Filters: models.Filters{Device: "iOS"}}

	first, err := svc.Analyze(context.Background(), in)
	require.NoError(t, err)
	second, err := svc.Analyze(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, first.Numbers, second.Numbers)
	assert.Equal(t, first.Query, second.Query)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues(metrics.CacheMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues(metrics.CacheHit)))
}

func TestAnalyze_CacheKeyedByNormalizedIntent(t *testing.T) {
	rc, _ := newRedis(t)
	r := fixtureRunner(t)
	svc := analysis.NewService(guard.New(), r, analysis.WithCache(rc, time.Minute, fixedVersion("v1")))

	_, err := svc.Analyze(context.Background(), models.Intent{Filters: models.Filters{Device: "ios"}})
	require.NoError(t, err)
	_, err = svc.Analyze(context.Background(), models.Intent{Filters: models.Filters{Device: "IOS"}})
	require.NoError(t, err)

	assert.Equal(t, int32(1), r.calls.Load())
}

func TestAnalyze_CacheScopedByDatasetVersion(t *testing.T) {
	rc, _ := newRedis(t)
	r := fixtureRunner(t)
	in := models.Intent{Metric: "volume"}

	for _, v := range []string{"v1", "v2"} {
		svc := analysis.NewService(guard.New(), r, analysis.WithCache(rc, time.Minute, fixedVersion(v)))
		_, err := svc.Analyze(context.Background(), in)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestAnalyze_FailuresAreNotCached(t *testing.T) {
	rc, mr := newRedis(t)
	r := &failingRunner{}
	svc := analysis.NewService(guard.New(), r, analysis.WithCache(rc, time.Minute, fixedVersion("v1")))

	for i := 0; i < 2; i++ {
		_, err := svc.Analyze(context.Background(), models.Intent{Metric: "volume"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), r.calls.Load())
	assert.Empty(t, mr.Keys())
}

func TestAnalyze_NoVersionSkipsCache(t *testing.T) {
	rc, mr := newRedis(t)
	r := fixtureRunner(t)
	svc := analysis.NewService(guard.New(), r, analysis.WithCache(rc, time.Minute, fixedVersion("")))

	for i := 0; i < 2; i++ {
		_, err := svc.Analyze(context.Background(), models.Intent{Metric: "volume"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), r.calls.Load())
	assert.Empty(t, mr.Keys())
}

func TestAnalyze_CacheDownStillAnswers(t *testing.T) {
	rc, mr := newRedis(t)
	m := metrics.New()
	svc := analysis.NewService(guard.New(), newEngine(t),
		analysis.WithCache(rc, time.Minute, fixedVersion("v1")),
		analysis.WithMetrics(m),
	)
	mr.Close()

	res, err := svc.Analyze(context.Background(), models.Intent{Metric: "volume"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 100.0, res.Numbers[0].RawValue)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues(metrics.CacheError)))
}

func TestAnalyze_CoalescesConcurrentIdenticalIntents(t *testing.T) {
	r := &countingRunner{
		inner:   newEngine(t),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := analysis.NewService(guard.New(), r)
	in := models.Intent{Operation: models.DatasetSummary{}}

	const n = 8
	results := make([]*models.AnalysisResult, n)
	var wg sync.WaitGroup
	start := func(i int) {
		defer wg.Done()
		res, err := svc.Analyze(context.Background(), in)
		assert.NoError(t, err)
		results[i] = res
	}

	wg.Add(n)
	go start(0)
	<-r.started
	for i := 1; i < n; i++ {
		go start(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(r.release)
	wg.Wait()

	assert.Less(t, r.calls.Load(), int32(n))
	for _, res := range results {
		require.NotNil(t, res)
		assert.True(t, res.Success)
		assert.Len(t, res.Numbers, 6)
	}
}

func TestAnalyze_DatasetUnavailable(t *testing.T) {
	p := dataset.FromSource(dataset.CSVSource{Path: "/nonexistent/transactions.csv"})
	_, _ = p.Dataset(context.Background())

	svc := analysis.NewService(guard.New(guard.WithAvailability(p)), analysis.NewEngine(p))
	_, err := svc.Analyze(context.Background(), models.Intent{Metric: "failure_rate"})
	require.ErrorIs(t, err, analysis.ErrNotComputable)
	assert.Contains(t, err.Error(), "dataset unavailable")
}

func TestAnalyze_SpecialMetricOutsideItsOperation(t *testing.T) {
	r := fixtureRunner(t)
	svc := analysis.NewService(guard.New(), r)

	intents := []models.Intent{
		{Metric: "executive_summary", Operation: models.GroupedAggregation{GroupBy: []models.Dimension{models.DimDevice}}},
		{Metric: "failure_codes", Operation: models.TimeSeries{}},
		{Metric: "failure_codes", Operation: models.SegmentComparison{
			A: models.Filters{Device: "Android"},
			B: models.Filters{Device: "iOS"},
		}},
	}
	for _, in := range intents {
		_, err := svc.Analyze(context.Background(), in)
		assert.ErrorIs(t, err, analysis.ErrNotComputable, in.Metric)
	}
	assert.Equal(t, int32(0), r.calls.Load())
}

func TestAnalyze_SpecialMetricSpelling(t *testing.T) {
	svc := analysis.NewService(guard.New(), newEngine(t))

	res, err := svc.Analyze(context.Background(), models.Intent{Metric: "FAILURE_CODES"})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "failure_codes", res.Metric)
	assert.Len(t, res.Numbers, 3)

	res, err = svc.Analyze(context.Background(), models.Intent{Metric: " executive_summary"})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Len(t, res.Numbers, 6)
}

func TestAnalyze_RejectsNonISODates(t *testing.T) {
	r := fixtureRunner(t)
	svc := analysis.NewService(guard.New(), r)

	for _, from := range []string{"2025-1-2", "yesterday"} {
		_, err := svc.Analyze(context.Background(), models.Intent{
			Metric:     "volume",
			TimeWindow: &models.TimeWindow{From: from},
		})
		assert.ErrorIs(t, err, analysis.ErrNotComputable, from)
	}

	_, err := svc.Analyze(context.Background(), models.Intent{
		Metric:     "volume",
		TimeWindow: &models.TimeWindow{From: "2025-01-03", To: "2025-01-02"},
	})
	assert.ErrorIs(t, err, analysis.ErrNotComputable)
	assert.Equal(t, int32(0), r.calls.Load())

	res, err := svc.Analyze(context.Background(), models.Intent{
		Metric:     "volume",
		TimeWindow: &models.TimeWindow{From: "2025-01-02"},
	})
	require.NoError(t, err)
	assert.Equal(t, 76.0, res.Numbers[0].RawValue)
}

func TestCheck(t *testing.T) {
	svc := analysis.NewService(guard.New(), newEngine(t))

	ok, reason := svc.Check(models.Intent{Filters: models.Filters{Network: "6G"}})
	assert.False(t, ok)
	assert.Contains(t, reason, "Unknown network type: 6G")

	ok, _ = svc.Check(models.Intent{Metric: "total_amount"})
	assert.True(t, ok)
}

func TestAnalyze_WithLoadedProvider(t *testing.T) {
	p := dataset.Ready(datasettest.Load(t))
	_, err := p.Dataset(context.Background())
	require.NoError(t, err)
	rc, _ := newRedis(t)

	svc := analysis.NewService(guard.New(guard.WithAvailability(p)), analysis.NewEngine(p),
		analysis.WithCache(rc, time.Minute, p))

	res, err := svc.Analyze(context.Background(), models.Intent{Metric: "failure_codes"})
	require.NoError(t, err)
	assert.Equal(t, "failure_codes", res.Metric)
	assert.Len(t, res.Numbers, 3)
}
