// Package analysis executes intents against the loaded dataset and
// materializes the raw rows into formatted, auditable results.
package analysis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/insightx/internal/dataset"
	"github.com/kiranshivaraju/insightx/pkg/metric"
	"github.com/kiranshivaraju/insightx/pkg/models"
	"github.com/kiranshivaraju/insightx/pkg/query"
)

// notCompiled prefixes the query text of a result whose SQL could not be built.
const notCompiled = "-- not compiled: "

// ErrUnsupportedMetric is returned when an intent reaches the engine with a
// metric the operation cannot compute.
var ErrUnsupportedMetric = errors.New("unsupported metric")

// DatasetHandle yields the loaded dataset, or the reason it is unavailable.
type DatasetHandle interface {
	Dataset(ctx context.Context) (*dataset.Dataset, error)
}

// Engine compiles intents into SQL and runs them. It holds no per-request
// state and is safe for concurrent use.
type Engine struct {
	handle DatasetHandle
	qb     query.QueryBuilder
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for query failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the clock used to resolve relative time windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.qb.Now = now }
}

// NewEngine returns an Engine reading from handle.
func NewEngine(handle DatasetHandle, opts ...Option) *Engine {
	e := &Engine{handle: handle, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes in and never returns nil. Failures are reported through
// Success and Error on the result.
func (e *Engine) Run(ctx context.Context, in models.Intent) *models.AnalysisResult {
	start := time.Now()
	in = route(in)
	res := in.Op().Dispatch(ctx, in, e)
	res.ExecutionTimeMS = float64(time.Since(start).Microseconds()) / 1000
	return res
}

// route sends the special multi-column metrics to their operations when the
// intent asks for a plain single metric.
func route(in models.Intent) models.Intent {
	in.Metric = metric.Canonical(in.Metric)
	if _, ok := in.Op().(models.SingleMetric); !ok {
		return in
	}
	switch in.Metric {
	case metric.FailureCodes, metric.TopFailureReasons:
		in.Operation = models.TopFailureReasons{}
	case metric.ExecutiveSummary:
		in.Operation = models.DatasetSummary{}
	}
	return in
}

// resolveMetric returns the registry entry for name, or def when name is empty.
func resolveMetric(name, def string) (metric.Metric, error) {
	if name == "" {
		name = def
	}
	m, ok := metric.Lookup(name)
	if !ok {
		return metric.Metric{}, fmt.Errorf("%w: %q", ErrUnsupportedMetric, name)
	}
	return m, nil
}

func (e *Engine) db(ctx context.Context) (*dataset.Dataset, error) {
	if e.handle == nil {
		return nil, dataset.ErrDatasetUnavailable
	}
	return e.handle.Dataset(ctx)
}

// selectRows runs q and scans every row into dest, a pointer to a slice.
func (e *Engine) selectRows(ctx context.Context, q query.Query, dest any) error {
	ds, err := e.db(ctx)
	if err != nil {
		return err
	}
	if err := ds.DB().SelectContext(ctx, dest, q.SQL, q.Args...); err != nil {
		return e.queryFailed(q, err)
	}
	return nil
}

// getRow runs q and scans its single row into dest.
func (e *Engine) getRow(ctx context.Context, q query.Query, dest any) error {
	ds, err := e.db(ctx)
	if err != nil {
		return err
	}
	if err := ds.DB().GetContext(ctx, dest, q.SQL, q.Args...); err != nil {
		return e.queryFailed(q, err)
	}
	return nil
}

// scanRows runs q and calls scan once per row with a fresh destination
// list built by dests.
func (e *Engine) scanRows(ctx context.Context, q query.Query, dests func() []any, scan func([]any)) error {
	ds, err := e.db(ctx)
	if err != nil {
		return err
	}
	rows, err := ds.DB().QueryxContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return e.queryFailed(q, err)
	}
	defer rows.Close()

	for rows.Next() {
		d := dests()
		if err := rows.Scan(d...); err != nil {
			return e.queryFailed(q, err)
		}
		scan(d)
	}
	if err := rows.Err(); err != nil {
		return e.queryFailed(q, err)
	}
	return nil
}

func (e *Engine) queryFailed(q query.Query, err error) error {
	e.logger.Warn("query failed", "query", q.SQL, "args", len(q.Args), "error", err)
	return fmt.Errorf("execute query: %w", err)
}

func failure(name string, q query.Query, err error) *models.AnalysisResult {
	return &models.AnalysisResult{
		Success: false,
		Metric:  name,
		Numbers: []models.NumberResult{},
		Query:   q.SQL,
		Args:    q.Args,
		Error:   err.Error(),
	}
}

func uncompiled(name string, err error) *models.AnalysisResult {
	return failure(name, query.Query{SQL: notCompiled + err.Error()}, err)
}

func success(name string, q query.Query, numbers []models.NumberResult) *models.AnalysisResult {
	if numbers == nil {
		numbers = []models.NumberResult{}
	}
	return &models.AnalysisResult{
		Success: true,
		Metric:  name,
		Numbers: numbers,
		Query:   q.SQL,
		Args:    q.Args,
	}
}

func metricName(in models.Intent, def string) string {
	if in.Metric != "" {
		return in.Metric
	}
	return def
}

type singleRow struct {
	Value       float64 `db:"value"`
	TotalCount  int64   `db:"total_count"`
	FailedCount int64   `db:"failed_count"`
}

type sampleRow struct {
	TransactionID string         `db:"transaction_id"`
	Timestamp     string         `db:"timestamp"`
	Amount        float64        `db:"amount"`
	Device        string         `db:"device"`
	State         string         `db:"state"`
	Network       string         `db:"network"`
	Category      string         `db:"category"`
	FailureCode   sql.NullString `db:"failure_code"`
}

// SingleMetric computes one metric over the filtered rows.
func (e *Engine) SingleMetric(ctx context.Context, in models.Intent) *models.AnalysisResult {
	name := metricName(in, metric.FailureRate)
	m, err := resolveMetric(name, metric.FailureRate)
	if err != nil {
		return uncompiled(name, err)
	}

	where := e.qb.Where(in.Filters, in.TimeWindow)
	q := e.qb.SingleMetric(m, where)

	var row singleRow
	if err := e.getRow(ctx, q, &row); err != nil {
		return failure(m.Name, q, err)
	}

	res := success(m.Name, q, singleNumbers(m, row))
	if m.Name != metric.FailureRate || row.FailedCount == 0 {
		return res
	}

	var samples []sampleRow
	if err := e.selectRows(ctx, e.qb.FailedSamples(where, query.MaxSampleRows), &samples); err != nil {
		return failure(m.Name, q, err)
	}
	res.SampleRows = sampleMaps(samples)
	return res
}

type groupRow struct {
	Keys       []string
	Value      float64
	SampleSize int64
}

// groupDests returns scan destinations for n text columns followed by value
// and sample_size.
func groupDests(n int) func() []any {
	return func() []any {
		d := make([]any, 0, n+2)
		for i := 0; i < n; i++ {
			d = append(d, new(sql.NullString))
		}
		return append(d, new(sql.NullFloat64), new(int64))
	}
}

func toGroupRow(n int, d []any) groupRow {
	r := groupRow{Keys: make([]string, n)}
	for i := 0; i < n; i++ {
		r.Keys[i] = d[i].(*sql.NullString).String
	}
	r.Value = d[n].(*sql.NullFloat64).Float64
	r.SampleSize = *d[n+1].(*int64)
	return r
}

// Aggregate computes a metric per combination of grouping columns.
func (e *Engine) Aggregate(ctx context.Context, in models.Intent, op models.GroupedAggregation) *models.AnalysisResult {
	name := metricName(in, metric.Volume)
	m, err := resolveMetric(name, metric.Volume)
	if err != nil {
		return uncompiled(name, err)
	}

	q, err := e.qb.Aggregate(m, op.GroupBy, e.qb.Where(in.Filters, in.TimeWindow), query.MaxGroups)
	if err != nil {
		return uncompiled(m.Name, err)
	}

	n := len(op.GroupBy)
	var rows []groupRow
	err = e.scanRows(ctx, q, groupDests(n), func(d []any) {
		rows = append(rows, toGroupRow(n, d))
	})
	if err != nil {
		return failure(m.Name, q, err)
	}

	numbers, chart := aggregateResults(m, op.GroupBy, rows)
	res := success(m.Name, q, numbers)
	res.Chart = chart
	return res
}

type segmentRow struct {
	Segment    string          `db:"segment"`
	Value      sql.NullFloat64 `db:"value"`
	SampleSize int64           `db:"sample_size"`
}

// Compare computes a metric for two segments sharing base filters and window.
func (e *Engine) Compare(ctx context.Context, in models.Intent, op models.SegmentComparison) *models.AnalysisResult {
	name := metricName(in, metric.FailureRate)
	m, err := resolveMetric(name, metric.FailureRate)
	if err != nil {
		return uncompiled(name, err)
	}

	q := e.qb.Compare(m, e.qb.Where(in.Filters, in.TimeWindow), op.A, op.B)

	var rows []segmentRow
	if err := e.selectRows(ctx, q, &rows); err != nil {
		return failure(m.Name, q, err)
	}

	var a, b segmentRow
	for _, r := range rows {
		switch r.Segment {
		case query.SegmentA:
			a = r
		case query.SegmentB:
			b = r
		}
	}

	numbers, chart := compareResults(m, op, a, b)
	res := success(m.Name, q, numbers)
	res.Chart = chart
	return res
}

// TimeSeries computes a metric per time bucket.
func (e *Engine) TimeSeries(ctx context.Context, in models.Intent, op models.TimeSeries) *models.AnalysisResult {
	name := metricName(in, metric.FailureRate)
	m, err := resolveMetric(name, metric.FailureRate)
	if err != nil {
		return uncompiled(name, err)
	}

	q, err := e.qb.TimeSeries(m, op.Bucket, op.GroupBy, e.qb.Where(in.Filters, in.TimeWindow))
	if err != nil {
		return uncompiled(m.Name, err)
	}

	// period is the first text column, the optional group the second.
	n := 1
	if op.GroupBy != nil {
		n = 2
	}
	var rows []groupRow
	err = e.scanRows(ctx, q, groupDests(n), func(d []any) {
		rows = append(rows, toGroupRow(n, d))
	})
	if err != nil {
		return failure(m.Name, q, err)
	}

	numbers, chart := timeSeriesResults(m, op, rows)
	res := success(m.Name, q, numbers)
	res.Chart = chart
	return res
}

type reasonRow struct {
	Code       string  `db:"code"`
	Failures   int64   `db:"failures"`
	Percentage float64 `db:"percentage"`
}

// TopFailureReasons ranks failure codes among failed rows.
func (e *Engine) TopFailureReasons(ctx context.Context, in models.Intent, op models.TopFailureReasons) *models.AnalysisResult {
	q := e.qb.TopFailureReasons(e.qb.Where(in.Filters, in.TimeWindow), op.Limit)

	var rows []reasonRow
	if err := e.selectRows(ctx, q, &rows); err != nil {
		return failure(metric.FailureCodes, q, err)
	}

	numbers, chart := topReasonResults(rows)
	res := success(metric.FailureCodes, q, numbers)
	res.Chart = chart
	return res
}

type summaryRow struct {
	TotalTransactions int64   `db:"total_transactions"`
	TotalAmount       float64 `db:"total_amount"`
	AvgAmount         float64 `db:"avg_amount"`
	FailureRate       float64 `db:"failure_rate"`
	FraudRate         float64 `db:"fraud_rate"`
	ReviewRate        float64 `db:"review_rate"`
}

// Summary computes the fixed executive-summary metrics.
func (e *Engine) Summary(ctx context.Context, in models.Intent) *models.AnalysisResult {
	q := e.qb.Summary(e.qb.Where(in.Filters, in.TimeWindow))

	var row summaryRow
	if err := e.getRow(ctx, q, &row); err != nil {
		return failure(metric.ExecutiveSummary, q, err)
	}
	return success(metric.ExecutiveSummary, q, summaryNumbers(row))
}
