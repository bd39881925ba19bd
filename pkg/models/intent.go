package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownOperation is returned when an intent names an operation kind
// outside the closed set.
var ErrUnknownOperation = errors.New("unknown operation")

// Relative period tags accepted in a TimeWindow.
const (
	PeriodLast7Days  = "last_7_days"
	PeriodLast30Days = "last_30_days"
	PeriodLast90Days = "last_90_days"
)

const isoDate = "2006-01-02"

// TimeWindow bounds an analysis in time. Period is relative to now; From and
// To are ISO dates (YYYY-MM-DD). Explicit bounds further restrict the period.
type TimeWindow struct {
	Period string `json:"period,omitempty" validate:"omitempty,max=32"`
	From   string `json:"from,omitempty"   validate:"omitempty,datetime=2006-01-02"`
	To     string `json:"to,omitempty"     validate:"omitempty,datetime=2006-01-02"`
}

// IsZero reports whether the window imposes no bound.
func (tw *TimeWindow) IsZero() bool {
	return tw == nil || (tw.Period == "" && tw.From == "" && tw.To == "")
}

// Validate checks that From and To are ISO dates and From is not after To.
// A nil window is valid.
func (tw *TimeWindow) Validate() error {
	if tw == nil {
		return nil
	}
	var from, to time.Time
	var err error
	if tw.From != "" {
		if from, err = time.Parse(isoDate, tw.From); err != nil {
			return fmt.Errorf("from %q must be a date (YYYY-MM-DD)", tw.From)
		}
	}
	if tw.To != "" {
		if to, err = time.Parse(isoDate, tw.To); err != nil {
			return fmt.Errorf("to %q must be a date (YYYY-MM-DD)", tw.To)
		}
	}
	if tw.From != "" && tw.To != "" && from.After(to) {
		return fmt.Errorf("from %s is after to %s", tw.From, tw.To)
	}
	return nil
}

// UnmarshalJSON accepts "from_date"/"to_date" as aliases of "from"/"to".
func (tw *TimeWindow) UnmarshalJSON(b []byte) error {
	type plain TimeWindow
	var aux struct {
		plain
		FromDate string `json:"from_date"`
		ToDate   string `json:"to_date"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*tw = TimeWindow(aux.plain)
	if tw.From == "" {
		tw.From = aux.FromDate
	}
	if tw.To == "" {
		tw.To = aux.ToDate
	}
	return nil
}

// Bucket is the time granularity of a time series.
type Bucket string

const (
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

// Valid reports whether b is a known bucket (empty means day).
func (b Bucket) Valid() bool {
	switch b {
	case "", BucketDay, BucketWeek, BucketMonth:
		return true
	}
	return false
}

// OperationKind is the wire name of an analysis operation.
type OperationKind string

const (
	KindSingleMetric      OperationKind = "single_metric"
	KindAggregate         OperationKind = "aggregate"
	KindCompare           OperationKind = "compare"
	KindTimeSeries        OperationKind = "time_series"
	KindTopFailureReasons OperationKind = "top_failure_reasons"
	KindSummary           OperationKind = "summary"
)

// kindAliases maps the intent-type names used by the extraction collaborator
// onto operation kinds.
var kindAliases = map[string]OperationKind{
	"":              KindSingleMetric,
	"metric_query":  KindSingleMetric,
	"segmentation":  KindAggregate,
	"grouped":       KindAggregate,
	"comparison":    KindCompare,
	"failure_codes": KindTopFailureReasons,
	"top_n":         KindTopFailureReasons,
	"executive":     KindSummary,
}

// OperationHandler executes each operation variant. Adding a variant adds a
// method here, so every handler must be updated before the module compiles.
type OperationHandler interface {
	SingleMetric(ctx context.Context, in Intent) *AnalysisResult
	Aggregate(ctx context.Context, in Intent, op GroupedAggregation) *AnalysisResult
	Compare(ctx context.Context, in Intent, op SegmentComparison) *AnalysisResult
	TimeSeries(ctx context.Context, in Intent, op TimeSeries) *AnalysisResult
	TopFailureReasons(ctx context.Context, in Intent, op TopFailureReasons) *AnalysisResult
	Summary(ctx context.Context, in Intent) *AnalysisResult
}

// Operation is the closed set of analyses an intent can request.
type Operation interface {
	Kind() OperationKind
	// Dispatch calls the handler method for this variant.
	Dispatch(ctx context.Context, in Intent, h OperationHandler) *AnalysisResult
	// Validate checks variant-specific structure.
	Validate() error
	// GroupDimensions lists dimensions that become GROUP BY columns.
	GroupDimensions() []Dimension
	// Segments lists additional filter sets the operation applies.
	Segments() []Filters
	encode(w *intentWire)
}

// SingleMetric computes one metric over the filtered rows.
type SingleMetric struct{}

// GroupedAggregation computes a metric per combination of group columns.
type GroupedAggregation struct {
	GroupBy []Dimension
}

// SegmentComparison computes a metric for two segments sharing the base
// filters and time window.
type SegmentComparison struct {
	A Filters
	B Filters
}

// TimeSeries computes a metric per time bucket, optionally split by one column.
type TimeSeries struct {
	Bucket  Bucket
	GroupBy *Dimension
}

// TopFailureReasons ranks failure codes among failed rows.
type TopFailureReasons struct {
	Limit int
}

// DatasetSummary computes the fixed executive summary metrics.
type DatasetSummary struct{}

func (SingleMetric) Kind() OperationKind { return KindSingleMetric }
func (GroupedAggregation) Kind() OperationKind { return KindAggregate }
func (SegmentComparison) Kind() OperationKind { return KindCompare }
func (TimeSeries) Kind() OperationKind { return KindTimeSeries }
func (TopFailureReasons) Kind() OperationKind { return KindTopFailureReasons }
func (DatasetSummary) Kind() OperationKind { return KindSummary }

func (op SingleMetric) Dispatch(ctx context.Context, in Intent, h OperationHandler) *AnalysisResult {
	return h.SingleMetric(ctx, in)
}

func (op GroupedAggregation) Dispatch(ctx context.Context, in Intent, h OperationHandler) *AnalysisResult {
	return h.Aggregate(ctx, in, op)
}

func (op SegmentComparison) Dispatch(ctx context.Context, in Intent, h OperationHandler) *AnalysisResult {
	return h.Compare(ctx, in, op)
}

func (op TimeSeries) Dispatch(ctx context.Context, in Intent, h OperationHandler) *AnalysisResult {
	return h.TimeSeries(ctx, in, op)
}

func (op TopFailureReasons) Dispatch(ctx context.Context, in Intent, h OperationHandler) *AnalysisResult {
	return h.TopFailureReasons(ctx, in, op)
}

func (op DatasetSummary) Dispatch(ctx context.Context, in Intent, h OperationHandler) *AnalysisResult {
	return h.Summary(ctx, in)
}

func (SingleMetric) Validate() error { return nil }

func (op GroupedAggregation) Validate() error {
	if len(op.GroupBy) == 0 {
		return errors.New("aggregate requires at least one group_by dimension")
	}
	seen := make(map[Dimension]bool, len(op.GroupBy))
	for _, d := range op.GroupBy {
		if seen[d] {
			return fmt.Errorf("group_by dimension %q repeated", d)
		}
		seen[d] = true
	}
	return nil
}

func (op SegmentComparison) Validate() error {
	if op.A.IsEmpty() || op.B.IsEmpty() {
		return errors.New("compare requires two non-empty segments")
	}
	return nil
}

func (op TimeSeries) Validate() error {
	if !op.Bucket.Valid() {
		return fmt.Errorf("unknown time bucket %q: must be day, week or month", op.Bucket)
	}
	return nil
}

func (op TopFailureReasons) Validate() error {
	if op.Limit < 0 || op.Limit > 100 {
		return fmt.Errorf("limit must be between 1 and 100, got %d", op.Limit)
	}
	return nil
}

func (DatasetSummary) Validate() error { return nil }

func (SingleMetric) GroupDimensions() []Dimension { return nil }
func (op GroupedAggregation) GroupDimensions() []Dimension { return op.GroupBy }
func (SegmentComparison) GroupDimensions() []Dimension { return nil }
func (TopFailureReasons) GroupDimensions() []Dimension { return nil }
func (DatasetSummary) GroupDimensions() []Dimension { return nil }

func (op TimeSeries) GroupDimensions() []Dimension {
	if op.GroupBy == nil {
		return nil
	}
	return []Dimension{*op.GroupBy}
}

func (SingleMetric) Segments() []Filters { return nil }
func (GroupedAggregation) Segments() []Filters { return nil }
func (op SegmentComparison) Segments() []Filters { return []Filters{op.A, op.B} }
func (TimeSeries) Segments() []Filters { return nil }
func (TopFailureReasons) Segments() []Filters { return nil }
func (DatasetSummary) Segments() []Filters { return nil }

func (SingleMetric) encode(w *intentWire) { w.Operation = KindSingleMetric }
func (op GroupedAggregation) encode(w *intentWire) {
	w.Operation = KindAggregate
	w.GroupBy = op.GroupBy
}
func (op SegmentComparison) encode(w *intentWire) {
	w.Operation = KindCompare
	a, b := op.A, op.B
	w.SegmentA, w.SegmentB = &a, &b
}
func (op TimeSeries) encode(w *intentWire) {
	w.Operation = KindTimeSeries
	w.Bucket = op.Bucket
	w.GroupBy = op.GroupDimensions()
}
func (op TopFailureReasons) encode(w *intentWire) {
	w.Operation = KindTopFailureReasons
	w.Limit = op.Limit
}
func (DatasetSummary) encode(w *intentWire) { w.Operation = KindSummary }

// Intent is a normalized description of one analysis request.
type Intent struct {
	Metric     string
	Filters    Filters
	TimeWindow *TimeWindow
	Operation  Operation
}

// Op returns the operation, defaulting to SingleMetric.
func (in Intent) Op() Operation {
	if in.Operation == nil {
		return SingleMetric{}
	}
	return in.Operation
}

type intentWire struct {
	Operation  OperationKind `json:"operation"`
	Metric     string        `json:"metric,omitempty"`
	Filters    Filters       `json:"filters"`
	TimeWindow *TimeWindow   `json:"time_window,omitempty"`
	GroupBy    []Dimension   `json:"group_by,omitempty"`
	SegmentA   *Filters      `json:"segment_a,omitempty"`
	SegmentB   *Filters      `json:"segment_b,omitempty"`
	Bucket     Bucket        `json:"bucket,omitempty"`
	Limit      int           `json:"limit,omitempty"`
}

func (in Intent) MarshalJSON() ([]byte, error) {
	w := intentWire{
		Metric:     in.Metric,
		Filters:    in.Filters,
		TimeWindow: in.TimeWindow,
	}
	in.Op().encode(&w)
	return json.Marshal(w)
}

func (in *Intent) UnmarshalJSON(b []byte) error {
	var w intentWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	kind, err := ParseOperationKind(string(w.Operation))
	if err != nil {
		return err
	}

	var op Operation
	switch kind {
	case KindSingleMetric:
		op = SingleMetric{}
	case KindAggregate:
		op = GroupedAggregation{GroupBy: w.GroupBy}
	case KindCompare:
		var c SegmentComparison
		if w.SegmentA != nil {
			c.A = *w.SegmentA
		}
		if w.SegmentB != nil {
			c.B = *w.SegmentB
		}
		op = c
	case KindTimeSeries:
		ts := TimeSeries{Bucket: w.Bucket}
		switch len(w.GroupBy) {
		case 0:
		case 1:
			d := w.GroupBy[0]
			ts.GroupBy = &d
		default:
			return errors.New("time_series accepts at most one group_by dimension")
		}
		op = ts
	case KindTopFailureReasons:
		op = TopFailureReasons{Limit: w.Limit}
	case KindSummary:
		op = DatasetSummary{}
	}

	*in = Intent{
		Metric:     strings.ToLower(strings.TrimSpace(w.Metric)),
		Filters:    w.Filters,
		TimeWindow: w.TimeWindow,
		Operation:  op,
	}
	return nil
}

// ParseOperationKind maps a wire name or alias to an OperationKind.
func ParseOperationKind(s string) (OperationKind, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	switch k := OperationKind(key); k {
	case KindSingleMetric, KindAggregate, KindCompare, KindTimeSeries, KindTopFailureReasons, KindSummary:
		return k, nil
	}
	if k, ok := kindAliases[key]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
}
