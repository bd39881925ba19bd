package models

// MaxChartPoints bounds the payload size of a chart series.
const MaxChartPoints = 20

// ChartType selects how a series is rendered.
type ChartType string

const (
	ChartLine      ChartType = "line"
	ChartBar       ChartType = "bar"
	ChartPie       ChartType = "pie"
	ChartSparkline ChartType = "sparkline"
)

// Calculation records how a number was derived.
type Calculation struct {
	Numerator   *float64 `json:"numerator,omitempty"`
	Denominator *float64 `json:"denominator,omitempty"`
	Formula     string   `json:"formula,omitempty"`
	SampleSize  *int     `json:"sample_size,omitempty"`
}

// NumberResult is a labeled, formatted number. Value is always derived from
// RawValue and the metric's format class.
type NumberResult struct {
	Label       string       `json:"label"`
	Value       string       `json:"value"`
	RawValue    float64      `json:"raw_value"`
	Calculation *Calculation `json:"calculation,omitempty"`
}

// ChartPoint is a single (x, y) data point.
type ChartPoint struct {
	X     string  `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
}

// ChartSeries is chart-ready data for a result.
type ChartSeries struct {
	Type   ChartType    `json:"type"`
	Title  string       `json:"title"`
	XLabel string       `json:"x_label,omitempty"`
	YLabel string       `json:"y_label,omitempty"`
	Points []ChartPoint `json:"data"`
}

// NewChartSeries builds a series holding at most MaxChartPoints points.
func NewChartSeries(t ChartType, title string, points []ChartPoint) *ChartSeries {
	if len(points) > MaxChartPoints {
		points = points[:MaxChartPoints]
	}
	if points == nil {
		points = []ChartPoint{}
	}
	return &ChartSeries{Type: t, Title: title, Points: points}
}

// AnalysisResult is the outcome of one analysis. Query always holds the SQL
// that was run (or attempted) so every number is traceable.
type AnalysisResult struct {
	Success         bool             `json:"success"`
	Metric          string           `json:"metric"`
	Numbers         []NumberResult   `json:"numbers"`
	Query           string           `json:"query_executed"`
	Args            []any            `json:"query_args,omitempty"`
	Chart           *ChartSeries     `json:"chart_data,omitempty"`
	SampleRows      []map[string]any `json:"sample_rows,omitempty"`
	Error           string           `json:"error,omitempty"`
	ExecutionTimeMS float64          `json:"execution_time_ms"`
}

// Float returns a pointer to v, for Calculation fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for Calculation fields.
func Int(v int) *int { return &v }
