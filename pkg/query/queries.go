package query

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/insightx/pkg/metric"
	"github.com/kiranshivaraju/insightx/pkg/models"
)

// Display caps shared by the operations.
const (
	MaxGroups         = 20
	MaxSampleRows     = 5
	DefaultTopReasons = 10
	UnknownCode       = "Unknown"
)

// Segment labels of a comparison query.
const (
	SegmentA = "Segment A"
	SegmentB = "Segment B"
)

// Query is executable SQL and its bound arguments.
type Query struct {
	SQL  string
	Args []any
}

func valueExpr(m metric.Metric) string {
	return "COALESCE(" + m.Expr + ", 0)"
}

// SingleMetric computes m together with the total and failed row counts.
func (b QueryBuilder) SingleMetric(m metric.Metric, where Predicate) Query {
	sql := fmt.Sprintf(
		"SELECT %s AS value, COUNT(*) AS total_count, COALESCE(%s, 0) AS failed_count FROM %s WHERE %s",
		valueExpr(m), metric.FailedCountExpr(), Table, where.SQL,
	)
	return Query{SQL: sql, Args: where.clone().Args}
}

// FailedSamples selects up to limit failed rows, newest first.
func (b QueryBuilder) FailedSamples(where Predicate, limit int) Query {
	p := where.And(Predicate{SQL: "status = ?", Args: []any{models.StatusFailed}})
	sql := fmt.Sprintf(
		"SELECT transaction_id, timestamp, amount, device, state, network, category, failure_code FROM %s WHERE %s ORDER BY timestamp DESC, transaction_id LIMIT ?",
		Table, p.SQL,
	)
	return Query{SQL: sql, Args: append(p.Args, limit)}
}

// Aggregate computes m per combination of groupBy columns, largest first.
func (b QueryBuilder) Aggregate(m metric.Metric, groupBy []models.Dimension, where Predicate, limit int) (Query, error) {
	if len(groupBy) == 0 {
		return Query{}, fmt.Errorf("%w: no group columns", ErrUnknownDimension)
	}
	cols, err := columns(groupBy)
	if err != nil {
		return Query{}, err
	}
	sql := fmt.Sprintf(
		"SELECT %s, %s AS value, COUNT(*) AS sample_size FROM %s WHERE %s GROUP BY %s ORDER BY value DESC, %s LIMIT ?",
		cols, valueExpr(m), Table, where.SQL, cols, cols,
	)
	args := where.clone().Args
	return Query{SQL: sql, Args: append(args, limit)}, nil
}

// Compare computes m for two segments sharing the base predicate.
func (b QueryBuilder) Compare(m metric.Metric, base Predicate, a, bf models.Filters) Query {
	pa := base.And(b.Predicate(a))
	pb := base.And(b.Predicate(bf))
	sel := "SELECT '%s' AS segment, %s AS value, COUNT(*) AS sample_size FROM %s WHERE %s"
	sql := fmt.Sprintf(sel, SegmentA, valueExpr(m), Table, pa.SQL) +
		" UNION ALL " +
		fmt.Sprintf(sel, SegmentB, valueExpr(m), Table, pb.SQL)

	args := make([]any, 0, len(pa.Args)+len(pb.Args))
	args = append(args, pa.Args...)
	args = append(args, pb.Args...)
	return Query{SQL: sql, Args: args}
}

// BucketExpr returns the SQL expression truncating date_only to bucket.
// Weeks start on Monday.
func BucketExpr(bucket models.Bucket) string {
	switch bucket {
	case models.BucketWeek:
		return "date(date_only, 'weekday 0', '-6 days')"
	case models.BucketMonth:
		return "strftime('%Y-%m-01', date_only)"
	default:
		return "date_only"
	}
}

// TimeSeries computes m per time bucket, optionally split by one column.
func (b QueryBuilder) TimeSeries(m metric.Metric, bucket models.Bucket, groupBy *models.Dimension, where Predicate) (Query, error) {
	group := "period"
	sel := BucketExpr(bucket) + " AS period"
	if groupBy != nil {
		col, err := columns([]models.Dimension{*groupBy})
		if err != nil {
			return Query{}, err
		}
		group += ", " + col
		sel += ", " + col
	}
	sql := fmt.Sprintf(
		"SELECT %s, %s AS value, COUNT(*) AS sample_size FROM %s WHERE %s GROUP BY %s ORDER BY %s",
		sel, valueExpr(m), Table, where.SQL, group, group,
	)
	return Query{SQL: sql, Args: where.clone().Args}, nil
}

// TopFailureReasons ranks failure codes among failed rows. Percentages are
// unrounded shares of all failed rows matching where.
func (b QueryBuilder) TopFailureReasons(where Predicate, limit int) Query {
	if limit <= 0 {
		limit = DefaultTopReasons
	}
	p := where.And(Predicate{SQL: "status = ?", Args: []any{models.StatusFailed}})
	sql := fmt.Sprintf(
		"SELECT COALESCE(NULLIF(failure_code, ''), '%s') AS code, COUNT(*) AS failures, "+
			"100.0 * COUNT(*) / SUM(COUNT(*)) OVER () AS percentage FROM %s WHERE %s "+
			"GROUP BY code ORDER BY failures DESC, code ASC LIMIT ?",
		UnknownCode, Table, p.SQL,
	)
	return Query{SQL: sql, Args: append(p.Args, limit)}
}

// Summary column aliases, in select order.
var SummaryColumns = []string{
	"total_transactions",
	metric.TotalAmount,
	metric.AvgAmount,
	metric.FailureRate,
	metric.FraudRate,
	metric.ReviewRate,
}

// Summary computes the fixed executive-summary metrics in one pass.
func (b QueryBuilder) Summary(where Predicate) Query {
	exprs := []string{"COUNT(*) AS total_transactions"}
	for _, name := range SummaryColumns[1:] {
		exprs = append(exprs, valueExpr(metric.MustLookup(name))+" AS "+name)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(exprs, ", "), Table, where.SQL)
	return Query{SQL: sql, Args: where.clone().Args}
}
