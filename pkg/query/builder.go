// Package query compiles filters, time windows and metric expressions into
// parameterized SQL over the transactions table. Values always travel as
// bound arguments; only whitelisted column names and registry expressions
// appear in query text.
package query

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/insightx/pkg/models"
)

// Table is the name of the dataset table.
const Table = "transactions"

// Layouts of the stored timestamp and date_only columns.
const (
	TimestampLayout = "2006-01-02 15:04:05"
	DateLayout      = "2006-01-02"
)

// DefaultPeriodDays applies to unrecognized relative period tags.
const DefaultPeriodDays = 30

// ErrUnknownDimension is returned when a grouping column is not a dataset dimension.
var ErrUnknownDimension = errors.New("unknown dimension")

var periodDays = map[string]int{
	models.PeriodLast7Days:  7,
	models.PeriodLast30Days: 30,
	models.PeriodLast90Days: 90,
}

// PeriodDays returns the number of days a relative period tag covers.
func PeriodDays(period string) int {
	if n, ok := periodDays[strings.ToLower(strings.TrimSpace(period))]; ok {
		return n
	}
	return DefaultPeriodDays
}

// Predicate is a boolean SQL condition and its bound values, in placeholder order.
type Predicate struct {
	SQL  string
	Args []any
}

// True is the predicate that admits every row.
func True() Predicate {
	return Predicate{SQL: "1=1"}
}

// IsTrue reports whether p places no restriction.
func (p Predicate) IsTrue() bool {
	return p.SQL == "" || p.SQL == "1=1"
}

// And composes p and o. Neither operand is modified.
func (p Predicate) And(o Predicate) Predicate {
	switch {
	case o.IsTrue():
		return p.clone()
	case p.IsTrue():
		return o.clone()
	}
	args := make([]any, 0, len(p.Args)+len(o.Args))
	args = append(args, p.Args...)
	args = append(args, o.Args...)
	return Predicate{SQL: p.SQL + " AND " + o.SQL, Args: args}
}

func (p Predicate) clone() Predicate {
	if p.SQL == "" {
		return True()
	}
	return Predicate{SQL: p.SQL, Args: append([]any(nil), p.Args...)}
}

// QueryBuilder constructs parameterized SQL. All methods are pure apart from
// reading the clock. Zero value is ready to use.
type QueryBuilder struct {
	// Now overrides the clock used to resolve relative periods.
	Now func() time.Time
}

func (b QueryBuilder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Predicate ANDs one equality clause per set field of f, in dimension order.
func (b QueryBuilder) Predicate(f models.Filters) Predicate {
	vals := f.Values()
	if len(vals) == 0 {
		return True()
	}
	clauses := make([]string, len(vals))
	args := make([]any, len(vals))
	for i, v := range vals {
		clauses[i] = string(v.Dimension) + " = ?"
		args[i] = v.Value
	}
	return Predicate{SQL: strings.Join(clauses, " AND "), Args: args}
}

// WithTimeWindow extends p with the bounds of tw. A relative period and
// explicit from/to bounds compose; all compare against the raw timestamp.
func (b QueryBuilder) WithTimeWindow(p Predicate, tw *models.TimeWindow) Predicate {
	if tw.IsZero() {
		return p.clone()
	}

	var clauses []string
	var args []any
	if tw.Period != "" {
		since := b.now().AddDate(0, 0, -PeriodDays(tw.Period))
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, since.Format(DateLayout))
	}
	if tw.From != "" {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, tw.From)
	}
	if tw.To != "" {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, endOfDay(tw.To))
	}
	return p.And(Predicate{SQL: strings.Join(clauses, " AND "), Args: args})
}

// Where resolves filters and time window into one predicate.
func (b QueryBuilder) Where(f models.Filters, tw *models.TimeWindow) Predicate {
	return b.WithTimeWindow(b.Predicate(f), tw)
}

// endOfDay makes a bare date inclusive of the whole day. Anything else is
// passed through unchanged.
func endOfDay(s string) string {
	if _, err := time.Parse(DateLayout, s); err == nil {
		return s + " 23:59:59"
	}
	return s
}

func columns(dims []models.Dimension) (string, error) {
	names := make([]string, len(dims))
	for i, d := range dims {
		if !d.Valid() {
			return "", fmt.Errorf("%w: %q", ErrUnknownDimension, d)
		}
		names[i] = string(d)
	}
	return strings.Join(names, ", "), nil
}
