// Package metric is the closed registry of computable metrics. Each entry
// pairs one SQL aggregate expression with one display format.
package metric

import (
	"sort"
	"strings"
)

// Canonical metric names.
const (
	FailureRate          = "failure_rate"
	Volume               = "volume"
	Count                = "count"
	AvgAmount            = "avg_amount"
	AvgTransactionAmount = "avg_transaction_amount"
	TotalAmount          = "total_amount"
	FraudRate            = "fraud_rate"
	ReviewRate           = "review_rate"

	// Multi-column operations that are not a single registry expression.
	FailureCodes      = "failure_codes"
	TopFailureReasons = "top_failure_reasons"
	ExecutiveSummary  = "executive_summary"
)

// Shared SQL fragments. Literals here are constants, never request data.
const (
	failedCountExpr = "SUM(CASE WHEN status = 'Failed' THEN 1 ELSE 0 END)"
	failureRateExpr = "ROUND(100.0 * " + failedCountExpr + " / NULLIF(COUNT(*), 0), 2)"
)

// Metric is a registry entry.
type Metric struct {
	Name     string
	Expr     string
	Class    FormatClass
	Decimals int
	Formula  string
}

var registry = map[string]Metric{
	FailureRate: {
		Name:     FailureRate,
		Expr:     failureRateExpr,
		Class:    FormatPercent,
		Decimals: 2,
		Formula:  "(failed_transactions / total_transactions) * 100",
	},
	Volume: {
		Name:    Volume,
		Expr:    "COUNT(*)",
		Class:   FormatCount,
		Formula: "COUNT(*)",
	},
	Count: {
		Name:    Count,
		Expr:    "COUNT(*)",
		Class:   FormatCount,
		Formula: "COUNT(*)",
	},
	AvgAmount: {
		Name:     AvgAmount,
		Expr:     "ROUND(AVG(amount), 2)",
		Class:    FormatCurrency,
		Decimals: 2,
		Formula:  "SUM(amount) / COUNT(*)",
	},
	AvgTransactionAmount: {
		Name:     AvgTransactionAmount,
		Expr:     "ROUND(AVG(amount), 2)",
		Class:    FormatCurrency,
		Decimals: 2,
		Formula:  "SUM(amount) / COUNT(*)",
	},
	TotalAmount: {
		Name:     TotalAmount,
		Expr:     "ROUND(SUM(amount), 2)",
		Class:    FormatCurrency,
		Decimals: 2,
		Formula:  "SUM(amount)",
	},
	FraudRate: {
		Name:     FraudRate,
		Expr:     "ROUND(100.0 * SUM(CASE WHEN fraud_flag = 1 THEN 1 ELSE 0 END) / NULLIF(COUNT(*), 0), 4)",
		Class:    FormatPercent,
		Decimals: 4,
		Formula:  "(fraud_flagged / total_transactions) * 100",
	},
	ReviewRate: {
		Name:     ReviewRate,
		Expr:     "ROUND(100.0 * SUM(CASE WHEN review_flag = 1 THEN 1 ELSE 0 END) / NULLIF(COUNT(*), 0), 2)",
		Class:    FormatPercent,
		Decimals: 2,
		Formula:  "(review_flagged / total_transactions) * 100",
	},
}

var specials = map[string]bool{
	FailureCodes:      true,
	TopFailureReasons: true,
	ExecutiveSummary:  true,
}

// Canonical returns name in the form the registry stores it.
func Canonical(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalize(name string) string { return Canonical(name) }

// Lookup returns the registry entry for name.
func Lookup(name string) (Metric, bool) {
	m, ok := registry[normalize(name)]
	return m, ok
}

// MustLookup is Lookup for names the caller has already validated.
func MustLookup(name string) Metric {
	m, ok := Lookup(name)
	if !ok {
		panic("metric: unregistered metric " + name)
	}
	return m
}

// IsSpecial reports whether name selects a multi-column operation.
func IsSpecial(name string) bool {
	return specials[normalize(name)]
}

// Supported reports whether name is a registry entry or special operation.
func Supported(name string) bool {
	_, ok := Lookup(name)
	return ok || IsSpecial(name)
}

// Names returns every supported metric name, sorted.
func Names() []string {
	names := make([]string, 0, len(registry)+len(specials))
	for n := range registry {
		names = append(names, n)
	}
	for n := range specials {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RegistryNames returns the single-expression metric names, sorted.
func RegistryNames() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FailedCountExpr counts rows whose status is Failed.
func FailedCountExpr() string { return failedCountExpr }
