package metric

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CurrencySymbol prefixes currency values.
const CurrencySymbol = "₹"

// FormatClass selects how a raw value is rendered.
type FormatClass int

const (
	FormatCount FormatClass = iota
	FormatCurrency
	FormatPercent
)

func (c FormatClass) String() string {
	switch c {
	case FormatCurrency:
		return "currency"
	case FormatPercent:
		return "percent"
	default:
		return "count"
	}
}

// Format renders v using the metric's format class.
func (m Metric) Format(v float64) string {
	return FormatValue(m.Class, v, m.Decimals)
}

// FormatValue renders v deterministically for class c.
func FormatValue(c FormatClass, v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	switch c {
	case FormatPercent:
		return strconv.FormatFloat(v, 'f', decimals, 64) + "%"
	case FormatCurrency:
		p := message.NewPrinter(language.English)
		if v < 0 {
			return "-" + CurrencySymbol + p.Sprintf("%.*f", decimals, -v)
		}
		return CurrencySymbol + p.Sprintf("%.*f", decimals, v)
	default:
		return FormatCountValue(v)
	}
}

// FormatCountValue renders v as a grouped integer ("1,234").
func FormatCountValue(v float64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%d", int64(math.Round(v)))
}

// FormatDifference renders a signed absolute and percentage change.
func FormatDifference(diff, pct float64) string {
	return signed(diff, 2) + " (" + signed(pct, 1) + "%)"
}

func signed(v float64, decimals int) string {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	if v >= 0 {
		return "+" + s
	}
	return s
}

// Title renders a metric or column name for display: "avg_amount" → "Avg Amount".
func Title(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}
