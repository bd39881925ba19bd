// Package guard rejects intents the dataset cannot answer before any query
// is compiled.
package guard

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/insightx/pkg/metric"
	"github.com/kiranshivaraju/insightx/pkg/models"
)

// DefaultVocabulary lists the closed value sets checked by the guard.
// Dimensions not listed accept any value.
var DefaultVocabulary = map[models.Dimension][]string{
	models.DimDevice:  {"Android", "iOS", "Web"},
	models.DimNetwork: {"3G", "4G", "5G", "WiFi"},
}

// vocabNouns names each vocabulary in rejection messages.
var vocabNouns = map[models.Dimension]string{
	models.DimDevice:  "device type",
	models.DimNetwork: "network type",
}

// Availability reports whether the dataset can serve queries.
type Availability interface {
	Available() error
}

// Guard validates intents against the metric registry and value vocabularies.
// It never reads the dataset itself.
type Guard struct {
	vocab map[models.Dimension][]string
	avail Availability
}

// Option configures a Guard.
type Option func(*Guard)

// WithAvailability makes Check reject every intent while a is unavailable.
func WithAvailability(a Availability) Option {
	return func(g *Guard) { g.avail = a }
}

// WithVocabulary replaces the accepted values for one dimension.
func WithVocabulary(d models.Dimension, values []string) Option {
	return func(g *Guard) { g.vocab[d] = append([]string(nil), values...) }
}

// New returns a Guard using DefaultVocabulary.
func New(opts ...Option) *Guard {
	g := &Guard{vocab: make(map[models.Dimension][]string, len(DefaultVocabulary))}
	for d, vals := range DefaultVocabulary {
		g.vocab[d] = vals
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Vocabulary returns a copy of the checked value sets.
func (g *Guard) Vocabulary() map[models.Dimension][]string {
	out := make(map[models.Dimension][]string, len(g.vocab))
	for d, vals := range g.vocab {
		out[d] = append([]string(nil), vals...)
	}
	return out
}

// Check reports whether in is computable and, if not, why.
func (g *Guard) Check(in models.Intent) (bool, string) {
	if in.Metric != "" && !metric.Supported(in.Metric) {
		return false, fmt.Sprintf("Metric '%s' is not supported. Available metrics: %s",
			in.Metric, strings.Join(metric.Names(), ", "))
	}

	op := in.Op()
	if reason := checkMetricForOperation(in.Metric, op); reason != "" {
		return false, reason
	}
	if reason := checkTimeWindow(in.TimeWindow); reason != "" {
		return false, reason
	}

	filterSets := append([]models.Filters{in.Filters}, op.Segments()...)
	for _, f := range filterSets {
		if reason := g.checkFilters(f); reason != "" {
			return false, reason
		}
	}

	for _, d := range op.GroupDimensions() {
		if !d.Valid() {
			return false, fmt.Sprintf("Cannot group by '%s'. Valid dimensions: %s", d, dimensionList())
		}
	}

	if err := op.Validate(); err != nil {
		return false, err.Error()
	}

	if g.avail != nil {
		if err := g.avail.Available(); err != nil {
			return false, err.Error()
		}
	}
	return true, ""
}

// checkMetricForOperation rejects the multi-column metrics where the
// operation evaluates a single registry expression.
func checkMetricForOperation(name string, op models.Operation) string {
	if !metric.IsSpecial(name) {
		return ""
	}
	switch op.(type) {
	case models.GroupedAggregation, models.SegmentComparison, models.TimeSeries:
		return fmt.Sprintf("Metric '%s' cannot be used with %s. Use one of: %s",
			metric.Canonical(name), op.Kind(), strings.Join(metric.RegistryNames(), ", "))
	}
	return ""
}

func checkTimeWindow(tw *models.TimeWindow) string {
	if err := tw.Validate(); err != nil {
		return "Invalid time window: " + err.Error()
	}
	return ""
}

func (g *Guard) checkFilters(f models.Filters) string {
	for _, v := range f.Values() {
		vals, ok := g.vocab[v.Dimension]
		if !ok {
			continue
		}
		if _, found := canonical(vals, v.Value); !found {
			noun := vocabNouns[v.Dimension]
			if noun == "" {
				noun = string(v.Dimension)
			}
			return fmt.Sprintf("Unknown %s: %s. Valid options: %s", noun, v.Value, strings.Join(vals, ", "))
		}
	}
	return ""
}

// Normalize lowercases the metric name and rewrites vocabulary values to
// their canonical spelling ("android" → "Android") so equality predicates
// match stored rows.
func (g *Guard) Normalize(in models.Intent) models.Intent {
	in.Metric = metric.Canonical(in.Metric)
	in.Filters = g.normalizeFilters(in.Filters)
	if c, ok := in.Op().(models.SegmentComparison); ok {
		c.A = g.normalizeFilters(c.A)
		c.B = g.normalizeFilters(c.B)
		in.Operation = c
	}
	return in
}

func (g *Guard) normalizeFilters(f models.Filters) models.Filters {
	for d, vals := range g.vocab {
		if v, ok := canonical(vals, f.Get(d)); ok {
			f = f.With(d, v)
		}
	}
	return f
}

func canonical(vals []string, v string) (string, bool) {
	for _, known := range vals {
		if strings.EqualFold(known, strings.TrimSpace(v)) {
			return known, true
		}
	}
	return "", false
}

func dimensionList() string {
	names := make([]string, len(models.Dimensions))
	for i, d := range models.Dimensions {
		names[i] = string(d)
	}
	return strings.Join(names, ", ")
}
