// Package models contains shared data models used across the InsightX codebase.
package models

import (
	"encoding/json"
	"strings"
)

// Dimension is one of the fixed categorical columns of the transaction dataset.
// Dimension names are the only identifiers an intent may place in query text.
type Dimension string

const (
	DimDevice        Dimension = "device"
	DimState         Dimension = "state"
	DimAgeGroup      Dimension = "age_group"
	DimNetwork       Dimension = "network"
	DimCategory      Dimension = "category"
	DimPaymentMethod Dimension = "payment_method"
	DimStatus        Dimension = "status"
)

// Dimensions lists every categorical dimension in predicate order.
var Dimensions = []Dimension{
	DimDevice,
	DimState,
	DimAgeGroup,
	DimNetwork,
	DimCategory,
	DimPaymentMethod,
	DimStatus,
}

// dimensionAliases maps accepted alternate spellings to their dimension.
var dimensionAliases = map[string]Dimension{
	"region":  DimState,
	"age":     DimAgeGroup,
	"payment": DimPaymentMethod,
}

// ParseDimension normalizes s to a Dimension. The result may be invalid;
// callers check Valid before using it as a column.
func ParseDimension(s string) Dimension {
	key := strings.ToLower(strings.TrimSpace(s))
	if d, ok := dimensionAliases[key]; ok {
		return d
	}
	return Dimension(key)
}

// Valid reports whether d names a known dataset column.
func (d Dimension) Valid() bool {
	for _, known := range Dimensions {
		if d == known {
			return true
		}
	}
	return false
}

func (d *Dimension) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*d = ParseDimension(s)
	return nil
}

// Filters restricts an analysis to rows whose categorical columns equal the
// given values. An empty field means no restriction on that dimension.
type Filters struct {
	Device        string `json:"device,omitempty"         validate:"omitempty,max=64"`
	State         string `json:"state,omitempty"          validate:"omitempty,max=64"`
	AgeGroup      string `json:"age_group,omitempty"      validate:"omitempty,max=64"`
	Network       string `json:"network,omitempty"        validate:"omitempty,max=64"`
	Category      string `json:"category,omitempty"       validate:"omitempty,max=64"`
	PaymentMethod string `json:"payment_method,omitempty" validate:"omitempty,max=64"`
	Status        string `json:"status,omitempty"         validate:"omitempty,max=64"`
}

// With returns a copy of f with dimension d set to v.
func (f Filters) With(d Dimension, v string) Filters {
	switch d {
	case DimDevice:
		f.Device = v
	case DimState:
		f.State = v
	case DimAgeGroup:
		f.AgeGroup = v
	case DimNetwork:
		f.Network = v
	case DimCategory:
		f.Category = v
	case DimPaymentMethod:
		f.PaymentMethod = v
	case DimStatus:
		f.Status = v
	}
	return f
}

// FilterValue is a single set dimension of a Filters value.
type FilterValue struct {
	Dimension Dimension
	Value     string
}

// Get returns the value set for d, or "" when unrestricted.
func (f Filters) Get(d Dimension) string {
	switch d {
	case DimDevice:
		return f.Device
	case DimState:
		return f.State
	case DimAgeGroup:
		return f.AgeGroup
	case DimNetwork:
		return f.Network
	case DimCategory:
		return f.Category
	case DimPaymentMethod:
		return f.PaymentMethod
	case DimStatus:
		return f.Status
	}
	return ""
}

// Values returns the set dimensions in predicate order.
func (f Filters) Values() []FilterValue {
	var out []FilterValue
	for _, d := range Dimensions {
		if v := f.Get(d); v != "" {
			out = append(out, FilterValue{Dimension: d, Value: v})
		}
	}
	return out
}

// IsEmpty returns true if no dimension is restricted.
func (f Filters) IsEmpty() bool {
	return len(f.Values()) == 0
}

// Label renders the set dimensions as "device: Android & network: 4G".
func (f Filters) Label() string {
	vals := f.Values()
	if len(vals) == 0 {
		return "All"
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v.Dimension) + ": " + v.Value
	}
	return strings.Join(parts, " & ")
}

// UnmarshalJSON accepts "region" as an alias of "state".
func (f *Filters) UnmarshalJSON(b []byte) error {
	type plain Filters
	var aux struct {
		plain
		Region string `json:"region"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*f = Filters(aux.plain)
	if f.State == "" {
		f.State = aux.Region
	}
	return nil
}
