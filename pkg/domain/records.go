// Package domain holds the entities of the crime statistics pipeline: raw
// and canonical records, tidy observations, metric rows, district boundaries
// and the name mapping configuration. Entities are immutable value rows.
package domain

import (
	"encoding/json"
	"strconv"

	"github.com/twpayne/go-geom"
)

// Count is a case count for one reporting year. A missing cell is distinct
// from zero.
type Count struct {
	Value int64
	Valid bool
}

// CountOf returns a present count.
func CountOf(v int64) Count { return Count{Value: v, Valid: true} }

// MissingCount returns an absent count.
func MissingCount() Count { return Count{} }

func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(c.Value, 10)), nil
}

func (c *Count) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Count{}
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = CountOf(v)
	return nil
}

// Optional is a float that may be undefined. Undefined values are never
// coerced to zero: they marshal to null and render as empty cells.
type Optional struct {
	Value float64
	Valid bool
}

// Some returns a defined value.
func Some(v float64) Optional { return Optional{Value: v, Valid: true} }

// Undefined returns an undefined value.
func Undefined() Optional { return Optional{} }

// Get returns the value and whether it is defined.
func (o Optional) Get() (float64, bool) { return o.Value, o.Valid }

// Any returns the value or nil, the representation used in result rows.
func (o Optional) Any() any {
	if !o.Valid {
		return nil
	}
	return o.Value
}

func (o Optional) String() string {
	if !o.Valid {
		return ""
	}
	return strconv.FormatFloat(o.Value, 'f', -1, 64)
}

func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *Optional) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = Optional{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// RawRecord is one (district, category) row as received from the source.
type RawRecord struct {
	Line            int           `json:"line,omitempty"`
	District        string        `json:"district"`
	Category        string        `json:"category"`
	Population      int64         `json:"population"`
	Counts          map[int]Count `json:"counts"`
	CrimesOverYears Optional      `json:"crimes_over_the_years"`
	CrimePercentage Optional      `json:"crime_percentage"`
}

// CanonicalRecord is a RawRecord after name normalization. The raw labels are
// kept for traceability.
type CanonicalRecord struct {
	District        string        `json:"district"`
	Category        string        `json:"category"`
	RawDistrict     string        `json:"raw_district"`
	RawCategory     string        `json:"raw_category"`
	Population      int64         `json:"population"`
	Counts          map[int]Count `json:"counts"`
	CrimesOverYears Optional      `json:"crimes_over_the_years"`
	CrimePercentage Optional      `json:"crime_percentage"`
}

// Count returns the count for year and whether the year column exists.
func (r CanonicalRecord) Count(year int) (Count, bool) {
	c, ok := r.Counts[year]
	return c, ok
}

// TidyObservation is one (district, category, year) observation.
type TidyObservation struct {
	District   string `json:"district"`
	Category   string `json:"category"`
	Year       int    `json:"year"`
	Count      Count  `json:"cases"`
	Population int64  `json:"population"`
}

// GroupKey names a field MetricRows can be grouped by.
type GroupKey string

const (
	KeyDistrict GroupKey = "district"
	KeyCategory GroupKey = "category"
	KeyYear     GroupKey = "year"
)

// ReduceFunc reduces a group of values to one.
type ReduceFunc string

const (
	ReduceSum  ReduceFunc = "sum"
	ReduceMean ReduceFunc = "mean"
)

// Reducer selects the reduction applied per field when aggregating.
// Population has no default: summing a district population repeated across
// categories inflates it, so callers choose.
type Reducer struct {
	Count      ReduceFunc `json:"count"`
	Population ReduceFunc `json:"population"`
}

// ValueField selects the MetricRow value a share is computed over.
type ValueField string

const (
	FieldCount ValueField = "count"
	FieldRate  ValueField = "rate"
)

// MetricRow is an observation or an aggregate of observations with derived
// rate and share. Fields not part of GroupedBy are zero.
type MetricRow struct {
	GroupedBy    []GroupKey `json:"grouped_by"`
	District     string     `json:"district,omitempty"`
	Category     string     `json:"category,omitempty"`
	Year         int        `json:"year,omitempty"`
	Count        Optional   `json:"cases"`
	Population   float64    `json:"population"`
	Rate         Optional   `json:"crime_rate"`
	Share        Optional   `json:"share"`
	Observations int        `json:"observations"`
}

// Has reports whether the row was grouped by key.
func (m MetricRow) Has(key GroupKey) bool {
	for _, k := range m.GroupedBy {
		if k == key {
			return true
		}
	}
	return false
}

// Value returns the selected field.
func (m MetricRow) Value(field ValueField) Optional {
	if field == FieldRate {
		return m.Rate
	}
	return m.Count
}

// Bounds is an axis-aligned bounding box in the boundary's coordinates.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Center returns the midpoint of the box.
func (b Bounds) Center() (float64, float64) {
	return (b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2
}

// DistrictBoundary is an external polygon keyed by its shape name.
type DistrictBoundary struct {
	Name       string         `json:"name"`
	Geometry   geom.T         `json:"-"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Bounds returns the geometry's bounding box, or false without geometry.
func (b DistrictBoundary) Bounds() (Bounds, bool) {
	if b.Geometry == nil {
		return Bounds{}, false
	}
	gb := b.Geometry.Bounds()
	if gb == nil || gb.IsEmpty() {
		return Bounds{}, false
	}
	return Bounds{MinX: gb.Min(0), MinY: gb.Min(1), MaxX: gb.Max(0), MaxY: gb.Max(1)}, true
}

// GeoMetricRow is a MetricRow joined to a boundary. Unmatched rows keep their
// metrics and carry Matched=false.
type GeoMetricRow struct {
	MetricRow
	BoundaryKey string  `json:"boundary_key"`
	Matched     bool    `json:"matched"`
	Bounds      *Bounds `json:"bounds,omitempty"`
}
