package core

import (
	"sort"
	"strconv"
)

// Selection filters tidy observations. An empty list selects everything.
type Selection struct {
	Years      []int
	Districts  []string
	Categories []string
}

func (s Selection) matchesRecord(district, category string) bool {
	return (len(s.Districts) == 0 || containsString(s.Districts, district)) &&
		(len(s.Categories) == 0 || containsString(s.Categories, category))
}

// Dataset is one load of the input: canonical records, the reshaped table,
// the boundary set and the warnings raised while building them. It is
// immutable and safe for concurrent use.
type Dataset struct {
	records    []CanonicalRecord
	years      []int
	tidy       []TidyObservation
	tidyErr    error
	boundaries []DistrictBoundary
	mappings   MappingSet
	warnings   []Warning
	districts  []string
	categories []string
}

// NewDataset normalizes and reshapes raw records eagerly. A reshape failure
// is kept and returned by the computations that need the tidy table, so views
// over canonical records keep working.
func NewDataset(raw []RawRecord, years []int, boundaries []DistrictBoundary, maps MappingSet, loadWarnings ...Warning) *Dataset {
	records, warnings := Normalize(raw, maps)
	ds := &Dataset{
		records:    records,
		years:      append([]int(nil), years...),
		boundaries: append([]DistrictBoundary(nil), boundaries...),
		mappings:   maps.Clone(),
		warnings:   append(append([]Warning(nil), loadWarnings...), warnings...),
	}
	ds.tidy, ds.tidyErr = Tidy(records, ds.years)
	seenD := make(map[string]struct{})
	seenC := make(map[string]struct{})
	for _, r := range records {
		if _, ok := seenD[r.District]; !ok {
			seenD[r.District] = struct{}{}
			ds.districts = append(ds.districts, r.District)
		}
		if _, ok := seenC[r.Category]; !ok {
			seenC[r.Category] = struct{}{}
			ds.categories = append(ds.categories, r.Category)
		}
	}
	return ds
}

// Records returns the canonical records in input order.
func (d *Dataset) Records() []CanonicalRecord { return append([]CanonicalRecord(nil), d.records...) }

// SelectRecords returns the canonical records matching the selection's
// district and category filters.
func (d *Dataset) SelectRecords(sel Selection) []CanonicalRecord {
	var out []CanonicalRecord
	for _, r := range d.records {
		if sel.matchesRecord(r.District, r.Category) {
			out = append(out, r)
		}
	}
	return out
}

// Years returns the declared reporting years.
func (d *Dataset) Years() []int { return append([]int(nil), d.years...) }

// HasYear reports whether year is a declared reporting year.
func (d *Dataset) HasYear(year int) bool {
	for _, y := range d.years {
		if y == year {
			return true
		}
	}
	return false
}

// Districts returns distinct canonical districts in first seen order.
func (d *Dataset) Districts() []string { return append([]string(nil), d.districts...) }

// Categories returns distinct canonical categories in first seen order.
func (d *Dataset) Categories() []string { return append([]string(nil), d.categories...) }

// Mappings returns a copy of the mapping set the dataset was built with.
func (d *Dataset) Mappings() MappingSet { return d.mappings.Clone() }

func (d *Dataset) MappingVersion() string { return d.mappings.Version }

// Warnings returns load and normalization warnings.
func (d *Dataset) Warnings() []Warning { return append([]Warning(nil), d.warnings...) }

// Tidy returns the reshaped table or the schema error that prevented it.
func (d *Dataset) Tidy() ([]TidyObservation, error) {
	if d.tidyErr != nil {
		return nil, d.tidyErr
	}
	return append([]TidyObservation(nil), d.tidy...), nil
}

// Observations filters the tidy table. Selecting a year that is not a
// reporting year is a SchemaError.
func (d *Dataset) Observations(sel Selection) ([]TidyObservation, error) {
	if d.tidyErr != nil {
		return nil, d.tidyErr
	}
	for _, y := range sel.Years {
		if !d.HasYear(y) {
			return nil, &SchemaError{Column: strconv.Itoa(y), Reason: "not a reporting year"}
		}
	}
	var out []TidyObservation
	for _, o := range d.tidy {
		if len(sel.Years) > 0 && !containsInt(sel.Years, o.Year) {
			continue
		}
		if !sel.matchesRecord(o.District, o.Category) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// Boundaries returns the boundary set or ErrBoundaryDataUnavailable.
func (d *Dataset) Boundaries() ([]DistrictBoundary, error) {
	if len(d.boundaries) == 0 {
		return nil, ErrBoundaryDataUnavailable
	}
	return append([]DistrictBoundary(nil), d.boundaries...), nil
}

// BoundaryNames returns the sorted boundary keys.
func (d *Dataset) BoundaryNames() []string {
	names := make([]string, 0, len(d.boundaries))
	for _, b := range d.boundaries {
		names = append(names, BoundaryKey(b))
	}
	sort.Strings(names)
	return names
}

func containsString(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

func containsInt(list []int, target int) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
