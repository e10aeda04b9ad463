package core

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// ReconcileDistrictName maps a district label to the boundary dataset's key:
// trim, spelling correction by exact match, English title case, then the
// mapping set's suffix. A name already carrying the suffix is not suffixed
// twice.
func ReconcileDistrictName(name string, maps MappingSet) string {
	cleaned := strings.TrimSpace(norm.NFKC.String(name))
	if fixed, ok := maps.Corrections[cleaned]; ok {
		cleaned = fixed
	}
	// Casers are stateful and must not be shared across goroutines.
	titled := cases.Title(language.English).String(cleaned)
	suffix := maps.Suffix
	if suffix == "" || strings.HasSuffix(titled, suffix) {
		return titled
	}
	return titled + suffix
}

// BoundaryKey canonicalizes a boundary's own name. Boundary names are the
// authority and are only trimmed.
func BoundaryKey(b DistrictBoundary) string {
	return strings.TrimSpace(b.Name)
}

// JoinToBoundaries attaches each metric row to the boundary whose key equals
// the row's reconciled district name. Every row yields exactly one result in
// input order; rows without a boundary are marked unmatched, never dropped.
// Boundaries without rows are not emitted. An empty boundary set fails with
// ErrBoundaryDataUnavailable.
func JoinToBoundaries(rows []MetricRow, boundaries []DistrictBoundary, maps MappingSet) ([]GeoMetricRow, error) {
	if len(boundaries) == 0 {
		return nil, ErrBoundaryDataUnavailable
	}
	index := make(map[string]DistrictBoundary, len(boundaries))
	for _, b := range boundaries {
		key := BoundaryKey(b)
		if _, dup := index[key]; dup {
			continue
		}
		index[key] = b
	}
	out := make([]GeoMetricRow, 0, len(rows))
	for _, row := range rows {
		geo := GeoMetricRow{MetricRow: row}
		if row.District != "" {
			geo.BoundaryKey = ReconcileDistrictName(row.District, maps)
			if b, ok := index[geo.BoundaryKey]; ok {
				geo.Matched = true
				if bounds, ok := b.Bounds(); ok {
					geo.Bounds = &bounds
				}
			}
		}
		out = append(out, geo)
	}
	return out, nil
}

// UnmatchedDistricts lists the distinct districts of unmatched rows in first
// seen order.
func UnmatchedDistricts(rows []GeoMetricRow) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, r := range rows {
		if r.Matched {
			continue
		}
		if _, dup := seen[r.District]; dup {
			continue
		}
		seen[r.District] = struct{}{}
		out = append(out, r.District)
	}
	return out
}
