package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Tidy unpivots the year columns: one observation per record per year,
// record-major and year-minor, population copied unchanged. A declared year
// absent from a record is a SchemaError; a present but empty cell yields an
// observation with a missing count.
func Tidy(records []CanonicalRecord, years []int) ([]TidyObservation, error) {
	out := make([]TidyObservation, 0, len(records)*len(years))
	for i, r := range records {
		for _, year := range years {
			count, ok := r.Count(year)
			if !ok {
				return nil, &SchemaError{
					Column: strconv.Itoa(year),
					Record: fmt.Sprintf("#%d (%s / %s)", i+1, r.District, r.Category),
				}
			}
			out = append(out, TidyObservation{
				District:   r.District,
				Category:   r.Category,
				Year:       year,
				Count:      count,
				Population: r.Population,
			})
		}
	}
	return out, nil
}

// DetectYearColumns returns the four digit year headers in header order.
func DetectYearColumns(header []string) []int {
	var years []int
	seen := make(map[int]struct{})
	for _, h := range header {
		h = strings.TrimSpace(h)
		if len(h) != 4 {
			continue
		}
		year, err := strconv.Atoi(h)
		if err != nil || year < 1900 || year > 2100 {
			continue
		}
		if _, dup := seen[year]; dup {
			continue
		}
		seen[year] = struct{}{}
		years = append(years, year)
	}
	return years
}
