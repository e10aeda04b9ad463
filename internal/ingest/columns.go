package ingest

import (
	"strconv"
	"strings"
)

// Columns lists the accepted header names per input column. Matching is case
// insensitive after trimming whitespace and a byte order mark.
type Columns struct {
	District        []string `json:"district"`
	Category        []string `json:"category"`
	Population      []string `json:"population"`
	CrimesOverYears []string `json:"crimes_over_the_years"`
	CrimePercentage []string `json:"crime_percentage"`
}

// DefaultColumns returns the header candidates of the police district table.
func DefaultColumns() Columns {
	return Columns{
		District:        []string{"District", "Police District", "district_name"},
		Category:        []string{"Crime Category", "Category", "crime_type"},
		Population:      []string{"Population", "Pop"},
		CrimesOverYears: []string{"Crimes Over the Years", "Total Crimes"},
		CrimePercentage: []string{"Crime Percentage", "Crime %"},
	}
}

func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	return Columns{
		District:        pick(c.District, d.District),
		Category:        pick(c.Category, d.Category),
		Population:      pick(c.Population, d.Population),
		CrimesOverYears: pick(c.CrimesOverYears, d.CrimesOverYears),
		CrimePercentage: pick(c.CrimePercentage, d.CrimePercentage),
	}
}

func pick(custom, fallback []string) []string {
	if len(custom) > 0 {
		return custom
	}
	return fallback
}

func cleanHeader(h string) string {
	return strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
}

// findColumn returns the header entry matching the first candidate found, or
// "" when none matches.
func findColumn(header, candidates []string) string {
	for _, cand := range candidates {
		for _, col := range header {
			if strings.EqualFold(cleanHeader(col), cand) {
				return col
			}
		}
	}
	return ""
}

func cleanHeaders(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = cleanHeader(h)
	}
	return out
}

// yearColumns maps each year to its header entry.
func yearColumns(header []string) map[int]string {
	out := make(map[int]string)
	for _, col := range header {
		if y, err := strconv.Atoi(cleanHeader(col)); err == nil {
			if _, dup := out[y]; !dup {
				out[y] = col
			}
		}
	}
	return out
}
