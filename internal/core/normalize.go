package core

import (
	"fmt"
	"strconv"
)

// Normalize applies the district and category tables by exact match. Values
// without an entry pass through verbatim with one UnmappedName warning per
// distinct value and table, unless the value already is a canonical name, so
// normalizing canonical records again is a silent no-op. Names are not
// trimmed or case folded. Rows with a negative population are dropped.
func Normalize(raw []RawRecord, maps MappingSet) ([]CanonicalRecord, []Warning) {
	canonicalDistricts := valueSet(maps.Districts)
	canonicalCategories := valueSet(maps.Categories)
	warned := make(map[string]struct{})
	var warnings []Warning
	unmapped := func(field, value string, line int) {
		key := field + "\x00" + value
		if _, seen := warned[key]; seen {
			return
		}
		warned[key] = struct{}{}
		warnings = append(warnings, Warning{
			Kind:    WarnUnmappedName,
			Field:   field,
			Value:   value,
			Line:    line,
			Message: "no mapping entry, value kept as is",
		})
	}

	out := make([]CanonicalRecord, 0, len(raw))
	for _, r := range raw {
		if r.Population < 0 {
			warnings = append(warnings, Warning{
				Kind:    WarnDroppedRow,
				Field:   "Population",
				Value:   strconv.FormatInt(r.Population, 10),
				Line:    r.Line,
				Message: fmt.Sprintf("negative population for %s / %s", r.District, r.Category),
			})
			continue
		}
		district, ok := maps.Districts[r.District]
		if !ok {
			district = r.District
			if _, canonical := canonicalDistricts[district]; !canonical {
				unmapped("District", district, r.Line)
			}
		}
		category, ok := maps.Categories[r.Category]
		if !ok {
			category = r.Category
			if _, canonical := canonicalCategories[category]; !canonical {
				unmapped("Crime Category", category, r.Line)
			}
		}
		out = append(out, CanonicalRecord{
			District:        district,
			Category:        category,
			RawDistrict:     r.District,
			RawCategory:     r.Category,
			Population:      r.Population,
			Counts:          cloneCounts(r.Counts),
			CrimesOverYears: r.CrimesOverYears,
			CrimePercentage: r.CrimePercentage,
		})
	}
	return out, warnings
}

// Renormalize runs Normalize over records that are already canonical. The
// original raw labels are preserved.
func Renormalize(records []CanonicalRecord, maps MappingSet) ([]CanonicalRecord, []Warning) {
	raw := make([]RawRecord, len(records))
	for i, r := range records {
		raw[i] = RawRecord{
			District:        r.District,
			Category:        r.Category,
			Population:      r.Population,
			Counts:          r.Counts,
			CrimesOverYears: r.CrimesOverYears,
			CrimePercentage: r.CrimePercentage,
		}
	}
	out, warnings := Normalize(raw, maps)
	for i := range out {
		out[i].RawDistrict = records[i].RawDistrict
		out[i].RawCategory = records[i].RawCategory
	}
	return out, warnings
}

func valueSet(m map[string]string) map[string]struct{} {
	set := make(map[string]struct{}, len(m))
	for _, v := range m {
		set[v] = struct{}{}
	}
	return set
}

func cloneCounts(counts map[int]Count) map[int]Count {
	if counts == nil {
		return nil
	}
	out := make(map[int]Count, len(counts))
	for y, c := range counts {
		out[y] = c
	}
	return out
}
