package core

import (
	"testing"

	"crimestats/pkg/domain"
)

func TestNormalizeAppliesTablesAndWarnsOnce(t *testing.T) {
	raw := append(fixtureRaw(), RawRecord{Line: 8, District: "Mulathivu", Category: "Arson", Population: 5, Counts: counts(1, 1, 1)})
	records, warnings := Normalize(raw, domain.DefaultMappings())
	if len(records) != len(raw) {
		t.Fatalf("expected %d records, got %d", len(raw), len(records))
	}
	if records[0].District != "Colombo" || records[1].Category != "Theft > 5000" {
		t.Fatalf("tables not applied: %+v %+v", records[0], records[1])
	}
	if records[0].RawDistrict != rawColombo {
		t.Fatalf("raw label lost: %q", records[0].RawDistrict)
	}
	if records[4].District != "Mulathivu" {
		t.Fatalf("unmapped district must pass through, got %q", records[4].District)
	}
	var districtWarnings, categoryWarnings int
	for _, w := range warnings {
		if w.Kind != WarnUnmappedName {
			t.Fatalf("unexpected warning %v", w)
		}
		switch w.Value {
		case "Mulathivu":
			districtWarnings++
			if w.Line != 6 {
				t.Fatalf("expected first occurrence line 6, got %d", w.Line)
			}
		case "Arson":
			categoryWarnings++
		}
	}
	if districtWarnings != 1 || categoryWarnings != 1 || len(warnings) != 2 {
		t.Fatalf("expected one warning per distinct unmapped value, got %v", warnings)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	maps := domain.DefaultMappings()
	once, _ := Normalize(fixtureRaw(), maps)
	twice, warnings := Renormalize(once, maps)
	if len(once) != len(twice) {
		t.Fatalf("length changed: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].District != twice[i].District || once[i].Category != twice[i].Category {
			t.Fatalf("record %d changed: %+v vs %+v", i, once[i], twice[i])
		}
		if twice[i].RawDistrict != once[i].RawDistrict {
			t.Fatalf("raw label not preserved")
		}
	}
	for _, w := range warnings {
		if w.Value == "Colombo" || w.Value == "Theft > 5000" {
			t.Fatalf("canonical value warned on second pass: %v", w)
		}
	}
}

func TestNormalizeDoesNotTrimOrFold(t *testing.T) {
	records, warnings := Normalize([]RawRecord{{District: " murder", Category: "murder", Counts: counts(1, 1, 1)}}, domain.DefaultMappings())
	if records[0].Category != "murder" || records[0].District != " murder" {
		t.Fatalf("values must be kept verbatim: %+v", records[0])
	}
	if len(warnings) != 2 {
		t.Fatalf("expected two unmapped warnings, got %v", warnings)
	}
}

func TestNormalizeDropsNegativePopulation(t *testing.T) {
	raw := []RawRecord{{Line: 9, District: rawKandy, Category: "Murder", Population: -1, Counts: counts(1, 2, 3)}}
	records, warnings := Normalize(raw, domain.DefaultMappings())
	if len(records) != 0 {
		t.Fatalf("expected row dropped, got %v", records)
	}
	if len(warnings) != 1 || warnings[0].Kind != WarnDroppedRow || warnings[0].Line != 9 {
		t.Fatalf("expected dropped row warning, got %v", warnings)
	}
}
