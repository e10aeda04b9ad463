package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultMappingsAreValid(t *testing.T) {
	set := DefaultMappings()
	if err := set.Validate(); err != nil {
		t.Fatalf("default mappings invalid: %v", err)
	}
	if len(set.Districts) != 14 || len(set.Categories) != 25 {
		t.Fatalf("unexpected table sizes: %d districts, %d categories", len(set.Districts), len(set.Categories))
	}
	if got := set.Categories["Theft of Motor Vehicle"]; got != "Vehicle Theft" {
		t.Fatalf("unexpected category mapping %q", got)
	}
	if set.Suffix != DefaultBoundarySuffix {
		t.Fatalf("unexpected suffix %q", set.Suffix)
	}
}

func TestDefaultMappingsReturnsFreshCopy(t *testing.T) {
	a := DefaultMappings()
	a.Districts["Galle (Galle/Elpitiya)"] = "mutated"
	if DefaultMappings().Districts["Galle (Galle/Elpitiya)"] != "Galle" {
		t.Fatalf("default mappings shared state")
	}
}

func TestDecodeMappingSet(t *testing.T) {
	set, err := DecodeMappingSet(strings.NewReader(`{"version":"v2","districts":{"Kandy (Kandy, Gampola)":"Kandy"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if set.Suffix != DefaultBoundarySuffix || set.Categories == nil || set.Corrections == nil {
		t.Fatalf("defaults not applied: %+v", set)
	}
	if _, err := DecodeMappingSet(strings.NewReader(`{"version":"v2","bogus":1}`)); err == nil {
		t.Fatalf("expected unknown field error")
	}
	if _, err := DecodeMappingSet(strings.NewReader(`{"districts":{}}`)); !errors.Is(err, ErrInvalidMappings) {
		t.Fatalf("expected invalid mapping error, got %v", err)
	}
}

func TestValidateRejectsChainsAndBlanks(t *testing.T) {
	set := MappingSet{
		Version:    "v1",
		Districts:  map[string]string{"A": "B", "B": "C"},
		Categories: map[string]string{"": "x", "y": " "},
	}
	err := set.Validate()
	var mErr *MappingError
	if !errors.As(err, &mErr) {
		t.Fatalf("expected MappingError, got %v", err)
	}
	if len(mErr.Problems) != 3 {
		t.Fatalf("expected 3 problems, got %v", mErr.Problems)
	}
	identity := MappingSet{Version: "v1", Categories: map[string]string{"Murder": "Murder", "Assaults": "Assault"}}
	if err := identity.Validate(); err != nil {
		t.Fatalf("identity entries must be allowed: %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	set := DefaultMappings()
	clone := set.Clone()
	clone.Corrections["Mulathivu"] = "x"
	if set.Corrections["Mulathivu"] != "Mullaitivu" {
		t.Fatalf("clone shares maps")
	}
	if !set.IsCanonicalDistrict("Kandy") || set.IsCanonicalDistrict("Kandy (Kandy, Gampola)") {
		t.Fatalf("unexpected canonical district lookup")
	}
	if !set.IsCanonicalCategory("Theft > 5000") {
		t.Fatalf("expected canonical category")
	}
}
