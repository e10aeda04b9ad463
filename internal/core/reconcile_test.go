package core

import (
	"errors"
	"testing"

	"crimestats/pkg/domain"
)

func TestReconcileDistrictName(t *testing.T) {
	maps := domain.DefaultMappings()
	cases := map[string]string{
		"  kandy ":        "Kandy District",
		"Mulathivu":       "Mullaitivu District",
		"NUWARA ELIYA":    "Nuwara Eliya District",
		"Kandy District":  "Kandy District",
		"Ｇａｌｌｅ":           "Galle District",
		"Hambanthota":     "Hambantota District",
		" Mulathivu\t":    "Mullaitivu District",
		"trincomalee":     "Trincomalee District",
		"kegalle  ":       "Kegalle District",
		"puttlam":         "Puttlam District",
		"Colombo":         "Colombo District",
		"colombo ":        "Colombo District",
		"Monaragala":      "Monaragala District",
		"Kilinochchi ":    "Kilinochchi District",
		"jaffna":          "Jaffna District",
		"Vauniya":         "Vavuniya District",
		"batticaloa":      "Batticaloa District",
		"Anuradhapura   ": "Anuradhapura District",
	}
	for in, want := range cases {
		if got := ReconcileDistrictName(in, maps); got != want {
			t.Fatalf("ReconcileDistrictName(%q) = %q, want %q", in, got, want)
		}
	}
	noSuffix := maps.Clone()
	noSuffix.Suffix = ""
	if got := ReconcileDistrictName("kandy", noSuffix); got != "Kandy" {
		t.Fatalf("expected no suffix, got %q", got)
	}
}

func TestJoinToBoundariesFlagsUnmatched(t *testing.T) {
	rows := []MetricRow{
		{GroupedBy: []GroupKey{KeyDistrict}, District: "Kandy", Rate: domain.Some(2)},
		{GroupedBy: []GroupKey{KeyDistrict}, District: "Atlantis"},
		{GroupedBy: []GroupKey{KeyDistrict}, District: "Mulathivu", Rate: domain.Some(3)},
		{GroupedBy: []GroupKey{KeyDistrict}, District: "Atlantis"},
	}
	joined, err := JoinToBoundaries(rows, fixtureBoundaries(t), domain.DefaultMappings())
	if err != nil {
		t.Fatalf("JoinToBoundaries: %v", err)
	}
	if len(joined) != len(rows) {
		t.Fatalf("every row must be kept, got %d", len(joined))
	}
	if !joined[0].Matched || joined[0].BoundaryKey != "Kandy District" || joined[0].Bounds == nil {
		t.Fatalf("expected Kandy matched with bounds, got %+v", joined[0])
	}
	if joined[1].Matched || joined[1].Bounds != nil {
		t.Fatalf("expected Atlantis unmatched, got %+v", joined[1])
	}
	if !joined[2].Matched || joined[2].BoundaryKey != "Mullaitivu District" {
		t.Fatalf("expected corrected match against trimmed boundary key, got %+v", joined[2])
	}
	cx, cy := joined[0].Bounds.Center()
	if !approx(cx, 81.1, 1e-9) || !approx(cy, 7.7, 1e-9) {
		t.Fatalf("unexpected centre %v,%v", cx, cy)
	}
	if got := UnmatchedDistricts(joined); len(got) != 1 || got[0] != "Atlantis" {
		t.Fatalf("unexpected unmatched %v", got)
	}
}

func TestJoinToBoundariesRequiresBoundaries(t *testing.T) {
	_, err := JoinToBoundaries([]MetricRow{{District: "Kandy"}}, nil, domain.DefaultMappings())
	if !errors.Is(err, ErrBoundaryDataUnavailable) {
		t.Fatalf("expected ErrBoundaryDataUnavailable, got %v", err)
	}
}
