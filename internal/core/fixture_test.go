package core

import (
	"testing"

	"github.com/twpayne/go-geom"

	"crimestats/pkg/domain"
)

const (
	rawColombo = "Colombo (Colombo South, North, Central) Mt. Laviniya, Nugegoda"
	rawKandy   = "Kandy (Kandy, Gampola)"
	rawTheft   = "Theft of Property Including praedial produce over Rs . 5000 / & cycle cattle theft Irrespective of their value"
)

var fixtureYears = []int{2010, 2011, 2012}

func counts(values ...int64) map[int]Count {
	out := make(map[int]Count, len(values))
	for i, v := range values {
		out[fixtureYears[i]] = domain.CountOf(v)
	}
	return out
}

// fixtureRaw is three districts by two categories over three years. The
// Mulathivu murder row has a zero population.
func fixtureRaw() []RawRecord {
	return []RawRecord{
		{Line: 2, District: rawColombo, Category: "Murder", Population: 2000000, Counts: counts(100, 120, 80)},
		{Line: 3, District: rawColombo, Category: rawTheft, Population: 2000000, Counts: counts(400, 500, 300)},
		{Line: 4, District: rawKandy, Category: "Murder", Population: 1000000, Counts: counts(20, 30, 10)},
		{Line: 5, District: rawKandy, Category: rawTheft, Population: 1000000, Counts: counts(50, 60, 40)},
		{Line: 6, District: "Mulathivu", Category: "Murder", Population: 0, Counts: counts(5, 6, 7)},
		{Line: 7, District: "Mulathivu", Category: rawTheft, Population: 100000, Counts: counts(10, 12, 8)},
	}
}

func square(t *testing.T, x, y float64) geom.T {
	t.Helper()
	poly, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{{
		{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y},
	}})
	if err != nil {
		t.Fatalf("polygon: %v", err)
	}
	return poly
}

func fixtureBoundaries(t *testing.T) []DistrictBoundary {
	t.Helper()
	return []DistrictBoundary{
		{Name: "Colombo District", Geometry: square(t, 79.8, 6.8)},
		{Name: "Kandy District", Geometry: square(t, 80.6, 7.2)},
		{Name: " Mullaitivu District ", Geometry: square(t, 80.5, 9.1)},
		{Name: "Jaffna District", Geometry: square(t, 80.0, 9.6)},
	}
}

func fixtureDataset(t *testing.T) *Dataset {
	t.Helper()
	return NewDataset(fixtureRaw(), fixtureYears, fixtureBoundaries(t), domain.DefaultMappings())
}

func findRow(rows []MetricRow, district, category string, year int) (MetricRow, bool) {
	for _, r := range rows {
		if r.District == district && r.Category == category && r.Year == year {
			return r, true
		}
	}
	return MetricRow{}, false
}

func approx(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}
