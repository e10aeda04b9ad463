package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/twpayne/go-geom/encoding/geojson"

	"crimestats/internal/core"
)

// DefaultShapeProperty is the feature property holding the district name in
// the geoBoundaries ADM2 release.
const DefaultShapeProperty = "shapeName"

var fallbackShapeProperties = []string{"ADM2_EN", "name"}

// ReadBoundaries decodes a GeoJSON FeatureCollection into district
// boundaries. The name comes from property, then the fallbacks. Features
// without a name or geometry are skipped with a warning.
func ReadBoundaries(r io.Reader, property string) ([]core.DistrictBoundary, []core.Warning, error) {
	if property == "" {
		property = DefaultShapeProperty
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read boundaries: %w", err)
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, nil, fmt.Errorf("decode boundaries: %w", err)
	}
	properties := append([]string{property}, fallbackShapeProperties...)
	var (
		out      []core.DistrictBoundary
		warnings []core.Warning
	)
	for i, f := range fc.Features {
		name := featureName(f, properties)
		if name == "" || f.Geometry == nil {
			warnings = append(warnings, core.Warning{
				Kind:    core.WarnDroppedRow,
				Field:   property,
				Value:   name,
				Line:    i + 1,
				Message: "boundary feature without a name or geometry",
			})
			continue
		}
		out = append(out, core.DistrictBoundary{Name: name, Geometry: f.Geometry, Properties: f.Properties})
	}
	return out, warnings, nil
}

func featureName(f *geojson.Feature, properties []string) string {
	if f == nil {
		return ""
	}
	for _, p := range properties {
		v, ok := f.Properties[p]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			// Returned untrimmed so reconciliation sees the file's spelling.
			return fmt.Sprint(v)
		}
	}
	return ""
}
