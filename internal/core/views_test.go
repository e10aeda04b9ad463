package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"crimestats/pkg/domain"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newViewService(t *testing.T, ds *Dataset, opts ...ServiceOption) *Service {
	t.Helper()
	opts = append([]ServiceOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	svc := NewService(ds, opts...)
	if _, err := svc.InstallPlugin(CrimeViews()); err != nil {
		t.Fatalf("install crime views: %v", err)
	}
	return svc
}

func runView(t *testing.T, svc *Service, key string, params map[string]any) ViewRunResult {
	t.Helper()
	result, paramErrs, err := svc.RunView(context.Background(), ViewSlug(key), params, FormatJSON)
	if err != nil {
		t.Fatalf("run %s: %v", key, err)
	}
	if len(paramErrs) > 0 {
		t.Fatalf("run %s: parameter errors %v", key, paramErrs)
	}
	return result
}

func hasWarning(result ViewRunResult, kind WarningKind, value string) bool {
	for _, w := range result.Warnings {
		if w.Kind == string(kind) && (value == "" || w.Value == value) {
			return true
		}
	}
	return false
}

func TestCrimeViewsCatalog(t *testing.T) {
	svc := newViewService(t, fixtureDataset(t))
	descriptors := svc.ViewTemplates()
	if len(descriptors) != 10 {
		t.Fatalf("expected 10 views, got %d", len(descriptors))
	}
	if descriptors[0].Slug != "crime/aggregate@v1" {
		t.Fatalf("expected sorted descriptors, first is %s", descriptors[0].Slug)
	}
	plugins := svc.RegisteredPlugins()
	if len(plugins) != 1 || plugins[0].Name != "crime" || len(plugins[0].Views) != 10 {
		t.Fatalf("unexpected plugin metadata %+v", plugins)
	}
	if _, err := svc.InstallPlugin(CrimeViews()); err == nil {
		t.Fatalf("expected duplicate plugin error")
	}
}

func TestPreviewAndSummaryViews(t *testing.T) {
	svc := newViewService(t, fixtureDataset(t))
	preview := runView(t, svc, "preview", map[string]any{"limit": 2})
	if len(preview.Rows) != 2 || preview.Rows[0]["district"] != "Colombo" || preview.Rows[0]["2010"] != int64(100) {
		t.Fatalf("unexpected preview %v", preview.Rows)
	}
	if !preview.GeneratedAt.Equal(fixedNow) || preview.Metadata["mapping_version"] != domain.BuiltinMappingVersion {
		t.Fatalf("unexpected preview metadata %v %v", preview.GeneratedAt, preview.Metadata)
	}
	if !hasWarning(preview, WarnUnmappedName, "Mulathivu") {
		t.Fatalf("dataset warnings must travel with results: %v", preview.Warnings)
	}
	summary := runView(t, svc, "summary", nil)
	if len(summary.Rows) != 4 || summary.Rows[0]["column"] != "Population" {
		t.Fatalf("unexpected summary rows %v", summary.Rows)
	}
	if len(summary.Schema) != 9 {
		t.Fatalf("expected template columns as schema, got %v", summary.Schema)
	}
}

func TestTidyViewFilters(t *testing.T) {
	svc := newViewService(t, fixtureDataset(t))
	result := runView(t, svc, "tidy", map[string]any{"years": []any{2011.0}, "districts": "Kandy,Colombo"})
	if len(result.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(result.Rows))
	}
	for _, row := range result.Rows {
		if row["year"] != 2011 {
			t.Fatalf("unexpected year in %v", row)
		}
	}
	_, _, err := svc.RunView(context.Background(), ViewSlug("tidy"), map[string]any{"years": []int{1999}}, FormatJSON)
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("expected schema error for unknown year, got %v", err)
	}
}

func TestTrendView(t *testing.T) {
	svc := newViewService(t, fixtureDataset(t))
	result := runView(t, svc, "trend", nil)
	if len(result.Rows) != 18 {
		t.Fatalf("default categories must select both categories, got %d rows", len(result.Rows))
	}
	if !hasWarning(result, WarnUndefinedRate, "3") {
		t.Fatalf("expected undefined rate warning, got %v", result.Warnings)
	}
	agg := runView(t, svc, "trend", map[string]any{"categories": []string{"Murder"}, "reducer": "sum"})
	if len(agg.Rows) != 3 {
		t.Fatalf("expected one row per year, got %d", len(agg.Rows))
	}
	if agg.Rows[0]["cases"] != 125.0 || agg.Rows[0]["year"] != 2010 {
		t.Fatalf("unexpected aggregate row %v", agg.Rows[0])
	}
	_, _, err := svc.RunView(context.Background(), ViewSlug("trend"), map[string]any{"categories": []string{"Arson"}}, FormatJSON)
	if !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("expected empty selection, got %v", err)
	}
}

func TestDistributionViewDefaultsToFirstYear(t *testing.T) {
	svc := newViewService(t, fixtureDataset(t))
	result := runView(t, svc, "distribution", map[string]any{"categories": []string{"Murder"}})
	if result.Metadata["year"] != 2010 || len(result.Rows) != 3 {
		t.Fatalf("unexpected distribution %v %v", result.Metadata, result.Rows)
	}
	for _, row := range result.Rows {
		if row["district"] == "Mulathivu" && row["crime_rate"] != nil {
			t.Fatalf("zero population rate must be null, got %v", row["crime_rate"])
		}
	}
}

func TestAggregateViewRequiresPopulationReducer(t *testing.T) {
	svc := newViewService(t, fixtureDataset(t))
	_, paramErrs, err := svc.RunView(context.Background(), ViewSlug("aggregate"), nil, FormatJSON)
	if err != nil || len(paramErrs) != 1 || paramErrs[0].Name != "population" {
		t.Fatalf("expected missing population error, got %v %v", paramErrs, err)
	}
	result := runView(t, svc, "aggregate", map[string]any{"population": "mean", "group_by": []string{"category"}, "years": []int{2010}})
	if len(result.Rows) != 2 || result.Rows[0]["crime_category"] != "Murder" {
		t.Fatalf("unexpected aggregate rows %v", result.Rows)
	}
	if len(result.Schema) != 5 || result.Schema[0].Name != "crime_category" {
		t.Fatalf("unexpected schema %v", result.Schema)
	}
}

func TestShareView(t *testing.T) {
	svc := newViewService(t, fixtureDataset(t))
	result := runView(t, svc, "share", map[string]any{"population": "sum", "group_by": "district", "year": 2012})
	var total float64
	for _, row := range result.Rows {
		total += row["share"].(float64)
	}
	if !approx(total, 100, 1e-6) {
		t.Fatalf("shares sum to %v", total)
	}
}

func TestRankingView(t *testing.T) {
	svc := newViewService(t, fixtureDataset(t))
	result := runView(t, svc, "ranking", map[string]any{"population": "sum", "year": 2010, "categories": []string{"Murder"}})
	if len(result.Rows) != 4 {
		t.Fatalf("expected top and bottom with overlap, got %d rows", len(result.Rows))
	}
	first, last := result.Rows[0], result.Rows[3]
	if first["position"] != "top" || first["district"] != "Kandy" || first["rank"] != 1 {
		t.Fatalf("unexpected first row %v", first)
	}
	if last["position"] != "bottom" || last["district"] != "Colombo" || last["rank"] != 2 {
		t.Fatalf("unexpected last row %v", last)
	}
	if result.Metadata["overlap"] != 2 || result.Metadata["ranked"] != 2 {
		t.Fatalf("unexpected metadata %v", result.Metadata)
	}
}

func TestMapView(t *testing.T) {
	raw := append(fixtureRaw(), RawRecord{Line: 8, District: "Atlantis", Category: "Murder", Population: 10, Counts: counts(1, 1, 1)})
	ds := NewDataset(raw, fixtureYears, fixtureBoundaries(t), domain.DefaultMappings())
	svc := newViewService(t, ds)
	result := runView(t, svc, "map", map[string]any{"population": "sum", "categories": []string{"Murder"}})
	if len(result.Rows) != 4 || result.Metadata["unmatched"] != 1 {
		t.Fatalf("unexpected map result %v %v", result.Rows, result.Metadata)
	}
	atlantis := result.Rows[3]
	if atlantis["matched"] != false || atlantis["center_x"] != nil {
		t.Fatalf("unmatched row must be flagged, got %v", atlantis)
	}
	if result.Rows[0]["boundary_key"] != "Colombo District" || result.Rows[0]["matched"] != true {
		t.Fatalf("unexpected first row %v", result.Rows[0])
	}
	if !hasWarning(result, WarnUnmatchedBoundary, "Atlantis") {
		t.Fatalf("expected unmatched warning, got %v", result.Warnings)
	}

	noGeo := newViewService(t, NewDataset(fixtureRaw(), fixtureYears, nil, domain.DefaultMappings()))
	_, _, err := noGeo.RunView(context.Background(), ViewSlug("map"), map[string]any{"population": "sum"}, FormatJSON)
	if !errors.Is(err, ErrBoundaryDataUnavailable) {
		t.Fatalf("expected boundary error, got %v", err)
	}
	if _, _, err := noGeo.RunView(context.Background(), ViewSlug("distribution"), nil, FormatJSON); err != nil {
		t.Fatalf("other views must keep working: %v", err)
	}
}
