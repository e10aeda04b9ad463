package core

import (
	"encoding/json"
	"fmt"
	"strconv"

	"crimestats/pkg/viewapi"
)

const (
	crimePluginName    = "crime"
	crimePluginVersion = "v1"
	viewVersion        = "v1"
)

// CrimeViews returns the plugin contributing the built-in views.
func CrimeViews() Plugin { return crimeViews{} }

type crimeViews struct{}

func (crimeViews) Name() string    { return crimePluginName }
func (crimeViews) Version() string { return crimePluginVersion }

func (crimeViews) Register(registry *PluginRegistry) error {
	for _, tpl := range []ViewTemplate{
		previewView(),
		summaryView(),
		canonicalView(),
		tidyView(),
		trendView(),
		distributionView(),
		aggregateView(),
		shareView(),
		rankingView(),
		mapView(),
	} {
		if err := registry.RegisterViewTemplate(tpl); err != nil {
			return err
		}
	}
	return nil
}

// ViewSlug returns the slug of a built-in view.
func ViewSlug(key string) string {
	return viewapi.Slug(crimePluginName, key, viewVersion)
}

var (
	tableFormats  = []ViewFormat{FormatJSON, FormatCSV, FormatHTML, FormatXLSX}
	metricFormats = []ViewFormat{FormatJSON, FormatCSV, FormatHTML, FormatXLSX, FormatPNG}
)

var (
	colDistrict     = ViewColumn{Name: "district", Type: "string"}
	colCategory     = ViewColumn{Name: "crime_category", Type: "string"}
	colYear         = ViewColumn{Name: "year", Type: "integer"}
	colCases        = ViewColumn{Name: "cases", Type: "number", Description: "reported cases"}
	colPopulation   = ViewColumn{Name: "population", Type: "number"}
	colRate         = ViewColumn{Name: "crime_rate", Type: "number", Unit: "per 100000", Description: "empty when population is zero"}
	colShare        = ViewColumn{Name: "share", Type: "number", Unit: "percent"}
	colObservations = ViewColumn{Name: "observations", Type: "integer"}
)

var (
	paramYears      = ViewParameter{Name: "years", Type: viewapi.TypeIntegerList, Description: "reporting years, all when empty"}
	paramYear       = ViewParameter{Name: "year", Type: viewapi.TypeInteger, Description: "reporting year, the first one when omitted"}
	paramDistricts  = ViewParameter{Name: "districts", Type: viewapi.TypeStringList, Description: "canonical district names, all when empty"}
	paramCategories = ViewParameter{Name: "categories", Type: viewapi.TypeStringList, Description: "canonical crime categories, all when empty"}
	paramPopulation = ViewParameter{
		Name:        "population",
		Type:        viewapi.TypeString,
		Required:    true,
		Enum:        []string{string(ReduceSum), string(ReduceMean)},
		Description: "population reducer: sum treats population as additive, mean as a typical district",
	}
)

func rawJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func stringsParam(req ViewRunRequest, name string) []string {
	v, _ := req.Parameters[name].([]string)
	return v
}

func intsParam(req ViewRunRequest, name string) []int {
	v, _ := req.Parameters[name].([]int)
	return v
}

func intParam(req ViewRunRequest, name string) (int, bool) {
	v, ok := req.Parameters[name].(int)
	return v, ok
}

func stringParam(req ViewRunRequest, name string) string {
	v, _ := req.Parameters[name].(string)
	return v
}

func selectionFrom(req ViewRunRequest) Selection {
	return Selection{
		Years:      intsParam(req, "years"),
		Districts:  stringsParam(req, "districts"),
		Categories: stringsParam(req, "categories"),
	}
}

// yearFrom returns the requested year or the dataset's first reporting year.
func yearFrom(ds *Dataset, req ViewRunRequest) (int, error) {
	if year, ok := intParam(req, "year"); ok {
		if !ds.HasYear(year) {
			return 0, &SchemaError{Column: strconv.Itoa(year), Reason: "not a reporting year"}
		}
		return year, nil
	}
	years := ds.Years()
	if len(years) == 0 {
		return 0, &SchemaError{Column: "year", Reason: "dataset declares no reporting years"}
	}
	return years[0], nil
}

func populationReducer(req ViewRunRequest) (Reducer, error) {
	pop, err := ParseReduceFunc(stringParam(req, "population"))
	if err != nil {
		return Reducer{}, err
	}
	count := ReduceSum
	if raw := stringParam(req, "count"); raw != "" {
		if count, err = ParseReduceFunc(raw); err != nil {
			return Reducer{}, err
		}
	}
	return Reducer{Count: count, Population: pop}, nil
}

func countCell(c Count, ok bool) any {
	if !ok || !c.Valid {
		return nil
	}
	return c.Value
}

func metricRowMap(row MetricRow) map[string]any {
	m := map[string]any{
		"cases":        row.Count.Any(),
		"population":   row.Population,
		"crime_rate":   row.Rate.Any(),
		"observations": row.Observations,
	}
	if row.Has(KeyDistrict) {
		m["district"] = row.District
	}
	if row.Has(KeyCategory) {
		m["crime_category"] = row.Category
	}
	if row.Has(KeyYear) {
		m["year"] = row.Year
	}
	if row.Share.Valid {
		m["share"] = row.Share.Value
	}
	return m
}

func groupColumns(keys []GroupKey) []ViewColumn {
	cols := make([]ViewColumn, 0, len(keys))
	for _, k := range keys {
		switch k {
		case KeyDistrict:
			cols = append(cols, colDistrict)
		case KeyCategory:
			cols = append(cols, colCategory)
		case KeyYear:
			cols = append(cols, colYear)
		}
	}
	return cols
}

func toViewWarnings(warnings []Warning) []viewapi.Warning {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]viewapi.Warning, len(warnings))
	for i, w := range warnings {
		out[i] = viewapi.Warning{
			Kind:    string(w.Kind),
			Field:   w.Field,
			Value:   w.Value,
			Line:    w.Line,
			Message: w.Message,
		}
	}
	return out
}

func undefinedRateWarning(rows []MetricRow) []Warning {
	n := CountUndefinedRates(rows)
	if n == 0 {
		return nil
	}
	return []Warning{{
		Kind:    WarnUndefinedRate,
		Field:   "crime_rate",
		Value:   strconv.Itoa(n),
		Message: fmt.Sprintf("%d rows have an undefined crime rate (zero population or missing count)", n),
	}}
}

// newResult assembles a result carrying the dataset's load warnings followed
// by the view's own.
func newResult(env ViewEnvironment, schema []ViewColumn, rows []map[string]any, extra ...Warning) ViewRunResult {
	warnings := append(env.Dataset.Warnings(), extra...)
	if rows == nil {
		rows = []map[string]any{}
	}
	return ViewRunResult{
		Schema: schema,
		Rows:   rows,
		Metadata: map[string]any{
			"mapping_version": env.Dataset.MappingVersion(),
			"row_count":       len(rows),
		},
		Warnings:    toViewWarnings(warnings),
		GeneratedAt: env.Now(),
	}
}

func bindDataset(run func(ViewEnvironment) ViewRunner) ViewBinder {
	return func(env ViewEnvironment) (ViewRunner, error) {
		if env.Dataset == nil {
			return nil, fmt.Errorf("view requires a dataset")
		}
		if env.Now == nil {
			env.Now = timeNowUTC
		}
		return run(env), nil
	}
}
