package core

import (
	"context"
	"encoding/json"
	"fmt"

	"crimestats/pkg/viewapi"
)

// DefaultTrendCategories are preselected by the trend view.
var DefaultTrendCategories = []string{"Murder", "Theft > 5000"}

func trendView() ViewTemplate {
	return ViewTemplate{
		Template: viewTemplate("trend", "Crime rate trends",
			"Crime rate per 100000 residents by year for the selected categories.",
			[]ViewParameter{
				{Name: "categories", Type: viewapi.TypeStringList, Description: "crime categories to plot", Default: rawJSON(DefaultTrendCategories)},
				paramDistricts,
				{Name: "reducer", Type: viewapi.TypeString, Enum: []string{"none", string(ReduceSum), string(ReduceMean)}, Default: json.RawMessage(`"none"`),
					Description: "none keeps one row per district; sum or mean aggregates districts per year and category with that population reducer"},
			},
			[]ViewColumn{colYear, colCategory, colDistrict, colCases, colPopulation, colRate},
			metricFormats),
		Binder: bindDataset(func(env ViewEnvironment) ViewRunner {
			return func(_ context.Context, req ViewRunRequest) (ViewRunResult, error) {
				var categories []string
				for _, c := range stringsParam(req, "categories") {
					if containsString(env.Dataset.Categories(), c) {
						categories = append(categories, c)
					}
				}
				if len(categories) == 0 {
					return ViewRunResult{}, fmt.Errorf("%w: select at least one crime category present in the dataset", ErrEmptySelection)
				}
				obs, err := env.Dataset.Observations(Selection{Districts: stringsParam(req, "districts"), Categories: categories})
				if err != nil {
					return ViewRunResult{}, err
				}
				var (
					metrics []MetricRow
					schema  []ViewColumn
				)
				switch reducer := stringParam(req, "reducer"); reducer {
				case "", "none":
					metrics = ObservationRows(obs)
					schema = []ViewColumn{colYear, colCategory, colDistrict, colCases, colPopulation, colRate}
				default:
					pop, err := ParseReduceFunc(reducer)
					if err != nil {
						return ViewRunResult{}, err
					}
					metrics, err = Aggregate(obs, []GroupKey{KeyYear, KeyCategory}, Reducer{Count: ReduceSum, Population: pop})
					if err != nil {
						return ViewRunResult{}, err
					}
					schema = []ViewColumn{colYear, colCategory, colCases, colPopulation, colRate, colObservations}
				}
				return newResult(env, schema, metricMaps(metrics), undefinedRateWarning(metrics)...), nil
			}
		}),
	}
}

func distributionView() ViewTemplate {
	return ViewTemplate{
		Template: viewTemplate("distribution", "Geographical distribution",
			"Crime rate per district and category for one year.",
			[]ViewParameter{paramYear, paramCategories, paramDistricts},
			[]ViewColumn{colDistrict, colCategory, colYear, colCases, colPopulation, colRate},
			metricFormats),
		Binder: bindDataset(func(env ViewEnvironment) ViewRunner {
			return func(_ context.Context, req ViewRunRequest) (ViewRunResult, error) {
				year, err := yearFrom(env.Dataset, req)
				if err != nil {
					return ViewRunResult{}, err
				}
				sel := selectionFrom(req)
				sel.Years = []int{year}
				obs, err := env.Dataset.Observations(sel)
				if err != nil {
					return ViewRunResult{}, err
				}
				metrics := ObservationRows(obs)
				result := newResult(env, nil, metricMaps(metrics), undefinedRateWarning(metrics)...)
				result.Metadata["year"] = year
				return result, nil
			}
		}),
	}
}

func aggregateView() ViewTemplate {
	return ViewTemplate{
		Template: viewTemplate("aggregate", "Aggregated metrics",
			"Counts, population and crime rate grouped by the chosen keys.",
			[]ViewParameter{
				{Name: "group_by", Type: viewapi.TypeStringList, Enum: []string{string(KeyDistrict), string(KeyCategory), string(KeyYear)},
					Default: json.RawMessage(`["year","category"]`), Description: "ordered grouping keys"},
				paramPopulation,
				{Name: "count", Type: viewapi.TypeString, Enum: []string{string(ReduceSum), string(ReduceMean)}, Default: json.RawMessage(`"sum"`)},
				paramYears, paramDistricts, paramCategories,
			},
			[]ViewColumn{colCases, colPopulation, colRate, colObservations},
			metricFormats),
		Binder: bindDataset(func(env ViewEnvironment) ViewRunner {
			return func(_ context.Context, req ViewRunRequest) (ViewRunResult, error) {
				keys, err := groupKeys(stringsParam(req, "group_by"))
				if err != nil {
					return ViewRunResult{}, err
				}
				reducer, err := populationReducer(req)
				if err != nil {
					return ViewRunResult{}, err
				}
				obs, err := env.Dataset.Observations(selectionFrom(req))
				if err != nil {
					return ViewRunResult{}, err
				}
				metrics, err := Aggregate(obs, keys, reducer)
				if err != nil {
					return ViewRunResult{}, err
				}
				schema := append(groupColumns(keys), colCases, colPopulation, colRate, colObservations)
				result := newResult(env, schema, metricMaps(metrics), undefinedRateWarning(metrics)...)
				result.Metadata["reducer"] = reducer
				return result, nil
			}
		}),
	}
}

func shareView() ViewTemplate {
	return ViewTemplate{
		Template: viewTemplate("share", "Percentage share",
			"Share of cases or crime rate per group, summing to 100.",
			[]ViewParameter{
				{Name: "year", Type: viewapi.TypeInteger, Description: "reporting year, all years when omitted"},
				{Name: "group_by", Type: viewapi.TypeString, Enum: []string{string(KeyDistrict), string(KeyCategory), string(KeyYear)}, Default: json.RawMessage(`"category"`)},
				{Name: "value", Type: viewapi.TypeString, Enum: []string{string(FieldCount), string(FieldRate)}, Default: json.RawMessage(`"count"`)},
				paramPopulation,
				paramDistricts, paramCategories,
			},
			[]ViewColumn{colCases, colRate, colShare},
			metricFormats),
		Binder: bindDataset(func(env ViewEnvironment) ViewRunner {
			return func(_ context.Context, req ViewRunRequest) (ViewRunResult, error) {
				key, err := ParseGroupKey(stringParam(req, "group_by"))
				if err != nil {
					return ViewRunResult{}, err
				}
				reducer, err := populationReducer(req)
				if err != nil {
					return ViewRunResult{}, err
				}
				sel := selectionFrom(req)
				if year, ok := intParam(req, "year"); ok {
					sel.Years = []int{year}
				}
				obs, err := env.Dataset.Observations(sel)
				if err != nil {
					return ViewRunResult{}, err
				}
				metrics, err := Aggregate(obs, []GroupKey{key}, reducer)
				if err != nil {
					return ViewRunResult{}, err
				}
				field := ValueField(stringParam(req, "value"))
				if field != FieldRate {
					field = FieldCount
				}
				metrics = PercentageShare(metrics, field)
				schema := append(groupColumns([]GroupKey{key}), colCases, colPopulation, colRate, colShare)
				result := newResult(env, schema, metricMaps(metrics), undefinedRateWarning(metrics)...)
				result.Metadata["value"] = string(field)
				return result, nil
			}
		}),
	}
}

func rankingView() ViewTemplate {
	return ViewTemplate{
		Template: viewTemplate("ranking", "District ranking",
			"Districts with the lowest (top) and highest (bottom) crime rates, ascending.",
			[]ViewParameter{
				paramYear,
				{Name: "n", Type: viewapi.TypeInteger, Default: json.RawMessage(`5`), Description: "rows per slice"},
				paramPopulation,
				paramCategories,
			},
			[]ViewColumn{
				{Name: "position", Type: "string", Description: "top or bottom"},
				{Name: "rank", Type: "integer", Description: "ascending rank by crime rate"},
				colDistrict, colCases, colPopulation, colRate,
			},
			metricFormats),
		Binder: bindDataset(func(env ViewEnvironment) ViewRunner {
			return func(_ context.Context, req ViewRunRequest) (ViewRunResult, error) {
				year, err := yearFrom(env.Dataset, req)
				if err != nil {
					return ViewRunResult{}, err
				}
				reducer, err := populationReducer(req)
				if err != nil {
					return ViewRunResult{}, err
				}
				n, _ := intParam(req, "n")
				obs, err := env.Dataset.Observations(Selection{Years: []int{year}, Categories: stringsParam(req, "categories")})
				if err != nil {
					return ViewRunResult{}, err
				}
				metrics, err := Aggregate(obs, []GroupKey{KeyDistrict}, reducer)
				if err != nil {
					return ViewRunResult{}, err
				}
				top, bottom := TopBottom(metrics, n)
				ranked := len(metrics) - CountUndefinedRates(metrics)
				rows := make([]map[string]any, 0, len(top)+len(bottom))
				for i, r := range top {
					rows = append(rows, rankedRow("top", i+1, r))
				}
				for i, r := range bottom {
					rows = append(rows, rankedRow("bottom", ranked-len(bottom)+i+1, r))
				}
				result := newResult(env, nil, rows, undefinedRateWarning(metrics)...)
				result.Metadata["year"] = year
				result.Metadata["ranked"] = ranked
				result.Metadata["overlap"] = overlap(top, bottom)
				return result, nil
			}
		}),
	}
}

func rankedRow(position string, rank int, r MetricRow) map[string]any {
	row := metricRowMap(r)
	delete(row, "observations")
	row["position"] = position
	row["rank"] = rank
	return row
}

func overlap(top, bottom []MetricRow) int {
	seen := make(map[string]struct{}, len(top))
	for _, r := range top {
		seen[r.District] = struct{}{}
	}
	n := 0
	for _, r := range bottom {
		if _, ok := seen[r.District]; ok {
			n++
		}
	}
	return n
}

func groupKeys(names []string) ([]GroupKey, error) {
	keys := make([]GroupKey, 0, len(names))
	for _, name := range names {
		k, err := ParseGroupKey(name)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func metricMaps(rows []MetricRow) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = metricRowMap(r)
	}
	return out
}
