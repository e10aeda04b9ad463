package core

import (
	"context"
	"fmt"
)

func mapView() ViewTemplate {
	return ViewTemplate{
		Template: viewTemplate("map", "District map",
			"Crime rate per district joined to the district boundaries.",
			[]ViewParameter{paramYear, paramCategories, paramPopulation},
			[]ViewColumn{
				colDistrict,
				{Name: "boundary_key", Type: "string"},
				{Name: "matched", Type: "boolean"},
				colCases, colPopulation, colRate,
				{Name: "min_x", Type: "number"},
				{Name: "min_y", Type: "number"},
				{Name: "max_x", Type: "number"},
				{Name: "max_y", Type: "number"},
				{Name: "center_x", Type: "number"},
				{Name: "center_y", Type: "number"},
			},
			metricFormats),
		Binder: bindDataset(func(env ViewEnvironment) ViewRunner {
			return func(_ context.Context, req ViewRunRequest) (ViewRunResult, error) {
				boundaries, err := env.Dataset.Boundaries()
				if err != nil {
					return ViewRunResult{}, err
				}
				year, err := yearFrom(env.Dataset, req)
				if err != nil {
					return ViewRunResult{}, err
				}
				reducer, err := populationReducer(req)
				if err != nil {
					return ViewRunResult{}, err
				}
				obs, err := env.Dataset.Observations(Selection{Years: []int{year}, Categories: stringsParam(req, "categories")})
				if err != nil {
					return ViewRunResult{}, err
				}
				metrics, err := Aggregate(obs, []GroupKey{KeyDistrict}, reducer)
				if err != nil {
					return ViewRunResult{}, err
				}
				joined, err := JoinToBoundaries(metrics, boundaries, env.Dataset.Mappings())
				if err != nil {
					return ViewRunResult{}, err
				}
				rows := make([]map[string]any, 0, len(joined))
				for _, g := range joined {
					row := metricRowMap(g.MetricRow)
					delete(row, "observations")
					row["boundary_key"] = g.BoundaryKey
					row["matched"] = g.Matched
					for _, k := range []string{"min_x", "min_y", "max_x", "max_y", "center_x", "center_y"} {
						row[k] = nil
					}
					if g.Bounds != nil {
						cx, cy := g.Bounds.Center()
						row["min_x"], row["min_y"] = g.Bounds.MinX, g.Bounds.MinY
						row["max_x"], row["max_y"] = g.Bounds.MaxX, g.Bounds.MaxY
						row["center_x"], row["center_y"] = cx, cy
					}
					rows = append(rows, row)
				}
				warnings := undefinedRateWarning(metrics)
				for _, d := range UnmatchedDistricts(joined) {
					warnings = append(warnings, Warning{
						Kind:    WarnUnmatchedBoundary,
						Field:   "district",
						Value:   d,
						Message: fmt.Sprintf("no boundary named %q", ReconcileDistrictName(d, env.Dataset.Mappings())),
					})
				}
				result := newResult(env, nil, rows, warnings...)
				result.Metadata["year"] = year
				result.Metadata["unmatched"] = len(UnmatchedDistricts(joined))
				return result, nil
			}
		}),
	}
}
