package core

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"crimestats/pkg/viewapi"
)

func timeNowUTC() time.Time { return time.Now().UTC() }

func recordColumns(years []int, withRaw bool) []ViewColumn {
	cols := []ViewColumn{colDistrict, colCategory}
	if withRaw {
		cols = append(cols,
			ViewColumn{Name: "raw_district", Type: "string"},
			ViewColumn{Name: "raw_crime_category", Type: "string"})
	}
	cols = append(cols, ViewColumn{Name: "population", Type: "integer"})
	for _, y := range years {
		cols = append(cols, ViewColumn{Name: strconv.Itoa(y), Type: "integer", Description: "reported cases"})
	}
	return append(cols,
		ViewColumn{Name: "crimes_over_the_years", Type: "number"},
		ViewColumn{Name: "crime_percentage", Type: "number"})
}

func recordRow(r CanonicalRecord, years []int, withRaw bool) map[string]any {
	row := map[string]any{
		"district":              r.District,
		"crime_category":        r.Category,
		"population":            r.Population,
		"crimes_over_the_years": r.CrimesOverYears.Any(),
		"crime_percentage":      r.CrimePercentage.Any(),
	}
	if withRaw {
		row["raw_district"] = r.RawDistrict
		row["raw_crime_category"] = r.RawCategory
	}
	for _, y := range years {
		c, ok := r.Count(y)
		row[strconv.Itoa(y)] = countCell(c, ok)
	}
	return row
}

func previewView() ViewTemplate {
	return ViewTemplate{
		Template: viewTemplate("preview", "Data preview",
			"First rows of the canonical dataset in wide form.",
			[]ViewParameter{{Name: "limit", Type: "integer", Description: "number of rows", Default: json.RawMessage(`5`)}},
			[]ViewColumn{colDistrict, colCategory, {Name: "population", Type: "integer"}},
			tableFormats),
		Binder: bindDataset(func(env ViewEnvironment) ViewRunner {
			return func(_ context.Context, req ViewRunRequest) (ViewRunResult, error) {
				limit, _ := intParam(req, "limit")
				if limit < 0 {
					limit = 0
				}
				records := env.Dataset.Records()
				if limit < len(records) {
					records = records[:limit]
				}
				years := env.Dataset.Years()
				rows := make([]map[string]any, 0, len(records))
				for _, r := range records {
					rows = append(rows, recordRow(r, years, false))
				}
				return newResult(env, recordColumns(years, false), rows), nil
			}
		}),
	}
}

func summaryView() ViewTemplate {
	return ViewTemplate{
		Template: viewTemplate("summary", "Summary statistics",
			"Count, mean, standard deviation, quartiles and range of every numeric column.",
			nil,
			[]ViewColumn{
				{Name: "column", Type: "string"},
				{Name: "count", Type: "integer"},
				{Name: "mean", Type: "number"},
				{Name: "std", Type: "number"},
				{Name: "min", Type: "number"},
				{Name: "25%", Type: "number"},
				{Name: "50%", Type: "number"},
				{Name: "75%", Type: "number"},
				{Name: "max", Type: "number"},
			},
			tableFormats),
		Binder: bindDataset(func(env ViewEnvironment) ViewRunner {
			return func(context.Context, ViewRunRequest) (ViewRunResult, error) {
				summaries := Describe(env.Dataset.Records(), env.Dataset.Years())
				rows := make([]map[string]any, 0, len(summaries))
				for _, s := range summaries {
					rows = append(rows, map[string]any{
						"column": s.Column,
						"count":  s.Count,
						"mean":   s.Mean.Any(),
						"std":    s.Std.Any(),
						"min":    s.Min.Any(),
						"25%":    s.Q25.Any(),
						"50%":    s.Median.Any(),
						"75%":    s.Q75.Any(),
						"max":    s.Max.Any(),
					})
				}
				return newResult(env, nil, rows), nil
			}
		}),
	}
}

func canonicalView() ViewTemplate {
	return ViewTemplate{
		Template: viewTemplate("canonical", "Canonical records",
			"Records after district and category normalization, with the raw labels.",
			[]ViewParameter{paramDistricts, paramCategories},
			[]ViewColumn{colDistrict, colCategory, {Name: "raw_district", Type: "string"}, {Name: "raw_crime_category", Type: "string"}},
			tableFormats),
		Binder: bindDataset(func(env ViewEnvironment) ViewRunner {
			return func(_ context.Context, req ViewRunRequest) (ViewRunResult, error) {
				years := env.Dataset.Years()
				records := env.Dataset.SelectRecords(selectionFrom(req))
				rows := make([]map[string]any, 0, len(records))
				for _, r := range records {
					rows = append(rows, recordRow(r, years, true))
				}
				return newResult(env, recordColumns(years, true), rows), nil
			}
		}),
	}
}

func tidyView() ViewTemplate {
	return ViewTemplate{
		Template: viewTemplate("tidy", "Tidy observations",
			"One row per district, crime category and year.",
			[]ViewParameter{paramYears, paramDistricts, paramCategories},
			[]ViewColumn{colDistrict, colCategory, colYear, {Name: "cases", Type: "integer"}, {Name: "population", Type: "integer"}},
			tableFormats),
		Binder: bindDataset(func(env ViewEnvironment) ViewRunner {
			return func(_ context.Context, req ViewRunRequest) (ViewRunResult, error) {
				obs, err := env.Dataset.Observations(selectionFrom(req))
				if err != nil {
					return ViewRunResult{}, err
				}
				rows := make([]map[string]any, 0, len(obs))
				for _, o := range obs {
					rows = append(rows, map[string]any{
						"district":       o.District,
						"crime_category": o.Category,
						"year":           o.Year,
						"cases":          countCell(o.Count, true),
						"population":     o.Population,
					})
				}
				return newResult(env, nil, rows), nil
			}
		}),
	}
}

func viewTemplate(key, title, description string, params []ViewParameter, columns []ViewColumn, formats []ViewFormat) viewapi.Template {
	return viewapi.Template{
		Key:           key,
		Version:       viewVersion,
		Title:         title,
		Description:   description,
		Parameters:    params,
		Columns:       columns,
		OutputFormats: formats,
		Metadata:      viewapi.Metadata{Source: "crime statistics by police district", Tags: []string{key}},
	}
}
