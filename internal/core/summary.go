package core

import (
	"math"
	"strconv"

	"github.com/go-gota/gota/series"
)

// ColumnSummary holds descriptive statistics of one numeric column. Missing
// cells are excluded; statistics over no values are undefined.
type ColumnSummary struct {
	Column string   `json:"column"`
	Count  int      `json:"count"`
	Mean   Optional `json:"mean"`
	Std    Optional `json:"std"`
	Min    Optional `json:"min"`
	Q25    Optional `json:"25%"`
	Median Optional `json:"50%"`
	Q75    Optional `json:"75%"`
	Max    Optional `json:"max"`
}

type summaryColumn struct {
	name  string
	value func(CanonicalRecord) (float64, bool)
}

// Describe summarizes population, every year column and the helper columns
// that carry values. Quartiles use the empirical quantile; the median
// averages the middle pair.
func Describe(records []CanonicalRecord, years []int) []ColumnSummary {
	columns := []summaryColumn{
		{"Population", func(r CanonicalRecord) (float64, bool) { return float64(r.Population), true }},
	}
	for _, y := range years {
		year := y
		columns = append(columns, summaryColumn{strconv.Itoa(year), func(r CanonicalRecord) (float64, bool) {
			c, ok := r.Count(year)
			return float64(c.Value), ok && c.Valid
		}})
	}
	helpers := []summaryColumn{
		{"Crimes Over the Years", func(r CanonicalRecord) (float64, bool) { return r.CrimesOverYears.Get() }},
		{"Crime Percentage", func(r CanonicalRecord) (float64, bool) { return r.CrimePercentage.Get() }},
	}
	for _, h := range helpers {
		for _, r := range records {
			if _, ok := h.value(r); ok {
				columns = append(columns, h)
				break
			}
		}
	}

	out := make([]ColumnSummary, 0, len(columns))
	for _, col := range columns {
		values := make([]float64, 0, len(records))
		for _, r := range records {
			if v, ok := col.value(r); ok {
				values = append(values, v)
			}
		}
		out = append(out, summarize(col.name, values))
	}
	return out
}

func summarize(name string, values []float64) ColumnSummary {
	summary := ColumnSummary{Column: name, Count: len(values)}
	if len(values) == 0 {
		return summary
	}
	s := series.New(values, series.Float, name)
	summary.Mean = finite(s.Mean())
	summary.Std = finite(s.StdDev())
	summary.Min = finite(s.Min())
	summary.Q25 = finite(s.Quantile(0.25))
	summary.Median = finite(s.Median())
	summary.Q75 = finite(s.Quantile(0.75))
	summary.Max = finite(s.Max())
	return summary
}

func finite(v float64) Optional {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Optional{}
	}
	return Optional{Value: v, Valid: true}
}
