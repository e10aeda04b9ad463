// Package ingest reads the crime table and the district boundary file and
// assembles a core.Dataset from them.
package ingest

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"crimestats/internal/core"
)

// CSVOptions configures ReadCSV. A zero value reads a comma separated file,
// detects the year columns from the header and uses DefaultColumns.
type CSVOptions struct {
	Delimiter rune
	Years     []int
	Columns   Columns
}

// Table is the parsed crime table.
type Table struct {
	Records  []core.RawRecord
	Years    []int
	Warnings []core.Warning
}

type resolvedColumns struct {
	district, category, population string
	crimesOverYears, crimePercent  string
	years                          map[int]string
}

// ReadCSV parses the crime table. District and category cells are kept
// verbatim as text. Rows with a missing, unparseable or negative population
// are dropped with a warning; invalid counts become missing with a warning.
// An absent required column or declared year is a *core.SchemaError.
func ReadCSV(r io.Reader, opts CSVOptions) (Table, error) {
	delim := opts.Delimiter
	if delim == 0 {
		delim = ','
	}
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithDelimiter(delim),
		// Label cells such as "NA" stay text; numeric cells check missing().
		dataframe.NaNValues(nil),
	)
	if df.Err != nil {
		return Table{}, fmt.Errorf("read csv: %w", df.Err)
	}
	cols, years, err := resolveColumns(df.Names(), opts)
	if err != nil {
		return Table{}, err
	}

	table := Table{Years: years}
	district := df.Col(cols.district)
	category := df.Col(cols.category)
	population := df.Col(cols.population)
	var crimesOver, crimePercent series.Series
	if cols.crimesOverYears != "" {
		crimesOver = df.Col(cols.crimesOverYears)
	}
	if cols.crimePercent != "" {
		crimePercent = df.Col(cols.crimePercent)
	}
	yearSeries := make(map[int]series.Series, len(years))
	for _, y := range years {
		yearSeries[y] = df.Col(cols.years[y])
	}

	for i := 0; i < df.Nrow(); i++ {
		line := i + 2
		pop, ok := parseInt(population.Elem(i))
		if !ok || pop < 0 {
			table.Warnings = append(table.Warnings, core.Warning{
				Kind:    core.WarnDroppedRow,
				Field:   cleanHeader(cols.population),
				Value:   cellString(population.Elem(i)),
				Line:    line,
				Message: "population is missing, not an integer or negative",
			})
			continue
		}
		rec := core.RawRecord{
			Line:       line,
			District:   cellString(district.Elem(i)),
			Category:   cellString(category.Elem(i)),
			Population: pop,
			Counts:     make(map[int]core.Count, len(years)),
		}
		for _, y := range years {
			elem := yearSeries[y].Elem(i)
			if missing(elem) {
				rec.Counts[y] = core.Count{}
				continue
			}
			v, ok := parseInt(elem)
			if !ok || v < 0 {
				rec.Counts[y] = core.Count{}
				table.Warnings = append(table.Warnings, invalidValue(cols.years[y], elem, line, "count is not a non-negative integer"))
				continue
			}
			rec.Counts[y] = core.Count{Value: v, Valid: true}
		}
		if cols.crimesOverYears != "" {
			rec.CrimesOverYears, table.Warnings = optionalCell(crimesOver.Elem(i), cols.crimesOverYears, line, table.Warnings)
		}
		if cols.crimePercent != "" {
			rec.CrimePercentage, table.Warnings = optionalCell(crimePercent.Elem(i), cols.crimePercent, line, table.Warnings)
		}
		table.Records = append(table.Records, rec)
	}
	return table, nil
}

func resolveColumns(header []string, opts CSVOptions) (resolvedColumns, []int, error) {
	cand := opts.Columns.withDefaults()
	cols := resolvedColumns{
		district:        findColumn(header, cand.District),
		category:        findColumn(header, cand.Category),
		population:      findColumn(header, cand.Population),
		crimesOverYears: findColumn(header, cand.CrimesOverYears),
		crimePercent:    findColumn(header, cand.CrimePercentage),
		years:           yearColumns(header),
	}
	for _, req := range []struct {
		name, col string
	}{
		{cand.District[0], cols.district},
		{cand.Category[0], cols.category},
		{cand.Population[0], cols.population},
	} {
		if req.col == "" {
			return resolvedColumns{}, nil, &core.SchemaError{Column: req.name}
		}
	}
	years := append([]int(nil), opts.Years...)
	if len(years) == 0 {
		years = core.DetectYearColumns(cleanHeaders(header))
		if len(years) == 0 {
			return resolvedColumns{}, nil, &core.SchemaError{Column: "year", Reason: "no year columns in header"}
		}
	}
	for _, y := range years {
		if _, ok := cols.years[y]; !ok {
			return resolvedColumns{}, nil, &core.SchemaError{Column: strconv.Itoa(y)}
		}
	}
	return cols, years, nil
}

func missing(e series.Element) bool {
	if e.IsNA() {
		return true
	}
	switch s := strings.TrimSpace(e.String()); {
	case s == "", strings.EqualFold(s, "nan"), strings.EqualFold(s, "na"), s == "<nil>":
		return true
	}
	return false
}

// cellString returns the cell text verbatim. gota flags a literal "NaN"
// string as NA but still prints it as "NaN".
func cellString(e series.Element) string {
	return e.String()
}

// parseInt accepts integers, thousands separators and integral floats such as
// "2324349.0".
func parseInt(e series.Element) (int64, bool) {
	if missing(e) {
		return 0, false
	}
	s := strings.ReplaceAll(strings.TrimSpace(e.String()), ",", "")
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is itself out of range.
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func optionalCell(e series.Element, column string, line int, warnings []core.Warning) (core.Optional, []core.Warning) {
	if missing(e) {
		return core.Optional{}, warnings
	}
	s := strings.TrimSuffix(strings.ReplaceAll(strings.TrimSpace(e.String()), ",", ""), "%")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return core.Optional{}, append(warnings, invalidValue(column, e, line, "not a number"))
	}
	return core.Optional{Value: f, Valid: true}, warnings
}

func invalidValue(column string, e series.Element, line int, msg string) core.Warning {
	return core.Warning{
		Kind:    core.WarnInvalidValue,
		Field:   cleanHeader(column),
		Value:   e.String(),
		Line:    line,
		Message: msg,
	}
}
