package ingest

import (
	"errors"
	"os"
	"strings"
	"testing"

	"crimestats/internal/core"
	"crimestats/pkg/domain"
)

func readFixture(t *testing.T) Table {
	t.Helper()
	f, err := os.Open("testdata/crime.csv")
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer f.Close()
	table, err := ReadCSV(f, CSVOptions{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	return table
}

func TestReadCSVParsesTable(t *testing.T) {
	table := readFixture(t)
	if len(table.Years) != 3 || table.Years[0] != 2010 || table.Years[2] != 2012 {
		t.Fatalf("unexpected years %v", table.Years)
	}
	if len(table.Records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(table.Records))
	}
	colombo := table.Records[0]
	if colombo.Line != 2 || colombo.District != "Colombo (Colombo South, North, Central) Mt. Laviniya, Nugegoda" {
		t.Fatalf("unexpected first record %+v", colombo)
	}
	if colombo.Population != 2324349 || colombo.Counts[2011] != domain.CountOf(120) {
		t.Fatalf("unexpected values %+v", colombo)
	}
	if v, ok := colombo.CrimePercentage.Get(); !ok || v != 0.5 {
		t.Fatalf("unexpected crime percentage %+v", colombo.CrimePercentage)
	}
	assaults := table.Records[2]
	if c := assaults.Counts[2011]; c.Valid {
		t.Fatalf("empty cell must be a missing count, got %+v", c)
	}
	if _, ok := assaults.CrimePercentage.Get(); ok {
		t.Fatalf("empty helper cell must be undefined")
	}
	if table.Records[3].Population != 0 {
		t.Fatalf("zero population row must be kept")
	}
	if len(table.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", table.Warnings)
	}
	w := table.Warnings[0]
	if w.Kind != core.WarnDroppedRow || w.Line != 6 || w.Value != "n/a" || w.Field != "Population" {
		t.Fatalf("unexpected warning %+v", w)
	}
}

func TestReadCSVHeaderMatching(t *testing.T) {
	in := "\ufeffdistrict;crime category; POPULATION ;2010\n123;Murder;100;5\n"
	table, err := ReadCSV(strings.NewReader(in), CSVOptions{Delimiter: ';'})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(table.Records) != 1 {
		t.Fatalf("expected one record, got %+v", table.Records)
	}
	r := table.Records[0]
	if r.District != "123" || r.Category != "Murder" || r.Population != 100 || r.Counts[2010] != domain.CountOf(5) {
		t.Fatalf("unexpected record %+v", r)
	}
}

func TestReadCSVInvalidCounts(t *testing.T) {
	in := "District,Crime Category,Population,2010,2011,2012,2013\n" +
		"Kandy,Murder,\"1,375,382\",-3,x,\"1,234\",12.0\n"
	table, err := ReadCSV(strings.NewReader(in), CSVOptions{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	r := table.Records[0]
	if r.Population != 1375382 {
		t.Fatalf("thousands separators not accepted: %d", r.Population)
	}
	if r.Counts[2010].Valid || r.Counts[2011].Valid {
		t.Fatalf("invalid counts must be missing: %+v", r.Counts)
	}
	if r.Counts[2012] != domain.CountOf(1234) || r.Counts[2013] != domain.CountOf(12) {
		t.Fatalf("unexpected counts %+v", r.Counts)
	}
	if len(table.Warnings) != 2 {
		t.Fatalf("expected two warnings, got %v", table.Warnings)
	}
	for _, w := range table.Warnings {
		if w.Kind != core.WarnInvalidValue || w.Line != 2 {
			t.Fatalf("unexpected warning %+v", w)
		}
	}
}

func TestReadCSVKeepsNALabels(t *testing.T) {
	in := "District,Crime Category,Population,2010,2011\n" +
		"NA,NaN,100,NA,3\n"
	table, err := ReadCSV(strings.NewReader(in), CSVOptions{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(table.Records) != 1 {
		t.Fatalf("expected one record, got %+v", table.Records)
	}
	r := table.Records[0]
	if r.District != "NA" || r.Category != "NaN" {
		t.Fatalf("labels must stay verbatim, got %q %q", r.District, r.Category)
	}
	if r.Counts[2010].Valid || r.Counts[2011] != domain.CountOf(3) {
		t.Fatalf("NA count must be missing without a warning: %+v", r.Counts)
	}
	if len(table.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", table.Warnings)
	}
}

func TestReadCSVRejectsOutOfRangeCounts(t *testing.T) {
	in := "District,Crime Category,Population,2010,2011\n" +
		"Kandy,Murder,100,9.2e18,1e19\n" +
		"Galle,Murder,1e20,1,1\n"
	table, err := ReadCSV(strings.NewReader(in), CSVOptions{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(table.Records) != 1 {
		t.Fatalf("out-of-range population must drop the row: %+v", table.Records)
	}
	r := table.Records[0]
	if r.Counts[2010] != domain.CountOf(9200000000000000000) || r.Counts[2011].Valid {
		t.Fatalf("unexpected counts %+v", r.Counts)
	}
	var dropped, invalid int
	for _, w := range table.Warnings {
		switch w.Kind {
		case core.WarnDroppedRow:
			dropped++
		case core.WarnInvalidValue:
			invalid++
		}
	}
	if dropped != 1 || invalid != 1 {
		t.Fatalf("unexpected warnings %v", table.Warnings)
	}
}

func TestReadCSVSchemaErrors(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		opts   CSVOptions
		column string
	}{
		{"no population", "District,Crime Category,2010\nA,B,1\n", CSVOptions{}, "Population"},
		{"no years", "District,Crime Category,Population\nA,B,1\n", CSVOptions{}, "year"},
		{"declared year absent", "District,Crime Category,Population,2010\nA,B,1,2\n", CSVOptions{Years: []int{2010, 2013}}, "2013"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tc.in), tc.opts)
			if !errors.Is(err, core.ErrSchema) {
				t.Fatalf("expected schema error, got %v", err)
			}
			var se *core.SchemaError
			if !errors.As(err, &se) || se.Column != tc.column {
				t.Fatalf("unexpected schema error %v", err)
			}
		})
	}
}

func TestReadCSVCustomColumns(t *testing.T) {
	in := "Area,Offence,Residents,2011\nGalle,Murder,10,1\n"
	table, err := ReadCSV(strings.NewReader(in), CSVOptions{Columns: Columns{
		District:   []string{"area"},
		Category:   []string{"offence"},
		Population: []string{"residents"},
	}})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if table.Records[0].District != "Galle" || table.Years[0] != 2011 {
		t.Fatalf("unexpected table %+v", table)
	}
}
