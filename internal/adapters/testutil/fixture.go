// Package testutil builds a view service over a small fixture dataset for
// adapter tests, so the adapter packages never construct datasets by hand.
package testutil

import (
	"fmt"
	"strings"

	"crimestats/internal/core"
	"crimestats/internal/ingest"
)

// FixtureCSV has three districts, two categories and three years. Mullaitivu
// is spelled as in the police table and its Murder row has no population.
const FixtureCSV = `District,Crime Category,Population,2010,2011,2012
Colombo,Murder,2000000,100,120,80
Colombo,Theft > 5000,2000000,400,500,300
Kandy,Murder,1000000,20,30,10
Kandy,Theft > 5000,1000000,50,60,40
Mulathivu,Murder,0,5,6,7
Mulathivu,Theft > 5000,100000,10,12,8
`

// FixtureBoundaries covers Colombo and Kandy only.
const FixtureBoundaries = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"shapeName":"Colombo District"},"geometry":{"type":"Polygon","coordinates":[[[79.8,6.8],[80.2,6.8],[80.2,7.0],[79.8,7.0],[79.8,6.8]]]}},
{"type":"Feature","properties":{"shapeName":"Kandy District"},"geometry":{"type":"Polygon","coordinates":[[[80.5,7.1],[80.9,7.1],[80.9,7.4],[80.5,7.4],[80.5,7.1]]]}}
]}`

// NewDataset parses the fixture inputs.
func NewDataset() (*core.Dataset, error) {
	table, err := ingest.ReadCSV(strings.NewReader(FixtureCSV), ingest.CSVOptions{})
	if err != nil {
		return nil, fmt.Errorf("fixture csv: %w", err)
	}
	boundaries, warnings, err := ingest.ReadBoundaries(strings.NewReader(FixtureBoundaries), "")
	if err != nil {
		return nil, fmt.Errorf("fixture boundaries: %w", err)
	}
	return core.NewDataset(table.Records, table.Years, boundaries, core.DefaultMappings(), append(table.Warnings, warnings...)...), nil
}

// NewService returns a service over the fixture dataset with the crime views
// installed.
func NewService(opts ...core.ServiceOption) (*core.Service, error) {
	ds, err := NewDataset()
	if err != nil {
		return nil, err
	}
	svc := core.NewService(ds, opts...)
	if _, err := svc.InstallPlugin(core.CrimeViews()); err != nil {
		return nil, fmt.Errorf("install crime views: %w", err)
	}
	return svc, nil
}
