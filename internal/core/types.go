package core

import (
	"crimestats/pkg/domain"
	"crimestats/pkg/viewapi"
)

type (
	Count            = domain.Count
	Optional         = domain.Optional
	RawRecord        = domain.RawRecord
	CanonicalRecord  = domain.CanonicalRecord
	TidyObservation  = domain.TidyObservation
	MetricRow        = domain.MetricRow
	GeoMetricRow     = domain.GeoMetricRow
	DistrictBoundary = domain.DistrictBoundary
	Bounds           = domain.Bounds
	GroupKey         = domain.GroupKey
	Reducer          = domain.Reducer
	ReduceFunc       = domain.ReduceFunc
	ValueField       = domain.ValueField
	MappingSet       = domain.MappingSet
	MappingStore     = domain.MappingStore
	Warning          = domain.Warning
	WarningKind      = domain.WarningKind
)

const (
	KeyDistrict = domain.KeyDistrict
	KeyCategory = domain.KeyCategory
	KeyYear     = domain.KeyYear

	ReduceSum  = domain.ReduceSum
	ReduceMean = domain.ReduceMean

	FieldCount = domain.FieldCount
	FieldRate  = domain.FieldRate

	WarnUnmappedName      = domain.WarnUnmappedName
	WarnDroppedRow        = domain.WarnDroppedRow
	WarnInvalidValue      = domain.WarnInvalidValue
	WarnUndefinedRate     = domain.WarnUndefinedRate
	WarnUnmatchedBoundary = domain.WarnUnmatchedBoundary
	WarnMissingBoundary   = domain.WarnMissingBoundary
)

type (
	// ViewFormat mirrors viewapi.Format for core consumers.
	ViewFormat = viewapi.Format
	// ViewParameter mirrors viewapi.Parameter for core consumers.
	ViewParameter = viewapi.Parameter
	// ViewColumn mirrors viewapi.Column for core consumers.
	ViewColumn = viewapi.Column
	// ViewRunner mirrors viewapi.Runner for core consumers.
	ViewRunner = viewapi.Runner
	// ViewRunRequest mirrors viewapi.RunRequest for core consumers.
	ViewRunRequest = viewapi.RunRequest
	// ViewRunResult mirrors viewapi.RunResult for core consumers.
	ViewRunResult = viewapi.RunResult
	// ViewParameterError mirrors viewapi.ParameterError for core consumers.
	ViewParameterError = viewapi.ParameterError
	// ViewTemplateDescriptor mirrors viewapi.TemplateDescriptor for core consumers.
	ViewTemplateDescriptor = viewapi.TemplateDescriptor
)

const (
	FormatJSON = viewapi.FormatJSON
	FormatCSV  = viewapi.FormatCSV
	FormatHTML = viewapi.FormatHTML
	FormatXLSX = viewapi.FormatXLSX
	FormatPNG  = viewapi.FormatPNG
)
