package core

import (
	"errors"
	"fmt"

	"crimestats/pkg/domain"
)

var (
	// ErrInputMissing means a source file could not be found. It is fatal
	// before any computation starts.
	ErrInputMissing = errors.New("input missing")
	// ErrSchema classifies SchemaError.
	ErrSchema = errors.New("schema error")
	// ErrBoundaryDataUnavailable means the boundary dataset is absent or
	// empty. Only the geographic join fails.
	ErrBoundaryDataUnavailable = errors.New("boundary data unavailable")
	// ErrInvalidReducer is returned when an aggregation reducer is missing or
	// unknown.
	ErrInvalidReducer = errors.New("invalid reducer")
	// ErrMappingsNotFound re-exports the mapping store sentinel.
	ErrMappingsNotFound = domain.ErrMappingsNotFound
)

// SchemaError reports an expected column that is absent from the input.
type SchemaError struct {
	Column string
	Record string
	Reason string
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("column %q", e.Column)
	if e.Record != "" {
		msg += " in record " + e.Record
	}
	reason := e.Reason
	if reason == "" {
		reason = "missing"
	}
	return "schema: " + msg + ": " + reason
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// ErrEmptySelection is returned when a view's selection leaves nothing to
// compute, for example no crime category present in the dataset.
var ErrEmptySelection = errors.New("empty selection")
