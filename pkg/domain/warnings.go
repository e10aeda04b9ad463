package domain

import (
	"fmt"
	"strings"
)

// WarningKind classifies a non-fatal condition.
type WarningKind string

const (
	WarnUnmappedName      WarningKind = "unmapped_name"
	WarnDroppedRow        WarningKind = "dropped_row"
	WarnInvalidValue      WarningKind = "invalid_value"
	WarnUndefinedRate     WarningKind = "undefined_rate"
	WarnUnmatchedBoundary WarningKind = "unmatched_boundary"
	WarnMissingBoundary   WarningKind = "missing_boundary"
)

// Warning is a non-fatal condition raised by a pipeline stage. Warnings never
// stop computation.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Field   string      `json:"field,omitempty"`
	Value   string      `json:"value,omitempty"`
	Line    int         `json:"line,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	var b strings.Builder
	b.WriteString(string(w.Kind))
	if w.Line > 0 {
		fmt.Fprintf(&b, " line %d", w.Line)
	}
	if w.Field != "" {
		fmt.Fprintf(&b, " %s", w.Field)
	}
	if w.Value != "" {
		fmt.Fprintf(&b, " %q", w.Value)
	}
	if w.Message != "" {
		b.WriteString(": ")
		b.WriteString(w.Message)
	}
	return b.String()
}
