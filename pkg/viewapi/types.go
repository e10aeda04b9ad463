// Package viewapi defines the stable types that cross the presentation
// boundary: view templates, their parameters and columns, and the tabular
// results produced by running them.
package viewapi

import (
	"context"
	"encoding/json"
	"time"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
	FormatXLSX Format = "xlsx"
	FormatPNG  Format = "png"
)

// Parameter types understood by ValidateParameters.
const (
	TypeString      = "string"
	TypeInteger     = "integer"
	TypeNumber      = "number"
	TypeBoolean     = "boolean"
	TypeStringList  = "string_list"
	TypeIntegerList = "integer_list"
)

type Parameter struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Required    bool            `json:"required"`
	Description string          `json:"description,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
	Example     json.RawMessage `json:"example,omitempty"`
	Default     json.RawMessage `json:"default,omitempty"`
}

type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
}

type Metadata struct {
	Source        string            `json:"source,omitempty"`
	Documentation string            `json:"documentation,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Annotations   map[string]string `json:"annotations,omitempty"`
}

// Template is the static description of a view. Runtime binding is owned by
// the host.
type Template struct {
	Key           string
	Version       string
	Title         string
	Description   string
	Parameters    []Parameter
	Columns       []Column
	Metadata      Metadata
	OutputFormats []Format
}

type TemplateDescriptor struct {
	Plugin        string      `json:"plugin"`
	Key           string      `json:"key"`
	Version       string      `json:"version"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Parameters    []Parameter `json:"parameters"`
	Columns       []Column    `json:"columns"`
	Metadata      Metadata    `json:"metadata"`
	OutputFormats []Format    `json:"output_formats"`
	Slug          string      `json:"slug"`
}

type RunRequest struct {
	Template   TemplateDescriptor
	Parameters map[string]any
}

// Warning is a non-fatal condition raised while computing a view.
type Warning struct {
	Kind    string `json:"kind"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// RunResult is a plain table. Undefined numeric cells are nil.
type RunResult struct {
	Schema      []Column         `json:"schema"`
	Rows        []map[string]any `json:"rows"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Warnings    []Warning        `json:"warnings,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
	Format      Format           `json:"format"`
}

type Runner func(context.Context, RunRequest) (RunResult, error)

// ParameterError describes a single parameter validation failure.
type ParameterError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e ParameterError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}
