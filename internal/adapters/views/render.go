package views

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"math"
	"strings"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/xuri/excelize/v2"

	"crimestats/internal/core"
)

// ErrNothingToPlot is returned when a PNG is requested for a result without
// a numeric column.
var ErrNothingToPlot = errors.New("no numeric values to plot")

// Rendered is a view result encoded in one output format.
type Rendered struct {
	Format      core.ViewFormat
	ContentType string
	Extension   string
	Payload     []byte
}

// Render encodes result in format. Columns come from the result schema, or
// the template's columns when the result has none.
func Render(format core.ViewFormat, descriptor core.ViewTemplateDescriptor, result core.ViewRunResult) (Rendered, error) {
	columns := result.Schema
	if len(columns) == 0 {
		columns = descriptor.Columns
	}
	var (
		payload []byte
		err     error
		out     = Rendered{Format: format, Extension: string(format)}
	)
	switch format {
	case core.FormatJSON:
		out.ContentType = "application/json"
		payload, err = json.Marshal(result)
	case core.FormatCSV:
		out.ContentType = "text/csv"
		payload, err = renderCSV(columns, result.Rows)
	case core.FormatHTML:
		out.ContentType = "text/html; charset=utf-8"
		payload, err = renderHTML(descriptor, columns, result)
	case core.FormatXLSX:
		out.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		payload, err = renderXLSX(descriptor, columns, result.Rows)
	case core.FormatPNG:
		out.ContentType = "image/png"
		payload, err = renderPNG(descriptor, columns, result.Rows)
	default:
		return Rendered{}, fmt.Errorf("unsupported format %s", format)
	}
	if err != nil {
		return Rendered{}, fmt.Errorf("render %s: %w", format, err)
	}
	out.Payload = payload
	return out, nil
}

func renderCSV(columns []core.ViewColumn, rows []map[string]any) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(columnNames(columns)); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := make([]string, len(columns))
		for i, column := range columns {
			record[i] = formatValue(row[column.Name])
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	return buf.Bytes(), writer.Error()
}

var htmlTemplate = template.Must(template.New("view").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body><h1>{{.Title}}</h1>{{if .Description}}<p>{{.Description}}</p>{{end}}
<table>
<thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
{{if .Warnings}}<ul class="warnings">{{range .Warnings}}<li>{{.Kind}}: {{.Message}}{{if .Value}} ({{.Value}}){{end}}</li>{{end}}</ul>{{end}}
</body></html>
`))

func renderHTML(descriptor core.ViewTemplateDescriptor, columns []core.ViewColumn, result core.ViewRunResult) ([]byte, error) {
	rows := make([][]string, len(result.Rows))
	for i, row := range result.Rows {
		cells := make([]string, len(columns))
		for j, column := range columns {
			cells[j] = formatValue(row[column.Name])
		}
		rows[i] = cells
	}
	buf := &bytes.Buffer{}
	err := htmlTemplate.Execute(buf, map[string]any{
		"Title":       descriptor.Title,
		"Description": descriptor.Description,
		"Headers":     columnNames(columns),
		"Rows":        rows,
		"Warnings":    result.Warnings,
	})
	return buf.Bytes(), err
}

const xlsxSheet = "view"

func renderXLSX(descriptor core.ViewTemplateDescriptor, columns []core.ViewColumn, rows []map[string]any) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, err
	}
	for i, column := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(xlsxSheet, cell, column.Name); err != nil {
			return nil, err
		}
	}
	for r, row := range rows {
		for c, column := range columns {
			v, ok := row[column.Name]
			if !ok || v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(xlsxSheet, cell, v); err != nil {
				return nil, err
			}
		}
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: descriptor.Title, Subject: descriptor.Slug}); err != nil {
		return nil, err
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// plotColumns are tried in order for the bar values.
var plotColumns = []string{"crime_rate", "share", "cases"}

func renderPNG(descriptor core.ViewTemplateDescriptor, columns []core.ViewColumn, rows []map[string]any) ([]byte, error) {
	valueColumn := ""
	for _, candidate := range plotColumns {
		if hasColumn(columns, candidate) {
			valueColumn = candidate
			break
		}
	}
	if valueColumn == "" {
		return nil, ErrNothingToPlot
	}
	var bars []chart.Value
	lo, hi := 0.0, 0.0
	for _, row := range rows {
		v, ok := toFloat(row[valueColumn])
		if !ok {
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
		bars = append(bars, chart.Value{Value: v, Label: barLabel(columns, row)})
	}
	if len(bars) == 0 || lo == hi {
		return nil, ErrNothingToPlot
	}
	graph := chart.BarChart{
		Title:      descriptor.Title + " (" + valueColumn + ")",
		Height:     512,
		Width:      max(640, 48*len(bars)+120),
		BarWidth:   32,
		BarSpacing: 16,
		Background: chart.Style{
			Padding: chart.Box{Top: 48, Bottom: 24},
		},
		// Anchored at zero so one bar, or equal bars, still span a range.
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: lo, Max: hi * 1.1},
		},
		Bars: bars,
	}
	buf := &bytes.Buffer{}
	if err := graph.Render(chart.PNG, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var labelColumns = []string{"district", "crime_category", "year", "position"}

func barLabel(columns []core.ViewColumn, row map[string]any) string {
	var parts []string
	for _, name := range labelColumns {
		if !hasColumn(columns, name) {
			continue
		}
		if v := formatValue(row[name]); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func hasColumn(columns []core.ViewColumn, name string) bool {
	for _, c := range columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

func columnNames(columns []core.ViewColumn) []string {
	names := make([]string, len(columns))
	for i, column := range columns {
		names[i] = column.Name
	}
	return names
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case float32:
		return fmt.Sprintf("%g", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprint(v)
	}
}
