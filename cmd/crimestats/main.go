// Command crimestats loads the crime table and prints a view as a terminal
// table or writes it in an export format.
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"crimestats/internal/adapters/views"
	"crimestats/internal/config"
	"crimestats/internal/core"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

// paramFlag collects repeated -param name=value flags. Repeating a name
// builds a list.
type paramFlag map[string][]string

func (p paramFlag) String() string {
	parts := make([]string, 0, len(p))
	for k, v := range p {
		parts = append(parts, k+"="+strings.Join(v, ","))
	}
	return strings.Join(parts, " ")
}

func (p paramFlag) Set(raw string) error {
	name, value, ok := strings.Cut(raw, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", raw)
	}
	p[name] = append(p[name], value)
	return nil
}

func (p paramFlag) values() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		if len(v) == 1 {
			out[k] = v[0]
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}

type options struct {
	envFile    string
	data       string
	boundaries string
	mappings   string
	years      string
	view       string
	format     string
	out        string
	list       bool
	verbose    bool
	params     paramFlag
}

func cli(args []string, stdout, stderr io.Writer) int {
	opts := options{params: paramFlag{}}
	fs := flag.NewFlagSet("crimestats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.envFile, "env", config.DefaultEnvFile, "dotenv file to load when present")
	fs.StringVar(&opts.data, "data", "", "crime table CSV (overrides CRIMESTATS_DATA_PATH)")
	fs.StringVar(&opts.boundaries, "boundaries", "", "district boundaries GeoJSON (overrides CRIMESTATS_BOUNDARY_PATH)")
	fs.StringVar(&opts.mappings, "mappings", "", "mapping set JSON (overrides the configured mapping driver)")
	fs.StringVar(&opts.years, "years", "", "comma separated reporting years")
	fs.StringVar(&opts.view, "view", "preview", "view key or slug")
	fs.StringVar(&opts.format, "format", "table", "table|json|csv|html|xlsx|png")
	fs.StringVar(&opts.out, "out", "", "output file (required for xlsx and png)")
	fs.BoolVar(&opts.list, "list", false, "list the available views")
	fs.BoolVar(&opts.verbose, "v", false, "log loading details to stderr")
	fs.Var(opts.params, "param", "view parameter name=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := run(context.Background(), opts, stdout, stderr); err != nil {
		var perr paramErrors
		if errors.As(err, &perr) {
			for _, e := range perr {
				color.New(color.FgRed).Fprintf(stderr, "parameter %s: %s\n", e.Name, e.Message)
			}
			return 2
		}
		color.New(color.FgRed).Fprintf(stderr, "crimestats: %v\n", err)
		return 1
	}
	return 0
}

type paramErrors []core.ViewParameterError

func (p paramErrors) Error() string { return fmt.Sprintf("%d invalid parameters", len(p)) }

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}
	if opts.data != "" {
		cfg.DataPath = opts.data
	}
	if opts.boundaries != "" {
		cfg.BoundaryPath = opts.boundaries
	}
	if opts.mappings != "" {
		cfg.Mappings = core.MappingConfig{Driver: core.MappingFile, Path: opts.mappings}
	}
	if opts.years != "" {
		if cfg.Years, err = config.ParseYears(opts.years); err != nil {
			return err
		}
	}
	logger := cfg.NewLogger(io.Discard)
	if opts.verbose {
		logger = cfg.NewLogger(stderr)
	}

	ds, err := cfg.LoadDataset(ctx, nil, logger)
	if err != nil {
		return err
	}
	svc := core.NewService(ds, core.WithCacheTTL(0))
	if _, err := svc.InstallPlugin(core.CrimeViews()); err != nil {
		return err
	}
	if opts.list {
		return listViews(stdout, svc.ViewTemplates())
	}

	slug := opts.view
	if !strings.Contains(slug, "@") {
		slug = core.ViewSlug(slug)
	}
	template, ok := svc.ResolveViewTemplate(slug)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrViewNotFound, slug)
	}
	format := core.ViewFormat(strings.ToLower(opts.format))
	runFormat := format
	if format == "table" {
		runFormat = core.FormatCSV
	}
	if !template.SupportsFormat(runFormat) {
		return fmt.Errorf("view %s does not support format %s", slug, opts.format)
	}
	result, paramErrs, err := svc.RunView(ctx, slug, opts.params.values(), runFormat)
	if err != nil {
		return err
	}
	if len(paramErrs) > 0 {
		return paramErrors(paramErrs)
	}
	rendered, err := views.Render(runFormat, template.Descriptor(), result)
	if err != nil {
		return err
	}
	printWarnings(stderr, result)

	if format == "table" {
		return printTable(stdout, rendered.Payload)
	}
	if opts.out == "" {
		if format == core.FormatXLSX || format == core.FormatPNG {
			return fmt.Errorf("-out is required for %s output", format)
		}
		_, err = stdout.Write(rendered.Payload)
		return err
	}
	if err := os.WriteFile(opts.out, rendered.Payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", opts.out, err)
	}
	fmt.Fprintf(stdout, "wrote %s (%d bytes)\n", opts.out, len(rendered.Payload))
	return nil
}

func listViews(w io.Writer, templates []core.ViewTemplateDescriptor) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Slug", "Title", "Formats"})
	table.SetAutoWrapText(false)
	for _, t := range templates {
		formats := make([]string, len(t.OutputFormats))
		for i, f := range t.OutputFormats {
			formats[i] = string(f)
		}
		table.Append([]string{t.Slug, t.Title, strings.Join(formats, ",")})
	}
	table.Render()
	return nil
}

// printTable renders the CSV form of a result so cells match the csv export.
func printTable(w io.Writer, payload []byte) error {
	records, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	if err != nil {
		return fmt.Errorf("read rendered rows: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader(records[0])
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.AppendBulk(records[1:])
	table.Render()
	fmt.Fprintf(w, "%d rows\n", len(records)-1)
	return nil
}

func printWarnings(w io.Writer, result core.ViewRunResult) {
	if len(result.Warnings) == 0 {
		return
	}
	yellow := color.New(color.FgYellow)
	for _, warning := range result.Warnings {
		line := warning.Message
		if warning.Value != "" {
			line += " (" + warning.Value + ")"
		}
		yellow.Fprintf(w, "warning [%s] %s\n", warning.Kind, line)
	}
}
