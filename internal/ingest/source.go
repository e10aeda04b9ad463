package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"crimestats/internal/blob"
	"crimestats/internal/core"
)

// Source opens named inputs. A missing input yields an error matching
// core.ErrInputMissing.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Describe() string
}

// FileSource reads inputs from the local filesystem. Relative names resolve
// against Dir.
type FileSource struct {
	Dir string
}

func (s FileSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	path := name
	if !filepath.IsAbs(path) && s.Dir != "" {
		path = filepath.Join(s.Dir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, inputError(name, err)
	}
	return f, nil
}

func (s FileSource) Describe() string {
	if s.Dir == "" {
		return "file"
	}
	return "file:" + s.Dir
}

// BlobSource reads inputs from a blob store. Names are keys below Prefix.
type BlobSource struct {
	Store  blob.Store
	Prefix string
}

func (s BlobSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := strings.TrimPrefix(s.Prefix+name, "/")
	_, rc, err := s.Store.Get(ctx, key)
	if err != nil {
		return nil, inputError(key, err)
	}
	return rc, nil
}

func (s BlobSource) Describe() string {
	return fmt.Sprintf("blob:%s/%s", s.Store.Driver(), s.Prefix)
}

func inputError(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", core.ErrInputMissing, name, err)
	}
	return fmt.Errorf("open %s: %w", name, err)
}

// LoadOptions names the inputs and the configuration used to read them.
type LoadOptions struct {
	DataPath      string
	BoundaryPath  string
	ShapeProperty string
	CSV           CSVOptions
	Mappings      core.MappingSet
	Logger        *slog.Logger
}

// LoadDataset reads the crime table and, when configured, the boundary file,
// and builds the dataset. A missing crime table is fatal; a missing boundary
// file only leaves the dataset without boundaries, with a warning.
func LoadDataset(ctx context.Context, src Source, opts LoadOptions) (*core.Dataset, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.DataPath == "" {
		return nil, fmt.Errorf("%w: no crime table configured", core.ErrInputMissing)
	}
	rc, err := src.Open(ctx, opts.DataPath)
	if err != nil {
		return nil, err
	}
	table, err := ReadCSV(rc, opts.CSV)
	_ = rc.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opts.DataPath, err)
	}
	warnings := table.Warnings

	var boundaries []core.DistrictBoundary
	if opts.BoundaryPath != "" {
		var bw []core.Warning
		boundaries, bw, err = loadBoundaries(ctx, src, opts.BoundaryPath, opts.ShapeProperty)
		switch {
		case errors.Is(err, core.ErrInputMissing):
			warnings = append(warnings, core.Warning{
				Kind:    core.WarnMissingBoundary,
				Field:   "boundaries",
				Value:   opts.BoundaryPath,
				Message: "boundary file not found; the map view is unavailable",
			})
		case err != nil:
			return nil, err
		default:
			warnings = append(warnings, bw...)
		}
	}

	maps := opts.Mappings
	if maps.Version == "" {
		maps = core.DefaultMappings()
	}
	ds := core.NewDataset(table.Records, table.Years, boundaries, maps, warnings...)
	logger.InfoContext(ctx, "dataset loaded",
		"source", src.Describe(),
		"data", opts.DataPath,
		"records", len(ds.Records()),
		"years", table.Years,
		"boundaries", len(boundaries),
		"mapping_version", ds.MappingVersion(),
		"warnings", len(ds.Warnings()),
	)
	return ds, nil
}

func loadBoundaries(ctx context.Context, src Source, path, property string) ([]core.DistrictBoundary, []core.Warning, error) {
	rc, err := src.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rc.Close() }()
	b, w, err := ReadBoundaries(rc, property)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, w, nil
}
