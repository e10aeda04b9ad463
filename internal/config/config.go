// Package config resolves process configuration from CRIMESTATS_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"crimestats/internal/blob"
	"crimestats/internal/core"
	"crimestats/internal/ingest"
)

// SourceKind selects where input files are read from.
type SourceKind string

const (
	SourceFS   SourceKind = "fs"   // local paths
	SourceBlob SourceKind = "blob" // keys in the configured blob store
)

const (
	DefaultHTTPAddr = ":8080"
	DefaultCacheTTL = 5 * time.Minute
	DefaultEnvFile  = ".env"
	// DefaultExportRetention matches views.DefaultExportRetention.
	DefaultExportRetention = 24 * time.Hour
)

// Config is the resolved process configuration.
//
//	CRIMESTATS_DATA_PATH: crime table (CSV)
//	CRIMESTATS_BOUNDARY_PATH: district boundaries (GeoJSON), optional
//	CRIMESTATS_SOURCE: fs|blob (default fs)
//	CRIMESTATS_YEARS: comma separated reporting years, detected when empty
//	CRIMESTATS_SHAPE_PROPERTY: boundary name property (default shapeName)
//	CRIMESTATS_HTTP_ADDR: listen address (default :8080)
//	CRIMESTATS_CORS_ORIGINS: comma separated allowed origins
//	CRIMESTATS_CACHE_TTL: view result cache TTL, 0 disables (default 5m)
//	CRIMESTATS_EXPORT_RETENTION: how long finished exports stay queryable (default 24h)
//	CRIMESTATS_LOG_LEVEL: debug|info|warn|error (default info)
//
// Mapping and blob keys are documented on core.MappingConfigFromEnv and
// blob.ConfigFromEnv.
type Config struct {
	DataPath        string
	BoundaryPath    string
	Source          SourceKind
	Years           []int
	ShapeProperty   string
	Mappings        core.MappingConfig
	Blob            blob.Config
	HTTPAddr        string
	CORSOrigins     []string
	CacheTTL        time.Duration
	ExportRetention time.Duration
	LogLevel        slog.Level
}

// Load reads envFile (when present) into the process environment without
// overriding variables that are already set, then resolves the configuration.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv resolves the configuration from getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Config{
		DataPath:        strings.TrimSpace(getenv("CRIMESTATS_DATA_PATH")),
		BoundaryPath:    strings.TrimSpace(getenv("CRIMESTATS_BOUNDARY_PATH")),
		Source:          SourceKind(strings.ToLower(strings.TrimSpace(getenv("CRIMESTATS_SOURCE")))),
		ShapeProperty:   strings.TrimSpace(getenv("CRIMESTATS_SHAPE_PROPERTY")),
		Mappings:        core.MappingConfigFromEnv(getenv),
		Blob:            blob.ConfigFromEnv(getenv),
		HTTPAddr:        strings.TrimSpace(getenv("CRIMESTATS_HTTP_ADDR")),
		CORSOrigins:     splitList(getenv("CRIMESTATS_CORS_ORIGINS")),
		CacheTTL:        DefaultCacheTTL,
		ExportRetention: DefaultExportRetention,
		LogLevel:        slog.LevelInfo,
	}
	switch cfg.Source {
	case "":
		cfg.Source = SourceFS
	case SourceFS, SourceBlob:
	default:
		return Config{}, fmt.Errorf("CRIMESTATS_SOURCE: unknown source %q", cfg.Source)
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	years, err := ParseYears(getenv("CRIMESTATS_YEARS"))
	if err != nil {
		return Config{}, fmt.Errorf("CRIMESTATS_YEARS: %w", err)
	}
	cfg.Years = years
	if raw := strings.TrimSpace(getenv("CRIMESTATS_CACHE_TTL")); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl < 0 {
			return Config{}, fmt.Errorf("CRIMESTATS_CACHE_TTL: invalid duration %q", raw)
		}
		cfg.CacheTTL = ttl
	}
	if raw := strings.TrimSpace(getenv("CRIMESTATS_EXPORT_RETENTION")); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return Config{}, fmt.Errorf("CRIMESTATS_EXPORT_RETENTION: invalid duration %q", raw)
		}
		cfg.ExportRetention = ttl
	}
	if raw := strings.TrimSpace(getenv("CRIMESTATS_LOG_LEVEL")); raw != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			return Config{}, fmt.Errorf("CRIMESTATS_LOG_LEVEL: %w", err)
		}
	}
	return cfg, nil
}

// ParseYears parses a comma separated list of reporting years.
func ParseYears(raw string) ([]int, error) {
	var years []int
	for _, part := range splitList(raw) {
		y, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", part)
		}
		years = append(years, y)
	}
	return years, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// NewLogger returns a JSON logger at the configured level.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}

// OpenSource returns the input source. Blob sources open the configured blob
// store; callers that already hold one can pass it as store.
func (c Config) OpenSource(ctx context.Context, store blob.Store) (ingest.Source, error) {
	if c.Source != SourceBlob {
		return ingest.FileSource{}, nil
	}
	if store == nil {
		var err error
		if store, err = blob.Open(ctx, c.Blob); err != nil {
			return nil, fmt.Errorf("open blob source: %w", err)
		}
	}
	return ingest.BlobSource{Store: store}, nil
}

// LoadDataset resolves the mapping set and the input source and loads the
// dataset.
func (c Config) LoadDataset(ctx context.Context, store blob.Store, logger *slog.Logger) (*core.Dataset, error) {
	mappings, err := core.LoadMappings(ctx, c.Mappings)
	if err != nil {
		return nil, fmt.Errorf("load mappings: %w", err)
	}
	src, err := c.OpenSource(ctx, store)
	if err != nil {
		return nil, err
	}
	return ingest.LoadDataset(ctx, src, ingest.LoadOptions{
		DataPath:      c.DataPath,
		BoundaryPath:  c.BoundaryPath,
		ShapeProperty: c.ShapeProperty,
		CSV:           ingest.CSVOptions{Years: c.Years},
		Mappings:      mappings,
		Logger:        logger,
	})
}
