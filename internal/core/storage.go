package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"crimestats/internal/infra/persistence/memory"
	"crimestats/internal/infra/persistence/postgres"
	"crimestats/internal/infra/persistence/sqlite"
	"crimestats/pkg/domain"
)

// MappingDriver identifies where the name-mapping configuration comes from.
type MappingDriver string

const (
	MappingBuiltin  MappingDriver = "builtin"  // compiled-in default tables
	MappingFile     MappingDriver = "file"     // JSON document on disk
	MappingMemory   MappingDriver = "memory"   // in-memory store seeded with the defaults
	MappingSQLite   MappingDriver = "sqlite"   // embedded sqlite file
	MappingPostgres MappingDriver = "postgres" // PostgreSQL server
)

// MappingConfig selects a mapping source and, for stores, the version to load
// (empty means the latest saved version).
type MappingConfig struct {
	Driver      MappingDriver
	Path        string
	Version     string
	SQLitePath  string
	PostgresDSN string
}

// MappingConfigFromEnv reads the mapping configuration from the environment.
// Defaults to the builtin tables when unset.
//
//	CRIMESTATS_MAPPINGS_DRIVER: builtin|file|memory|sqlite|postgres
//	CRIMESTATS_MAPPINGS_PATH: JSON document when driver=file
//	CRIMESTATS_MAPPINGS_VERSION: version to load from a store
//	CRIMESTATS_SQLITE_PATH: path to sqlite file (default ./crimestats.db)
//	CRIMESTATS_POSTGRES_DSN: postgres DSN when driver=postgres
func MappingConfigFromEnv(getenv func(string) string) MappingConfig {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := MappingConfig{
		Driver:      MappingDriver(strings.ToLower(strings.TrimSpace(getenv("CRIMESTATS_MAPPINGS_DRIVER")))),
		Path:        getenv("CRIMESTATS_MAPPINGS_PATH"),
		Version:     getenv("CRIMESTATS_MAPPINGS_VERSION"),
		SQLitePath:  getenv("CRIMESTATS_SQLITE_PATH"),
		PostgresDSN: getenv("CRIMESTATS_POSTGRES_DSN"),
	}
	if cfg.Driver == "" {
		if cfg.Path != "" {
			cfg.Driver = MappingFile
		} else {
			cfg.Driver = MappingBuiltin
		}
	}
	return cfg
}

// OpenMappingStore opens the store backing a memory, sqlite or postgres
// configuration. Builtin and file sources have no store.
func OpenMappingStore(ctx context.Context, cfg MappingConfig) (MappingStore, error) {
	switch cfg.Driver {
	case MappingMemory:
		store, err := memory.NewStore()
		if err != nil {
			return nil, err
		}
		return store, nil
	case MappingSQLite:
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case MappingPostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	case MappingBuiltin, MappingFile:
		return nil, fmt.Errorf("mapping driver %s has no store", cfg.Driver)
	default:
		return nil, fmt.Errorf("unknown mapping driver %s", cfg.Driver)
	}
}

// DefaultMappings returns the builtin mapping set.
func DefaultMappings() MappingSet { return domain.DefaultMappings() }

// LoadMappings resolves the mapping set for cfg. An empty store is seeded
// with the builtin set so a fresh database behaves like the builtin driver.
func LoadMappings(ctx context.Context, cfg MappingConfig) (MappingSet, error) {
	switch cfg.Driver {
	case "", MappingBuiltin:
		return DefaultMappings(), nil
	case MappingFile:
		return loadMappingFile(cfg.Path)
	}
	store, err := OpenMappingStore(ctx, cfg)
	if err != nil {
		return MappingSet{}, err
	}
	defer func() { _ = store.Close() }()
	set, err := store.LoadMappings(ctx, cfg.Version)
	if errors.Is(err, ErrMappingsNotFound) && cfg.Version == "" {
		set = DefaultMappings()
		if err := store.SaveMappings(ctx, set); err != nil {
			return MappingSet{}, fmt.Errorf("seed mappings: %w", err)
		}
		return set, nil
	}
	if err != nil {
		return MappingSet{}, err
	}
	return set, nil
}

func loadMappingFile(path string) (MappingSet, error) {
	if path == "" {
		return MappingSet{}, fmt.Errorf("%w: mapping file path is empty", ErrInputMissing)
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return MappingSet{}, fmt.Errorf("%w: %s", ErrInputMissing, path)
	}
	if err != nil {
		return MappingSet{}, fmt.Errorf("open mappings: %w", err)
	}
	defer func() { _ = f.Close() }()
	set, err := domain.DecodeMappingSet(f)
	if err != nil {
		return MappingSet{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return set, nil
}
