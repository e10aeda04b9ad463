package blob

import (
	"context"
	"fmt"
	"strings"

	"crimestats/internal/infra/blob/fs"
	memorystore "crimestats/internal/infra/blob/memory"
	infraS3 "crimestats/internal/infra/blob/s3"
)

// S3Config re-exports the S3 backend configuration.
type S3Config = infraS3.Config

// Config selects and configures a blob backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// ConfigFromEnv reads the blob configuration:
//
//	CRIMESTATS_BLOB_DRIVER: fs|s3|memory (default fs)
//	CRIMESTATS_BLOB_FS_ROOT: directory root when driver=fs (default ./crimestats-data)
//	CRIMESTATS_BLOB_S3_*: see the s3 backend
func ConfigFromEnv(getenv func(string) string) Config {
	driver := Driver(strings.ToLower(strings.TrimSpace(getenv("CRIMESTATS_BLOB_DRIVER"))))
	if driver == "" {
		driver = DriverFilesystem
	}
	return Config{
		Driver: driver,
		FSRoot: getenv("CRIMESTATS_BLOB_FS_ROOT"),
		S3:     infraS3.ConfigFromEnv(getenv),
	}
}

// Open constructs the Store selected by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewFilesystem constructs a filesystem-backed Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	store, err := fs.New(root)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// NewS3 constructs an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	store, err := infraS3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewMockS3ForTests exposes the in-memory S3 endpoint for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests(0) }
