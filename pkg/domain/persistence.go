package domain

import (
	"context"
	"errors"
)

// ErrMappingsNotFound is returned when a requested mapping version does not
// exist, or when a store holds no mapping sets at all.
var ErrMappingsNotFound = errors.New("mapping set not found")

// ErrMappingVersionExists is returned when saving a version that is already
// stored. Stored versions are immutable.
var ErrMappingVersionExists = errors.New("mapping set version already exists")

// MappingStore persists versioned mapping sets.
type MappingStore interface {
	// LoadMappings returns the named version, or the most recently saved set
	// when version is empty.
	LoadMappings(ctx context.Context, version string) (MappingSet, error)
	SaveMappings(ctx context.Context, set MappingSet) error
	// MappingVersions lists stored versions in save order.
	MappingVersions(ctx context.Context) ([]string, error)
	Close() error
}
