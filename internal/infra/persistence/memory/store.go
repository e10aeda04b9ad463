// Package memory provides an in-memory mapping store for tests and
// ephemeral deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"crimestats/pkg/domain"
)

var _ domain.MappingStore = (*Store)(nil)

// Store keeps mapping sets in save order.
type Store struct {
	mu       sync.RWMutex
	sets     map[string]domain.MappingSet
	versions []string
}

// NewStore returns a store seeded with sets, saved in the given order.
func NewStore(seed ...domain.MappingSet) (*Store, error) {
	s := &Store{sets: make(map[string]domain.MappingSet)}
	for _, set := range seed {
		if err := s.SaveMappings(context.Background(), set); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) LoadMappings(_ context.Context, version string) (domain.MappingSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if version == "" {
		if len(s.versions) == 0 {
			return domain.MappingSet{}, domain.ErrMappingsNotFound
		}
		version = s.versions[len(s.versions)-1]
	}
	set, ok := s.sets[version]
	if !ok {
		return domain.MappingSet{}, fmt.Errorf("%w: %s", domain.ErrMappingsNotFound, version)
	}
	return set.Clone(), nil
}

func (s *Store) SaveMappings(_ context.Context, set domain.MappingSet) error {
	if err := set.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sets[set.Version]; exists {
		return fmt.Errorf("%w: %s", domain.ErrMappingVersionExists, set.Version)
	}
	s.sets[set.Version] = set.Clone()
	s.versions = append(s.versions, set.Version)
	return nil
}

func (s *Store) MappingVersions(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.versions...), nil
}

func (s *Store) Close() error { return nil }
