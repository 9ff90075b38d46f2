package memstore

import (
	"context"
	"maps"
	"sync"

	"github.com/cognicore/eurovoc/pkg/eurovoc/store"
)

// Store is an in-memory implementation of store.Store for tests.
type Store struct {
	mu       sync.RWMutex
	bodies   map[string]string
	taxonomy *store.TaxonomySnapshot
	puts     int
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{bodies: make(map[string]string)}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// GetBody implements store.BodyCache.
func (s *Store) GetBody(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.bodies[key]
	return text, ok, nil
}

// PutBody implements store.BodyCache.
func (s *Store) PutBody(ctx context.Context, key string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	s.bodies[key] = text
	return nil
}

// LoadTaxonomy implements store.TaxonomyCache.
func (s *Store) LoadTaxonomy(ctx context.Context) (store.TaxonomySnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.taxonomy == nil {
		return store.TaxonomySnapshot{}, false, nil
	}
	return copySnapshot(*s.taxonomy), true, nil
}

// SaveTaxonomy implements store.TaxonomyCache.
func (s *Store) SaveTaxonomy(ctx context.Context, snap store.TaxonomySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copySnapshot(snap)
	s.taxonomy = &cp
	return nil
}

// Bodies returns the number of cached bodies.
func (s *Store) Bodies() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bodies)
}

// Puts returns how many body writes the store received.
func (s *Store) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}

func copySnapshot(snap store.TaxonomySnapshot) store.TaxonomySnapshot {
	return store.TaxonomySnapshot{
		FetchedAt: snap.FetchedAt,
		Terms:     maps.Clone(snap.Terms),
	}
}
