// Package memory provides an in-memory implementation of the registry
// store, suitable for tests and single-process use.
package memory

import (
	"context"
	"sync"

	"github.com/socaity/fastsdk-go/registry/store"
	"github.com/socaity/fastsdk-go/service"
)

// Store is an in-memory store.Store implementation. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]*service.Definition
	names map[string]string
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		byID:  make(map[string]*service.Definition),
		names: make(map[string]string),
	}
}

// Save stores or replaces a definition.
func (s *Store) Save(_ context.Context, def *service.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[def.ID] = def
	if def.DisplayName != "" {
		s.names[service.NormalizeName(def.DisplayName)] = def.ID
	}
	return nil
}

// Get retrieves a definition by id or normalized display name.
func (s *Store) Get(_ context.Context, idOrName string) (*service.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if def, ok := s.byID[idOrName]; ok {
		return def, nil
	}
	if id, ok := s.names[service.NormalizeName(idOrName)]; ok {
		return s.byID[id], nil
	}
	return nil, store.ErrNotFound
}

// Delete removes a definition by id.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.byID, id)
	if def.DisplayName != "" {
		normalized := service.NormalizeName(def.DisplayName)
		if s.names[normalized] == id {
			delete(s.names, normalized)
		}
	}
	return nil
}

// List returns every stored definition.
func (s *Store) List(_ context.Context) ([]*service.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	defs := make([]*service.Definition, 0, len(s.byID))
	for _, def := range s.byID {
		defs = append(defs, def)
	}
	return defs, nil
}

// VersionIndex maps service id to specification hash.
func (s *Store) VersionIndex(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	index := make(map[string]string, len(s.byID))
	for id, def := range s.byID {
		index[id] = def.Version
	}
	return index, nil
}
