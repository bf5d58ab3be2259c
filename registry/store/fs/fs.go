// Package fs provides a filesystem implementation of the registry store.
// Each definition lives in its own {id}.json file next to a
// version_index.json that maps id to specification hash, so callers can
// check staleness without decoding full definitions.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/socaity/fastsdk-go/registry/store"
	"github.com/socaity/fastsdk-go/service"
)

const versionIndexFile = "version_index.json"

// Store is a filesystem store.Store implementation.
type Store struct {
	dir string
	mu  sync.Mutex
}

var _ store.Store = (*Store)(nil)

// New creates a filesystem store rooted at dir, creating it when missing.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Save writes the definition to {id}.json and refreshes the version index.
func (s *Store) Save(_ context.Context, def *service.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("encode definition %q: %w", def.ID, err)
	}
	if err := os.WriteFile(s.path(def.ID), data, 0o644); err != nil {
		return fmt.Errorf("write definition %q: %w", def.ID, err)
	}

	index, err := s.readIndex()
	if err != nil {
		return err
	}
	index[def.ID] = def.Version
	return s.writeIndex(index)
}

// Get loads a definition by id, falling back to a scan by normalized display
// name.
func (s *Store) Get(ctx context.Context, idOrName string) (*service.Definition, error) {
	s.mu.Lock()
	def, err := s.read(idOrName)
	s.mu.Unlock()
	if err == nil {
		return def, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read definition %q: %w", idOrName, err)
	}

	normalized := service.NormalizeName(idOrName)
	defs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if service.NormalizeName(def.DisplayName) == normalized {
			return def, nil
		}
	}
	return nil, store.ErrNotFound
}

// Delete removes the definition file and its version index entry.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("delete definition %q: %w", id, err)
	}
	index, err := s.readIndex()
	if err != nil {
		return err
	}
	delete(index, id)
	return s.writeIndex(index)
}

// List decodes every {id}.json in the store directory.
func (s *Store) List(_ context.Context) ([]*service.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read store directory: %w", err)
	}
	var defs []*service.Definition
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == versionIndexFile || !strings.HasSuffix(name, ".json") {
			continue
		}
		def, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, fmt.Errorf("read definition file %s: %w", name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// VersionIndex returns the id to spec-hash map.
func (s *Store) VersionIndex(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readIndex()
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) read(id string) (*service.Definition, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, err
	}
	var def service.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *Store) readIndex() (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, versionIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("read version index: %w", err)
	}
	index := make(map[string]string)
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("decode version index: %w", err)
	}
	return index, nil
}

func (s *Store) writeIndex(index map[string]string) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("encode version index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, versionIndexFile), data, 0o644); err != nil {
		return fmt.Errorf("write version index: %w", err)
	}
	return nil
}
