// Package store defines the persistence contract for registered service
// definitions. Implementations live in the subpackages: memory (tests and
// ephemeral use), fs (local JSON files), mongo and redis (shared
// deployments).
package store

import (
	"context"
	"errors"

	"github.com/socaity/fastsdk-go/service"
)

// ErrNotFound is returned by Get when no definition matches.
var ErrNotFound = errors.New("service definition not found")

// Store persists service definitions keyed by id. Get also accepts a
// normalized display name so registries can hydrate by either handle.
type Store interface {
	// Save stores or replaces a definition.
	Save(ctx context.Context, def *service.Definition) error
	// Get retrieves a definition by id or normalized display name.
	// Returns ErrNotFound when no definition matches.
	Get(ctx context.Context, idOrName string) (*service.Definition, error)
	// Delete removes a definition by id. Returns ErrNotFound when absent.
	Delete(ctx context.Context, id string) error
	// List returns every stored definition.
	List(ctx context.Context) ([]*service.Definition, error)
	// VersionIndex maps service id to specification hash. Registries use it
	// to detect stale cached definitions without loading full documents.
	VersionIndex(ctx context.Context) (map[string]string, error)
}
