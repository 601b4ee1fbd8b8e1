// Package registry persists the table of known messaging sessions.
//
// The registry is the durable projection of the supervisor's live session
// set: one descriptor per session id, in creation order. Two backends are
// provided, a human-readable JSON file and an embedded SQLite database;
// both satisfy Store and are interchangeable.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/opencode-ai/wagate/pkg/types"
)

// ErrNotFound is returned when a descriptor id is absent from the registry.
var ErrNotFound = errors.New("session descriptor not found")

// Store is the registry contract used by the supervisor and the bootstrapper.
type Store interface {
	// Load returns every descriptor in persisted order.
	Load(ctx context.Context) ([]types.SessionDescriptor, error)
	// Save replaces the whole table.
	Save(ctx context.Context, descriptors []types.SessionDescriptor) error
	// Insert appends d unless a descriptor with the same id exists.
	// It reports whether the descriptor was added.
	Insert(ctx context.Context, d types.SessionDescriptor) (bool, error)
	// SetReady marks id as ready. Returns ErrNotFound if id is absent.
	SetReady(ctx context.Context, id string) error
	// Remove deletes id. Removing an absent id is a no-op.
	Remove(ctx context.Context, id string) error
	// Close releases backend resources.
	Close() error
}

// ConfigurationError reports a registry that exists but cannot be parsed.
// It is fatal at startup.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("malformed session registry %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open opens the registry at path with the named backend.
// An empty backend selects the JSON file.
func Open(ctx context.Context, backend, path string) (Store, error) {
	switch backend {
	case "", BackendFile:
		return OpenFile(ctx, path)
	case BackendSQLite:
		return OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("unknown registry backend %q", backend)
	}
}

// dedupe drops repeated ids, keeping the first occurrence.
func dedupe(in []types.SessionDescriptor) ([]types.SessionDescriptor, []string) {
	seen := make(map[string]bool, len(in))
	out := make([]types.SessionDescriptor, 0, len(in))
	var dropped []string
	for _, d := range in {
		if seen[d.ID] {
			dropped = append(dropped, d.ID)
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	return out, dropped
}

func indexOf(descriptors []types.SessionDescriptor, id string) int {
	for i, d := range descriptors {
		if d.ID == id {
			return i
		}
	}
	return -1
}
