package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/opencode-ai/wagate/internal/logging"
	"github.com/opencode-ai/wagate/internal/storage"
	"github.com/opencode-ai/wagate/pkg/types"
)

// FileStore keeps the registry as a JSON array in a single file.
//
// Every mutation is a full read-modify-write under an exclusive file lock,
// and the new table replaces the old one through an atomic rename.
type FileStore struct {
	path string
	mu   sync.Mutex
	lock *storage.FileLock
}

// OpenFile opens the registry file at path, creating it as an empty table
// if it does not exist. An existing file is never overwritten; if it cannot
// be parsed a *ConfigurationError is returned.
func OpenFile(ctx context.Context, path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		lock: storage.NewFileLock(path),
	}

	err := storage.CreateFileExclusive(path, []byte("[]\n"), 0644)
	switch {
	case err == nil:
		logging.Info().Str("path", path).Msg("Sessions file created")
	case errors.Is(err, storage.ErrExists):
	default:
		return nil, fmt.Errorf("failed to create sessions file: %w", err)
	}

	if _, err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the registry file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the registry table.
func (s *FileStore) Load(ctx context.Context) ([]types.SessionDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Save replaces the registry table.
func (s *FileStore) Save(ctx context.Context, descriptors []types.SessionDescriptor) error {
	return s.mutate(func([]types.SessionDescriptor) ([]types.SessionDescriptor, bool, error) {
		out, _ := dedupe(descriptors)
		return out, true, nil
	})
}

// Insert appends d if its id is not present.
func (s *FileStore) Insert(ctx context.Context, d types.SessionDescriptor) (bool, error) {
	added := false
	err := s.mutate(func(table []types.SessionDescriptor) ([]types.SessionDescriptor, bool, error) {
		if indexOf(table, d.ID) >= 0 {
			return table, false, nil
		}
		added = true
		return append(table, d), true, nil
	})
	return added, err
}

// SetReady flips the ready flag of id.
func (s *FileStore) SetReady(ctx context.Context, id string) error {
	return s.mutate(func(table []types.SessionDescriptor) ([]types.SessionDescriptor, bool, error) {
		i := indexOf(table, id)
		if i < 0 {
			return nil, false, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		if table[i].Ready {
			return table, false, nil
		}
		table[i].Ready = true
		return table, true, nil
	})
}

// Remove deletes id from the table.
func (s *FileStore) Remove(ctx context.Context, id string) error {
	return s.mutate(func(table []types.SessionDescriptor) ([]types.SessionDescriptor, bool, error) {
		i := indexOf(table, id)
		if i < 0 {
			return table, false, nil
		}
		return append(table[:i], table[i+1:]...), true, nil
	})
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}

// mutate runs fn on the current table and writes the result when fn reports a change.
func (s *FileStore) mutate(fn func([]types.SessionDescriptor) ([]types.SessionDescriptor, bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire registry lock: %w", err)
	}
	defer s.lock.Unlock()

	table, err := s.read()
	if err != nil {
		return err
	}

	next, changed, err := fn(table)
	if err != nil || !changed {
		return err
	}
	return s.write(next)
}

func (s *FileStore) read() ([]types.SessionDescriptor, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions file: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		logging.Warn().Str("path", s.path).Msg("Sessions file is empty, treating as empty table")
		return []types.SessionDescriptor{}, nil
	}

	var table []types.SessionDescriptor
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, &ConfigurationError{Path: s.path, Err: err}
	}
	if table == nil {
		table = []types.SessionDescriptor{}
	}

	table, dropped := dedupe(table)
	if len(dropped) > 0 {
		logging.Warn().Str("path", s.path).Strs("ids", dropped).Msg("Duplicate session ids ignored")
	}
	return table, nil
}

func (s *FileStore) write(table []types.SessionDescriptor) error {
	if table == nil {
		table = []types.SessionDescriptor{}
	}
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	data = append(data, '\n')

	if err := storage.WriteFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write sessions file: %w", err)
	}
	return nil
}
