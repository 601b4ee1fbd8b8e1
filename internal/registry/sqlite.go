package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencode-ai/wagate/pkg/types"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	position    INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	ready       INTEGER NOT NULL DEFAULT 0
);`

// SQLiteStore keeps the registry in an embedded SQLite database.
// Insertion order is preserved through the autoincrement position column.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the registry database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	// a single writer keeps read-modify-write sequences serialized
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, &ConfigurationError{Path: path, Err: err}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, &ConfigurationError{Path: path, Err: err}
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Load returns descriptors in insertion order.
func (s *SQLiteStore) Load(ctx context.Context) ([]types.SessionDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, description, ready FROM sessions ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	out := []types.SessionDescriptor{}
	for rows.Next() {
		var d types.SessionDescriptor
		if err := rows.Scan(&d.ID, &d.Description, &d.Ready); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Save replaces the table in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, descriptors []types.SessionDescriptor) error {
	descriptors, _ = dedupe(descriptors)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	for _, d := range descriptors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, description, ready) VALUES (?, ?, ?)`,
			d.ID, d.Description, d.Ready,
		); err != nil {
			return fmt.Errorf("failed to insert session %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// Insert adds d unless the id exists.
func (s *SQLiteStore) Insert(ctx context.Context, d types.SessionDescriptor) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, description, ready) VALUES (?, ?, ?)`,
		d.ID, d.Description, d.Ready,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert session %s: %w", d.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetReady marks id ready.
func (s *SQLiteStore) SetReady(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET ready = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

// Remove deletes id.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
