// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS blobs (
	id         TEXT PRIMARY KEY,
	mime       TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	data       BLOB NOT NULL,
	created_at INTEGER NOT NULL
);`

// SQLiteStore keeps blobs in a single sqlite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the blob database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create blob directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get loads a blob.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Blob, error) {
	var (
		b       Blob
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, mime, name, data, created_at FROM blobs WHERE id = ?`, id,
	).Scan(&b.ID, &b.MIME, &b.Name, &b.Data, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Blob{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Blob{}, fmt.Errorf("failed to load blob %s: %w", id, err)
	}
	b.CreatedAt = time.UnixMilli(created)
	return b, nil
}

// Put stores a blob, replacing any blob with the same id.
func (s *SQLiteStore) Put(ctx context.Context, b Blob) error {
	if b.ID == "" {
		return errors.New("blob id cannot be empty")
	}
	b.DetectMIME()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO blobs (id, mime, name, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.MIME, b.Name, b.Data, b.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store blob %s: %w", b.ID, err)
	}
	return nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", id, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
