// Package store is the upload registry: a small sqlite3 database mapping
// a content hash to a staged file's id, schema, and row count, so a
// re-upload of identical bytes dedupes to the existing id (spec.md §6).
// Connection setup follows the teacher's database.go idiom (bounded pool,
// embedded DDL run once at open).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS uploads (
	id          TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL UNIQUE,
	filename    TEXT NOT NULL,
	row_count   INTEGER NOT NULL,
	columns_json TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_uploads_hash ON uploads(content_hash);
`

// Registry is the upload registry's database handle.
type Registry struct {
	db *sql.DB
}

// Open connects to (and, if needed, creates) the registry database at
// dbPath.
func Open(dbPath string) (*Registry, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize registry schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close closes the registry's database connection.
func (r *Registry) Close() error { return r.db.Close() }

// Upload is one registered staged file.
type Upload struct {
	ID          string
	ContentHash string
	Filename    string
	RowCount    int
	ColumnsJSON string
	CreatedAt   time.Time
}

// FindByHash returns the existing upload registered under hash, if any.
func (r *Registry) FindByHash(ctx context.Context, hash string) (*Upload, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, content_hash, filename, row_count, columns_json, created_at FROM uploads WHERE content_hash = ?`, hash)

	var u Upload
	if err := row.Scan(&u.ID, &u.ContentHash, &u.Filename, &u.RowCount, &u.ColumnsJSON, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find upload by hash: %w", err)
	}
	return &u, nil
}

// FindByID returns the upload registered under id.
func (r *Registry) FindByID(ctx context.Context, id string) (*Upload, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, content_hash, filename, row_count, columns_json, created_at FROM uploads WHERE id = ?`, id)

	var u Upload
	if err := row.Scan(&u.ID, &u.ContentHash, &u.Filename, &u.RowCount, &u.ColumnsJSON, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find upload by id: %w", err)
	}
	return &u, nil
}

// Register inserts a new upload record. Callers should check FindByHash
// first so identical content dedupes to one id.
func (r *Registry) Register(ctx context.Context, u Upload) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO uploads (id, content_hash, filename, row_count, columns_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.ContentHash, u.Filename, u.RowCount, u.ColumnsJSON, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("register upload: %w", err)
	}
	return nil
}
