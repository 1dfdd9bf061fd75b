// Package catalog persists per-file scan metadata next to a persisted index
// so a warm start only re-indexes files that actually changed.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

// Catalog is a SQLite table of (path, mtime, size) for every indexed file.
type Catalog struct {
	db *sql.DB
}

// Entry is the recorded state of one indexed file.
type Entry struct {
	Path  string
	MTime int64
	Size  int64
}

// Open opens (or creates) the catalog database inside dir.
func Open(dir string) (*Catalog, error) {
	if dir == "" {
		return nil, errors.New("catalog directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "catalog.db"))
	if err != nil {
		return nil, err
	}
	c := &Catalog{db: db}
	if err := c.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS files (
			path  TEXT NOT NULL PRIMARY KEY,
			mtime INTEGER NOT NULL,
			size  INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure catalog schema: %w", err)
		}
	}
	return nil
}

// All returns every recorded entry keyed by path.
func (c *Catalog) All(ctx context.Context) (map[string]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT path, mtime, size FROM files`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make(map[string]Entry)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Path, &e.MTime, &e.Size); err != nil {
			return nil, err
		}
		entries[e.Path] = e
	}
	return entries, rows.Err()
}

// Upsert records the current state of path.
func (c *Catalog) Upsert(ctx context.Context, path string, mtime, size int64) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO files (path, mtime, size) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET mtime = excluded.mtime, size = excluded.size`,
		path, mtime, size)
	return err
}

// Delete forgets path. Unknown paths are not an error.
func (c *Catalog) Delete(ctx context.Context, path string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path)
	return err
}

// DeletePrefix forgets every path starting with prefix.
func (c *Catalog) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM files WHERE substr(path, 1, ?) = ?`, utf8.RuneCountInString(prefix), prefix)
	return err
}

// Close releases the database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}
