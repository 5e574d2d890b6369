// Package sqlite persists the publication ledger in a SQLite database using
// the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"foodpantry/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

// timeLayout is fixed width so published_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `CREATE TABLE IF NOT EXISTS publications (
	id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	key TEXT NOT NULL,
	version TEXT NOT NULL,
	duplicates INTEGER NOT NULL DEFAULT 0,
	stats TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	etag TEXT NOT NULL DEFAULT '',
	published_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS publications_state_published ON publications(state, published_at)`

// Store is a SQLite-backed ledger.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path. ":memory:" is
// accepted for tests.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "pantry.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	for _, stmt := range strings.Split(schema, ";\n") {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create publications table: %w", err)
		}
	}
	return &Store{db: db, path: path}, nil
}

// Record inserts p.
func (s *Store) Record(ctx context.Context, p ledger.Publication) error {
	if err := ledger.Validate(p); err != nil {
		return err
	}
	stats, err := json.Marshal(p.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO publications(id,state,key,version,duplicates,stats,size,etag,published_at) VALUES(?,?,?,?,?,?,?,?,?) ON CONFLICT(id) DO NOTHING`,
		p.ID, p.State, p.Key, p.Version, p.Duplicates, string(stats), p.Size, p.ETag, p.PublishedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert publication: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrDuplicate, p.ID)
	}
	return nil
}

// List returns matching publications, newest first.
func (s *Store) List(ctx context.Context, f ledger.Filter) ([]ledger.Publication, error) {
	f = ledger.NormalizeFilter(f)
	query := `SELECT id, state, key, version, duplicates, stats, size, etag, published_at FROM publications`
	var args []any
	if f.State != "" {
		query += ` WHERE state = ?`
		args = append(args, f.State)
	}
	query += ` ORDER BY published_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select publications: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []ledger.Publication
	for rows.Next() {
		var (
			p         ledger.Publication
			stats     string
			published string
		)
		if err := rows.Scan(&p.ID, &p.State, &p.Key, &p.Version, &p.Duplicates, &stats, &p.Size, &p.ETag, &published); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if err := json.Unmarshal([]byte(stats), &p.Stats); err != nil {
			return nil, fmt.Errorf("decode stats for %s: %w", p.ID, err)
		}
		if p.PublishedAt, err = time.Parse(timeLayout, published); err != nil {
			return nil, fmt.Errorf("decode published_at for %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
