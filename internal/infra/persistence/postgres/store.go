// Package postgres persists the publication ledger in Postgres through the
// pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"foodpantry/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/pantry?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS publications (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		key TEXT NOT NULL,
		version TEXT NOT NULL,
		duplicates INTEGER NOT NULL DEFAULT 0,
		stats JSONB NOT NULL,
		size BIGINT NOT NULL DEFAULT 0,
		etag TEXT NOT NULL DEFAULT '',
		published_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS publications_state_published ON publications (state, published_at DESC)`,
}

// Store is a Postgres-backed ledger.
type Store struct {
	db *sql.DB
}

// NewStore opens a ledger using dsn (falls back to defaultDSN) and ensures
// the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Record inserts p inside a transaction.
func (s *Store) Record(ctx context.Context, p ledger.Publication) error {
	if err := ledger.Validate(p); err != nil {
		return err
	}
	stats, err := json.Marshal(p.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO publications(id,state,key,version,duplicates,stats,size,etag,published_at) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9) ON CONFLICT(id) DO NOTHING`,
		p.ID, p.State, p.Key, p.Version, p.Duplicates, string(stats), p.Size, p.ETag, p.PublishedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert publication: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrDuplicate, p.ID)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// List returns matching publications, newest first.
func (s *Store) List(ctx context.Context, f ledger.Filter) ([]ledger.Publication, error) {
	f = ledger.NormalizeFilter(f)
	query := `SELECT id, state, key, version, duplicates, stats, size, etag, published_at FROM publications`
	var args []any
	if f.State != "" {
		args = append(args, f.State)
		query += ` WHERE state = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY published_at DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select publications: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []ledger.Publication
	for rows.Next() {
		var (
			p     ledger.Publication
			stats []byte
		)
		if err := rows.Scan(&p.ID, &p.State, &p.Key, &p.Version, &p.Duplicates, &stats, &p.Size, &p.ETag, &p.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan publication: %w", err)
		}
		if len(stats) > 0 {
			if err := json.Unmarshal(stats, &p.Stats); err != nil {
				return nil, fmt.Errorf("decode stats for %s: %w", p.ID, err)
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate publications: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
