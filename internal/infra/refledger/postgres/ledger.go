// Package postgres implements the reference Ledger on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trailvision/internal/refs/core"
)

// Ledger implements core.Ledger over a pgx connection pool. The table is
// owned by this pipeline; the dashboard's own schema is synced from it by an
// external job.
type Ledger struct {
	pool *pgxpool.Pool
}

const createTable = `CREATE TABLE IF NOT EXISTS image_references (
	source_key  TEXT        NOT NULL,
	variant     TEXT        NOT NULL,
	derived_key TEXT        NOT NULL,
	url         TEXT        NOT NULL,
	public      BOOLEAN     NOT NULL DEFAULT FALSE,
	issued_at   TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ,
	PRIMARY KEY (source_key, variant)
)`

// New connects to the database and ensures the ledger table exists.
func New(ctx context.Context, dsn string) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect ledger db: %w", err)
	}
	if _, err := pool.Exec(ctx, createTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create image_references table: %w", err)
	}
	return &Ledger{pool: pool}, nil
}

// NewFromPool wraps an existing pool without table setup (tests, shared pools).
func NewFromPool(pool *pgxpool.Pool) *Ledger { return &Ledger{pool: pool} }

// Record upserts entries by (source_key, variant).
func (l *Ledger) Record(ctx context.Context, entries []core.Entry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO image_references (source_key, variant, derived_key, url, public, issued_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (source_key, variant) DO UPDATE SET
				derived_key = EXCLUDED.derived_key,
				url         = EXCLUDED.url,
				public      = EXCLUDED.public,
				issued_at   = EXCLUDED.issued_at,
				expires_at  = EXCLUDED.expires_at`,
			e.SourceKey, e.Variant, e.DerivedKey, e.URL, e.Public, e.IssuedAt.UTC(), nullableTime(e.ExpiresAt))
	}
	br := l.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("record reference: %w", err)
		}
	}
	return nil
}

// Get returns all entries for a source in variant order.
func (l *Ledger) Get(ctx context.Context, sourceKey string) ([]core.Entry, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT source_key, variant, derived_key, url, public, issued_at, expires_at
		FROM image_references
		WHERE source_key = $1
		ORDER BY variant`, sourceKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, core.ErrNoEntries
	}
	return entries, nil
}

// Expiring lists signed entries expiring at or before the given instant.
func (l *Ledger) Expiring(ctx context.Context, before time.Time) ([]core.Entry, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT source_key, variant, derived_key, url, public, issued_at, expires_at
		FROM image_references
		WHERE public = FALSE AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at`, before.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Invalidate drops all entries for a source.
func (l *Ledger) Invalidate(ctx context.Context, sourceKey string) error {
	_, err := l.pool.Exec(ctx, `DELETE FROM image_references WHERE source_key = $1`, sourceKey)
	return err
}

// Close releases the pool.
func (l *Ledger) Close() error {
	l.pool.Close()
	return nil
}

func scanEntries(rows pgx.Rows) ([]core.Entry, error) {
	var entries []core.Entry
	for rows.Next() {
		var e core.Entry
		var expires *time.Time
		if err := rows.Scan(&e.SourceKey, &e.Variant, &e.DerivedKey, &e.URL, &e.Public, &e.IssuedAt, &expires); err != nil {
			return nil, err
		}
		if expires != nil {
			e.ExpiresAt = expires.UTC()
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
