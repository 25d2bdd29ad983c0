// Package sqlite implements the reference Ledger on a local SQLite file for
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"trailvision/internal/refs/core"
)

// Ledger implements core.Ledger over a SQLite database file.
type Ledger struct {
	db *sql.DB
}

const createTable = `CREATE TABLE IF NOT EXISTS image_references (
	source_key  TEXT    NOT NULL,
	variant     TEXT    NOT NULL,
	derived_key TEXT    NOT NULL,
	url         TEXT    NOT NULL,
	public      INTEGER NOT NULL DEFAULT 0,
	issued_at   TEXT    NOT NULL,
	expires_at  TEXT,
	PRIMARY KEY (source_key, variant)
)`

// New opens (creating if needed) the ledger database at path.
func New(path string) (*Ledger, error) {
	if path == "" {
		path = "trailvision.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(createTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create image_references table: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record upserts entries by (source_key, variant).
func (l *Ledger) Record(ctx context.Context, entries []core.Entry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO image_references (source_key, variant, derived_key, url, public, issued_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (source_key, variant) DO UPDATE SET
				derived_key = excluded.derived_key,
				url         = excluded.url,
				public      = excluded.public,
				issued_at   = excluded.issued_at,
				expires_at  = excluded.expires_at`,
			e.SourceKey, e.Variant, e.DerivedKey, e.URL, boolToInt(e.Public),
			e.IssuedAt.UTC().Format(time.RFC3339Nano), nullableTime(e.ExpiresAt)); err != nil {
			return fmt.Errorf("record reference: %w", err)
		}
	}
	return tx.Commit()
}

// Get returns all entries for a source in variant order.
func (l *Ledger) Get(ctx context.Context, sourceKey string) ([]core.Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT source_key, variant, derived_key, url, public, issued_at, expires_at
		FROM image_references
		WHERE source_key = ?
		ORDER BY variant`, sourceKey)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
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
	rows, err := l.db.QueryContext(ctx, `
		SELECT source_key, variant, derived_key, url, public, issued_at, expires_at
		FROM image_references
		WHERE public = 0 AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at`, before.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

// Invalidate drops all entries for a source.
func (l *Ledger) Invalidate(ctx context.Context, sourceKey string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM image_references WHERE source_key = ?`, sourceKey)
	return err
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

func scanEntries(rows *sql.Rows) ([]core.Entry, error) {
	var entries []core.Entry
	for rows.Next() {
		var e core.Entry
		var public int
		var issued string
		var expires sql.NullString
		if err := rows.Scan(&e.SourceKey, &e.Variant, &e.DerivedKey, &e.URL, &public, &issued, &expires); err != nil {
			return nil, err
		}
		e.Public = public != 0
		t, err := time.Parse(time.RFC3339Nano, issued)
		if err != nil {
			return nil, fmt.Errorf("parse issued_at: %w", err)
		}
		e.IssuedAt = t
		if expires.Valid {
			x, err := time.Parse(time.RFC3339Nano, expires.String)
			if err != nil {
				return nil, fmt.Errorf("parse expires_at: %w", err)
			}
			e.ExpiresAt = x
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
