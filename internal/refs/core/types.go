// Package core models the access-reference lifecycle: which URL was issued
// for which derived image, and when signed URLs stop being valid. Reference
// validity is independent of object durability; an expired entry only means
// the URL must be re-issued, never that the derived image is gone.
package core

import (
	"context"
	"errors"
	"time"
)

// Entry records one issued access reference.
type Entry struct {
	SourceKey  string    `json:"source_key"`
	Variant    string    `json:"variant"`
	DerivedKey string    `json:"derived_key"`
	URL        string    `json:"url"`
	Public     bool      `json:"public"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"` // zero for public references
}

// Expired reports whether the entry's URL is no longer usable at now.
// Public references never expire.
func (e Entry) Expired(now time.Time) bool {
	if e.Public || e.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(e.ExpiresAt)
}

// Ledger persists issued references keyed by (source, variant). Record
// replaces any previous entry for the same pair, matching the
// last-writer-wins semantics of reprocessing.
type Ledger interface {
	Record(ctx context.Context, entries []Entry) error
	Get(ctx context.Context, sourceKey string) ([]Entry, error)
	// Expiring lists signed entries whose expiry is at or before the given
	// instant, oldest first. Public entries are never returned.
	Expiring(ctx context.Context, before time.Time) ([]Entry, error)
	// Invalidate drops all entries for a source, marking it pending refresh.
	Invalidate(ctx context.Context, sourceKey string) error
	Close() error
}

// ErrNoEntries is returned by Get when a source has no recorded references.
var ErrNoEntries = errors.New("refs: no entries for source")
