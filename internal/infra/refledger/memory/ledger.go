// Package memory implements an in-memory reference Ledger for tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trailvision/internal/refs/core"
)

type pairKey struct {
	source  string
	variant string
}

// Ledger implements core.Ledger backed by process memory.
type Ledger struct {
	mu      sync.RWMutex
	entries map[pairKey]core.Entry
}

// New returns an empty in-memory ledger.
func New() *Ledger { return &Ledger{entries: make(map[pairKey]core.Entry)} }

// Record upserts entries by (source, variant).
func (l *Ledger) Record(_ context.Context, entries []core.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		l.entries[pairKey{e.SourceKey, e.Variant}] = e
	}
	return nil
}

// Get returns all entries for a source in variant order.
func (l *Ledger) Get(_ context.Context, sourceKey string) ([]core.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []core.Entry
	for k, e := range l.entries {
		if k.source == sourceKey {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, core.ErrNoEntries
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Variant < out[j].Variant })
	return out, nil
}

// Expiring lists signed entries expiring at or before the given instant.
func (l *Ledger) Expiring(_ context.Context, before time.Time) ([]core.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []core.Entry
	for _, e := range l.entries {
		if e.Public || e.ExpiresAt.IsZero() {
			continue
		}
		if !e.ExpiresAt.After(before) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

// Invalidate drops all entries for a source.
func (l *Ledger) Invalidate(_ context.Context, sourceKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.entries {
		if k.source == sourceKey {
			delete(l.entries, k)
		}
	}
	return nil
}

// Close is a no-op.
func (l *Ledger) Close() error { return nil }
