// Package refs re-exports reference-ledger abstractions for stable internal imports.
package refs

import (
	"trailvision/internal/refs/core"
)

type (
	// Entry records one issued access reference.
	Entry = core.Entry
	// Ledger persists issued references keyed by (source, variant).
	Ledger = core.Ledger
)

// ErrNoEntries indicates a source with no recorded references.
var ErrNoEntries = core.ErrNoEntries
