package pipeline

import "errors"

// Error taxonomy for callers. Per-variant failures never abort sibling
// variants; only a failed source read is fatal to a Process call.
var (
	// ErrSourceNotFound: the source key does not resolve. Fatal; nothing is attempted.
	ErrSourceNotFound = errors.New("pipeline: source image not found")
	// ErrNotFound: the derived object is gone; the caller must re-run Process.
	ErrNotFound = errors.New("pipeline: derived image not found")
	// ErrStorageRead wraps transient source read failures. Retrying the whole
	// Process call is safe (idempotent overwrite).
	ErrStorageRead = errors.New("pipeline: storage read failed")
	// ErrStorageWrite wraps per-variant write failures.
	ErrStorageWrite = errors.New("pipeline: storage write failed")
)
