package pipeline

import "time"

// Reference is a caller-storable pointer to one derived image. Public
// references are permanent canonical addresses; signed references expire at
// ExpiresAt and must be refreshed from the still-durable object.
type Reference struct {
	URL       string    `json:"url"`
	Public    bool      `json:"public"`
	ExpiresAt time.Time `json:"expires_at,omitempty"` // zero for public references
}

// Outcome is the per-variant result of a Process call. Exactly one of
// Reference and Err is meaningful. Outcomes keep spec order so callers can
// tell full from partial success.
type Outcome struct {
	Variant   string
	Key       string
	Reference Reference
	SizeBytes int
	Err       error
}

// References filters outcomes to the success mapping returned by Process.
func References(outcomes []Outcome) map[string]Reference {
	refs := make(map[string]Reference, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil {
			refs[o.Variant] = o.Reference
		}
	}
	return refs
}
