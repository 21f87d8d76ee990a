package consent

import (
	"time"

	"github.com/google/uuid"
)

// Grant is a citizen's authorization of one requester for a set of modules.
// Grants are deactivated, never deleted.
type Grant struct {
	ID            uuid.UUID  `json:"id"`
	CitizenID     string     `json:"citizen_id"`
	RequesterID   string     `json:"requester_id"`
	RequesterName string     `json:"requester_name"`
	RequesterTier Tier       `json:"requester_tier"` // snapshot at grant time
	Modules       []Module   `json:"modules"`
	Active        bool       `json:"active"`
	GrantedAt     time.Time  `json:"granted_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"` // nil = never
	BlockHash     string     `json:"block_hash"`
}

// ValidAt reports whether g is active and unexpired at now. A grant whose
// expiry equals now is already expired.
func (g *Grant) ValidAt(now time.Time) bool {
	return g.Active && (g.ExpiresAt == nil || g.ExpiresAt.After(now))
}

// Covers reports whether m is among the granted modules.
func (g *Grant) Covers(m Module) bool {
	for _, gm := range g.Modules {
		if gm == m {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of g.
func (g *Grant) Clone() *Grant {
	cp := *g
	cp.Modules = append([]Module(nil), g.Modules...)
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}

func cloneGrants(gs []*Grant) []*Grant {
	out := make([]*Grant, len(gs))
	for i, g := range gs {
		out[i] = g.Clone()
	}
	return out
}
