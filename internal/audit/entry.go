// Package audit records who touched which citizen's data, when, and with what
// outcome. Entries are append-only; the store never updates or deletes them.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action is the kind of access or mutation an entry describes.
type Action string

const (
	ActionRead           Action = "READ"
	ActionWrite          Action = "WRITE"
	ActionVerify         Action = "VERIFY"
	ActionDenied         Action = "DENIED"
	ActionConsentGranted Action = "CONSENT_GRANTED"
	ActionConsentRevoked Action = "CONSENT_REVOKED"
)

// Entry is one row of the audit trail.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	CitizenID string    `json:"citizen_id"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name,omitempty"`
	Action    Action    `json:"action"`
	Module    string    `json:"module"`
	Details   string    `json:"details,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	BlockHash string    `json:"block_hash,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Actor returns the display name, falling back to the actor ID.
func (e *Entry) Actor() string {
	if e.ActorName != "" {
		return e.ActorName
	}
	return e.ActorID
}
