package model

import (
	"time"

	"github.com/google/uuid"
)

// Record is one entry in a citizen's health, financial, property or assets
// module. Sensitive fields live in DataEncrypted; Attributes holds the
// non-sensitive descriptors that are safe to index.
type Record struct {
	ID        uuid.UUID `json:"id"          db:"id"`
	CitizenID uuid.UUID `json:"citizen_id"  db:"citizen_id"`
	Module    string    `json:"module"      db:"module"`
	// Kind is the module-specific record type (prescription, ITR, apartment, mutual_fund).
	Kind string `json:"kind" db:"kind"`
	// Reference is the module's natural key: provider ID, PAN hash, property UID or source.
	Reference     string         `json:"reference"   db:"reference"`
	Attributes    map[string]any `json:"attributes"  db:"attributes"`
	DataEncrypted string         `json:"-"           db:"data_encrypted"`
	BlockHash     string         `json:"block_hash"  db:"block_hash"`
	RecordDate    time.Time      `json:"record_date" db:"record_date"`
	CreatedAt     time.Time      `json:"created_at"  db:"created_at"`
}
