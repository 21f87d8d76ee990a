package model

import (
	"time"

	"github.com/google/uuid"
)

// BiometricKind names an enrollable biometric modality.
type BiometricKind string

const (
	BiometricIris        BiometricKind = "iris"
	BiometricFingerprint BiometricKind = "fingerprint"
	BiometricFace        BiometricKind = "face"
)

// BiometricKinds lists every modality in enrollment order.
var BiometricKinds = []BiometricKind{BiometricIris, BiometricFingerprint, BiometricFace}

// Valid reports whether k is a known modality.
func (k BiometricKind) Valid() bool {
	switch k {
	case BiometricIris, BiometricFingerprint, BiometricFace:
		return true
	}
	return false
}

// Citizen is a registered identity. Personal fields are held only as
// ciphertext and the national UID only as a salted hash.
type Citizen struct {
	ID                uuid.UUID `json:"id"                db:"id"`
	DID               string    `json:"did"               db:"did"`
	UIDHash           string    `json:"-"                 db:"uid_hash"`
	FullNameEncrypted string    `json:"-"                 db:"full_name_encrypted"`
	DOBEncrypted      string    `json:"-"                 db:"dob_encrypted"`
	GenderEncrypted   string    `json:"-"                 db:"gender_encrypted"`
	AddressEncrypted  string    `json:"-"                 db:"address_encrypted"`
	IrisHash          string    `json:"-"                 db:"iris_hash"`
	FingerprintHash   string    `json:"-"                 db:"fingerprint_hash"`
	FaceHash          string    `json:"-"                 db:"face_hash"`
	BlockHash         string    `json:"block_hash"        db:"block_hash"`
	IsActive          bool      `json:"is_active"         db:"is_active"`
	CreatedAt         time.Time `json:"created_at"        db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"        db:"updated_at"`
}

// BiometricHash returns the stored template for kind, or "" when not enrolled.
func (c *Citizen) BiometricHash(kind BiometricKind) string {
	switch kind {
	case BiometricIris:
		return c.IrisHash
	case BiometricFingerprint:
		return c.FingerprintHash
	case BiometricFace:
		return c.FaceHash
	}
	return ""
}

// SetBiometricHash stores the template for kind.
func (c *Citizen) SetBiometricHash(kind BiometricKind, hash string) {
	switch kind {
	case BiometricIris:
		c.IrisHash = hash
	case BiometricFingerprint:
		c.FingerprintHash = hash
	case BiometricFace:
		c.FaceHash = hash
	}
}

// CitizenView is the public-safe projection of a Citizen.
type CitizenView struct {
	CitizenID          string          `json:"citizen_id"`
	DID                string          `json:"did"`
	BlockHash          string          `json:"block_hash"`
	IsActive           bool            `json:"is_active"`
	CreatedAt          time.Time       `json:"created_at"`
	BiometricsEnrolled map[string]bool `json:"biometrics_enrolled"`
}

// View returns the public-safe projection of c.
func (c *Citizen) View() *CitizenView {
	enrolled := make(map[string]bool, len(BiometricKinds))
	for _, k := range BiometricKinds {
		enrolled[string(k)] = c.BiometricHash(k) != ""
	}
	return &CitizenView{
		CitizenID:          c.ID.String(),
		DID:                c.DID,
		BlockHash:          c.BlockHash,
		IsActive:           c.IsActive,
		CreatedAt:          c.CreatedAt,
		BiometricsEnrolled: enrolled,
	}
}
