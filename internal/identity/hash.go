package identity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

// DIDMethod prefixes every citizen DID.
const DIDMethod = "did:bharatchain:"

// DefaultBiometricIterations is the PBKDF2 work factor used when none is configured.
const DefaultBiometricIterations = 100_000

// ErrEmptyBiometric is returned when a biometric sample has no bytes.
var ErrEmptyBiometric = errors.New("biometric sample is empty")

// Hasher derives the one-way identifiers stored in place of raw citizen data.
// Raw UIDs and biometric samples never leave it.
type Hasher struct {
	secret     string
	iterations int
}

// NewHasher creates a Hasher. secret salts UID hashes; iterations <= 0 uses
// DefaultBiometricIterations.
func NewHasher(secret string, iterations int) *Hasher {
	if iterations <= 0 {
		iterations = DefaultBiometricIterations
	}
	return &Hasher{secret: secret, iterations: iterations}
}

// SHA3 returns the hex SHA3-256 digest of s.
func SHA3(s string) string {
	sum := sha3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashUID returns the salted digest stored in place of a national UID.
func (h *Hasher) HashUID(uid string) string {
	return SHA3(uid + h.secret)
}

// DID derives the citizen's decentralized identifier from a UID hash. The same
// UID always yields the same DID.
func DID(uidHash string) string {
	return DIDMethod + SHA3(uidHash)[:32]
}

// HashBiometric stretches a raw biometric sample with PBKDF2-HMAC-SHA256,
// salted with the citizen's UID hash, and returns it base64 encoded.
func (h *Hasher) HashBiometric(sample []byte, uidHash string) (string, error) {
	if len(sample) == 0 {
		return "", ErrEmptyBiometric
	}
	key := pbkdf2.Key(sample, []byte(uidHash), h.iterations, sha256.Size, sha256.New)
	return base64.StdEncoding.EncodeToString(key), nil
}

// VerifyBiometric reports whether sample matches stored. The comparison is
// constant time; an empty stored template never matches.
func (h *Hasher) VerifyBiometric(sample []byte, uidHash, stored string) bool {
	if stored == "" {
		return false
	}
	computed, err := h.HashBiometric(sample, uidHash)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(stored)) == 1
}
