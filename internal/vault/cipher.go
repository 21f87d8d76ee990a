// Package vault encrypts citizen data at rest.
//
// Ciphertexts are base64(nonce || XChaCha20-Poly1305 sealed box). The random
// 24-byte nonce makes repeated encryptions of the same plaintext distinct.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrInvalidKey is returned when the configured key is not base64 of 32 bytes.
	ErrInvalidKey = errors.New("encryption key must be base64 of 32 bytes")

	// ErrNotReady is returned by a nil Cipher.
	ErrNotReady = errors.New("cipher not initialized")

	// ErrCiphertext is returned when a ciphertext is malformed or fails authentication.
	ErrCiphertext = errors.New("ciphertext invalid or tampered")
)

// Cipher seals and opens strings and JSON documents with a single symmetric key.
// It is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a base64 (standard or URL alphabet) 32-byte key.
func NewCipher(key string) (*Cipher, error) {
	raw, err := decodeKey(key)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(raw)
	if err != nil {
		return nil, fmt.Errorf("init xchacha20-poly1305: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func decodeKey(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
		if raw, err := enc.DecodeString(key); err == nil && len(raw) == chacha20poly1305.KeySize {
			return raw, nil
		}
	}
	return nil, ErrInvalidKey
}

// GenerateKey returns a fresh random key in the form NewCipher accepts.
func GenerateKey() (string, error) {
	raw := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Status reports "ok" once the cipher holds a key.
func (c *Cipher) Status() string {
	if c == nil || c.aead == nil {
		return "not initialized"
	}
	return "ok"
}

// Encrypt seals plaintext and returns it base64 encoded.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if c == nil || c.aead == nil {
		return "", ErrNotReady
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if c == nil || c.aead == nil {
		return "", ErrNotReady
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrCiphertext)
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrCiphertext
	}
	return string(plain), nil
}

// EncryptJSON marshals v and seals the result.
func (c *Cipher) EncryptJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal for encryption: %w", err)
	}
	return c.Encrypt(string(data))
}

// DecryptJSON opens ciphertext and unmarshals it into v.
func (c *Cipher) DecryptJSON(ciphertext string, v any) error {
	plain, err := c.Decrypt(ciphertext)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(plain), v); err != nil {
		return fmt.Errorf("unmarshal decrypted data: %w", err)
	}
	return nil
}
