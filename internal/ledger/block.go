package ledger

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"
)

// GenesisHash is the PrevHash of the genesis block. It is the trust anchor
// every chain walk starts from.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Block types written by the registry.
const (
	TypeGenesis         = "GENESIS"
	TypeIdentity        = "IDENTITY"
	TypeConsent         = "CONSENT"
	TypeHealthRecord    = "HEALTH_RECORD"
	TypeFinancialRecord = "FINANCIAL_RECORD"
	TypePropertyTitle   = "PROPERTY_TITLE"
	TypeAssetSync       = "ASSET_SYNC"
)

const genesisMessage = "BharatChain genesis block"

// Block is a single entry in the chain. Blocks are immutable once written;
// every accessor hands out a deep copy.
type Block struct {
	Sequence  uint64         `json:"sequence"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
	Timestamp time.Time      `json:"timestamp"`
}

// Clone returns a deep copy of b.
func (b *Block) Clone() *Block {
	if b == nil {
		return nil
	}
	cp := *b
	cp.Payload = clonePayload(b.Payload)
	return &cp
}

func genesisPayload() map[string]any {
	return map[string]any{"message": genesisMessage}
}

// hashBlock computes the SHA3-256 digest over the block's canonical content.
// Map keys are emitted in sorted order by encoding/json, so the digest does not
// depend on payload field order.
func hashBlock(b *Block) (string, error) {
	content := map[string]any{
		"sequence":  b.Sequence,
		"type":      b.Type,
		"payload":   b.Payload,
		"prev_hash": b.PrevHash,
		"timestamp": b.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("encode block content: %w", err)
	}
	return sha3Hex(raw), nil
}

// PayloadDigest returns the hex SHA3-256 of the canonical payload encoding.
// External-chain adapters anchor this digest instead of the raw payload.
func PayloadDigest(payload map[string]any) (string, error) {
	normalized, err := normalizePayload(payload)
	if err != nil {
		return "", err
	}
	raw, err := canonicalJSON(normalized)
	if err != nil {
		return "", err
	}
	return sha3Hex(raw), nil
}

func sha3Hex(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func canonicalJSON(payload map[string]any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return raw, nil
}

// normalizePayload round-trips payload through JSON so the stored value holds
// only maps, slices, strings, bools, nil and json.Number. The result shares no
// memory with the caller's value.
func normalizePayload(payload map[string]any) (map[string]any, error) {
	raw, err := canonicalJSON(payload)
	if err != nil {
		return nil, err
	}
	return decodePayload(raw)
}

func decodePayload(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	out := map[string]any{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return clonePayload(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

func cloneBlocks(blocks []*Block) []*Block {
	out := make([]*Block, len(blocks))
	for i, b := range blocks {
		out[i] = b.Clone()
	}
	return out
}

// IntegrityError describes the first inconsistency found by Verify.
type IntegrityError struct {
	Sequence uint64
	Reason   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("chain integrity violated at block %d: %s", e.Sequence, e.Reason)
}

// Verify walks blocks in order and checks sequence numbering, the genesis
// anchor, every PrevHash link, and every content hash. It returns nil for an
// intact chain (including an empty one).
func Verify(blocks []*Block) error {
	for i, b := range blocks {
		if b.Sequence != uint64(i) {
			return &IntegrityError{Sequence: b.Sequence, Reason: fmt.Sprintf("expected sequence %d", i)}
		}
		want := GenesisHash
		if i > 0 {
			want = blocks[i-1].Hash
		}
		if b.PrevHash != want {
			return &IntegrityError{Sequence: b.Sequence, Reason: "previous hash does not match predecessor"}
		}
		h, err := hashBlock(b)
		if err != nil {
			return &IntegrityError{Sequence: b.Sequence, Reason: err.Error()}
		}
		if h != b.Hash {
			return &IntegrityError{Sequence: b.Sequence, Reason: "content hash mismatch"}
		}
	}
	return nil
}
