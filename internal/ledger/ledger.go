//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -destination=ledgermock/ledger.go -package=ledgermock github.com/jmerrifield20/bharatchain/internal/ledger Ledger

// Package ledger implements the hash-chained, append-only block log that anchors
// every identity, consent and record event.
//
// The chain begins with a genesis block (sequence 0, type GENESIS) whose
// PrevHash is GenesisHash (64 hex zeros). Every subsequent block records the
// hash of its predecessor, and every block hash is a SHA3-256 digest over the
// block's own canonical content, making any tampering detectable via Verify.
//
// Four implementations of the Ledger interface are provided:
//   - SimulatedChain: in-process, the default and the reference implementation.
//     Its blocks live only as long as the process; a restart starts a new chain.
//   - PostgresChain: durable single-writer chain in PostgreSQL.
//   - EthereumChain: anchors each block as a signed transaction on an Ethereum network.
//   - FabricChain: anchors each block through a Hyperledger Fabric chaincode invocation.
package ledger

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned when the backing system cannot be reached.
	// Callers may retry with backoff.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrWriteFailed is returned when the backing system rejected a write
	// (invalid signature, insufficient funds, endorsement failure, revert).
	ErrWriteFailed = errors.New("ledger write failed")

	// ErrNotFound is returned by GetBlock when no block has the given hash,
	// or when the backend does not support point lookups.
	ErrNotFound = errors.New("block not found")

	// ErrVerifyUnsupported is returned by VerifyChain for backends that cannot
	// enumerate their own history.
	ErrVerifyUnsupported = errors.New("chain verification not supported by this backend")
)

// Ledger is the contract shared by all chain backends. Domain code holds only
// this interface and never branches on the concrete backend.
type Ledger interface {
	// Connect prepares the backend for use. It is safe to call more than once.
	Connect(ctx context.Context) error

	// Disconnect releases network handles and sessions.
	Disconnect(ctx context.Context) error

	// Ping returns a human-readable status line. It is diagnostic only.
	Ping(ctx context.Context) string

	// WriteBlock appends a new block chained to the current tail.
	// Concurrent writers are serialised; no two blocks share a predecessor.
	WriteBlock(ctx context.Context, blockType string, payload map[string]any) (*Block, error)

	// GetBlock returns the block with the given content hash.
	GetBlock(ctx context.Context, hash string) (*Block, error)

	// GetAllBlocks returns every block in sequence order. Backends that cannot
	// enumerate history return an empty slice.
	GetAllBlocks(ctx context.Context) ([]*Block, error)
}

// Verifier is implemented by backends that can check their own chain.
type Verifier interface {
	Verify(ctx context.Context) error
}

// VerifyChain runs l's integrity check, or returns ErrVerifyUnsupported.
func VerifyChain(ctx context.Context, l Ledger) error {
	v, ok := l.(Verifier)
	if !ok {
		return ErrVerifyUnsupported
	}
	return v.Verify(ctx)
}
