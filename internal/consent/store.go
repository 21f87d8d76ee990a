package consent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTxTimeout bounds a consent transaction when neither Config nor the
// caller set one. It sits above the 30s default write timeout of the Ethereum
// and Fabric ledgers.
const DefaultTxTimeout = 45 * time.Second

// ErrGrantNotFound is returned by Tx.SetBlockHash for an unknown grant ID.
var ErrGrantNotFound = errors.New("grant not found")

// Store persists grants. All mutations run inside RunInTx so a failure at any
// step, including the ledger write, leaves no partial state behind.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// ListActive returns the citizen's grants with Active set, expired or not.
	ListActive(ctx context.Context, citizenID string) ([]*Grant, error)
}

// Tx is the mutation surface available inside RunInTx.
type Tx interface {
	// DeactivatePair clears Active on every active grant for the pair and
	// reports how many changed. Concurrent transactions on the same pair are
	// serialised from this call until commit.
	DeactivatePair(ctx context.Context, citizenID, requesterID string) (int, error)
	Insert(ctx context.Context, g *Grant) error
	SetBlockHash(ctx context.Context, id uuid.UUID, hash string) error
}

// MemoryStore is an in-process Store. Transactions hold a store-wide lock and
// keep an undo journal that is replayed when fn fails.
type MemoryStore struct {
	mu     sync.RWMutex
	grants []*Grant
	byID   map[uuid.UUID]*Grant
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[uuid.UUID]*Grant)}
}

// RunInTx implements Store. The write lock is held for all of fn, ledger
// write included, so ListActive and every other transaction wait on it until
// the block is anchored. That serialises all consent writes in the process;
// use PostgresStore, which locks per pair, where ledger latency matters.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTxTimeout)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{s: s}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// ListActive implements Store.
func (s *MemoryStore) ListActive(_ context.Context, citizenID string) ([]*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Grant
	for _, g := range s.grants {
		if g.CitizenID == citizenID && g.Active {
			out = append(out, g.Clone())
		}
	}
	return out, nil
}

// History returns every grant for the citizen, active or not, in creation order.
func (s *MemoryStore) History(_ context.Context, citizenID string) ([]*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Grant
	for _, g := range s.grants {
		if g.CitizenID == citizenID {
			out = append(out, g.Clone())
		}
	}
	return out, nil
}

type memoryTx struct {
	s    *MemoryStore
	undo []func()
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memoryTx) DeactivatePair(_ context.Context, citizenID, requesterID string) (int, error) {
	n := 0
	for _, g := range tx.s.grants {
		if g.CitizenID == citizenID && g.RequesterID == requesterID && g.Active {
			g.Active = false
			tx.undo = append(tx.undo, func() { g.Active = true })
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) Insert(_ context.Context, g *Grant) error {
	if _, dup := tx.s.byID[g.ID]; dup {
		return fmt.Errorf("insert grant %s: duplicate id", g.ID)
	}
	cp := g.Clone()
	tx.s.grants = append(tx.s.grants, cp)
	tx.s.byID[cp.ID] = cp
	tx.undo = append(tx.undo, func() {
		tx.s.grants = tx.s.grants[:len(tx.s.grants)-1]
		delete(tx.s.byID, cp.ID)
	})
	return nil
}

func (tx *memoryTx) SetBlockHash(_ context.Context, id uuid.UUID, hash string) error {
	g, ok := tx.s.byID[id]
	if !ok {
		return ErrGrantNotFound
	}
	prev := g.BlockHash
	g.BlockHash = hash
	tx.undo = append(tx.undo, func() { g.BlockHash = prev })
	return nil
}
