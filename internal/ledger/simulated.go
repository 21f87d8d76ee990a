package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SimulatedChain is an in-memory, thread-safe Ledger. It needs no external
// services and is the default backend.
//
// The chain is not persisted: every process starts from a fresh genesis block.
// Use PostgresChain when blocks must survive restarts.
type SimulatedChain struct {
	mu        sync.RWMutex
	blocks    []*Block
	byHash    map[string]int
	connected bool
	now       func() time.Time
	logger    *zap.Logger
}

// NewSimulatedChain creates an empty SimulatedChain. Call Connect to create
// the genesis block before writing.
func NewSimulatedChain(logger *zap.Logger) *SimulatedChain {
	return &SimulatedChain{
		byHash: make(map[string]int),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Connect implements Ledger. The genesis block is created on the first call only.
func (c *SimulatedChain) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) == 0 {
		if _, err := c.appendLocked(TypeGenesis, genesisPayload()); err != nil {
			return fmt.Errorf("create genesis block: %w", err)
		}
	}
	c.connected = true
	c.logger.Info("simulated chain ready (in-memory, resets on restart)", zap.Int("blocks", len(c.blocks)))
	return nil
}

// Disconnect implements Ledger. Blocks are kept; a later Connect resumes the same chain.
func (c *SimulatedChain) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.logger.Info("simulated chain disconnected")
	return nil
}

// Ping implements Ledger.
func (c *SimulatedChain) Ping(_ context.Context) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return "disconnected"
	}
	return fmt.Sprintf("ok: simulated chain, %d blocks", len(c.blocks))
}

// WriteBlock implements Ledger.
func (c *SimulatedChain) WriteBlock(_ context.Context, blockType string, payload map[string]any) (*Block, error) {
	normalized, err := normalizePayload(payload)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, fmt.Errorf("%w: simulated chain is not connected", ErrUnavailable)
	}
	b, err := c.appendLocked(blockType, normalized)
	if err != nil {
		return nil, err
	}

	c.logger.Info("block written",
		zap.Uint64("sequence", b.Sequence),
		zap.String("type", b.Type),
		zap.String("hash", b.Hash[:16]),
	)
	return b.Clone(), nil
}

// appendLocked chains a new block to the tail. c.mu must be held for writing.
func (c *SimulatedChain) appendLocked(blockType string, payload map[string]any) (*Block, error) {
	prev := GenesisHash
	if n := len(c.blocks); n > 0 {
		prev = c.blocks[n-1].Hash
	}

	b := &Block{
		Sequence:  uint64(len(c.blocks)),
		Type:      blockType,
		Payload:   payload,
		PrevHash:  prev,
		Timestamp: c.now().Truncate(time.Microsecond),
	}
	h, err := hashBlock(b)
	if err != nil {
		return nil, err
	}
	b.Hash = h

	c.byHash[b.Hash] = len(c.blocks)
	c.blocks = append(c.blocks, b)
	return b, nil
}

// GetBlock implements Ledger.
func (c *SimulatedChain) GetBlock(_ context.Context, hash string) (*Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return c.blocks[i].Clone(), nil
}

// GetAllBlocks implements Ledger.
func (c *SimulatedChain) GetAllBlocks(_ context.Context) ([]*Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneBlocks(c.blocks), nil
}

// Len returns the number of blocks, genesis included.
func (c *SimulatedChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Root returns the hash of the chain tip, or "" before Connect.
func (c *SimulatedChain) Root() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return ""
	}
	return c.blocks[len(c.blocks)-1].Hash
}

// Verify implements Verifier.
func (c *SimulatedChain) Verify(_ context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Verify(c.blocks)
}
