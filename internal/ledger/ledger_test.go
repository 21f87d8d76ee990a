package ledger_test

import (
	"context"
	"testing"

	"github.com/jmerrifield20/bharatchain/internal/ledger"
	"go.uber.org/zap"
)

var ctx = context.Background()

func newChain(t *testing.T) *ledger.SimulatedChain {
	t.Helper()
	c := ledger.NewSimulatedChain(zap.NewNop())
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	return c
}

func TestConnect_genesisBlock(t *testing.T) {
	c := newChain(t)

	blocks, err := c.GetAllBlocks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 genesis block, got %d", len(blocks))
	}
	g := blocks[0]
	if g.Type != ledger.TypeGenesis {
		t.Errorf("type: got %q, want %q", g.Type, ledger.TypeGenesis)
	}
	if g.Sequence != 0 {
		t.Errorf("sequence: got %d, want 0", g.Sequence)
	}
	if g.PrevHash != ledger.GenesisHash {
		t.Errorf("prev hash: got %q, want GenesisHash", g.PrevHash)
	}
	if g.Payload["message"] != "BharatChain genesis block" {
		t.Errorf("payload: got %v", g.Payload)
	}
}

func TestConnect_idempotent(t *testing.T) {
	c := newChain(t)
	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 {
		t.Errorf("second Connect must not add a genesis block: got %d blocks", c.Len())
	}
}

func TestWriteBlock_chainsCorrectly(t *testing.T) {
	c := newChain(t)

	b1, err := c.WriteBlock(ctx, ledger.TypeIdentity, map[string]any{"event": "IDENTITY_CREATED"})
	if err != nil {
		t.Fatal(err)
	}
	b2, err := c.WriteBlock(ctx, ledger.TypeConsent, map[string]any{"event": "CONSENT_GRANTED"})
	if err != nil {
		t.Fatal(err)
	}

	if b2.PrevHash != b1.Hash {
		t.Errorf("chain broken: b2.PrevHash=%q, want b1.Hash=%q", b2.PrevHash, b1.Hash)
	}
	if b1.Sequence != 1 || b2.Sequence != 2 {
		t.Errorf("sequences: got %d, %d; want 1, 2", b1.Sequence, b2.Sequence)
	}
	if c.Len() != 3 { // genesis + 2
		t.Errorf("expected 3 blocks, got %d", c.Len())
	}
}

func TestVerify_valid(t *testing.T) {
	c := newChain(t)
	_, _ = c.WriteBlock(ctx, ledger.TypeIdentity, nil)
	_, _ = c.WriteBlock(ctx, ledger.TypeHealthRecord, map[string]any{"n": 1})

	if err := c.Verify(ctx); err != nil {
		t.Errorf("Verify() failed on valid chain: %v", err)
	}
}

func TestVerify_genesisOnlyChain(t *testing.T) {
	c := newChain(t)
	if err := ledger.VerifyChain(ctx, c); err != nil {
		t.Errorf("Verify() on genesis-only chain should pass: %v", err)
	}
}

func TestRoot_returnsLastHash(t *testing.T) {
	c := newChain(t)
	b, _ := c.WriteBlock(ctx, ledger.TypeIdentity, nil)

	if got := c.Root(); got != b.Hash {
		t.Errorf("Root(): got %q, want %q", got, b.Hash)
	}
}

func TestSimulatedChain_resetsOnRestart(t *testing.T) {
	first := newChain(t)
	_, _ = first.WriteBlock(ctx, ledger.TypeIdentity, map[string]any{"citizen_id": "c1"})

	// A new process builds a new SimulatedChain; nothing carries over.
	second := newChain(t)
	if second.Len() != 1 {
		t.Errorf("fresh chain should hold only genesis, got %d blocks", second.Len())
	}
}
