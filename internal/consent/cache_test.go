package consent

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	g := &Grant{ID: uuid.New(), CitizenID: "c1", RequesterID: "HDFC_BANK", Modules: []Module{ModuleFinancial}, Active: true}
	c.Set(ctx, "c1", 0, []*Grant{g})

	got, ok := c.Get(ctx, "c1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 1 || got[0].ID != g.ID {
		t.Fatalf("unexpected grants: %+v", got)
	}

	// Cached values are copies.
	got[0].Modules[0] = ModuleHealth
	g.Active = false
	again, _ := c.Get(ctx, "c1")
	if again[0].Modules[0] != ModuleFinancial || !again[0].Active {
		t.Error("cache entry was mutated through a returned or stored pointer")
	}
}

func TestMemoryCache_Miss(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	if _, ok := c.Get(context.Background(), "nobody"); ok {
		t.Error("expected miss for unknown citizen")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(30 * time.Second)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "c1", 0, nil)
	if _, ok := c.Get(ctx, "c1"); !ok {
		t.Fatal("expected hit before TTL")
	}

	now = now.Add(31 * time.Second)
	if _, ok := c.Get(ctx, "c1"); ok {
		t.Error("expected miss after TTL")
	}
	if n := c.Evict(); n != 1 {
		t.Errorf("Evict() = %d, want 1", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after evict", c.Len())
	}
}

func TestMemoryCache_Invalidate(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()
	c.Set(ctx, "c1", 0, nil)
	c.Set(ctx, "c2", 0, nil)

	c.Invalidate(ctx, "c1")
	if _, ok := c.Get(ctx, "c1"); ok {
		t.Error("c1 should be gone")
	}
	if _, ok := c.Get(ctx, "c2"); !ok {
		t.Error("c2 should remain")
	}
}

func TestMemoryCache_StaleFillDropped(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	gen, ok := c.Generation(ctx, "c1")
	if !ok {
		t.Fatal("memory cache always reports a generation")
	}
	// A commit lands between the reader's store load and its fill.
	c.Invalidate(ctx, "c1")
	c.Set(ctx, "c1", gen, []*Grant{{CitizenID: "c1", RequesterID: "APOLLO_HOSPITAL", Active: true}})
	if _, ok := c.Get(ctx, "c1"); ok {
		t.Fatal("fill with a stale generation was cached")
	}

	next, _ := c.Generation(ctx, "c1")
	if next != gen+1 {
		t.Fatalf("Generation() = %d, want %d", next, gen+1)
	}
	c.Set(ctx, "c1", next, nil)
	if _, ok := c.Get(ctx, "c1"); !ok {
		t.Error("fill with the current generation should be cached")
	}
	if g2, _ := c.Generation(ctx, "c2"); g2 != 0 {
		t.Errorf("unrelated citizen generation = %d, want 0", g2)
	}
}

func TestGrant_ValidAt(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Second), now.Add(time.Second)

	tests := []struct {
		name    string
		active  bool
		expires *time.Time
		want    bool
	}{
		{"active, no expiry", true, nil, true},
		{"active, future expiry", true, &future, true},
		{"active, past expiry", true, &past, false},
		{"active, expires now", true, &now, false},
		{"inactive", false, &future, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Grant{Active: tt.active, ExpiresAt: tt.expires}
			if got := g.ValidAt(now); got != tt.want {
				t.Errorf("ValidAt() = %v, want %v", got, tt.want)
			}
		})
	}
}
