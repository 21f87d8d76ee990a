package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// GrantCache holds each citizen's active grant list between permission checks.
// Service invalidates a citizen's entry after every committed Grant or Revoke.
//
// Fills are conditional: a reader takes Generation before loading from the
// store and passes it to Set. Invalidate bumps the generation, so a fill built
// from a read that raced a commit is dropped instead of cached.
type GrantCache interface {
	Get(ctx context.Context, citizenID string) ([]*Grant, bool)
	Generation(ctx context.Context, citizenID string) (uint64, bool)
	Set(ctx context.Context, citizenID string, gen uint64, grants []*Grant)
	Invalidate(ctx context.Context, citizenID string)
}

type cacheEntry struct {
	grants    []*Grant
	expiresAt time.Time
}

// MemoryCache is a thread-safe in-process GrantCache with a fixed TTL.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	gens    map[string]uint64
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates a MemoryCache.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*cacheEntry),
		gens:    make(map[string]uint64),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get implements GrantCache.
func (c *MemoryCache) Get(_ context.Context, citizenID string) ([]*Grant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[citizenID]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return cloneGrants(e.grants), true
}

// Generation implements GrantCache.
func (c *MemoryCache) Generation(_ context.Context, citizenID string) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[citizenID], true
}

// Set implements GrantCache. It is a no-op when gen is stale.
func (c *MemoryCache) Set(_ context.Context, citizenID string, gen uint64, grants []*Grant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[citizenID] != gen {
		return
	}
	c.entries[citizenID] = &cacheEntry{grants: cloneGrants(grants), expiresAt: c.now().Add(c.ttl)}
}

// Invalidate implements GrantCache.
func (c *MemoryCache) Invalidate(_ context.Context, citizenID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, citizenID)
	c.gens[citizenID]++
}

// Evict removes all expired entries and returns how many were dropped.
func (c *MemoryCache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of cached entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

const (
	redisKeyPrefix = "bharatchain:consent:active:"
	// Generation keys carry no TTL: one expiring mid-fill would reset to zero
	// and let a stale fill through.
	redisGenPrefix = "bharatchain:consent:gen:"
)

// RedisCache shares the grant cache across API instances. Redis errors are
// treated as misses so a cache outage never blocks a permission check.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	// OnError is called with every Redis failure; nil ignores them.
	OnError func(op string, err error)
}

// NewRedisCache creates a RedisCache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get implements GrantCache.
func (c *RedisCache) Get(ctx context.Context, citizenID string) ([]*Grant, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+citizenID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.fail("get", err)
		return nil, false
	}
	var grants []*Grant
	if err := json.Unmarshal(raw, &grants); err != nil {
		c.fail("decode", err)
		return nil, false
	}
	return grants, true
}

// Generation implements GrantCache. It reports false when Redis is
// unreachable, and the caller then skips the fill.
func (c *RedisCache) Generation(ctx context.Context, citizenID string) (uint64, bool) {
	gen, err := c.client.Get(ctx, redisGenPrefix+citizenID).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		c.fail("gen", err)
		return 0, false
	}
	return gen, true
}

// Set implements GrantCache. The write runs under WATCH on the generation key
// and is dropped when gen is stale or an Invalidate lands before EXEC.
func (c *RedisCache) Set(ctx context.Context, citizenID string, gen uint64, grants []*Grant) {
	if grants == nil {
		grants = []*Grant{}
	}
	raw, err := json.Marshal(grants)
	if err != nil {
		c.fail("encode", err)
		return
	}
	genKey := redisGenPrefix + citizenID
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, redisKeyPrefix+citizenID, raw, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil, errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
	default:
		c.fail("set", err)
	}
}

// Invalidate implements GrantCache.
func (c *RedisCache) Invalidate(ctx context.Context, citizenID string) {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, redisGenPrefix+citizenID)
		p.Del(ctx, redisKeyPrefix+citizenID)
		return nil
	})
	if err != nil {
		c.fail("invalidate", err)
	}
}

var errStaleFill = errors.New("grant cache fill is stale")

func (c *RedisCache) fail(op string, err error) {
	if c.OnError != nil {
		c.OnError(op, fmt.Errorf("redis grant cache %s: %w", op, err))
	}
}
