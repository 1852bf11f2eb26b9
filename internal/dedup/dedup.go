// Package dedup remembers which inbound message ids have already entered
// the pipeline.
package dedup

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/eldtechnologies/chatmood/internal/store"
)

// Cache is the set of message ids already handed to the pipeline.
type Cache interface {
	SeenBefore(ctx context.Context, id string) (bool, error)
	MarkSeen(ctx context.Context, id string) error
	// Claim marks id and reports whether this call was the first to do so.
	Claim(ctx context.Context, id string) (bool, error)
}

// DefaultCapacity bounds the in-memory cache.
const DefaultCapacity = 100_000

// MemoryCache is a process-local, count-bounded cache. The oldest ids are
// evicted once capacity is reached.
type MemoryCache struct {
	ids *lru.Cache[string, struct{}]
}

// NewMemoryCache creates a MemoryCache holding at most capacity ids.
func NewMemoryCache(capacity int) (*MemoryCache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	ids, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{ids: ids}, nil
}

// SeenBefore implements Cache.
func (c *MemoryCache) SeenBefore(_ context.Context, id string) (bool, error) {
	return c.ids.Contains(id), nil
}

// MarkSeen implements Cache.
func (c *MemoryCache) MarkSeen(_ context.Context, id string) error {
	c.ids.Add(id, struct{}{})
	return nil
}

// Claim implements Cache. Check and insert happen under one lock.
func (c *MemoryCache) Claim(_ context.Context, id string) (bool, error) {
	found, _ := c.ids.ContainsOrAdd(id, struct{}{})
	return !found, nil
}

// Len returns the number of remembered ids.
func (c *MemoryCache) Len() int {
	return c.ids.Len()
}

// DefaultTTL is how long the Redis cache remembers an id.
const DefaultTTL = 24 * time.Hour

// RedisCache shares seen ids between processes through Redis. Entries expire
// after the configured window.
type RedisCache struct {
	redis *store.RedisStore
	owner string
	ttl   time.Duration
}

// NewRedisCache creates a RedisCache. owner is stored as the key's value to
// show which instance claimed a message.
func NewRedisCache(redis *store.RedisStore, owner string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{redis: redis, owner: owner, ttl: ttl}
}

// SeenBefore implements Cache.
func (c *RedisCache) SeenBefore(ctx context.Context, id string) (bool, error) {
	return c.redis.IsMessageSeen(ctx, id)
}

// MarkSeen implements Cache.
func (c *RedisCache) MarkSeen(ctx context.Context, id string) error {
	_, err := c.redis.MarkMessageSeen(ctx, id, c.owner, c.ttl)
	return err
}

// Claim implements Cache using SET NX, which is atomic across processes.
func (c *RedisCache) Claim(ctx context.Context, id string) (bool, error) {
	return c.redis.MarkMessageSeen(ctx, id, c.owner, c.ttl)
}
