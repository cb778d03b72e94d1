package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process LRU bounded by entry count. Entries expire
// after the default TTL or the shorter per-entry TTL given to Set.
type MemoryCache struct {
	lru *expirable.LRU[string, memoryEntry]
	ttl time.Duration
	now func() time.Time
}

// NewMemory creates a cache holding at most maxEntries values.
func NewMemory(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, memoryEntry](maxEntries, nil, ttl),
		ttl: ttl,
		now: time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	if !c.now().Before(e.expiresAt) {
		c.lru.Remove(key)
		return nil, ErrMiss
	}
	return e.value, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 || ttl > c.ttl {
		ttl = c.ttl
	}
	v := make([]byte, len(value))
	copy(v, value)
	c.lru.Add(key, memoryEntry{value: v, expiresAt: c.now().Add(ttl)})
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Len returns the number of stored entries, expired ones included until
// they are evicted.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}
