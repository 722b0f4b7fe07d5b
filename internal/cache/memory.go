package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// memoryCache is a bounded in-process cache with per-entry TTL expiry.
type memoryCache struct {
	lru *expirable.LRU[string, Entry]
}

// NewMemory returns an in-process Cache holding at most size entries, each
// expiring after ttl.
func NewMemory(size int, ttl time.Duration) Cache {
	if size <= 0 {
		size = 1024
	}
	return &memoryCache{lru: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

func (c *memoryCache) Lookup(ctx context.Context, fingerprint string) (Entry, bool, error) {
	e, ok := c.lru.Get(fingerprint)
	return e, ok, nil
}

func (c *memoryCache) Store(ctx context.Context, fingerprint string, e Entry) error {
	c.lru.Add(fingerprint, e)
	return nil
}
