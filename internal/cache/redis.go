package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chat:cache:"

// redisCache stores entries as JSON values with a server-side TTL.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects a client and verifies connectivity with a ping.
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisCache{client: client, ttl: ttl}, nil
}

func (c *redisCache) Lookup(ctx context.Context, fingerprint string) (Entry, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+fingerprint).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("cache get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		// A corrupt entry behaves as a miss rather than poisoning lookups.
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (c *redisCache) Store(ctx context.Context, fingerprint string, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, keyPrefix+fingerprint, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
