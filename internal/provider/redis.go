// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Redis-backed response cache for deployments that share a
// cache across processes. TTL is enforced server-side; hit/miss counters
// are process-local.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	mu     sync.Mutex
	hits   int
	misses int
}

// NewRedisCache connects to Redis and returns a response cache.
func NewRedisCache(addr, password string, db int, prefix string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}, nil
}

// Get returns the cached response for key if Redis still holds it.
func (c *RedisCache) Get(ctx context.Context, key string) (CachedResponse, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		c.count(false)
		return CachedResponse{}, false
	}

	var resp CachedResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		c.count(false)
		return CachedResponse{}, false
	}

	c.count(true)
	return resp, true
}

// Put stores a response under key with the configured TTL.
// Errors are swallowed: the cache is an optimization, not a dependency.
func (c *RedisCache) Put(ctx context.Context, key string, resp CachedResponse) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.prefix+key, raw, c.ttl)
}

// Stats returns process-local hit/miss counters.
func (c *RedisCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// Clear drops all entries under the cache prefix.
func (c *RedisCache) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}
