// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// CACHE KEY
// =============================================================================

// keyPrefixLen is how much of the prompt participates in the cache key.
const keyPrefixLen = 100

// CacheKey derives the cache key from model and prompt prefix.
func CacheKey(model, prompt string) string {
	if len(prompt) > keyPrefixLen {
		prompt = prompt[:keyPrefixLen]
	}
	return model + ":" + prompt
}

// =============================================================================
// RESPONSE CACHE INTERFACE
// =============================================================================

// ResponseCache is the dispatcher's response cache. Implementations are
// the in-memory TTL cache (default) and a Redis-backed cache for
// deployments sharing a cache across processes.
type ResponseCache interface {
	// Get returns the cached response for key if present and fresh.
	Get(ctx context.Context, key string) (CachedResponse, bool)

	// Put stores a response under key. Last writer wins.
	Put(ctx context.Context, key string, resp CachedResponse)

	// Stats returns hit/miss counters.
	Stats() CacheStats

	// Clear drops all entries.
	Clear(ctx context.Context)
}

// =============================================================================
// IN-MEMORY TTL CACHE
// =============================================================================

// MemoryCache is the default in-memory response cache. Entries are evicted
// lazily on read by TTL comparison, never proactively swept.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]CachedResponse
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	hits   int
	misses int
}

// NewMemoryCache creates a memory cache with the given TTL and entry cap.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryCache{
		entries:    make(map[string]CachedResponse),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached response for key if present and within TTL.
// A stale entry is removed on read.
func (c *MemoryCache) Get(_ context.Context, key string) (CachedResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return CachedResponse{}, false
	}

	if c.now().Sub(entry.StoredAt) > c.ttl {
		delete(c.entries, key)
		c.misses++
		return CachedResponse{}, false
	}

	c.hits++
	return entry, true
}

// Put stores a response under key, overwriting any existing entry wholesale.
// When the cache is full, expired entries are dropped first; if still full,
// the oldest entry goes.
func (c *MemoryCache) Put(_ context.Context, key string, resp CachedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = resp
}

// evictOneLocked removes an expired entry, or the oldest one (must hold lock).
func (c *MemoryCache) evictOneLocked() {
	now := c.now()
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if now.Sub(e.StoredAt) > c.ttl {
			delete(c.entries, k)
			return
		}
		if oldestKey == "" || e.StoredAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.StoredAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Stats returns hit/miss counters.
func (c *MemoryCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{
		Hits:    c.hits,
		Misses:  c.misses,
		Entries: len(c.entries),
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// Clear removes all entries.
func (c *MemoryCache) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CachedResponse)
}
