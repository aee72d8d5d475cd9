package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/koinlytics-backend/internal/clock"
	"github.com/koinlytics-backend/internal/logging"
	"github.com/redis/go-redis/v9"
)

// DefaultMarketCacheTTL is how long a market-data response stays fresh
const DefaultMarketCacheTTL = 5 * time.Minute

// MarketCache memoizes market-data responses for a fixed duration.
// Get never fails from the caller's view: any problem is reported as a miss.
type MarketCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// CacheKeyType represents different types of market cache keys
type CacheKeyType string

const (
	// CacheKeyMarkets is for batched quote lookups
	CacheKeyMarkets CacheKeyType = "market_data"
	// CacheKeyChart is for historical series
	CacheKeyChart CacheKeyType = "chart"
	// CacheKeyCoin is for single-coin details
	CacheKeyCoin CacheKeyType = "coin"
)

// GenerateCacheKey generates a cache key for a given type and parameters
// Format: <type>:<param1>:<param2>:...
func GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, string(keyType))
	for _, param := range params {
		parts = append(parts, strings.ToLower(param))
	}
	return strings.Join(parts, ":")
}

// MarketsCacheKey builds an order-independent key for a set of identifiers.
// Duplicates collapse so {a,b,a} and {b,a} share an entry.
func MarketsCacheKey(ids []string) string {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)
	return GenerateCacheKey(CacheKeyMarkets, strings.Join(unique, ","))
}

type memoryEntry struct {
	data     []byte
	storedAt time.Time
}

// MemoryMarketCache is a process-local MarketCache with lazy expiry.
// Entries are never purged proactively; an expired entry is overwritten on the next miss.
type MemoryMarketCache struct {
	ttl   time.Duration
	clock clock.Clock

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryMarketCache creates an in-memory cache
func NewMemoryMarketCache(ttl time.Duration, clk clock.Clock) *MemoryMarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketCacheTTL
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryMarketCache{
		ttl:     ttl,
		clock:   clk,
		entries: make(map[string]memoryEntry),
	}
}

// Get decodes a fresh entry into dest
func (c *MemoryMarketCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.clock.Now().Sub(entry.storedAt) >= c.ttl {
		return false, nil
	}

	if err := json.Unmarshal(entry.data, dest); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("Discarding undecodable cache entry")
		return false, nil
	}
	return true, nil
}

// Set stores value under key, replacing any previous entry
func (c *MemoryMarketCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	c.mu.Lock()
	c.entries[key] = memoryEntry{data: data, storedAt: c.clock.Now()}
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (c *MemoryMarketCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisMarketCache shares market data across processes through Redis.
// Expiry is delegated to the server-side TTL.
type RedisMarketCache struct {
	redis  *RedisCache
	ttl    time.Duration
	prefix string
}

// NewRedisMarketCache creates a Redis-backed market cache
func NewRedisMarketCache(redis *RedisCache, ttl time.Duration) *RedisMarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketCacheTTL
	}
	return &RedisMarketCache{
		redis:  redis,
		ttl:    ttl,
		prefix: "market:",
	}
}

// Get retrieves and decodes a cached value. Redis failures are logged and reported as a miss.
func (c *RedisMarketCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, c.prefix+key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("Market cache read failed, treating as miss")
		}
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("Discarding undecodable cache entry")
		return false, nil
	}
	return true, nil
}

// Set stores value with the configured TTL. A failed write is logged and ignored.
func (c *RedisMarketCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := c.redis.Set(ctx, c.prefix+key, data, c.ttl); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("Market cache write failed")
	}
	return nil
}
