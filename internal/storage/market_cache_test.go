package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koinlytics-backend/internal/clock"
	"github.com/koinlytics-backend/internal/config"
)

type cachedQuote struct {
	Price float64 `json:"price"`
}

func TestMarketsCacheKey(t *testing.T) {
	assert.Equal(t, "market_data:bitcoin,ethereum", MarketsCacheKey([]string{"ethereum", "bitcoin"}))
	assert.Equal(t, MarketsCacheKey([]string{"b", "a", "a"}), MarketsCacheKey([]string{"a", "b"}))
	assert.Equal(t, "chart:bitcoin:1", GenerateCacheKey(CacheKeyChart, "Bitcoin", "1"))
}

func TestMemoryMarketCache(t *testing.T) {
	ctx := testContext(t)
	clk := clock.NewManual(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	cache := NewMemoryMarketCache(5*time.Minute, clk)

	t.Run("miss on empty", func(t *testing.T) {
		var got cachedQuote
		hit, err := cache.Get(ctx, "k", &got)
		require.NoError(t, err)
		assert.False(t, hit)
	})

	require.NoError(t, cache.Set(ctx, "k", cachedQuote{Price: 65000}))

	t.Run("hit before expiry", func(t *testing.T) {
		clk.Advance(4*time.Minute + 59*time.Second)
		var got cachedQuote
		hit, err := cache.Get(ctx, "k", &got)
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, 65000.0, got.Price)
	})

	t.Run("miss at exactly ttl", func(t *testing.T) {
		clk.Advance(time.Second)
		var got cachedQuote
		hit, err := cache.Get(ctx, "k", &got)
		require.NoError(t, err)
		assert.False(t, hit)
		// lazy expiry keeps the entry around
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("set supersedes expired entry", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "k", cachedQuote{Price: 66000}))
		var got cachedQuote
		hit, _ := cache.Get(ctx, "k", &got)
		assert.True(t, hit)
		assert.Equal(t, 66000.0, got.Price)
	})
}

func TestMemoryMarketCacheConcurrentAccess(t *testing.T) {
	ctx := testContext(t)
	cache := NewMemoryMarketCache(time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = cache.Set(ctx, "shared", cachedQuote{Price: float64(i)})
		}(i)
		go func() {
			defer wg.Done()
			var got cachedQuote
			_, _ = cache.Get(ctx, "shared", &got)
		}()
	}
	wg.Wait()

	var got cachedQuote
	hit, err := cache.Get(ctx, "shared", &got)
	require.NoError(t, err)
	assert.True(t, hit)
}

func setupRedisMarketCache(t *testing.T, ttl time.Duration) (*RedisMarketCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisMarketCache(NewRedisCacheFromClient(client), ttl), mr
}

func TestRedisMarketCache(t *testing.T) {
	ctx := testContext(t)
	cache, mr := setupRedisMarketCache(t, 5*time.Minute)

	require.NoError(t, cache.Set(ctx, "market_data:bitcoin", cachedQuote{Price: 65000}))
	assert.True(t, mr.Exists("market:market_data:bitcoin"))
	assert.Equal(t, 5*time.Minute, mr.TTL("market:market_data:bitcoin"))

	var got cachedQuote
	hit, err := cache.Get(ctx, "market_data:bitcoin", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 65000.0, got.Price)

	mr.FastForward(5 * time.Minute)

	hit, err = cache.Get(ctx, "market_data:bitcoin", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisMarketCacheOutageIsAMiss(t *testing.T) {
	ctx := testContext(t)
	cache, mr := setupRedisMarketCache(t, time.Minute)
	mr.Close()

	var got cachedQuote
	hit, err := cache.Get(ctx, "market_data:bitcoin", &got)
	assert.NoError(t, err)
	assert.False(t, hit)

	assert.NoError(t, cache.Set(ctx, "market_data:bitcoin", cachedQuote{Price: 1}))
}

func TestRedisMarketCacheCorruptEntry(t *testing.T) {
	ctx := testContext(t)
	cache, mr := setupRedisMarketCache(t, time.Minute)
	require.NoError(t, mr.Set("market:bad", "{not json"))

	var got cachedQuote
	hit, err := cache.Get(ctx, "bad", &got)
	assert.NoError(t, err)
	assert.False(t, hit)
}

func TestNewRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cache, err := NewRedisCache(&config.RedisConfig{Host: mr.Host(), Port: mr.Port(), MaxConnections: 2})
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	ctx := testContext(t)
	require.NoError(t, cache.Ping(ctx))
	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	ttl, err := cache.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	require.NoError(t, cache.Del(ctx, "k"))
	_, err = cache.Get(ctx, "k")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestRedisOptions(t *testing.T) {
	opts := redisOptions(&config.RedisConfig{
		Host:           "cache",
		Port:           "6379",
		DB:             2,
		MaxConnections: 8,
		DialTimeout:    time.Second,
		OpTimeout:      200 * time.Millisecond,
	})

	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 8, opts.PoolSize)
	assert.Equal(t, -1, opts.MaxRetries)
	assert.Equal(t, time.Second, opts.DialTimeout)
	assert.Equal(t, 200*time.Millisecond, opts.ReadTimeout)
	assert.Equal(t, 200*time.Millisecond, opts.WriteTimeout)
	assert.Equal(t, 200*time.Millisecond, opts.PoolTimeout)

	bare := redisOptions(&config.RedisConfig{Host: "cache", Port: "6379"})
	assert.Equal(t, defaultRedisOpTimeout, bare.ReadTimeout)
	assert.Equal(t, defaultConnectTimeout, bare.DialTimeout)
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	_, err := NewRedisCache(&config.RedisConfig{Host: "127.0.0.1", Port: "1", MaxConnections: 1})
	assert.Error(t, err)
}
