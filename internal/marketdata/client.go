package marketdata

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/koinlytics-backend/internal/circuitbreaker"
	apperrors "github.com/koinlytics-backend/internal/errors"
	"github.com/koinlytics-backend/internal/logging"
	"github.com/koinlytics-backend/internal/storage"
	"github.com/koinlytics-backend/internal/types"
)

const (
	// DefaultRequestTimeout bounds a single upstream request
	DefaultRequestTimeout = 10 * time.Second
	// DefaultMaxLimiterWait bounds how long a shared fetch queues for the upstream slot
	DefaultMaxLimiterWait = 30 * time.Second
)

// ErrCoinNotFound is returned when the provider has no market row for a coin id
var ErrCoinNotFound = stderrors.New("coin not found")

// Limiter serializes upstream requests
type Limiter interface {
	Acquire(ctx context.Context) error
}

// ClientConfig wires the client's collaborators
type ClientConfig struct {
	Provider Provider
	Cache    storage.MarketCache
	Limiter  Limiter
	// Breaker is optional; without one every miss reaches the provider.
	Breaker        *circuitbreaker.CircuitBreaker
	RequestTimeout time.Duration
	MaxLimiterWait time.Duration
}

// Client answers market-data lookups from the cache, falling back to the provider.
// Misses for the same key share a single upstream request.
type Client struct {
	provider Provider
	cache    storage.MarketCache
	limiter  Limiter
	breaker  *circuitbreaker.CircuitBreaker
	timeout  time.Duration
	maxWait  time.Duration
	flights  singleflight.Group
}

// NewClient creates a market-data client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	maxWait := cfg.MaxLimiterWait
	if maxWait <= 0 {
		maxWait = DefaultMaxLimiterWait
	}
	return &Client{
		provider: cfg.Provider,
		cache:    cfg.Cache,
		limiter:  cfg.Limiter,
		breaker:  cfg.Breaker,
		timeout:  timeout,
		maxWait:  maxWait,
	}, nil
}

// GetQuotes returns current quotes keyed by identifier. Ids the provider does not
// know are absent from the result. Fails only with an UpstreamUnavailable error.
func (c *Client) GetQuotes(ctx context.Context, ids []string) (map[string]types.MarketQuote, error) {
	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		return map[string]types.MarketQuote{}, nil
	}

	key := storage.MarketsCacheKey(ids)
	quotes := map[string]types.MarketQuote{}
	if hit, _ := c.cache.Get(ctx, key, &quotes); hit {
		return quotes, nil
	}

	v, err := c.share(ctx, key, func(ctx context.Context) (interface{}, error) {
		fresh := map[string]types.MarketQuote{}
		if hit, _ := c.cache.Get(ctx, key, &fresh); hit {
			return fresh, nil
		}

		var entries []MarketEntry
		err := c.call(ctx, "GetMarkets", func(ctx context.Context) error {
			var err error
			entries, err = c.provider.GetMarkets(ctx, ids)
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			if entry.ID == "" {
				continue
			}
			fresh[entry.ID] = entry.Quote()
		}
		_ = c.cache.Set(ctx, key, fresh)
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]types.MarketQuote), nil
}

// GetHistoricalSeries returns the provider's chart payload for one id, unmodified
func (c *Client) GetHistoricalSeries(ctx context.Context, id string, days string) (json.RawMessage, error) {
	id, err := NormalizeCoinID(id)
	if err != nil {
		return nil, err
	}
	if days, err = NormalizeChartDays(days); err != nil {
		return nil, err
	}

	key := storage.GenerateCacheKey(storage.CacheKeyChart, id, days)
	var series json.RawMessage
	if hit, _ := c.cache.Get(ctx, key, &series); hit {
		return series, nil
	}

	v, err := c.share(ctx, key, func(ctx context.Context) (interface{}, error) {
		var fresh json.RawMessage
		if hit, _ := c.cache.Get(ctx, key, &fresh); hit {
			return fresh, nil
		}

		err := c.call(ctx, "GetMarketChart", func(ctx context.Context) error {
			var err error
			fresh, err = c.provider.GetMarketChart(ctx, id, days)
			return err
		})
		if err != nil {
			return nil, err
		}

		_ = c.cache.Set(ctx, key, fresh)
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// GetCoinDetails returns the full market row for one id
func (c *Client) GetCoinDetails(ctx context.Context, id string) (*MarketEntry, error) {
	id, err := NormalizeCoinID(id)
	if err != nil {
		return nil, err
	}

	key := storage.GenerateCacheKey(storage.CacheKeyCoin, id)
	var entry MarketEntry
	if hit, _ := c.cache.Get(ctx, key, &entry); hit {
		return &entry, nil
	}

	v, err := c.share(ctx, key, func(ctx context.Context) (interface{}, error) {
		var fresh MarketEntry
		if hit, _ := c.cache.Get(ctx, key, &fresh); hit {
			return &fresh, nil
		}

		var entries []MarketEntry
		err := c.call(ctx, "GetMarkets", func(ctx context.Context) error {
			var err error
			entries, err = c.provider.GetMarkets(ctx, []string{id})
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrCoinNotFound, id)
		}

		fresh = entries[0]
		_ = c.cache.Set(ctx, key, fresh)
		return &fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*MarketEntry), nil
}

// share runs fn once per key among concurrent callers. The fetch keeps the first
// caller's values but not its cancellation, so other waiters are unaffected when
// that caller leaves; it is bounded by its own deadline instead. A caller whose
// context ends stops waiting.
func (c *Client) share(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	ch := c.flights.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.maxWait+c.timeout)
		defer cancel()
		return fn(flightCtx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, apperrors.NewUpstreamUnavailableError(c.provider.Name(), ctx.Err())
	}
}

// call gates one upstream request behind the breaker and limiter and bounds it with the request timeout
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"provider":  c.provider.Name(),
		"operation": op,
	})

	// an open breaker fails fast without spending a limiter slot
	if c.breaker != nil && !c.breaker.Allow() {
		logger.Warn("Market data circuit open, skipping upstream call")
		return apperrors.NewUpstreamUnavailableError(c.provider.Name(), apperrors.ErrCircuitOpen)
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		logger.WithError(err).Warn("Gave up waiting for market data slot")
		return apperrors.NewUpstreamUnavailableError(c.provider.Name(), err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	run := func() error { return fn(reqCtx) }
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, run)
	} else {
		err = run()
	}
	if err != nil {
		logger.WithError(err).Warn("Market data request failed")
		return apperrors.NewUpstreamUnavailableError(c.provider.Name(), err)
	}
	return nil
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
