// Package app builds the service graph shared by the server and the snapshot job.
package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/koinlytics-backend/internal/adapter"
	"github.com/koinlytics-backend/internal/circuitbreaker"
	"github.com/koinlytics-backend/internal/clock"
	"github.com/koinlytics-backend/internal/config"
	"github.com/koinlytics-backend/internal/logging"
	"github.com/koinlytics-backend/internal/marketdata"
	"github.com/koinlytics-backend/internal/ratelimit"
	"github.com/koinlytics-backend/internal/resolver"
	"github.com/koinlytics-backend/internal/retry"
	"github.com/koinlytics-backend/internal/service"
	"github.com/koinlytics-backend/internal/storage"
)

// App holds every long-lived component. The market cache, upstream limiter and
// breaker are created once here and shared by all syncs.
type App struct {
	Config *config.Config

	Postgres   *storage.PostgresDB
	ClickHouse *storage.ClickHouseDB // nil when disabled
	Redis      *storage.RedisCache   // nil with the memory cache backend
	Chain      *adapter.AlchemyClient

	Market        *marketdata.Client
	MarketBreaker *circuitbreaker.CircuitBreaker
	MarketLimiter *ratelimit.UpstreamLimiter
	MemoryCache   *storage.MemoryMarketCache // nil with the redis cache backend
	Connections   *storage.ConnectionRepository
	Valuations    *storage.ValuationRepository

	Portfolio *service.PortfolioService
	History   *service.HistoryService
	Insights  *service.InsightService
	Snapshots *service.SnapshotService
}

// New connects to every backing store and wires the services. On error,
// anything already opened is closed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.FromContext(ctx)
	a := &App{Config: cfg}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	logger.Info("Connecting to databases...")

	var err error
	a.Postgres, err = storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if cfg.Database.ClickHouse.Enabled {
		a.ClickHouse, err = storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
	}

	cache, err := a.newMarketCache()
	if err != nil {
		return nil, err
	}

	logger.Info("Database connections established")

	a.MarketLimiter, err = ratelimit.NewUpstreamLimiter(&ratelimit.UpstreamLimiterConfig{MinInterval: cfg.Market.MinInterval})
	if err != nil {
		return nil, err
	}

	breakerCfg := circuitbreaker.DefaultConfig("coingecko")
	if cfg.Market.BreakerFailures > 0 {
		breakerCfg.MaxFailures = cfg.Market.BreakerFailures
	}
	if cfg.Market.BreakerCooldown > 0 {
		breakerCfg.Cooldown = cfg.Market.BreakerCooldown
	}

	a.MarketBreaker = circuitbreaker.NewCircuitBreaker(breakerCfg)
	a.Market, err = marketdata.NewClient(marketdata.ClientConfig{
		Provider:       marketdata.NewCoinGeckoProvider(&cfg.Market),
		Cache:          cache,
		Limiter:        a.MarketLimiter,
		Breaker:        a.MarketBreaker,
		RequestTimeout: cfg.Market.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}

	var wallet service.WalletBalances
	if cfg.Chain.RPCURL != "" {
		a.Chain, err = adapter.NewAlchemyClient(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return nil, err
		}
		wallet = adapter.NewWalletAdapter(a.Chain, adapter.WalletAdapterConfig{
			Timeout:             cfg.Chain.Timeout,
			MetadataConcurrency: cfg.Chain.MetadataConcurrency,
			NativeSymbol:        cfg.Chain.NativeSymbol,
		})
	} else {
		logger.Warn("No chain RPC configured, wallet balances disabled")
	}

	var archive service.AssetArchive
	if a.ClickHouse != nil {
		archive = storage.NewAssetSnapshotRepository(a.ClickHouse)
	}

	dust, err := decimal.NewFromString(cfg.Valuation.DustThreshold)
	if err != nil {
		return nil, fmt.Errorf("invalid dust threshold: %w", err)
	}

	a.Connections = storage.NewConnectionRepository(a.Postgres)
	a.Valuations = storage.NewValuationRepository(a.Postgres)

	a.Portfolio = service.NewPortfolioService(service.PortfolioServiceConfig{
		Connections: a.Connections,
		Valuations:  a.Valuations,
		Archive:     archive,
		Quotes:      a.Market,
		Exchange:    adapter.NewExchangeAdapter(adapter.NewBinanceClient(&cfg.Exchange, clock.Real{}), cfg.Exchange.Timeout),
		Wallet:      wallet,
		Valuator:    service.NewValuator(resolver.NewSymbolResolver(cfg.Valuation.SymbolTable()), dust),
		Clock:       clock.Real{},
	})
	a.History = service.NewHistoryService(a.Valuations)
	a.Insights = service.NewInsightService()

	snapshotRetry := retry.DefaultConfig()
	snapshotRetry.MaxAttempts = cfg.Snapshot.RetryAttempts
	if cfg.Snapshot.RetryDelay > 0 {
		snapshotRetry.InitialDelay = cfg.Snapshot.RetryDelay
	}
	a.Snapshots = service.NewSnapshotService(a.Connections, a.Portfolio, snapshotRetry)

	logger.Info("Services initialized")
	ready = true
	return a, nil
}

func (a *App) newMarketCache() (storage.MarketCache, error) {
	cfg := a.Config
	if cfg.Market.CacheBackend != config.CacheBackendRedis {
		a.MemoryCache = storage.NewMemoryMarketCache(cfg.Market.CacheTTL, clock.Real{})
		return a.MemoryCache, nil
	}

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.Redis = redis
	return storage.NewRedisMarketCache(redis, cfg.Market.CacheTTL), nil
}

// Close releases every connection the app opened
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Chain != nil {
		a.Chain.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.ClickHouse != nil {
		_ = a.ClickHouse.Close()
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
}
