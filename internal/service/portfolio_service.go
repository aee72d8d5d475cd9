package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/koinlytics-backend/internal/clock"
	apperrors "github.com/koinlytics-backend/internal/errors"
	"github.com/koinlytics-backend/internal/logging"
	"github.com/koinlytics-backend/internal/models"
	"github.com/koinlytics-backend/internal/types"
)

// Repository interfaces for dependency injection

// ConnectionStore reads a user's configured balance sources
type ConnectionStore interface {
	GetConnections(ctx context.Context, userID string) (*models.Connections, error)
}

// ValuationStore records one total value per user and day
type ValuationStore interface {
	UpsertValuation(ctx context.Context, userID string, date time.Time, total decimal.Decimal) error
}

// AssetArchive keeps a per-asset record of every sync
type AssetArchive interface {
	ArchiveAssets(ctx context.Context, userID string, syncedAt time.Time, assets []types.ConsolidatedAsset) error
}

// QuoteSource returns current quotes keyed by pricing identifier
type QuoteSource interface {
	GetQuotes(ctx context.Context, ids []string) (map[string]types.MarketQuote, error)
}

// ExchangeBalances returns positive exchange balances, empty on any failure
type ExchangeBalances interface {
	FetchBalances(ctx context.Context, apiKey, apiSecret string) []types.Balance
}

// WalletBalances returns wallet balances, empty on any failure
type WalletBalances interface {
	FetchBalances(ctx context.Context, address string) []types.Balance
}

// PortfolioServiceConfig wires the portfolio service
type PortfolioServiceConfig struct {
	Connections ConnectionStore
	Valuations  ValuationStore
	// Archive is optional
	Archive  AssetArchive
	Quotes   QuoteSource
	Exchange ExchangeBalances
	Wallet   WalletBalances
	Valuator *Valuator
	Clock    clock.Clock
}

// PortfolioService syncs and values a user's holdings across balance sources
type PortfolioService struct {
	connections ConnectionStore
	valuations  ValuationStore
	archive     AssetArchive
	quotes      QuoteSource
	exchange    ExchangeBalances
	wallet      WalletBalances
	valuator    *Valuator
	clock       clock.Clock
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(cfg PortfolioServiceConfig) *PortfolioService {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &PortfolioService{
		connections: cfg.Connections,
		valuations:  cfg.Valuations,
		archive:     cfg.Archive,
		quotes:      cfg.Quotes,
		exchange:    cfg.Exchange,
		wallet:      cfg.Wallet,
		valuator:    cfg.Valuator,
		clock:       cfg.Clock,
	}
}

// SyncPortfolio fetches the user's balances from every configured source, prices
// them and records the day's total. Source, market-data and storage failures
// degrade the result instead of failing the call; only an empty user id is rejected.
func (s *PortfolioService) SyncPortfolio(ctx context.Context, userID string) (*types.Portfolio, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewInvalidRequestError("user id is required")
	}

	logger := logging.FromContext(ctx).WithField("user_id", userID)
	ctx = logging.WithLogger(ctx, logger)

	conn, err := s.connections.GetConnections(ctx, userID)
	if err != nil {
		logger.WithError(err).Error("Failed to load connections, treating as none")
		conn = nil
	}
	if conn.IsEmpty() {
		return types.EmptyPortfolio(types.MessageNoConnections), nil
	}

	exchangeBalances, walletBalances := s.fetchBalances(ctx, conn)
	holdings := MergeBalances(exchangeBalances, walletBalances)

	ids := s.valuator.Identifiers(holdings)
	if len(ids) == 0 {
		logger.Info("No assets found")
		return types.EmptyPortfolio(types.MessageNoAssets), nil
	}

	quotes, err := s.quotes.GetQuotes(ctx, ids)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch market data")
		return types.UnavailablePortfolio(types.ErrorMarketDataUnavailable), nil
	}

	portfolio := s.valuator.Value(holdings, quotes)
	now := s.clock.Now().UTC()

	if portfolio.TotalValue.IsPositive() {
		if err := s.valuations.UpsertValuation(ctx, userID, now, portfolio.TotalValue); err != nil {
			logger.WithError(err).Error("Failed to record valuation")
		}
	}

	if s.archive != nil && len(portfolio.Assets) > 0 {
		if err := s.archive.ArchiveAssets(ctx, userID, now, portfolio.Assets); err != nil {
			logger.WithError(err).Warn("Failed to archive asset snapshot")
		}
	}

	logger.WithFields(map[string]interface{}{
		"assets":      len(portfolio.Assets),
		"total_value": portfolio.TotalValue.StringFixed(2),
	}).Info("Portfolio synced")

	return portfolio, nil
}

// fetchBalances runs both sources concurrently and waits for both
func (s *PortfolioService) fetchBalances(ctx context.Context, conn *models.Connections) (exchange, wallet []types.Balance) {
	var wg sync.WaitGroup

	if conn.HasExchange() && s.exchange != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exchange = s.exchange.FetchBalances(ctx, conn.ExchangeAPIKey, conn.ExchangeAPISecret)
		}()
	}

	if conn.HasWallet() && s.wallet != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wallet = s.wallet.FetchBalances(ctx, conn.WalletAddress)
		}()
	}

	wg.Wait()
	return exchange, wallet
}
