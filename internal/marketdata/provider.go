// Package marketdata fetches prices and charts from the market-data provider
// through the shared cache and upstream rate limiter.
package marketdata

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/koinlytics-backend/internal/types"
)

// Provider is the upstream market-data source.
// GetMarkets must answer for many ids in one request.
type Provider interface {
	Name() string
	GetMarkets(ctx context.Context, ids []string) ([]MarketEntry, error)
	GetMarketChart(ctx context.Context, id string, days string) (json.RawMessage, error)
}

// MarketEntry is one row of a provider markets response
type MarketEntry struct {
	ID                       string              `json:"id"`
	Symbol                   string              `json:"symbol"`
	Name                     string              `json:"name"`
	Image                    string              `json:"image"`
	CurrentPrice             decimal.Decimal     `json:"current_price"`
	MarketCap                decimal.NullDecimal `json:"market_cap"`
	TotalVolume              decimal.NullDecimal `json:"total_volume"`
	High24h                  decimal.NullDecimal `json:"high_24h"`
	Low24h                   decimal.NullDecimal `json:"low_24h"`
	PriceChangePercentage24h decimal.NullDecimal `json:"price_change_percentage_24h"`
	LastUpdated              string              `json:"last_updated"`
}

// Quote projects the entry onto the fields valuation needs
func (e MarketEntry) Quote() types.MarketQuote {
	return types.MarketQuote{
		Price:     e.CurrentPrice,
		Change24h: e.PriceChangePercentage24h,
		Image:     e.Image,
	}
}
