// Package types provides common type definitions for the portfolio sync system.
package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts and values travel as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Source identifies a balance source
type Source string

const (
	// SourceExchange is the centralized-exchange account
	SourceExchange Source = "exchange"
	// SourceWallet is the on-chain wallet
	SourceWallet Source = "wallet"
)

// Result markers returned inside a degraded or empty Portfolio
const (
	MessageNoConnections       = "No wallet or exchange connections found. Please add your connections in Settings."
	MessageNoAssets            = "No assets found in your connected wallets or exchanges."
	ErrorMarketDataUnavailable = "Market data temporarily unavailable"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Balance is one (asset, free amount) pair reported by a balance source.
// Asset is always lowercase and Free is never negative.
type Balance struct {
	Asset string          `json:"asset"`
	Free  decimal.Decimal `json:"free"`
}

// ParseBalance builds a Balance from a raw textual amount.
// It reports false when the amount is not a number or is negative.
func ParseBalance(asset, raw string) (Balance, bool) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || amount.IsNegative() {
		return Balance{}, false
	}
	return NewBalance(asset, amount), true
}

// NewBalance normalizes the asset symbol to lowercase
func NewBalance(asset string, free decimal.Decimal) Balance {
	return Balance{
		Asset: strings.ToLower(strings.TrimSpace(asset)),
		Free:  free,
	}
}

// MarketQuote is the current market data for one pricing identifier
type MarketQuote struct {
	Price     decimal.Decimal     `json:"price"`
	Change24h decimal.NullDecimal `json:"change24h"`
	Image     string              `json:"image"`
}

// ChangeOrZero returns the 24h percent change, treating a missing figure as no change.
func (q MarketQuote) ChangeOrZero() decimal.Decimal {
	if !q.Change24h.Valid {
		return decimal.Zero
	}
	return q.Change24h.Decimal
}

// ConsolidatedAsset is one row of a synced portfolio
type ConsolidatedAsset struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Amount       decimal.Decimal `json:"amount"`
	CurrentValue decimal.Decimal `json:"currentValue"`
	Price        decimal.Decimal `json:"price"`
	Change24h    decimal.Decimal `json:"change24h"`
	Image        string          `json:"image"`
}

// Portfolio is the consolidated, valued view of a user's holdings.
// Assets are ordered by CurrentValue, highest first.
type Portfolio struct {
	TotalValue       decimal.Decimal     `json:"totalValue"`
	Change24hValue   decimal.Decimal     `json:"change24hValue"`
	Change24hPercent decimal.Decimal     `json:"change24hPercent"`
	Assets           []ConsolidatedAsset `json:"assets"`
	Message          string              `json:"message,omitempty"`
	Error            string              `json:"error,omitempty"`
}

// EmptyPortfolio returns a zero-valued portfolio carrying a message marker
func EmptyPortfolio(message string) *Portfolio {
	return &Portfolio{
		TotalValue:       decimal.Zero,
		Change24hValue:   decimal.Zero,
		Change24hPercent: decimal.Zero,
		Assets:           []ConsolidatedAsset{},
		Message:          message,
	}
}

// UnavailablePortfolio returns a zero-valued portfolio carrying an error marker
func UnavailablePortfolio(reason string) *Portfolio {
	p := EmptyPortfolio("")
	p.Error = reason
	return p
}

// IsEmpty reports whether the portfolio has no priced assets
func (p *Portfolio) IsEmpty() bool {
	return p == nil || len(p.Assets) == 0
}
