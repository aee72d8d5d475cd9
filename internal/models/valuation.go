package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValuationSnapshot is the total portfolio value recorded for one user and day
type ValuationSnapshot struct {
	UserID       string          `json:"userId" db:"user_id"`
	SnapshotDate time.Time       `json:"snapshotDate" db:"snapshot_date"`
	TotalValue   decimal.Decimal `json:"totalValue" db:"total_value"`
}

// AssetSnapshot is one consolidated asset captured at sync time.
// Rows are append-only and feed the analytics archive.
type AssetSnapshot struct {
	UserID       string          `json:"userId" ch:"user_id"`
	SyncedAt     time.Time       `json:"syncedAt" ch:"synced_at"`
	AssetID      string          `json:"assetId" ch:"asset_id"`
	Symbol       string          `json:"symbol" ch:"symbol"`
	Amount       decimal.Decimal `json:"amount" ch:"amount"`
	Price        decimal.Decimal `json:"price" ch:"price"`
	CurrentValue decimal.Decimal `json:"currentValue" ch:"current_value"`
	Change24h    decimal.Decimal `json:"change24h" ch:"change_24h"`
}
