// Package models holds the records persisted by the storage layer.
package models

import (
	"time"
)

// Connections holds the balance-source credentials a user has configured
type Connections struct {
	UserID            string    `json:"userId" db:"user_id"`
	ExchangeAPIKey    string    `json:"exchangeApiKey,omitempty" db:"exchange_api_key"`
	ExchangeAPISecret string    `json:"exchangeApiSecret,omitempty" db:"exchange_api_secret"`
	WalletAddress     string    `json:"walletAddress,omitempty" db:"wallet_address"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}

// HasExchange reports whether both halves of the exchange credentials are configured
func (c *Connections) HasExchange() bool {
	return c != nil && c.ExchangeAPIKey != "" && c.ExchangeAPISecret != ""
}

// HasWallet reports whether a wallet address is configured
func (c *Connections) HasWallet() bool {
	return c != nil && c.WalletAddress != ""
}

// IsEmpty reports whether no balance source is configured
func (c *Connections) IsEmpty() bool {
	return !c.HasExchange() && !c.HasWallet()
}
