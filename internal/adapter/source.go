// Package adapter fetches balances from the exchange and on-chain sources and
// normalizes them into (asset, free amount) pairs.
package adapter

import (
	"context"
	"fmt"
	"math/big"

	apperrors "github.com/koinlytics-backend/internal/errors"
	"github.com/koinlytics-backend/internal/types"
)

// ExchangeBalanceSource reads spot balances from a centralized exchange
type ExchangeBalanceSource interface {
	// GetAccountBalances returns every balance the account reports, including zeros
	GetAccountBalances(ctx context.Context, apiKey, apiSecret string) ([]types.Balance, error)
}

// ChainBalanceSource reads native and token balances for an address
type ChainBalanceSource interface {
	// GetNativeBalance returns the native coin balance in wei
	GetNativeBalance(ctx context.Context, address string) (*big.Int, error)

	// GetTokenBalances returns raw token balances; entries may be zero
	GetTokenBalances(ctx context.Context, address string) ([]TokenBalance, error)

	// GetTokenMetadata returns symbol and decimals for a token contract
	GetTokenMetadata(ctx context.Context, contract string) (*TokenMetadata, error)
}

// TokenBalance is a raw on-chain token amount, not yet scaled by decimals
type TokenBalance struct {
	ContractAddress string
	RawAmount       *big.Int
}

// TokenMetadata describes a token contract. Decimals is nil when the provider omits it.
type TokenMetadata struct {
	Name     string
	Symbol   string
	Decimals *int
}

const (
	// DefaultTokenDecimals applies when metadata carries no decimals
	DefaultTokenDecimals = 18
	// MaxTokenDecimals is the largest decimals value a token can declare (uint8)
	MaxTokenDecimals = 255
)

var (
	// ErrInvalidAddress indicates the wallet address format is invalid
	ErrInvalidAddress = fmt.Errorf("invalid address format")

	// ErrMissingCredentials indicates an exchange call without key or secret
	ErrMissingCredentials = fmt.Errorf("missing exchange credentials")

	// ErrMissingSymbol indicates token metadata without a symbol
	ErrMissingSymbol = fmt.Errorf("token metadata has no symbol")

	// ErrInvalidDecimals indicates token metadata declaring more decimals than ERC-20 allows
	ErrInvalidDecimals = fmt.Errorf("token metadata has invalid decimals")
)

// AdapterError wraps a balance source failure with context
type AdapterError struct {
	Source  types.Source
	Op      string // operation that failed (e.g., "GetAccountBalances")
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("balance source error [%s:%s]: %v (details: %+v)", e.Source, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("balance source error [%s:%s]: %v", e.Source, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Is reports every adapter error as a source outage
func (e *AdapterError) Is(target error) bool {
	return target == apperrors.ErrSourceUnavailable
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(source types.Source, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Source:  source,
		Op:      op,
		Err:     err,
		Details: details,
	}
}
