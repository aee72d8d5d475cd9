package adapter

import (
	"context"
	"time"

	apperrors "github.com/koinlytics-backend/internal/errors"
	"github.com/koinlytics-backend/internal/logging"
	"github.com/koinlytics-backend/internal/types"
)

// DefaultSourceTimeout bounds one balance fetch when no timeout is configured
const DefaultSourceTimeout = 10 * time.Second

// ExchangeAdapter returns a user's positive exchange balances.
// It never fails: any source problem degrades to an empty list.
type ExchangeAdapter struct {
	source  ExchangeBalanceSource
	timeout time.Duration
}

// NewExchangeAdapter creates an exchange adapter
func NewExchangeAdapter(source ExchangeBalanceSource, timeout time.Duration) *ExchangeAdapter {
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}
	return &ExchangeAdapter{source: source, timeout: timeout}
}

// FetchBalances returns balances with a free amount above zero.
// Missing credentials yield an empty list without contacting the exchange.
func (a *ExchangeAdapter) FetchBalances(ctx context.Context, apiKey, apiSecret string) []types.Balance {
	if apiKey == "" || apiSecret == "" {
		return []types.Balance{}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.source.GetAccountBalances(ctx, apiKey, apiSecret)
	if err != nil {
		logging.FromContext(ctx).
			WithError(apperrors.NewSourceUnavailableError(string(types.SourceExchange), err)).
			Warn("Exchange balances unavailable, continuing without them")
		return []types.Balance{}
	}

	balances := make([]types.Balance, 0, len(raw))
	for _, b := range raw {
		if b.Asset == "" || !b.Free.IsPositive() {
			continue
		}
		balances = append(balances, b)
	}
	return balances
}
