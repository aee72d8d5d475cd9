package adapter

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/koinlytics-backend/internal/errors"
	"github.com/koinlytics-backend/internal/logging"
	"github.com/koinlytics-backend/internal/types"
)

const (
	// DefaultNativeSymbol is the asset name the native coin is reported under
	DefaultNativeSymbol = "eth"

	// DefaultMetadataConcurrency caps in-flight metadata lookups
	DefaultMetadataConcurrency = 8

	nativeDecimals = 18
)

// WalletAdapterConfig configures a WalletAdapter
type WalletAdapterConfig struct {
	Timeout             time.Duration
	MetadataConcurrency int
	NativeSymbol        string
}

// WalletAdapter returns the native coin and token balances held by an address.
// It never fails: a top-level source problem degrades to an empty list and a
// token whose metadata cannot be fetched is left out.
type WalletAdapter struct {
	source       ChainBalanceSource
	timeout      time.Duration
	concurrency  int
	nativeSymbol string
}

// NewWalletAdapter creates a wallet adapter
func NewWalletAdapter(source ChainBalanceSource, cfg WalletAdapterConfig) *WalletAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSourceTimeout
	}
	if cfg.MetadataConcurrency <= 0 {
		cfg.MetadataConcurrency = DefaultMetadataConcurrency
	}
	if cfg.NativeSymbol == "" {
		cfg.NativeSymbol = DefaultNativeSymbol
	}
	return &WalletAdapter{
		source:       source,
		timeout:      cfg.Timeout,
		concurrency:  cfg.MetadataConcurrency,
		nativeSymbol: strings.ToLower(cfg.NativeSymbol),
	}
}

// FetchBalances returns token balances above zero followed by the native coin.
// The native coin is always present on success, even when its balance is zero.
func (a *WalletAdapter) FetchBalances(ctx context.Context, address string) []types.Balance {
	address = strings.TrimSpace(address)
	if address == "" {
		return []types.Balance{}
	}

	logger := logging.FromContext(ctx).WithField("address", address)
	if !common.IsHexAddress(address) {
		logger.WithError(NewAdapterError(types.SourceWallet, "FetchBalances", ErrInvalidAddress, nil)).
			Warn("Skipping wallet with invalid address")
		return []types.Balance{}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	wei, err := a.source.GetNativeBalance(ctx, address)
	if err != nil {
		a.logUnavailable(logger, err)
		return []types.Balance{}
	}

	tokens, err := a.source.GetTokenBalances(ctx, address)
	if err != nil {
		a.logUnavailable(logger, err)
		return []types.Balance{}
	}

	held := make([]TokenBalance, 0, len(tokens))
	for _, t := range tokens {
		if t.RawAmount != nil && t.RawAmount.Sign() > 0 {
			held = append(held, t)
		}
	}

	// one slot per token keeps the provider's order regardless of completion order
	slots := make([]*types.Balance, len(held))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, token := range held {
		i, token := i, token
		g.Go(func() error {
			meta, err := a.source.GetTokenMetadata(gctx, token.ContractAddress)
			decimals, err := usableDecimals(meta, err)
			if err != nil {
				logger.WithField("contract", token.ContractAddress).
					WithError(apperrors.NewMetadataUnavailableError(token.ContractAddress, err)).
					Warn("Dropping token without metadata")
				return nil
			}
			balance := types.NewBalance(meta.Symbol, scaleAmount(token.RawAmount, decimals))
			slots[i] = &balance
			return nil
		})
	}
	_ = g.Wait()

	balances := make([]types.Balance, 0, len(slots)+1)
	for _, b := range slots {
		if b != nil {
			balances = append(balances, *b)
		}
	}
	balances = append(balances, types.NewBalance(a.nativeSymbol, scaleAmount(wei, nativeDecimals)))
	return balances
}

func (a *WalletAdapter) logUnavailable(logger *logging.Logger, err error) {
	logger.WithError(apperrors.NewSourceUnavailableError(string(types.SourceWallet), err)).
		Warn("Wallet balances unavailable, continuing without them")
}

// usableDecimals returns the decimals to scale by, or why the metadata cannot be used
func usableDecimals(meta *TokenMetadata, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	if meta == nil || strings.TrimSpace(meta.Symbol) == "" {
		return 0, ErrMissingSymbol
	}
	decimals := decimalsOrDefault(meta.Decimals)
	if decimals > MaxTokenDecimals {
		return 0, ErrInvalidDecimals
	}
	return decimals, nil
}

func decimalsOrDefault(d *int) int {
	if d == nil || *d < 0 {
		return DefaultTokenDecimals
	}
	return *d
}

// scaleAmount converts a raw integer amount into units with the given decimals
func scaleAmount(raw *big.Int, decimals int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, int32(-decimals))
}
