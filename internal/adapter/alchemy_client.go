package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/koinlytics-backend/internal/types"
)

// AlchemyClient reads balances through an Alchemy-compatible JSON-RPC endpoint.
// Native balances use the standard eth_getBalance call; token balances and
// metadata use Alchemy's enhanced methods.
type AlchemyClient struct {
	rpc *rpc.Client
	eth *ethclient.Client
}

// NewAlchemyClient dials the RPC endpoint
func NewAlchemyClient(ctx context.Context, rpcURL string) (*AlchemyClient, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	client, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain rpc: %w", err)
	}
	return &AlchemyClient{
		rpc: client,
		eth: ethclient.NewClient(client),
	}, nil
}

// Close releases the underlying RPC connection
func (c *AlchemyClient) Close() {
	c.eth.Close()
}

// GetNativeBalance returns the latest balance in wei
func (c *AlchemyClient) GetNativeBalance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, NewAdapterError(types.SourceWallet, "GetNativeBalance", ErrInvalidAddress, map[string]interface{}{"address": address})
	}
	balance, err := c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, NewAdapterError(types.SourceWallet, "GetNativeBalance", err, nil)
	}
	return balance, nil
}

type tokenBalancesResult struct {
	Address       string `json:"address"`
	TokenBalances []struct {
		ContractAddress string  `json:"contractAddress"`
		TokenBalance    *string `json:"tokenBalance"`
		Error           *string `json:"error"`
	} `json:"tokenBalances"`
}

// GetTokenBalances lists ERC-20 balances for the address.
// Entries the provider reports as errored or unparsable are skipped.
func (c *AlchemyClient) GetTokenBalances(ctx context.Context, address string) ([]TokenBalance, error) {
	if !common.IsHexAddress(address) {
		return nil, NewAdapterError(types.SourceWallet, "GetTokenBalances", ErrInvalidAddress, map[string]interface{}{"address": address})
	}

	var result tokenBalancesResult
	if err := c.rpc.CallContext(ctx, &result, "alchemy_getTokenBalances", address, "erc20"); err != nil {
		return nil, NewAdapterError(types.SourceWallet, "GetTokenBalances", err, nil)
	}

	balances := make([]TokenBalance, 0, len(result.TokenBalances))
	for _, tb := range result.TokenBalances {
		if tb.Error != nil || tb.TokenBalance == nil {
			continue
		}
		amount, ok := parseHexQuantity(*tb.TokenBalance)
		if !ok {
			continue
		}
		balances = append(balances, TokenBalance{
			ContractAddress: strings.ToLower(tb.ContractAddress),
			RawAmount:       amount,
		})
	}
	return balances, nil
}

type tokenMetadataResult struct {
	Name     *string `json:"name"`
	Symbol   *string `json:"symbol"`
	Decimals *int    `json:"decimals"`
}

// GetTokenMetadata returns the contract's symbol and decimals
func (c *AlchemyClient) GetTokenMetadata(ctx context.Context, contract string) (*TokenMetadata, error) {
	var result tokenMetadataResult
	if err := c.rpc.CallContext(ctx, &result, "alchemy_getTokenMetadata", contract); err != nil {
		return nil, NewAdapterError(types.SourceWallet, "GetTokenMetadata", err, map[string]interface{}{"contract": contract})
	}

	meta := &TokenMetadata{Decimals: result.Decimals}
	if result.Name != nil {
		meta.Name = *result.Name
	}
	if result.Symbol != nil {
		meta.Symbol = *result.Symbol
	}
	return meta, nil
}

// parseHexQuantity parses a 0x-prefixed hex amount. Zero-padded values are accepted.
func parseHexQuantity(s string) (*big.Int, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return new(big.Int), true
	}
	return new(big.Int).SetString(s, 16)
}
