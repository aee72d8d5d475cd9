package adapter

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/koinlytics-backend/internal/clock"
	"github.com/koinlytics-backend/internal/config"
	"github.com/koinlytics-backend/internal/types"
)

// BinanceClient calls the signed Binance spot account endpoint
type BinanceClient struct {
	baseURL    string
	recvWindow time.Duration
	client     *http.Client
	clock      clock.Clock
}

// NewBinanceClient creates a client from exchange config
func NewBinanceClient(cfg *config.ExchangeConfig, clk clock.Clock) *BinanceClient {
	if clk == nil {
		clk = clock.Real{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	recvWindow := cfg.RecvWindow
	if recvWindow <= 0 {
		recvWindow = 5 * time.Second
	}
	return &BinanceClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		recvWindow: recvWindow,
		client:     &http.Client{Timeout: timeout},
		clock:      clk,
	}
}

type binanceAccount struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// GetAccountBalances returns the free amount of every asset on the account.
// Amounts that do not parse as non-negative decimals are dropped.
func (c *BinanceClient) GetAccountBalances(ctx context.Context, apiKey, apiSecret string) ([]types.Balance, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, NewAdapterError(types.SourceExchange, "GetAccountBalances", ErrMissingCredentials, nil)
	}

	params := url.Values{}
	params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
	params.Set("timestamp", strconv.FormatInt(c.clock.Now().UnixMilli(), 10))
	query := params.Encode()
	query += "&signature=" + Sign(apiSecret, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/account?"+query, nil)
	if err != nil {
		return nil, NewAdapterError(types.SourceExchange, "GetAccountBalances", err, nil)
	}
	req.Header.Set("X-MBX-APIKEY", apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NewAdapterError(types.SourceExchange, "GetAccountBalances", err, nil)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewAdapterError(types.SourceExchange, "GetAccountBalances", fmt.Errorf("failed to read response: %w", err), nil)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr binanceError
		_ = json.Unmarshal(body, &apiErr)
		return nil, NewAdapterError(types.SourceExchange, "GetAccountBalances",
			fmt.Errorf("HTTP error: %d", resp.StatusCode), map[string]interface{}{
				"code": apiErr.Code,
				"msg":  apiErr.Msg,
			})
	}

	var account binanceAccount
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, NewAdapterError(types.SourceExchange, "GetAccountBalances", fmt.Errorf("failed to parse response: %w", err), nil)
	}

	balances := make([]types.Balance, 0, len(account.Balances))
	for _, b := range account.Balances {
		if balance, ok := types.ParseBalance(b.Asset, b.Free); ok {
			balances = append(balances, balance)
		}
	}
	return balances, nil
}

// Sign returns the hex HMAC-SHA256 of payload keyed by secret
func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
