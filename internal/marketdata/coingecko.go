package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/koinlytics-backend/internal/config"
)

// DefaultChartDays is the window of the intraday series
const DefaultChartDays = "1"

const maxErrorBody = 512

// CoinGeckoProvider talks to the CoinGecko v3 REST API
type CoinGeckoProvider struct {
	baseURL    string
	apiKey     string
	vsCurrency string
	client     *http.Client
}

// NewCoinGeckoProvider creates a provider from market config
func NewCoinGeckoProvider(cfg *config.MarketConfig) *CoinGeckoProvider {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	vs := cfg.VsCurrency
	if vs == "" {
		vs = "usd"
	}
	return &CoinGeckoProvider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		vsCurrency: vs,
		client:     &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider in logs and errors
func (p *CoinGeckoProvider) Name() string {
	return "coingecko"
}

// GetMarkets fetches current market data for all ids in one request
func (p *CoinGeckoProvider) GetMarkets(ctx context.Context, ids []string) ([]MarketEntry, error) {
	params := url.Values{}
	params.Set("vs_currency", p.vsCurrency)
	params.Set("ids", strings.Join(ids, ","))

	body, err := p.get(ctx, "/api/v3/coins/markets", params)
	if err != nil {
		return nil, err
	}

	var entries []MarketEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse markets response: %w", err)
	}
	return entries, nil
}

// GetMarketChart fetches the price/market-cap/volume series for one coin
func (p *CoinGeckoProvider) GetMarketChart(ctx context.Context, id string, days string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("vs_currency", p.vsCurrency)
	params.Set("days", days)

	body, err := p.get(ctx, "/api/v3/coins/"+url.PathEscape(id)+"/market_chart", params)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("market chart response for %s is not valid JSON", id)
	}
	return json.RawMessage(body), nil
}

func (p *CoinGeckoProvider) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, fmt.Errorf("HTTP error: %d - %s", resp.StatusCode, string(body))
	}

	return body, nil
}
