package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koinlytics-backend/internal/circuitbreaker"
	apperrors "github.com/koinlytics-backend/internal/errors"
	"github.com/koinlytics-backend/internal/marketdata"
	"github.com/koinlytics-backend/internal/models"
	"github.com/koinlytics-backend/internal/service"
	"github.com/koinlytics-backend/internal/types"
)

// Mock services for testing

type mockPortfolioSyncer struct {
	syncFunc func(ctx context.Context, userID string) (*types.Portfolio, error)
}

func (m *mockPortfolioSyncer) SyncPortfolio(ctx context.Context, userID string) (*types.Portfolio, error) {
	if m.syncFunc != nil {
		return m.syncFunc(ctx, userID)
	}
	p := types.EmptyPortfolio("")
	p.TotalValue = decimal.NewFromInt(1550)
	p.Assets = []types.ConsolidatedAsset{
		{ID: "ethereum", Symbol: "ETH", Amount: decimal.RequireFromString("0.3"), CurrentValue: decimal.NewFromInt(900), Price: decimal.NewFromInt(3000)},
		{ID: "bitcoin", Symbol: "BTC", Amount: decimal.RequireFromString("0.01"), CurrentValue: decimal.NewFromInt(650), Price: decimal.NewFromInt(65000)},
	}
	return p, nil
}

type mockHistory struct {
	err error
}

func (m *mockHistory) GetHistory(ctx context.Context, userID string) ([]service.HistoryPoint, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []service.HistoryPoint{{SnapshotDate: "2024-05-01", TotalValue: decimal.NewFromInt(1550)}}, nil
}

type mockConnections struct {
	stored *models.Connections
	err    error
}

func (m *mockConnections) GetConnections(ctx context.Context, userID string) (*models.Connections, error) {
	return m.stored, m.err
}

func (m *mockConnections) UpsertConnections(ctx context.Context, conn *models.Connections) error {
	if m.err != nil {
		return m.err
	}
	m.stored = conn
	return nil
}

type mockCoins struct{}

func (m *mockCoins) GetCoinDetails(ctx context.Context, id string) (*marketdata.MarketEntry, error) {
	if id != "bitcoin" {
		return nil, fmt.Errorf("%w: %s", marketdata.ErrCoinNotFound, id)
	}
	return &marketdata.MarketEntry{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: decimal.NewFromInt(65000)}, nil
}

func (m *mockCoins) GetHistoricalSeries(ctx context.Context, id string, days string) (json.RawMessage, error) {
	if id == "down" {
		return nil, apperrors.NewUpstreamUnavailableError("coingecko", errors.New("timeout"))
	}
	return json.RawMessage(fmt.Sprintf(`{"prices":[[1714521600000,64000.5]],"days":%q}`, days)), nil
}

type testServer struct {
	handler     http.Handler
	syncer      *mockPortfolioSyncer
	history     *mockHistory
	connections *mockConnections
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		syncer:      &mockPortfolioSyncer{},
		history:     &mockHistory{},
		connections: &mockConnections{},
	}
	server := NewServer(&ServerConfig{
		Host:           "localhost",
		Port:           "0",
		FreeTierRPS:    100,
		BasicTierRPS:   100,
		PremiumTierRPS: 100,
	}, Services{
		Portfolio:   ts.syncer,
		History:     ts.history,
		Insights:    service.NewInsightService(),
		Connections: ts.connections,
		Coins:       &mockCoins{},
	})
	ts.handler = server.Handler()
	return ts
}

func (ts *testServer) do(method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.ServiceError {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err, "every response carries a request id")
}

func TestHealthReportsOpenBreaker(t *testing.T) {
	breaker := circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{Name: "coingecko", MaxFailures: 1, Cooldown: time.Hour})
	server := NewServer(&ServerConfig{Host: "localhost", Port: "0"}, Services{
		Upstreams: []UpstreamMonitor{breaker},
	})

	get := func() map[string]interface{} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	assert.Equal(t, "healthy", get()["status"])

	_ = breaker.Execute(context.Background(), func() error { return errors.New("upstream 500") })
	body := get()
	assert.Equal(t, "degraded", body["status"])
	upstreams := body["upstreams"].([]interface{})
	require.Len(t, upstreams, 1)
	assert.Equal(t, "open", upstreams[0].(map[string]interface{})["state"])
}

type stubLimiter struct{ acquired int64 }

func (s stubLimiter) Acquired() int64         { return s.acquired }
func (s stubLimiter) Interval() time.Duration { return 1200 * time.Millisecond }

type stubCache int

func (s stubCache) Len() int { return int(s) }

func TestHealthReportsLimiterAndCache(t *testing.T) {
	get := func(services Services) map[string]interface{} {
		rec := httptest.NewRecorder()
		NewServer(&ServerConfig{Host: "localhost", Port: "0"}, services).
			Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	body := get(Services{Limiter: stubLimiter{acquired: 7}, MarketCache: stubCache(3)})
	assert.Equal(t, "healthy", body["status"])
	limiter := body["limiter"].(map[string]interface{})
	assert.EqualValues(t, 7, limiter["acquired"])
	assert.EqualValues(t, 1200, limiter["minIntervalMs"])
	assert.EqualValues(t, 3, body["marketCache"].(map[string]interface{})["entries"])

	bare := get(Services{})
	assert.NotContains(t, bare, "limiter")
	assert.NotContains(t, bare, "marketCache")
}

func TestSyncPortfolioEndpoint(t *testing.T) {
	t.Run("returns portfolio", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(http.MethodGet, "/api/portfolio/sync", "user-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Portfolio struct {
				TotalValue json.Number `json:"totalValue"`
				Assets     []struct {
					Symbol       string      `json:"symbol"`
					CurrentValue json.Number `json:"currentValue"`
				} `json:"assets"`
			} `json:"portfolio"`
		}
		dec := json.NewDecoder(rec.Body)
		dec.UseNumber()
		require.NoError(t, dec.Decode(&resp))
		assert.Equal(t, "1550", resp.Portfolio.TotalValue.String())
		require.Len(t, resp.Portfolio.Assets, 2)
		assert.Equal(t, "ETH", resp.Portfolio.Assets[0].Symbol)
	})

	t.Run("degraded result is still 200", func(t *testing.T) {
		ts := newTestServer(t)
		ts.syncer.syncFunc = func(ctx context.Context, userID string) (*types.Portfolio, error) {
			return types.UnavailablePortfolio(types.ErrorMarketDataUnavailable), nil
		}
		rec := ts.do(http.MethodGet, "/api/portfolio/sync", "user-1", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), types.ErrorMarketDataUnavailable)
		assert.Contains(t, rec.Body.String(), `"assets":[]`)
	})

	t.Run("requires user", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(http.MethodGet, "/api/portfolio/sync", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, ErrCodeUnauthorized, decodeError(t, rec).Code)
	})

	t.Run("unexpected failure hides cause", func(t *testing.T) {
		ts := newTestServer(t)
		ts.syncer.syncFunc = func(ctx context.Context, userID string) (*types.Portfolio, error) {
			return nil, errors.New("secret internals")
		}
		rec := ts.do(http.MethodGet, "/api/portfolio/sync", "user-1", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret internals")
	})
}

func TestHistoryEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/portfolio/history", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"snapshot_date":"2024-05-01","total_value":1550}]`, rec.Body.String())

	ts.history.err = apperrors.NewDatabaseError("list valuations", errors.New("db down"))
	rec = ts.do(http.MethodGet, "/api/portfolio/history", "user-1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apperrors.CodeDatabaseError, decodeError(t, rec).Code)
}

func TestInsightsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	portfolio, _ := ts.syncer.SyncPortfolio(context.Background(), "user-1")
	rec := ts.do(http.MethodPost, "/api/portfolio/insights", "", map[string]interface{}{"portfolio": portfolio})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["insights"], "- ")
	assert.Contains(t, resp["insights"], "ETH")

	for name, body := range map[string]interface{}{
		"missing portfolio": map[string]interface{}{},
		"empty assets":      map[string]interface{}{"portfolio": types.EmptyPortfolio("")},
	} {
		t.Run(name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/portfolio/insights", "", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, service.MessagePortfolioRequired, decodeError(t, rec).Message)
		})
	}
}

func TestConnectionsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/connections", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hasExchangeKeys":false`)

	rec = ts.do(http.MethodPost, "/api/connections", "user-1", map[string]string{
		"exchangeApiKey":    "abcdefgh1234",
		"exchangeApiSecret": "s3cret",
		"walletAddress":     "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "s3cret")
	assert.Contains(t, rec.Body.String(), `"exchangeApiKey":"********1234"`)
	require.NotNil(t, ts.connections.stored)
	assert.Equal(t, "user-1", ts.connections.stored.UserID)

	tests := []struct {
		name string
		body map[string]string
	}{
		{name: "bad address", body: map[string]string{"walletAddress": "0x123"}},
		{name: "key without secret", body: map[string]string{"exchangeApiKey": "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/connections", "user-1", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCoinEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/coins/bitcoin", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Bitcoin"`)

	rec = ts.do(http.MethodGet, "/api/coins/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/coins/bitcoin/history?days=7", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"prices":[[1714521600000,64000.5]],"days":"7"}`, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/coins/down/history", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ErrCodeServiceUnavailable, decodeError(t, rec).Code)

	invalid := []string{
		"/api/coins/bitcoin,ethereum",
		"/api/coins/bitcoin/history?days=9999",
		"/api/coins/bitcoin,ethereum/history",
	}
	for _, path := range invalid {
		t.Run(path, func(t *testing.T) {
			rec := ts.do(http.MethodGet, path, "", nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, ErrCodeInvalidInput, decodeError(t, rec).Code)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodOptions, "/api/portfolio/sync", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	ts := newTestServer(t)
	ts.syncer.syncFunc = func(ctx context.Context, userID string) (*types.Portfolio, error) {
		panic("boom")
	}
	rec := ts.do(http.MethodGet, "/api/portfolio/sync", "user-1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrCodeInternalError, decodeError(t, rec).Code)
}
