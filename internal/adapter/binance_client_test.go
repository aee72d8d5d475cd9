package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koinlytics-backend/internal/clock"
	"github.com/koinlytics-backend/internal/config"
	apperrors "github.com/koinlytics-backend/internal/errors"
)

func newTestBinanceClient(t *testing.T, handler http.HandlerFunc) *BinanceClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	clk := clock.NewManual(time.UnixMilli(1714564800000))
	return NewBinanceClient(&config.ExchangeConfig{
		BaseURL:    srv.URL,
		Timeout:    time.Second,
		RecvWindow: 5 * time.Second,
	}, clk)
}

func TestSign(t *testing.T) {
	// reference vector from the Binance API documentation
	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	assert.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", Sign(secret, payload))
}

func TestBinanceGetAccountBalances(t *testing.T) {
	client := newTestBinanceClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/account", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))

		q := r.URL.Query()
		assert.Equal(t, "1714564800000", q.Get("timestamp"))
		assert.Equal(t, "5000", q.Get("recvWindow"))

		signed := r.URL.RawQuery[:strings.Index(r.URL.RawQuery, "&signature=")]
		assert.Equal(t, Sign("secret", signed), q.Get("signature"))

		_, _ = w.Write([]byte(`{"balances":[
			{"asset":"BTC","free":"0.01000000","locked":"0.00000000"},
			{"asset":"ETH","free":"0.00000000","locked":"1.00000000"},
			{"asset":"BAD","free":"abc","locked":"0"}
		]}`))
	})

	balances, err := client.GetAccountBalances(context.Background(), "key", "secret")
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "btc", balances[0].Asset)
	assert.True(t, balances[0].Free.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, "eth", balances[1].Asset)
	assert.True(t, balances[1].Free.IsZero())
}

func TestBinanceGetAccountBalancesErrors(t *testing.T) {
	t.Run("rejected credentials", func(t *testing.T) {
		client := newTestBinanceClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`))
		})

		_, err := client.GetAccountBalances(context.Background(), "key", "secret")
		require.Error(t, err)

		var adapterErr *AdapterError
		require.True(t, errors.As(err, &adapterErr))
		assert.Equal(t, -2015, adapterErr.Details["code"])
		assert.True(t, errors.Is(err, apperrors.ErrSourceUnavailable))
	})

	t.Run("missing credentials", func(t *testing.T) {
		client := newTestBinanceClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("exchange must not be called")
		})

		_, err := client.GetAccountBalances(context.Background(), "key", "")
		assert.ErrorIs(t, err, ErrMissingCredentials)
	})

	t.Run("malformed body", func(t *testing.T) {
		client := newTestBinanceClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		})

		_, err := client.GetAccountBalances(context.Background(), "key", "secret")
		assert.ErrorIs(t, err, apperrors.ErrSourceUnavailable)
	})
}
