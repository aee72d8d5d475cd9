package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koinlytics-backend/internal/types"
)

func TestSentinelMatching(t *testing.T) {
	cause := stderrors.New("dial tcp: i/o timeout")

	upstream := NewUpstreamUnavailableError("coingecko", cause)
	assert.True(t, stderrors.Is(upstream, ErrUpstreamUnavailable))
	assert.False(t, stderrors.Is(upstream, ErrSourceUnavailable))
	assert.True(t, stderrors.Is(upstream, cause))

	wrapped := fmt.Errorf("sync: %w", NewSourceUnavailableError("binance", cause))
	assert.True(t, stderrors.Is(wrapped, ErrSourceUnavailable))

	meta := NewMetadataUnavailableError("0xabc", cause)
	assert.True(t, stderrors.Is(meta, ErrMetadataUnavailable))
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"invalid request", NewInvalidRequestError("Portfolio data is required."), CodeInvalidRequest, http.StatusBadRequest},
		{"wrapped categorized", fmt.Errorf("outer: %w", NewNotFoundError("coin", "x")), CodeNotFound, http.StatusNotFound},
		{"service error", &types.ServiceError{Code: CodeInvalidRequest, Message: "bad"}, CodeInvalidRequest, http.StatusBadRequest},
		{"circuit open", ErrCircuitOpen, CodeUpstreamUnavailable, http.StatusServiceUnavailable},
		{"plain", stderrors.New("boom"), CodeInternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Categorize(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantStatus, GetHTTPStatusCode(tt.err))
		})
	}

	assert.Nil(t, Categorize(nil))
}

func TestIsUserError(t *testing.T) {
	assert.True(t, IsUserError(NewInvalidRequestError("x")))
	assert.False(t, IsUserError(NewDatabaseError("upsert", stderrors.New("down"))))
	assert.False(t, IsUserError(nil))
}

func TestToServiceError(t *testing.T) {
	svc := NewNotFoundError("coin", "bitcoin").ToServiceError()
	assert.Equal(t, CodeNotFound, svc.Code)
	assert.Equal(t, "bitcoin", svc.Details["id"])
}
