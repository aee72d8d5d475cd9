package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koinlytics-backend/internal/clock"
	apperrors "github.com/koinlytics-backend/internal/errors"
)

var errUpstream = errors.New("upstream 502")

func newTestBreaker(clk clock.Clock) *CircuitBreaker {
	return NewCircuitBreaker(&Config{
		Name:        "coingecko",
		MaxFailures: 2,
		Cooldown:    30 * time.Second,
		Clock:       clk,
	})
}

func fail() error    { return errUpstream }
func succeed() error { return nil }

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	cb := newTestBreaker(clock.NewManual(time.Unix(0, 0)))

	assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.False(t, called, "open circuit must not invoke the call")
	assert.False(t, cb.Allow())
}

func TestSuccessResetsConsecutiveCount(t *testing.T) {
	ctx := context.Background()
	cb := newTestBreaker(clock.NewManual(time.Unix(0, 0)))

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 2, cb.GetStats().TotalFailures)
}

func TestHalfOpenTrialCall(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Unix(0, 0))
	cb := newTestBreaker(clk)

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.GetState())

	clk.Advance(31 * time.Second)
	assert.True(t, cb.Allow())

	// failed trial reopens
	assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, cb.GetState())

	clk.Advance(31 * time.Second)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCallerCancellationIsNotAFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cb := newTestBreaker(clock.NewManual(time.Unix(0, 0)))

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func() error { return ctx.Err() })
	}

	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetStats().ConsecutiveFails)
}
