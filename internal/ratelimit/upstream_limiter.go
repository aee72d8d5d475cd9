// Package ratelimit paces outbound calls to the market-data provider.
package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMinInterval is the spacing CoinGecko's public tier tolerates.
const DefaultMinInterval = time.Second

// UpstreamLimiter is the single process-wide slot every market-data request passes through.
// At most one caller proceeds per MinInterval, across all concurrent syncs.
type UpstreamLimiter struct {
	limiter  *rate.Limiter
	interval time.Duration
	acquired atomic.Int64
}

// UpstreamLimiterConfig holds configuration for the limiter.
type UpstreamLimiterConfig struct {
	// MinInterval is the minimum time between the starts of two acquisitions. Default: 1s.
	MinInterval time.Duration
}

// Validate checks if the configuration is valid.
func (c *UpstreamLimiterConfig) Validate() error {
	if c.MinInterval < 0 {
		return errors.New("min interval cannot be negative")
	}
	return nil
}

// NewUpstreamLimiter creates a limiter with a burst of one.
func NewUpstreamLimiter(cfg *UpstreamLimiterConfig) (*UpstreamLimiter, error) {
	if cfg == nil {
		cfg = &UpstreamLimiterConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	interval := cfg.MinInterval
	if interval == 0 {
		interval = DefaultMinInterval
	}

	return &UpstreamLimiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}, nil
}

// Acquire blocks until the caller may issue one upstream request.
// The only error is the context's: cancellation, or a deadline that ends before the slot opens.
func (l *UpstreamLimiter) Acquire(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// rate reports "would exceed context deadline" before the deadline actually passes
		return context.DeadlineExceeded
	}
	l.acquired.Add(1)
	return nil
}

// Interval returns the configured minimum spacing.
func (l *UpstreamLimiter) Interval() time.Duration {
	return l.interval
}

// Acquired returns how many acquisitions have succeeded.
func (l *UpstreamLimiter) Acquired() int64 {
	return l.acquired.Load()
}
