// Package retry runs an operation with exponential backoff between attempts.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/koinlytics-backend/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap on any single delay
	Multiplier   float64       // growth factor between delays
}

// DefaultConfig returns a default retry configuration
// Pattern: 30s, 60s, then give up
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: 30 * time.Second,
		MaxDelay:     5 * time.Minute,
		Multiplier:   2.0,
	}
}

// Func is one attempt; attempt starts at 1
type Func func(ctx context.Context, attempt int) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts run
// out, or ctx ends. It returns the number of attempts made and the last error.
// A nil config means a single attempt.
func Do(ctx context.Context, cfg *Config, fn Func) (int, error) {
	if cfg == nil {
		cfg = &Config{MaxAttempts: 1}
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	logger := logging.FromContext(ctx)

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.WithField("attempts", attempt).Info("Operation succeeded after retry")
			}
			return attempt, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return attempt, perm.err
		}
		if attempt >= maxAttempts {
			return attempt, err
		}

		delay := Delay(cfg, attempt)
		logger.WithError(err).WithFields(map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
			"delay":        delay.String(),
		}).Warn("Operation failed, retrying with exponential backoff")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		}
	}
}

// Delay returns the wait after the given failed attempt: InitialDelay * Multiplier^(attempt-1), capped at MaxDelay
func Delay(cfg *Config, attempt int) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(cfg.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
