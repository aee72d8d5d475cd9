package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// Tier is the plan a caller is on, taken from the X-User-Tier header
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// RateLimiter manages per-user rate limiting for API requests
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	limits map[Tier]rate.Limit

	// Burst size (number of requests that can be made in a burst)
	burstSize int
}

// NewRateLimiter creates a new rate limiter. Non-positive rates fall back to 10 rps.
func NewRateLimiter(freeTierRPS, basicTierRPS, premiumTierRPS int) *RateLimiter {
	orDefault := func(rps int) rate.Limit {
		if rps <= 0 {
			return rate.Limit(10)
		}
		return rate.Limit(rps)
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limits: map[Tier]rate.Limit{
			TierFree:    orDefault(freeTierRPS),
			TierBasic:   orDefault(basicTierRPS),
			TierPremium: orDefault(premiumTierRPS),
		},
		burstSize: 10,
	}
}

// getLimiter returns the limiter for a caller, creating it on first use.
// The tier seen on the first request sticks for the lifetime of the limiter.
func (rl *RateLimiter) getLimiter(key string, tier Tier) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	limit, ok := rl.limits[tier]
	if !ok {
		limit = rl.limits[TierFree]
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(limit, rl.burstSize)
	rl.limiters[key] = limiter

	return limiter
}

// RateLimitMiddleware creates a middleware that enforces rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(UserIDHeader)
			if key == "" {
				key = r.RemoteAddr
			}

			tier := Tier(r.Header.Get("X-User-Tier"))
			if tier == "" {
				tier = TierFree
			}

			limiter := rl.getLimiter(key, tier)
			if !limiter.Allow() {
				respondError(w, http.StatusTooManyRequests, ErrCodeRateLimitExceeded, "Rate limit exceeded. Please try again later.", map[string]interface{}{
					"tier":  tier,
					"limit": float64(limiter.Limit()),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
