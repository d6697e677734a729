package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces calls to a model backend
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows requestsPerMinute calls per minute with a burst of one tenth of that,
// at least one. A nil limiter never blocks.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), burst),
	}
}

// Wait blocks until a call is allowed or ctx is done
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return newBackendError("limiter", ErrorCategoryRateLimit, err, "")
	}
	return nil
}
