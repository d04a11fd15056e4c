package ratelimit

import (
	"context"
	"math"
	"strings"
	"time"
)

// State is the rate-limit decision for one request, computed from a persisted
// fixed-window counter.
type State struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time
}

// Limiter counts requests per user over a fixed window.
type Limiter interface {
	Allow(ctx context.Context, userID string) (State, error)
	Close() error
}

// NewLimiter creates a postgres-backed limiter when configured, otherwise
// in-memory.
func NewLimiter(ctx context.Context, databaseURL string, limit int, window time.Duration) (Limiter, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryLimiter(limit, window), nil
	}
	return NewPostgresLimiter(ctx, databaseURL, limit, window)
}

// RetryAfterSeconds computes the Retry-After header value from the window
// reset time, floored to a minimum of one second.
func RetryAfterSeconds(resetTime, now time.Time) int {
	secs := int(math.Ceil(resetTime.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
