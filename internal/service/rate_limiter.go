package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prperemyshlev/authgate/internal/cache"
)

// RateLimiter counts attempts per key in fixed windows. The window opens on
// the first hit and the counter disappears when it closes.
type RateLimiter struct {
	store cache.Store
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(store cache.Store) *RateLimiter {
	return &RateLimiter{store: store}
}

func (r *RateLimiter) key(key string) string {
	return fmt.Sprintf("throttle:%s", key)
}

// Clear forgets all attempts for key
func (r *RateLimiter) Clear(ctx context.Context, key string) error {
	if err := r.store.Delete(ctx, r.key(key)); err != nil {
		return fmt.Errorf("failed to clear attempts: %w", err)
	}
	return nil
}

// RateLimitResult describes a single Attempt
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Attempt hits key and reports whether the request fits in the limit. The
// increment and the check are one atomic step, so concurrent requests cannot
// both take the last slot.
func (r *RateLimiter) Attempt(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	count, ttl, err := r.store.Increment(ctx, r.key(key), window)
	if err != nil {
		return nil, fmt.Errorf("failed to record attempt: %w", err)
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	result := &RateLimitResult{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
	}
	if !result.Allowed {
		result.RetryAfter = ttl
	}

	return result, nil
}
