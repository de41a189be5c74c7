// Package cache provides the short-lived key-value capability used for
// throttling, sessions, WebAuthn challenges and OAuth state.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache: key not found")

// Store is implemented by RedisStore in production and MemoryStore in tests.
// Every method is atomic with respect to the key it touches.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Pull returns the value and deletes the key in one step, so two
	// concurrent callers can never both observe it.
	Pull(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// Increment adds one to the counter at key. The window starts with the
	// first hit and is not extended by later ones. It returns the new count
	// and the time left in the window.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
