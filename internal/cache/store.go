package cache

import (
	"context"
	"time"
)

// Store is the shared key/value cache used for fixed-window rate counters.
type Store interface {
	// IncrementWithTTL increments the counter for key. The window starts on the
	// first increment and is not extended by later ones. It returns the new count
	// and the time remaining in the window.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}
