package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get and Take when a key is absent or expired.
var ErrNotFound = errors.New("key not found")

// Store defines the key/value-with-expiry contract shared by all backends.
// Sessions and rate-limit counters are the only tenants of this store, so
// the contract is deliberately small.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// Put creates or replaces a value. The value becomes unreadable once
	// ttl elapses, whether or not the backend has native expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value if present and unexpired, else ErrNotFound.
	// Expired data is never returned.
	Get(ctx context.Context, key string) ([]byte, error)

	// Take atomically reads and deletes a value. Of N concurrent callers
	// on the same key, exactly one receives the value; the rest receive
	// ErrNotFound. Session confirmation relies on this to be single-use.
	Take(ctx context.Context, key string) ([]byte, error)

	// Increment atomically increments the counter at key, initializing it
	// to zero with the given ttl if absent, and returns the new count.
	// Concurrent increments must not be lost.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Close releases backend resources.
	Close() error
}
