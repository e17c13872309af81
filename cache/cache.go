// Package cache provides the response cache used by the orchestrator: a
// string-keyed byte store with per-entry TTL. The in-process implementation
// is the default; a Redis-backed implementation allows sharing entries
// across processes.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss indicates the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a key-value store with per-entry expiration. Implementations
// must be safe for concurrent use. Values are opaque bytes; callers handle
// serialization so in-process and networked backends behave identically.
type Cache interface {
	// Get returns the value for key, or ErrCacheMiss if absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A non-positive ttl falls back to the
	// implementation's default TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Has reports whether key is present and unexpired.
	Has(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error
}
