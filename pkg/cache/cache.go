// Package cache provides byte-oriented caching backends for registry responses.
//
// # Backends
//
//   - [FileCache]: one JSON file per entry, for CLI use (~/.cache/winch/)
//   - [RedisCache]: shared cache for teams or CI runners pointing at one Redis
//   - [NullCache]: never stores anything (--no-cache, tests)
//
// All backends implement [Cache]. Keys are arbitrary strings; use [HTTPKey]
// to namespace registry responses.
//
// # Retry
//
// The package also carries the retry helpers used by registry clients:
// wrap transient failures with [Retryable] and execute them through [Retry].
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte payloads with a per-entry TTL.
// A TTL of zero means the entry never expires.
type Cache interface {
	// Get returns the cached bytes and true on a hit.
	// Misses and expired entries return (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}
