// Package kv abstracts the shared key-value store consumed by the link cache,
// the rate limiter and click analytics. Callers are expected to treat every
// failure as advisory: a cache read error is a miss, a limiter error is an
// allow. The store never sits on the authoritative path.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Store is a string-keyed store with expiry and counter support.
type Store interface {
	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes value at key. A non-positive ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes the key unconditionally.
	Del(ctx context.Context, key string) error

	// Incr atomically increments the integer at key, creating it at 1.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets a ttl on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining ttl of a key. Non-positive values mean the
	// key is absent or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// MGet returns the values for keys in order; absent keys yield nil.
	MGet(ctx context.Context, keys ...string) ([]*string, error)
}
