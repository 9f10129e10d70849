// Package linkcache provides the cache-aside layer for link resolution.
// Records are denormalized link projections stored as JSON under
// link:{domainId}:{slug}; a sentinel value under the same key marks slugs
// known to be absent, with a much shorter TTL.
package linkcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sundayezeilo/linkhub/internal/kv"
)

const (
	// RecordTTL is how long a positive cache entry lives.
	RecordTTL = 24 * time.Hour

	// MissingTTL is how long a negative-cache marker lives.
	MissingTTL = 60 * time.Second

	missingSentinel = "__missing__"
)

// Record is the denormalized link projection kept in the cache.
// Field names match the stored JSON wire format.
type Record struct {
	LinkID         string  `json:"linkId"`
	DestinationURL string  `json:"destinationUrl"`
	RedirectType   int     `json:"redirectType"`
	Disabled       bool    `json:"disabled"`
	ExpiresAt      *string `json:"expiresAt"` // ISO-8601 or null
}

// Lookup classifies the outcome of a cache read.
type Lookup int

const (
	// Miss means no usable entry: absent key, undecodable payload, or a
	// store failure. Callers fall through to the store of record.
	Miss Lookup = iota

	// Missing means the negative-cache marker is present; the slug was
	// recently resolved as not-found and the store must not be consulted.
	Missing

	// Hit means a decoded Record is available.
	Hit
)

// Cache reads and writes cached link records against a key-value store.
type Cache struct {
	store kv.Store
}

func New(store kv.Store) *Cache {
	return &Cache{store: store}
}

// Key builds the cache key for a (domain, slug) pair.
func Key(domainID, slug string) string {
	return fmt.Sprintf("link:%s:%s", domainID, slug)
}

// Get looks up the cached entry for (domainID, slug). Store failures and
// undecodable payloads both degrade to Miss; Get never returns an error.
func (c *Cache) Get(ctx context.Context, domainID, slug string) (Record, Lookup) {
	value, err := c.store.Get(ctx, Key(domainID, slug))
	if err != nil {
		return Record{}, Miss
	}

	if value == missingSentinel {
		return Record{}, Missing
	}

	var rec Record
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		// Corrupt entries are treated as absent rather than surfaced;
		// the store of record repopulates the key on the next miss.
		return Record{}, Miss
	}

	return rec, Hit
}

// Set writes a positive record with the standard TTL.
func (c *Cache) Set(ctx context.Context, domainID, slug string, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode cached link: %w", err)
	}
	return c.store.Set(ctx, Key(domainID, slug), string(payload), RecordTTL)
}

// SetMissing writes the negative-cache marker with its short TTL.
func (c *Cache) SetMissing(ctx context.Context, domainID, slug string) error {
	return c.store.Set(ctx, Key(domainID, slug), missingSentinel, MissingTTL)
}

// Invalidate deletes the key unconditionally. Update flows invalidate before
// repopulating so a failed follow-up Set cannot leave a stale positive record.
func (c *Cache) Invalidate(ctx context.Context, domainID, slug string) error {
	return c.store.Del(ctx, Key(domainID, slug))
}
