// Package idgen produces unique identifiers for persisted entities.
// Implementations should be safe for concurrent use.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator generates unique identifiers.
type Generator interface {
	Generate() (uuid.UUID, error)
}

// v7Gen produces UUIDv7 values, which sort by creation time and keep
// b-tree inserts local.
type v7Gen struct {
	maxRetries int
}

type Option func(*v7Gen)

// WithRetries sets how many times to retry uuid.NewV7() after the initial
// attempt. Defaults to 1. Set to 0 to disable retries.
func WithRetries(n int) Option {
	return func(g *v7Gen) {
		if n >= 0 {
			g.maxRetries = n
		}
	}
}

// NewV7 returns a Generator that produces UUID v7 values.
func NewV7(opts ...Option) Generator {
	g := &v7Gen{maxRetries: 1}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *v7Gen) Generate() (uuid.UUID, error) {
	var last error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		id, err := uuid.NewV7()
		if err == nil {
			return id, nil
		}
		last = err
	}
	return uuid.Nil, fmt.Errorf("uuid v7 generation failed after %d attempts: %w", g.maxRetries+1, last)
}
