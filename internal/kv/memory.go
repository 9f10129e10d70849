package kv

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store implementation with TTL support.
// It backs tests and local development when Redis is not available.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source, for tests that need to expire keys.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// live returns the entry at key if present and not expired, pruning it
// otherwise. Callers must hold mu.
func (s *MemoryStore) live(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(s.now()) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		s.entries[key] = memoryEntry{value: "1"}
		return 1, nil
	}

	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("kv: value at %q is not an integer", key)
	}

	n++
	e.value = strconv.FormatInt(n, 10)
	s.entries[key] = e
	return n, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return nil
	}
	e.expiresAt = s.now().Add(ttl)
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return -2 * time.Second, nil
	}
	if e.expiresAt.IsZero() {
		return -1 * time.Second, nil
	}
	return e.expiresAt.Sub(s.now()), nil
}

func (s *MemoryStore) MGet(_ context.Context, keys ...string) ([]*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make([]*string, len(keys))
	for i, key := range keys {
		if e, ok := s.live(key); ok {
			v := e.value
			values[i] = &v
		}
	}
	return values, nil
}
