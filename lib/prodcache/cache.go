// Package prodcache is a TTL-keyed store for normalized records and
// comparison sets. It is advisory only: callers must tolerate a miss exactly
// like a cold fetch.
package prodcache

import (
	"context"
	"sync"
	"time"

	"pricescout-backend/lib/chrono"
	"pricescout-backend/lib/textutil"
)

// Store is the cache contract. Keys are normalized before use, expiry is
// checked lazily on read, and Put enforces the store's size bound by
// evicting the entries with the oldest cachedAt first.
type Store[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Put(ctx context.Context, key string, value T, ttl time.Duration) error
	SweepExpired(ctx context.Context) (int, error)
}

type memoryEntry[T any] struct {
	value    T
	cachedAt time.Time
	ttl      time.Duration
}

// Memory is the in-process Store implementation. Safe for concurrent use.
type Memory[T any] struct {
	mu         sync.Mutex
	clock      chrono.TimeAPI
	maxEntries int
	entries    map[string]memoryEntry[T]
}

func NewMemory[T any](clock chrono.TimeAPI, maxEntries int) *Memory[T] {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	return &Memory[T]{
		clock:      clock,
		maxEntries: maxEntries,
		entries:    map[string]memoryEntry[T]{},
	}
}

func (m *Memory[T]) Get(_ context.Context, key string) (T, bool, error) {
	var zero T
	key = textutil.NormalizeKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return zero, false, nil
	}
	if m.clock.Now().Sub(entry.cachedAt) > entry.ttl {
		// lazy expiry: stale entries are removed on read
		delete(m.entries, key)
		return zero, false, nil
	}
	return entry.value, true, nil
}

func (m *Memory[T]) Put(_ context.Context, key string, value T, ttl time.Duration) error {
	key = textutil.NormalizeKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry[T]{
		value:    value,
		cachedAt: m.clock.Now(),
		ttl:      ttl,
	}

	for len(m.entries) > m.maxEntries {
		oldestKey := ""
		var oldestAt time.Time
		for k, e := range m.entries {
			if oldestKey == "" || e.cachedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.cachedAt
			}
		}
		delete(m.entries, oldestKey)
	}
	return nil
}

func (m *Memory[T]) SweepExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	for k, e := range m.entries {
		if now.Sub(e.cachedAt) > e.ttl {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of entries currently held, expired or not.
func (m *Memory[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
