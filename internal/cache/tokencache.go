package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
)

// TokenCache is the contract for ephemeral-token caching. The generic type T
// is the token type being cached. Separate from the response Cache so that
// secrets never pass through the pattern-invalidatable response store.
type TokenCache[T any] interface {
	// Get retrieves a token. Returns the token, whether it was found, and
	// any error.
	Get(ctx context.Context, key string) (T, bool, error)

	// Set stores a token.
	Set(ctx context.Context, key string, token T) error

	// Invalidate removes a token.
	Invalidate(ctx context.Context, key string) error
}

// TokenMemory is an in-memory TokenCache backed by otter. The TTL is fixed
// at construction and applies from entry creation, matching the short fixed
// lifetime of upstream-issued tokens.
type TokenMemory[T any] struct {
	cache   *otter.Cache[string, T]
	ttl     time.Duration
	counter *stats.Counter
}

// NewTokenMemory creates a token cache with the specified TTL and size bound.
func NewTokenMemory[T any](ttl time.Duration, maxSize int) *TokenMemory[T] {
	counter := stats.NewCounter()
	cache := otter.Must(&otter.Options[string, T]{
		MaximumSize:      maxSize,
		StatsRecorder:    counter,
		ExpiryCalculator: otter.ExpiryCreating[string, T](ttl),
	})

	return &TokenMemory[T]{
		cache:   cache,
		ttl:     ttl,
		counter: counter,
	}
}

func (m *TokenMemory[T]) Get(ctx context.Context, key string) (T, bool, error) {
	e, ok := m.cache.GetEntry(key)
	if !ok {
		var zero T
		return zero, false, nil
	}

	return e.Value, true, nil
}

func (m *TokenMemory[T]) Set(ctx context.Context, key string, token T) error {
	m.cache.Set(key, token)
	return nil
}

func (m *TokenMemory[T]) Invalidate(ctx context.Context, key string) error {
	m.cache.Invalidate(key)
	return nil
}

// Stats returns the otter hit/miss counters for the token cache, surfaced
// alongside the response cache snapshot by the cache-info tool.
func (m *TokenMemory[T]) Stats() stats.Stats {
	return m.counter.Snapshot()
}
