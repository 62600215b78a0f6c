package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hubgate/hubgate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(capacity int) config.CacheConfig {
	return config.CacheConfig{
		Capacity:             capacity,
		DefaultTTLSeconds:    300,
		SweepIntervalSeconds: 60,
	}
}

// testClock provides an adjustable time source for expiry tests.
type testClock struct {
	current time.Time
}

func (c *testClock) now() time.Time {
	return c.current
}

func (c *testClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestCache(capacity int) (*Cache, *testClock) {
	clock := &testClock{current: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	c := New(testConfig(capacity))
	c.now = clock.now
	return c, clock
}

func countingFetch(value any, err error) (func(context.Context) (any, error), *int) {
	calls := 0
	return func(context.Context) (any, error) {
		calls++
		if err != nil {
			return nil, err
		}
		return value, nil
	}, &calls
}

func TestGetOrCompute_FetchesOnMiss(t *testing.T) {
	c, _ := newTestCache(10)
	fetch, calls := countingFetch("payload", nil)

	value, err := c.GetOrCompute(context.Background(), "k", ImageMetadata, fetch)

	require.NoError(t, err)
	assert.Equal(t, "payload", value)
	assert.Equal(t, 1, *calls)
}

func TestGetOrCompute_SecondCallHitsCache(t *testing.T) {
	c, _ := newTestCache(10)
	fetch, calls := countingFetch("payload", nil)

	_, err := c.GetOrCompute(context.Background(), "k", ImageMetadata, fetch)
	require.NoError(t, err)

	value, err := c.GetOrCompute(context.Background(), "k", ImageMetadata, fetch)
	require.NoError(t, err)

	assert.Equal(t, "payload", value)
	assert.Equal(t, 1, *calls, "fetch must not run again while the entry is live")
}

func TestGetOrCompute_RefetchesAfterExpiry(t *testing.T) {
	c, clock := newTestCache(10)
	fetch, calls := countingFetch("payload", nil)

	_, err := c.GetOrCompute(context.Background(), "k", Tags, fetch)
	require.NoError(t, err)

	clock.advance(c.TTLs().TTL(Tags) + time.Second)

	_, err = c.GetOrCompute(context.Background(), "k", Tags, fetch)
	require.NoError(t, err)

	assert.Equal(t, 2, *calls)
}

func TestGetOrCompute_StaleFallbackOnFetchFailure(t *testing.T) {
	c, clock := newTestCache(10)

	okFetch, _ := countingFetch("original", nil)
	_, err := c.GetOrCompute(context.Background(), "k", Tags, okFetch)
	require.NoError(t, err)

	clock.advance(c.TTLs().TTL(Tags) + time.Second)

	failFetch, _ := countingFetch(nil, errors.New("upstream unavailable"))
	value, err := c.GetOrCompute(context.Background(), "k", Tags, failFetch)

	require.NoError(t, err, "stale value should be returned instead of the fetch error")
	assert.Equal(t, "original", value)
	assert.Equal(t, uint64(1), c.Stats().StaleReturns)
}

func TestGetOrCompute_FetchFailureWithoutPriorEntry(t *testing.T) {
	c, _ := newTestCache(10)

	failure := errors.New("upstream unavailable")
	failFetch, _ := countingFetch(nil, failure)

	_, err := c.GetOrCompute(context.Background(), "k", Tags, failFetch)

	assert.ErrorIs(t, err, failure)
}

func TestLRUEviction_OldestKeyRemoved(t *testing.T) {
	c, _ := newTestCache(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), i, ImageMetadata)
	}

	// touch k0 and k2 so k1 becomes least recently used
	_, ok := c.Get(ctx, "k0")
	require.True(t, ok)
	_, ok = c.Get(ctx, "k2")
	require.True(t, ok)

	c.Set(ctx, "k3", 3, ImageMetadata)

	assert.False(t, c.Has("k1"), "least recently used key must be evicted")
	assert.True(t, c.Has("k0"))
	assert.True(t, c.Has("k2"))
	assert.True(t, c.Has("k3"))
	assert.Equal(t, 3, c.Len())
}

func TestLRUEviction_UpdateNeverEvicts(t *testing.T) {
	c, _ := newTestCache(2)
	ctx := context.Background()

	c.Set(ctx, "a", 1, ImageMetadata)
	c.Set(ctx, "b", 2, ImageMetadata)
	c.Set(ctx, "a", 3, ImageMetadata)

	assert.True(t, c.Has("a"))
	assert.True(t, c.Has("b"))
	assert.Equal(t, uint64(0), c.Stats().Evictions)
}

func TestGet_ExpiredEntryNotReturned(t *testing.T) {
	c, clock := newTestCache(10)
	ctx := context.Background()

	c.Set(ctx, "k", "payload", Tags)
	clock.advance(c.TTLs().TTL(Tags) + time.Second)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	c, _ := newTestCache(10)
	ctx := context.Background()

	c.Set(ctx, "k", "payload", ImageMetadata)

	assert.True(t, c.Delete(ctx, "k"))
	assert.False(t, c.Delete(ctx, "k"))
	assert.False(t, c.Has("k"))
}

func TestInvalidatePattern(t *testing.T) {
	c, _ := newTestCache(10)
	ctx := context.Background()

	c.Set(ctx, "listTags:namespace=library:repository=nginx", 1, Tags)
	c.Set(ctx, "listTags:namespace=library:repository=redis", 2, Tags)
	c.Set(ctx, "getRepository:namespace=library:repository=nginx", 3, ImageMetadata)

	removed := c.InvalidatePattern(ctx, "listTags:*")

	assert.Equal(t, 2, removed)
	assert.False(t, c.Has("listTags:namespace=library:repository=nginx"))
	assert.True(t, c.Has("getRepository:namespace=library:repository=nginx"))
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(10)
	ctx := context.Background()

	c.Set(ctx, "a", 1, ImageMetadata)
	c.Set(ctx, "b", 2, ImageMetadata)

	assert.Equal(t, 2, c.Clear(ctx))
	assert.Equal(t, 0, c.Len())
}

func TestSweep_RemovesOnlyExpired(t *testing.T) {
	c, clock := newTestCache(10)
	ctx := context.Background()

	c.Set(ctx, "short", 1, Tags)          // 5 minutes
	c.Set(ctx, "long", 2, ImageMetadata)  // 1 hour

	clock.advance(10 * time.Minute)

	removed := c.sweep()

	assert.Equal(t, 1, removed)
	assert.False(t, c.Has("short"))
	assert.True(t, c.Has("long"))
}

func TestPreload_ToleratesIndividualFailures(t *testing.T) {
	c, _ := newTestCache(10)

	good, goodCalls := countingFetch("warm", nil)
	bad, _ := countingFetch(nil, errors.New("unreachable"))

	loaded := c.Preload(context.Background(), []PreloadEntry{
		{Key: "a", Strategy: ImageMetadata, Fetch: bad},
		{Key: "b", Strategy: ImageMetadata, Fetch: good},
	})

	assert.Equal(t, 1, loaded)
	assert.Equal(t, 1, *goodCalls)
	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))
}

func TestPreload_SkipsLiveEntries(t *testing.T) {
	c, _ := newTestCache(10)
	ctx := context.Background()

	c.Set(ctx, "a", "existing", ImageMetadata)

	fetch, calls := countingFetch("fresh", nil)
	loaded := c.Preload(ctx, []PreloadEntry{{Key: "a", Strategy: ImageMetadata, Fetch: fetch}})

	assert.Equal(t, 0, loaded)
	assert.Equal(t, 0, *calls)
}

func TestStats(t *testing.T) {
	c, _ := newTestCache(10)
	ctx := context.Background()

	fetch, _ := countingFetch("payload", nil)
	_, err := c.GetOrCompute(ctx, "k", ImageMetadata, fetch) // miss
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, "k", ImageMetadata, fetch) // hit
	require.NoError(t, err)

	s := c.Stats()

	assert.Equal(t, uint64(2), s.Requests)
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.InDelta(t, 0.5, s.HitRate, 0.001)
	assert.Equal(t, 1, s.Entries)
	assert.Greater(t, s.SizeBytes, int64(0))
	assert.Equal(t, 10, s.Capacity)
}

func TestStartStop(t *testing.T) {
	c := New(config.CacheConfig{
		Capacity:             10,
		DefaultTTLSeconds:    300,
		SweepIntervalSeconds: 1,
	})

	c.Start(context.Background())
	c.Stop()

	// Stop is idempotent and Start after Stop is a no-op
	c.Stop()
	c.Start(context.Background())
}
