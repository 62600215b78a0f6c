package cache

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"time"

	"github.com/hubgate/hubgate/internal/config"
	"github.com/rs/zerolog/log"
)

// perEntryOverhead approximates the bookkeeping cost of a single entry
// (struct, map bucket, access stamp) for the memory footprint estimate.
const perEntryOverhead = 112

// entry is a single cached value. Owned exclusively by the Cache: created on
// a miss after a successful fetch, touched on every hit, removed on expiry
// or eviction.
type entry struct {
	value     any
	createdAt time.Time
	ttl       time.Duration
	hits      uint64
	stamp     uint64
	size      int
}

func (e *entry) live(now time.Time) bool {
	return now.Before(e.createdAt.Add(e.ttl))
}

// Cache is a bounded in-memory store with per-entry TTL and strict LRU
// eviction. All state is guarded by a single mutex; the background sweeper
// takes the same lock. The fetch function passed to GetOrCompute runs
// outside the lock, so two concurrent requests for the same cold key may
// both fetch. The last store wins, which is acceptable for idempotent
// upstream reads and keeps the hot path free of per-key locking.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	capacity int
	ttls     TTLTable

	// monotonic access-order ledger for LRU ordering
	stamp uint64

	requests     uint64
	hits         uint64
	misses       uint64
	evictions    uint64
	staleReturns uint64

	sweepInterval time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
	running       bool
	stopped       bool

	now func() time.Time
}

// New constructs a cache from configuration. The instance is inert until
// Start is called; get/set operations work without the sweeper, relying on
// lazy expiry alone.
func New(cfg config.CacheConfig) *Cache {
	sweep := time.Duration(cfg.SweepIntervalSeconds) * time.Second
	if sweep <= 0 {
		sweep = time.Minute
	}

	return &Cache{
		entries:       make(map[string]*entry),
		capacity:      cfg.Capacity,
		ttls:          NewTTLTable(cfg),
		sweepInterval: sweep,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		now:           time.Now,
	}
}

// TTLs exposes the strategy table so callers can resolve durations without
// reaching into configuration again.
func (c *Cache) TTLs() TTLTable {
	return c.ttls
}

// GetOrCompute returns the cached value for key if a live entry exists,
// otherwise invokes fetch and stores the result under the strategy's TTL.
// If fetch fails and an expired entry is still present, its stale value is
// returned instead of the error: slightly stale data during an upstream
// outage beats a hard failure.
func (c *Cache) GetOrCompute(ctx context.Context, key string, strategy Strategy, fetch func(context.Context) (any, error)) (any, error) {
	return c.GetOrComputeTTL(ctx, key, c.ttls.TTL(strategy), fetch)
}

// GetOrComputeTTL is GetOrCompute with an explicit duration instead of a
// named strategy.
func (c *Cache) GetOrComputeTTL(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (any, error)) (any, error) {
	start := time.Now()

	c.mu.Lock()
	c.requests++
	if e, ok := c.entries[key]; ok && e.live(c.now()) {
		c.hits++
		e.hits++
		e.stamp = c.nextStamp()
		value := e.value
		c.mu.Unlock()

		recordOperation(ctx, "get", "hit")
		recordDuration(ctx, "get", time.Since(start))
		return value, nil
	}
	c.misses++
	c.mu.Unlock()

	recordOperation(ctx, "get", "miss")

	// Fetch runs unlocked: holding the cache mutex across an upstream call
	// would serialize every request behind the slowest fetch.
	value, err := fetch(ctx)
	if err != nil {
		c.mu.Lock()
		e, ok := c.entries[key]
		if ok {
			c.staleReturns++
			e.hits++
			e.stamp = c.nextStamp()
			stale := e.value
			c.mu.Unlock()

			log.Debug().Str("key", key).Err(err).
				Msg("cache: fetch failed, returning stale entry")
			recordOperation(ctx, "get", "stale")
			return stale, nil
		}
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	c.store(key, value, ttl)
	c.mu.Unlock()

	recordDuration(ctx, "get", time.Since(start))
	return value, nil
}

// Set stores a value under the strategy's TTL, evicting the least recently
// used entry if a new key would exceed capacity.
func (c *Cache) Set(ctx context.Context, key string, value any, strategy Strategy) {
	c.SetTTL(ctx, key, value, c.ttls.TTL(strategy))
}

// SetTTL stores a value with an explicit TTL.
func (c *Cache) SetTTL(ctx context.Context, key string, value any, ttl time.Duration) {
	c.mu.Lock()
	c.store(key, value, ttl)
	c.mu.Unlock()

	recordOperation(ctx, "set", "success")
}

// Get returns the live value for key. Expired entries are not returned: an
// expired value is only ever surfaced through the stale-fallback path of
// GetOrCompute.
func (c *Cache) Get(ctx context.Context, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests++
	e, ok := c.entries[key]
	if !ok || !e.live(c.now()) {
		c.misses++
		return nil, false
	}

	c.hits++
	e.hits++
	e.stamp = c.nextStamp()
	return e.value, true
}

// Has reports whether a live entry exists for key without counting a
// request or touching the access order.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return ok && e.live(c.now())
}

// Delete removes the entry for key, reporting whether one existed.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	c.mu.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	recordOperation(ctx, "delete", "success")
	return ok
}

// InvalidatePattern removes every entry whose key matches the glob pattern,
// returning the number removed. Keys never contain '/', so path.Match's '*'
// spans an entire key.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if ok, err := path.Match(pattern, key); err == nil && ok {
			delete(c.entries, key)
			removed++
		}
	}

	if removed > 0 {
		log.Debug().Str("pattern", pattern).Int("removed", removed).
			Msg("cache: pattern invalidation")
	}

	return removed
}

// Clear removes every entry, returning the number removed. Counters are
// retained: clearing the store is not a statistics reset.
func (c *Cache) Clear(ctx context.Context) int {
	c.mu.Lock()
	removed := len(c.entries)
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	recordOperation(ctx, "clear", "success")
	return removed
}

// Len returns the current entry count, expired entries included until the
// next sweep.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// PreloadEntry names one warming target for Preload.
type PreloadEntry struct {
	Key      string
	Strategy Strategy
	Fetch    func(context.Context) (any, error)
}

// Preload warms the cache with the given entries, skipping keys that are
// already live. Individual failures are logged and do not abort the rest;
// the return value is the number of entries actually loaded.
func (c *Cache) Preload(ctx context.Context, entries []PreloadEntry) int {
	loaded := 0
	for _, p := range entries {
		if c.Has(p.Key) {
			continue
		}

		value, err := p.Fetch(ctx)
		if err != nil {
			log.Warn().Str("key", p.Key).Err(err).
				Msg("cache: preload fetch failed, continuing")
			continue
		}

		c.Set(ctx, p.Key, value, p.Strategy)
		loaded++
	}

	return loaded
}

// store inserts or replaces an entry. Caller holds the lock. Eviction only
// triggers when a new key is added at capacity: replacing an existing key
// can never overflow the store.
func (c *Cache) store(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttls.Default()
	}

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictLRU()
	}

	c.entries[key] = &entry{
		value:     value,
		createdAt: c.now(),
		ttl:       ttl,
		stamp:     c.nextStamp(),
		size:      estimateSize(key, value),
	}
}

// evictLRU removes the entry with the oldest access stamp. Caller holds the
// lock. With capacity > 0 there is always a victim, so eviction cannot fail.
func (c *Cache) evictLRU() {
	var victim string
	var oldest uint64
	first := true

	for key, e := range c.entries {
		if first || e.stamp < oldest {
			victim = key
			oldest = e.stamp
			first = false
		}
	}

	if !first {
		delete(c.entries, victim)
		c.evictions++
		log.Debug().Str("key", victim).Msg("cache: evicted least recently used entry")
	}
}

func (c *Cache) nextStamp() uint64 {
	c.stamp++
	return c.stamp
}

// Start launches the background sweep that removes expired entries on a
// fixed interval, bounding growth from keys written once and never re-read.
func (c *Cache) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running || c.stopped {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go c.run(ctx)
}

// Stop terminates the background sweep and waits for it to exit.
func (c *Cache) Stop() {
	c.mu.Lock()
	if !c.running || c.stopped {
		c.stopped = true
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.stopCh)
	<-c.doneCh
}

func (c *Cache) run(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes all expired entries. Also exercised directly by tests.
func (c *Cache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !e.live(now) {
			delete(c.entries, key)
			removed++
		}
	}

	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("cache: swept expired entries")
	}

	return removed
}

// Snapshot reports cache effectiveness counters and an estimate of the
// memory held by the current entries.
type Snapshot struct {
	Requests     uint64  `json:"requests"`
	Hits         uint64  `json:"hits"`
	Misses       uint64  `json:"misses"`
	HitRate      float64 `json:"hitRate"`
	StaleReturns uint64  `json:"staleReturns"`
	Evictions    uint64  `json:"evictions"`
	Entries      int     `json:"entries"`
	SizeBytes    int64   `json:"sizeBytes"`
	Capacity     int     `json:"capacity"`
}

// Stats returns a point-in-time snapshot of the cache counters.
func (c *Cache) Stats() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var size int64
	for _, e := range c.entries {
		size += int64(e.size)
	}

	s := Snapshot{
		Requests:     c.requests,
		Hits:         c.hits,
		Misses:       c.misses,
		StaleReturns: c.staleReturns,
		Evictions:    c.evictions,
		Entries:      len(c.entries),
		SizeBytes:    size,
		Capacity:     c.capacity,
	}
	if c.requests > 0 {
		s.HitRate = float64(c.hits) / float64(c.requests)
	}

	return s
}

// estimateSize approximates the memory held by one entry: serialized key and
// value plus fixed overhead. Values that fail to serialize contribute only
// the overhead, which keeps the estimate cheap and total-ordering stable.
func estimateSize(key string, value any) int {
	size := len(key) + perEntryOverhead
	if encoded, err := json.Marshal(value); err == nil {
		size += len(encoded)
	}
	return size
}
