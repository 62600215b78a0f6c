package cache

import (
	"time"

	"github.com/hubgate/hubgate/internal/config"
)

// Strategy names a TTL class for cached data. Call sites declare the
// volatility of what they're caching ("this is image metadata") and the
// table centralizes the durations so they can be tuned in one place.
type Strategy string

const (
	// ImageMetadata covers repository detail documents, which change rarely.
	ImageMetadata Strategy = "imageMetadata"

	// Tags covers tag listings and tag detail, updated on every push.
	Tags Strategy = "tags"

	// Manifest covers manifest documents for a fixed tag. A manifest digest
	// for a given tag is essentially immutable in practice.
	Manifest Strategy = "manifest"

	// SearchResults covers search listings, which shift as repositories are
	// published and reindexed.
	SearchResults Strategy = "searchResults"

	// Vulnerabilities covers scan reports, refreshed by upstream scanners.
	Vulnerabilities Strategy = "vulnerabilities"

	// Stats covers pull/star counters, which move constantly but whose
	// precision doesn't matter minute to minute.
	Stats Strategy = "stats"

	// Dockerfile covers reconstructed build instructions for a fixed tag.
	Dockerfile Strategy = "dockerfile"

	// BearerTokens covers ephemeral upstream tokens. Upstream issues these
	// with a ~5 minute lifetime; the strategy stays below that so a cached
	// token is never presented after expiry.
	BearerTokens Strategy = "bearerTokens"
)

// Strategies lists every named strategy, for reporting.
var Strategies = []Strategy{
	ImageMetadata, Tags, Manifest, SearchResults,
	Vulnerabilities, Stats, Dockerfile, BearerTokens,
}

// TTLTable maps each strategy to its duration. Fixed once constructed.
type TTLTable struct {
	durations  map[Strategy]time.Duration
	defaultTTL time.Duration
}

var builtinDurations = map[Strategy]time.Duration{
	ImageMetadata:   time.Hour,
	Tags:            5 * time.Minute,
	Manifest:        time.Hour,
	SearchResults:   15 * time.Minute,
	Vulnerabilities: 30 * time.Minute,
	Stats:           10 * time.Minute,
	Dockerfile:      time.Hour,
	BearerTokens:    4 * time.Minute,
}

// NewTTLTable builds the strategy table from configuration, applying any
// per-strategy overrides over the built-in durations.
func NewTTLTable(cfg config.CacheConfig) TTLTable {
	durations := make(map[Strategy]time.Duration, len(builtinDurations))
	for s, d := range builtinDurations {
		durations[s] = d
	}

	override := func(s Strategy, seconds int) {
		if seconds > 0 {
			durations[s] = time.Duration(seconds) * time.Second
		}
	}
	override(ImageMetadata, cfg.ImageMetadataTTLSeconds)
	override(Tags, cfg.TagsTTLSeconds)
	override(Manifest, cfg.ManifestTTLSeconds)
	override(SearchResults, cfg.SearchResultsTTLSeconds)
	override(Vulnerabilities, cfg.VulnerabilityTTLSeconds)
	override(Stats, cfg.StatsTTLSeconds)

	return TTLTable{
		durations:  durations,
		defaultTTL: time.Duration(cfg.DefaultTTLSeconds) * time.Second,
	}
}

// TTL resolves a strategy to its duration. Unknown strategies resolve to the
// configured default rather than failing: a bad call site degrades to a
// shorter cache life, not an error.
func (t TTLTable) TTL(s Strategy) time.Duration {
	if d, ok := t.durations[s]; ok {
		return d
	}
	return t.defaultTTL
}

// Default returns the duration used when no strategy is named.
func (t TTLTable) Default() time.Duration {
	return t.defaultTTL
}
