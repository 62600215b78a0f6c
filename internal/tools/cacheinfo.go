package tools

import (
	"context"
	"fmt"

	"github.com/hubgate/hubgate/internal/cache"
)

func (r *Registry) registerCacheTool() {
	r.register(&Tool{
		Name:        "cache",
		Description: "Inspect or manage the response cache: stats, info, or clear.",
		Params: []ParamSpec{
			{Name: "action", Type: "string", Description: "One of stats, info, clear; defaults to stats"},
		},
		handler: r.cacheAction,
	})
}

// cacheInfo describes the cache configuration: capacity and the named
// expiry strategies in effect.
type cacheInfo struct {
	Capacity   int               `json:"capacity"`
	Entries    int               `json:"entries"`
	Strategies map[string]string `json:"strategies"`
}

func (r *Registry) cacheAction(ctx context.Context, p Params) Result {
	action := p.StringOr("action", "stats")

	switch action {
	case "stats":
		snap := r.store.Stats()
		return success(
			fmt.Sprintf("Cache: %d entries, %.1f%% hit rate over %d requests",
				snap.Entries, snap.HitRate*100, snap.Requests),
			snap,
		)

	case "info":
		ttls := r.store.TTLs()
		strategies := make(map[string]string, len(cache.Strategies))
		for _, s := range cache.Strategies {
			strategies[string(s)] = ttls.TTL(s).String()
		}
		snap := r.store.Stats()
		return success(
			fmt.Sprintf("Cache holds %d of %d entries", snap.Entries, snap.Capacity),
			cacheInfo{
				Capacity:   snap.Capacity,
				Entries:    snap.Entries,
				Strategies: strategies,
			},
		)

	case "clear":
		removed := r.store.Clear(ctx)
		return success(
			fmt.Sprintf("Cleared %d cache entries", removed),
			map[string]any{"cleared": removed},
		)

	default:
		return failure("cache", nil, fmt.Errorf("unknown cache action %q", action))
	}
}
