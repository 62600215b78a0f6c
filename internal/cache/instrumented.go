package cache

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedTokenCache wraps a TokenCache with metrics instrumentation,
// recording each operation under the shared cache instruments with a
// distinguishing cache.type attribute.
type InstrumentedTokenCache[T any] struct {
	wrapped   TokenCache[T]
	cacheType string
}

// NewInstrumentedTokenCache creates an instrumented token cache wrapper.
func NewInstrumentedTokenCache[T any](cache TokenCache[T], cacheType string) *InstrumentedTokenCache[T] {
	initMetrics()
	return &InstrumentedTokenCache[T]{
		wrapped:   cache,
		cacheType: cacheType,
	}
}

func (i *InstrumentedTokenCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	start := time.Now()

	value, found, err := i.wrapped.Get(ctx, key)

	duration := time.Since(start)
	status := "miss"
	if err != nil {
		status = "error"
	} else if found {
		status = "hit"
	}
	i.record(ctx, "get", status, duration)

	return value, found, err
}

func (i *InstrumentedTokenCache[T]) Set(ctx context.Context, key string, value T) error {
	start := time.Now()

	err := i.wrapped.Set(ctx, key, value)

	status := "success"
	if err != nil {
		status = "error"
	}
	i.record(ctx, "set", status, time.Since(start))

	return err
}

func (i *InstrumentedTokenCache[T]) Invalidate(ctx context.Context, key string) error {
	start := time.Now()

	err := i.wrapped.Invalidate(ctx, key)

	status := "success"
	if err != nil {
		status = "error"
	}
	i.record(ctx, "invalidate", status, time.Since(start))

	return err
}

func (i *InstrumentedTokenCache[T]) record(ctx context.Context, operation, status string, duration time.Duration) {
	if cacheOperations != nil {
		cacheOperations.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("cache.type", i.cacheType),
				attribute.String("cache.operation", operation),
				attribute.String("cache.status", status),
			),
		)
	}
	if cacheDuration != nil {
		cacheDuration.Record(ctx, duration.Seconds(),
			metric.WithAttributes(
				attribute.String("cache.type", i.cacheType),
				attribute.String("cache.operation", operation),
			),
		)
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("cache.type", i.cacheType),
		attribute.String("cache."+operation+".status", status),
		attribute.Float64("cache."+operation+".duration", duration.Seconds()),
	)
}
