package observe

import (
	"context"
	"net/http"
	"net/http/httptrace"

	"github.com/hubgate/hubgate/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPTransport wraps a round tripper with outgoing-request telemetry.
// Upstream calls to the Hub APIs are spanned and, when connection tracing
// is enabled, annotated with DNS/connect/TLS timing events.
func HTTPTransport(base http.RoundTripper, cfg config.ObserveConfig) http.RoundTripper {
	if !cfg.Enabled || !cfg.HTTPTransportEnabled {
		return base
	}

	options := []otelhttp.Option{}

	if cfg.HTTPConnectionTraceEnabled {
		options = append(options,
			otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
				return otelhttptrace.NewClientTrace(ctx)
			}),
		)
	}

	return otelhttp.NewTransport(base, options...)
}
