package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Cache   CacheConfig
	Hub     HubConfig
	Observe ObserveConfig
	Server  ServerConfig
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=8080"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`

	OutgoingHTTPMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
}

// HubConfig specifies the Docker Hub credential and endpoint configuration.
type HubConfig struct {
	// Username is the Docker Hub account name the access token belongs to.
	// Required when AccessToken is set: the metadata API login and the
	// registry token exchange both authenticate as this user.
	Username string `env:"HUB_USERNAME"`

	// AccessToken is a long-lived personal access token. Optional: when
	// absent, every operation is restricted to public resources and the
	// authenticated retry path is disabled.
	AccessToken string `env:"HUB_ACCESS_TOKEN"`

	APIURL      string `env:"HUB_API_URL, default=https://hub.docker.com"`
	RegistryURL string `env:"HUB_REGISTRY_URL, default=https://registry-1.docker.io"`
	AuthURL     string `env:"HUB_AUTH_URL, default=https://auth.docker.io"`

	// AuthService is the service parameter sent on registry token exchange.
	AuthService string `env:"HUB_AUTH_SERVICE, default=registry.docker.io"`
}

// CacheConfig specifies the response cache configuration.
type CacheConfig struct {
	// Capacity is the maximum number of entries held before LRU eviction.
	Capacity int `env:"CACHE_CAPACITY, default=1000"`

	// DefaultTTLSeconds applies to entries stored without a named strategy.
	DefaultTTLSeconds int `env:"CACHE_DEFAULT_TTL_SECS, default=300"`

	// SweepIntervalSeconds is the period of the background expiry sweep.
	SweepIntervalSeconds int `env:"CACHE_SWEEP_INTERVAL_SECS, default=60"`

	// PreloadImages lists image references whose metadata is warmed into
	// the cache at startup.
	PreloadImages []string `env:"CACHE_PRELOAD_IMAGES"`

	// Per-strategy TTL overrides, in seconds. Zero keeps the built-in
	// duration for that strategy.
	ImageMetadataTTLSeconds int `env:"CACHE_TTL_IMAGE_METADATA_SECS"`
	TagsTTLSeconds          int `env:"CACHE_TTL_TAGS_SECS"`
	ManifestTTLSeconds      int `env:"CACHE_TTL_MANIFEST_SECS"`
	SearchResultsTTLSeconds int `env:"CACHE_TTL_SEARCH_RESULTS_SECS"`
	VulnerabilityTTLSeconds int `env:"CACHE_TTL_VULNERABILITIES_SECS"`
	StatsTTLSeconds         int `env:"CACHE_TTL_STATS_SECS"`
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=hubgate"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	if err := cfg.Cache.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid cache configuration: %w", err)
	}

	if err := cfg.Hub.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid hub configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the cache configuration is usable.
func (c *CacheConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("CACHE_CAPACITY must be greater than zero")
	}

	if c.DefaultTTLSeconds <= 0 {
		return fmt.Errorf("CACHE_DEFAULT_TTL_SECS must be greater than zero")
	}

	return nil
}

// Validate checks that the credential configuration is coherent. A token
// without a username cannot be exchanged by either upstream API.
func (c *HubConfig) Validate() error {
	if c.AccessToken != "" && c.Username == "" {
		return fmt.Errorf("HUB_USERNAME required when HUB_ACCESS_TOKEN is set")
	}

	return nil
}
