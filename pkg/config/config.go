// Package config loads the rebac engine's bootstrap configuration from
// environment variables, in the spirit of the twelve-factor app: every
// setting has a safe development default and can be overridden without a
// config file.
package config

import (
	"os"
	"strconv"
)

// Config holds the settings cmd/rebac needs to construct an authz.Engine
// and the storage adapter backing it.
type Config struct {
	// ListenAddr is read from LISTEN_ADDR; no cmd/rebac subcommand uses it.
	ListenAddr string
	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string

	// StorageBackend selects the store.Adapter implementation: "memory",
	// "sqlite", "postgres", or "redis".
	StorageBackend string
	// StorageDSN is the backend-specific connection string. Ignored for
	// "memory".
	StorageDSN string

	// SchemaPath points at the YAML schema bundle to load at bootstrap.
	SchemaPath string

	// CheckDepth bounds Check's recursive traversal depth.
	CheckDepth int
	// FieldSeparator splits an object id into base and field for the
	// field-fallback check path.
	FieldSeparator string
	// ThrowOnMaxDepth surfaces a *authz.MaxDepthExceededError instead of
	// silently denying once CheckDepth is exceeded.
	ThrowOnMaxDepth bool

	// OTLPEndpoint is the collector address for traces and metrics.
	OTLPEndpoint string
	// OTELEnabled turns on the OpenTelemetry provider wrapping Check and
	// ListAccessibleObjects. Off by default so a bare CLI invocation never
	// blocks trying to reach a collector that isn't there.
	OTELEnabled bool

	// RateLimitPerSecond and RateLimitBurst configure the storage-level
	// token bucket. RateLimitPerSecond <= 0 disables rate limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int

	// CircuitBreakerThreshold is the number of consecutive storage
	// failures before the breaker opens. <= 0 disables the breaker.
	CircuitBreakerThreshold int
	// CircuitBreakerResetSeconds is how long the breaker stays open
	// before probing the backend again.
	CircuitBreakerResetSeconds int
}

// Load reads configuration from environment variables, falling back to
// development-friendly defaults for anything unset.
func Load() *Config {
	return &Config{
		ListenAddr:     envOr("LISTEN_ADDR", ":8080"),
		LogLevel:       envOr("LOG_LEVEL", "INFO"),
		StorageBackend: envOr("STORAGE_BACKEND", "memory"),
		StorageDSN:     envOr("STORAGE_DSN", ""),
		SchemaPath:     envOr("SCHEMA_PATH", "schema.yaml"),

		CheckDepth:      envOrInt("CHECK_DEPTH", 10),
		FieldSeparator:  envOr("FIELD_SEPARATOR", "#"),
		ThrowOnMaxDepth: envOrBool("THROW_ON_MAX_DEPTH", false),

		OTLPEndpoint: envOr("OTLP_ENDPOINT", "localhost:4317"),
		OTELEnabled:  envOrBool("OTEL_ENABLED", false),

		RateLimitPerSecond: envOrFloat("RATE_LIMIT_PER_SECOND", 0),
		RateLimitBurst:     envOrInt("RATE_LIMIT_BURST", 0),

		CircuitBreakerThreshold:    envOrInt("CIRCUIT_BREAKER_THRESHOLD", 0),
		CircuitBreakerResetSeconds: envOrInt("CIRCUIT_BREAKER_RESET_SECONDS", 30),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envOrFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
