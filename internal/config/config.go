package config

import (
	"fmt"
	"time"

	"github.com/varenko/inquest/internal/signature"
)

// Config holds all configuration for the application.
type Config struct {
	// LogLevel is the default logging level (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// Engine tunes pattern evaluation
	Engine EngineConfig `yaml:"engine"`

	// Server configures the HTTP API server
	Server ServerConfig `yaml:"server"`
}

// EngineConfig tunes the diagnosis engine. Zero values select the package
// defaults, so an empty file is a valid configuration.
type EngineConfig struct {
	// SampleLimit caps the output records retained per node run
	SampleLimit int `yaml:"sample_limit"`

	// MinSampleSize is the record count required before sample predicates
	// may fire. Below 2 sporadic absence cannot be told from uniform
	// absence, so 2 is the floor.
	MinSampleSize int `yaml:"min_sample_size"`

	// TimeoutProximity is the fraction of a node's configured ceiling at
	// which the timing predicate fires (0 < fraction <= 1)
	TimeoutProximity float64 `yaml:"timeout_proximity"`

	// DefaultThreshold is the confidence a pattern must reach to match,
	// unless overridden per pattern
	DefaultThreshold int `yaml:"default_threshold"`

	// Priority lists pattern ids in descending tie-break order. Listed
	// patterns rank first; unlisted ones keep their catalog order after.
	Priority []string `yaml:"priority"`

	// Thresholds overrides the match threshold for individual patterns,
	// keyed by pattern id
	Thresholds map[string]int `yaml:"thresholds"`

	// Combinations is the adjacency table applied when related patterns
	// match the same trace
	Combinations []CombinationConfig `yaml:"combinations"`
}

// CombinationConfig marks one pattern as a downstream consequence of
// another for report ordering.
type CombinationConfig struct {
	// Cause is the pattern id promoted to primary when both match
	Cause string `yaml:"cause"`

	// Consequence is the pattern id annotated as fallout
	Consequence string `yaml:"consequence"`

	// Annotation replaces the default fallout note when set
	Annotation string `yaml:"annotation,omitempty"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Port is the port the API server listens on
	Port int `yaml:"port"`

	// Cache configures the diagnosis result cache
	Cache CacheConfig `yaml:"cache"`

	// Tracing configures OpenTelemetry span export
	Tracing TracingConfig `yaml:"tracing"`
}

// CacheConfig configures the diagnosis result cache.
type CacheConfig struct {
	// Enabled turns the cache on
	Enabled bool `yaml:"enabled"`

	// MaxMemoryMB is the maximum memory for cached diagnoses in MB
	MaxMemoryMB int64 `yaml:"max_memory_mb"`

	// TTLSeconds is the entry lifetime in seconds
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// TracingConfig configures OpenTelemetry trace export.
type TracingConfig struct {
	// Enabled turns span export on
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC endpoint (e.g., "otel-collector:4317")
	Endpoint string `yaml:"endpoint"`

	// TLSCAPath is the path to the CA certificate for TLS verification
	TLSCAPath string `yaml:"tls_ca_path"`

	// TLSInsecure skips TLS certificate verification
	TLSInsecure bool `yaml:"tls_insecure"`
}

// Default returns the configuration used when no file is given. Loading a
// file merges its values over these.
func Default() Config {
	return Config{
		LogLevel: "info",
		Engine: EngineConfig{
			MinSampleSize:    signature.DefaultMinSampleSize,
			TimeoutProximity: signature.DefaultTimeoutProximity,
			DefaultThreshold: signature.DefaultMatchThreshold,
			Combinations: []CombinationConfig{
				{Cause: string(signature.PatternRateLimiting), Consequence: string(signature.PatternTimeout)},
			},
		},
		Server: ServerConfig{
			Port: 8417,
			Cache: CacheConfig{
				Enabled:     true,
				MaxMemoryMB: 32,
				TTLSeconds:  300,
			},
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return NewConfigError(fmt.Sprintf("log_level must be debug, info, warn, or error, got %q", c.LogLevel))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return NewConfigError(fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Engine.SampleLimit < 0 {
		return NewConfigError(fmt.Sprintf("engine.sample_limit must not be negative, got %d", c.Engine.SampleLimit))
	}

	if c.Engine.MinSampleSize != 0 && c.Engine.MinSampleSize < signature.DefaultMinSampleSize {
		return NewConfigError(fmt.Sprintf("engine.min_sample_size must be at least %d, got %d",
			signature.DefaultMinSampleSize, c.Engine.MinSampleSize))
	}

	if c.Engine.TimeoutProximity < 0 || c.Engine.TimeoutProximity > 1 {
		return NewConfigError(fmt.Sprintf("engine.timeout_proximity must be within (0, 1], got %g", c.Engine.TimeoutProximity))
	}

	if c.Engine.DefaultThreshold < 0 || c.Engine.DefaultThreshold > 100 {
		return NewConfigError(fmt.Sprintf("engine.default_threshold must be between 1 and 100, got %d", c.Engine.DefaultThreshold))
	}

	for id, threshold := range c.Engine.Thresholds {
		if threshold < 1 || threshold > 100 {
			return NewConfigError(fmt.Sprintf("engine.thresholds[%s] must be between 1 and 100, got %d", id, threshold))
		}
	}

	for i, p := range c.Engine.Priority {
		if p == "" {
			return NewConfigError(fmt.Sprintf("engine.priority[%d] must not be empty", i))
		}
	}

	for i, combo := range c.Engine.Combinations {
		if combo.Cause == "" {
			return NewConfigError(fmt.Sprintf("engine.combinations[%d]: cause is required", i))
		}
		if combo.Consequence == "" {
			return NewConfigError(fmt.Sprintf("engine.combinations[%d] (%s): consequence is required", i, combo.Cause))
		}
		if combo.Cause == combo.Consequence {
			return NewConfigError(fmt.Sprintf("engine.combinations[%d]: %q cannot be its own consequence", i, combo.Cause))
		}
	}

	if c.Server.Cache.Enabled {
		if c.Server.Cache.MaxMemoryMB < 1 {
			return NewConfigError("server.cache.max_memory_mb must be at least 1 when the cache is enabled")
		}
		if c.Server.Cache.TTLSeconds < 1 {
			return NewConfigError("server.cache.ttl_seconds must be at least 1 when the cache is enabled")
		}
	}

	if c.Server.Tracing.Enabled && c.Server.Tracing.Endpoint == "" {
		return NewConfigError("server.tracing.endpoint must be set when tracing is enabled")
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}
