package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varenko/inquest/internal/signature"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8417, cfg.Server.Port)
	assert.Equal(t, signature.DefaultMatchThreshold, cfg.Engine.DefaultThreshold)
	assert.Equal(t, signature.DefaultTimeoutProximity, cfg.Engine.TimeoutProximity)
	assert.True(t, cfg.Server.Cache.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Server.Cache.TTL())

	require.Len(t, cfg.Engine.Combinations, 1)
	assert.Equal(t, string(signature.PatternRateLimiting), cfg.Engine.Combinations[0].Cause)
	assert.Equal(t, string(signature.PatternTimeout), cfg.Engine.Combinations[0].Consequence)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "default is valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "unknown log level",
			mutate:  func(cfg *Config) { cfg.LogLevel = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "port zero",
			mutate:  func(cfg *Config) { cfg.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "port out of range",
			mutate:  func(cfg *Config) { cfg.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "negative sample limit",
			mutate:  func(cfg *Config) { cfg.Engine.SampleLimit = -1 },
			wantErr: "sample_limit",
		},
		{
			name:    "min sample size below floor",
			mutate:  func(cfg *Config) { cfg.Engine.MinSampleSize = 1 },
			wantErr: "min_sample_size",
		},
		{
			name:   "min sample size zero selects default",
			mutate: func(cfg *Config) { cfg.Engine.MinSampleSize = 0 },
		},
		{
			name:    "timeout proximity above one",
			mutate:  func(cfg *Config) { cfg.Engine.TimeoutProximity = 1.5 },
			wantErr: "timeout_proximity",
		},
		{
			name:    "negative timeout proximity",
			mutate:  func(cfg *Config) { cfg.Engine.TimeoutProximity = -0.2 },
			wantErr: "timeout_proximity",
		},
		{
			name:    "default threshold above 100",
			mutate:  func(cfg *Config) { cfg.Engine.DefaultThreshold = 101 },
			wantErr: "default_threshold",
		},
		{
			name:    "per-pattern threshold out of range",
			mutate:  func(cfg *Config) { cfg.Engine.Thresholds = map[string]int{"timeout": 120} },
			wantErr: "thresholds",
		},
		{
			name:    "empty priority entry",
			mutate:  func(cfg *Config) { cfg.Engine.Priority = []string{"timeout", ""} },
			wantErr: "priority",
		},
		{
			name: "combination missing cause",
			mutate: func(cfg *Config) {
				cfg.Engine.Combinations = []CombinationConfig{{Consequence: "timeout"}}
			},
			wantErr: "cause is required",
		},
		{
			name: "combination missing consequence",
			mutate: func(cfg *Config) {
				cfg.Engine.Combinations = []CombinationConfig{{Cause: "rate-limiting"}}
			},
			wantErr: "consequence is required",
		},
		{
			name: "combination names itself",
			mutate: func(cfg *Config) {
				cfg.Engine.Combinations = []CombinationConfig{{Cause: "timeout", Consequence: "timeout"}}
			},
			wantErr: "cannot be its own consequence",
		},
		{
			name:    "enabled cache without memory",
			mutate:  func(cfg *Config) { cfg.Server.Cache.MaxMemoryMB = 0 },
			wantErr: "max_memory_mb",
		},
		{
			name:    "enabled cache without ttl",
			mutate:  func(cfg *Config) { cfg.Server.Cache.TTLSeconds = 0 },
			wantErr: "ttl_seconds",
		},
		{
			name: "disabled cache skips sizing checks",
			mutate: func(cfg *Config) {
				cfg.Server.Cache = CacheConfig{Enabled: false}
			},
		},
		{
			name:    "enabled tracing without endpoint",
			mutate:  func(cfg *Config) { cfg.Server.Tracing.Enabled = true },
			wantErr: "tracing.endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}
