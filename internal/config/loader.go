package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load reads and validates a configuration file using Koanf. Values from
// the file merge over Default(), so a partial file tunes only what it
// names.
//
// Error cases:
//   - File not found or cannot be read
//   - Invalid YAML syntax
//   - Validation failure (out-of-range thresholds, malformed combinations)
func Load(filepath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(filepath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config from %q: %w", filepath, err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse config from %q: %w", filepath, err)
	}

	// Slices merge element-wise over the defaults, which cannot express
	// "no combinations". A present key replaces the default table outright.
	if k.Exists("engine.combinations") {
		var combos []CombinationConfig
		if err := k.UnmarshalWithConf("engine.combinations", &combos, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
			return nil, fmt.Errorf("failed to parse config from %q: %w", filepath, err)
		}
		if combos == nil {
			combos = []CombinationConfig{}
		}
		cfg.Engine.Combinations = combos
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed for %q: %w", filepath, err)
	}

	return &cfg, nil
}
