package config

import (
	"fmt"

	"github.com/varenko/inquest/internal/diagnosis"
	"github.com/varenko/inquest/internal/signature"
)

// Registry builds the pattern registry this configuration describes:
// per-pattern threshold overrides applied to the built-in catalog, ordered
// by the configured priority table.
func (e EngineConfig) Registry() (*signature.Registry, error) {
	patterns := signature.Catalog()

	known := make(map[string]bool, len(patterns))
	for i := range patterns {
		known[string(patterns[i].ID)] = true
		if threshold, ok := e.Thresholds[string(patterns[i].ID)]; ok {
			patterns[i].MatchThreshold = threshold
		}
	}
	for id := range e.Thresholds {
		if !known[id] {
			return nil, NewConfigError(fmt.Sprintf("engine.thresholds names unknown pattern %q", id))
		}
	}

	threshold := e.DefaultThreshold
	if threshold == 0 {
		threshold = signature.DefaultMatchThreshold
	}

	if len(e.Priority) == 0 {
		return signature.NewRegistry(threshold, patterns...)
	}

	priority := make([]signature.PatternID, len(e.Priority))
	for i, id := range e.Priority {
		priority[i] = signature.PatternID(id)
	}
	return signature.Ordered(threshold, priority, patterns)
}

// Params returns the evaluation parameters with defaults filled in.
func (e EngineConfig) Params() signature.Params {
	return signature.Params{
		SampleLimit:      e.SampleLimit,
		MinSampleSize:    e.MinSampleSize,
		TimeoutProximity: e.TimeoutProximity,
	}.Normalize()
}

// CombinationRules translates the configured adjacency table. A nil table
// keeps the engine's built-in rules; an explicitly empty one disables them.
func (e EngineConfig) CombinationRules() []diagnosis.CombinationRule {
	if e.Combinations == nil {
		return nil
	}
	rules := make([]diagnosis.CombinationRule, 0, len(e.Combinations))
	for _, combo := range e.Combinations {
		rules = append(rules, diagnosis.CombinationRule{
			Cause:       signature.PatternID(combo.Cause),
			Consequence: signature.PatternID(combo.Consequence),
			Annotation:  combo.Annotation,
		})
	}
	return rules
}

// EngineOptions assembles the diagnosis engine options this configuration
// describes. The caller attaches a cache when it wants one.
func (c *Config) EngineOptions() (diagnosis.Options, error) {
	registry, err := c.Engine.Registry()
	if err != nil {
		return diagnosis.Options{}, err
	}
	return diagnosis.Options{
		Registry:     registry,
		Params:       c.Engine.Params(),
		Combinations: c.Engine.CombinationRules(),
	}, nil
}

// DiagnosisConfig translates the cache section for the diagnosis package.
func (c CacheConfig) DiagnosisConfig() diagnosis.CacheConfig {
	return diagnosis.CacheConfig{
		MaxMemoryMB: c.MaxMemoryMB,
		TTL:         c.TTL(),
		Enabled:     c.Enabled,
	}
}
