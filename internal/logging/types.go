package logging

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// LogLevel represents the logging level.
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota
	// INFO level for informational messages
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
	// FATAL level for fatal messages
	FATAL
)

const (
	strError = "ERROR"
)

// LogField represents a structured logging field.
type LogField struct {
	Key   string
	Value interface{}
}

// Field creates a structured logging field.
func Field(key string, value interface{}) LogField {
	return LogField{Key: key, Value: value}
}

// Logger provides leveled, structured logging. Instances are immutable;
// WithField and friends return copies.
type Logger struct {
	level  LogLevel
	name   string
	fields map[string]interface{}
	ctx    context.Context
}

// componentLogLevels stores per-component level overrides keyed by exact
// component name or a wildcard pattern such as "diagnosis.*".
var (
	componentLogLevels = make(map[string]LogLevel)
	componentLogMutex  sync.RWMutex
)

// SetComponentLogLevels replaces the per-component override table.
// Returns an error if any level name is invalid.
func SetComponentLogLevels(levels map[string]string) error {
	if levels == nil {
		return nil
	}

	componentLogMutex.Lock()
	defer componentLogMutex.Unlock()

	componentLogLevels = make(map[string]LogLevel)

	for component, levelStr := range levels {
		level, err := parseLevel(levelStr)
		if err != nil {
			return fmt.Errorf("invalid log level for component %q: %w", component, err)
		}
		componentLogLevels[component] = level
	}

	return nil
}

// componentLogLevel returns the override for a component name, preferring an
// exact match, then the most specific wildcard pattern. Returns -1 when no
// override applies.
func componentLogLevel(name string) LogLevel {
	componentLogMutex.RLock()
	defer componentLogMutex.RUnlock()

	if level, exists := componentLogLevels[name]; exists {
		return level
	}

	var patterns []string
	for pattern := range componentLogLevels {
		if matchesPattern(name, pattern) {
			patterns = append(patterns, pattern)
		}
	}

	// Longest pattern wins, it is the most specific one.
	for i := 0; i < len(patterns); i++ {
		for j := i + 1; j < len(patterns); j++ {
			if len(patterns[j]) > len(patterns[i]) {
				patterns[i], patterns[j] = patterns[j], patterns[i]
			}
		}
	}

	if len(patterns) > 0 {
		return componentLogLevels[patterns[0]]
	}

	return LogLevel(-1)
}

// matchesPattern reports whether a component name matches an override
// pattern. "diagnosis.*" matches "diagnosis.engine" but not "diagnosis".
func matchesPattern(name, pattern string) bool {
	if name == pattern {
		return true
	}

	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return strings.HasPrefix(name, prefix+".")
	}

	return false
}

// parseLevel converts a string level to the LogLevel enum.
func parseLevel(levelStr string) (LogLevel, error) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "FATAL":
		return FATAL, nil
	default:
		return -1, fmt.Errorf("invalid level: %s (must be DEBUG, INFO, WARN, ERROR, or FATAL)", levelStr)
	}
}

// cloneFields copies a field map so child loggers never share state with
// their parent.
func cloneFields(src map[string]interface{}) map[string]interface{} {
	if len(src) == 0 {
		return make(map[string]interface{})
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
