// Package logging provides structured logging for the inquest diagnostic engine.
//
// The API is deliberately small: leveled printf-style methods, structured
// key-value fields, and immutable child loggers. Every component obtains a
// named logger and the name participates in level filtering, so a single
// noisy component (say, the evidence evaluator) can be raised to DEBUG
// without drowning the rest of the process.
//
// Basic usage:
//
//	logging.Initialize("info")
//	logger := logging.GetLogger("diagnosis.engine")
//	logger.Info("catalog loaded with %d patterns", n)
//
// Structured fields:
//
//	logger.InfoWithFields("diagnosis complete",
//	    logging.Field("execution_id", trace.ExecutionID),
//	    logging.Field("duration_ms", elapsed.Milliseconds()),
//	)
//
// Child loggers carry persistent fields and are safe to share across
// goroutines:
//
//	runLogger := logger.WithField("execution_id", id)
//
// Per-component levels accept exact names ("diagnosis.engine") or wildcard
// patterns ("diagnosis.*"); components without an override use the default
// level passed to Initialize.
//
// DEBUG/INFO/WARN go to stdout, ERROR/FATAL to stderr. Fatal terminates the
// process with exit code 1. Tests may pin timestamps via the LOG_TIMESTAMP
// environment variable.
package logging

import (
	"context"
	"os"
	"strings"
	"sync"
)

var (
	globalLogger *Logger
	initOnce     sync.Once
	// exitFunc is called by Fatal. Overridable for tests.
	exitFunc = os.Exit
)

// Initialize sets up the global logger with the given default level and
// optional per-component overrides, e.g. {"diagnosis.*": "debug"}.
func Initialize(levelStr string, componentLevels ...map[string]string) error {
	var level LogLevel
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = DEBUG
	case "INFO":
		level = INFO
	case "WARN":
		level = WARN
	case strError:
		level = ERROR
	case "FATAL":
		level = FATAL
	default:
		level = INFO
	}

	globalLogger = &Logger{
		level: level,
		name:  "inquest",
	}

	if len(componentLevels) > 0 && componentLevels[0] != nil {
		if err := SetComponentLogLevels(componentLevels[0]); err != nil {
			return err
		}
	}

	return nil
}

// GetLogger returns a logger named after the component. The global logger is
// lazily initialized at INFO on first use.
func GetLogger(name string) *Logger {
	initOnce.Do(func() {
		if globalLogger == nil {
			_ = Initialize("info")
		}
	})
	return &Logger{
		level:  globalLogger.level,
		name:   name,
		fields: make(map[string]interface{}),
	}
}

// shouldLog consults the component override first, then the logger's level.
func (l *Logger) shouldLog(level LogLevel) bool {
	if override := componentLogLevel(l.name); override >= 0 {
		return level >= override
	}
	return level >= l.level
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.logf("DEBUG", msg, args...)
	}
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) {
	if l.shouldLog(INFO) {
		l.logf("INFO", msg, args...)
	}
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.shouldLog(WARN) {
		l.logf("WARN", msg, args...)
	}
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	if l.shouldLog(ERROR) {
		l.logf(strError, msg, args...)
	}
}

// Fatal logs a fatal message and exits the program with code 1.
func (l *Logger) Fatal(msg string, args ...interface{}) {
	if l.shouldLog(FATAL) {
		l.logf("FATAL", msg, args...)
		exitFunc(1)
	}
}

// FatalWithFields logs a fatal message with structured fields and exits with code 1.
func (l *Logger) FatalWithFields(msg string, fields ...LogField) {
	if l.shouldLog(FATAL) {
		l.logWithFields("FATAL", msg, fields...)
		exitFunc(1)
	}
}

// ErrorWithErr logs an error message together with an error value.
func (l *Logger) ErrorWithErr(msg string, err error, args ...interface{}) {
	if l.shouldLog(ERROR) {
		args = append(args, err)
		l.logf("ERROR", msg+" - %v", args...)
	}
}

// WithName returns a new logger with a different component name.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{
		level:  l.level,
		name:   name,
		fields: make(map[string]interface{}),
		ctx:    l.ctx,
	}
}

// WithField returns a new logger carrying an additional persistent field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	child := &Logger{
		level:  l.level,
		name:   l.name,
		fields: cloneFields(l.fields),
		ctx:    l.ctx,
	}
	child.fields[key] = value
	return child
}

// WithFields returns a new logger carrying additional persistent fields.
func (l *Logger) WithFields(fields ...LogField) *Logger {
	child := &Logger{
		level:  l.level,
		name:   l.name,
		fields: cloneFields(l.fields),
		ctx:    l.ctx,
	}
	for _, f := range fields {
		child.fields[f.Key] = f.Value
	}
	return child
}

// WithContext returns a new logger that extracts trace_id and request_id
// from ctx on every message. A nil ctx disables context extraction.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{
		level:  l.level,
		name:   l.name,
		fields: cloneFields(l.fields),
		ctx:    ctx,
	}
}

// DebugWithFields logs a debug message with structured fields.
func (l *Logger) DebugWithFields(msg string, fields ...LogField) {
	if l.shouldLog(DEBUG) {
		l.logWithFields("DEBUG", msg, fields...)
	}
}

// InfoWithFields logs an info message with structured fields.
func (l *Logger) InfoWithFields(msg string, fields ...LogField) {
	if l.shouldLog(INFO) {
		l.logWithFields("INFO", msg, fields...)
	}
}

// WarnWithFields logs a warning message with structured fields.
func (l *Logger) WarnWithFields(msg string, fields ...LogField) {
	if l.shouldLog(WARN) {
		l.logWithFields("WARN", msg, fields...)
	}
}

// ErrorWithFields logs an error message with structured fields.
func (l *Logger) ErrorWithFields(msg string, fields ...LogField) {
	if l.shouldLog(ERROR) {
		l.logWithFields("ERROR", msg, fields...)
	}
}

// logWithFields merges context fields, persistent fields, and per-call
// fields. Later sources win on key collision.
func (l *Logger) logWithFields(level, msg string, fields ...LogField) {
	contextFields := extractContextFields(l.ctx)

	var merged map[string]interface{}
	if contextFields != nil || len(l.fields) > 0 || len(fields) > 0 {
		merged = make(map[string]interface{})
		for k, v := range contextFields {
			merged[k] = v
		}
		for k, v := range l.fields {
			merged[k] = v
		}
		for _, f := range fields {
			merged[f.Key] = f.Value
		}
	}

	l.writeLog(level, msg, merged)
}
