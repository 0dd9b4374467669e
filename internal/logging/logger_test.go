package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// captureOutput captures both stdout (log package) and stderr during f.
func captureOutput(f func()) (stdout, stderr string) {
	oldLogWriter := log.Writer()
	defer log.SetOutput(oldLogWriter)

	var stdoutBuf bytes.Buffer
	log.SetOutput(&stdoutBuf)

	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = oldStderr
	var stderrBuf bytes.Buffer
	io.Copy(&stderrBuf, r)

	return stdoutBuf.String(), stderrBuf.String()
}

// resetGlobalLogger resets global logger state for test isolation.
func resetGlobalLogger() {
	globalLogger = nil
	initOnce = sync.Once{}
	componentLogMutex.Lock()
	componentLogLevels = make(map[string]LogLevel)
	componentLogMutex.Unlock()
}

func setExitFunc(f func(int)) func() {
	original := exitFunc
	exitFunc = f
	return func() { exitFunc = original }
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel LogLevel
	}{
		{"debug level", "debug", DEBUG},
		{"info level", "info", INFO},
		{"warn level", "warn", WARN},
		{"error level", "error", ERROR},
		{"fatal level", "fatal", FATAL},
		{"uppercase", "DEBUG", DEBUG},
		{"mixed case", "WaRn", WARN},
		{"invalid defaults to info", "bogus", INFO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetGlobalLogger()
			Initialize(tt.level)

			if globalLogger == nil {
				t.Fatal("globalLogger is nil after Initialize")
			}

			if globalLogger.level != tt.wantLevel {
				t.Errorf("Initialize(%q) level = %v, want %v", tt.level, globalLogger.level, tt.wantLevel)
			}

			if globalLogger.name != "inquest" {
				t.Errorf("Initialize(%q) name = %q, want %q", tt.level, globalLogger.name, "inquest")
			}
		})
	}
}

func TestGetLoggerLazyInit(t *testing.T) {
	resetGlobalLogger()

	logger := GetLogger("trace.build")

	if logger == nil {
		t.Fatal("GetLogger returned nil with lazy init")
	}

	if logger.level != INFO {
		t.Errorf("lazy init level = %v, want %v", logger.level, INFO)
	}

	if logger.name != "trace.build" {
		t.Errorf("logger name = %q, want %q", logger.name, "trace.build")
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		name         string
		setLevel     string
		logFunc      func(*Logger)
		shouldAppear bool
		checkStderr  bool
	}{
		{"debug filtered at info", "info", func(l *Logger) { l.Debug("test") }, false, false},
		{"info shown at info", "info", func(l *Logger) { l.Info("test") }, true, false},
		{"warn shown at info", "info", func(l *Logger) { l.Warn("test") }, true, false},
		{"error shown at info", "info", func(l *Logger) { l.Error("test") }, true, true},
		{"info filtered at error", "error", func(l *Logger) { l.Info("test") }, false, false},
		{"error shown at error", "error", func(l *Logger) { l.Error("test") }, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetGlobalLogger()
			Initialize(tt.setLevel)

			os.Setenv("LOG_TIMESTAMP", "2024-01-01T12:00:00Z")
			defer os.Unsetenv("LOG_TIMESTAMP")

			logger := GetLogger("test")

			stdout, stderr := captureOutput(func() {
				tt.logFunc(logger)
			})

			var hasOutput bool
			if tt.checkStderr {
				hasOutput = len(strings.TrimSpace(stderr)) > 0
			} else {
				hasOutput = len(strings.TrimSpace(stdout)) > 0
			}

			if hasOutput != tt.shouldAppear {
				t.Errorf("level filtering failed: level=%s, shouldAppear=%v, hasOutput=%v, stdout=%q, stderr=%q",
					tt.setLevel, tt.shouldAppear, hasOutput, stdout, stderr)
			}
		})
	}
}

func TestComponentLevelOverrides(t *testing.T) {
	resetGlobalLogger()
	Initialize("info", map[string]string{
		"diagnosis.*":  "debug",
		"trace.build":  "error",
		"trace.sample": "warn",
	})

	os.Setenv("LOG_TIMESTAMP", "2024-01-01T12:00:00Z")
	defer os.Unsetenv("LOG_TIMESTAMP")

	tests := []struct {
		name      string
		component string
		logFunc   func(*Logger)
		want      bool
	}{
		{"wildcard raises evaluator to debug", "diagnosis.evaluator", func(l *Logger) { l.Debug("x") }, true},
		{"wildcard raises scorer to debug", "diagnosis.scorer", func(l *Logger) { l.Debug("x") }, true},
		{"exact match lowers trace.build", "trace.build", func(l *Logger) { l.Info("x") }, false},
		{"unconfigured uses default", "report", func(l *Logger) { l.Debug("x") }, false},
		{"unconfigured info passes", "report", func(l *Logger) { l.Info("x") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := GetLogger(tt.component)
			stdout, _ := captureOutput(func() {
				tt.logFunc(logger)
			})
			got := len(strings.TrimSpace(stdout)) > 0
			if got != tt.want {
				t.Errorf("component %s: output=%v, want %v (stdout=%q)", tt.component, got, tt.want, stdout)
			}
		})
	}
}

func TestSetComponentLogLevelsInvalid(t *testing.T) {
	resetGlobalLogger()
	err := SetComponentLogLevels(map[string]string{"diagnosis.engine": "loud"})
	if err == nil {
		t.Fatal("expected error for invalid level name")
	}
	if !strings.Contains(err.Error(), "diagnosis.engine") {
		t.Errorf("error should name the component: %v", err)
	}
}

func TestWithFieldsAndPersistence(t *testing.T) {
	resetGlobalLogger()
	Initialize("info")

	os.Setenv("LOG_TIMESTAMP", "2024-01-01T12:00:00Z")
	defer os.Unsetenv("LOG_TIMESTAMP")

	logger := GetLogger("test").WithField("execution_id", "exec-42")

	stdout, _ := captureOutput(func() {
		logger.InfoWithFields("first")
		logger.InfoWithFields("second", Field("pattern", "rate-limiting"))
	})

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) < 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}

	for i, line := range lines {
		if !strings.Contains(line, "execution_id=exec-42") {
			t.Errorf("line %d missing persistent field: %s", i, line)
		}
	}

	if !strings.Contains(lines[1], "pattern=rate-limiting") {
		t.Errorf("second line missing call-site field: %s", lines[1])
	}
}

func TestLoggerIsolation(t *testing.T) {
	resetGlobalLogger()
	Initialize("info")

	os.Setenv("LOG_TIMESTAMP", "2024-01-01T12:00:00Z")
	defer os.Unsetenv("LOG_TIMESTAMP")

	base := GetLogger("test")
	logger1 := base.WithField("id", "1")
	logger2 := base.WithField("id", "2")

	stdout, _ := captureOutput(func() {
		logger1.InfoWithFields("from logger1")
		logger2.InfoWithFields("from logger2")
	})

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) < 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}

	if !strings.Contains(lines[0], "id=1") || strings.Contains(lines[0], "id=2") {
		t.Errorf("logger1 fields leaked: %s", lines[0])
	}
	if !strings.Contains(lines[1], "id=2") || strings.Contains(lines[1], "id=1") {
		t.Errorf("logger2 fields leaked: %s", lines[1])
	}
}

func TestWithContext(t *testing.T) {
	resetGlobalLogger()
	Initialize("info")

	os.Setenv("LOG_TIMESTAMP", "2024-01-01T12:00:00Z")
	defer os.Unsetenv("LOG_TIMESTAMP")

	ctx := context.WithValue(context.Background(), TraceIDKey(), "trace-abc")
	ctx = context.WithValue(ctx, RequestIDKey(), "req-123")

	logger := GetLogger("test").WithContext(ctx)

	stdout, _ := captureOutput(func() {
		logger.Info("handling request")
	})

	if !strings.Contains(stdout, "trace_id=trace-abc") {
		t.Errorf("output missing trace_id: %s", stdout)
	}
	if !strings.Contains(stdout, "request_id=req-123") {
		t.Errorf("output missing request_id: %s", stdout)
	}
}

func TestWithContextNil(t *testing.T) {
	resetGlobalLogger()
	Initialize("info")

	os.Setenv("LOG_TIMESTAMP", "2024-01-01T12:00:00Z")
	defer os.Unsetenv("LOG_TIMESTAMP")

	logger := GetLogger("test").WithContext(nil)

	stdout, _ := captureOutput(func() {
		logger.Info("no context")
	})

	if !strings.Contains(stdout, "no context") {
		t.Errorf("output missing message: %s", stdout)
	}
	if strings.Contains(stdout, "trace_id") {
		t.Errorf("nil context should not produce trace_id: %s", stdout)
	}
}

func TestErrorRoutesToStderr(t *testing.T) {
	resetGlobalLogger()
	Initialize("error")

	os.Setenv("LOG_TIMESTAMP", "2024-01-01T12:00:00Z")
	defer os.Unsetenv("LOG_TIMESTAMP")

	logger := GetLogger("test")

	stdout, stderr := captureOutput(func() {
		logger.ErrorWithErr("diagnosis failed", fmt.Errorf("malformed trace"))
	})

	if strings.TrimSpace(stdout) != "" {
		t.Errorf("error output leaked to stdout: %s", stdout)
	}
	if !strings.Contains(stderr, "[ERROR]") || !strings.Contains(stderr, "malformed trace") {
		t.Errorf("stderr missing error content: %s", stderr)
	}
}

func TestFatalCallsExit(t *testing.T) {
	resetGlobalLogger()
	Initialize("info")

	os.Setenv("LOG_TIMESTAMP", "2024-01-01T12:00:00Z")
	defer os.Unsetenv("LOG_TIMESTAMP")

	logger := GetLogger("test")

	var exitCode int
	exitCalled := false
	cleanup := setExitFunc(func(code int) {
		exitCode = code
		exitCalled = true
	})
	defer cleanup()

	_, stderr := captureOutput(func() {
		logger.Fatal("cannot continue: %v", "config missing")
	})

	if !strings.Contains(stderr, "[FATAL]") || !strings.Contains(stderr, "cannot continue: config missing") {
		t.Errorf("stderr missing fatal content: %s", stderr)
	}
	if !exitCalled || exitCode != 1 {
		t.Errorf("Fatal exit: called=%v code=%d, want called with 1", exitCalled, exitCode)
	}
}

func TestConcurrentGetLogger(t *testing.T) {
	resetGlobalLogger()

	const numGoroutines = 100
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	loggers := make([]*Logger, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(idx int) {
			defer wg.Done()
			loggers[idx] = GetLogger(fmt.Sprintf("logger-%d", idx))
		}(i)
	}

	wg.Wait()

	for i, logger := range loggers {
		if logger == nil {
			t.Errorf("logger %d is nil", i)
		}
	}

	if globalLogger == nil {
		t.Error("global logger not initialized after concurrent access")
	}
}

func TestGetTimestamp(t *testing.T) {
	os.Setenv("LOG_TIMESTAMP", "2024-01-01T12:00:00Z")
	if got := GetTimestamp(); got != "2024-01-01T12:00:00Z" {
		t.Errorf("GetTimestamp() = %q, want pinned value", got)
	}
	os.Unsetenv("LOG_TIMESTAMP")

	got := GetTimestamp()
	if _, err := time.Parse(time.RFC3339, got); err != nil {
		t.Errorf("GetTimestamp() not RFC3339: %q (%v)", got, err)
	}
}
