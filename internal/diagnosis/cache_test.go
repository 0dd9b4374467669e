package diagnosis

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/varenko/inquest/internal/logging"
	"github.com/varenko/inquest/internal/signature"
	"github.com/varenko/inquest/internal/trace"
)

// TestNewCache tests cache creation
func TestNewCache(t *testing.T) {
	tests := []struct {
		name      string
		config    CacheConfig
		shouldErr bool
	}{
		{
			name: "Valid 64MB cache",
			config: CacheConfig{
				MaxMemoryMB: 64,
				TTL:         2 * time.Minute,
				Enabled:     true,
			},
			shouldErr: false,
		},
		{
			name: "Valid 1MB cache",
			config: CacheConfig{
				MaxMemoryMB: 1,
				TTL:         30 * time.Second,
				Enabled:     true,
			},
			shouldErr: false,
		},
		{
			name: "Invalid 0MB cache",
			config: CacheConfig{
				MaxMemoryMB: 0,
				TTL:         2 * time.Minute,
				Enabled:     true,
			},
			shouldErr: true,
		},
		{
			name: "Invalid negative memory",
			config: CacheConfig{
				MaxMemoryMB: -1,
				TTL:         2 * time.Minute,
				Enabled:     true,
			},
			shouldErr: true,
		},
		{
			name: "Invalid zero TTL",
			config: CacheConfig{
				MaxMemoryMB: 64,
				TTL:         0,
				Enabled:     true,
			},
			shouldErr: true,
		},
		{
			name: "Invalid negative TTL",
			config: CacheConfig{
				MaxMemoryMB: 64,
				TTL:         -1 * time.Second,
				Enabled:     true,
			},
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, err := NewCache(tt.config, logging.GetLogger("test"))
			if tt.shouldErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if cache == nil {
					t.Fatalf("expected cache, got nil")
				}
				expectedMaxMemory := tt.config.MaxMemoryMB * 1024 * 1024
				if cache.maxMemory != expectedMaxMemory {
					t.Errorf("expected maxMemory %d, got %d", expectedMaxMemory, cache.maxMemory)
				}
				if cache.ttl != tt.config.TTL {
					t.Errorf("expected TTL %v, got %v", tt.config.TTL, cache.ttl)
				}
			}
		})
	}
}

// TestCacheGetPut tests basic get/put operations
func TestCacheGetPut(t *testing.T) {
	cache := newTestCache(t, 10, 5*time.Minute)

	d := sampleDiagnosis("exec-cache-1")
	key := "test-diagnosis-key-12345678"

	cache.Put(key, d)

	retrieved, ok := cache.Get(key)
	if !ok {
		t.Error("expected to get diagnosis, got not found")
	}
	if retrieved != d {
		t.Error("expected the stored diagnosis pointer back")
	}
}

// TestCacheMiss tests cache miss behavior
func TestCacheMiss(t *testing.T) {
	cache := newTestCache(t, 10, 5*time.Minute)

	d, ok := cache.Get("non-existent-key-12345678")
	if ok {
		t.Error("expected cache miss, got hit")
	}
	if d != nil {
		t.Error("expected nil diagnosis, got non-nil")
	}

	stats := cache.Stats()
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

// TestCacheTTLExpiration tests TTL expiration behavior
func TestCacheTTLExpiration(t *testing.T) {
	cache := newTestCache(t, 10, 50*time.Millisecond)

	key := "test-ttl-key-12345678"
	cache.Put(key, sampleDiagnosis("exec-ttl-1"))

	// Should be in cache immediately
	if _, ok := cache.Get(key); !ok {
		t.Error("expected cache hit immediately after put")
	}

	// Wait for TTL to expire
	time.Sleep(100 * time.Millisecond)

	retrieved, ok := cache.Get(key)
	if ok {
		t.Error("expected cache miss after TTL expiration")
	}
	if retrieved != nil {
		t.Error("expected nil diagnosis after TTL expiration")
	}

	stats := cache.Stats()
	if stats.Expired != 1 {
		t.Errorf("expected 1 expired entry, got %d", stats.Expired)
	}
}

// TestCacheStats tests cache statistics
func TestCacheStats(t *testing.T) {
	cache := newTestCache(t, 10, 5*time.Minute)

	cache.Put("key1-1234567890123456", sampleDiagnosis("exec-stats-1"))
	cache.Put("key2-1234567890123456", sampleDiagnosis("exec-stats-2"))

	// 2 hits
	cache.Get("key1-1234567890123456")
	cache.Get("key1-1234567890123456")

	// 1 miss
	cache.Get("key3-1234567890123456")

	stats := cache.Stats()

	if stats.Items != 2 {
		t.Errorf("expected 2 items, got %d", stats.Items)
	}
	if stats.Hits != 2 {
		t.Errorf("expected 2 hits, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
	if stats.UsedMemory <= 0 {
		t.Errorf("expected positive used memory, got %d", stats.UsedMemory)
	}

	expectedHitRate := 2.0 / 3.0
	if stats.HitRate < expectedHitRate-0.01 || stats.HitRate > expectedHitRate+0.01 {
		t.Errorf("expected hit rate ~%.3f, got %.3f", expectedHitRate, stats.HitRate)
	}
}

// TestCacheLRUEviction tests LRU eviction under memory pressure
func TestCacheLRUEviction(t *testing.T) {
	// 1MB cache with ~450KB diagnoses: two fit, three don't
	cache := newTestCache(t, 1, 5*time.Minute)

	large1 := createLargeDiagnosis(450)
	large2 := createLargeDiagnosis(450)
	large3 := createLargeDiagnosis(450)

	t.Logf("Diagnosis sizes: size1=%d, size2=%d, size3=%d, maxMemory=%d",
		estimateDiagnosisSize(large1), estimateDiagnosisSize(large2), estimateDiagnosisSize(large3),
		int64(1*1024*1024))

	cache.Put("key1-1234567890123456", large1)
	cache.Put("key2-1234567890123456", large2)

	// Access key1 to make it more recently used
	cache.Get("key1-1234567890123456")

	cache.Put("key3-1234567890123456", large3)

	stats := cache.Stats()
	if stats.Evictions < 1 {
		t.Errorf("expected at least 1 eviction, got %d", stats.Evictions)
	}

	// key3 should be in cache (most recently added)
	if _, ok := cache.Get("key3-1234567890123456"); !ok {
		t.Error("expected key3 to be in cache")
	}
}

// TestCacheClear tests cache clearing
func TestCacheClear(t *testing.T) {
	cache := newTestCache(t, 10, 5*time.Minute)

	cache.Put("key1-1234567890123456", sampleDiagnosis("exec-clear-1"))
	cache.Put("key2-1234567890123456", sampleDiagnosis("exec-clear-2"))

	stats := cache.Stats()
	if stats.Items != 2 {
		t.Errorf("expected 2 items before clear, got %d", stats.Items)
	}

	cache.Clear()

	stats = cache.Stats()
	if stats.Items != 0 {
		t.Errorf("expected 0 items after clear, got %d", stats.Items)
	}
	if stats.UsedMemory != 0 {
		t.Errorf("expected 0 used memory after clear, got %d", stats.UsedMemory)
	}
}

// TestCacheInvalidate tests entry invalidation
func TestCacheInvalidate(t *testing.T) {
	cache := newTestCache(t, 10, 5*time.Minute)

	key := "test-invalidate-key-1234"
	cache.Put(key, sampleDiagnosis("exec-inv-1"))

	if _, ok := cache.Get(key); !ok {
		t.Error("expected key to be in cache before invalidation")
	}

	cache.Invalidate(key)

	if _, ok := cache.Get(key); ok {
		t.Error("expected key to be removed after invalidation")
	}
}

// TestKey tests deterministic key derivation from trace and history
func TestKey(t *testing.T) {
	raw := failedRaw(
		[]map[string]interface{}{
			node("FetchOrders", "http-call", "success"),
			node("NotifyBilling", "http-call", "error"),
		},
		map[string]interface{}{"node": "NotifyBilling", "message": "429 Too Many Requests", "code": "429"},
	)
	tr1 := buildTrace(t, raw)
	tr2 := buildTrace(t, raw)

	history := []trace.ExecutionSummary{
		{ExecutionID: "exec-prev", Status: trace.ExecutionSuccess, StoppedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
	}

	// Same trace and history produce the same key
	if Key(tr1, history) != Key(tr2, history) {
		t.Error("expected same key for identical trace and history")
	}

	// History participates in the key
	if Key(tr1, history) == Key(tr1, nil) {
		t.Error("expected different keys for different history")
	}

	// A different trace produces a different key
	other := buildTrace(t, failedRaw(
		[]map[string]interface{}{node("NotifyBilling", "http-call", "error")},
		map[string]interface{}{"node": "NotifyBilling", "message": "connect ETIMEDOUT", "code": "ETIMEDOUT"},
	))
	if Key(tr1, history) == Key(other, history) {
		t.Error("expected different keys for different traces")
	}

	// Key should be 64 chars (SHA256 hex)
	if len(Key(tr1, history)) != 64 {
		t.Errorf("expected key length 64, got %d", len(Key(tr1, history)))
	}
}

// TestCacheConcurrent tests concurrent access
func TestCacheConcurrent(t *testing.T) {
	cache := newTestCache(t, 100, 5*time.Minute)

	diagnoses := make([]*Diagnosis, 10)
	for i := 0; i < 10; i++ {
		diagnoses[i] = sampleDiagnosis(fmt.Sprintf("exec-conc-%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			cache.Put(fmt.Sprintf("concurrent-key-%02d-0123456789abcdef", idx), diagnoses[idx])
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			d, ok := cache.Get(fmt.Sprintf("concurrent-key-%02d-0123456789abcdef", idx))
			if !ok {
				t.Errorf("expected to find diagnosis for idx %d", idx)
			}
			if d == nil {
				t.Errorf("expected non-nil diagnosis for idx %d", idx)
			}
		}(i)
	}
	wg.Wait()

	stats := cache.Stats()
	if stats.Items != 10 {
		t.Errorf("expected 10 items, got %d", stats.Items)
	}
}

// TestEstimateDiagnosisSize tests size estimation
func TestEstimateDiagnosisSize(t *testing.T) {
	emptySize := estimateDiagnosisSize(&Diagnosis{})
	if emptySize <= 0 {
		t.Errorf("expected positive size for empty diagnosis, got %d", emptySize)
	}

	size := estimateDiagnosisSize(sampleDiagnosis("exec-size-1"))
	if size <= emptySize {
		t.Errorf("expected larger size for diagnosis with data, got %d (empty: %d)", size, emptySize)
	}

	if nilSize := estimateDiagnosisSize(nil); nilSize != 0 {
		t.Errorf("expected 0 size for nil diagnosis, got %d", nilSize)
	}
}

// TestCacheZeroHitRate tests hit rate when no accesses
func TestCacheZeroHitRate(t *testing.T) {
	cache := newTestCache(t, 10, 5*time.Minute)
	cache.Put("test-key-12345678901234", sampleDiagnosis("exec-zero-1"))

	stats := cache.Stats()
	if stats.HitRate != 0.0 {
		t.Errorf("expected hit rate 0.0 with no accesses, got %.3f", stats.HitRate)
	}
}

// TestDefaultCacheConfig tests default configuration
func TestDefaultCacheConfig(t *testing.T) {
	config := DefaultCacheConfig()

	if config.MaxMemoryMB != 32 {
		t.Errorf("expected default MaxMemoryMB 32, got %d", config.MaxMemoryMB)
	}
	if config.TTL != 5*time.Minute {
		t.Errorf("expected default TTL 5m, got %v", config.TTL)
	}
	if config.Enabled != false {
		t.Errorf("expected default Enabled false, got %v", config.Enabled)
	}
}

func newTestCache(t *testing.T, maxMemoryMB int64, ttl time.Duration) *Cache {
	t.Helper()
	cache, err := NewCache(CacheConfig{MaxMemoryMB: maxMemoryMB, TTL: ttl, Enabled: true}, logging.GetLogger("test"))
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return cache
}

func sampleDiagnosis(execID string) *Diagnosis {
	return &Diagnosis{
		ExecutionID: execID,
		WorkflowID:  "wf-1",
		Fingerprint: "fp-" + execID,
		Findings: []Finding{{
			Pattern:     signature.PatternRateLimiting,
			Name:        "Rate limiting",
			Confidence:  100,
			Threshold:   70,
			Hits:        []signature.Hit{{Predicate: "status-code", Weight: 60, Detail: "failure code 429"}},
			Remediation: signature.RemediationThrottle,
		}},
		Scores:  []Score{{Pattern: signature.PatternRateLimiting, Confidence: 100, Threshold: 70, Matched: true}},
		Origin:  Origin{NodeName: "NotifyBilling", Index: 1, Reason: "local to the failing node"},
		Failure: &trace.FailureEvent{NodeName: "NotifyBilling", Message: "429 Too Many Requests", Code: "429"},
	}
}

// createLargeDiagnosis pads the failure message to approximately the given
// size in KB so eviction tests can fill a 1MB cache with a few entries.
func createLargeDiagnosis(sizeKB int) *Diagnosis {
	d := sampleDiagnosis("exec-large")
	d.Failure = &trace.FailureEvent{
		NodeName: "NotifyBilling",
		Message:  strings.Repeat("x", sizeKB*1024),
	}
	return d
}
