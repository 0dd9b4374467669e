package diagnosis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/varenko/inquest/internal/logging"
	"github.com/varenko/inquest/internal/trace"
)

// CacheConfig holds diagnosis cache configuration.
type CacheConfig struct {
	MaxMemoryMB int64         // max memory in MB
	TTL         time.Duration // entry TTL
	Enabled     bool
}

// DefaultCacheConfig returns the default cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxMemoryMB: 32,
		TTL:         5 * time.Minute,
		Enabled:     false,
	}
}

// cachedDiagnosis wraps a Diagnosis with size tracking and TTL.
type cachedDiagnosis struct {
	diagnosis *Diagnosis
	size      int64 // estimated memory size in bytes
	expiresAt time.Time
}

// CacheStats represents cache statistics.
type CacheStats struct {
	MaxMemory       int64   `json:"maxMemory"`
	UsedMemory      int64   `json:"usedMemory"`
	AvailableMemory int64   `json:"availableMemory"`
	Items           int     `json:"items"`
	Hits            uint64  `json:"hits"`
	Misses          uint64  `json:"misses"`
	Evictions       uint64  `json:"evictions"`
	Expired         uint64  `json:"expired"`
	HitRate         float64 `json:"hitRate"` // 0.0-1.0
}

// Cache is an LRU cache for diagnosis results with TTL and a memory limit.
// Diagnosis is deterministic for a given trace, history, and engine
// configuration, so entries are scoped to one engine: rebuild the engine
// (and its cache) when the configuration changes.
type Cache struct {
	lru        *lru.Cache[string, *cachedDiagnosis]
	maxMemory  int64 // max memory in bytes
	usedMemory int64 // written under mu, read atomically
	ttl        time.Duration
	mu         sync.RWMutex
	logger     *logging.Logger

	// Metrics (atomic)
	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64
}

// NewCache creates a diagnosis cache with the given configuration.
func NewCache(config CacheConfig, logger *logging.Logger) (*Cache, error) {
	if config.MaxMemoryMB <= 0 {
		return nil, fmt.Errorf("MaxMemoryMB must be positive, got %d", config.MaxMemoryMB)
	}
	if config.TTL <= 0 {
		return nil, fmt.Errorf("TTL must be positive, got %v", config.TTL)
	}

	c := &Cache{
		maxMemory: config.MaxMemoryMB * 1024 * 1024,
		ttl:       config.TTL,
		logger:    logger,
	}

	lruCache, err := lru.NewWithEvict[string, *cachedDiagnosis](10000, func(key string, value *cachedDiagnosis) {
		c.onEvict(key, value)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	c.lru = lruCache
	c.logger.Debug("Diagnosis cache initialized: maxMemory=%dMB, TTL=%v", config.MaxMemoryMB, config.TTL)
	return c, nil
}

// Key derives the cache key for a diagnosis request. The trace fingerprint
// alone is not enough: prior executions feed history-sensitive predicates,
// so they hash into the key too.
func Key(tr *trace.ExecutionTrace, history []trace.ExecutionSummary) string {
	h := sha256.New()
	io.WriteString(h, tr.Fingerprint())
	for _, e := range history {
		fmt.Fprintf(h, "|%s:%s:%d", e.ExecutionID, e.Status, e.StoppedAt.UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) onEvict(key string, entry *cachedDiagnosis) {
	atomic.AddUint64(&c.evictions, 1)
	atomic.AddInt64(&c.usedMemory, -entry.size)
	c.logger.Debug("Diagnosis cache EVICT: key=%s, size=%dB, usedMem=%dKB/%dKB",
		shortKey(key), entry.size, atomic.LoadInt64(&c.usedMemory)/1024, c.maxMemory/1024)
}

// Get retrieves a cached diagnosis, reporting false when absent or expired.
func (c *Cache) Get(key string) (*Diagnosis, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.lru.Get(key)
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		atomic.AddUint64(&c.expired, 1)
		atomic.AddUint64(&c.misses, 1)
		// Expired entries stay until the next Put or eviction handles them.
		return nil, false
	}

	atomic.AddUint64(&c.hits, 1)
	return entry.diagnosis, true
}

// Put stores a diagnosis under the given key.
func (c *Cache) Put(key string, d *Diagnosis) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := estimateDiagnosisSize(d)

	if existing, ok := c.lru.Peek(key); ok {
		atomic.AddInt64(&c.usedMemory, -existing.size)
		c.lru.Remove(key)
	}

	currentUsed := atomic.LoadInt64(&c.usedMemory)
	if currentUsed+size > c.maxMemory {
		for currentUsed+size > c.maxMemory && c.lru.Len() > 0 {
			c.lru.RemoveOldest()
			currentUsed = atomic.LoadInt64(&c.usedMemory)
		}
		if currentUsed+size > c.maxMemory {
			c.logger.Warn("Diagnosis cache PUT REJECTED: key=%s, size=%dB, reason=exceeds_memory",
				shortKey(key), size)
			return
		}
	}

	c.lru.Add(key, &cachedDiagnosis{
		diagnosis: d,
		size:      size,
		expiresAt: time.Now().Add(c.ttl),
	})
	atomic.AddInt64(&c.usedMemory, size)
}

// Invalidate removes a specific entry.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.lru.Peek(key); ok {
		atomic.AddInt64(&c.usedMemory, -entry.size)
		c.lru.Remove(key)
	}
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	atomic.StoreInt64(&c.usedMemory, 0)
	c.logger.Debug("Diagnosis cache CLEAR: all entries removed")
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)
	total := hits + misses

	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	usedMemory := atomic.LoadInt64(&c.usedMemory)
	return CacheStats{
		MaxMemory:       c.maxMemory,
		UsedMemory:      usedMemory,
		AvailableMemory: c.maxMemory - usedMemory,
		Items:           c.lru.Len(),
		Hits:            hits,
		Misses:          misses,
		Evictions:       atomic.LoadUint64(&c.evictions),
		Expired:         atomic.LoadUint64(&c.expired),
		HitRate:         hitRate,
	}
}

// estimateDiagnosisSize estimates the memory footprint of a diagnosis via
// its JSON serialization plus struct overhead.
func estimateDiagnosisSize(d *Diagnosis) int64 {
	if d == nil {
		return 0
	}
	b, err := json.Marshal(d)
	if err != nil {
		return 1024
	}
	return int64(len(b)) + 200
}

func shortKey(key string) string {
	if len(key) > 16 {
		return key[:16]
	}
	return key
}
