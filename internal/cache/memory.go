package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCache keeps JSON encoded entries in process. It is used when Redis
// is disabled and in tests.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu          sync.Mutex
	entries     map[string]memoryEntry
	generations map[string]int64
	stats       Stats
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:         ttl,
		now:         time.Now,
		entries:     make(map[string]memoryEntry),
		generations: make(map[string]int64),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.ttl > 0 && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		atomic.AddUint64(&c.stats.Misses, 1)
		return false, nil
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return false, fmt.Errorf("cache unmarshal: %w", err)
	}
	atomic.AddUint64(&c.stats.Hits, 1)
	return true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache marshal: %w", err)
	}

	c.mu.Lock()
	c.entries[key] = memoryEntry{data: data, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()

	atomic.AddUint64(&c.stats.Sets, 1)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if _, ok := c.entries[k]; ok {
			delete(c.entries, k)
			atomic.AddUint64(&c.stats.Deletes, 1)
		}
	}
	return nil
}

// DeletePattern uses path.Match globbing, which agrees with Redis for the
// '*' patterns used here.
func (c *MemoryCache) DeletePattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		matched, err := path.Match(pattern, k)
		if err != nil {
			return fmt.Errorf("cache pattern %q: %w", pattern, err)
		}
		if matched {
			delete(c.entries, k)
			atomic.AddUint64(&c.stats.Deletes, 1)
		}
	}
	return nil
}

func (c *MemoryCache) Generation(_ context.Context, scope string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[scope], nil
}

func (c *MemoryCache) Advance(_ context.Context, scopes ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, scope := range scopes {
		c.generations[scope]++
	}
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) GetStats() StatsSnapshot {
	return c.stats.snapshot()
}
