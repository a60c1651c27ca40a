// Package cache stores task listings and counts in Redis (cache-aside) and
// offers an in-process fallback with the same semantics.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the subset of cache operations the services need.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
	// Generation returns scope's invalidation counter, zero if never advanced.
	Generation(ctx context.Context, scope string) (int64, error)
	// Advance increments the counter of every scope.
	Advance(ctx context.Context, scopes ...string) error
}

// Stats tracks cache statistics.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Sets    uint64
	Deletes uint64
	Errors  uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Sets      uint64  `json:"sets"`
	Deletes   uint64  `json:"deletes"`
	Errors    uint64  `json:"errors"`
	HitRate   float64 `json:"hit_rate"`
	TotalGets uint64  `json:"total_gets"`
}

func (s *Stats) snapshot() StatsSnapshot {
	hits := atomic.LoadUint64(&s.Hits)
	misses := atomic.LoadUint64(&s.Misses)
	total := hits + misses

	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return StatsSnapshot{
		Hits:      hits,
		Misses:    misses,
		Sets:      atomic.LoadUint64(&s.Sets),
		Deletes:   atomic.LoadUint64(&s.Deletes),
		Errors:    atomic.LoadUint64(&s.Errors),
		HitRate:   rate,
		TotalGets: total,
	}
}

// RedisCache is a JSON cache on top of Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	stats  Stats
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get decodes the cached value for key into dest and reports whether it was found.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			atomic.AddUint64(&c.stats.Misses, 1)
			return false, nil
		}
		atomic.AddUint64(&c.stats.Errors, 1)
		return false, fmt.Errorf("cache get: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return false, fmt.Errorf("cache unmarshal: %w", err)
	}

	atomic.AddUint64(&c.stats.Hits, 1)
	return true, nil
}

// Set stores value under key with the default TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache marshal: %w", err)
	}

	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache set: %w", err)
	}

	atomic.AddUint64(&c.stats.Sets, 1)
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}

	n, err := c.client.Del(ctx, full...).Result()
	if err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache delete: %w", err)
	}
	atomic.AddUint64(&c.stats.Deletes, uint64(n))
	return nil
}

// DeletePattern removes every key matching the glob pattern, using SCAN so
// Redis is never blocked by KEYS.
func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+pattern, 100).Result()
		if err != nil {
			atomic.AddUint64(&c.stats.Errors, 1)
			return fmt.Errorf("cache scan: %w", err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				atomic.AddUint64(&c.stats.Errors, 1)
				return fmt.Errorf("cache delete: %w", err)
			}
			atomic.AddUint64(&c.stats.Deletes, uint64(len(keys)))
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (c *RedisCache) Generation(ctx context.Context, scope string) (int64, error) {
	gen, err := c.client.Get(ctx, c.prefix+GenerationKey(scope)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		atomic.AddUint64(&c.stats.Errors, 1)
		return 0, fmt.Errorf("cache generation: %w", err)
	}
	return gen, nil
}

// Advance bumps the generation counters in one round trip. Counters carry no
// TTL so a reader never sees one go backwards.
func (c *RedisCache) Advance(ctx context.Context, scopes ...string) error {
	if len(scopes) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, scope := range scopes {
			pipe.Incr(ctx, c.prefix+GenerationKey(scope))
		}
		return nil
	})
	if err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache advance: %w", err)
	}
	return nil
}

func (c *RedisCache) GetStats() StatsSnapshot {
	return c.stats.snapshot()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
