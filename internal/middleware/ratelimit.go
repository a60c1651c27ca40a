// internal/middleware/ratelimit.go
package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitResult is the outcome of one limiter check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter counts requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (*RateLimitResult, error)
	Limit() int
}

// RateLimitConfig is a request budget per window.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// slidingWindowScript trims the sorted set to the window, then admits the
// request if fewer than limit members remain.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local counter_key = KEYS[2]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)

	if count < limit then
		local seq = redis.call('INCR', counter_key)
		redis.call('ZADD', key, now, now .. ':' .. seq)
		redis.call('PEXPIRE', key, window_ms)
		redis.call('PEXPIRE', counter_key, window_ms)
		return {1, limit - count - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry_after = 0
	if #oldest >= 2 then
		retry_after = oldest[2] + window_ms - now
	end
	return {0, 0, retry_after}
`)

// SlidingWindowLimiter keeps request timestamps in a Redis sorted set so the
// budget is shared by every server instance.
type SlidingWindowLimiter struct {
	client *redis.Client
	config RateLimitConfig
	prefix string
	now    func() time.Time
}

func NewSlidingWindowLimiter(client *redis.Client, config RateLimitConfig, prefix string) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{client: client, config: config, prefix: prefix, now: time.Now}
}

func (l *SlidingWindowLimiter) Limit() int { return l.config.Requests }

func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	now := l.now()
	redisKey := l.prefix + key

	res, err := slidingWindowScript.Run(ctx, l.client, []string{redisKey, redisKey + ":seq"},
		now.UnixMilli(),
		now.Add(-l.config.Window).UnixMilli(),
		l.config.Requests,
		l.config.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("run rate limit script: %w", err)
	}
	if len(res) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result length: %d", len(res))
	}

	out := &RateLimitResult{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
		ResetAt:   now.Add(l.config.Window),
	}
	if !out.Allowed && res[2] > 0 {
		out.RetryAfter = time.Duration(res[2]) * time.Millisecond
	}
	return out, nil
}

// LocalLimiter is an in-process token bucket per key, used when Redis is
// not configured.
type LocalLimiter struct {
	config RateLimitConfig
	now    func() time.Time

	mu        sync.Mutex
	buckets   map[string]*localBucket
	lastSweep time.Time
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalLimiter(config RateLimitConfig) *LocalLimiter {
	return &LocalLimiter{
		config:  config,
		now:     time.Now,
		buckets: make(map[string]*localBucket),
	}
}

func (l *LocalLimiter) Limit() int { return l.config.Requests }

func (l *LocalLimiter) Allow(_ context.Context, key string) (*RateLimitResult, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		every := l.config.Window / time.Duration(l.config.Requests)
		b = &localBucket{limiter: rate.NewLimiter(rate.Every(every), l.config.Requests)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	out := &RateLimitResult{ResetAt: now.Add(l.config.Window)}
	if b.limiter.AllowN(now, 1) {
		out.Allowed = true
		out.Remaining = int(b.limiter.TokensAt(now))
		return out, nil
	}

	r := b.limiter.ReserveN(now, 1)
	out.RetryAfter = r.DelayFrom(now)
	r.CancelAt(now)
	return out, nil
}

// sweep drops buckets idle for a full window. Callers hold l.mu.
func (l *LocalLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.config.Window {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.config.Window {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	// KeyFunc picks the bucket for a request. Defaults to the client IP.
	KeyFunc func(c *fiber.Ctx) string
	// OnLimit is called for every rejected request.
	OnLimit func(c *fiber.Ctx, key string)
}

// RateLimit rejects requests over the limiter's budget with 429. Limiter
// failures let the request through.
func RateLimit(limiter Limiter, opts RateLimitOptions) fiber.Handler {
	keyFunc := opts.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIP
	}

	return func(c *fiber.Ctx) error {
		// limiters keep the key after the handler returns
		key := utils.CopyString(keyFunc(c))
		if key == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "forbidden",
				"message": "unable to determine client address",
			})
		}

		result, err := limiter.Allow(c.UserContext(), key)
		if err != nil {
			c.Set("X-RateLimit-Error", "unavailable")
			return c.Next()
		}

		setRateLimitHeaders(c, result, limiter.Limit())

		if !result.Allowed {
			if opts.OnLimit != nil {
				opts.OnLimit(c, key)
			}
			return sendRateLimitExceeded(c, result)
		}

		return c.Next()
	}
}

func setRateLimitHeaders(c *fiber.Ctx, result *RateLimitResult, limit int) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func sendRateLimitExceeded(c *fiber.Ctx, result *RateLimitResult) error {
	retryAfter := int(result.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))

	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":       "rate_limited",
		"message":     fmt.Sprintf("rate limit exceeded, retry after %d seconds", retryAfter),
		"retry_after": retryAfter,
	})
}
