// ratelimit.go provides Gin middleware that enforces per-caller request
// limits on the public portal endpoints, returning a uniform 429 when the
// configured requests-per-minute threshold is exceeded. The rejection body is
// deliberately identical across causes and distinct from validation and
// verification failures.
//
// Two backends implement the same Limiter interface: an in-memory token
// bucket for single-replica deployments, and a Redis GCRA limiter
// (redis_rate) so limits hold across replicas. Both fail open on
// infrastructure errors.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/clienthub/clienthub/internal/telemetry"
)

// RateLimitConfig holds configuration for one rate-limited route class.
type RateLimitConfig struct {
	// RequestsPerMinute is the maximum number of requests allowed per minute.
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed.
	BurstSize int
	// CleanupInterval is how often the in-memory backend prunes idle entries.
	CleanupInterval time.Duration
}

// PublicReadRateLimitConfig limits unauthenticated reads such as the
// access-method probe.
func PublicReadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 30,
		BurstSize:         10,
		CleanupInterval:   5 * time.Minute,
	}
}

// CodeRequestRateLimitConfig limits code issuance per (caller, hub). The
// stricter per-(hub,email) cooldown lives in the portal service because the
// email is only known after body parsing.
func CodeRequestRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 3,
		BurstSize:         3,
		CleanupInterval:   5 * time.Minute,
	}
}

// VerifyRateLimitConfig limits code and device verification per (caller, hub).
func VerifyRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 5,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// Limiter answers whether a request under the given key should be allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
	Stop()
}

// tokenBucketEntry tracks remaining tokens for a single key.
type tokenBucketEntry struct {
	tokens     float64
	lastUpdate time.Time
}

// TokenBucketLimiter implements Limiter with in-memory token buckets.
type TokenBucketLimiter struct {
	config  RateLimitConfig
	entries map[string]*tokenBucketEntry
	mu      sync.Mutex
	stopCh  chan struct{}
}

// NewTokenBucketLimiter creates an in-memory limiter with the given config.
func NewTokenBucketLimiter(config RateLimitConfig) *TokenBucketLimiter {
	rl := &TokenBucketLimiter{
		config:  config,
		entries: make(map[string]*tokenBucketEntry),
		stopCh:  make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// cleanup periodically removes idle entries.
func (rl *TokenBucketLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, entry := range rl.entries {
				if now.Sub(entry.lastUpdate) > 10*time.Minute {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *TokenBucketLimiter) Stop() {
	close(rl.stopCh)
}

// Allow checks if a request from the given key should be allowed.
func (rl *TokenBucketLimiter) Allow(_ context.Context, key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, exists := rl.entries[key]
	if !exists {
		rl.entries[key] = &tokenBucketEntry{
			tokens:     float64(rl.config.BurstSize) - 1,
			lastUpdate: now,
		}
		return true
	}

	elapsed := now.Sub(entry.lastUpdate)
	tokensPerSecond := float64(rl.config.RequestsPerMinute) / 60.0
	entry.tokens = min(float64(rl.config.BurstSize), entry.tokens+elapsed.Seconds()*tokensPerSecond)
	entry.lastUpdate = now

	if entry.tokens >= 1 {
		entry.tokens--
		return true
	}
	return false
}

// RedisLimiter implements Limiter with the GCRA algorithm over Redis.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewRedisLimiter creates a Redis-backed limiter with the given config.
func NewRedisLimiter(client *redis.Client, config RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   config.RequestsPerMinute,
			Period: time.Minute,
			Burst:  config.BurstSize,
		},
	}
}

// Allow checks if a request from the given key should be allowed. Redis
// failures are logged and allowed through.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) bool {
	res, err := rl.limiter.Allow(ctx, key, rl.limit)
	if err != nil {
		slog.Error("rate limit check failed, allowing request", "error", err)
		return true
	}
	return res.Allowed > 0
}

// Stop is a no-op for the Redis backend.
func (rl *RedisLimiter) Stop() {}

// NewLimiter picks the Redis backend when a client is supplied and the
// in-memory backend otherwise.
func NewLimiter(client *redis.Client, config RateLimitConfig) Limiter {
	if client != nil {
		return NewRedisLimiter(client, config)
	}
	return NewTokenBucketLimiter(config)
}

// RateLimitMiddleware creates a Gin middleware that rate limits requests
// under a per-caller key, scoped to the hub when the route carries one.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitKey(c)

		if !limiter.Allow(c.Request.Context(), key) {
			path := c.FullPath()
			if path == "" {
				path = "<no-route>"
			}
			telemetry.RateLimitRejectionsTotal.WithLabelValues(path).Inc()
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}

// rateLimitKey scopes limits per client IP and, when present, per hub, so one
// noisy hub cannot exhaust a caller's budget everywhere.
func rateLimitKey(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	key := "ip:" + ip
	if hubID := c.Param("hubId"); hubID != "" {
		key += "|hub:" + hubID
	}
	return key
}

// Retained for older Go toolchains that predate the builtin.
func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
