// cooldown.go enforces the per-(hub,email) send cooldown on code issuance:
// one code email per address per window, regardless of how many source IPs
// request it. This is separate from the per-caller route limits in the
// middleware — it protects the victim mailbox, not the server.
package portal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSendCooldown is returned by RequestCode when the per-(hub,email) cooldown
// rejects the request. Handlers map it to the same uniform rate-limited
// response the middleware uses.
var ErrSendCooldown = errors.New("send cooldown active")

// Cooldown answers whether an action keyed by a string may run now.
// Implementations fail open on infrastructure errors: availability of the
// portal wins over strictness of a spam guard.
type Cooldown interface {
	Allow(ctx context.Context, key string) bool
}

// MemoryCooldown is the in-process Cooldown used when Redis is not configured.
// Suitable for single-replica deployments.
type MemoryCooldown struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewMemoryCooldown creates an in-process cooldown with the given window.
func NewMemoryCooldown(window time.Duration) *MemoryCooldown {
	return &MemoryCooldown{
		window: window,
		now:    time.Now,
		last:   make(map[string]time.Time),
	}
}

// Allow reports whether the key is outside its cooldown window, and starts a
// new window when it is.
func (c *MemoryCooldown) Allow(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.last[key]; ok && now.Sub(last) < c.window {
		return false
	}

	// Opportunistic pruning keeps the map bounded without a background ticker.
	if len(c.last) >= 4096 {
		for k, t := range c.last {
			if now.Sub(t) >= c.window {
				delete(c.last, k)
			}
		}
	}

	c.last[key] = now
	return true
}

// RedisCooldown is the Cooldown used when Redis is configured, so the window
// holds across replicas. The first request in a window creates a counter with
// the window as TTL; later requests within the TTL are rejected.
type RedisCooldown struct {
	client *redis.Client
	window time.Duration
}

// NewRedisCooldown creates a Redis-backed cooldown with the given window.
func NewRedisCooldown(client *redis.Client, window time.Duration) *RedisCooldown {
	return &RedisCooldown{client: client, window: window}
}

// Allow reports whether the key is outside its cooldown window. Redis
// failures are logged and allowed through.
func (c *RedisCooldown) Allow(ctx context.Context, key string) bool {
	count, err := c.client.Incr(ctx, "cooldown:"+key).Result()
	if err != nil {
		slog.Error("cooldown check failed, allowing request", "error", err)
		return true
	}
	if count == 1 {
		if err := c.client.Expire(ctx, "cooldown:"+key, c.window).Err(); err != nil {
			slog.Error("cooldown expire failed", "error", err)
		}
		return true
	}
	return false
}
