package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryCounter keeps counters in process memory, for single instance deployments
type MemoryCounter struct {
	mu        sync.Mutex
	counts    map[string]memCount
	now       func() time.Time
	lastSweep time.Time
}

type memCount struct {
	n         int64
	expiresAt time.Time
}

// NewMemoryCounter makes in-memory counter, clock defaults to time.Now
func NewMemoryCounter(clock func() time.Time) *MemoryCounter {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryCounter{counts: map[string]memCount{}, now: clock, lastSweep: clock()}
}

// Incr increments the key, an expired key restarts from one
func (c *MemoryCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= ttl {
		for k, v := range c.counts {
			if !now.Before(v.expiresAt) {
				delete(c.counts, k)
			}
		}
		c.lastSweep = now
	}

	e, ok := c.counts[key]
	if !ok || !now.Before(e.expiresAt) {
		e = memCount{expiresAt: now.Add(ttl)}
	}
	e.n++
	c.counts[key] = e
	return e.n, nil
}

// Len returns number of live counters
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.counts)
}

// RedisCounter keeps counters in redis, shared by all service instances
type RedisCounter struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisCounter makes redis counter, keys are prefixed with prefix (default "spacefeed:rl:")
func NewRedisCounter(client *redis.Client, prefix string, timeout time.Duration) *RedisCounter {
	if prefix == "" {
		prefix = "spacefeed:rl:"
	}
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &RedisCounter{client: client, prefix: prefix, timeout: timeout}
}

// Incr runs INCR and PEXPIRE in one MULTI/EXEC transaction. Keys carry the bucket number,
// so the expiry refreshed on every increment never extends a bucket past one more ttl.
func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, c.prefix+key)
	pipe.PExpire(ctx, c.prefix+key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return incr.Val(), nil
}
