package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/redis/go-redis/v9"
)

// RedisConfig defines connection to the redis cache backend
type RedisConfig struct {
	URL     string        // e.g. redis://localhost:6379/0
	Prefix  string        // namespace of all keys, default "spacefeed:cache:"
	Timeout time.Duration // per operation, default 250ms
}

// Redis is a cache stored in redis, shared by all service instances.
// Every redis failure degrades to a miss for Get and to a no-op for Set and InvalidatePrefix.
type Redis struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedis connects to redis. Unreachable server is not an error, the cache works as always-miss until it's back.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	r := NewRedisWithClient(redis.NewClient(opts), cfg.Prefix, cfg.Timeout)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		lgr.Printf("[WARN] redis cache at %s is not reachable, serving without cache: %v", opts.Addr, err)
	} else {
		lgr.Printf("[INFO] redis cache connected to %s", opts.Addr)
	}
	return r, nil
}

// NewRedisWithClient makes cache over existing redis client
func NewRedisWithClient(client *redis.Client, prefix string, timeout time.Duration) *Redis {
	if prefix == "" {
		prefix = "spacefeed:cache:"
	}
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &Redis{client: client, prefix: prefix, timeout: timeout}
}

// Get returns cached value, expiry is enforced by redis itself
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			lgr.Printf("[WARN] cache get %s failed, treated as miss: %v", key, err)
		}
		return nil, false
	}
	return data, true
}

// Set stores value with PX expiry
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var err error
	if ttl <= 0 {
		err = r.client.Del(ctx, r.prefix+key).Err()
	} else {
		err = r.client.Set(ctx, r.prefix+key, value, ttl).Err()
	}
	if err != nil {
		lgr.Printf("[WARN] cache set %s failed: %v", key, err)
	}
}

// InvalidatePrefix collects all matching keys with SCAN first and deletes them in batches after,
// deleting while scanning would move keys under the cursor
func (r *Redis) InvalidatePrefix(ctx context.Context, prefix string) int {
	ctx, cancel := context.WithTimeout(ctx, 20*r.timeout)
	defer cancel()

	match := globEscape(r.prefix+prefix) + "*"
	seen := map[string]struct{}{}
	var keys []string
	var cursor uint64
	for {
		page, next, err := r.client.Scan(ctx, cursor, match, 500).Result()
		if err != nil {
			lgr.Printf("[WARN] cache invalidate %q failed, scan: %v", prefix, err)
			return 0
		}
		for _, k := range page {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	count := 0
	for batch := range slices.Chunk(keys, 500) {
		n, err := r.client.Del(ctx, batch...).Result()
		if err != nil {
			lgr.Printf("[WARN] cache invalidate %q failed after %d keys: %v", prefix, count, err)
			return count
		}
		count += int(n)
	}
	return count
}

// Close closes redis connection
func (r *Redis) Close() error {
	return r.client.Close()
}

// globEscape escapes redis MATCH pattern special characters
func globEscape(s string) string {
	var sb strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}
