// Package cache implements the response cache sitting in front of store queries.
// A cache never fails its caller: backend errors are logged and reported as a miss,
// and an entry past its expiry is treated exactly as a missing one.
package cache

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Cache is a TTL key-value store of serialized responses
type Cache interface {
	// Get returns the value and true if an unexpired entry exists
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores the value with expiry now+ttl, overwriting any existing entry. Non-positive ttl removes the key.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// InvalidatePrefix removes all entries with keys starting with prefix and returns how many were removed
	InvalidatePrefix(ctx context.Context, prefix string) int
	Close() error
}

// Key makes a deterministic cache key from a resource name and query parameters.
// Parameters are sorted by name, empty values are dropped, so the same request always maps to the same key.
func Key(resource string, params url.Values) string {
	norm := url.Values{}
	for k, vals := range params {
		for _, v := range vals {
			if v = strings.TrimSpace(v); v != "" {
				norm.Add(k, v)
			}
		}
	}
	return resource + ":" + norm.Encode()
}
