package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/umputun/spacefeed/pkg/metrics"
)

// Loader produces the value for a missing key
type Loader func(ctx context.Context) ([]byte, error)

// ReadThrough loads missing values and populates the cache with them.
// Concurrent misses of the same key share a single load. Loads started before an invalidation
// are neither joined by later requests nor stored.
type ReadThrough struct {
	cache       Cache
	group       singleflight.Group
	loadTimeout time.Duration

	genMu sync.RWMutex // held for reading while a load result is stored
	gen   uint64       // incremented by every invalidation
}

// NewReadThrough makes read-through wrapper over the cache, loads are bounded by loadTimeout (default 30s)
func NewReadThrough(c Cache, loadTimeout time.Duration) *ReadThrough {
	if loadTimeout <= 0 {
		loadTimeout = 30 * time.Second
	}
	return &ReadThrough{cache: c, loadTimeout: loadTimeout}
}

// Fetch returns cached value for the key or calls load and caches its result for ttl.
// Load errors are returned as is and never cached. The load outlives a cancelled caller,
// so its result still lands in the cache for the next request.
func (rt *ReadThrough) Fetch(ctx context.Context, key string, ttl time.Duration, load Loader) (data []byte, hit bool, err error) {
	if data, ok := rt.cache.Get(ctx, key); ok {
		metrics.CacheLookup(true)
		return data, true, nil
	}
	metrics.CacheLookup(false)

	rt.genMu.RLock()
	gen := rt.gen
	rt.genMu.RUnlock()

	ch := rt.group.DoChan(strconv.FormatUint(gen, 10)+"|"+key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rt.loadTimeout)
		defer cancel()
		res, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		rt.genMu.RLock()
		defer rt.genMu.RUnlock()
		if rt.gen == gen {
			rt.cache.Set(loadCtx, key, res, ttl)
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]byte), false, nil
	}
}

// InvalidatePrefix removes cached entries with the prefix. Results of loads already in flight
// are not cached, whatever their key.
func (rt *ReadThrough) InvalidatePrefix(ctx context.Context, prefix string) int {
	rt.genMu.Lock()
	rt.gen++
	rt.genMu.Unlock()
	return rt.cache.InvalidatePrefix(ctx, prefix)
}
