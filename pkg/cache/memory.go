package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
)

// MemoryConfig defines in-process cache limits
type MemoryConfig struct {
	MaxEntries      int           // no limit if zero
	CleanupInterval time.Duration // janitor period, default 1m, negative disables the janitor
	Clock           func() time.Time
}

// Memory is an in-process cache. Expired entries are dropped lazily on read and periodically by the janitor.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]memEntry
	maxEntries int
	now        func() time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory makes in-memory cache and starts its janitor
func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}

	m := &Memory{
		entries:    make(map[string]memEntry),
		maxEntries: cfg.MaxEntries,
		now:        cfg.Clock,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	if cfg.CleanupInterval < 0 {
		close(m.done)
		return m
	}
	go m.janitor(cfg.CleanupInterval)
	return m
}

// Get returns unexpired value for the key
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		// entry may have been refreshed between the locks
		if cur, ok := m.entries[key]; ok && !m.now().Before(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores a copy of the value
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl <= 0 {
		delete(m.entries, key)
		return
	}

	if _, exists := m.entries[key]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.evictUnsafe()
	}

	m.entries[key] = memEntry{value: append([]byte(nil), value...), expiresAt: m.now().Add(ttl)}
}

// InvalidatePrefix removes all matching entries, expired or not
func (m *Memory) InvalidatePrefix(_ context.Context, prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
			count++
		}
	}
	return count
}

// Len returns number of stored entries, including expired ones not collected yet
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close stops the janitor
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

// evictUnsafe drops expired entries, and if none expired the one closest to expiry
func (m *Memory) evictUnsafe() {
	if m.deleteExpiredUnsafe() > 0 {
		return
	}
	var oldestKey string
	var oldest time.Time
	for key, e := range m.entries {
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = key, e.expiresAt
		}
	}
	delete(m.entries, oldestKey)
}

func (m *Memory) deleteExpiredUnsafe() int {
	now := m.now()
	count := 0
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
			count++
		}
	}
	return count
}

func (m *Memory) janitor(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			n := m.deleteExpiredUnsafe()
			m.mu.Unlock()
			if n > 0 {
				lgr.Printf("[DEBUG] cache janitor removed %d expired entries", n)
			}
		}
	}
}
