package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is a process-local CacheService. Values are stored JSON encoded
// so callers never share mutable state with the cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	maxSize int
	now     func() time.Time
}

// NewMemoryCache returns a cache holding at most maxSize entries (unbounded when <= 0).
func NewMemoryCache(maxSize int) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]entry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return ErrMiss
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		_ = c.Delete(context.Background(), key)
		return ErrMiss
	}
	return json.Unmarshal(e.data, dest)
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries[key] = entry{data: data, expiresAt: expiresAt}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLocked drops expired entries, or the one closest to expiry when none are.
func (c *MemoryCache) evictLocked() {
	now := c.now()
	var (
		victim string
		soon   time.Time
	)
	for k, e := range c.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(c.entries, k)
			continue
		}
		if victim == "" || (!e.expiresAt.IsZero() && (soon.IsZero() || e.expiresAt.Before(soon))) {
			victim, soon = k, e.expiresAt
		}
	}
	if len(c.entries) >= c.maxSize && victim != "" {
		delete(c.entries, victim)
	}
}
