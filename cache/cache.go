// Package cache provides an in-memory TTL cache with a background sweep.
// api.Server constructs one and closes it on shutdown; neither the engine
// nor any API handler reads or writes it.
package cache

import (
	"sync"
	"time"
)

// Item is a cached value with expiry and access bookkeeping.
type Item struct {
	Value       interface{}
	ExpiresAt   time.Time
	AccessCount int64
	LastAccess  time.Time
}

// Stats reports cache hit/miss performance.
type Stats struct {
	Hits        int64
	Misses      int64
	HitRate     float64
	TotalItems  int64
	LastCleanup time.Time
}

// Cache is a single-level, TTL-expiring, in-memory cache safe for
// concurrent use.
type Cache struct {
	items           map[string]*Item
	mu              sync.RWMutex
	defaultTTL      time.Duration
	stats           Stats
	statsMu         sync.RWMutex
	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// New creates a Cache with the given default entry TTL and background
// cleanup interval.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	c := &Cache{
		items:           make(map[string]*Item),
		defaultTTL:      defaultTTL,
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists || time.Now().After(item.ExpiresAt) {
		c.recordMiss()
		return nil, false
	}

	c.mu.Lock()
	item.AccessCount++
	item.LastAccess = time.Now()
	c.mu.Unlock()

	c.recordHit()
	return item.Value, true
}

// Set stores value under key with ttl (or the cache's default if ttl <= 0).
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.items[key] = &Item{
		Value:      value,
		ExpiresAt:  time.Now().Add(ttl),
		LastAccess: time.Now(),
	}
	c.mu.Unlock()
}

// Delete removes key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.items = make(map[string]*Item)
	c.mu.Unlock()
}

// Len reports the current number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns a snapshot of hit/miss counters.
func (c *Cache) Stats() Stats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	stats := c.stats
	stats.TotalItems = int64(c.Len())
	return stats
}

// Close stops the background cleanup goroutine.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Cache) recordHit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.updateHitRate()
	c.statsMu.Unlock()
}

func (c *Cache) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.updateHitRate()
	c.statsMu.Unlock()
}

func (c *Cache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total) * 100
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache) sweep() {
	now := time.Now()
	c.mu.Lock()
	for key, item := range c.items {
		if now.After(item.ExpiresAt) {
			delete(c.items, key)
		}
	}
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.LastCleanup = now
	c.statsMu.Unlock()
}
