package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type replayEntry struct {
	body      json.RawMessage
	expiresAt time.Time
}

// InMemoryReplayCache implements ReplayCache with a map. Suitable for
// single-instance deployments and tests.
type InMemoryReplayCache struct {
	mu        sync.RWMutex
	entries   map[string]replayEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryReplayCache creates the cache and starts a background
// goroutine that evicts expired entries.
func NewInMemoryReplayCache() *InMemoryReplayCache {
	c := &InMemoryReplayCache{
		entries:  make(map[string]replayEntry),
		stopChan: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.cleanupLoop()
	return c
}

// Get returns the cached response for the key, if present and unexpired
func (c *InMemoryReplayCache) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.body, true, nil
}

// Put stores the response body under the key with a TTL
func (c *InMemoryReplayCache) Put(_ context.Context, key string, body json.RawMessage, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = replayEntry{
		body:      append(json.RawMessage(nil), body...),
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *InMemoryReplayCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

func (c *InMemoryReplayCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *InMemoryReplayCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Size returns the number of entries in the cache (for tests)
func (c *InMemoryReplayCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ ReplayCache = (*InMemoryReplayCache)(nil)
