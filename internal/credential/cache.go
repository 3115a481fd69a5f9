// ABOUTME: Thread-safe TTL cache of resolved Git credentials keyed by host.
// ABOUTME: Bounded in size with oldest-first eviction and background cleanup.

package credential

import (
	"container/list"
	"sync"
	"time"
)

// CachedCredential is a resolved credential held in memory only. RepoPath is
// the canonical path of the repo it was resolved for.
type CachedCredential struct {
	Token     string
	Username  string
	RepoPath  string
	Timestamp time.Time
}

type cacheEntry struct {
	cred    CachedCredential
	element *list.Element
}

// Cache holds CachedCredentials for a fixed TTL. A doubly-linked list keeps
// insertion order so eviction at capacity is O(1).
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   *list.List // hosts, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// NewCache creates a cache with the given TTL and maximum size.
// A background goroutine periodically drops expired entries.
func NewCache(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns the cached credential for host if it is younger than the TTL.
func (c *Cache) Get(host string) (CachedCredential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[host]
	if !ok || c.now().Sub(entry.cred.Timestamp) >= c.ttl {
		return CachedCredential{}, false
	}
	return entry.cred, true
}

// Put stores cred for host, stamping it with the current time.
func (c *Cache) Put(host string, cred CachedCredential) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred.Timestamp = c.now()

	if entry, exists := c.entries[host]; exists {
		entry.cred = cred
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(host)
	c.entries[host] = &cacheEntry{cred: cred, element: elem}
}

// Invalidate drops host from the cache.
func (c *Cache) Invalidate(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[host]; ok {
		c.order.Remove(entry.element)
		delete(c.entries, host)
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order.Init()
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	host, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, host)
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for host, entry := range c.entries {
		if now.Sub(entry.cred.Timestamp) >= c.ttl {
			c.order.Remove(entry.element)
			delete(c.entries, host)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
