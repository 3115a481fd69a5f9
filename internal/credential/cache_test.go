// ABOUTME: Tests for the credential TTL cache.
// ABOUTME: Validates TTL expiry with an injected clock, eviction, and concurrency safety.

package credential

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(ttl time.Duration, size int) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(ttl, size)
	c.now = clock.Now
	return c, clock
}

func TestCache_GetMiss(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)
	defer c.Close()

	_, ok := c.Get("github.com")
	assert.False(t, ok)
}

func TestCache_PutGet(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)
	defer c.Close()

	c.Put("github.com", CachedCredential{Token: "abc123", Username: "x-access-token"})
	got, ok := c.Get("github.com")
	assert.True(t, ok)
	assert.Equal(t, "abc123", got.Token)
	assert.Equal(t, clock.Now(), got.Timestamp)
}

func TestCache_Expires(t *testing.T) {
	c, clock := newTestCache(60*time.Second, 10)
	defer c.Close()

	c.Put("github.com", CachedCredential{Token: "abc123"})

	clock.Advance(59 * time.Second)
	_, ok := c.Get("github.com")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("github.com")
	assert.False(t, ok, "entry at exactly TTL is stale")
}

func TestCache_RunCleanupDropsExpired(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)
	defer c.Close()

	c.Put("a", CachedCredential{Token: "1"})
	clock.Advance(30 * time.Second)
	c.Put("b", CachedCredential{Token: "2"})
	clock.Advance(45 * time.Second)

	c.runCleanup()
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("b")
	assert.True(t, ok)
}

func TestCache_EvictsOldest(t *testing.T) {
	c, _ := newTestCache(time.Minute, 2)
	defer c.Close()

	c.Put("a", CachedCredential{Token: "1"})
	c.Put("b", CachedCredential{Token: "2"})
	c.Put("a", CachedCredential{Token: "1b"}) // refresh moves a to the back
	c.Put("c", CachedCredential{Token: "3"})

	_, ok := c.Get("b")
	assert.False(t, ok)
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1b", got.Token)
	assert.Equal(t, 2, c.Len())
}

func TestCache_InvalidateAndClear(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)
	defer c.Close()

	c.Put("a", CachedCredential{Token: "1"})
	c.Put("b", CachedCredential{Token: "2"})

	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_CloseIdempotent(t *testing.T) {
	c := NewCache(time.Minute, 10)
	c.Close()
	c.Close()
}

func TestCache_Concurrent(t *testing.T) {
	c := NewCache(time.Minute, 50)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				host := fmt.Sprintf("host-%d", (n+j)%60)
				c.Put(host, CachedCredential{Token: "t"})
				c.Get(host)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
