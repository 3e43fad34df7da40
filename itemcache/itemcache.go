// Package itemcache provides the bounded, TTL-aware item-description
// cache spec.md §9's design notes call for in place of the original's
// "mutable global item-description LFU cache": an injected interface
// with real capacity limits, not implicit process-wide state. The cache
// itself is out of the spec's core (item-description caching is listed
// among spec.md §1's external collaborators) — the tradeoffer package
// fills item names from it, and those names are what the offer
// package's glitch check inspects.
package itemcache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// Key identifies one asset description, independent of which offer it
// showed up in.
type Key struct {
	GameID    uint32
	ContextID uint64
	ClassID   uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d:%d", k.GameID, k.ContextID, k.ClassID)
}

type entry struct {
	name      string
	expiresAt time.Time
}

// Cache is a bounded, TTL-expiring name lookup backed by
// hashicorp/golang-lru. The zero value is not usable; construct with
// New.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache
	ttl time.Duration
	now func() time.Time
}

// New creates a Cache holding at most capacity entries, each valid for
// ttl after insertion.
func New(capacity int, ttl time.Duration) (*Cache, error) {
	l, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l, ttl: ttl, now: time.Now}, nil
}

// Put records the display name for key.
func (c *Cache) Put(key Key, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key.String(), entry{name: name, expiresAt: c.now().Add(c.ttl)})
}

// Name returns the cached display name for key, and whether it was
// found and not expired.
func (c *Cache) Name(key Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(key.String())
	if !ok {
		return "", false
	}
	e := v.(entry)
	if c.now().After(e.expiresAt) {
		c.lru.Remove(key.String())
		return "", false
	}
	return e.name, true
}

// Len reports the number of live entries, including ones that have
// expired but not yet been evicted by a Name lookup.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
