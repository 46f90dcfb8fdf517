package render

import (
	"errors"
	"sync"

	"github.com/golang/groupcache/lru"
)

const defaultCacheSize = 256

var errNoEngine = errors.New("no sql engine configured")

type cacheKey struct {
	sessionID    string
	messageIndex int
	statement    string
}

// resultCache is a bounded LRU of SQL results with a per-session index so a
// reset can drop one session's entries.
type resultCache struct {
	mu        sync.Mutex
	entries   *lru.Cache
	bySession map[string]map[cacheKey]struct{}
}

func newResultCache(size int) *resultCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	c := &resultCache{
		entries:   lru.New(size),
		bySession: map[string]map[cacheKey]struct{}{},
	}
	c.entries.OnEvicted = func(key lru.Key, _ any) {
		c.unindex(key.(cacheKey))
	}
	return c
}

func (c *resultCache) get(key cacheKey) (*Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return value.(*Table), true
}

func (c *resultCache) add(key cacheKey, table *Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, table)
	keys, ok := c.bySession[key.sessionID]
	if !ok {
		keys = map[cacheKey]struct{}{}
		c.bySession[key.sessionID] = keys
	}
	keys[key] = struct{}{}
}

func (c *resultCache) forget(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.bySession[sessionID] {
		c.entries.Remove(key)
	}
	delete(c.bySession, sessionID)
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// unindex runs under mu from the eviction callback.
func (c *resultCache) unindex(key cacheKey) {
	keys := c.bySession[key.sessionID]
	delete(keys, key)
	if len(keys) == 0 {
		delete(c.bySession, key.sessionID)
	}
}
