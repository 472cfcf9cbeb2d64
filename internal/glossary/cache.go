package glossary

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache holds parsed glossaries keyed by file path. Concurrent first loads
// of one path share a single read. Entries live until [Cache.Release] or
// [Cache.Reset].
//
// All methods are safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]Entry
	group   singleflight.Group
	load    func(path string) ([]Entry, error)
}

// NewCache returns an empty Cache that reads files with [Load].
func NewCache() *Cache {
	return &Cache{entries: make(map[string][]Entry), load: Load}
}

// Get returns the glossary at path, loading it on first use. The returned
// slice is shared and must not be modified.
func (c *Cache) Get(path string) ([]Entry, error) {
	c.mu.RLock()
	e, ok := c.entries[path]
	c.mu.RUnlock()
	if ok {
		return e, nil
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		c.mu.RLock()
		e, ok := c.entries[path]
		c.mu.RUnlock()
		if ok {
			return e, nil
		}
		e, err := c.load(path)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[path] = e
		c.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Entry), nil
}

// Release drops the glossary cached for path.
func (c *Cache) Release(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// Len returns the number of cached glossaries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops every cached glossary.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string][]Entry)
	c.mu.Unlock()
}
