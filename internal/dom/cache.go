package dom

import "sync"

// PathCache memoizes location paths per node handle for one loaded document.
// Handles from a previous document are never served: Sync drops everything when the
// document id changes.
type PathCache struct {
	mu       sync.RWMutex
	document string
	paths    map[Handle][]string
}

// NewPathCache returns an empty cache
func NewPathCache() *PathCache {
	return &PathCache{paths: make(map[Handle][]string)}
}

// Sync scopes the cache to document, discarding entries when it differs from the last one seen.
// It reports whether the cache was reset.
func (c *PathCache) Sync(document string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.document == document {
		return false
	}
	c.document = document
	c.paths = make(map[Handle][]string)
	return true
}

// Get returns the cached paths for h
func (c *PathCache) Get(h Handle) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.paths[h]
	return p, ok
}

// Put stores the paths computed for h
func (c *PathCache) Put(h Handle, paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths[h] = paths
}

// Reset empties the cache. Call it whenever the page navigates or reloads.
func (c *PathCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.document = ""
	c.paths = make(map[Handle][]string)
}

// Len is the number of cached handles
func (c *PathCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.paths)
}
