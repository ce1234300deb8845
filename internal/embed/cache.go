package embed

import (
	"sync"
	"sync/atomic"

	"github.com/ricesearch/rice-letor/internal/pkg/hash"
)

// Cache caches text vectors by text hash with LRU eviction.
type Cache struct {
	mu      sync.Mutex
	cache   map[string][]float32
	maxSize int
	order   []string // LRU order

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a new vector cache.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 10000
	}

	return &Cache{
		cache:   make(map[string][]float32),
		maxSize: maxSize,
		order:   make([]string, 0, maxSize),
	}
}

// Get retrieves a vector from cache. The returned slice must not be modified.
func (c *Cache) Get(text string) ([]float32, bool) {
	key := hash.SHA256String(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.cache[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	c.moveToEnd(key)
	return v, true
}

// Set stores a vector in cache.
func (c *Cache) Set(text string, vec []float32) {
	key := hash.SHA256String(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cache[key]; exists {
		c.cache[key] = vec
		c.moveToEnd(key)
		return
	}

	for len(c.cache) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.cache, oldest)
	}

	c.cache[key] = vec
	c.order = append(c.order, key)
}

// GetOrCompute returns the cached vector for text, computing and storing it on a miss.
func (c *Cache) GetOrCompute(text string, compute func(string) []float32) []float32 {
	if v, ok := c.Get(text); ok {
		return v
	}
	v := compute(text)
	c.Set(text, v)
	return v
}

// moveToEnd moves a key to the end of the LRU order (must hold lock).
func (c *Cache) moveToEnd(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			return
		}
	}
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	size := len(c.cache)
	c.mu.Unlock()

	return CacheStats{
		Size:    size,
		MaxSize: c.maxSize,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Size    int   `json:"size"`
	MaxSize int   `json:"max_size"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
