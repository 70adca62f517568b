package geo

import (
	"fmt"
	"sync"

	"github.com/respstack/respstats/internal/models"
)

// Cache memoises geo lookups per coordinate cell. Many incidents share the
// same block face, so lookups repeat heavily.
type Cache interface {
	Get(key string) (map[string]models.Value, bool)
	Set(key string, attrs map[string]models.Value)
}

// CellKey buckets a coordinate to roughly ten-metre precision.
func CellKey(source string, lat, lon float64) string {
	return fmt.Sprintf("%s:%.4f,%.4f", source, lat, lon)
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(string) (map[string]models.Value, bool) { return nil, false }
func (NoopCache) Set(string, map[string]models.Value)        {}

// MemoryCache is a concurrency-safe in-process cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]models.Value
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]map[string]models.Value)}
}

// Get returns the cached attributes for the key.
func (c *MemoryCache) Get(key string) (map[string]models.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	attrs, ok := c.entries[key]
	return attrs, ok
}

// Set stores attributes for the key.
func (c *MemoryCache) Set(key string, attrs map[string]models.Value) {
	c.mu.Lock()
	c.entries[key] = attrs
	c.mu.Unlock()
}

// Len returns the number of cached cells.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
