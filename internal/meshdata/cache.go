package meshdata

import "sync"

// Cache maps mesh identities to their SharedMeshData.
type Cache struct {
	data map[string]*SharedMeshData
	mu   sync.Mutex

	hits   int
	misses int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string]*SharedMeshData),
	}
}

// GetOrBuild returns the shared data for the asset's identity, building it
// on first request. A nil asset yields nil.
func (c *Cache) GetOrBuild(a Asset) *SharedMeshData {
	if a == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := a.ID()
	if d, ok := c.data[id]; ok {
		c.hits++
		return d
	}

	c.misses++
	d := Build(a)
	c.data[id] = d
	return d
}

// Get returns previously built data.
func (c *Cache) Get(id string) (*SharedMeshData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[id]
	return d, ok
}

// Evict drops the entry for id. Instances already holding the data keep it.
func (c *Cache) Evict(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, id)
}

// Len returns the number of cached meshes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

var shared = NewCache()

// GetOrBuild looks the asset up in the process-wide cache.
func GetOrBuild(a Asset) *SharedMeshData {
	return shared.GetOrBuild(a)
}

// Shared returns the process-wide cache.
func Shared() *Cache {
	return shared
}
