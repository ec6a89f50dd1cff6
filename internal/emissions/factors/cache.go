package factors

import (
	"sync"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
)

// cacheEntry stores a finished resolution, including negative results, so a
// repeated miss does not walk the fallback chain again
type cacheEntry struct {
	resolution *Resolution
	err        error
}

// ResolutionCache is a read-through cache keyed by the lookup tuple. Entries
// are only dropped by Clear, which the resolver calls when its table is reloaded.
type ResolutionCache struct {
	data map[string]cacheEntry
	mu   sync.RWMutex

	hits   int64
	misses int64
}

// CacheStats reports cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewResolutionCache creates an empty cache
func NewResolutionCache() *ResolutionCache {
	return &ResolutionCache{
		data: make(map[string]cacheEntry),
	}
}

// GetOrResolve returns the cached resolution for key, or computes and stores it
func (c *ResolutionCache) GetOrResolve(key string, resolve func() (*Resolution, error)) (*Resolution, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	if ok {
		return entry.resolution.clone(), entry.err
	}

	res, err := resolve()

	c.mu.Lock()
	c.data[key] = cacheEntry{resolution: res, err: err}
	c.mu.Unlock()

	return res.clone(), err
}

// Clear removes all entries and resets statistics
func (c *ResolutionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]cacheEntry)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics
func (c *ResolutionCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return CacheStats{
		Size:    len(c.data),
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: hitRate,
	}
}

func (r *Resolution) clone() *Resolution {
	if r == nil {
		return nil
	}
	out := *r
	out.Tried = append([]emissions.FactorKey(nil), r.Tried...)
	return &out
}
