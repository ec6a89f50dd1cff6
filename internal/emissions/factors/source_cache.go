package factors

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Source loads factor tables and sector mappings, usually from a Store
type Source interface {
	LoadTable(ctx context.Context, fromYear, toYear int) (*MemoryTable, error)
	LoadSectorMappings(ctx context.Context) (map[string]string, error)
}

// CachedSource keeps loaded tables in memory for a fixed TTL so repeated
// builds over the same years do not hit the database
type CachedSource struct {
	source  Source
	ttl     time.Duration
	tables  map[string]*sourceEntry
	sectors *sourceEntry
	mu      sync.RWMutex
	cleanup *time.Ticker
	done    chan struct{}
	stop    sync.Once
}

// sourceEntry represents a cache entry with expiration
type sourceEntry struct {
	table      *MemoryTable
	sectors    map[string]string
	expiration time.Time
}

// NewCachedSource wraps source with a TTL cache
func NewCachedSource(source Source, ttl time.Duration) *CachedSource {
	c := &CachedSource{
		source:  source,
		ttl:     ttl,
		tables:  make(map[string]*sourceEntry),
		cleanup: time.NewTicker(time.Minute),
		done:    make(chan struct{}),
	}

	go c.cleanupLoop()

	return c
}

// LoadTable returns the cached table for the year range or loads it
func (c *CachedSource) LoadTable(ctx context.Context, fromYear, toYear int) (*MemoryTable, error) {
	key := fmt.Sprintf("%d-%d", fromYear, toYear)

	c.mu.RLock()
	entry, ok := c.tables[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiration) {
		return entry.table, nil
	}

	table, err := c.source.LoadTable(ctx, fromYear, toYear)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tables[key] = &sourceEntry{table: table, expiration: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return table, nil
}

// LoadSectorMappings returns the cached sector mappings or loads them
func (c *CachedSource) LoadSectorMappings(ctx context.Context) (map[string]string, error) {
	c.mu.RLock()
	entry := c.sectors
	c.mu.RUnlock()
	if entry != nil && time.Now().Before(entry.expiration) {
		return entry.sectors, nil
	}

	sectors, err := c.source.LoadSectorMappings(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sectors = &sourceEntry{sectors: sectors, expiration: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return sectors, nil
}

// Invalidate drops every cached table, e.g. after an import
func (c *CachedSource) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tables = make(map[string]*sourceEntry)
	c.sectors = nil
}

// Size returns the number of cached tables
func (c *CachedSource) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.tables)
}

// cleanupLoop periodically removes expired entries
func (c *CachedSource) cleanupLoop() {
	for {
		select {
		case <-c.cleanup.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *CachedSource) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.tables {
		if now.After(entry.expiration) {
			delete(c.tables, key)
		}
	}
	if c.sectors != nil && now.After(c.sectors.expiration) {
		c.sectors = nil
	}
}

// Stop stops the cleanup goroutine
func (c *CachedSource) Stop() {
	c.stop.Do(func() {
		c.cleanup.Stop()
		close(c.done)
	})
}
