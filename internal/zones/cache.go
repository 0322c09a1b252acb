package zones

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sells-group/zonemap/internal/projection"
)

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// CachedSource is an LRU cache with TTL expiry in front of another Source.
// Grid cells repeat between refreshes of a still view, so most cell requests
// are served from here. Errors are not cached.
type CachedSource struct {
	next       Source
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	key       string
	year      int
	zones     []Zone
	createdAt time.Time
}

// NewCachedSource wraps next with a cache of at most maxEntries responses,
// each valid for ttl.
func NewCachedSource(next Source, maxEntries int, ttl time.Duration) *CachedSource {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedSource{
		next:       next,
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
	}
}

// cacheKey rounds corners to 1e-6 degrees so floating noise in grid cell
// arithmetic does not defeat the cache.
func cacheKey(year int, tl, br projection.GeoPoint) string {
	return fmt.Sprintf("%d/%.6f,%.6f/%.6f,%.6f", year, tl.Lat, tl.Lon, br.Lat, br.Lon)
}

// Zones implements Source.
func (c *CachedSource) Zones(ctx context.Context, year int, topLeft, bottomRight projection.GeoPoint) ([]Zone, error) {
	key := cacheKey(year, topLeft, bottomRight)
	if zs, ok := c.get(key); ok {
		c.hits.Add(1)
		return zs, nil
	}
	c.misses.Add(1)

	zs, err := c.next.Zones(ctx, year, topLeft, bottomRight)
	if err != nil {
		return nil, err
	}
	c.put(key, year, zs)
	return zs, nil
}

func (c *CachedSource) get(key string) ([]Zone, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*cacheEntry)
	if c.now().Sub(e.createdAt) > c.ttl {
		c.lru.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.lru.MoveToFront(el)
	return e.zones, true
}

func (c *CachedSource) put(key string, year int, zs []Zone) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := &cacheEntry{key: key, year: year, zones: zs, createdAt: c.now()}
	if el, ok := c.entries[key]; ok {
		el.Value = entry
		c.lru.MoveToFront(el)
		return
	}
	for c.lru.Len() >= c.maxEntries {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	c.entries[key] = c.lru.PushFront(entry)
}

// Invalidate drops every cached response for a year.
func (c *CachedSource) Invalidate(year int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.lru.Front(); el != nil; {
		next := el.Next()
		if e := el.Value.(*cacheEntry); e.year == year {
			c.lru.Remove(el)
			delete(c.entries, e.key)
		}
		el = next
	}
}

// Stats returns hit/miss counters and occupancy.
func (c *CachedSource) Stats() CacheStats {
	c.mu.Lock()
	entries := c.lru.Len()
	c.mu.Unlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return CacheStats{
		Entries:    entries,
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    rate,
	}
}
