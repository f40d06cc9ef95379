// Package cache implements the bounded, expiring result store.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/mhatretamish/linkedin/internal/metrics"
	"github.com/mhatretamish/linkedin/internal/scraper"
)

// Cache is a thread-safe key-value store bounded by capacity and TTL.
// Eviction removes the oldest-inserted entry, which lines up with TTL
// semantics: the oldest entry is always the closest to expiry. Expiry is
// checked lazily at read time; an entry past its TTL is treated as absent
// even if it has not been physically removed yet.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = oldest inserted
	maxSize int
	ttl     time.Duration
	clock   scraper.Clock

	hits      uint64
	misses    uint64
	evictions uint64
}

type entry struct {
	key      string
	value    *scraper.ExtractionResult
	storedAt time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	TotalRequests uint64  `json:"total_requests"`
	Size          int     `json:"cache_size"`
	Evictions     uint64  `json:"evictions"`
	HitRate       float64 `json:"hit_rate"`
	MaxSize       int     `json:"max_size"`
	TTLSeconds    float64 `json:"ttl_seconds"`
}

// EntryInfo describes one live entry for administrative listings.
// ExpiresIn is negative for entries that are logically expired but not
// yet removed; callers should treat negative as already expired.
type EntryInfo struct {
	Key       string  `json:"key"`
	Age       float64 `json:"age_seconds"`
	ExpiresIn float64 `json:"expires_in"`
}

// New constructs a Cache. maxSize and ttl must both be positive; the
// config layer validates them before construction.
func New(maxSize int, ttl time.Duration, clock scraper.Clock) *Cache {
	return &Cache{
		entries: make(map[string]*list.Element, maxSize),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the stored value and its storage time, or ok=false on a
// miss. Entries at or past the TTL count as misses. Hit and miss
// counters update as a side effect.
func (c *Cache) Get(key string) (*scraper.ExtractionResult, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, time.Time{}, false
	}
	e := elem.Value.(*entry)
	if c.clock.Now().Sub(e.storedAt) >= c.ttl {
		// Expired but not yet removed. Drop it now and report a miss.
		c.removeLocked(elem)
		c.misses++
		return nil, time.Time{}, false
	}
	c.hits++
	return e.value, e.storedAt, true
}

// Set inserts or overwrites the value for key, stamping it with the
// current time. When the cache is full and the key is new, the
// oldest-inserted entry is evicted.
func (c *Cache) Set(key string, value *scraper.ExtractionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.storedAt = now
		c.order.MoveToBack(elem)
		return
	}

	if c.order.Len() >= c.maxSize {
		if oldest := c.order.Front(); oldest != nil {
			c.removeLocked(oldest)
			c.evictions++
			metrics.ObserveCacheEviction()
		}
	}

	elem := c.order.PushBack(&entry{key: key, value: value, storedAt: now})
	c.entries[key] = elem
}

// Invalidate removes the entry for key, reporting whether anything was
// removed.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(elem)
	return true
}

// Clear removes every entry and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := c.order.Len()
	c.entries = make(map[string]*list.Element, c.maxSize)
	c.order.Init()
	return count
}

// Stats returns a snapshot of the cache counters. HitRate is zero when
// no requests have been made.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:          c.hits,
		Misses:        c.misses,
		TotalRequests: total,
		Size:          c.order.Len(),
		Evictions:     c.evictions,
		HitRate:       hitRate,
		MaxSize:       c.maxSize,
		TTLSeconds:    c.ttl.Seconds(),
	}
}

// Entries lists every physically present entry with its age and time to
// expiry, oldest first.
func (c *Cache) Entries() []EntryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	out := make([]EntryInfo, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*entry)
		age := now.Sub(e.storedAt).Seconds()
		out = append(out, EntryInfo{
			Key:       e.key,
			Age:       age,
			ExpiresIn: c.ttl.Seconds() - age,
		})
	}
	return out
}

// Len returns the number of physically present entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	c.order.Remove(elem)
	delete(c.entries, e.key)
}
