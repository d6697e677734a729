package core

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

type cacheEntry struct {
	key    string
	report *AuditReport
}

// CacheStats reports cache effectiveness
type CacheStats struct {
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
}

// ResultCache is a bounded LRU of finished reports
type ResultCache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	lruList  *list.List
	capacity int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewResultCache creates a cache holding at most capacity reports
func NewResultCache(capacity int) *ResultCache {
	if capacity < 1 {
		capacity = 1
	}
	return &ResultCache{
		items:    make(map[string]*list.Element),
		lruList:  list.New(),
		capacity: capacity,
	}
}

// CacheKey derives the cache key for a request. Jurisdiction order and case do not
// matter; the rule version keeps reports from different rule generations apart. The
// text is hashed as given since report offsets index into it.
func CacheKey(text string, jurisdictions []string, language string, version uint64) string {
	canon := make([]string, 0, len(jurisdictions))
	for _, j := range jurisdictions {
		if c := CanonicalJurisdiction(j); c != "" {
			canon = append(canon, c)
		}
	}
	sort.Strings(canon)

	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(canon, ",")))
	h.Write([]byte{0})
	h.Write([]byte(normalizeLanguage(language)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatUint(version, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached report for key
func (c *ResultCache) Get(key string) (*AuditReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.lruList.MoveToFront(el)
		c.hits.Add(1)
		return el.Value.(*cacheEntry).report.Clone(), true
	}
	c.misses.Add(1)
	return nil, false
}

// Put stores a copy of report under key, evicting the least recently used entry if full
func (c *ResultCache) Put(key string, report *AuditReport) {
	if report == nil {
		return
	}
	stored := report.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.lruList.MoveToFront(el)
		el.Value.(*cacheEntry).report = stored
		return
	}

	if c.lruList.Len() >= c.capacity {
		if oldest := c.lruList.Back(); oldest != nil {
			c.lruList.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}

	c.items[key] = c.lruList.PushFront(&cacheEntry{key: key, report: stored})
}

// InvalidateAll empties the cache
func (c *ResultCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lruList.Init()
}

// Len returns the number of cached reports
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Stats returns hit and miss counters along with the current size
func (c *ResultCache) Stats() CacheStats {
	return CacheStats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Size:     c.Len(),
		Capacity: c.capacity,
	}
}
