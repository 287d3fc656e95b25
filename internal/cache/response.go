package cache

import (
	"container/list"
	"hash/fnv"
	"strconv"
	"sync"
	"time"
)

// Defaults applied when the corresponding options are unset.
const (
	DefaultResponseCapacity = 100
	DefaultResponseTTL      = time.Hour
)

// responseEntry is one cached final answer.
type responseEntry struct {
	key          uint64
	text         string
	createdAt    time.Time
	lastAccessed time.Time
	accessCount  int
}

// ResponseCache is an LRU cache of final answers with a wall-clock TTL that
// applies independently of capacity-based eviction. Reading an expired entry
// deletes it and counts as a miss.
type ResponseCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List // front = most recently used
	items    map[uint64]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64

	now func() time.Time // replaceable in tests
}

// NewResponseCache constructs a response cache; capacity <= 0 and ttl <= 0
// fall back to the defaults.
func NewResponseCache(capacity int, ttl time.Duration) *ResponseCache {
	if capacity <= 0 {
		capacity = DefaultResponseCapacity
	}
	if ttl <= 0 {
		ttl = DefaultResponseTTL
	}
	return &ResponseCache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    make(map[uint64]*list.Element),
		now:      time.Now,
	}
}

// ResponseKey builds the stable cache key from the prompt and the generation
// parameters that affect the output.
func ResponseKey(prompt string, temperature, topP float64, maxTokens int) uint64 {
	h := fnv.New64a()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(temperature, 'g', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(topP, 'g', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(maxTokens)))
	return h.Sum64()
}

// Get returns the cached response for key, if present and unexpired.
func (c *ResponseCache) Get(key uint64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return "", false
	}
	e := el.Value.(*responseEntry)
	if c.now().Sub(e.createdAt) >= c.ttl {
		c.ll.Remove(el)
		delete(c.items, key)
		c.misses++
		return "", false
	}
	e.lastAccessed = c.now()
	e.accessCount++
	c.ll.MoveToFront(el)
	c.hits++
	return e.text, true
}

// Put stores a response, evicting the LRU entry at capacity.
func (c *ResponseCache) Put(key uint64, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*responseEntry)
		e.text = text
		e.createdAt = c.now()
		e.lastAccessed = c.now()
		c.ll.MoveToFront(el)
		return
	}
	if c.ll.Len() >= c.capacity {
		tail := c.ll.Back()
		if tail != nil {
			e := c.ll.Remove(tail).(*responseEntry)
			delete(c.items, e.key)
			c.evictions++
		}
	}
	now := c.now()
	el := c.ll.PushFront(&responseEntry{
		key:          key,
		text:         text,
		createdAt:    now,
		lastAccessed: now,
		accessCount:  0,
	})
	c.items[key] = el
}

// PurgeIdle removes entries not accessed within idle. Used by the
// memory-pressure cleanup pass.
func (c *ResponseCache) PurgeIdle(idle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-idle)
	removed := 0
	var next *list.Element
	for el := c.ll.Front(); el != nil; el = next {
		next = el.Next()
		e := el.Value.(*responseEntry)
		if e.lastAccessed.Before(cutoff) {
			c.ll.Remove(el)
			delete(c.items, e.key)
			removed++
			c.evictions++
		}
	}
	return removed
}

// Len returns the number of cached responses.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// MemoryBytes is a coarse estimate of cached response memory.
func (c *ResponseCache) MemoryBytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n uint64
	for el := c.ll.Front(); el != nil; el = el.Next() {
		n += uint64(len(el.Value.(*responseEntry).text)) + 64
	}
	return n
}

// Counters returns (hits, misses, evictions).
func (c *ResponseCache) Counters() (uint64, uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}
