// Package plancache implements the prepared-plan cache (C11): a bounded,
// concurrency-safe map from a statement's canonicalized text to the plan
// it was prepared into, with LRU eviction once the cache is full.
//
// Canonicalization is trim-only (OPEN QUESTION DECISION #1): the cache
// key is the statement text with leading/trailing whitespace removed, no
// whitespace normalization or case-folding inside the text. Two
// statements that differ only in surrounding whitespace share a cache
// entry; anything else is a distinct entry, even if semantically
// identical.
package plancache

import (
	"container/list"
	"strings"
	"sync"

	"github.com/sharpcoredb/core/internal/plan"
)

// DefaultCapacity is the prepared-plan cache size used when a Config
// leaves it unset.
const DefaultCapacity = 2000

type entry struct {
	key  string
	plan plan.Plan
	elem *list.Element
}

// Cache is a bounded LRU map from canonicalized SQL text to a prepared
// Plan. The zero value is not usable; construct with New.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*entry
	lru      *list.List

	hits   uint64
	misses uint64
}

// New constructs a plan cache holding at most capacity entries. A
// capacity of 0 or less uses DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*entry),
		lru:      list.New(),
	}
}

// Canonicalize applies the cache's key normalization to raw statement
// text, exposed so callers can check for a cached plan without a Get
// call that would affect LRU order (e.g. logging/metrics).
func Canonicalize(text string) string {
	return strings.TrimSpace(text)
}

// Get returns the cached plan for text, if present, moving it to the
// front of the LRU order.
func (c *Cache) Get(text string) (plan.Plan, bool) {
	key := Canonicalize(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.MoveToFront(e.elem)
	return e.plan, true
}

// Put inserts or replaces the cached plan for text, evicting the least
// recently used entry if the cache is at capacity.
func (c *Cache) Put(text string, p plan.Plan) {
	key := Canonicalize(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.plan = p
		c.lru.MoveToFront(e.elem)
		return
	}
	e := &entry{key: key, plan: p}
	e.elem = c.lru.PushFront(key)
	c.entries[key] = e
	if len(c.entries) > c.capacity {
		back := c.lru.Back()
		if back != nil {
			c.lru.Remove(back)
			delete(c.entries, back.Value.(string))
		}
	}
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats is the hit/miss counters exposed for introspection.
type Stats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// Stats returns a snapshot of the cache's hit/miss counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
}
