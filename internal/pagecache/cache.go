// Package pagecache implements the bounded page cache (C4) and the
// free-space directory (C5) that sits beneath the storage engine: every
// page read or write goes through here, never straight to the data file.
package pagecache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/sharpcoredb/core/internal/bufpool"
	"github.com/sharpcoredb/core/internal/page"
)

// PinMode selects whether a fetched page is pinned for reading (shared) or
// writing (exclusive).
type PinMode int

const (
	PinRead PinMode = iota
	PinWrite
)

type entry struct {
	id      uint64
	buf     []byte
	dirty   bool
	readers int
	writer  bool
	elem    *list.Element
}

func (e *entry) pinned() bool { return e.readers > 0 || e.writer }

// Stats are the introspection counters exposed via GetPageCacheStats.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	DirtyPages int
	Resident  int
}

// Cache is the bounded, LRU-evicted page cache. All disk I/O for pages is
// funneled through it; readers and writers alike obtain a PinnedPage via
// Get or Allocate and must Unpin it when done.
type Cache struct {
	mu       sync.Mutex
	cond     *sync.Cond
	file     *dataFile
	pool     *bufpool.Pool
	capacity int
	entries  map[uint64]*entry
	lru      *list.List // front = most recently used
	freeDir  *FreeSpaceDirectory
	nextID   uint64
	closing  bool

	stats Stats
}

// Open opens (creating if absent) the data file at path and returns a
// ready page cache bounded to capacity resident pages.
func Open(path string, pageSize, capacity int, key []byte) (*Cache, error) {
	df, err := openDataFile(path, pageSize, key)
	if err != nil {
		return nil, err
	}
	count, err := df.pageCount()
	if err != nil {
		return nil, fmt.Errorf("pagecache: stat data file: %w", err)
	}
	c := &Cache{
		file:     df,
		pool:     bufpool.New(df.bufferSize(), capacity),
		capacity: capacity,
		entries:  make(map[uint64]*entry),
		lru:      list.New(),
		freeDir:  NewFreeSpaceDirectory(),
		nextID:   count,
	}
	c.cond = sync.NewCond(&c.mu)
	return c, nil
}

// PageSize returns the logical (plaintext) page buffer size pages use.
func (c *Cache) PageSize() int { return c.file.bufferSize() }

// FreeSpaceDirectory returns the cache-wide directory that FlushDirty
// updates with each flushed page's free bytes. The storage engine does not
// allocate through it; each storage.Table keeps its own directory.
func (c *Cache) FreeSpaceDirectory() *FreeSpaceDirectory { return c.freeDir }

// Close flushes all dirty pages and closes the underlying data file.
func (c *Cache) Close() error {
	if err := c.FlushDirty(true); err != nil {
		return err
	}
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
	return c.file.close()
}

func (c *Cache) touchLocked(e *entry) {
	c.lru.MoveToFront(e.elem)
}

func (c *Cache) loadLocked(id uint64) (*entry, error) {
	buf := c.pool.Acquire()
	if err := c.file.readPage(id, buf); err != nil {
		c.pool.Release(buf, false)
		return nil, err
	}
	e := &entry{id: id, buf: buf}
	e.elem = c.lru.PushFront(id)
	c.entries[id] = e
	c.stats.Resident = len(c.entries)
	c.evictIfOverCapacityLocked()
	return e, nil
}

// evictIfOverCapacityLocked tries to bring resident count back under
// capacity; it is a best-effort pass, skipping pinned or dirty pages, so
// the cache may transiently exceed capacity when every resident page is
// pinned or dirty.
func (c *Cache) evictIfOverCapacityLocked() {
	for len(c.entries) > c.capacity {
		if !c.evictOneLocked() {
			return
		}
	}
}

func (c *Cache) evictOneLocked() bool {
	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		id := elem.Value.(uint64)
		e := c.entries[id]
		if e == nil || e.pinned() || e.dirty {
			continue
		}
		c.lru.Remove(elem)
		delete(c.entries, id)
		c.pool.Release(e.buf, c.file.key != nil)
		c.stats.Evictions++
		c.stats.Resident = len(c.entries)
		return true
	}
	return false
}

// EvictOne evicts a single clean, unpinned page by LRU order. It reports
// whether a page was evicted.
func (c *Cache) EvictOne() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictOneLocked()
}

// Get fetches page id, pinning it in the requested mode. It waits while the
// requested pin conflicts with one already held: a read pin waits for a
// writer to unpin, a write pin waits until no reader or writer holds the
// page.
func (c *Cache) Get(id uint64, mode PinMode) (*PinnedPage, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		var err error
		e, err = c.loadLocked(id)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.stats.Misses++
	} else {
		c.stats.Hits++
		c.touchLocked(e)
	}

	for {
		if mode == PinRead && !e.writer {
			e.readers++
			break
		}
		if mode == PinWrite && !e.pinned() {
			e.writer = true
			break
		}
		c.cond.Wait()
	}
	c.mu.Unlock()

	return &PinnedPage{cache: c, entry: e, mode: mode, sp: page.Open(e.buf)}, nil
}

// Allocate extends the file by one new page id, returning the page
// write-pinned, dirty, and already initialised as pageType. It does not
// consult the free-space directory and never reuses an existing page id.
func (c *Cache) Allocate(pageType page.Type) (*PinnedPage, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	buf := c.pool.Acquire()
	page.New(buf, pageType)
	e := &entry{id: id, buf: buf, dirty: true, writer: true}
	e.elem = c.lru.PushFront(id)
	c.entries[id] = e
	c.stats.Resident = len(c.entries)
	c.evictIfOverCapacityLocked()
	c.mu.Unlock()

	return &PinnedPage{cache: c, entry: e, mode: PinWrite, sp: page.Open(e.buf)}, nil
}

// FlushDirty writes every dirty, unpinned page to disk, encrypting as
// configured, and fsyncs the data file when fsync is true.
func (c *Cache) FlushDirty(fsync bool) error {
	c.mu.Lock()
	var toFlush []*entry
	for _, e := range c.entries {
		if e.dirty && !e.pinned() {
			toFlush = append(toFlush, e)
		}
	}
	c.mu.Unlock()

	for _, e := range toFlush {
		e.sp().Recheck()
		if err := c.file.writePage(e.id, e.buf); err != nil {
			return fmt.Errorf("pagecache: flush page %d: %w", e.id, err)
		}
		c.mu.Lock()
		e.dirty = false
		c.freeDir.Track(e.id, page.Open(e.buf).FreeBytes())
		c.stats.DirtyPages = c.countDirtyLocked()
		c.mu.Unlock()
	}

	if fsync {
		if err := c.file.sync(); err != nil {
			return fmt.Errorf("pagecache: fsync data file: %w", err)
		}
	}
	return nil
}

func (c *Cache) countDirtyLocked() int {
	n := 0
	for _, e := range c.entries {
		if e.dirty {
			n++
		}
	}
	return n
}

func (e *entry) sp() *page.SlottedPage { return page.Open(e.buf) }

// Snapshot copies the current resident bytes of page id for later
// restoration via Restore. Used by the storage layer to roll back a
// batch's speculative writes when its WAL commit fails (spec §4.10 step
// 5): "revert any dirty pages". The page must already be resident (the
// caller holds or has just released a pin on it).
func (c *Cache) Snapshot(id uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(e.buf))
	copy(cp, e.buf)
	return cp, true
}

// Restore overwrites page id's resident bytes with a prior Snapshot and
// marks it dirty again so the reverted content is what eventually reaches
// disk.
func (c *Cache) Restore(id uint64, snapshot []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return
	}
	copy(e.buf, snapshot)
	e.dirty = true
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.DirtyPages = c.countDirtyLocked()
	s.Resident = len(c.entries)
	return s
}

// PinnedPage is a page held for reading or writing. Callers must call
// Unpin exactly once.
type PinnedPage struct {
	cache *Cache
	entry *entry
	mode  PinMode
	sp    *page.SlottedPage
}

// ID returns the pinned page's identifier.
func (p *PinnedPage) ID() uint64 { return p.entry.id }

// Page exposes the slotted-page view for row-level operations.
func (p *PinnedPage) Page() *page.SlottedPage { return p.sp }

// MarkDirty flags the page as needing a flush. Only valid under a write
// pin; callers holding a read pin must not mutate the page.
func (p *PinnedPage) MarkDirty() {
	p.cache.mu.Lock()
	p.entry.dirty = true
	p.cache.mu.Unlock()
}

// Unpin releases the pin, waking any goroutines waiting for a conflicting
// pin on the same page.
func (p *PinnedPage) Unpin() {
	p.cache.mu.Lock()
	if p.mode == PinRead {
		p.entry.readers--
	} else {
		p.entry.writer = false
	}
	p.cache.evictIfOverCapacityLocked()
	p.cache.cond.Broadcast()
	p.cache.mu.Unlock()
}
