package pagecache

import "sync"

// compactionThreshold is the fraction of a page that must be free before
// NeedsCompaction reports the page as worth compacting. No write path acts
// on that report.
const compactionThreshold = 0.5

// FreeSpaceDirectory tracks, for each data page, how many free bytes it
// has available for a new slot. It answers first-fit allocation queries
// for insert and update-that-grows. The directory is rebuilt from page
// headers at Open rather than persisted as its own reserved pages — v1
// trades a page-chain scan at startup for simplicity. The hash index is
// likewise not persisted, though it is rebuilt lazily on its first lookup
// rather than at Open (see DESIGN.md).
type FreeSpaceDirectory struct {
	mu        sync.Mutex
	freeBytes map[uint64]int
	// order preserves first-fit determinism across a scan.
	order []uint64
}

// NewFreeSpaceDirectory returns an empty directory.
func NewFreeSpaceDirectory() *FreeSpaceDirectory {
	return &FreeSpaceDirectory{freeBytes: make(map[uint64]int)}
}

// Track registers a page (on first observation) or updates its free-byte
// count.
func (d *FreeSpaceDirectory) Track(pageID uint64, free int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.freeBytes[pageID]; !ok {
		d.order = append(d.order, pageID)
	}
	d.freeBytes[pageID] = free
}

// Forget removes a page from the directory, e.g. when it is freed back to
// the allocator entirely.
func (d *FreeSpaceDirectory) Forget(pageID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.freeBytes, pageID)
}

// Candidate returns the first tracked page with at least minBytes free.
func (d *FreeSpaceDirectory) Candidate(minBytes int) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.order {
		if free, ok := d.freeBytes[id]; ok && free >= minBytes {
			return id, true
		}
	}
	return 0, false
}

// NeedsCompaction reports whether a page's fragmentation (tracked free
// bytes relative to pageSize) exceeds the threshold at which a rewrite is
// worth the cost.
func (d *FreeSpaceDirectory) NeedsCompaction(pageID uint64, pageSize int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	free, ok := d.freeBytes[pageID]
	if !ok {
		return false
	}
	return float64(free)/float64(pageSize) > compactionThreshold
}

// FreeBytes returns the tracked free-byte count for a page, or -1 if
// untracked.
func (d *FreeSpaceDirectory) FreeBytes(pageID uint64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	free, ok := d.freeBytes[pageID]
	if !ok {
		return -1
	}
	return free
}
