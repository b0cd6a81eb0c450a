package wal

import "sync"

// Stats are the introspection counters exposed via GetWalStats, tracking
// the open tie-break design note of spec §9: whether a burst closed
// because it hit max_batch_size or because max_batch_delay elapsed.
type Stats struct {
	Batches                uint64
	Commits                uint64
	BatchesClosedBySize    uint64
	BatchesClosedByTimeout uint64
	FsyncCount             uint64
}

// AvgBatchSize is Commits/Batches, or 0 if no batch has closed yet.
func (s Stats) AvgBatchSize() float64 {
	if s.Batches == 0 {
		return 0
	}
	return float64(s.Commits) / float64(s.Batches)
}

type statsTracker struct {
	mu sync.Mutex
	s  Stats
}

func (t *statsTracker) recordBatch(size int, closedByTimeout, fsynced bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Batches++
	t.s.Commits += uint64(size)
	if closedByTimeout {
		t.s.BatchesClosedByTimeout++
	} else {
		t.s.BatchesClosedBySize++
	}
	if fsynced {
		t.s.FsyncCount++
	}
}

func (t *statsTracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}
