// Package hashindex implements the in-memory hash-equality index (C9): a
// map from a column's value to the set of row references that hold it,
// with a deferred/batched maintenance mode for bulk writers.
package hashindex

import (
	"sync"

	"github.com/sharpcoredb/core/internal/plan"
)

// RowRef is the opaque stable row identifier the storage engine hands
// back from Insert and uses to address Update/Delete/Read.
type RowRef uint64

type opKind uint8

const (
	opInsert opKind = iota
	opRemove
)

type pendingOp struct {
	kind opKind
	key  string
	ref  RowRef
}

// Index is a hash-equality index on one column. It is safe for concurrent
// use, though callers normally hold the owning table's writer lock around
// mutations anyway (spec §5: "hash-index mutation is done under the
// table's writer lock").
type Index struct {
	mu       sync.RWMutex
	Column   string
	data     map[string][]RowRef
	deferred bool
	pending  []pendingOp
	built    bool
}

// New returns an empty index on column. It is not built until Build runs
// or the first write arrives — spec §4.9: "first access triggers a full
// table scan to build it".
func New(column string) *Index {
	return &Index{Column: column, data: make(map[string][]RowRef)}
}

// Built reports whether the index has been populated (by Build or by
// incremental writes since creation).
func (ix *Index) Built() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.built
}

// Build performs the single-pass scan-and-populate that spec §4.9 calls
// bulk_insert: it amortises rehashing by growing the backing map once
// instead of on every incremental insert.
func (ix *Index) Build(pairs []Pair) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	m := make(map[string][]RowRef, len(pairs))
	for _, p := range pairs {
		k := p.Value.Key()
		m[k] = append(m[k], p.Ref)
	}
	ix.data = m
	ix.built = true
}

// Pair is one (value, row reference) association fed to Build or
// BulkInsert.
type Pair struct {
	Value plan.Value
	Ref   RowRef
}

// Lookup returns every row reference currently associated with value.
func (ix *Index) Lookup(value plan.Value) []RowRef {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	refs := ix.data[value.Key()]
	out := make([]RowRef, len(refs))
	copy(out, refs)
	return out
}

// Insert records an incremental (value, ref) association. In deferred
// mode the write is queued instead, per spec §4.10 step 2.
func (ix *Index) Insert(value plan.Value, ref RowRef) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.deferred {
		ix.pending = append(ix.pending, pendingOp{kind: opInsert, key: value.Key(), ref: ref})
		return
	}
	k := value.Key()
	ix.data[k] = append(ix.data[k], ref)
	ix.built = true
}

// Remove drops a (value, ref) association, e.g. on delete or on the old
// value of an update. Deferred mode queues it the same way Insert does.
func (ix *Index) Remove(value plan.Value, ref RowRef) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.deferred {
		ix.pending = append(ix.pending, pendingOp{kind: opRemove, key: value.Key(), ref: ref})
		return
	}
	ix.removeLocked(value.Key(), ref)
}

func (ix *Index) removeLocked(key string, ref RowRef) {
	refs := ix.data[key]
	for i, r := range refs {
		if r == ref {
			refs = append(refs[:i], refs[i+1:]...)
			break
		}
	}
	if len(refs) == 0 {
		delete(ix.data, key)
	} else {
		ix.data[key] = refs
	}
}

// SetDeferred switches the index between immediate and batched/deferred
// maintenance mode (spec §4.10: begin_batch sets deferred_index_mode).
// Turning deferred mode off without calling FlushQueued first discards
// nothing — it simply stops queuing future writes; FlushQueued (or
// DiscardQueued) is the caller's responsibility at batch boundaries.
func (ix *Index) SetDeferred(deferred bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.deferred = deferred
}

// FlushQueued applies every queued write in enqueue order, then clears
// the queue. Called once per affected index at the end of a successful
// batch (spec §4.10 step 5).
func (ix *Index) FlushQueued() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, op := range ix.pending {
		switch op.kind {
		case opInsert:
			ix.data[op.key] = append(ix.data[op.key], op.ref)
			ix.built = true
		case opRemove:
			ix.removeLocked(op.key, op.ref)
		}
	}
	ix.pending = ix.pending[:0]
}

// DiscardQueued drops every queued write without applying it, used when a
// batch's WAL commit fails (spec §4.10 step 5, failure branch).
func (ix *Index) DiscardQueued() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.pending = ix.pending[:0]
}
