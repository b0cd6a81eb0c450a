package catalog

import (
	"fmt"
	"sort"

	"github.com/sharpcoredb/core/internal/pagecache"
	"github.com/sharpcoredb/core/internal/plan"
	"github.com/sharpcoredb/core/internal/storage"
	"github.com/sharpcoredb/core/internal/wal"
)

// Committer is the subset of *wal.WAL the batch driver needs, so tests can
// substitute a fake committer without standing up a real WAL directory.
type Committer interface {
	Commit(payload []byte) (uint64, error)
}

// BatchResult carries what a successful RunBatch produced: the assigned
// WAL LSN and, per write plan in input order, the RowRef it touched (the
// new row's ref for an insert, the possibly-relocated ref for an update,
// the deleted ref for a delete).
type BatchResult struct {
	LSN  uint64
	Refs []storage.RowRef
}

// RunBatch executes plans as a single atomic unit (spec §4.10): it takes
// every touched table's writer lock in sorted-name order to give
// concurrent batches a fixed global lock ordering, begins a deferred-index
// batch on each, dispatches every plan to the table it names, folds the
// per-row effects into one WAL commit, and only on a successful commit
// does it flush the touched tables' dirty pages and indexes and advance
// the catalog's checkpoint LSN. A failed commit (or any dispatch error
// before it) rolls every touched table back to its pre-batch state and
// never appends anything to the WAL — the caller sees no partial effect.
func (c *Catalog) RunBatch(w Committer, cache *pagecache.Cache, fsyncPages bool, plans []plan.Plan) (BatchResult, error) {
	tableNames := distinctTableNames(plans)
	tables := make(map[string]*storage.Table, len(tableNames))
	for _, name := range tableNames {
		t, ok := c.Table(name)
		if !ok {
			return BatchResult{}, &storage.TableNotFoundError{Table: name}
		}
		tables[name] = t
	}

	for _, name := range tableNames {
		tables[name].BeginBatch()
	}

	refs, entries, err := dispatchPlans(tables, plans)
	if err != nil {
		for _, name := range tableNames {
			tables[name].EndBatch(false)
		}
		return BatchResult{}, err
	}

	payload := wal.EncodeBatchPayload(entries)
	lsn, err := w.Commit(payload)
	if err != nil {
		for _, name := range tableNames {
			tables[name].EndBatch(false)
		}
		return BatchResult{}, fmt.Errorf("catalog: commit batch: %w", err)
	}

	for _, name := range tableNames {
		if err := tables[name].EndBatch(true); err != nil {
			return BatchResult{}, fmt.Errorf("catalog: end batch on table %q after commit: %w", name, err)
		}
	}

	if err := cache.FlushDirty(fsyncPages); err != nil {
		return BatchResult{}, fmt.Errorf("catalog: flush dirty pages after commit: %w", err)
	}
	if err := c.Checkpoint(lsn, fsyncPages); err != nil {
		return BatchResult{}, fmt.Errorf("catalog: persist checkpoint after commit: %w", err)
	}

	return BatchResult{LSN: lsn, Refs: refs}, nil
}

func distinctTableNames(plans []plan.Plan) []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range plans {
		name := p.PlanTable()
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// dispatchPlans applies every plan to its table and returns the WAL batch
// entries produced, in plan order. On the first error it returns
// immediately; the caller is responsible for rolling every table back.
func dispatchPlans(tables map[string]*storage.Table, plans []plan.Plan) ([]storage.RowRef, []wal.BatchEntry, error) {
	var refs []storage.RowRef
	var entries []wal.BatchEntry

	for _, p := range plans {
		t := tables[p.PlanTable()]
		switch st := p.(type) {
		case plan.InsertPlan:
			ref, body, err := t.Insert(st.Row)
			if err != nil {
				return nil, nil, err
			}
			refs = append(refs, ref)
			entries = append(entries, wal.BatchEntry{Op: wal.OpInsert, TableID: uint32(t.ID()), Body: body})

		case plan.UpdatePlan:
			results, err := t.UpdateByPredicate(st.Predicate, st.Set)
			if err != nil {
				return nil, nil, err
			}
			for _, r := range results {
				refs = append(refs, r.Ref)
				entries = append(entries, wal.BatchEntry{Op: wal.OpUpdate, TableID: uint32(t.ID()), Body: r.Body})
			}

		case plan.DeletePlan:
			deleted, err := t.DeleteByPredicate(st.Predicate)
			if err != nil {
				return nil, nil, err
			}
			for _, ref := range deleted {
				body := make([]byte, 8)
				byteOrder.PutUint64(body, uint64(ref))
				refs = append(refs, ref)
				entries = append(entries, wal.BatchEntry{Op: wal.OpDelete, TableID: uint32(t.ID()), Body: body})
			}

		default:
			return nil, nil, fmt.Errorf("catalog: plan type %T is not a write plan", p)
		}
	}
	return refs, entries, nil
}

// ReplayTarget adapts the catalog to wal.ReplayTarget so wal.Recover can
// rebuild table contents from the WAL at Open, before any facade-level
// batch has run.
type ReplayTarget struct {
	Catalog *Catalog
}

func (r ReplayTarget) ReplayInsert(tableID uint32, body []byte) error {
	t, ok := r.Catalog.TableByID(tableID)
	if !ok {
		return fmt.Errorf("catalog: replay insert: unknown table id %d", tableID)
	}
	return t.ApplyInsertReplay(body)
}

func (r ReplayTarget) ReplayUpdate(tableID uint32, body []byte) error {
	t, ok := r.Catalog.TableByID(tableID)
	if !ok {
		return fmt.Errorf("catalog: replay update: unknown table id %d", tableID)
	}
	return t.ApplyUpdateReplay(body)
}

func (r ReplayTarget) ReplayDelete(tableID uint32, body []byte) error {
	t, ok := r.Catalog.TableByID(tableID)
	if !ok {
		return fmt.Errorf("catalog: replay delete: unknown table id %d", tableID)
	}
	return t.ApplyDeleteReplay(body)
}
