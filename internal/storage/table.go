// Package storage implements the storage engine (C8): row-level
// insert/update/delete/read/scan over the page cache's slotted pages,
// page allocation through a per-table free-space directory, in-place
// update semantics with forwarding records for grown rows, and the
// deferred-index batch mode the catalog's batch driver drives.
package storage

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/sharpcoredb/core/internal/hashindex"
	"github.com/sharpcoredb/core/internal/page"
	"github.com/sharpcoredb/core/internal/pagecache"
	"github.com/sharpcoredb/core/internal/plan"
)

// NoNextPage marks the tail of a table's page chain and an as-yet-empty
// table's root pointer.
const NoNextPage uint64 = ^uint64(0)

// maxForwardDepth bounds how many forwarding hops Read will follow before
// concluding the chain itself is corrupt (spec §4.8: "else returns a
// Corruption error").
const maxForwardDepth = 16

// dirEntrySize mirrors page.dirEntrySize; kept here too since the slot
// directory's per-entry cost matters for this package's free-space math
// and the two packages intentionally don't share unexported constants.
const dirEntrySize = 3

// ScanRow is one row yielded by Scan: its current physical reference (not
// necessarily the reference a caller originally received from Insert, if
// the row has since been relocated by a forwarding update — see Scan's
// doc comment) and its decoded values.
type ScanRow struct {
	Ref RowRef
	Row plan.Row
}

// Table is one named collection of rows: its schema, its chain of data
// pages, and its hash indexes. All mutation goes through the owning
// table's writer lock (spec §5); reads take the reader lock.
type Table struct {
	mu sync.RWMutex

	name     string
	id       uint16
	schema   plan.Schema
	schemaID uint32
	cache    *pagecache.Cache

	fsd       *pagecache.FreeSpaceDirectory
	pageChain []uint64
	rootPage  uint64

	indexes map[string]*hashindex.Index

	rowSeq uint64

	inBatch         bool
	unlinkedPages   []uint64
	batchSnapshots  map[uint64][]byte
	batchNewInBatch map[uint64]bool // true if page was newly allocated during the current batch
}

// New constructs a table with an empty page chain (a freshly created
// table) or one rooted at rootPage (loaded from the catalog).
func New(name string, id uint16, schema plan.Schema, schemaID uint32, cache *pagecache.Cache, rootPage uint64) (*Table, error) {
	t := &Table{
		name:     name,
		id:       id,
		schema:   schema,
		schemaID: schemaID,
		cache:    cache,
		fsd:      pagecache.NewFreeSpaceDirectory(),
		rootPage: rootPage,
		indexes:  make(map[string]*hashindex.Index),
	}
	if rootPage != NoNextPage {
		chain, err := walkChain(cache, rootPage)
		if err != nil {
			return nil, fmt.Errorf("storage: load table %q page chain: %w", name, err)
		}
		t.pageChain = chain
		for _, pid := range chain {
			pp, err := cache.Get(pid, pagecache.PinRead)
			if err != nil {
				return nil, err
			}
			t.fsd.Track(pid, pp.Page().FreeBytes())
			pp.Unpin()
		}
	} else {
		t.rootPage = NoNextPage
	}
	for _, col := range schema.Columns {
		if col.Indexed {
			t.indexes[col.Name] = hashindex.New(col.Name)
		}
	}
	return t, nil
}

func walkChain(cache *pagecache.Cache, root uint64) ([]uint64, error) {
	var chain []uint64
	id := root
	for id != NoNextPage {
		pp, err := cache.Get(id, pagecache.PinRead)
		if err != nil {
			return nil, err
		}
		next := pp.Page().NextPageID()
		pp.Unpin()
		chain = append(chain, id)
		id = next
	}
	return chain, nil
}

// Name returns the table's name.
func (t *Table) Name() string { return t.name }

// ID returns the table's catalog-assigned id.
func (t *Table) ID() uint16 { return t.id }

// Schema returns the table's column list.
func (t *Table) Schema() plan.Schema { return t.schema }

// RootPage returns the current head of the table's page chain, for the
// catalog to persist. NoNextPage if the table has never allocated a page.
func (t *Table) RootPage() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootPage
}

// CreateIndex registers a lazily-built hash index on column. It does not
// scan the table; the first Lookup call builds it (spec §4.9).
func (t *Table) CreateIndex(column string) error {
	if t.schema.IndexOf(column) < 0 {
		return fmt.Errorf("storage: table %q has no column %q", t.name, column)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.indexes[column]; ok {
		return nil
	}
	t.indexes[column] = hashindex.New(column)
	return nil
}

// Lookup resolves an equality predicate through an index, building it on
// first use. ok is false if no index is registered on column, in which
// case the caller must fall back to a full Scan.
func (t *Table) Lookup(column string, value plan.Value) (rows []ScanRow, ok bool, err error) {
	t.mu.Lock()
	ix, found := t.indexes[column]
	t.mu.Unlock()
	if !found {
		return nil, false, nil
	}
	if !ix.Built() {
		if err := t.buildIndex(ix); err != nil {
			return nil, true, err
		}
	}
	refs := ix.Lookup(value)
	out := make([]ScanRow, 0, len(refs))
	for _, r := range refs {
		row, err := t.Read(RowRef(r))
		if err != nil {
			if _, isNotFound := err.(*NotFoundError); isNotFound {
				continue
			}
			return nil, true, err
		}
		out = append(out, ScanRow{Ref: RowRef(r), Row: row})
	}
	return out, true, nil
}

func (t *Table) buildIndex(ix *hashindex.Index) error {
	colIdx := t.schema.IndexOf(ix.Column)
	if colIdx < 0 {
		return fmt.Errorf("storage: table %q has no column %q", t.name, ix.Column)
	}
	rows, err := t.Scan(nil)
	if err != nil {
		return err
	}
	pairs := make([]hashindex.Pair, 0, len(rows))
	for _, r := range rows {
		pairs = append(pairs, hashindex.Pair{Value: r.Row[colIdx], Ref: hashindex.RowRef(r.Ref)})
	}
	ix.Build(pairs)
	slog.Debug("storage: built hash index", "table", t.name, "column", ix.Column, "rows", len(pairs))
	return nil
}

// BeginBatch puts the table into deferred-index mode and starts tracking
// page snapshots for rollback (spec §4.10 step 1). Every index on the
// table defers writes until FlushQueued.
func (t *Table) BeginBatch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inBatch = true
	t.batchSnapshots = make(map[uint64][]byte)
	t.batchNewInBatch = make(map[uint64]bool)
	for _, ix := range t.indexes {
		ix.SetDeferred(true)
	}
}

// EndBatch concludes the batch. commit=true applies deferred index writes
// and links any newly allocated pages into the durable chain (spec §4.10
// step 5); commit=false discards deferred index writes and restores every
// page touched during the batch to its pre-batch content, leaving any
// pages newly allocated in the batch allocated but unlinked and dropped
// from the free-space directory (a bounded, documented v1 space cost — see
// DESIGN.md).
func (t *Table) EndBatch(commit bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inBatch = false
	for _, ix := range t.indexes {
		if commit {
			ix.FlushQueued()
		} else {
			ix.DiscardQueued()
		}
		ix.SetDeferred(false)
	}
	if !commit {
		for pid, snap := range t.batchSnapshots {
			t.cache.Restore(pid, snap)
		}
		kept := t.unlinkedPages[:0]
		for _, pid := range t.unlinkedPages {
			if t.batchNewInBatch[pid] {
				t.fsd.Forget(pid)
				continue
			}
			kept = append(kept, pid)
		}
		t.unlinkedPages = kept
		t.batchSnapshots = nil
		t.batchNewInBatch = nil
		return nil
	}
	t.batchSnapshots = nil
	for _, pid := range t.unlinkedPages {
		if len(t.pageChain) > 0 {
			tail := t.pageChain[len(t.pageChain)-1]
			pp, err := t.cache.Get(tail, pagecache.PinWrite)
			if err != nil {
				return err
			}
			pp.Page().SetNextPageID(pid)
			pp.MarkDirty()
			pp.Unpin()
		} else {
			t.rootPage = pid
		}
		t.pageChain = append(t.pageChain, pid)
	}
	t.unlinkedPages = t.unlinkedPages[:0]
	t.batchNewInBatch = nil
	return nil
}

// snapshotBeforeWrite records a page's pre-batch content the first time
// the current batch touches it, so EndBatch(false) can restore it. A no-op
// outside a batch (every write is driven through a one-statement batch by
// the facade, so in practice this always has an active batch to attach
// to) and a no-op for pages allocated during this same batch, since those
// have no "before" state a rollback needs to restore — discarding them
// unlinked is enough.
func (t *Table) snapshotBeforeWrite(pageID uint64) {
	if !t.inBatch || t.batchNewInBatch[pageID] {
		return
	}
	if _, ok := t.batchSnapshots[pageID]; ok {
		return
	}
	if snap, ok := t.cache.Snapshot(pageID); ok {
		t.batchSnapshots[pageID] = snap
	}
}

func computeNeeded(encodedLen int) int {
	return 8 + 2 + encodedLen + dirEntrySize
}

// Insert allocates a slot for row and returns its reference plus the
// exact bytes to carry in the WAL insert body.
func (t *Table) Insert(row plan.Row) (RowRef, []byte, error) {
	encoded, err := EncodeRow(t.schema, t.schemaID, row)
	if err != nil {
		return 0, nil, &SchemaViolationError{Table: t.name, Reason: err.Error()}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ref, err := t.insertLocked(encoded)
	if err != nil {
		return 0, nil, err
	}
	t.indexAfterInsertLocked(ref, encoded)
	return ref, encoded, nil
}

// insertLocked allocates a slot for encoded and returns its reference. It
// does not touch any index: it is also called by updateByRefLocked to
// place a grown row's new physical copy, which maintains the index itself
// (under the update's stable caller-facing ref, not this call's physical
// one — see updateByRefLocked). Top-level callers that want a genuine new
// row indexed (Insert, ApplyInsertReplay) call indexAfterInsertLocked
// themselves after this returns.
func (t *Table) insertLocked(encoded []byte) (RowRef, error) {
	need := computeNeeded(len(encoded))
	t.rowSeq++
	rowID := t.rowSeq

	if pid, ok := t.fsd.Candidate(need); ok {
		pp, err := t.cache.Get(pid, pagecache.PinWrite)
		if err != nil {
			return 0, err
		}
		t.snapshotBeforeWrite(pid)
		slot, err := pp.Page().Insert(rowID, encoded)
		if err == nil {
			pp.MarkDirty()
			t.fsd.Track(pid, pp.Page().FreeBytes())
			pp.Unpin()
			return NewRowRef(t.id, uint32(pid), slot), nil
		}
		pp.Unpin()
		if err != page.ErrNoSpace {
			return 0, err
		}
		t.fsd.Track(pid, 0)
	}

	pp, err := t.cache.Allocate(page.TypeData)
	if err != nil {
		return 0, err
	}
	pid := pp.ID()
	pp.Page().SetNextPageID(NoNextPage)
	slot, err := pp.Page().Insert(rowID, encoded)
	if err != nil {
		pp.Unpin()
		return 0, fmt.Errorf("storage: row does not fit in an empty page: %w", err)
	}
	pp.MarkDirty()
	t.fsd.Track(pid, pp.Page().FreeBytes())
	pp.Unpin()

	if t.batchNewInBatch != nil {
		t.batchNewInBatch[pid] = true
	}
	t.unlinkedPages = append(t.unlinkedPages, pid)
	return NewRowRef(t.id, uint32(pid), slot), nil
}

// indexAfterInsertLocked maintains every built index on the newly inserted
// row (spec §2's StorageEngine.Apply -> HashIndex.QueueUpdate flow), the
// same way updateByRefLocked and deleteByRefLocked maintain indexes for
// their operations. Like those, it skips an index that has never been
// built: an unbuilt index is populated from scratch by the next Lookup's
// full-table scan, which already sees this row, so indexing it here too
// would only mark the index falsely "built" on an incomplete map.
func (t *Table) indexAfterInsertLocked(ref RowRef, encoded []byte) {
	if len(t.indexes) == 0 {
		return
	}
	row, _, err := DecodeRow(t.schema, encoded)
	if err != nil {
		return
	}
	for col, ix := range t.indexes {
		colIdx := t.schema.IndexOf(col)
		if colIdx < 0 || !ix.Built() {
			continue
		}
		ix.Insert(row[colIdx], hashindex.RowRef(ref))
	}
}

// resolvedSlot is a leaf (non-forwarding) slot location reached by
// following a RowRef's forward chain.
type resolvedSlot struct {
	pageID uint64
	slot   uint16
}

func (t *Table) resolve(ref RowRef) (resolvedSlot, error) {
	pageID := uint64(ref.PageID())
	slot := ref.Slot()
	for depth := 0; depth < maxForwardDepth; depth++ {
		pp, err := t.cache.Get(pageID, pagecache.PinRead)
		if err != nil {
			return resolvedSlot{}, err
		}
		rec, err := pp.Page().Get(slot)
		pp.Unpin()
		if err != nil {
			return resolvedSlot{}, &NotFoundError{Table: t.name, Ref: uint64(ref)}
		}
		if rec.Dead {
			return resolvedSlot{}, &NotFoundError{Table: t.name, Ref: uint64(ref)}
		}
		if !rec.Forwarded {
			return resolvedSlot{pageID: pageID, slot: slot}, nil
		}
		fref := RowRef(rec.ForwardTo)
		pageID = uint64(fref.PageID())
		slot = fref.Slot()
	}
	return resolvedSlot{}, &CorruptionError{Table: t.name, Reason: "forwarding chain exceeds maximum depth"}
}

// Read follows ref's forward chain (if any) and decodes the live row it
// addresses.
func (t *Table) Read(ref RowRef) (plan.Row, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.readLocked(ref)
}

func (t *Table) readLocked(ref RowRef) (plan.Row, error) {
	loc, err := t.resolve(ref)
	if err != nil {
		return nil, err
	}
	pp, err := t.cache.Get(loc.pageID, pagecache.PinRead)
	if err != nil {
		return nil, err
	}
	defer pp.Unpin()
	rec, err := pp.Page().Get(loc.slot)
	if err != nil {
		return nil, &NotFoundError{Table: t.name, Ref: uint64(ref)}
	}
	row, _, err := DecodeRow(t.schema, rec.Data)
	if err != nil {
		return nil, &CorruptionError{Table: t.name, Reason: err.Error()}
	}
	return row, nil
}

// UpdateResult is one row an Update call changed: the (stable) reference
// the caller should keep using, and the exact WAL update body.
type UpdateResult struct {
	Ref  RowRef
	Body []byte
}

// Scan iterates every live row in the table, applying predicate (nil
// means every row). The reference returned for a row is its current
// physical location, which equals the reference Insert originally handed
// out unless the row has since been relocated by a growing Update — in
// that case the returned reference addresses the row directly (it is not
// itself a forwarder), so it remains valid for a subsequent Read, Update,
// or Delete even though it differs from the caller's original reference.
func (t *Table) Scan(predicate *plan.Predicate) ([]ScanRow, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scanLocked(predicate)
}

func (t *Table) scanLocked(predicate *plan.Predicate) ([]ScanRow, error) {
	var colIdx = -1
	if predicate != nil {
		colIdx = t.schema.IndexOf(predicate.Column)
		if colIdx < 0 {
			return nil, fmt.Errorf("storage: table %q has no column %q", t.name, predicate.Column)
		}
	}

	var out []ScanRow
	for _, pid := range t.pageChain {
		pp, err := t.cache.Get(pid, pagecache.PinRead)
		if err != nil {
			return nil, err
		}
		count := pp.Page().SlotCount()
		for slot := 0; slot < count; slot++ {
			rec, err := pp.Page().Get(uint16(slot))
			if err != nil {
				continue
			}
			if rec.Dead || rec.Forwarded {
				continue
			}
			row, _, err := DecodeRow(t.schema, rec.Data)
			if err != nil {
				pp.Unpin()
				return nil, &CorruptionError{Table: t.name, Reason: err.Error()}
			}
			if predicate != nil && !evaluate(row[colIdx], predicate.Op, predicate.Value) {
				continue
			}
			ref := NewRowRef(t.id, uint32(pid), uint16(slot))
			out = append(out, ScanRow{Ref: ref, Row: row})
		}
		pp.Unpin()
	}
	return out, nil
}

func evaluate(v plan.Value, op plan.Op, target plan.Value) bool {
	cmp, ok := compare(v, target)
	if !ok {
		return false
	}
	switch op {
	case plan.OpEq:
		return cmp == 0
	case plan.OpNe:
		return cmp != 0
	case plan.OpLt:
		return cmp < 0
	case plan.OpLe:
		return cmp <= 0
	case plan.OpGt:
		return cmp > 0
	case plan.OpGe:
		return cmp >= 0
	default:
		return false
	}
}

// compare returns -1/0/1 for a well-ordered pair of same-kind values, and
// ok=false for null or mismatched-kind operands (neither orders against
// anything, matching SQL's three-valued-logic treatment of NULL).
func compare(a, b plan.Value) (int, bool) {
	if a.Kind == plan.KindNull || b.Kind == plan.KindNull || a.Kind != b.Kind {
		return 0, false
	}
	switch a.Kind {
	case plan.KindInt:
		return cmpInt(a.Int, b.Int), true
	case plan.KindReal:
		return cmpFloat(a.Real, b.Real), true
	case plan.KindText:
		return cmpString(a.Text, b.Text), true
	case plan.KindBool:
		return cmpBool(a.Bool, b.Bool), true
	case plan.KindDateTime:
		return cmpInt(a.Time.UnixNano(), b.Time.UnixNano()), true
	default:
		return 0, false
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

// UpdateByPredicate rewrites every row matching predicate (nil means
// every row) with the columns named in set, returning one UpdateResult
// per changed row in scan order. Index maintenance for any indexed
// column named in set is queued (if the table is mid-batch) or applied
// immediately.
func (t *Table) UpdateByPredicate(predicate *plan.Predicate, set map[string]plan.Value) ([]UpdateResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	matches, err := t.scanLocked(predicate)
	if err != nil {
		return nil, err
	}

	results := make([]UpdateResult, 0, len(matches))
	for _, m := range matches {
		newRow := make(plan.Row, len(m.Row))
		copy(newRow, m.Row)
		for col, v := range set {
			idx := t.schema.IndexOf(col)
			if idx < 0 {
				return nil, &SchemaViolationError{Table: t.name, Reason: fmt.Sprintf("unknown column %q", col)}
			}
			newRow[idx] = v
		}
		ref, body, err := t.updateByRefLocked(m.Ref, m.Row, newRow)
		if err != nil {
			return nil, err
		}
		results = append(results, UpdateResult{Ref: ref, Body: body})
	}
	return results, nil
}

func (t *Table) updateByRefLocked(ref RowRef, oldRow, newRow plan.Row) (RowRef, []byte, error) {
	encoded, err := EncodeRow(t.schema, t.schemaID, newRow)
	if err != nil {
		return 0, nil, &SchemaViolationError{Table: t.name, Reason: err.Error()}
	}

	loc, err := t.resolve(ref)
	if err != nil {
		return 0, nil, err
	}

	pp, err := t.cache.Get(loc.pageID, pagecache.PinWrite)
	if err != nil {
		return 0, nil, err
	}
	t.snapshotBeforeWrite(loc.pageID)
	rec, err := pp.Page().Get(loc.slot)
	if err != nil {
		pp.Unpin()
		return 0, nil, &NotFoundError{Table: t.name, Ref: uint64(ref)}
	}
	if len(encoded) <= len(rec.Data) {
		if err := pp.Page().UpdateInPlace(loc.slot, encoded); err != nil {
			pp.Unpin()
			return 0, nil, err
		}
		pp.MarkDirty()
		t.fsd.Track(loc.pageID, pp.Page().FreeBytes())
		pp.Unpin()
	} else {
		pp.Unpin()
		newRef, insertErr := t.insertLocked(encoded)
		if insertErr != nil {
			return 0, nil, insertErr
		}
		fp, err := t.cache.Get(loc.pageID, pagecache.PinWrite)
		if err != nil {
			return 0, nil, err
		}
		if err := fp.Page().MarkForward(loc.slot, uint64(newRef)); err != nil {
			fp.Unpin()
			return 0, nil, err
		}
		fp.MarkDirty()
		fp.Unpin()
	}

	for col, ix := range t.indexes {
		colIdx := t.schema.IndexOf(col)
		if colIdx < 0 || !ix.Built() {
			continue
		}
		if oldRow != nil {
			ix.Remove(oldRow[colIdx], hashindex.RowRef(ref))
		}
		ix.Insert(newRow[colIdx], hashindex.RowRef(ref))
	}

	body := make([]byte, 8+len(encoded))
	rowByteOrder.PutUint64(body[:8], uint64(ref))
	copy(body[8:], encoded)
	return ref, body, nil
}

// ApplyUpdateReplay re-applies a WAL update body directly (no predicate
// resolution) during recovery.
func (t *Table) ApplyUpdateReplay(body []byte) error {
	if len(body) < 8 {
		return fmt.Errorf("storage: update replay body too short")
	}
	ref := RowRef(rowByteOrder.Uint64(body[:8]))
	newRow, _, err := DecodeRow(t.schema, body[8:])
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	oldRow, _ := t.readLocked(ref)
	_, _, err = t.updateByRefLocked(ref, oldRow, newRow)
	return err
}

// DeleteByPredicate tombstones every row matching predicate (nil means
// every row), returning the reference of each row removed.
func (t *Table) DeleteByPredicate(predicate *plan.Predicate) ([]RowRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	matches, err := t.scanLocked(predicate)
	if err != nil {
		return nil, err
	}
	refs := make([]RowRef, 0, len(matches))
	for _, m := range matches {
		if err := t.deleteByRefLocked(m.Ref, m.Row); err != nil {
			return nil, err
		}
		refs = append(refs, m.Ref)
	}
	return refs, nil
}

func (t *Table) deleteByRefLocked(ref RowRef, row plan.Row) error {
	loc, err := t.resolve(ref)
	if err != nil {
		return err
	}
	pp, err := t.cache.Get(loc.pageID, pagecache.PinWrite)
	if err != nil {
		return err
	}
	t.snapshotBeforeWrite(loc.pageID)
	if err := pp.Page().Delete(loc.slot); err != nil {
		pp.Unpin()
		return err
	}
	pp.MarkDirty()
	t.fsd.Track(loc.pageID, pp.Page().FreeBytes())
	pp.Unpin()

	for col, ix := range t.indexes {
		colIdx := t.schema.IndexOf(col)
		if colIdx < 0 || !ix.Built() || row == nil {
			continue
		}
		ix.Remove(row[colIdx], hashindex.RowRef(ref))
	}
	return nil
}

// ApplyDeleteReplay re-applies a WAL delete body directly during recovery.
func (t *Table) ApplyDeleteReplay(body []byte) error {
	if len(body) < 8 {
		return fmt.Errorf("storage: delete replay body too short")
	}
	ref := RowRef(rowByteOrder.Uint64(body[:8]))
	t.mu.Lock()
	defer t.mu.Unlock()
	row, _ := t.readLocked(ref)
	return t.deleteByRefLocked(ref, row)
}

// ApplyInsertReplay re-inserts a WAL insert body directly during
// recovery, without re-validating schema (the record was already valid
// when first written).
func (t *Table) ApplyInsertReplay(body []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ref, err := t.insertLocked(body)
	if err != nil {
		return err
	}
	t.indexAfterInsertLocked(ref, body)
	return nil
}
