package storage

// RowRef is the opaque external row identifier of spec §3: a 64-bit
// packing of (table_id, page_id, slot_index) that stays stable across an
// in-place update (and across an update that forwards to a new slot —
// the caller's RowRef value never changes, only what it resolves to).
//
// Layout: table_id occupies the top 16 bits (up to 65535 tables),
// page_id the next 32, slot_index the low 16 — a table's pages are
// addressed within its own 32-bit page-id space, and a page holds at
// most 65536 slots, both generous for a 4KiB default page size.
type RowRef uint64

func NewRowRef(tableID uint16, pageID uint32, slot uint16) RowRef {
	return RowRef(uint64(tableID)<<48 | uint64(pageID)<<16 | uint64(slot))
}

func (r RowRef) TableID() uint16 { return uint16(r >> 48) }
func (r RowRef) PageID() uint32  { return uint32(r >> 16) }
func (r RowRef) Slot() uint16    { return uint16(r) }
