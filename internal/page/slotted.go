package page

import "fmt"

// Slot directory entries grow backward from the end of the page; row
// records grow forward from HeaderSize. Each directory entry is 3 bytes:
// a 2-byte offset into the payload region and a 1-byte flag set.
const dirEntrySize = 3

const (
	slotFlagDead      uint8 = 1 << iota // tombstoned; space reclaimable by compaction
	slotFlagForwarder                  // payload is an 8-byte RowRef to follow instead
)

// ErrNoSpace is returned by Insert when the page cannot fit the slot.
var ErrNoSpace = fmt.Errorf("page: not enough free space")

// SlottedPage is a mutable view over a page-sized buffer implementing the
// slotted layout: length-prefixed row records growing from the header,
// and a slot directory growing from the tail. The buffer is owned by the
// caller (typically a buffer-pool page or a page-cache frame); SlottedPage
// never allocates it.
//
// EntryCount in the header tracks the total number of directory entries
// ever allocated on this page, not just the live ones — slot indices must
// stay stable across delete and forward so that a RowRef keeps addressing
// the same slot. Liveness is a per-slot flag, not a count.
type SlottedPage struct {
	buf []byte
}

// New initialises a fresh page of the given type in buf, which must be
// exactly the configured page size.
func New(buf []byte, pageType Type) *SlottedPage {
	for i := range buf {
		buf[i] = 0
	}
	h := Header{
		Magic:           Magic,
		Version:         Version,
		PageType:        pageType,
		EntryCount:      0,
		FreeSpaceOffset: HeaderSize,
		NextPageID:      0,
	}
	EncodeHeader(h, buf)
	return &SlottedPage{buf: buf}
}

// Open wraps an already-decoded, validated page buffer for slot access.
func Open(buf []byte) *SlottedPage {
	return &SlottedPage{buf: buf}
}

// Bytes returns the underlying buffer.
func (p *SlottedPage) Bytes() []byte { return p.buf }

func (p *SlottedPage) header() Header { return DecodeHeader(p.buf) }

func (p *SlottedPage) setHeader(h Header) { EncodeHeader(h, p.buf) }

// SlotCount returns the total number of directory entries (live and dead).
func (p *SlottedPage) SlotCount() int { return int(p.header().EntryCount) }

// NextPageID returns the page's forward-chain pointer (free-list or
// directory use, depending on page type).
func (p *SlottedPage) NextPageID() uint64 { return p.header().NextPageID }

// SetNextPageID updates the forward-chain pointer and refreshes the
// checksum.
func (p *SlottedPage) SetNextPageID(id uint64) {
	h := p.header()
	h.NextPageID = id
	p.setHeader(h)
	p.Recheck()
}

func (p *SlottedPage) dirOffset(slot uint16) int {
	return len(p.buf) - (int(slot)+1)*dirEntrySize
}

func (p *SlottedPage) readDirEntry(slot uint16) (offset uint16, flags uint8) {
	o := p.dirOffset(slot)
	return ByteOrder.Uint16(p.buf[o : o+2]), p.buf[o+2]
}

func (p *SlottedPage) writeDirEntry(slot uint16, offset uint16, flags uint8) {
	o := p.dirOffset(slot)
	ByteOrder.PutUint16(p.buf[o:o+2], offset)
	p.buf[o+2] = flags
}

// freeBytes returns the number of bytes available between the high-water
// mark of row records and the low-water mark of the slot directory.
func (p *SlottedPage) freeBytes() int {
	h := p.header()
	dirStart := len(p.buf) - int(h.EntryCount)*dirEntrySize
	return dirStart - int(h.FreeSpaceOffset)
}

// FreeBytes returns the current free byte count usable for a new slot,
// accounting for the directory entry the new slot would also need.
func (p *SlottedPage) FreeBytes() int {
	return p.freeBytes() - dirEntrySize
}

// recordSize is the on-page footprint of a row record: row_id(8) +
// length(2) + payload.
func recordSize(payloadLen int) int { return 8 + 2 + payloadLen }

// Insert appends a new row record and directory entry. It returns the new
// slot index, or ErrNoSpace if the page cannot fit it.
func (p *SlottedPage) Insert(rowID uint64, data []byte) (uint16, error) {
	need := recordSize(len(data)) + dirEntrySize
	if need > p.freeBytes() {
		return 0, ErrNoSpace
	}
	h := p.header()
	off := h.FreeSpaceOffset
	ByteOrder.PutUint64(p.buf[off:off+8], rowID)
	ByteOrder.PutUint16(p.buf[off+8:off+10], uint16(len(data)))
	copy(p.buf[off+10:], data)

	slot := h.EntryCount
	p.writeDirEntry(slot, off, 0)

	h.EntryCount++
	h.FreeSpaceOffset = off + uint16(recordSize(len(data)))
	p.setHeader(h)
	p.Recheck()
	return slot, nil
}

// Record is a decoded slot: either a live row, a tombstone, or a
// forwarding marker pointing at another RowRef.
type Record struct {
	RowID     uint64
	Data      []byte
	Dead      bool
	Forwarded bool
	ForwardTo uint64
}

// Get decodes the slot at the given index.
func (p *SlottedPage) Get(slot uint16) (Record, error) {
	if int(slot) >= p.SlotCount() {
		return Record{}, fmt.Errorf("page: slot %d out of range (count %d)", slot, p.SlotCount())
	}
	off, flags := p.readDirEntry(slot)
	rowID := ByteOrder.Uint64(p.buf[off : off+8])
	length := ByteOrder.Uint16(p.buf[off+8 : off+10])
	data := p.buf[off+10 : off+10+length]

	rec := Record{RowID: rowID, Dead: flags&slotFlagDead != 0}
	if flags&slotFlagForwarder != 0 {
		rec.Forwarded = true
		rec.ForwardTo = ByteOrder.Uint64(data)
		return rec, nil
	}
	rec.Data = data
	return rec, nil
}

// UpdateInPlace overwrites the payload of an existing, non-forwarding slot.
// The caller must have already verified the new payload is no larger than
// the existing one (same-size or shrinking updates only); growing updates
// go through MarkForward plus a fresh Insert on a page with room.
func (p *SlottedPage) UpdateInPlace(slot uint16, data []byte) error {
	if int(slot) >= p.SlotCount() {
		return fmt.Errorf("page: slot %d out of range", slot)
	}
	off, flags := p.readDirEntry(slot)
	if flags&slotFlagDead != 0 {
		return fmt.Errorf("page: slot %d is dead", slot)
	}
	existingLen := ByteOrder.Uint16(p.buf[off+8 : off+10])
	if len(data) > int(existingLen) {
		return fmt.Errorf("page: in-place update grew payload (%d -> %d)", existingLen, len(data))
	}
	ByteOrder.PutUint16(p.buf[off+8:off+10], uint16(len(data)))
	copy(p.buf[off+10:off+10+len(data)], data)
	p.Recheck()
	return nil
}

// MarkForward converts the slot into a forwarding marker pointing at
// target, a RowRef encoding the row's new location. The old slot's space
// is not reclaimed until compaction.
func (p *SlottedPage) MarkForward(slot uint16, target uint64) error {
	if int(slot) >= p.SlotCount() {
		return fmt.Errorf("page: slot %d out of range", slot)
	}
	off, _ := p.readDirEntry(slot)
	existingLen := ByteOrder.Uint16(p.buf[off+8 : off+10])
	if existingLen < 8 {
		return fmt.Errorf("page: slot %d too small to hold a forwarding marker", slot)
	}
	ByteOrder.PutUint16(p.buf[off+8:off+10], 8)
	ByteOrder.PutUint64(p.buf[off+10:off+18], target)
	p.writeDirEntry(slot, off, slotFlagForwarder)
	p.Recheck()
	return nil
}

// Delete tombstones a slot. The slot index remains allocated (and thus
// addressable, returning Dead=true) until the page is compacted.
func (p *SlottedPage) Delete(slot uint16) error {
	if int(slot) >= p.SlotCount() {
		return fmt.Errorf("page: slot %d out of range", slot)
	}
	off, flags := p.readDirEntry(slot)
	p.writeDirEntry(slot, off, flags|slotFlagDead)
	p.Recheck()
	return nil
}

// LiveCount returns the number of non-dead slots; forwarding markers count
// as live.
func (p *SlottedPage) LiveCount() int {
	n := 0
	for i := 0; i < p.SlotCount(); i++ {
		_, flags := p.readDirEntry(uint16(i))
		if flags&slotFlagDead == 0 {
			n++
		}
	}
	return n
}

// Compact rewrites the page in place, dropping dead slots' record bytes
// and reclaiming their space. Live slot indices are NOT preserved across
// compaction — callers must hold exclusive access and update any external
// references. No write path calls it: neither the free-space directory nor
// the storage engine triggers compaction.
func (p *SlottedPage) Compact() {
	h := p.header()
	type kept struct {
		rowID uint64
		data  []byte
		flags uint8
	}
	var entries []kept
	for i := 0; i < int(h.EntryCount); i++ {
		rec, err := p.Get(uint16(i))
		if err != nil {
			continue
		}
		if rec.Dead {
			continue
		}
		if rec.Forwarded {
			buf := make([]byte, 8)
			ByteOrder.PutUint64(buf, rec.ForwardTo)
			entries = append(entries, kept{rowID: rec.RowID, data: buf, flags: slotFlagForwarder})
			continue
		}
		entries = append(entries, kept{rowID: rec.RowID, data: rec.Data, flags: 0})
	}

	pageType := h.PageType
	nextPageID := h.NextPageID
	New(p.buf, pageType)
	p.SetNextPageID(nextPageID)
	for _, e := range entries {
		slot, err := p.Insert(e.rowID, e.data)
		if err != nil {
			// Compaction only ever shrinks total occupancy, so this should
			// not happen; surface it loudly rather than silently drop rows.
			panic(fmt.Sprintf("page: compaction ran out of space: %v", err))
		}
		if e.flags&slotFlagForwarder != 0 {
			off, _ := p.readDirEntry(slot)
			p.writeDirEntry(slot, off, slotFlagForwarder)
		}
	}
}

// Recheck recomputes and stores the page checksum. Every mutating method
// calls this, so callers never need to invoke it directly except after
// raw buffer manipulation outside this type (decryption in place, etc).
func (p *SlottedPage) Recheck() {
	h := p.header()
	h.Checksum = Checksum(p.buf)
	p.setHeader(h)
}
