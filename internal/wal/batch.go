package wal

import "fmt"

// Opcode identifies the statement effect carried by one entry of a batch
// payload.
type Opcode uint8

const (
	OpInsert Opcode = iota + 1
	OpUpdate
	OpDelete
)

// BatchEntry is one statement's effect within a batch frame's inner
// sequence: an opcode, the table it applies to, and an opaque body whose
// encoding is owned by the storage layer (the encoded row for an insert, a
// RowRef followed by the encoded row for an update, a bare RowRef for a
// delete).
type BatchEntry struct {
	Op      Opcode
	TableID uint32
	Body    []byte
}

// EncodeBatchPayload serialises entries into the inner binary sequence
// carried by a WAL batch-type record: a u32 statement count followed by
// one opcode(1) | table_id(4) | body_len(4) | body tuple per entry.
func EncodeBatchPayload(entries []BatchEntry) []byte {
	size := 4
	for _, e := range entries {
		size += 1 + 4 + 4 + len(e.Body)
	}
	buf := make([]byte, size)
	ByteOrder.PutUint32(buf[0:4], uint32(len(entries)))
	off := 4
	for _, e := range entries {
		buf[off] = byte(e.Op)
		off++
		ByteOrder.PutUint32(buf[off:off+4], e.TableID)
		off += 4
		ByteOrder.PutUint32(buf[off:off+4], uint32(len(e.Body)))
		off += 4
		copy(buf[off:], e.Body)
		off += len(e.Body)
	}
	return buf
}

// DecodeBatchPayload parses the inner sequence back into entries.
func DecodeBatchPayload(buf []byte) ([]BatchEntry, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("wal: batch payload too short for count")
	}
	count := ByteOrder.Uint32(buf[0:4])
	entries := make([]BatchEntry, 0, count)
	off := 4
	for i := uint32(0); i < count; i++ {
		if off+9 > len(buf) {
			return nil, fmt.Errorf("wal: batch payload truncated at entry %d", i)
		}
		op := Opcode(buf[off])
		off++
		tableID := ByteOrder.Uint32(buf[off : off+4])
		off += 4
		bodyLen := int(ByteOrder.Uint32(buf[off : off+4]))
		off += 4
		if off+bodyLen > len(buf) {
			return nil, fmt.Errorf("wal: batch payload body truncated at entry %d", i)
		}
		body := buf[off : off+bodyLen]
		off += bodyLen
		entries = append(entries, BatchEntry{Op: op, TableID: tableID, Body: body})
	}
	return entries, nil
}

// mergeBatchPayloads concatenates the statement sequences of several
// independently-encoded batch payloads into one, preserving relative
// order — this is how the group committer coalesces N producers' commit
// calls into a single outer WAL record without losing per-statement
// ordering.
func mergeBatchPayloads(payloads [][]byte) ([]byte, error) {
	if len(payloads) == 1 {
		return payloads[0], nil
	}
	var all []BatchEntry
	for _, p := range payloads {
		entries, err := DecodeBatchPayload(p)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return EncodeBatchPayload(all), nil
}
