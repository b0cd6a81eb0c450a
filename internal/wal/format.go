// Package wal implements the append-only, segmented write-ahead log and
// its group-commit committer: the durability boundary every batch write
// passes through before it is visible to a reopened database.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// ByteOrder is the byte order for every multi-byte field the WAL writes.
var ByteOrder = binary.LittleEndian

// RecordType distinguishes the three kinds of WAL records.
type RecordType uint8

const (
	TypeRowOp RecordType = iota + 1
	TypeBatch
	TypeCheckpoint
)

// RecordHeaderSize is the fixed prefix preceding a record's payload:
// length(4) + crc32(4) + type(1) + lsn(8).
const RecordHeaderSize = 17

// MaxRecordSize bounds a single record to guard recovery against a
// corrupted length field driving an unbounded allocation.
const MaxRecordSize = 64 * 1024 * 1024

// RecordHeader is the parsed form of a WAL record's fixed prefix.
type RecordHeader struct {
	Length uint32 // total record bytes excluding this field
	CRC32  uint32 // covers bytes [8:] of the record: type, lsn, payload
	Type   RecordType
	LSN    uint64
}

// EncodeRecord builds a complete WAL record: header plus payload.
func EncodeRecord(typ RecordType, lsn uint64, payload []byte) []byte {
	body := make([]byte, 1+8+len(payload))
	body[0] = byte(typ)
	ByteOrder.PutUint64(body[1:9], lsn)
	copy(body[9:], payload)

	crc := crc32.ChecksumIEEE(body)

	buf := make([]byte, 4+4+len(body))
	ByteOrder.PutUint32(buf[0:4], uint32(4+len(body)))
	ByteOrder.PutUint32(buf[4:8], crc)
	copy(buf[8:], body)
	return buf
}

// DecodeRecordHeader parses the 4-byte length field plus the following
// RecordHeaderSize-4 bytes. buf must hold at least RecordHeaderSize bytes;
// a shorter buf is an error.
func DecodeRecordHeader(buf []byte) (RecordHeader, error) {
	if len(buf) < 8 {
		return RecordHeader{}, fmt.Errorf("wal: buffer too short for record header")
	}
	length := ByteOrder.Uint32(buf[0:4])
	if length < uint32(RecordHeaderSize-4) || length > MaxRecordSize {
		return RecordHeader{}, fmt.Errorf("wal: implausible record length %d", length)
	}
	crc := ByteOrder.Uint32(buf[4:8])
	if len(buf) < 8+1+8 {
		return RecordHeader{}, fmt.Errorf("wal: buffer too short for record body")
	}
	return RecordHeader{
		Length: length,
		CRC32:  crc,
		Type:   RecordType(buf[8]),
		LSN:    ByteOrder.Uint64(buf[9:17]),
	}, nil
}

// VerifyCRC checks a fully-read record (header.Length+4 bytes starting at
// offset 0 of buf) against its stored CRC32.
func VerifyCRC(h RecordHeader, buf []byte) error {
	body := buf[8 : 4+h.Length]
	got := crc32.ChecksumIEEE(body)
	if got != h.CRC32 {
		return fmt.Errorf("wal: crc mismatch: stored %#x computed %#x", h.CRC32, got)
	}
	return nil
}

// TotalLen is the number of bytes the full record occupies on disk,
// including the 4-byte length field itself.
func (h RecordHeader) TotalLen() int { return 4 + int(h.Length) }

// Payload extracts the payload view from a fully-read record buffer.
func Payload(h RecordHeader, buf []byte) []byte {
	return buf[17:h.TotalLen()]
}
