// Package page implements the fixed-size slotted-page codec: the on-disk
// layout of a single page, its CRC32 integrity check, and the slot
// directory used by the storage engine for in-place row storage.
package page

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// ByteOrder is the byte order for every multi-byte field in a page.
var ByteOrder = binary.LittleEndian

// Magic identifies a SharpCoreDB page file.
const Magic uint32 = 0x50_43_44_42

// Version is the current page format version.
const Version uint16 = 1

// DefaultSize is the default page size in bytes.
const DefaultSize = 4096

// HeaderSize is the fixed size of the page header.
const HeaderSize = 24

// Type identifies the purpose of a page.
type Type uint8

const (
	TypeData Type = iota
	TypeIndex
	TypeFree
	TypeDirectory
)

// Flag bits for Header.Flags.
const (
	FlagEncrypted uint8 = 1 << iota
)

// Header is the fixed 24-byte page header, stored plaintext even when the
// payload is encrypted.
type Header struct {
	Magic           uint32
	Version         uint16
	PageType        Type
	Flags           uint8
	EntryCount      uint16
	FreeSpaceOffset uint16
	NextPageID      uint64
	Checksum        uint32
}

// EncodeHeader writes h into the first HeaderSize bytes of buf.
func EncodeHeader(h Header, buf []byte) {
	if len(buf) < HeaderSize {
		panic("page: buffer too small for header")
	}
	ByteOrder.PutUint32(buf[0:4], h.Magic)
	ByteOrder.PutUint16(buf[4:6], h.Version)
	buf[6] = byte(h.PageType)
	buf[7] = h.Flags
	ByteOrder.PutUint16(buf[8:10], h.EntryCount)
	ByteOrder.PutUint16(buf[10:12], h.FreeSpaceOffset)
	ByteOrder.PutUint64(buf[12:20], h.NextPageID)
	ByteOrder.PutUint32(buf[20:24], h.Checksum)
}

// DecodeHeader reads a Header from the first HeaderSize bytes of buf.
func DecodeHeader(buf []byte) Header {
	if len(buf) < HeaderSize {
		panic("page: buffer too small for header")
	}
	return Header{
		Magic:           ByteOrder.Uint32(buf[0:4]),
		Version:         ByteOrder.Uint16(buf[4:6]),
		PageType:        Type(buf[6]),
		Flags:           buf[7],
		EntryCount:      ByteOrder.Uint16(buf[8:10]),
		FreeSpaceOffset: ByteOrder.Uint16(buf[10:12]),
		NextPageID:      ByteOrder.Uint64(buf[12:20]),
		Checksum:        ByteOrder.Uint32(buf[20:24]),
	}
}

// Checksum computes the CRC32 covering the header (excluding the checksum
// field itself) concatenated with the payload region that follows it.
func Checksum(buf []byte) uint32 {
	crc := crc32.NewIEEE()
	crc.Write(buf[0:20])
	crc.Write(buf[HeaderSize:])
	return crc.Sum32()
}

// Encode writes header and payload into out, computing and storing the
// checksum. out must be exactly the page size. No allocation occurs beyond
// what the caller already provided in out.
func Encode(h Header, payload []byte, out []byte) error {
	if len(out) < HeaderSize+len(payload) {
		return fmt.Errorf("page: output buffer too small: have %d, need %d", len(out), HeaderSize+len(payload))
	}
	copy(out[HeaderSize:], payload)
	h.Checksum = Checksum(out[:HeaderSize+len(payload)])
	EncodeHeader(h, out)
	return nil
}

// Decode parses buf into a header and a payload view that aliases buf — no
// copy is made, so the view's lifetime is tied to the caller's buffer.
func Decode(buf []byte) (Header, []byte) {
	h := DecodeHeader(buf)
	return h, buf[HeaderSize:]
}

// Validate returns nil iff magic and version match and the recomputed
// checksum equals the stored one.
func Validate(buf []byte) error {
	h := DecodeHeader(buf)
	if h.Magic != Magic {
		return fmt.Errorf("page: bad magic %#x", h.Magic)
	}
	if h.Version != Version {
		return fmt.Errorf("page: unsupported version %d", h.Version)
	}
	got := Checksum(buf)
	if got != h.Checksum {
		return fmt.Errorf("page: checksum mismatch: stored %#x, computed %#x", h.Checksum, got)
	}
	return nil
}
