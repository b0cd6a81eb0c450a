package pagecache

import (
	"fmt"
	"os"

	"github.com/sharpcoredb/core/internal/crypto"
	"github.com/sharpcoredb/core/internal/page"
)

// aeadOverhead is the extra bytes an encrypted page's trailer needs beyond
// the plaintext payload it carries: a 12-byte nonce plus a 16-byte tag.
const aeadOverhead = crypto.NonceSize + crypto.TagSize

// dataFile wraps the on-disk page file: a contiguous sequence of
// fixed-size pages addressed by page_id starting at 0, optionally
// encrypted below the page header. When encryption is enabled, the
// logical (plaintext) buffer handed to the slotted-page codec is smaller
// than the on-disk page size by aeadOverhead bytes, since the physical
// page must also hold the nonce and tag.
type dataFile struct {
	f           *os.File
	pageSize    int // on-disk, physical
	logicalSize int // buffer size handed to page.SlottedPage
	key         []byte
}

func openDataFile(path string, pageSize int, key []byte) (*dataFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("pagecache: open data file: %w", err)
	}
	logical := pageSize
	if key != nil {
		logical = pageSize - aeadOverhead
	}
	return &dataFile{f: f, pageSize: pageSize, logicalSize: logical, key: key}, nil
}

func (d *dataFile) close() error { return d.f.Close() }

func (d *dataFile) sync() error { return d.f.Sync() }

// bufferSize is the size of buffer callers must allocate for readPage /
// writePage and for page.New / page.SlottedPage.
func (d *dataFile) bufferSize() int { return d.logicalSize }

// pageCount returns how many whole pages currently exist in the file.
func (d *dataFile) pageCount() (uint64, error) {
	info, err := d.f.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()) / uint64(d.pageSize), nil
}

// readPage reads and (if configured) decrypts page id into a caller-owned
// plaintext buffer of exactly logicalSize bytes, then validates it.
func (d *dataFile) readPage(id uint64, out []byte) error {
	raw := make([]byte, d.pageSize)
	if _, err := d.f.ReadAt(raw, int64(id)*int64(d.pageSize)); err != nil {
		return fmt.Errorf("pagecache: read page %d: %w", id, err)
	}

	if d.key == nil {
		copy(out, raw)
		return page.Validate(out)
	}

	copy(out[:page.HeaderSize], raw[:page.HeaderSize])
	h := page.DecodeHeader(raw)
	if h.Flags&page.FlagEncrypted == 0 {
		copy(out, raw[:len(out)])
		return page.Validate(out)
	}

	trailer := raw[page.HeaderSize:]
	nonce := trailer[:crypto.NonceSize]
	tag := trailer[len(trailer)-crypto.TagSize:]
	ciphertext := trailer[crypto.NonceSize : len(trailer)-crypto.TagSize]

	plaintext, err := crypto.Open(d.key, aadForPage(id), nonce, ciphertext, tag, fmt.Sprintf("page %d", id))
	if err != nil {
		return err
	}
	copy(out[page.HeaderSize:], plaintext)
	return page.Validate(out)
}

// writePage encrypts (if configured) and writes a logical-size plaintext
// page buffer to disk at its slot.
func (d *dataFile) writePage(id uint64, buf []byte) error {
	if d.key == nil {
		_, err := d.f.WriteAt(buf, int64(id)*int64(d.pageSize))
		return err
	}

	// FlagEncrypted must be set, and the checksum recomputed over it, before
	// sealing: readPage reconstructs the logical buffer with this header
	// (flag included) alongside the decrypted payload and validates against
	// the same checksum, so both sides need to agree on the flags byte the
	// checksum was taken over.
	h := page.DecodeHeader(buf)
	h.Flags |= page.FlagEncrypted
	page.EncodeHeader(h, buf)
	page.Open(buf).Recheck()

	plaintext := buf[page.HeaderSize:]
	nonce, ciphertext, tag, err := crypto.Seal(d.key, aadForPage(id), plaintext)
	if err != nil {
		return fmt.Errorf("pagecache: encrypt page %d: %w", id, err)
	}

	raw := make([]byte, d.pageSize)
	copy(raw[:page.HeaderSize], buf[:page.HeaderSize])
	trailer := raw[page.HeaderSize:]
	copy(trailer, nonce)
	copy(trailer[crypto.NonceSize:], ciphertext)
	copy(trailer[len(trailer)-crypto.TagSize:], tag)

	_, err = d.f.WriteAt(raw, int64(id)*int64(d.pageSize))
	return err
}

func aadForPage(id uint64) []byte {
	aad := make([]byte, 8)
	page.ByteOrder.PutUint64(aad, id)
	return aad
}
