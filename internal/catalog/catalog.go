// Package catalog implements the table catalog and batch driver (C10):
// the persisted header page naming every table's schema and root page
// pointer, and the BeginBatch/EndBatch orchestration that coalesces a
// batch's statement effects into one WAL commit (spec §4.10).
package catalog

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/sharpcoredb/core/internal/page"
	"github.com/sharpcoredb/core/internal/pagecache"
	"github.com/sharpcoredb/core/internal/plan"
	"github.com/sharpcoredb/core/internal/storage"
)

var byteOrder = binary.LittleEndian

// catalogMagic identifies a SharpCoreDB catalog file, distinct from a
// data page's magic so the two files can never be confused.
const catalogMagic uint32 = 0x53_43_44_42

const catalogVersion uint16 = 1

// Catalog owns every Table in the database and the single persisted page
// (spec §6: "catalog — a file holding a single catalog page") recording
// each table's name, id, schema, and root page pointer, plus the
// encryption flag, KDF salt, and last checkpoint LSN.
type Catalog struct {
	mu sync.RWMutex

	path     string
	pageSize int

	encrypted     bool
	salt          []byte
	checkpointLSN uint64

	cache       *pagecache.Cache
	tables      map[string]*storage.Table
	byID        map[uint16]*storage.Table
	nextTableID uint16
}

// Create initialises a brand-new, empty catalog file at path.
func Create(path string, pageSize int, encrypted bool, salt []byte, cache *pagecache.Cache) (*Catalog, error) {
	c := &Catalog{
		path:        path,
		pageSize:    pageSize,
		encrypted:   encrypted,
		salt:        salt,
		cache:       cache,
		tables:      make(map[string]*storage.Table),
		byID:        make(map[uint16]*storage.Table),
		nextTableID: 1,
	}
	if err := c.save(true); err != nil {
		return nil, err
	}
	return c, nil
}

// PeekEncryption reads just enough of an existing catalog file to learn
// whether the database was created with encryption enabled and, if so,
// its KDF salt — both needed to derive the page-cache key before the
// cache (and therefore the rest of Open) can exist.
func PeekEncryption(path string) (encrypted bool, salt []byte, err error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return false, nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	h := page.DecodeHeader(buf)
	if h.Magic != catalogMagic {
		return false, nil, fmt.Errorf("catalog: bad magic %#x", h.Magic)
	}
	if got := page.Checksum(buf); got != h.Checksum {
		return false, nil, fmt.Errorf("catalog: checksum mismatch: stored %#x, computed %#x", h.Checksum, got)
	}
	_, payload := page.Decode(buf)
	if len(payload) < 2 {
		return false, nil, fmt.Errorf("catalog: body too short")
	}
	encrypted = payload[0] == 1
	saltLen := int(payload[1])
	if 2+saltLen > len(payload) {
		return false, nil, fmt.Errorf("catalog: salt truncated")
	}
	salt = append([]byte(nil), payload[2:2+saltLen]...)
	return encrypted, salt, nil
}

// Open loads an existing catalog file, reconstructing every table's page
// chain and lazily-buildable indexes against cache.
func Open(path string, pageSize int, cache *pagecache.Cache) (*Catalog, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	if len(buf) < pageSize {
		padded := make([]byte, pageSize)
		copy(padded, buf)
		buf = padded
	}
	h := page.DecodeHeader(buf)
	if h.Magic != catalogMagic {
		return nil, fmt.Errorf("catalog: bad magic %#x", h.Magic)
	}
	if h.Version != catalogVersion {
		return nil, fmt.Errorf("catalog: unsupported version %d", h.Version)
	}
	if got := page.Checksum(buf); got != h.Checksum {
		return nil, fmt.Errorf("catalog: checksum mismatch: stored %#x, computed %#x", h.Checksum, got)
	}
	_, payload := page.Decode(buf)

	c := &Catalog{
		path:     path,
		pageSize: pageSize,
		cache:    cache,
		tables:   make(map[string]*storage.Table),
		byID:     make(map[uint16]*storage.Table),
	}
	metas, err := decodeCatalogBody(c, payload)
	if err != nil {
		return nil, err
	}

	maxID := uint16(0)
	for _, m := range metas {
		t, err := storage.New(m.name, m.id, m.schema, m.schemaID, cache, m.rootPage)
		if err != nil {
			return nil, fmt.Errorf("catalog: load table %q: %w", m.name, err)
		}
		c.tables[m.name] = t
		c.byID[m.id] = t
		if m.id > maxID {
			maxID = m.id
		}
	}
	c.nextTableID = maxID + 1
	return c, nil
}

// Encrypted reports whether this database was created with at-rest
// encryption enabled.
func (c *Catalog) Encrypted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.encrypted
}

// Salt returns the KDF salt persisted at Create, for re-deriving the key
// on every Open.
func (c *Catalog) Salt() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.salt
}

// CheckpointLSN returns the last LSN known to be reflected durably in the
// data file.
func (c *Catalog) CheckpointLSN() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checkpointLSN
}

// CreateTable registers a new, empty table and persists the catalog
// immediately: DDL is rare enough that a synchronous fsync here is not a
// throughput concern, and future row operations on this table depend on
// its descriptor already being durable.
func (c *Catalog) CreateTable(name string, columns []plan.Column) (*storage.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tables[name]; exists {
		return nil, fmt.Errorf("catalog: table %q already exists", name)
	}
	id := c.nextTableID
	c.nextTableID++
	schema := plan.Schema{Name: name, Columns: columns}
	t, err := storage.New(name, id, schema, uint32(id), c.cache, storage.NoNextPage)
	if err != nil {
		return nil, err
	}
	c.tables[name] = t
	c.byID[id] = t
	if err := c.saveLocked(true); err != nil {
		delete(c.tables, name)
		delete(c.byID, id)
		c.nextTableID--
		return nil, err
	}
	return t, nil
}

// Table returns the table named name, if any.
func (c *Catalog) Table(name string) (*storage.Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	return t, ok
}

// TableByID returns the table with the given catalog id, used by WAL
// recovery replay which only carries table ids.
func (c *Catalog) TableByID(id uint32) (*storage.Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byID[uint16(id)]
	return t, ok
}

// TableNames returns every registered table name.
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for n := range c.tables {
		names = append(names, n)
	}
	return names
}

// Checkpoint advances the persisted checkpoint LSN and root-page pointers
// to reflect a just-completed, already-flushed commit, and saves the
// catalog. sync forces the write to stable media (FullSync durability);
// otherwise it is a buffered write, matching the page cache's own
// fsync-iff-durability-mode policy for the same commit.
func (c *Catalog) Checkpoint(lsn uint64, sync bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lsn > c.checkpointLSN {
		c.checkpointLSN = lsn
	}
	return c.saveLocked(sync)
}

// SetCheckpointLSN overwrites the checkpoint LSN directly, used once at
// the end of WAL recovery (spec §4.7 step 5).
func (c *Catalog) SetCheckpointLSN(lsn uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkpointLSN = lsn
	return c.saveLocked(true)
}

func (c *Catalog) save(sync bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked(sync)
}

func (c *Catalog) saveLocked(sync bool) error {
	payload := c.encodeBodyLocked()
	buf := make([]byte, c.pageSize)
	if len(payload) > len(buf)-page.HeaderSize {
		return fmt.Errorf("catalog: descriptor set too large for one catalog page (%d > %d)", len(payload), len(buf)-page.HeaderSize)
	}
	h := page.Header{Magic: catalogMagic, Version: catalogVersion, PageType: page.TypeDirectory}
	copy(buf[page.HeaderSize:], payload)
	h.Checksum = page.Checksum(buf)
	page.EncodeHeader(h, buf)
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("catalog: open %s: %w", c.path, err)
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("catalog: write %s: %w", c.path, err)
	}
	if sync {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("catalog: fsync %s: %w", c.path, err)
		}
	}
	return nil
}

type tableMeta struct {
	name     string
	id       uint16
	rootPage uint64
	schemaID uint32
	schema   plan.Schema
}

func (c *Catalog) encodeBodyLocked() []byte {
	buf := make([]byte, 0, 256)
	var b1 [1]byte
	if c.encrypted {
		b1[0] = 1
	}
	buf = append(buf, b1[0])
	buf = append(buf, byte(len(c.salt)))
	buf = append(buf, c.salt...)
	var b8 [8]byte
	byteOrder.PutUint64(b8[:], c.checkpointLSN)
	buf = append(buf, b8[:]...)

	var b4 [4]byte
	byteOrder.PutUint32(b4[:], uint32(len(c.tables)))
	buf = append(buf, b4[:]...)

	for name, t := range c.tables {
		buf = appendString16(buf, name)
		var idb [2]byte
		byteOrder.PutUint16(idb[:], t.ID())
		buf = append(buf, idb[:]...)
		byteOrder.PutUint64(b8[:], t.RootPage())
		buf = append(buf, b8[:]...)
		var sidb [4]byte
		byteOrder.PutUint32(sidb[:], uint32(t.ID()))
		buf = append(buf, sidb[:]...)

		cols := t.Schema().Columns
		var cb [2]byte
		byteOrder.PutUint16(cb[:], uint16(len(cols)))
		buf = append(buf, cb[:]...)
		for _, col := range cols {
			buf = appendString16(buf, col.Name)
			buf = append(buf, byte(col.Type))
			if col.Indexed {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		}
	}
	return buf
}

func appendString16(buf []byte, s string) []byte {
	var lb [2]byte
	byteOrder.PutUint16(lb[:], uint16(len(s)))
	buf = append(buf, lb[:]...)
	return append(buf, s...)
}

func decodeCatalogBody(c *Catalog, buf []byte) ([]tableMeta, error) {
	if len(buf) < 1+1 {
		return nil, fmt.Errorf("catalog: body too short")
	}
	off := 0
	c.encrypted = buf[off] == 1
	off++
	saltLen := int(buf[off])
	off++
	if off+saltLen > len(buf) {
		return nil, fmt.Errorf("catalog: salt truncated")
	}
	c.salt = append([]byte(nil), buf[off:off+saltLen]...)
	off += saltLen

	if off+8 > len(buf) {
		return nil, fmt.Errorf("catalog: checkpoint lsn truncated")
	}
	c.checkpointLSN = byteOrder.Uint64(buf[off : off+8])
	off += 8

	if off+4 > len(buf) {
		return nil, fmt.Errorf("catalog: table count truncated")
	}
	count := byteOrder.Uint32(buf[off : off+4])
	off += 4

	metas := make([]tableMeta, 0, count)
	for i := uint32(0); i < count; i++ {
		name, n, err := readString16(buf, off)
		if err != nil {
			return nil, err
		}
		off = n
		if off+2+8+4+2 > len(buf) {
			return nil, fmt.Errorf("catalog: table descriptor %d truncated", i)
		}
		id := byteOrder.Uint16(buf[off : off+2])
		off += 2
		root := byteOrder.Uint64(buf[off : off+8])
		off += 8
		schemaID := byteOrder.Uint32(buf[off : off+4])
		off += 4
		colCount := byteOrder.Uint16(buf[off : off+2])
		off += 2

		cols := make([]plan.Column, 0, colCount)
		for j := uint16(0); j < colCount; j++ {
			colName, n2, err := readString16(buf, off)
			if err != nil {
				return nil, err
			}
			off = n2
			if off+2 > len(buf) {
				return nil, fmt.Errorf("catalog: column descriptor truncated")
			}
			typ := plan.ValueKind(buf[off])
			indexed := buf[off+1] == 1
			off += 2
			cols = append(cols, plan.Column{Name: colName, Type: typ, Indexed: indexed})
		}

		metas = append(metas, tableMeta{
			name:     name,
			id:       id,
			rootPage: root,
			schemaID: schemaID,
			schema:   plan.Schema{Name: name, Columns: cols},
		})
	}
	return metas, nil
}

func readString16(buf []byte, off int) (string, int, error) {
	if off+2 > len(buf) {
		return "", 0, fmt.Errorf("catalog: string length truncated")
	}
	l := int(byteOrder.Uint16(buf[off : off+2]))
	off += 2
	if off+l > len(buf) {
		return "", 0, fmt.Errorf("catalog: string body truncated")
	}
	return string(buf[off : off+l]), off + l, nil
}
