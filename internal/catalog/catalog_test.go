package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/sharpcoredb/core/internal/catalog"
	"github.com/sharpcoredb/core/internal/page"
	"github.com/sharpcoredb/core/internal/pagecache"
	"github.com/sharpcoredb/core/internal/plan"
)

func openCache(t *testing.T) (*pagecache.Cache, string) {
	t.Helper()
	dir := t.TempDir()
	cache, err := pagecache.Open(filepath.Join(dir, "data"), page.DefaultSize, 32, nil)
	assert.NilError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache, dir
}

func TestCreateTableThenReopenRoundTrips(t *testing.T) {
	cache, dir := openCache(t)
	catalogPath := filepath.Join(dir, "catalog")

	cat, err := catalog.Create(catalogPath, page.DefaultSize, false, nil, cache)
	assert.NilError(t, err)

	cols := []plan.Column{
		{Name: "id", Type: plan.KindInt},
		{Name: "name", Type: plan.KindText, Indexed: true},
	}
	_, err = cat.CreateTable("widgets", cols)
	assert.NilError(t, err)

	assert.NilError(t, cat.Checkpoint(42, true))

	reopened, err := catalog.Open(catalogPath, page.DefaultSize, cache)
	assert.NilError(t, err)

	tbl, ok := reopened.Table("widgets")
	assert.Assert(t, ok)
	assert.Equal(t, tbl.Name(), "widgets")
	assert.Equal(t, len(tbl.Schema().Columns), 2)
	assert.Equal(t, reopened.CheckpointLSN(), uint64(42))
}

func TestCreateTableDuplicateNameFails(t *testing.T) {
	cache, dir := openCache(t)
	cat, err := catalog.Create(filepath.Join(dir, "catalog"), page.DefaultSize, false, nil, cache)
	assert.NilError(t, err)

	_, err = cat.CreateTable("t", []plan.Column{{Name: "a", Type: plan.KindInt}})
	assert.NilError(t, err)

	_, err = cat.CreateTable("t", []plan.Column{{Name: "a", Type: plan.KindInt}})
	assert.ErrorContains(t, err, "already exists")
}

func TestTableByIDAndTableNames(t *testing.T) {
	cache, dir := openCache(t)
	cat, err := catalog.Create(filepath.Join(dir, "catalog"), page.DefaultSize, false, nil, cache)
	assert.NilError(t, err)

	tbl, err := cat.CreateTable("accounts", []plan.Column{{Name: "id", Type: plan.KindInt}})
	assert.NilError(t, err)

	byID, ok := cat.TableByID(uint32(tbl.ID()))
	assert.Assert(t, ok)
	assert.Equal(t, byID.Name(), "accounts")

	names := cat.TableNames()
	assert.DeepEqual(t, names, []string{"accounts"})
}

func TestPeekEncryptionReportsSaltWithoutACache(t *testing.T) {
	cache, dir := openCache(t)
	salt := make([]byte, 16)
	for i := range salt {
		salt[i] = byte(i + 1)
	}
	catalogPath := filepath.Join(dir, "catalog")
	_, err := catalog.Create(catalogPath, page.DefaultSize, true, salt, cache)
	assert.NilError(t, err)

	encrypted, gotSalt, err := catalog.PeekEncryption(catalogPath)
	assert.NilError(t, err)
	assert.Assert(t, encrypted)
	assert.DeepEqual(t, gotSalt, salt)
}

func TestPeekEncryptionUnencrypted(t *testing.T) {
	cache, dir := openCache(t)
	catalogPath := filepath.Join(dir, "catalog")
	_, err := catalog.Create(catalogPath, page.DefaultSize, false, nil, cache)
	assert.NilError(t, err)

	encrypted, salt, err := catalog.PeekEncryption(catalogPath)
	assert.NilError(t, err)
	assert.Assert(t, !encrypted)
	assert.Equal(t, len(salt), 0)
}

func TestOpenRejectsCorruptCatalog(t *testing.T) {
	cache, dir := openCache(t)
	catalogPath := filepath.Join(dir, "catalog")
	_, err := catalog.Create(catalogPath, page.DefaultSize, false, nil, cache)
	assert.NilError(t, err)

	corruptCatalogByte(t, catalogPath, page.HeaderSize)

	_, err = catalog.Open(catalogPath, page.DefaultSize, cache)
	assert.ErrorContains(t, err, "checksum mismatch")
}

func corruptCatalogByte(t *testing.T, path string, offset int) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	assert.NilError(t, err)
	defer f.Close()
	buf := make([]byte, 1)
	_, err = f.ReadAt(buf, int64(offset))
	assert.NilError(t, err)
	buf[0] ^= 0xFF
	_, err = f.WriteAt(buf, int64(offset))
	assert.NilError(t, err)
}
