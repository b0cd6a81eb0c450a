package storage_test

import (
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/sharpcoredb/core/internal/page"
	"github.com/sharpcoredb/core/internal/pagecache"
	"github.com/sharpcoredb/core/internal/plan"
	"github.com/sharpcoredb/core/internal/storage"
)

func newTable(t *testing.T, cols []plan.Column) *storage.Table {
	t.Helper()
	dir := t.TempDir()
	cache, err := pagecache.Open(filepath.Join(dir, "data"), page.DefaultSize, 32, nil)
	assert.NilError(t, err)
	t.Cleanup(func() { cache.Close() })
	schema := plan.Schema{Name: "t", Columns: cols}
	tbl, err := storage.New("t", 1, schema, 1, cache, storage.NoNextPage)
	assert.NilError(t, err)
	return tbl
}

func withBatch(t *testing.T, tbl *storage.Table, fn func()) {
	t.Helper()
	tbl.BeginBatch()
	fn()
	assert.NilError(t, tbl.EndBatch(true))
}

func TestInsertReadRoundTrip(t *testing.T) {
	tbl := newTable(t, []plan.Column{
		{Name: "id", Type: plan.KindInt},
		{Name: "name", Type: plan.KindText},
	})
	var ref storage.RowRef
	withBatch(t, tbl, func() {
		var err error
		ref, _, err = tbl.Insert(plan.Row{plan.Int(7), plan.Text("hello")})
		assert.NilError(t, err)
	})

	row, err := tbl.Read(ref)
	assert.NilError(t, err)
	assert.Equal(t, row[0].Int, int64(7))
	assert.Equal(t, row[1].Text, "hello")
}

func TestUpdateInPlaceKeepsSameRef(t *testing.T) {
	tbl := newTable(t, []plan.Column{{Name: "id", Type: plan.KindInt}})
	var ref storage.RowRef
	withBatch(t, tbl, func() {
		var err error
		ref, _, err = tbl.Insert(plan.Row{plan.Int(1)})
		assert.NilError(t, err)
	})

	withBatch(t, tbl, func() {
		results, err := tbl.UpdateByPredicate(nil, map[string]plan.Value{"id": plan.Int(2)})
		assert.NilError(t, err)
		assert.Equal(t, len(results), 1)
		assert.Equal(t, results[0].Ref, ref)
	})

	row, err := tbl.Read(ref)
	assert.NilError(t, err)
	assert.Equal(t, row[0].Int, int64(2))
}

func TestUpdateGrowingRowForwardsOldRef(t *testing.T) {
	tbl := newTable(t, []plan.Column{{Name: "name", Type: plan.KindText}})
	var ref storage.RowRef
	withBatch(t, tbl, func() {
		var err error
		ref, _, err = tbl.Insert(plan.Row{plan.Text("x")})
		assert.NilError(t, err)
	})

	longer := make([]byte, 0)
	for i := 0; i < 500; i++ {
		longer = append(longer, 'a')
	}
	withBatch(t, tbl, func() {
		_, err := tbl.UpdateByPredicate(nil, map[string]plan.Value{"name": plan.Text(string(longer))})
		assert.NilError(t, err)
	})

	// the original reference must still resolve through the forward marker
	row, err := tbl.Read(ref)
	assert.NilError(t, err)
	assert.Equal(t, row[0].Text, string(longer))
}

func TestDeleteThenReadReturnsNotFound(t *testing.T) {
	tbl := newTable(t, []plan.Column{{Name: "id", Type: plan.KindInt}})
	var ref storage.RowRef
	withBatch(t, tbl, func() {
		var err error
		ref, _, err = tbl.Insert(plan.Row{plan.Int(1)})
		assert.NilError(t, err)
	})

	withBatch(t, tbl, func() {
		refs, err := tbl.DeleteByPredicate(nil)
		assert.NilError(t, err)
		assert.Equal(t, len(refs), 1)
	})

	_, err := tbl.Read(ref)
	assert.Assert(t, err != nil)
	_, isNotFound := err.(*storage.NotFoundError)
	assert.Assert(t, isNotFound, "expected a *storage.NotFoundError, got %T", err)
}

func TestScanFiltersByPredicate(t *testing.T) {
	tbl := newTable(t, []plan.Column{{Name: "id", Type: plan.KindInt}})
	withBatch(t, tbl, func() {
		for i := int64(0); i < 5; i++ {
			_, _, err := tbl.Insert(plan.Row{plan.Int(i)})
			assert.NilError(t, err)
		}
	})

	rows, err := tbl.Scan(&plan.Predicate{Column: "id", Op: plan.OpGe, Value: plan.Int(3)})
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 2)
}

func TestBatchRollbackRestoresPriorState(t *testing.T) {
	tbl := newTable(t, []plan.Column{{Name: "id", Type: plan.KindInt}})
	withBatch(t, tbl, func() {
		_, _, err := tbl.Insert(plan.Row{plan.Int(1)})
		assert.NilError(t, err)
	})

	tbl.BeginBatch()
	_, err := tbl.UpdateByPredicate(nil, map[string]plan.Value{"id": plan.Int(999)})
	assert.NilError(t, err)
	assert.NilError(t, tbl.EndBatch(false))

	rows, err := tbl.Scan(nil)
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 1)
	assert.Equal(t, rows[0].Row[0].Int, int64(1), "rolled-back batch must not leave the update visible")
}

func TestLookupBuildsIndexLazily(t *testing.T) {
	tbl := newTable(t, []plan.Column{{Name: "id", Type: plan.KindInt, Indexed: true}})
	withBatch(t, tbl, func() {
		for i := int64(0); i < 3; i++ {
			_, _, err := tbl.Insert(plan.Row{plan.Int(i)})
			assert.NilError(t, err)
		}
	})

	rows, ok, err := tbl.Lookup("id", plan.Int(2))
	assert.NilError(t, err)
	assert.Assert(t, ok)
	assert.Equal(t, len(rows), 1)
	assert.Equal(t, rows[0].Row[0].Int, int64(2))
}

func TestInsertAfterIndexBuiltIsVisibleToLookup(t *testing.T) {
	tbl := newTable(t, []plan.Column{{Name: "id", Type: plan.KindInt, Indexed: true}})
	withBatch(t, tbl, func() {
		for i := int64(0); i < 3; i++ {
			_, _, err := tbl.Insert(plan.Row{plan.Int(i)})
			assert.NilError(t, err)
		}
	})

	// Force the index to build before the row under test exists.
	_, ok, err := tbl.Lookup("id", plan.Int(0))
	assert.NilError(t, err)
	assert.Assert(t, ok)

	withBatch(t, tbl, func() {
		_, _, err := tbl.Insert(plan.Row{plan.Int(99)})
		assert.NilError(t, err)
	})

	rows, ok, err := tbl.Lookup("id", plan.Int(99))
	assert.NilError(t, err)
	assert.Assert(t, ok, "row inserted after the index was built must still be found by lookup")
	assert.Equal(t, len(rows), 1)
	assert.Equal(t, rows[0].Row[0].Int, int64(99))
}
