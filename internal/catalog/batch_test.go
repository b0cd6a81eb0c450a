package catalog_test

import (
	"errors"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/sharpcoredb/core/internal/catalog"
	"github.com/sharpcoredb/core/internal/page"
	"github.com/sharpcoredb/core/internal/pagecache"
	"github.com/sharpcoredb/core/internal/plan"
	"github.com/sharpcoredb/core/internal/wal"
)

func newCatalogWithTable(t *testing.T, name string, cols []plan.Column) (*catalog.Catalog, *pagecache.Cache, string) {
	t.Helper()
	cache, dir := openCache(t)
	cat, err := catalog.Create(filepath.Join(dir, "catalog"), page.DefaultSize, false, nil, cache)
	assert.NilError(t, err)
	_, err = cat.CreateTable(name, cols)
	assert.NilError(t, err)
	return cat, cache, dir
}

func openWAL(t *testing.T, dir string) *wal.WAL {
	t.Helper()
	w, err := wal.Open(filepath.Join(dir, "wal"), 1, wal.Options{Durability: wal.FullSync})
	assert.NilError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestRunBatchInsertCommitsAndIsVisible(t *testing.T) {
	cat, cache, dir := newCatalogWithTable(t, "widgets", []plan.Column{
		{Name: "id", Type: plan.KindInt},
		{Name: "name", Type: plan.KindText},
	})
	w := openWAL(t, dir)

	plans := []plan.Plan{
		plan.InsertPlan{Table: "widgets", Row: plan.Row{plan.Int(1), plan.Text("a")}},
		plan.InsertPlan{Table: "widgets", Row: plan.Row{plan.Int(2), plan.Text("b")}},
	}
	result, err := cat.RunBatch(w, cache, true, plans)
	assert.NilError(t, err)
	assert.Equal(t, len(result.Refs), 2)
	assert.Assert(t, result.LSN > 0)

	tbl, _ := cat.Table("widgets")
	rows, err := tbl.Scan(nil)
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 2)
	assert.Equal(t, cat.CheckpointLSN(), result.LSN, "a successful batch must advance the persisted checkpoint")
}

// failingCommitter simulates a WAL commit failure so RunBatch's rollback
// path (EndBatch(false) on every touched table, no checkpoint advance) can
// be exercised without needing the real WAL to fail.
type failingCommitter struct{}

func (failingCommitter) Commit(payload []byte) (uint64, error) {
	return 0, errors.New("simulated commit failure")
}

func TestRunBatchRollsBackOnCommitFailure(t *testing.T) {
	cat, cache, _ := newCatalogWithTable(t, "widgets", []plan.Column{
		{Name: "id", Type: plan.KindInt},
	})

	plans := []plan.Plan{
		plan.InsertPlan{Table: "widgets", Row: plan.Row{plan.Int(1)}},
	}
	_, err := cat.RunBatch(failingCommitter{}, cache, true, plans)
	assert.ErrorContains(t, err, "simulated commit failure")

	tbl, _ := cat.Table("widgets")
	rows, err := tbl.Scan(nil)
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 0, "failed batch must not leave visible rows")
	assert.Equal(t, cat.CheckpointLSN(), uint64(0), "a failed batch must not advance the checkpoint")
}

func TestRunBatchUnknownTableFails(t *testing.T) {
	cat, cache, dir := newCatalogWithTable(t, "widgets", []plan.Column{{Name: "id", Type: plan.KindInt}})
	w := openWAL(t, dir)

	plans := []plan.Plan{plan.InsertPlan{Table: "ghost", Row: plan.Row{plan.Int(1)}}}
	_, err := cat.RunBatch(w, cache, true, plans)
	assert.ErrorContains(t, err, "ghost")
}

func TestRunBatchDeleteAndUpdateAcrossTwoTables(t *testing.T) {
	cat, cache, dir := newCatalogWithTable(t, "a", []plan.Column{{Name: "id", Type: plan.KindInt}})
	_, err := cat.CreateTable("b", []plan.Column{{Name: "id", Type: plan.KindInt}})
	assert.NilError(t, err)
	w := openWAL(t, dir)

	seed := []plan.Plan{
		plan.InsertPlan{Table: "a", Row: plan.Row{plan.Int(1)}},
		plan.InsertPlan{Table: "b", Row: plan.Row{plan.Int(2)}},
	}
	_, err = cat.RunBatch(w, cache, true, seed)
	assert.NilError(t, err)

	mutate := []plan.Plan{
		plan.UpdatePlan{Table: "a", Set: map[string]plan.Value{"id": plan.Int(99)}},
		plan.DeletePlan{Table: "b"},
	}
	result, err := cat.RunBatch(w, cache, true, mutate)
	assert.NilError(t, err)
	assert.Equal(t, len(result.Refs), 2)

	ta, _ := cat.Table("a")
	rows, err := ta.Scan(nil)
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 1)
	assert.Equal(t, rows[0].Row[0].Int, int64(99))

	tb, _ := cat.Table("b")
	rows, err = tb.Scan(nil)
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 0)
}
