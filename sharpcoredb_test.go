package sharpcoredb_test

import (
	"testing"

	"gotest.tools/v3/assert"

	sharpcoredb "github.com/sharpcoredb/core"
	"github.com/sharpcoredb/core/internal/plan"
)

func openDB(t *testing.T, dir, passphrase string) *sharpcoredb.Database {
	t.Helper()
	db, err := sharpcoredb.Open(dir, passphrase, sharpcoredb.Config{})
	assert.NilError(t, err)
	return db
}

// S1: open a fresh database, create a table, insert rows, read them back.
func TestS1CreateInsertScan(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir, "")
	defer db.Close()

	assert.NilError(t, db.CreateTable("users", []plan.Column{
		{Name: "id", Type: plan.KindInt},
		{Name: "name", Type: plan.KindText},
	}))

	_, err := db.Execute(plan.InsertPlan{Table: "users", Row: plan.Row{plan.Int(1), plan.Text("ada")}})
	assert.NilError(t, err)
	_, err = db.Execute(plan.InsertPlan{Table: "users", Row: plan.Row{plan.Int(2), plan.Text("alan")}})
	assert.NilError(t, err)

	result, err := db.Execute(plan.ScanPlan{Table: "users"})
	assert.NilError(t, err)
	assert.Equal(t, len(result.Rows), 2)
}

// S2: update and delete through Execute, verify the committed effect.
func TestS2UpdateAndDelete(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir, "")
	defer db.Close()

	assert.NilError(t, db.CreateTable("counters", []plan.Column{
		{Name: "id", Type: plan.KindInt},
		{Name: "value", Type: plan.KindInt},
	}))
	_, err := db.Execute(plan.InsertPlan{Table: "counters", Row: plan.Row{plan.Int(1), plan.Int(0)}})
	assert.NilError(t, err)

	_, err = db.Execute(plan.UpdatePlan{
		Table: "counters",
		Set:   map[string]plan.Value{"value": plan.Int(42)},
	})
	assert.NilError(t, err)

	result, err := db.Execute(plan.ScanPlan{Table: "counters"})
	assert.NilError(t, err)
	assert.Equal(t, result.Rows[0][1].Int, int64(42))

	_, err = db.Execute(plan.DeletePlan{Table: "counters"})
	assert.NilError(t, err)
	result, err = db.Execute(plan.ScanPlan{Table: "counters"})
	assert.NilError(t, err)
	assert.Equal(t, len(result.Rows), 0)
}

// S3: BatchExecute applies several inserts in one call and returns a ref
// for each.
func TestS3BatchExecuteAppliesEveryInsert(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir, "")
	defer db.Close()

	assert.NilError(t, db.CreateTable("items", []plan.Column{{Name: "id", Type: plan.KindInt}}))

	result, err := db.BatchExecute([]plan.Plan{
		plan.InsertPlan{Table: "items", Row: plan.Row{plan.Int(1)}},
		plan.InsertPlan{Table: "items", Row: plan.Row{plan.Int(2)}},
		plan.InsertPlan{Table: "items", Row: plan.Row{plan.Int(3)}},
	})
	assert.NilError(t, err)
	assert.Equal(t, len(result.Refs), 3)

	scan, err := db.Execute(plan.ScanPlan{Table: "items"})
	assert.NilError(t, err)
	assert.Equal(t, len(scan.Rows), 3)
}

// S4: reopening a closed database preserves committed data (recovery with
// nothing left to replay).
func TestS4ReopenAfterCleanClosePreservesData(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir, "")

	assert.NilError(t, db.CreateTable("notes", []plan.Column{{Name: "body", Type: plan.KindText}}))
	_, err := db.Execute(plan.InsertPlan{Table: "notes", Row: plan.Row{plan.Text("hello")}})
	assert.NilError(t, err)
	assert.NilError(t, db.Close())

	db2 := openDB(t, dir, "")
	defer db2.Close()
	result, err := db2.Execute(plan.ScanPlan{Table: "notes"})
	assert.NilError(t, err)
	assert.Equal(t, len(result.Rows), 1)
	assert.Equal(t, result.Rows[0][0].Text, "hello")
}

// S5: an encrypted database refuses to reopen without a passphrase, and
// reopens with the right one.
func TestS5EncryptedDatabaseRequiresPassphrase(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir, "correct horse battery staple")
	assert.NilError(t, db.CreateTable("secrets", []plan.Column{{Name: "value", Type: plan.KindText}}))
	_, err := db.Execute(plan.InsertPlan{Table: "secrets", Row: plan.Row{plan.Text("classified")}})
	assert.NilError(t, err)
	assert.NilError(t, db.Close())

	_, err = sharpcoredb.Open(dir, "", sharpcoredb.Config{})
	assert.ErrorContains(t, err, "passphrase required")

	db2, err := sharpcoredb.Open(dir, "correct horse battery staple", sharpcoredb.Config{})
	assert.NilError(t, err)
	defer db2.Close()
	result, err := db2.Execute(plan.ScanPlan{Table: "secrets"})
	assert.NilError(t, err)
	assert.Equal(t, result.Rows[0][0].Text, "classified")
}

// S6: Prepare returns the same plan handle for repeated identical text, and
// ExecutePrepared runs it.
func TestS6PrepareReusesCachedPlan(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir, "")
	defer db.Close()

	assert.NilError(t, db.CreateTable("t", []plan.Column{{Name: "id", Type: plan.KindInt}}))

	p := plan.InsertPlan{Table: "t", Row: plan.Row{plan.Int(1)}}
	stmt1 := db.Prepare("insert into t values (?)", p)
	stmt2 := db.Prepare("insert into t values (?)", plan.InsertPlan{Table: "t", Row: plan.Row{plan.Int(999)}})

	_, err := db.ExecutePrepared(stmt1)
	assert.NilError(t, err)
	_, err = db.ExecutePrepared(stmt2)
	assert.NilError(t, err)

	result, err := db.Execute(plan.ScanPlan{Table: "t"})
	assert.NilError(t, err)
	assert.Equal(t, len(result.Rows), 2)
	// stmt2 reused stmt1's cached plan for the identical text, so both
	// executions inserted id=1, not id=999.
	assert.Equal(t, result.Rows[0][0].Int, int64(1))
	assert.Equal(t, result.Rows[1][0].Int, int64(1))

	stats := db.GetPlanCacheStats()
	assert.Equal(t, stats.Size, 1)
}

func TestScanPlanDoesNotAppearInWALStats(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir, "")
	defer db.Close()

	assert.NilError(t, db.CreateTable("t", []plan.Column{{Name: "id", Type: plan.KindInt}}))
	before := db.GetWalStats()

	_, err := db.Execute(plan.ScanPlan{Table: "t"})
	assert.NilError(t, err)

	after := db.GetWalStats()
	assert.Equal(t, before.Commits, after.Commits, "a pure scan must never go through the WAL committer")
}

func TestBatchExecuteRejectsScanPlans(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir, "")
	defer db.Close()
	assert.NilError(t, db.CreateTable("t", []plan.Column{{Name: "id", Type: plan.KindInt}}))

	_, err := db.BatchExecute([]plan.Plan{plan.ScanPlan{Table: "t"}})
	assert.ErrorContains(t, err, "scan")
}

func TestCreateTableWithHashIndexesDisabledIgnoresIndexedFlag(t *testing.T) {
	dir := t.TempDir()
	db, err := sharpcoredb.Open(dir, "", sharpcoredb.Config{EnableHashIndexes: false})
	assert.NilError(t, err)
	defer db.Close()

	assert.NilError(t, db.CreateTable("t", []plan.Column{
		{Name: "id", Type: plan.KindInt, Indexed: true},
	}))

	// still usable for equality lookups via a full scan fallback, just not
	// index-accelerated; Execute must not error either way.
	_, err = db.Execute(plan.InsertPlan{Table: "t", Row: plan.Row{plan.Int(1)}})
	assert.NilError(t, err)
	result, err := db.Execute(plan.ScanPlan{
		Table:     "t",
		Predicate: &plan.Predicate{Column: "id", Op: plan.OpEq, Value: plan.Int(1)},
	})
	assert.NilError(t, err)
	assert.Equal(t, len(result.Rows), 1)
}
