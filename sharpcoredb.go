// Package sharpcoredb implements the public facade (C12): Open/Execute/
// Prepare/BatchExecute/Close over the storage engine, wiring together the
// page cache, WAL, catalog, and prepared-plan cache for one database
// directory.
package sharpcoredb

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sharpcoredb/core/internal/catalog"
	"github.com/sharpcoredb/core/internal/crypto"
	"github.com/sharpcoredb/core/internal/obs"
	"github.com/sharpcoredb/core/internal/page"
	"github.com/sharpcoredb/core/internal/pagecache"
	"github.com/sharpcoredb/core/internal/plan"
	"github.com/sharpcoredb/core/internal/plancache"
	"github.com/sharpcoredb/core/internal/storage"
	"github.com/sharpcoredb/core/internal/wal"
)

// Durability mirrors internal/wal's durability modes at the facade
// boundary, so callers never import an internal package directly.
type Durability = wal.DurabilityMode

const (
	FullSync Durability = wal.FullSync
	Async    Durability = wal.Async
)

// Config collects every recognised configuration option of spec §6. Zero
// values are replaced by documented defaults in Open.
type Config struct {
	PageSize                  int
	Durability                Durability
	WALMaxBatchSize           int
	WALMaxBatchDelay          time.Duration
	WALSegmentSize            int64
	PageCacheCapacity         int
	PreparedPlanCacheCapacity int
	EnableHashIndexes         bool

	// SeqEndpoint is the optional Seq ingestion URL for structured log
	// shipping; empty disables it and logs to the console only. Ambient
	// observability wiring, not a storage-engine concern, but carried
	// per SPEC_FULL.md's AMBIENT STACK section.
	SeqEndpoint string
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = page.DefaultSize
	}
	if c.WALMaxBatchSize <= 0 {
		c.WALMaxBatchSize = 100
	}
	if c.WALMaxBatchDelay <= 0 {
		c.WALMaxBatchDelay = 10 * time.Millisecond
	}
	if c.WALSegmentSize <= 0 {
		c.WALSegmentSize = 64 * 1024 * 1024
	}
	if c.PageCacheCapacity <= 0 {
		c.PageCacheCapacity = 1000
	}
	if c.PreparedPlanCacheCapacity <= 0 {
		c.PreparedPlanCacheCapacity = plancache.DefaultCapacity
	}
	return c
}

// Database is one opened SharpCoreDB directory: its page cache, WAL,
// catalog, and prepared-plan cache.
type Database struct {
	dir      string
	cfg      Config
	cache    *pagecache.Cache
	wal      *wal.WAL
	cat      *catalog.Catalog
	plans    *plancache.Cache
	closeLog func()
}

// ResultSet is what Execute/ExecutePrepared return: either the rows a
// ScanPlan produced, or the row references a write plan touched.
type ResultSet struct {
	Columns []string
	Rows    [][]plan.Value
	Refs    []storage.RowRef
	LSN     uint64
}

// Statement is a handle returned by Prepare, binding a canonicalized
// statement text to the plan it was prepared into (spec §4.11). Parsing
// SQL text into a plan.Plan is out of scope; Prepare caches a caller-
// supplied plan under its text so repeated preparations of the same text
// share one cache entry.
type Statement struct {
	text string
	plan plan.Plan
}

// Open opens (creating if absent) the SharpCoreDB database directory at
// dir. passphrase enables at-rest AEAD encryption for a new database, or
// must match the passphrase a previously-encrypted one was created with.
// Recovery runs automatically: any WAL records past the catalog's last
// checkpoint are replayed before Open returns.
func Open(dir string, passphrase string, cfg Config) (*Database, error) {
	cfg = cfg.withDefaults()

	logger, closeLog := obs.SetupLogger(cfg.SeqEndpoint)
	slog.SetDefault(logger)

	if err := os.MkdirAll(dir, 0755); err != nil {
		closeLog()
		return nil, fmt.Errorf("sharpcoredb: create database dir: %w", err)
	}

	catalogPath := filepath.Join(dir, "catalog")
	dataPath := filepath.Join(dir, "data")
	walDir := filepath.Join(dir, "wal")

	existing := true
	if _, err := os.Stat(catalogPath); os.IsNotExist(err) {
		existing = false
	} else if err != nil {
		closeLog()
		return nil, fmt.Errorf("sharpcoredb: stat catalog: %w", err)
	}

	var (
		encrypted bool
		salt      []byte
		key       []byte
	)
	if existing {
		var err error
		encrypted, salt, err = catalog.PeekEncryption(catalogPath)
		if err != nil {
			closeLog()
			return nil, fmt.Errorf("sharpcoredb: inspect catalog: %w", err)
		}
		if encrypted {
			if passphrase == "" {
				closeLog()
				return nil, fmt.Errorf("sharpcoredb: database is encrypted, passphrase required")
			}
			key = crypto.DeriveKey(passphrase, salt, crypto.DefaultKDFParams)
		}
	} else {
		encrypted = passphrase != ""
		if encrypted {
			var err error
			salt, err = crypto.NewSalt()
			if err != nil {
				closeLog()
				return nil, fmt.Errorf("sharpcoredb: generate salt: %w", err)
			}
			key = crypto.DeriveKey(passphrase, salt, crypto.DefaultKDFParams)
		}
	}

	cache, err := pagecache.Open(dataPath, cfg.PageSize, cfg.PageCacheCapacity, key)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("sharpcoredb: open data file: %w", err)
	}

	var cat *catalog.Catalog
	if existing {
		cat, err = catalog.Open(catalogPath, cfg.PageSize, cache)
	} else {
		cat, err = catalog.Create(catalogPath, cfg.PageSize, encrypted, salt, cache)
	}
	if err != nil {
		cache.Close()
		closeLog()
		return nil, fmt.Errorf("sharpcoredb: load catalog: %w", err)
	}

	recovery, err := wal.Recover(walDir, cat.CheckpointLSN(), catalog.ReplayTarget{Catalog: cat}, key)
	if err != nil {
		cache.Close()
		closeLog()
		return nil, fmt.Errorf("sharpcoredb: recover wal: %w", err)
	}
	if recovery.RecordsApplied > 0 {
		slog.Info("sharpcoredb: replayed wal records", "count", recovery.RecordsApplied, "last_lsn", recovery.LastLSN, "truncated_tail", recovery.TruncatedTail)
		// Link pages that replayed inserts allocated into each table's chain.
		for _, name := range cat.TableNames() {
			t, _ := cat.Table(name)
			if err := t.EndBatch(true); err != nil {
				cache.Close()
				closeLog()
				return nil, fmt.Errorf("sharpcoredb: link recovered pages of table %q: %w", name, err)
			}
		}
		if err := cache.FlushDirty(true); err != nil {
			cache.Close()
			closeLog()
			return nil, fmt.Errorf("sharpcoredb: flush recovered pages: %w", err)
		}
		if err := cat.SetCheckpointLSN(recovery.LastLSN); err != nil {
			cache.Close()
			closeLog()
			return nil, fmt.Errorf("sharpcoredb: persist post-recovery checkpoint: %w", err)
		}
	}

	w, err := wal.Open(walDir, recovery.LastLSN+1, wal.Options{
		MaxSegmentSize: cfg.WALSegmentSize,
		MaxBatchSize:   cfg.WALMaxBatchSize,
		MaxBatchDelay:  cfg.WALMaxBatchDelay,
		Durability:     cfg.Durability,
		Key:            key,
	})
	if err != nil {
		cache.Close()
		closeLog()
		return nil, fmt.Errorf("sharpcoredb: open wal: %w", err)
	}

	db := &Database{
		dir:      dir,
		cfg:      cfg,
		cache:    cache,
		wal:      w,
		cat:      cat,
		plans:    plancache.New(cfg.PreparedPlanCacheCapacity),
		closeLog: closeLog,
	}
	return db, nil
}

// CreateTable registers a new table with the given columns. Columns
// marked Indexed are only given a live hash index if the database's
// EnableHashIndexes option is set; otherwise the Indexed flag is cleared
// before the table is created, so the stored schema carries no index and
// none is built, matching spec §6's enable_hash_indexes switch.
func (db *Database) CreateTable(name string, columns []plan.Column) error {
	cols := columns
	if !db.cfg.EnableHashIndexes {
		cols = make([]plan.Column, len(columns))
		for i, c := range columns {
			c.Indexed = false
			cols[i] = c
		}
	}
	_, err := db.cat.CreateTable(name, cols)
	return err
}

// Execute runs a single plan as a one-statement batch (an Insert, Update,
// or Delete folds through the same RunBatch path BatchExecute uses with a
// one-element slice; a ScanPlan is a pure read and never touches the
// WAL).
func (db *Database) Execute(p plan.Plan) (ResultSet, error) {
	if sp, ok := p.(plan.ScanPlan); ok {
		return db.scan(sp)
	}
	result, err := db.cat.RunBatch(db.wal, db.cache, db.cfg.Durability == wal.FullSync, []plan.Plan{p})
	if err != nil {
		return ResultSet{}, err
	}
	return ResultSet{Refs: result.Refs, LSN: result.LSN}, nil
}

// Prepare caches plan under text's canonical form (spec §4.11) and
// returns a handle for ExecutePrepared. Repeated calls with text that
// canonicalizes the same way return a handle sharing the cached plan,
// regardless of which caller's plan value first populated the entry.
func (db *Database) Prepare(text string, p plan.Plan) *Statement {
	if cached, ok := db.plans.Get(text); ok {
		return &Statement{text: text, plan: cached}
	}
	db.plans.Put(text, p)
	return &Statement{text: text, plan: p}
}

// ExecutePrepared runs a previously prepared statement.
func (db *Database) ExecutePrepared(stmt *Statement) (ResultSet, error) {
	return db.Execute(stmt.plan)
}

// BatchExecute coalesces every plan into a single WAL commit (spec
// §4.10), the fast path for bulk writers. Every plan must be a write
// plan (Insert/Update/Delete); a ScanPlan in the slice is rejected since
// reads never enqueue onto the WAL and have no place in a batch commit.
func (db *Database) BatchExecute(plans []plan.Plan) (ResultSet, error) {
	for _, p := range plans {
		if _, ok := p.(plan.ScanPlan); ok {
			return ResultSet{}, fmt.Errorf("sharpcoredb: BatchExecute does not accept scan plans")
		}
	}
	result, err := db.cat.RunBatch(db.wal, db.cache, db.cfg.Durability == wal.FullSync, plans)
	if err != nil {
		return ResultSet{}, err
	}
	return ResultSet{Refs: result.Refs, LSN: result.LSN}, nil
}

func (db *Database) scan(sp plan.ScanPlan) (ResultSet, error) {
	t, ok := db.cat.Table(sp.Table)
	if !ok {
		return ResultSet{}, &storage.TableNotFoundError{Table: sp.Table}
	}

	var scanned []storage.ScanRow
	if sp.Predicate != nil && sp.Predicate.Op == plan.OpEq {
		if rows, ok, err := t.Lookup(sp.Predicate.Column, sp.Predicate.Value); ok {
			if err != nil {
				return ResultSet{}, err
			}
			scanned = rows
		}
	}
	if scanned == nil {
		rows, err := t.Scan(sp.Predicate)
		if err != nil {
			return ResultSet{}, err
		}
		scanned = rows
	}

	schema := t.Schema()
	columns := sp.Columns
	if len(columns) == 0 {
		columns = make([]string, len(schema.Columns))
		for i, c := range schema.Columns {
			columns[i] = c.Name
		}
	}
	idxs := make([]int, len(columns))
	for i, name := range columns {
		idxs[i] = schema.IndexOf(name)
	}

	out := make([][]plan.Value, 0, len(scanned))
	refs := make([]storage.RowRef, 0, len(scanned))
	for _, sr := range scanned {
		row := make([]plan.Value, len(idxs))
		for i, ci := range idxs {
			if ci >= 0 {
				row[i] = sr.Row[ci]
			}
		}
		out = append(out, row)
		refs = append(refs, sr.Ref)
	}
	return ResultSet{Columns: columns, Rows: out, Refs: refs}, nil
}

// GetWalStats exposes WAL group-commit counters for introspection.
func (db *Database) GetWalStats() wal.Stats {
	return db.wal.Stats()
}

// GetPageCacheStats exposes page-cache hit/miss/eviction counters.
func (db *Database) GetPageCacheStats() pagecache.Stats {
	return db.cache.Stats()
}

// GetPlanCacheStats exposes prepared-plan cache hit/miss counters.
func (db *Database) GetPlanCacheStats() plancache.Stats {
	return db.plans.Stats()
}

// Close drains the WAL committer, flushes every dirty page, and releases
// the data file and logging sink. There is no separate final-checkpoint
// step: the catalog's checkpoint LSN is already advanced and persisted
// after every successful batch (see DESIGN.md), so by the time Close runs
// it already reflects the last committed batch.
func (db *Database) Close() error {
	if err := db.wal.Close(); err != nil {
		return fmt.Errorf("sharpcoredb: close wal: %w", err)
	}
	if err := db.cache.Close(); err != nil {
		return fmt.Errorf("sharpcoredb: close data file: %w", err)
	}
	db.closeLog()
	return nil
}
