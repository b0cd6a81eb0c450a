package wal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sharpcoredb/core/internal/crypto"
)

// ErrShutdown is returned by Commit when the WAL has been or is being
// closed; any handles still pending at Close resolve with it too.
var ErrShutdown = errors.New("wal: shutdown")

// Options configures a WAL instance. Zero values are replaced by the
// documented defaults in Open.
type Options struct {
	MaxSegmentSize int64
	MaxBatchSize   int
	MaxBatchDelay  time.Duration
	Durability     DurabilityMode
	Key            []byte // nil disables WAL-frame encryption
}

func (o Options) withDefaults() Options {
	if o.MaxSegmentSize <= 0 {
		o.MaxSegmentSize = 64 * 1024 * 1024
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = 100
	}
	if o.MaxBatchDelay <= 0 {
		o.MaxBatchDelay = 10 * time.Millisecond
	}
	return o
}

// WAL is the append-only, segmented write-ahead log. Writers never touch
// segment files directly: every commit goes through the group committer.
type WAL struct {
	dir            string
	mu             sync.Mutex
	current        *segment
	nextLSN        uint64
	maxSegmentSize int64
	key            []byte

	committer *committer
	stats     *statsTracker
}

// Open creates or resumes a WAL rooted at dir. startLSN is the LSN to
// assign to the next record — callers run Recover first to determine it
// from the last durably-applied record, so Open never re-scans segments
// for recovery purposes itself.
func Open(dir string, startLSN uint64, opts Options) (*WAL, error) {
	opts = opts.withDefaults()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("wal: create wal dir: %w", err)
	}

	nums, err := listSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("wal: list segments: %w", err)
	}

	var cur *segment
	if len(nums) == 0 {
		cur, err = createSegment(dir, 0, startLSN)
	} else {
		last := nums[len(nums)-1]
		cur, err = openSegmentForAppend(dir, last)
	}
	if err != nil {
		return nil, err
	}

	w := &WAL{
		dir:            dir,
		current:        cur,
		nextLSN:        startLSN,
		maxSegmentSize: opts.MaxSegmentSize,
		key:            opts.Key,
		stats:          &statsTracker{},
	}
	w.committer = newCommitter(w, opts.MaxBatchSize, opts.MaxBatchDelay, opts.Durability)
	go w.committer.run()

	slog.Info("wal: opened", "dir", dir, "segment", cur.number, "next_lsn", startLSN)
	return w, nil
}

// Commit submits payload — a pre-encoded batch payload from
// EncodeBatchPayload — for group commit. It blocks until the payload is
// durable per the configured durability mode, or returns ErrShutdown.
func (w *WAL) Commit(payload []byte) (uint64, error) {
	return w.committer.enqueue(payload)
}

// Stats returns a snapshot of the committer's counters.
func (w *WAL) Stats() Stats {
	return w.stats.snapshot()
}

// Close drains the committer (resolving any pending commits), flushes and
// closes the active segment.
func (w *WAL) Close() error {
	w.committer.close()
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.current.sync(); err != nil {
		return fmt.Errorf("wal: final sync: %w", err)
	}
	return w.current.close()
}

// writeBatchRecord is called by the committer with the merged inner
// payload of a burst; it encrypts (if configured), assigns the LSN,
// rotates the segment if necessary, and appends the record.
func (w *WAL) writeBatchRecord(innerPayload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lsn := w.nextLSN
	w.nextLSN++

	payload := innerPayload
	if w.key != nil {
		aad := aadForLSN(lsn)
		nonce, ciphertext, tag, err := crypto.Seal(w.key, aad, innerPayload)
		if err != nil {
			return 0, fmt.Errorf("wal: encrypt frame: %w", err)
		}
		payload = make([]byte, 0, len(nonce)+len(ciphertext)+len(tag))
		payload = append(payload, nonce...)
		payload = append(payload, ciphertext...)
		payload = append(payload, tag...)
	}

	record := EncodeRecord(TypeBatch, lsn, payload)
	if int64(len(record))+w.current.size > w.maxSegmentSize {
		if err := w.rotateLocked(lsn); err != nil {
			return 0, err
		}
	}
	if _, err := w.current.append(record); err != nil {
		return 0, err
	}
	return lsn, nil
}

// rotateLocked starts a new segment, fsyncing the outgoing one first —
// rotation is always durable in both durability modes (spec §9 open
// question, resolved: bounded loss stays within the tail of the current
// segment only).
func (w *WAL) rotateLocked(creationLSN uint64) error {
	if err := w.current.sync(); err != nil {
		return fmt.Errorf("wal: sync before rotation: %w", err)
	}
	if err := w.current.close(); err != nil {
		return fmt.Errorf("wal: close before rotation: %w", err)
	}
	next, err := createSegment(w.dir, w.current.number+1, creationLSN)
	if err != nil {
		return err
	}
	slog.Info("wal: rotated segment", "from", w.current.number, "to", next.number)
	w.current = next
	return nil
}

func (w *WAL) syncActiveSegment() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.current.sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	return nil
}

// WriteCheckpoint appends a checkpoint marker record directly, bypassing
// the group-commit queue since checkpoints are infrequent administrative
// operations, not row-operation traffic. It always fsyncs.
func (w *WAL) WriteCheckpoint(checkpointLSN uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	payload := make([]byte, 8)
	ByteOrder.PutUint64(payload, checkpointLSN)
	lsn := w.nextLSN
	w.nextLSN++
	record := EncodeRecord(TypeCheckpoint, lsn, payload)

	if int64(len(record))+w.current.size > w.maxSegmentSize {
		if err := w.rotateLocked(lsn); err != nil {
			return err
		}
	}
	if _, err := w.current.append(record); err != nil {
		return err
	}
	return w.current.sync()
}

// PruneSegmentsBefore deletes closed segment files whose last record's LSN
// is at or below checkpointLSN — their content is already durable in the
// data file, per the catalog's checkpoint bookkeeping.
func (w *WAL) PruneSegmentsBefore(checkpointLSN uint64) error {
	w.mu.Lock()
	currentNumber := w.current.number
	w.mu.Unlock()

	nums, err := listSegments(w.dir)
	if err != nil {
		return err
	}
	for _, n := range nums {
		if n >= currentNumber {
			continue
		}
		lastLSN, ok, err := lastRecordLSN(w.dir, n)
		if err != nil {
			return err
		}
		if !ok || lastLSN > checkpointLSN {
			continue
		}
		path := filepath.Join(w.dir, segmentFileName(n))
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("wal: remove retired segment %d: %w", n, err)
		}
		slog.Info("wal: pruned segment", "segment", n, "checkpoint_lsn", checkpointLSN)
	}
	return nil
}

func aadForLSN(lsn uint64) []byte {
	buf := make([]byte, 8)
	ByteOrder.PutUint64(buf, lsn)
	return buf
}
