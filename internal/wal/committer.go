package wal

import (
	"fmt"
	"log/slog"
	"time"
)

// State is the group committer's lifecycle state, observable only for
// logging/diagnostics; control flow is driven by the select loop in run,
// not by switching on State.
type State uint8

const (
	StateIdle State = iota
	StateCollecting
	StateWriting
	StateSyncing
	StateNotifying
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCollecting:
		return "Collecting"
	case StateWriting:
		return "Writing"
	case StateSyncing:
		return "Syncing"
	case StateNotifying:
		return "Notifying"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// DurabilityMode governs whether a resolved commit has been forced to
// stable media (FullSync) or only handed to the OS (Async).
type DurabilityMode int

const (
	FullSync DurabilityMode = iota
	Async
)

type commitRequest struct {
	payload []byte
	done    chan commitResult
}

type commitResult struct {
	lsn uint64
	err error
}

// committer is the single long-lived task draining the commit queue in
// bursts, per spec §4.6: Idle -> Collecting -> Writing -> Syncing
// (optional) -> Notifying -> Idle, with Shutdown reachable from any state.
type committer struct {
	wal           *WAL
	reqCh         chan *commitRequest
	closeCh       chan struct{}
	doneCh        chan struct{}
	maxBatchSize  int
	maxBatchDelay time.Duration
	durability    DurabilityMode

	state State
}

func newCommitter(w *WAL, maxBatchSize int, maxBatchDelay time.Duration, durability DurabilityMode) *committer {
	return &committer{
		wal:           w,
		reqCh:         make(chan *commitRequest, 4096),
		closeCh:       make(chan struct{}),
		doneCh:        make(chan struct{}),
		maxBatchSize:  maxBatchSize,
		maxBatchDelay: maxBatchDelay,
		durability:    durability,
		state:         StateIdle,
	}
}

func (c *committer) setState(s State) {
	c.state = s
}

func (c *committer) enqueue(payload []byte) (uint64, error) {
	req := &commitRequest{payload: payload, done: make(chan commitResult, 1)}
	select {
	case c.reqCh <- req:
	case <-c.closeCh:
		return 0, ErrShutdown
	}
	res, ok := <-req.done
	if !ok {
		return 0, ErrShutdown
	}
	return res.lsn, res.err
}

// run is the committer's event loop; it must execute on its own goroutine
// for the lifetime of the WAL.
func (c *committer) run() {
	defer close(c.doneCh)
	for {
		c.setState(StateIdle)
		select {
		case req := <-c.reqCh:
			c.collectAndWrite(req)
		case <-c.closeCh:
			c.drainRemaining()
			c.setState(StateShutdown)
			return
		}
	}
}

func (c *committer) collectAndWrite(first *commitRequest) {
	c.setState(StateCollecting)
	burst := []*commitRequest{first}
	closedByTimeout := false

	timer := time.NewTimer(c.maxBatchDelay)
	defer timer.Stop()

collect:
	for len(burst) < c.maxBatchSize {
		select {
		case req := <-c.reqCh:
			burst = append(burst, req)
		case <-timer.C:
			closedByTimeout = true
			break collect
		case <-c.closeCh:
			break collect
		}
	}

	c.writeBurst(burst, closedByTimeout)
}

// drainRemaining flushes whatever sits in reqCh at shutdown time without
// waiting for more to arrive, resolving every pending handle once durable.
func (c *committer) drainRemaining() {
	var burst []*commitRequest
	for {
		select {
		case req := <-c.reqCh:
			burst = append(burst, req)
		default:
			if len(burst) > 0 {
				c.writeBurst(burst, false)
			}
			return
		}
	}
}

func (c *committer) writeBurst(burst []*commitRequest, closedByTimeout bool) {
	c.setState(StateWriting)

	payloads := make([][]byte, len(burst))
	for i, r := range burst {
		payloads[i] = r.payload
	}
	merged, err := mergeBatchPayloads(payloads)
	if err != nil {
		c.failBurst(burst, fmt.Errorf("wal: merge batch payloads: %w", err), closedByTimeout, false)
		return
	}

	lsn, err := c.wal.writeBatchRecord(merged)
	if err != nil {
		c.failBurst(burst, err, closedByTimeout, false)
		return
	}

	fsynced := false
	if c.durability == FullSync {
		c.setState(StateSyncing)
		if err := c.wal.syncActiveSegment(); err != nil {
			c.failBurst(burst, err, closedByTimeout, false)
			return
		}
		fsynced = true
	}

	c.setState(StateNotifying)
	for _, r := range burst {
		r.done <- commitResult{lsn: lsn, err: nil}
		close(r.done)
	}
	c.wal.stats.recordBatch(len(burst), closedByTimeout, fsynced)
	slog.Debug("wal: burst committed", "lsn", lsn, "size", len(burst), "closed_by_timeout", closedByTimeout, "fsynced", fsynced)
}

func (c *committer) failBurst(burst []*commitRequest, err error, closedByTimeout, fsynced bool) {
	for _, r := range burst {
		r.done <- commitResult{err: err}
		close(r.done)
	}
	c.wal.stats.recordBatch(len(burst), closedByTimeout, fsynced)
	slog.Warn("wal: burst failed", "size", len(burst), "error", err)
}

func (c *committer) close() {
	close(c.closeCh)
	<-c.doneCh
}
