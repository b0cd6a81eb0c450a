package wal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sharpcoredb/core/internal/crypto"
)

// ErrCorruption marks a WAL inconsistency that recovery refuses to paper
// over: a bad record found somewhere other than the tail of the last
// segment, where a crash mid-append is the only expected cause.
var ErrCorruption = errors.New("wal: corruption")

// ReplayTarget receives the row-level effects of batch records during
// recovery. The storage layer implements this to rebuild its on-disk state
// without re-appending to the WAL it is reading from.
type ReplayTarget interface {
	ReplayInsert(tableID uint32, body []byte) error
	ReplayUpdate(tableID uint32, body []byte) error
	ReplayDelete(tableID uint32, body []byte) error
}

// RecoveryResult summarises one Recover pass.
type RecoveryResult struct {
	LastLSN        uint64
	RecordsApplied int
	TruncatedTail  bool
}

// Recover scans every segment under dir, in order, replaying batch records
// whose LSN is greater than startAfterLSN (the catalog's last checkpoint
// LSN — records at or below it are already reflected in the data file).
// A malformed or CRC-failing record found at the tail of the final segment
// is treated as a partial write from a crash mid-append: it is discarded
// and the segment truncated to the last good record. The same failure
// found anywhere else is fatal and returns ErrCorruption, since nothing
// but a crash mid-append should ever leave a gap in an otherwise-complete
// sequence of segments. A record whose length field is itself damaged
// cannot be told apart from a torn tail and is treated as one.
func Recover(dir string, startAfterLSN uint64, target ReplayTarget, key []byte) (RecoveryResult, error) {
	nums, err := listSegments(dir)
	if err != nil {
		return RecoveryResult{}, fmt.Errorf("wal: list segments for recovery: %w", err)
	}

	result := RecoveryResult{LastLSN: startAfterLSN}
	for i, n := range nums {
		isLastSegment := i == len(nums)-1
		path := filepath.Join(dir, segmentFileName(n))

		applied := 0
		var applyErr error
		lastLSN, truncatedAt, corrupt, err := walkSegment(path, func(h RecordHeader, payload []byte) {
			if h.LSN > result.LastLSN && h.LSN > startAfterLSN && h.Type == TypeBatch {
				if applyErr != nil {
					return
				}
				if n := applyBatchPayload(target, h.LSN, payload, key); n != nil {
					applyErr = n
					return
				}
				applied++
			}
		})
		if err != nil {
			return result, fmt.Errorf("wal: scan segment %d: %w", n, err)
		}
		if applyErr != nil {
			return result, fmt.Errorf("wal: replay segment %d: %w", n, applyErr)
		}

		result.RecordsApplied += applied
		if lastLSN > result.LastLSN {
			result.LastLSN = lastLSN
		}

		if corrupt {
			if !isLastSegment {
				return result, fmt.Errorf("%w: segment %d", ErrCorruption, n)
			}
			if err := os.Truncate(path, truncatedAt); err != nil {
				return result, fmt.Errorf("wal: truncate corrupt tail of segment %d: %w", n, err)
			}
			result.TruncatedTail = true
		}
	}
	return result, nil
}

func applyBatchPayload(target ReplayTarget, lsn uint64, payload []byte, key []byte) error {
	inner := payload
	if key != nil {
		decrypted, err := decryptFrame(key, lsn, payload)
		if err != nil {
			return fmt.Errorf("decrypt frame at lsn %d: %w", lsn, err)
		}
		inner = decrypted
	}
	entries, err := DecodeBatchPayload(inner)
	if err != nil {
		return fmt.Errorf("decode batch at lsn %d: %w", lsn, err)
	}
	for _, e := range entries {
		var applyErr error
		switch e.Op {
		case OpInsert:
			applyErr = target.ReplayInsert(e.TableID, e.Body)
		case OpUpdate:
			applyErr = target.ReplayUpdate(e.TableID, e.Body)
		case OpDelete:
			applyErr = target.ReplayDelete(e.TableID, e.Body)
		default:
			applyErr = fmt.Errorf("unknown opcode %d", e.Op)
		}
		if applyErr != nil {
			return applyErr
		}
	}
	return nil
}

func decryptFrame(key []byte, lsn uint64, frame []byte) ([]byte, error) {
	if len(frame) < crypto.NonceSize+crypto.TagSize {
		return nil, fmt.Errorf("wal: encrypted frame too short")
	}
	nonce := frame[:crypto.NonceSize]
	tag := frame[len(frame)-crypto.TagSize:]
	ciphertext := frame[crypto.NonceSize : len(frame)-crypto.TagSize]
	return crypto.Open(key, aadForLSN(lsn), nonce, ciphertext, tag, "wal frame")
}

// walkSegment reads every record of the segment at path in order, calling
// fn for each structurally sound, CRC-valid record. It reports the highest
// LSN observed, and — if the scan ended on a malformed or CRC-failing
// record — the byte offset to truncate to and corrupt=true. A CRC-failing
// record that is followed by further bytes is not a torn tail: for it
// walkSegment also returns an error wrapping ErrCorruption.
func walkSegment(path string, fn func(RecordHeader, []byte)) (lastLSN uint64, truncatedAt int64, corrupt bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, 0, false, err
	}
	size := info.Size()
	if size < SegmentHeaderSize {
		return 0, 0, false, fmt.Errorf("segment %s shorter than its header", path)
	}

	headerBuf := make([]byte, SegmentHeaderSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, SegmentHeaderSize), headerBuf); err != nil {
		return 0, 0, false, err
	}
	if _, err := decodeSegmentHeader(headerBuf); err != nil {
		return 0, 0, false, err
	}

	offset := int64(SegmentHeaderSize)
	for offset < size {
		if offset+8 > size {
			return lastLSN, offset, true, nil
		}
		prefix := make([]byte, 8)
		if _, err := f.ReadAt(prefix, offset); err != nil {
			return lastLSN, offset, true, nil
		}
		length := ByteOrder.Uint32(prefix[0:4])
		if length < uint32(RecordHeaderSize-4) || length > MaxRecordSize || offset+4+int64(length) > size {
			return lastLSN, offset, true, nil
		}

		recordBuf := make([]byte, 4+int64(length))
		if _, err := f.ReadAt(recordBuf, offset); err != nil {
			return lastLSN, offset, true, nil
		}
		header, err := DecodeRecordHeader(recordBuf)
		if err != nil {
			return lastLSN, offset, true, nil
		}
		if err := VerifyCRC(header, recordBuf); err != nil {
			if offset+4+int64(length) < size {
				// A complete record followed by further bytes is not a torn
				// tail write.
				return lastLSN, offset, true, fmt.Errorf("%w: crc mismatch in record at offset %d of %s, before the end of the segment", ErrCorruption, offset, path)
			}
			return lastLSN, offset, true, nil
		}

		if header.LSN > lastLSN {
			lastLSN = header.LSN
		}
		fn(header, Payload(header, recordBuf))

		offset += int64(4 + length)
	}
	return lastLSN, offset, false, nil
}

// lastRecordLSN reports the highest LSN found in a segment, used by
// checkpoint pruning to decide whether a closed segment's content is
// already durable in the data file.
func lastRecordLSN(dir string, number int) (uint64, bool, error) {
	path := filepath.Join(dir, segmentFileName(number))
	seen := false
	lastLSN, _, _, err := walkSegment(path, func(h RecordHeader, _ []byte) {
		seen = true
		_ = h
	})
	if err != nil {
		return 0, false, err
	}
	return lastLSN, seen, nil
}
