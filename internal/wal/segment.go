package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SegmentMagic identifies a SharpCoreDB WAL segment file.
var SegmentMagic = [8]byte{'S', 'C', 'D', 'B', 'W', 'A', 'L', '1'}

// SegmentVersion is the current segment header format version.
const SegmentVersion uint16 = 1

// SegmentHeaderSize is the fixed size of a segment's header.
const SegmentHeaderSize = 64

// SegmentHeader is written at the start of every segment file.
type SegmentHeader struct {
	CreationLSN uint64
	Salt        [16]byte // KDF salt reference; createSegment leaves it zero (HasSalt false) even for an encrypted WAL
	HasSalt     bool
}

func encodeSegmentHeader(h SegmentHeader) []byte {
	buf := make([]byte, SegmentHeaderSize)
	copy(buf[0:8], SegmentMagic[:])
	ByteOrder.PutUint16(buf[8:10], SegmentVersion)
	ByteOrder.PutUint64(buf[10:18], h.CreationLSN)
	if h.HasSalt {
		buf[18] = 1
		copy(buf[19:35], h.Salt[:])
	}
	return buf
}

func decodeSegmentHeader(buf []byte) (SegmentHeader, error) {
	if len(buf) < SegmentHeaderSize {
		return SegmentHeader{}, fmt.Errorf("wal: segment header truncated")
	}
	if string(buf[0:8]) != string(SegmentMagic[:]) {
		return SegmentHeader{}, fmt.Errorf("wal: bad segment magic")
	}
	version := ByteOrder.Uint16(buf[8:10])
	if version != SegmentVersion {
		return SegmentHeader{}, fmt.Errorf("wal: unsupported segment version %d", version)
	}
	h := SegmentHeader{CreationLSN: ByteOrder.Uint64(buf[10:18])}
	if buf[18] == 1 {
		h.HasSalt = true
		copy(h.Salt[:], buf[19:35])
	}
	return h, nil
}

// segment wraps one WAL segment file: its header and current write offset.
type segment struct {
	number int
	path   string
	f      *os.File
	size   int64 // bytes written so far, including header
}

func segmentFileName(number int) string {
	return fmt.Sprintf("segment-%06d.log", number)
}

func segmentNumberFromName(name string) (int, bool) {
	if !strings.HasPrefix(name, "segment-") || !strings.HasSuffix(name, ".log") {
		return 0, false
	}
	numStr := strings.TrimSuffix(strings.TrimPrefix(name, "segment-"), ".log")
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return 0, false
	}
	return n, true
}

// listSegments returns existing segment numbers under dir, ascending.
func listSegments(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var nums []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := segmentNumberFromName(e.Name()); ok {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	return nums, nil
}

// createSegment writes a brand-new segment's header to a uuid-suffixed
// temp file in dir and renames it into place only once the header is
// durable, so a crash mid-creation never leaves a zero-length or
// partially-written segment file at the name recovery will scan.
func createSegment(dir string, number int, creationLSN uint64) (*segment, error) {
	finalPath := filepath.Join(dir, segmentFileName(number))
	tmpPath := filepath.Join(dir, fmt.Sprintf(".segment-%06d-%s.tmp", number, uuid.NewString()))

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_RDWR|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: create segment temp file %s: %w", tmpPath, err)
	}
	header := encodeSegmentHeader(SegmentHeader{CreationLSN: creationLSN})
	if _, err := tmp.Write(header); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("wal: write segment header: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("wal: sync segment header: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("wal: close segment temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("wal: install segment %s: %w", finalPath, err)
	}

	f, err := os.OpenFile(finalPath, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: reopen segment %s: %w", finalPath, err)
	}
	return &segment{number: number, path: finalPath, f: f, size: int64(len(header))}, nil
}

func openSegmentForAppend(dir string, number int) (*segment, error) {
	path := filepath.Join(dir, segmentFileName(number))
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: open segment %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &segment{number: number, path: path, f: f, size: info.Size()}, nil
}

func (s *segment) append(record []byte) (int64, error) {
	offset := s.size
	n, err := s.f.WriteAt(record, offset)
	if err != nil {
		return 0, fmt.Errorf("wal: append to segment %d: %w", s.number, err)
	}
	s.size += int64(n)
	return offset, nil
}

func (s *segment) sync() error {
	return s.f.Sync()
}

func (s *segment) close() error {
	return s.f.Close()
}
