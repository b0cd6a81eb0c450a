package page_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/sharpcoredb/core/internal/page"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := make([]byte, page.DefaultSize-page.HeaderSize)
	copy(payload, []byte("hello world"))

	h := page.Header{
		Magic:           page.Magic,
		Version:         page.Version,
		PageType:        page.TypeData,
		EntryCount:      3,
		FreeSpaceOffset: 128,
		NextPageID:      7,
	}

	buf := make([]byte, page.DefaultSize)
	assert.NilError(t, page.Encode(h, payload, buf))

	gotHeader, gotPayload := page.Decode(buf)
	h.Checksum = gotHeader.Checksum
	assert.DeepEqual(t, gotHeader, h)
	assert.DeepEqual(t, gotPayload, payload)
	assert.NilError(t, page.Validate(buf))
}

func TestValidateDetectsCorruption(t *testing.T) {
	buf := make([]byte, page.DefaultSize)
	sp := page.New(buf, page.TypeData)
	_, err := sp.Insert(1, []byte("row-one"))
	assert.NilError(t, err)

	buf[page.HeaderSize] ^= 0xFF
	assert.ErrorContains(t, page.Validate(buf), "checksum mismatch")
}

func TestValidateDetectsBadMagic(t *testing.T) {
	buf := make([]byte, page.DefaultSize)
	page.New(buf, page.TypeData)
	page.ByteOrder.PutUint32(buf[0:4], 0xDEADBEEF)
	assert.ErrorContains(t, page.Validate(buf), "bad magic")
}

func TestSlottedPageInsertGetDelete(t *testing.T) {
	buf := make([]byte, page.DefaultSize)
	sp := page.New(buf, page.TypeData)

	s0, err := sp.Insert(100, []byte("alice"))
	assert.NilError(t, err)
	s1, err := sp.Insert(101, []byte("bob"))
	assert.NilError(t, err)
	assert.Equal(t, sp.SlotCount(), 2)
	assert.Equal(t, sp.LiveCount(), 2)

	rec, err := sp.Get(s0)
	assert.NilError(t, err)
	assert.Equal(t, string(rec.Data), "alice")
	assert.Equal(t, rec.Dead, false)

	assert.NilError(t, sp.Delete(s1))
	rec1, err := sp.Get(s1)
	assert.NilError(t, err)
	assert.Equal(t, rec1.Dead, true)
	assert.Equal(t, sp.LiveCount(), 1)
	assert.Equal(t, sp.SlotCount(), 2, "slot index must stay addressable after delete")
}

func TestSlottedPageForwardAndCompact(t *testing.T) {
	buf := make([]byte, page.DefaultSize)
	sp := page.New(buf, page.TypeData)

	s0, err := sp.Insert(1, []byte("12345678")) // 8 bytes, room for a forward marker
	assert.NilError(t, err)

	target := uint64(0xABCDEF)
	assert.NilError(t, sp.MarkForward(s0, target))

	rec, err := sp.Get(s0)
	assert.NilError(t, err)
	assert.Equal(t, rec.Forwarded, true)
	assert.Equal(t, rec.ForwardTo, target)

	s1, err := sp.Insert(2, []byte("live-row"))
	assert.NilError(t, err)
	assert.NilError(t, sp.Delete(s1))

	before := sp.FreeBytes()
	sp.Compact()
	assert.Assert(t, sp.FreeBytes() >= before)
	assert.Equal(t, sp.LiveCount(), 1, "only the forwarding marker should survive compaction")
}

func TestInsertFailsWhenPageFull(t *testing.T) {
	buf := make([]byte, 64) // tiny page to force exhaustion quickly
	sp := page.New(buf, page.TypeData)
	var lastErr error
	for i := 0; i < 100; i++ {
		_, err := sp.Insert(uint64(i), []byte("payload"))
		if err != nil {
			lastErr = err
			break
		}
	}
	assert.ErrorIs(t, lastErr, page.ErrNoSpace)
}
