package bufpool_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/sharpcoredb/core/internal/bufpool"
)

func TestAcquireReleaseReuses(t *testing.T) {
	p := bufpool.New(128, 2)
	buf := p.Acquire()
	assert.Equal(t, len(buf), 128)
	buf[0] = 0xAB
	p.Release(buf, false)

	reused := p.Acquire()
	assert.Equal(t, reused[0], byte(0xAB), "non-sensitive release must not be zeroed")
}

func TestReleaseZeroesSensitiveBuffers(t *testing.T) {
	p := bufpool.New(32, 2)
	buf := p.Acquire()
	for i := range buf {
		buf[i] = 0xFF
	}
	p.Release(buf, true)

	reused := p.Acquire()
	for _, b := range reused {
		assert.Equal(t, b, byte(0))
	}
}

func TestAcquireNeverBlocksWhenEmpty(t *testing.T) {
	p := bufpool.New(16, 0)
	buf := p.Acquire()
	assert.Equal(t, len(buf), 16)
	p.Release(buf, false)
	// capacity 0: release is a no-op, next acquire allocates fresh.
	again := p.Acquire()
	assert.Equal(t, len(again), 16)
}
