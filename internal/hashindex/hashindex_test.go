package hashindex_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/sharpcoredb/core/internal/hashindex"
	"github.com/sharpcoredb/core/internal/plan"
)

func TestBuildAndLookup(t *testing.T) {
	ix := hashindex.New("status")
	assert.Equal(t, ix.Built(), false)

	ix.Build([]hashindex.Pair{
		{Value: plan.Text("open"), Ref: 1},
		{Value: plan.Text("open"), Ref: 2},
		{Value: plan.Text("closed"), Ref: 3},
	})

	assert.Equal(t, ix.Built(), true)
	assert.DeepEqual(t, ix.Lookup(plan.Text("open")), []hashindex.RowRef{1, 2})
	assert.DeepEqual(t, ix.Lookup(plan.Text("closed")), []hashindex.RowRef{3})
	assert.Equal(t, len(ix.Lookup(plan.Text("missing"))), 0)
}

func TestIncrementalInsertAndRemove(t *testing.T) {
	ix := hashindex.New("id")
	ix.Insert(plan.Int(7), 100)
	ix.Insert(plan.Int(7), 101)
	assert.Equal(t, ix.Built(), true)
	assert.DeepEqual(t, ix.Lookup(plan.Int(7)), []hashindex.RowRef{100, 101})

	ix.Remove(plan.Int(7), 100)
	assert.DeepEqual(t, ix.Lookup(plan.Int(7)), []hashindex.RowRef{101})

	ix.Remove(plan.Int(7), 101)
	assert.Equal(t, len(ix.Lookup(plan.Int(7))), 0)
}

func TestDeferredModeQueuesUntilFlush(t *testing.T) {
	ix := hashindex.New("id")
	ix.Insert(plan.Int(1), 1)

	ix.SetDeferred(true)
	ix.Insert(plan.Int(2), 2)
	ix.Remove(plan.Int(1), 1)

	// Queued writes must not be visible yet.
	assert.DeepEqual(t, ix.Lookup(plan.Int(1)), []hashindex.RowRef{1})
	assert.Equal(t, len(ix.Lookup(plan.Int(2))), 0)

	ix.FlushQueued()

	assert.Equal(t, len(ix.Lookup(plan.Int(1))), 0)
	assert.DeepEqual(t, ix.Lookup(plan.Int(2)), []hashindex.RowRef{2})
}

func TestDeferredModeDiscard(t *testing.T) {
	ix := hashindex.New("id")
	ix.Insert(plan.Int(1), 1)

	ix.SetDeferred(true)
	ix.Insert(plan.Int(2), 2)
	ix.Remove(plan.Int(1), 1)
	ix.DiscardQueued()
	ix.SetDeferred(false)

	assert.DeepEqual(t, ix.Lookup(plan.Int(1)), []hashindex.RowRef{1})
	assert.Equal(t, len(ix.Lookup(plan.Int(2))), 0)
}
