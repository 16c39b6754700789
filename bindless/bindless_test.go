package bindless

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeFences struct{ completed uint64 }

func (f *fakeFences) CompletedFenceValue() uint64 { return f.completed }

func TestAllocateGrowsTail(t *testing.T) {
	fences := &fakeFences{}
	a := New(fences)

	assert.EqualValues(t, 0, a.Allocate())
	assert.EqualValues(t, 1, a.Allocate())
	assert.EqualValues(t, 2, a.Allocate())
	assert.EqualValues(t, 3, a.Stats().Tail)
}

func TestFreeIsQuarantinedUntilFenceCompletes(t *testing.T) {
	fences := &fakeFences{}
	a := New(fences)

	idx := a.Allocate()
	a.Free(idx, 5)

	// Fence not yet complete: the freed index must not be handed back out.
	fences.completed = 4
	next := a.Allocate()
	assert.NotEqual(t, idx, next, "allocate must not return an index whose retirement fence is incomplete")

	// Fence completes: now it is safe to reuse.
	fences.completed = 5
	reused := a.Allocate()
	assert.Equal(t, idx, reused, "index becomes reusable once its retirement fence has completed")
}

func TestFreeExactlyAtCompletedFenceIsReusable(t *testing.T) {
	fences := &fakeFences{completed: 10}
	a := New(fences)

	idx := a.Allocate()
	a.Free(idx, 10)

	assert.Equal(t, idx, a.Allocate())
}

func TestStatsTracksAllocatedAndFreed(t *testing.T) {
	fences := &fakeFences{}
	a := New(fences)

	a.Allocate()
	a.Allocate()
	a.Free(0, 1)

	stats := a.Stats()
	assert.EqualValues(t, 2, stats.Allocated)
	assert.EqualValues(t, 1, stats.Freed)
	assert.Equal(t, 1, stats.Quarantined)
}
