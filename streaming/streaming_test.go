package streaming

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFences struct{ next atomic.Uint64 }

func newFakeFences() *fakeFences {
	f := &fakeFences{}
	f.next.Store(1)
	return f
}

func (f *fakeFences) NextFenceValue() uint64 { return f.next.Add(1) - 1 }

func waitUntilPending(t *testing.T, m *Manager, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Pending() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d pending jobs", n)
}

func TestLoadAsyncThenDrainStampsReadyFence(t *testing.T) {
	fences := newFakeFences()
	m := New(fences, nil, 0)

	var created int32
	asset := m.LoadAsync(nil,
		func() (any, error) { return "cpu-bytes", nil },
		func(cpu any) error {
			atomic.AddInt32(&created, 1)
			assert.Equal(t, "cpu-bytes", cpu)
			return nil
		},
	)

	waitUntilPending(t, m, 1)
	assert.False(t, asset.IsReady(0), "asset must not be ready before Drain runs its GPU-creation job")

	n := m.Drain(time.Second)
	require.Equal(t, 1, n)
	assert.EqualValues(t, 1, created)
	assert.True(t, asset.IsReady(100))
	assert.False(t, asset.Failed())
}

func TestDrawMustRefuseNonReadyAsset(t *testing.T) {
	fences := newFakeFences()
	m := New(fences, nil, 0)

	block := make(chan struct{})
	asset := m.LoadAsync(nil,
		func() (any, error) { <-block; return nil, nil },
		func(cpu any) error { return nil },
	)

	assert.False(t, asset.IsReady(^uint64(0)), "an asset whose parse has not completed is never ready, regardless of completed fence")
	close(block)
}

func TestFailedImportStampsReadyButMarksFailed(t *testing.T) {
	fences := newFakeFences()
	m := New(fences, nil, 0)

	asset := m.LoadAsync(nil,
		func() (any, error) { return nil, errors.New("corrupt asset") },
		func(cpu any) error { t.Fatal("createGPU must not run after a failed parse"); return nil },
	)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !asset.IsReady(^uint64(0)) {
		time.Sleep(time.Millisecond)
	}
	assert.True(t, asset.IsReady(^uint64(0)), "a failed import must still stamp ready so it is not retried in a tight loop")
	assert.True(t, asset.Failed())
}

func TestFailedGpuCreationStillStampsReady(t *testing.T) {
	fences := newFakeFences()
	m := New(fences, nil, 0)

	asset := m.LoadAsync(nil,
		func() (any, error) { return "ok", nil },
		func(cpu any) error { return errors.New("device lost mid-upload") },
	)
	waitUntilPending(t, m, 1)
	m.Drain(time.Second)

	assert.True(t, asset.IsReady(100))
	assert.True(t, asset.Failed())
}

func TestCancelTokenAbandonsLoadBeforeParse(t *testing.T) {
	fences := newFakeFences()
	m := New(fences, nil, 0)
	token := NewCancelToken()
	token.Cancel()

	asset := m.LoadAsync(token,
		func() (any, error) { t.Fatal("parse must not run once the token is cancelled before it starts"); return nil, nil },
		func(cpu any) error { return nil },
	)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, m.Pending())
	assert.False(t, asset.IsReady(^uint64(0)))
}

func TestDrainStopsOnceBudgetElapses(t *testing.T) {
	fences := newFakeFences()
	m := New(fences, nil, 4)

	var calls int
	m.now = func() time.Time {
		calls++
		// First call computes the deadline; second call (the loop's first
		// budget check) reports time already past it, so Drain must return
		// having drained nothing even though jobs are queued.
		if calls == 1 {
			return time.Unix(0, 0)
		}
		return time.Unix(1, 0)
	}

	for i := 0; i < 3; i++ {
		m.LoadAsync(nil, func() (any, error) { return nil, nil }, func(cpu any) error { return nil })
	}
	waitUntilPending(t, m, 3)

	n := m.Drain(time.Millisecond)
	assert.Equal(t, 0, n, "drain must stop as soon as the wall-clock budget has elapsed, even with work still queued")
}
