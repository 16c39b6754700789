// Package streaming implements the StreamingManager contract:
// CPU-side asset import happens off the main thread; GPU resource
// creation is marshaled onto the main thread's work queue and drained
// under a wall-clock budget so it never blows the frame's pacing; each
// drained item is stamped with the fence value at which its upload
// completes, and consumers gate use of the asset against the device's
// completed-fence value.
//
// Grounded on gogpu-wgpu's internal/thread.Thread (a buffered channel of
// funcs consumed by a single worker, here the caller's main-thread drain
// loop instead of a dedicated OS thread, since GPU resource creation here
// is invoked synchronously from the caller's own frame loop rather than a
// second locked OS thread) and its RenderLoop's pending-work/async-result
// shape. google/uuid names each asset; DecodeTexture (texture.go) is the
// CPU-side texture decoder a caller's parse function reaches for, backed
// by golang.org/x/image's bmp/tiff/webp decoders alongside the standard
// library's png/jpeg.
package streaming

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gekko3d/forgecore"
)

// notReady is a sentinel ready-fence value no real submission can ever
// reach, so an asset whose GPU job has not yet run is never reported
// ready by IsReady.
const notReady = ^uint64(0)

// DefaultDrainBudget is the wall-clock budget spent draining the
// main-thread work queue each frame "stop after 4 ms".
const DefaultDrainBudget = 4 * time.Millisecond

// FenceAllocator reserves the fence value a GPU submission will complete
// at. Satisfied by *device.Device; kept narrow so this package is
// testable without a real GPU device.
type FenceAllocator interface {
	NextFenceValue() uint64
}

// Asset is the handle a consumer holds for an asset in flight. Guid
// identifies it uniquely; IsReady gates draw submission against the
// device's completed-fence value.
type Asset struct {
	Guid uuid.UUID

	mu         sync.Mutex
	readyFence uint64
	failed     bool
}

func newAsset() *Asset {
	return &Asset{Guid: uuid.New(), readyFence: notReady}
}

// IsReady reports whether this asset's upload has completed as of
// completedFence: ready_fence must be set and no greater than completedFence.
func (a *Asset) IsReady(completedFence uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readyFence != notReady && a.readyFence <= completedFence
}

// Failed reports whether the asset's CPU import failed. A failed asset is
// still stamped ready (so it is not retried in a tight loop) but carries
// no usable GPU resource; callers should treat it as permanently absent.
func (a *Asset) Failed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failed
}

func (a *Asset) stampReady(fence uint64, failed bool) {
	a.mu.Lock()
	a.readyFence = fence
	a.failed = failed
	a.mu.Unlock()
}

// CancelToken lets a caller abort an in-flight batch load: scene
// streaming checks it between file parses and returns early once
// cancelled. Partially uploaded assets are not rolled back.
type CancelToken struct {
	cancelled atomic.Bool
}

func NewCancelToken() *CancelToken { return &CancelToken{} }

func (c *CancelToken) Cancel() { c.cancelled.Store(true) }

func (c *CancelToken) Cancelled() bool { return c.cancelled.Load() }

type job struct {
	asset *Asset
	run   func() error
}

// Manager is the StreamingManager: it owns the CPU-parse-to-GPU-create
// pipeline and the main-thread work queue.
type Manager struct {
	logger *forgecore.RateLimitedLogger
	fences FenceAllocator

	queue chan job
	now   func() time.Time
}

// New creates a Manager. queueCapacity bounds how many completed CPU
// parses may wait for the main thread to drain them before LoadAsync's
// background goroutine blocks pushing the next one.
func New(fences FenceAllocator, logger forgecore.Logger, queueCapacity int) *Manager {
	if logger == nil {
		logger = forgecore.NewNopLogger()
	}
	if queueCapacity <= 0 {
		queueCapacity = 64
	}
	return &Manager{
		logger: forgecore.NewRateLimitedLogger(logger),
		fences: fences,
		queue:  make(chan job, queueCapacity),
		now:    time.Now,
	}
}

// LoadAsync parses an asset off the main thread and returns immediately
// with a handle. parse runs on a background goroutine; on success,
// createGPU is marshaled onto the main-thread work queue and runs on the
// next Drain call. token may be nil; if cancelled before parse begins the
// load is abandoned and the asset is left permanently not-ready.
func (m *Manager) LoadAsync(token *CancelToken, parse func() (any, error), createGPU func(cpu any) error) *Asset {
	asset := newAsset()
	go func() {
		if token != nil && token.Cancelled() {
			return
		}
		cpu, err := parse()
		if err != nil {
			m.logger.ErrorClass("streaming.parse", "asset %s: import failed: %v", asset.Guid, err)
			asset.stampReady(m.fences.NextFenceValue(), true)
			return
		}
		if token != nil && token.Cancelled() {
			return
		}
		m.queue <- job{asset: asset, run: func() error { return createGPU(cpu) }}
	}()
	return asset
}

// Drain executes queued GPU-creation jobs on the calling (main) thread
// until the queue is empty or budget has elapsed, whichever first
//. It returns the number of jobs drained.
func (m *Manager) Drain(budget time.Duration) int {
	if budget <= 0 {
		budget = DefaultDrainBudget
	}
	deadline := m.now().Add(budget)
	drained := 0
	for {
		if m.now().After(deadline) {
			return drained
		}
		select {
		case j := <-m.queue:
			failed := false
			if err := j.run(); err != nil {
				m.logger.ErrorClass("streaming.create", "asset %s: gpu creation failed: %v", j.asset.Guid, err)
				failed = true
			}
			j.asset.stampReady(m.fences.NextFenceValue(), failed)
			drained++
		default:
			return drained
		}
	}
}

// Pending reports how many GPU-creation jobs are currently queued,
// waiting for a Drain call.
func (m *Manager) Pending() int {
	return len(m.queue)
}
