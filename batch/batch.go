// Package batch implements the CommandBuffer / InstanceBatcher contract:
// callers enqueue one draw submission per instance (or a
// raw draw lambda for terrain/debug overlays); submissions are bucketed
// per pass by the material's pass mask, grouped into sub-batches keyed by
// (material, mesh part, bone/custom-data layout), and staged into the
// per-instance descriptor / sub-batch-id / custom-data arrays the
// GpuCuller and vertex shaders consume.
//
// Grounded on Gekko3D-gekko's voxelrt/rt/gpu/manager.go ensureBuffer
// (doubling-growth staging buffers, reused here via Capacity) and
// manager_edit.go's append-then-upload shape for per-instance structured
// data (instData in UpdateScene). The sub-batch-key grouping and
// descriptor/sub-batch-id/custom-data staging arrays have no equivalent
// in the voxel ray tracer this is adapted from (it draws each voxel
// object individually, with no indirect batching) and are built directly
// from the sub-batch grouping and staging-array layout this package's
// own types describe below.
package batch

import (
	"sync"

	"github.com/gekko3d/forgecore/cull"
	"github.com/gekko3d/forgecore/gpumath"
	"github.com/gekko3d/forgecore/gpupack"
)

// PassMask selects which render passes a material's effect participates
// in. A submission may target more than one pass.
type PassMask uint8

const (
	PassOpaque PassMask = 1 << iota
	PassShadow
	PassLight
	PassPostProcess
)

var allPasses = [...]PassMask{PassOpaque, PassShadow, PassLight, PassPostProcess}

// noCustomData marks a submission with no per-instance custom data blob.
const noCustomData = ^uint32(0)

// customDataAlign is the required alignment of each custom-data blob
// "16-byte aligned".
const customDataAlign = 16

// SubBatchKey is the smallest indirect-draw grouping unit:
// (material, mesh part, bone buffer) for static/skinned meshes, or
// (material, mesh part, custom layout) for custom-data paths. Both
// shapes share this one key; callers that don't use bones or custom
// layouts leave the unused field zero.
type SubBatchKey struct {
	MaterialID   uint32
	MeshPartID   uint32
	BoneBufferID uint32
	CustomLayout uint32
}

// Submission is one enqueued draw instance.
type Submission struct {
	MeshPartID    uint32
	MaterialID    uint32
	TransformSlot uint32
	BoneBufferID  uint32
	CustomLayout  uint32
	CustomData    []byte // nil if this submission carries no custom data
	// WorldSphere and Skinned feed the GpuCuller's frustum/Hi-Z tests
	// (cull.Instance's equivalent fields); a submission that never
	// reaches Execute (e.g. one only ever drawn via EnqueueAction) may
	// leave WorldSphere zero.
	WorldSphere gpumath.Sphere
	Skinned     bool
}

func (s Submission) key() SubBatchKey {
	return SubBatchKey{MaterialID: s.MaterialID, MeshPartID: s.MeshPartID, BoneBufferID: s.BoneBufferID, CustomLayout: s.CustomLayout}
}

// Action is a raw draw lambda enqueued outside the sub-batch/culler path
// "used by terrain and debug overlays". Actions run in
// submission order within their pass, after that pass's indirect draws.
type Action func() error

type passBucket struct {
	submissions []Submission
	actions     []Action
}

// Batcher is the CommandBuffer / InstanceBatcher: per-frame, per-pass
// submission staging.
type Batcher struct {
	mu      sync.Mutex
	buckets map[PassMask]*passBucket
}

func New() *Batcher {
	return &Batcher{buckets: make(map[PassMask]*passBucket)}
}

func (b *Batcher) bucket(pass PassMask) *passBucket {
	bk, ok := b.buckets[pass]
	if !ok {
		bk = &passBucket{}
		b.buckets[pass] = bk
	}
	return bk
}

// Enqueue pushes one draw submission into every pass passMask selects
// (this design: "Pass mask is derived from the material's effect...
// Submissions are bucketed per pass").
func (b *Batcher) Enqueue(s Submission, passMask PassMask) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range allPasses {
		if passMask&p != 0 {
			bk := b.bucket(p)
			bk.submissions = append(bk.submissions, s)
		}
	}
}

// EnqueueAction pushes a raw draw lambda into every pass passMask
// selects.
func (b *Batcher) EnqueueAction(action Action, passMask PassMask) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range allPasses {
		if passMask&p != 0 {
			bk := b.bucket(p)
			bk.actions = append(bk.actions, action)
		}
	}
}

// SubBatch is one group of submissions sharing a SubBatchKey, in
// first-submitted order.
type SubBatch struct {
	Key          SubBatchKey
	Start, Count uint32 // run within the pass's staged descriptor array
}

// StagedPass is the output of Stage: per-instance
// descriptors and sub-batch ids ready for the culler, plus the
// concatenated custom-data blob and each sub-batch's run within it.
type StagedPass struct {
	Descriptors []gpupack.InstanceDescriptor
	SubBatchIDs []uint32 // SubBatchIDs[i] == Descriptors[i]'s sub-batch index into SubBatches
	SubBatches  []SubBatch
	CustomData  []byte
	// CullInstances[i] is Descriptors[i]'s view as a cull.Instance, ready
	// for Execute (or a real GpuCuller dispatch) to test. Its MeshPartID
	// is this sub-batch's ordinal index into SubBatches, not the
	// original Submission.MeshPartID: the culler's histogram/scatter
	// stages bucket by a single "mesh part slot" per dispatch, while a
	// sub-batch key is the finer (material, mesh part, bone buffer,
	// custom layout) grouping this design's indirect draws are keyed by.
	// Treating each sub-batch as its own culler bucket keeps every
	// bucket homogeneous (one draw command per bucket) without needing
	// a second mesh-part-to-subbatch indirection on the GPU side.
	CullInstances []cull.Instance
}

// Stage groups pass's submissions by SubBatchKey (preserving first-seen
// key order, for deterministic frame-to-frame layout) and builds the
// staging arrays the GpuCuller reads. It does not clear the pass; call
// EndFrame once the frame's passes have all been staged and executed.
func (b *Batcher) Stage(pass PassMask) StagedPass {
	b.mu.Lock()
	submissions := append([]Submission(nil), b.bucket(pass).submissions...)
	b.mu.Unlock()

	order := make([]SubBatchKey, 0)
	groups := make(map[SubBatchKey][]Submission)
	for _, s := range submissions {
		k := s.key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], s)
	}

	var staged StagedPass
	for _, key := range order {
		group := groups[key]
		start := uint32(len(staged.Descriptors))
		subBatchIdx := uint32(len(staged.SubBatches))
		for _, s := range group {
			customIdx := noCustomData
			if s.CustomData != nil {
				customIdx = uint32(len(staged.CustomData)) / customDataAlign
				staged.CustomData = append(staged.CustomData, padTo(s.CustomData, customDataAlign)...)
			}
			staged.Descriptors = append(staged.Descriptors, gpupack.InstanceDescriptor{
				TransformSlot: s.TransformSlot,
				MaterialID:    s.MaterialID,
				CustomDataIdx: customIdx,
			})
			staged.SubBatchIDs = append(staged.SubBatchIDs, subBatchIdx)
			staged.CullInstances = append(staged.CullInstances, cull.Instance{
				TransformSlot: s.TransformSlot,
				MaterialID:    s.MaterialID,
				MeshPartID:    subBatchIdx,
				CustomDataIdx: customIdx,
				BoneBufferID:  s.BoneBufferID,
				CustomLayout:  s.CustomLayout,
				WorldSphere:   s.WorldSphere,
				Skinned:       s.Skinned,
			})
		}
		staged.SubBatches = append(staged.SubBatches, SubBatch{Key: key, Start: start, Count: uint32(len(group))})
	}
	return staged
}

// Execute runs the GpuCuller's visibility/histogram/prefix-sum/scatter/
// emit-draw-commands stages (spec.md §4.7 steps 5-6) over staged's
// instances and encodes the resulting indirect draw commands into dst,
// one gpupack.IndirectDrawCommandSize run per entry of the returned
// cull.Result.DrawCommands (dst must have at least
// len(res.DrawCommands)*gpupack.IndirectDrawCommandSize bytes available).
//
// This runs cull.Stages, the pure-Go reference implementation, rather
// than a GPU compute dispatch: cull.Builder.Dispatch drives the real
// GPU visibility/scatter pass (stages 1-4) every frame, but stage 5
// (emit draw commands from the compacted visible-index array) has no
// GPU compute shader in this design, so the indirect-draw buffer a
// render pass actually binds is produced here instead, on readback-ed
// or CPU-staged instance data.
//
// lookup is keyed by sub-batch ordinal (CullInstances' MeshPartID, see
// StagedPass.CullInstances), not the original Submission.MeshPartID;
// callers build it as func(ordinal uint32) meshreg.MeshPart { return
// partsByRealID[staged.SubBatches[ordinal].Key.MeshPartID] }.
func (b *Batcher) Execute(staged StagedPass, frustum gpumath.Frustum, occlusion cull.OcclusionTest, lookup cull.MeshPartLookup, dst []byte) cull.Result {
	numMeshParts := uint32(len(staged.SubBatches))
	res := cull.Stages(frustum, occlusion, numMeshParts, staged.CullInstances, lookup)
	for i, cmd := range res.DrawCommands {
		cmd.Encode(dst, i*gpupack.IndirectDrawCommandSize)
	}
	return res
}

func padTo(data []byte, align int) []byte {
	if len(data)%align == 0 {
		return data
	}
	padded := make([]byte, ((len(data)/align)+1)*align)
	copy(padded, data)
	return padded
}

// Actions returns pass's queued raw draw lambdas in submission order
// (this design "Custom actions").
func (b *Batcher) Actions(pass PassMask) []Action {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Action(nil), b.bucket(pass).actions...)
}

// EndFrame clears every pass's submissions and actions, called once the
// frame's passes have all executed (this design "Per-frame staging
// buffer: recycled by ring index").
func (b *Batcher) EndFrame() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buckets = make(map[PassMask]*passBucket)
}

// baseStagingCapacity is the initial per-pass staging-buffer element
// count, matching the order of magnitude ensureBuffer reserves as
// headroom elsewhere in the teacher.
const baseStagingCapacity = 1024

// Capacity returns the doubling-growth backing-buffer size for count
// staged instances "Grow buffers by doubling".
func Capacity(count int) int {
	capacity := baseStagingCapacity
	for capacity < count {
		capacity *= 2
	}
	return capacity
}
