package batch

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"

	"github.com/gekko3d/forgecore/cull"
	"github.com/gekko3d/forgecore/gpumath"
	"github.com/gekko3d/forgecore/gpupack"
	"github.com/gekko3d/forgecore/meshreg"
)

func TestEnqueueBucketsByPassMask(t *testing.T) {
	b := New()
	b.Enqueue(Submission{MeshPartID: 1, MaterialID: 1, TransformSlot: 0}, PassOpaque|PassShadow)
	b.Enqueue(Submission{MeshPartID: 2, MaterialID: 1, TransformSlot: 1}, PassLight)

	opaque := b.Stage(PassOpaque)
	shadow := b.Stage(PassShadow)
	light := b.Stage(PassLight)

	assert.Len(t, opaque.Descriptors, 1)
	assert.Len(t, shadow.Descriptors, 1)
	assert.Len(t, light.Descriptors, 1)
	assert.EqualValues(t, 1, light.Descriptors[0].MaterialID)
}

func TestStageGroupsBySubBatchKeyInFirstSeenOrder(t *testing.T) {
	b := New()
	b.Enqueue(Submission{MeshPartID: 2, MaterialID: 9, TransformSlot: 0}, PassOpaque)
	b.Enqueue(Submission{MeshPartID: 1, MaterialID: 9, TransformSlot: 1}, PassOpaque)
	b.Enqueue(Submission{MeshPartID: 2, MaterialID: 9, TransformSlot: 2}, PassOpaque)

	staged := b.Stage(PassOpaque)
	assert.Len(t, staged.SubBatches, 2, "two distinct (material, mesh-part) keys must produce two sub-batches")
	assert.Equal(t, uint32(2), staged.SubBatches[0].Key.MeshPartID, "first sub-batch follows first-seen submission order")
	assert.EqualValues(t, 2, staged.SubBatches[0].Count)
	assert.EqualValues(t, 1, staged.SubBatches[1].Count)

	for i, id := range staged.SubBatchIDs {
		sb := staged.SubBatches[id]
		assert.GreaterOrEqual(t, uint32(i), sb.Start)
		assert.Less(t, uint32(i), sb.Start+sb.Count)
	}
}

func TestStageDescriptorFieldsMatchSubmission(t *testing.T) {
	b := New()
	b.Enqueue(Submission{MeshPartID: 5, MaterialID: 3, TransformSlot: 42}, PassOpaque)
	staged := b.Stage(PassOpaque)

	assert.Equal(t, uint32(42), staged.Descriptors[0].TransformSlot)
	assert.Equal(t, uint32(3), staged.Descriptors[0].MaterialID)
	assert.Equal(t, noCustomData, staged.Descriptors[0].CustomDataIdx, "a submission with no custom data gets the sentinel index")
}

func TestStageConcatenatesAndAlignsCustomData(t *testing.T) {
	b := New()
	b.Enqueue(Submission{MeshPartID: 1, MaterialID: 1, CustomData: []byte{1, 2, 3}}, PassOpaque)
	b.Enqueue(Submission{MeshPartID: 1, MaterialID: 1, CustomData: []byte{4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}}, PassOpaque)

	staged := b.Stage(PassOpaque)
	assert.NotEqual(t, noCustomData, staged.Descriptors[0].CustomDataIdx)
	assert.NotEqual(t, noCustomData, staged.Descriptors[1].CustomDataIdx)
	assert.Equal(t, uint32(0), staged.Descriptors[0].CustomDataIdx)
	// First blob is padded to 16 bytes before the second blob starts.
	assert.Equal(t, uint32(1), staged.Descriptors[1].CustomDataIdx)
	assert.Equal(t, 0, len(staged.CustomData)%customDataAlign, "custom-data buffer must stay 16-byte aligned")
}

func TestEnqueueActionRunsInSubmissionOrder(t *testing.T) {
	b := New()
	var order []int
	b.EnqueueAction(func() error { order = append(order, 1); return nil }, PassOpaque)
	b.EnqueueAction(func() error { order = append(order, 2); return nil }, PassOpaque)

	actions := b.Actions(PassOpaque)
	assert.Len(t, actions, 2)
	for _, a := range actions {
		assert.NoError(t, a())
	}
	assert.Equal(t, []int{1, 2}, order)
}

func TestEndFrameClearsAllPasses(t *testing.T) {
	b := New()
	b.Enqueue(Submission{MeshPartID: 1, MaterialID: 1}, PassOpaque)
	b.EndFrame()

	staged := b.Stage(PassOpaque)
	assert.Empty(t, staged.Descriptors)
}

func frontFrustum() gpumath.Frustum {
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, -10}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 100)
	return gpumath.ExtractFrustum(proj.Mul4(view))
}

func TestStagePopulatesCullInstancesKeyedBySubBatchOrdinal(t *testing.T) {
	b := New()
	sphere := gpumath.Sphere{Center: mgl32.Vec3{0, 0, 0}, Radius: 1}
	b.Enqueue(Submission{MeshPartID: 2, MaterialID: 9, TransformSlot: 0, WorldSphere: sphere, Skinned: true}, PassOpaque)
	b.Enqueue(Submission{MeshPartID: 1, MaterialID: 9, TransformSlot: 1, WorldSphere: sphere}, PassOpaque)

	staged := b.Stage(PassOpaque)
	assert.Len(t, staged.CullInstances, 2)

	for i, inst := range staged.CullInstances {
		assert.Equal(t, staged.SubBatchIDs[i], inst.MeshPartID, "CullInstances' MeshPartID is the sub-batch ordinal, not the original Submission.MeshPartID")
	}
	assert.True(t, staged.CullInstances[0].Skinned)
	assert.Equal(t, sphere, staged.CullInstances[0].WorldSphere)
}

func TestExecuteEncodesIndirectDrawCommandsFromStagedInstances(t *testing.T) {
	b := New()
	sphere := gpumath.Sphere{Center: mgl32.Vec3{0, 0, 0}, Radius: 1}
	b.Enqueue(Submission{MeshPartID: 5, MaterialID: 3, TransformSlot: 0, WorldSphere: sphere}, PassOpaque)

	staged := b.Stage(PassOpaque)
	parts := map[uint32]meshreg.MeshPart{5: {IndexCount: 6}}
	lookup := func(ordinal uint32) meshreg.MeshPart {
		realID := staged.SubBatches[ordinal].Key.MeshPartID
		return parts[realID]
	}

	dst := make([]byte, gpupack.IndirectDrawCommandSize)
	res := b.Execute(staged, frontFrustum(), nil, lookup, dst)

	assert.Len(t, res.DrawCommands, 1)
	assert.EqualValues(t, 1, res.DrawCommands[0].Args.InstanceCount)
	assert.EqualValues(t, 3, gpupack.GetU32(dst, 16), "material id lands at the IndirectDrawCommand's MaterialID offset")
}

func TestExecuteOccludedInstanceProducesNoDrawCommand(t *testing.T) {
	b := New()
	sphere := gpumath.Sphere{Center: mgl32.Vec3{0, 0, 50}, Radius: 1}
	b.Enqueue(Submission{MeshPartID: 0, MaterialID: 0, WorldSphere: sphere}, PassOpaque)
	staged := b.Stage(PassOpaque)

	occlusion := cull.OcclusionTest(func(s gpumath.Sphere) bool { return true })
	dst := make([]byte, gpupack.IndirectDrawCommandSize)
	res := b.Execute(staged, frontFrustum(), occlusion, func(uint32) meshreg.MeshPart { return meshreg.MeshPart{IndexCount: 6} }, dst)

	assert.Empty(t, res.DrawCommands)
}

func TestCapacityDoublesOnceBaseExceeded(t *testing.T) {
	assert.Equal(t, baseStagingCapacity, Capacity(0))
	assert.Equal(t, baseStagingCapacity, Capacity(baseStagingCapacity))
	assert.Equal(t, baseStagingCapacity*2, Capacity(baseStagingCapacity+1))
}
