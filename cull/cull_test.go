package cull

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"

	"github.com/gekko3d/forgecore/gpumath"
	"github.com/gekko3d/forgecore/gpupack"
	"github.com/gekko3d/forgecore/hiz"
	"github.com/gekko3d/forgecore/meshreg"
)

// frontFrustum is a simple perspective frustum looking down +Z, used
// across tests the same way this scenario 2/3 set up a camera.
func frontFrustum() gpumath.Frustum {
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, -10}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 100)
	return gpumath.ExtractFrustum(proj.Mul4(view))
}

func staticLookup(parts map[uint32]meshreg.MeshPart) MeshPartLookup {
	return func(id uint32) meshreg.MeshPart { return parts[id] }
}

func TestEmptySceneProducesNoDrawCommands(t *testing.T) {
	res := Stages(frontFrustum(), nil, 1, nil, staticLookup(nil))
	assert.Empty(t, res.DrawCommands)
	assert.Empty(t, res.VisibleIndices)
	assert.EqualValues(t, 0, res.SumVisible())
}

func TestOneVisibleInstanceProducesOneDrawCommandWithInstanceCountOne(t *testing.T) {
	parts := map[uint32]meshreg.MeshPart{
		0: {PositionsIdx: 1, NormalsIdx: 2, UVsIdx: 3, IndicesIdx: 4, IndexCount: 6},
	}
	instances := []Instance{
		{MeshPartID: 0, MaterialID: 7, WorldSphere: gpumath.Sphere{Center: mgl32.Vec3{0, 0, 0}, Radius: 0.75}},
	}

	res := Stages(frontFrustum(), nil, 1, instances, staticLookup(parts))

	assert.Equal(t, []uint8{1}, res.VisibilityFlags)
	assert.Equal(t, []uint32{1}, res.Histogram)
	assert.EqualValues(t, 1, res.SumVisible())
	assert.Len(t, res.DrawCommands, 1)
	assert.EqualValues(t, 1, res.DrawCommands[0].Args.InstanceCount)
	assert.EqualValues(t, 7, res.DrawCommands[0].MaterialID)
}

func TestInstanceBehindCameraIsCulledByFrustum(t *testing.T) {
	parts := map[uint32]meshreg.MeshPart{0: {IndexCount: 6}}
	instances := []Instance{
		{MeshPartID: 0, WorldSphere: gpumath.Sphere{Center: mgl32.Vec3{0, 0, -50}, Radius: 1}},
	}
	res := Stages(frontFrustum(), nil, 1, instances, staticLookup(parts))
	assert.Equal(t, []uint8{0}, res.VisibilityFlags)
	assert.Empty(t, res.DrawCommands)
}

func TestHiZOcclusionRejectsOccludedInstance(t *testing.T) {
	parts := map[uint32]meshreg.MeshPart{0: {IndexCount: 6}}
	instances := []Instance{
		{MeshPartID: 0, WorldSphere: gpumath.Sphere{Center: mgl32.Vec3{0, 0, 5}, Radius: 1}},  // A: in front
		{MeshPartID: 0, WorldSphere: gpumath.Sphere{Center: mgl32.Vec3{0, 0, 15}, Radius: 1}}, // B: occluded
	}
	occlusion := func(s gpumath.Sphere) bool { return s.Center.Z() > 10 }

	withoutHiZ := Stages(frontFrustum(), nil, 1, instances, staticLookup(parts))
	assert.EqualValues(t, 2, withoutHiZ.SumVisible(), "Hi-Z disabled: both instances survive")

	withHiZ := Stages(frontFrustum(), occlusion, 1, instances, staticLookup(parts))
	assert.Equal(t, []uint8{1, 0}, withHiZ.VisibilityFlags, "Hi-Z enabled: the occluded instance is rejected")
}

func TestSkinnedInstanceGetsRadiusInflation(t *testing.T) {
	// Place a tiny sphere just past a side frustum plane so that only the
	// 1.5x skinned inflation brings it back inside.
	frustum := frontFrustum()
	center := mgl32.Vec3{0, 0, 5}
	var radius float32 = 0.1
	for {
		outside, _ := gpumath.SphereOutsideFrustum(frustum, center, radius)
		if outside {
			break
		}
		center = mgl32.Vec3{center.X() + 0.05, 0, 5}
	}
	outsideUnskinned, _ := gpumath.SphereOutsideFrustum(frustum, center, radius)
	assert.True(t, outsideUnskinned, "test setup must place the sphere just outside without inflation")

	parts := map[uint32]meshreg.MeshPart{0: {IndexCount: 6}}
	instances := []Instance{
		{MeshPartID: 0, WorldSphere: gpumath.Sphere{Center: center, Radius: radius}, Skinned: true},
	}
	res := Stages(frustum, nil, 1, instances, staticLookup(parts))
	assert.EqualValues(t, 1, res.SumVisible(), "skinned inflation must bring the instance back inside the frustum")
}

func TestVisibleIndicesAreGroupedPerMeshPartSlot(t *testing.T) {
	parts := map[uint32]meshreg.MeshPart{0: {IndexCount: 3}, 1: {IndexCount: 3}}
	sphere := gpumath.Sphere{Center: mgl32.Vec3{0, 0, 0}, Radius: 1}
	instances := []Instance{
		{MeshPartID: 1, WorldSphere: sphere},
		{MeshPartID: 0, WorldSphere: sphere},
		{MeshPartID: 1, WorldSphere: sphere},
	}
	res := Stages(frontFrustum(), nil, 2, instances, staticLookup(parts))

	assert.Equal(t, []uint32{1, 2}, res.Histogram)
	assert.Equal(t, []uint32{0, 1}, res.PrefixSum)
	// slot 0's run (offset 0, count 1) holds submission index 1; slot 1's
	// run (offset 1, count 2) holds submission indices {0, 2} in
	// submission order.
	assert.Equal(t, []uint32{1, 0, 2}, res.VisibleIndices)
	assert.Len(t, res.DrawCommands, 2, "each mesh-part slot with a visible instance emits one command")
}

func TestSumVisibleMatchesTotalInstanceCountAcrossDrawCommands(t *testing.T) {
	parts := map[uint32]meshreg.MeshPart{0: {IndexCount: 3}, 1: {IndexCount: 3}}
	sphere := gpumath.Sphere{Center: mgl32.Vec3{0, 0, 0}, Radius: 1}
	instances := []Instance{
		{MeshPartID: 0, WorldSphere: sphere},
		{MeshPartID: 1, WorldSphere: sphere},
		{MeshPartID: 0, WorldSphere: sphere},
	}
	res := Stages(frontFrustum(), nil, 2, instances, staticLookup(parts))

	var totalFromCommands uint32
	for _, cmd := range res.DrawCommands {
		totalFromCommands += cmd.Args.InstanceCount
	}
	assert.Equal(t, res.SumVisible(), totalFromCommands)
}

func TestStagesShadow4RunsEachCascadeIndependently(t *testing.T) {
	parts := map[uint32]meshreg.MeshPart{0: {IndexCount: 3}}
	near := frontFrustum()
	var cascades [4]gpumath.Frustum
	for i := range cascades {
		cascades[i] = near
	}
	instances := []Instance{
		{MeshPartID: 0, WorldSphere: gpumath.Sphere{Center: mgl32.Vec3{0, 0, 0}, Radius: 1}},
	}
	res := StagesShadow4(cascades, 1, instances, staticLookup(parts))
	for _, cascade := range res.Cascades {
		assert.EqualValues(t, 1, cascade.SumVisible())
	}
}

func TestEncodeInstanceRoundTripsThroughGpupackHelpers(t *testing.T) {
	inst := Instance{
		TransformSlot: 1, MaterialID: 2, MeshPartID: 3, CustomDataIdx: 4,
		BoneBufferID: 5, CustomLayout: 6, Skinned: true,
		WorldSphere: gpumath.Sphere{Center: mgl32.Vec3{10, 20, 30}, Radius: 2.5},
	}
	buf := make([]byte, InstanceStride)
	EncodeInstance(buf, 0, inst)

	assert.EqualValues(t, 1, gpupack.GetU32(buf, 0))
	assert.EqualValues(t, 1, gpupack.GetU32(buf, 24), "skinned flag packs as 1")
	assert.InDelta(t, 10, gpupack.GetF32(buf, 32), 1e-6)
	assert.InDelta(t, 2.5, gpupack.GetF32(buf, 44), 1e-6)
}

func TestNewHiZOcclusionTestOccludesSphereBehindFartherDepth(t *testing.T) {
	pyramid := []hiz.Mip{{Width: 1, Height: 1, Texels: []float32{5}}}
	viewProj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 100).Mul4(
		mgl32.LookAtV(mgl32.Vec3{0, 0, -10}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0}))
	test := NewHiZOcclusionTest(pyramid, viewProj, 720)

	// A sphere whose near point (view-space) sits well past the recorded
	// Hi-Z depth of 5 must be reported occluded.
	far := gpumath.Sphere{Center: mgl32.Vec3{0, 0, 50}, Radius: 1}
	assert.True(t, test(far))
}

func TestNewHiZOcclusionTestDisabledWithEmptyPyramidNeverOccludes(t *testing.T) {
	test := NewHiZOcclusionTest(nil, mgl32.Ident4(), 720)
	assert.False(t, test(gpumath.Sphere{Center: mgl32.Vec3{0, 0, 50}, Radius: 1}))
}
