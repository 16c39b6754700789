package gpupack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceDescriptorRoundTrip(t *testing.T) {
	buf := make([]byte, InstanceDescriptorSize)
	in := InstanceDescriptor{TransformSlot: 42, MaterialID: 7, CustomDataIdx: 9001}
	in.Encode(buf, 0)
	out := DecodeInstanceDescriptor(buf, 0)
	assert.Equal(t, in, out)
}

func TestIndirectDrawCommandRoundTrip(t *testing.T) {
	buf := make([]byte, IndirectDrawCommandSize)
	in := IndirectDrawCommand{
		PositionsIdx: 1, NormalsIdx: 2, UVsIdx: 3, IndicesIdx: 4,
		MaterialID: 5, MeshPartID: 6, BoneBufferID: 7, CustomLayout: 8,
		BaseIndex: 9, StartInstance: 10, Flags: 11,
		Args: IndirectDrawArgs{VertexCount: 36, InstanceCount: 4, FirstVertex: 0, FirstInstance: 10},
	}
	in.Encode(buf, 0)
	out := DecodeIndirectDrawCommand(buf, 0)
	assert.Equal(t, in, out)
	require.Len(t, buf, IndirectDrawCommandSize)
}

func TestMat4RowMajorPacking(t *testing.T) {
	// Column-major mathgl element order for a translation of (1,2,3).
	m := [16]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		1, 2, 3, 1,
	}
	buf := make([]byte, 64)
	PutMat4RowMajor(buf, 0, m)
	// Row-major: row 3 should be the translation (1, 2, 3, 1).
	assert.InDelta(t, 1.0, GetF32(buf, (3*4+0)*4), 1e-6)
	assert.InDelta(t, 2.0, GetF32(buf, (3*4+1)*4), 1e-6)
	assert.InDelta(t, 3.0, GetF32(buf, (3*4+2)*4), 1e-6)
}
