package gpupack

// IndirectDrawCommandSize is the fixed 72-byte (18 uint32) size of the
// record the final GpuCuller stage writes and ExecuteIndirect consumes
//.
//
// Layout decision (this design Open Questions region does not cover this, but
// this design leaves the exact split of the 18 dwords to the implementer
// beyond "last four are draw args, preceding 14 are push constants"): this
// engine has no literal D3D12 ExecuteIndirect that can patch root constants
// per draw, because the target binding here is WebGPU's DrawIndirect. Mesh
// and index data are therefore never bound through the fixed-function input
// assembler at all -- the vertex shader manually fetches positions/normals/
// UVs/indices from the bindless heap using the leading 14 metadata dwords,
// and the trailing 4 dwords are a plain wgpu DrawIndirectArgs
// {VertexCount, InstanceCount, FirstVertex, FirstInstance}. This sidesteps
// the base-vertex/index-buffer fields a hardware DrawIndexedIndirect would
// need, since there is no hardware index buffer to offset into.
const IndirectDrawCommandSize = 72

// IndirectDrawArgsOffset is a command's trailing IndirectDrawArgs offset
// within its IndirectDrawCommandSize-byte record, the offset a caller
// passes to wgpu's DrawIndirect for the command at buffer offset off:
// DrawIndirect(buf, off+IndirectDrawArgsOffset).
const IndirectDrawArgsOffset = offArgsBase

const (
	offPositionsIdx  = 0
	offNormalsIdx    = 4
	offUVsIdx        = 8
	offIndicesIdx    = 12
	offMaterialID    = 16
	offMeshPartID    = 20
	offBoneBufferID  = 24
	offCustomLayout  = 28
	offBaseIndex     = 32
	offStartInstance = 36
	offFlags         = 40
	offReserved0     = 44
	offReserved1     = 48
	offReserved2     = 52
	offArgsBase      = 56 // trailing DrawIndirectArgs, 4 uint32 = 16 bytes -> 56+16=72
)

// IndirectDrawArgs is the plain wgpu DrawIndirect argument layout (4 dwords).
type IndirectDrawArgs struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// IndirectDrawCommand is the full 72-byte record: 14 metadata dwords the
// vertex shader consumes for manual bindless fetch, followed by the 4-dword
// DrawIndirectArgs the GPU's indirect-draw fixed function reads.
type IndirectDrawCommand struct {
	PositionsIdx  uint32
	NormalsIdx    uint32
	UVsIdx        uint32
	IndicesIdx    uint32
	MaterialID    uint32
	MeshPartID    uint32
	BoneBufferID  uint32
	CustomLayout  uint32
	BaseIndex     uint32
	StartInstance uint32
	Flags         uint32
	Args          IndirectDrawArgs
}

// Encode writes the command into buf at offset off (buf must have
// IndirectDrawCommandSize bytes available from off).
func (c IndirectDrawCommand) Encode(buf []byte, off int) {
	PutU32(buf, off+offPositionsIdx, c.PositionsIdx)
	PutU32(buf, off+offNormalsIdx, c.NormalsIdx)
	PutU32(buf, off+offUVsIdx, c.UVsIdx)
	PutU32(buf, off+offIndicesIdx, c.IndicesIdx)
	PutU32(buf, off+offMaterialID, c.MaterialID)
	PutU32(buf, off+offMeshPartID, c.MeshPartID)
	PutU32(buf, off+offBoneBufferID, c.BoneBufferID)
	PutU32(buf, off+offCustomLayout, c.CustomLayout)
	PutU32(buf, off+offBaseIndex, c.BaseIndex)
	PutU32(buf, off+offStartInstance, c.StartInstance)
	PutU32(buf, off+offFlags, c.Flags)
	PutU32(buf, off+offReserved0, 0)
	PutU32(buf, off+offReserved1, 0)
	PutU32(buf, off+offReserved2, 0)
	PutU32(buf, off+offArgsBase+0, c.Args.VertexCount)
	PutU32(buf, off+offArgsBase+4, c.Args.InstanceCount)
	PutU32(buf, off+offArgsBase+8, c.Args.FirstVertex)
	PutU32(buf, off+offArgsBase+12, c.Args.FirstInstance)
}

// DecodeIndirectDrawCommand reads a command back, used by tests that assert
// on culler output.
func DecodeIndirectDrawCommand(buf []byte, off int) IndirectDrawCommand {
	return IndirectDrawCommand{
		PositionsIdx:  GetU32(buf, off+offPositionsIdx),
		NormalsIdx:    GetU32(buf, off+offNormalsIdx),
		UVsIdx:        GetU32(buf, off+offUVsIdx),
		IndicesIdx:    GetU32(buf, off+offIndicesIdx),
		MaterialID:    GetU32(buf, off+offMaterialID),
		MeshPartID:    GetU32(buf, off+offMeshPartID),
		BoneBufferID:  GetU32(buf, off+offBoneBufferID),
		CustomLayout:  GetU32(buf, off+offCustomLayout),
		BaseIndex:     GetU32(buf, off+offBaseIndex),
		StartInstance: GetU32(buf, off+offStartInstance),
		Flags:         GetU32(buf, off+offFlags),
		Args: IndirectDrawArgs{
			VertexCount:   GetU32(buf, off+offArgsBase+0),
			InstanceCount: GetU32(buf, off+offArgsBase+4),
			FirstVertex:   GetU32(buf, off+offArgsBase+8),
			FirstInstance: GetU32(buf, off+offArgsBase+12),
		},
	}
}
