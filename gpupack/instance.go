package gpupack

// InstanceDescriptorSize is the fixed 12-byte size of the per-instance
// descriptor consumed by every vertex shader.
const InstanceDescriptorSize = 12

// InstanceDescriptor is the GPU-visible record produced by the instance
// batcher: {transform_slot, material_id, custom_data_idx}.
type InstanceDescriptor struct {
	TransformSlot uint32
	MaterialID    uint32
	CustomDataIdx uint32
}

// Encode writes the descriptor into buf at offset off, which must have at
// least InstanceDescriptorSize bytes remaining.
func (d InstanceDescriptor) Encode(buf []byte, off int) {
	PutU32(buf, off+0, d.TransformSlot)
	PutU32(buf, off+4, d.MaterialID)
	PutU32(buf, off+8, d.CustomDataIdx)
}

// DecodeInstanceDescriptor reads a descriptor back out, used by tests that
// verify round-trip staging-buffer contents.
func DecodeInstanceDescriptor(buf []byte, off int) InstanceDescriptor {
	return InstanceDescriptor{
		TransformSlot: GetU32(buf, off+0),
		MaterialID:    GetU32(buf, off+4),
		CustomDataIdx: GetU32(buf, off+8),
	}
}
