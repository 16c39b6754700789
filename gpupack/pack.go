// Package gpupack packs the fixed-layout GPU-visible structs described in
// this design into byte slices, the way voxelrt/rt/bvh.BVHNode.ToBytes packs
// BVH nodes: explicit field offsets, little-endian, no reflection.
package gpupack

import (
	"encoding/binary"
	"math"
)

// PutU32 writes a uint32 at byte offset off.
func PutU32(buf []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], v)
}

// PutF32 writes a float32 at byte offset off.
func PutF32(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
}

// GetU32 reads a uint32 at byte offset off.
func GetU32(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off : off+4])
}

// GetF32 reads a float32 at byte offset off.
func GetF32(buf []byte, off int) float32 {
	return math.Float32frombits(GetU32(buf, off))
}

// Vec3 packs an (x, y, z) triple, as the BVH node packer does for its
// aabb_min/aabb_max fields.
func PutVec3(buf []byte, off int, x, y, z float32) {
	PutF32(buf, off+0, x)
	PutF32(buf, off+4, y)
	PutF32(buf, off+8, z)
}

// Vec4 packs an (x, y, z, w) quadruple.
func PutVec4(buf []byte, off int, x, y, z, w float32) {
	PutF32(buf, off+0, x)
	PutF32(buf, off+4, y)
	PutF32(buf, off+8, z)
	PutF32(buf, off+12, w)
}

// Mat4 packs a matrix given in column-major mgl32 element order
// (m[col*4+row], matching mathgl's Mat4 layout) as the row-major bytes of
// its row-vector form (the transpose, translation in row 3). Those bytes
// are mathgl's own element order, and WGSL's column-major mat4x4 reads
// them back as the original matrix, so shaders compute matrix * vector.
func PutMat4RowMajor(buf []byte, off int, m [16]float32) {
	for i, v := range m {
		PutF32(buf, off+i*4, v)
	}
}
