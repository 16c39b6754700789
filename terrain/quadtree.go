// Package terrain implements the TerrainQuadtree compute pipeline:
// a conceptual complete 4-ary tree the CPU never
// materializes, addressed by a flat index computed from a level's base
// offset plus the node's local quadrant coordinate — the same
// base-offset-plus-local-coordinate addressing
// Gekko3D-gekko's voxelrt/rt/gpu/manager.go uses for brick-table slots
// (`info.BrickTableIndex + uint32(bx+by*4+bz*16)`), generalized here from
// a fixed 4x4x4 brick to a per-level quadtree fan-out.
//
// MarkSplits/EmitLeaves are pure-Go reference implementations of the two
// node-classification compute passes this package drives on the GPU; the
// voxel ray tracer they're adapted from has no terrain LOD system of its
// own, so their splitting/balancing logic is grounded directly on the
// restricted-quadtree invariant (adjacent leaves differ by at most one
// depth level). The GPU dispatch orchestration in
// terrain.go follows hiz.Builder's compute-pass-per-stage shape.
package terrain

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

func float32Tan(rad float32) float32 { return float32(math.Tan(float64(rad))) }

// LevelOffset returns the flat index of quadtree level L's first node:
// sum_{i<L} 4^i = (4^L - 1)/3.
func LevelOffset(level int) int {
	offset := 0
	size := 1
	for i := 0; i < level; i++ {
		offset += size
		size *= 4
	}
	return offset
}

// SideLength returns the number of nodes along one edge of level L: 2^L.
func SideLength(level int) int { return 1 << uint(level) }

// NodeIndex returns the flat index of the node at (level, x, y).
func NodeIndex(level, x, y int) int {
	return LevelOffset(level) + y*SideLength(level) + x
}

// TotalNodes returns the number of nodes in a complete quadtree of depth
// maxDepth (levels 0..maxDepth inclusive).
func TotalNodes(maxDepth int) int { return LevelOffset(maxDepth + 1) }

// Decompose inverts NodeIndex, returning the (level, x, y) a flat index
// names.
func Decompose(index int) (level, x, y int) {
	for {
		size := SideLength(level) * SideLength(level)
		start := LevelOffset(level)
		if index < start+size {
			local := index - start
			side := SideLength(level)
			return level, local % side, local / side
		}
		level++
	}
}

func parentIndex(level, x, y int) (pLevel, px, py int, ok bool) {
	if level == 0 {
		return 0, 0, 0, false
	}
	return level - 1, x / 2, y / 2, true
}

// HeightRange is one height-pyramid texel: the min/max heightmap value
// over the region it covers.
type HeightRange struct {
	Min, Max float32
}

// HeightMip is one level of the height-range pyramid.
type HeightMip struct {
	Width, Height uint32
	Texels        []HeightRange
}

func (m HeightMip) at(x, y uint32) HeightRange {
	if x >= m.Width {
		x = m.Width - 1
	}
	if y >= m.Height {
		y = m.Height - 1
	}
	return m.Texels[y*m.Width+x]
}

// BuildHeightMip0 computes mip 0 as the (min, max) of each 4x4 supersample
// block of a raw heightmap.
func BuildHeightMip0(heightmap []float32, w, h uint32) HeightMip {
	const super = 4
	outW, outH := (w+super-1)/super, (h+super-1)/super
	mip := HeightMip{Width: outW, Height: outH, Texels: make([]HeightRange, outW*outH)}
	for oy := uint32(0); oy < outH; oy++ {
		for ox := uint32(0); ox < outW; ox++ {
			min := float32(1e30)
			max := float32(-1e30)
			for sy := uint32(0); sy < super; sy++ {
				for sx := uint32(0); sx < super; sx++ {
					x, y := ox*super+sx, oy*super+sy
					if x >= w || y >= h {
						continue
					}
					v := heightmap[y*w+x]
					if v < min {
						min = v
					}
					if v > max {
						max = v
					}
				}
			}
			mip.Texels[oy*outW+ox] = HeightRange{Min: min, Max: max}
		}
	}
	return mip
}

// DownsampleHeight produces the next coarser height mip by taking the
// component-wise min-of-mins, max-of-maxes over each 2x2 block.
func DownsampleHeight(fine HeightMip) HeightMip {
	w := (fine.Width + 1) / 2
	h := (fine.Height + 1) / 2
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	out := HeightMip{Width: w, Height: h, Texels: make([]HeightRange, w*h)}
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			a, b, c, d := fine.at(x*2, y*2), fine.at(x*2+1, y*2), fine.at(x*2, y*2+1), fine.at(x*2+1, y*2+1)
			out.Texels[y*w+x] = HeightRange{
				Min: minOf(a.Min, b.Min, c.Min, d.Min),
				Max: maxOf(a.Max, b.Max, c.Max, d.Max),
			}
		}
	}
	return out
}

// BuildHeightPyramid builds the full height-range pyramid once at startup.
func BuildHeightPyramid(heightmap []float32, w, h uint32) []HeightMip {
	mips := []HeightMip{BuildHeightMip0(heightmap, w, h)}
	cur := mips[0]
	for cur.Width > 1 || cur.Height > 1 {
		cur = DownsampleHeight(cur)
		mips = append(mips, cur)
	}
	return mips
}

func minOf(vs ...float32) float32 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vs ...float32) float32 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Camera carries the view parameters MarkSplits projects geometric error
// against (this screen-space error formula).
type Camera struct {
	Position     mgl32.Vec3
	FovYRadians  float32
	ScreenHeight float32
}

// ScreenSpaceError projects a node's height-range geometric error to
// screen-space pixels: error * screenHeight / (2 * dist * tan(fov/2)).
func ScreenSpaceError(camera Camera, nodeCenter mgl32.Vec3, heightError float32) float32 {
	dist := camera.Position.Sub(nodeCenter).Len()
	if dist < 1e-4 {
		dist = 1e-4
	}
	denom := 2 * dist * float32Tan(camera.FovYRadians/2)
	if denom < 1e-4 {
		denom = 1e-4
	}
	return heightError * camera.ScreenHeight / denom
}
