package terrain

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/forgecore/gpumath"
)

// Stitch edge bits: set when the cardinal neighbor across that edge is
// coarser (one depth level shallower), so the vertex shader can weld the
// T-junction by snapping edge vertices to the coarser neighbor's grid
// (this design "terrain_patch_data{..., stitch_mask}").
const (
	StitchNorth uint8 = 1 << iota
	StitchEast
	StitchSouth
	StitchWest
)

// Leaf is one visible terrain patch emitted by EmitLeaves (this design
// "EmitLeaves": instance_descriptor, bounding_sphere, mesh_part_id,
// terrain_patch_data").
type Leaf struct {
	Level      int
	X, Y       int
	Bounds     gpumath.Sphere
	StitchMask uint8
}

// WorldBounds computes a leaf's world-space bounding sphere from the
// height-range pyramid mip matching its level, for the frustum/Hi-Z
// occlusion test (this design: "builds a bounding sphere from the
// height range").
func WorldBounds(level, x, y int, heightMips []HeightMip, worldSize float32, maxDepth int) gpumath.Sphere {
	side := SideLength(level)
	cellSize := worldSize / float32(side)
	cx := (float32(x) + 0.5) * cellSize
	cy := (float32(y) + 0.5) * cellSize

	mip := heightMips[level]
	hr := mip.at(uint32(x), uint32(y))
	centerHeight := (hr.Min + hr.Max) / 2
	halfHeight := (hr.Max - hr.Min) / 2

	horizontalRadius := cellSize * 0.70711 // half-diagonal of a square cell
	radius := horizontalRadius
	if halfHeight > radius {
		radius = halfHeight
	}
	return gpumath.Sphere{Center: mgl32.Vec3{cx, centerHeight, cy}, Radius: radius}
}

// EmitLeaves runs the second compute pass (this design "EmitLeaves"): a
// node is a visible leaf iff (its parent is split, or it is the root) and
// it is not itself split (or it has reached maxDepth); each visible leaf
// that survives the frustum/Hi-Z test is appended with its stitch mask.
func EmitLeaves(t *Tree, heightMips []HeightMip, worldSize float32, frustum gpumath.Frustum, occlusion func(gpumath.Sphere) bool) []Leaf {
	var leaves []Leaf
	var walk func(level, x, y int)
	walk = func(level, x, y int) {
		if t.isSplit(level, x, y) && level < t.maxDepth {
			for _, c := range children(x, y) {
				walk(level+1, c[0], c[1])
			}
			return
		}
		bounds := WorldBounds(level, x, y, heightMips, worldSize, t.maxDepth)
		if outside, _ := gpumath.SphereOutsideFrustum(frustum, bounds.Center, bounds.Radius); outside {
			return
		}
		if occlusion != nil && occlusion(bounds) {
			return
		}
		leaves = append(leaves, Leaf{
			Level:      level,
			X:          x,
			Y:          y,
			Bounds:     bounds,
			StitchMask: t.stitchMask(level, x, y),
		})
	}
	walk(0, 0, 0)
	return leaves
}

// stitchMask compares a leaf's depth against each cardinal neighbor's
// leaf depth, setting the bit for every edge whose neighbor is one level
// coarser (this design "stitch_mask"). The restricted-quadtree invariant
// guarantees the difference is never more than one level.
func (t *Tree) stitchMask(level, x, y int) uint8 {
	side := SideLength(level)
	var mask uint8
	check := func(nx, ny int, bit uint8) {
		if nx < 0 || ny < 0 || nx >= side || ny >= side {
			return
		}
		if t.leafLevel(level, nx, ny) < level {
			mask |= bit
		}
	}
	check(x, y-1, StitchNorth)
	check(x+1, y, StitchEast)
	check(x, y+1, StitchSouth)
	check(x-1, y, StitchWest)
	return mask
}
