// Package gpumath provides the CPU-side frustum, bounding-volume, and
// projection helpers shared by the culling, shadow, and terrain packages.
package gpumath

import "github.com/go-gl/mathgl/mgl32"

// Plane is a world-space plane in the form Ax + By + Cz + D = 0, stored as
// (A, B, C, D).
type Plane = mgl32.Vec4

// Frustum is the six world-space planes of a view frustum, in the fixed
// order Left, Right, Bottom, Top, Near, Far.
type Frustum struct {
	Planes [6]Plane
}

// ExtractFrustum derives the six frustum planes from a combined
// view-projection matrix using the standard Gribb/Hartmann row-extraction,
// negated so every plane's normal points out of the frustum (the sign
// SphereOutsideFrustum's convention expects). Each plane is normalized to
// a unit-length normal, so dot(plane.xyz, p) + plane.w is a true signed
// distance.
func ExtractFrustum(vp mgl32.Mat4) Frustum {
	var f Frustum

	add := func(c0 int, sign float32) Plane {
		return Plane{
			-(vp.At(3, 0) + sign*vp.At(c0, 0)),
			-(vp.At(3, 1) + sign*vp.At(c0, 1)),
			-(vp.At(3, 2) + sign*vp.At(c0, 2)),
			-(vp.At(3, 3) + sign*vp.At(c0, 3)),
		}
	}

	f.Planes[0] = add(0, +1) // Left
	f.Planes[1] = add(0, -1) // Right
	f.Planes[2] = add(1, +1) // Bottom
	f.Planes[3] = add(1, -1) // Top
	f.Planes[4] = add(2, +1) // Near
	f.Planes[5] = add(2, -1) // Far

	for i := range f.Planes {
		f.Planes[i] = normalizePlane(f.Planes[i])
	}
	return f
}

func normalizePlane(p Plane) Plane {
	n := mgl32.Vec3{p.X(), p.Y(), p.Z()}
	l := n.Len()
	if l == 0 {
		return p
	}
	return Plane{p.X() / l, p.Y() / l, p.Z() / l, p.W() / l}
}

// SphereOutsideFrustum applies the culling convention from this design:
// dot(plane.xyz, center) + plane.w > radius => outside. Returns true (and
// the offending plane index) the first time any plane rejects the sphere.
func SphereOutsideFrustum(f Frustum, center mgl32.Vec3, radius float32) (outside bool, plane int) {
	for i, p := range f.Planes {
		d := p.X()*center.X() + p.Y()*center.Y() + p.Z()*center.Z() + p.W()
		if d > radius {
			return true, i
		}
	}
	return false, -1
}
