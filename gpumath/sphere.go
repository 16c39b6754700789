package gpumath

import "github.com/go-gl/mathgl/mgl32"

// Sphere is a local-space bounding sphere, as registered on a MeshPart.
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

// TransformSphere moves a local-space sphere into world space by a world
// matrix, scaling the radius by the matrix's largest axis scale.
func TransformSphere(s Sphere, world mgl32.Mat4) Sphere {
	h := world.Mul4x1(mgl32.Vec4{s.Center.X(), s.Center.Y(), s.Center.Z(), 1})
	center := mgl32.Vec3{h.X(), h.Y(), h.Z()}
	scaleX := mgl32.Vec3{world.At(0, 0), world.At(1, 0), world.At(2, 0)}.Len()
	scaleY := mgl32.Vec3{world.At(0, 1), world.At(1, 1), world.At(2, 1)}.Len()
	scaleZ := mgl32.Vec3{world.At(0, 2), world.At(1, 2), world.At(2, 2)}.Len()
	maxScale := scaleX
	if scaleY > maxScale {
		maxScale = scaleY
	}
	if scaleZ > maxScale {
		maxScale = scaleZ
	}
	return Sphere{Center: center, Radius: s.Radius * maxScale}
}

// InflateForSkinning widens a bind-pose bounding radius to absorb animation
// excursion: skinned meshes use a 1.5x inflation factor.
const SkinnedBoundsInflation = 1.5

func InflateForSkinning(s Sphere) Sphere {
	return Sphere{Center: s.Center, Radius: s.Radius * SkinnedBoundsInflation}
}

// ViewSpaceNearZ returns the view-space depth of the sphere's nearest point
// to the camera: clip.w minus the radius. clipW is the homogeneous w of the sphere center
// after the view-projection transform, which for a perspective projection
// equals the view-space z of the center.
func ViewSpaceNearZ(clipW, radius float32) float32 {
	return clipW - radius
}
