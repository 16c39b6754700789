package gpumath

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestExtractFrustumSphereCulling(t *testing.T) {
	proj := mgl32.Perspective(mgl32.DegToRad(90), 1.0, 1.0, 100.0)
	view := mgl32.LookAtV(
		mgl32.Vec3{0, 0, 0},
		mgl32.Vec3{0, 0, -1},
		mgl32.Vec3{0, 1, 0},
	)
	f := ExtractFrustum(proj.Mul4(view))

	tests := []struct {
		name    string
		center  mgl32.Vec3
		radius  float32
		outside bool
	}{
		{"centered in front", mgl32.Vec3{0, 0, -10}, 1, false},
		{"far left outside", mgl32.Vec3{-30, 0, -10}, 1, true},
		{"behind the camera", mgl32.Vec3{0, 0, 5}, 1, true},
		{"straddling left plane", mgl32.Vec3{-10, 0, -10}, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outside, _ := SphereOutsideFrustum(f, tt.center, tt.radius)
			assert.Equal(t, tt.outside, outside)
		})
	}
}

func TestTransformSphereScalesRadiusByMaxAxis(t *testing.T) {
	world := mgl32.Scale3D(2, 3, 1).Mul4(mgl32.Translate3D(1, 0, 0))
	s := Sphere{Center: mgl32.Vec3{0, 0, 0}, Radius: 1}
	out := TransformSphere(s, world)
	assert.InDelta(t, 3.0, out.Radius, 1e-5)
}

func TestInflateForSkinning(t *testing.T) {
	s := Sphere{Radius: 2}
	out := InflateForSkinning(s)
	assert.InDelta(t, 3.0, out.Radius, 1e-5)
}
