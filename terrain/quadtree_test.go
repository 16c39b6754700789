package terrain

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestLevelOffsetMatchesGeometricSum(t *testing.T) {
	assert.Equal(t, 0, LevelOffset(0))
	assert.Equal(t, 1, LevelOffset(1))
	assert.Equal(t, 5, LevelOffset(2))  // 1 + 4
	assert.Equal(t, 21, LevelOffset(3)) // 1 + 4 + 16
}

func TestNodeIndexDecomposeRoundTrips(t *testing.T) {
	for level := 0; level <= 3; level++ {
		side := SideLength(level)
		for y := 0; y < side; y++ {
			for x := 0; x < side; x++ {
				idx := NodeIndex(level, x, y)
				gotLevel, gotX, gotY := Decompose(idx)
				assert.Equal(t, level, gotLevel)
				assert.Equal(t, x, gotX)
				assert.Equal(t, y, gotY)
			}
		}
	}
}

func TestTotalNodesMatchesLevelOffsetOfDepthPlusOne(t *testing.T) {
	assert.Equal(t, LevelOffset(4), TotalNodes(3))
}

func TestBuildHeightPyramidReducesToOnePixel(t *testing.T) {
	heightmap := make([]float32, 16*16)
	for i := range heightmap {
		heightmap[i] = float32(i)
	}
	mips := BuildHeightPyramid(heightmap, 16, 16)
	last := mips[len(mips)-1]
	assert.Equal(t, uint32(1), last.Width)
	assert.Equal(t, uint32(1), last.Height)
	assert.Equal(t, float32(0), last.Texels[0].Min)
	assert.Equal(t, float32(255), last.Texels[0].Max)
}

func TestDownsampleHeightTakesMinOfMinsMaxOfMaxes(t *testing.T) {
	fine := HeightMip{Width: 2, Height: 2, Texels: []HeightRange{
		{Min: 1, Max: 2}, {Min: 3, Max: 4},
		{Min: 5, Max: 6}, {Min: 0, Max: 9},
	}}
	coarse := DownsampleHeight(fine)
	assert.Equal(t, float32(0), coarse.Texels[0].Min)
	assert.Equal(t, float32(9), coarse.Texels[0].Max)
}

func TestScreenSpaceErrorDecreasesWithDistance(t *testing.T) {
	cam := Camera{Position: mgl32.Vec3{0, 0, 0}, FovYRadians: 1.0, ScreenHeight: 1080}
	near := ScreenSpaceError(cam, mgl32.Vec3{0, 0, 10}, 5)
	far := ScreenSpaceError(cam, mgl32.Vec3{0, 0, 1000}, 5)
	assert.Greater(t, near, far)
}
