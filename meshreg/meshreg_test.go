package meshreg

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"

	"github.com/gekko3d/forgecore/gpumath"
)

func quadPart() MeshPart {
	return MeshPart{
		PositionsIdx: 1,
		NormalsIdx:   2,
		UVsIdx:       3,
		IndicesIdx:   4,
		BaseIndex:    0,
		IndexCount:   6,
		LocalSphere:  gpumath.Sphere{Center: mgl32.Vec3{0, 0, 0}, Radius: 0.75},
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := New()
	id1 := r.Register(quadPart())
	id2 := r.Register(quadPart())
	assert.Equal(t, id1, id2)
	assert.EqualValues(t, 1, r.Count(), "registering the same part twice must not grow the registry")
}

func TestRegisterDistinctPartsGetDistinctIds(t *testing.T) {
	r := New()
	a := quadPart()
	b := quadPart()
	b.IndicesIdx = 99

	idA := r.Register(a)
	idB := r.Register(b)
	assert.NotEqual(t, idA, idB)
	assert.EqualValues(t, 2, r.Count())
}

func TestCapacityDoublesOnce256Exceeded(t *testing.T) {
	r := New()
	assert.Equal(t, baseCapacity, r.Capacity())

	for i := 0; i < baseCapacity+1; i++ {
		p := quadPart()
		p.BaseIndex = uint32(i)
		r.Register(p)
	}
	assert.Equal(t, baseCapacity*2, r.Capacity())
}

func TestFlushOnlyUploadsNewEntriesSinceLastFlush(t *testing.T) {
	r := New()
	r.Register(quadPart())

	var calls int
	var lastStart uint32
	var lastGrew bool
	r.Flush(func(startIndex uint32, grew bool, newCapacity int, data []byte) {
		calls++
		lastStart = startIndex
		lastGrew = grew
		assert.Len(t, data, PartSize)
	})
	assert.Equal(t, 1, calls)
	assert.EqualValues(t, 0, lastStart)
	assert.False(t, lastGrew)

	second := quadPart()
	second.IndicesIdx = 42
	r.Register(second)

	calls = 0
	r.Flush(func(startIndex uint32, grew bool, newCapacity int, data []byte) {
		calls++
		lastStart = startIndex
		assert.Len(t, data, PartSize)
	})
	assert.Equal(t, 1, calls)
	assert.EqualValues(t, 1, lastStart, "second flush must only include the part added since the first flush")
}

func TestFlushWithNoNewEntriesDoesNotCallUpload(t *testing.T) {
	r := New()
	r.Register(quadPart())
	r.Flush(func(uint32, bool, int, []byte) {})

	called := false
	r.Flush(func(uint32, bool, int, []byte) { called = true })
	assert.False(t, called)
}
