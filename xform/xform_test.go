package xform

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestAllocateSlotIsDenseAndReused(t *testing.T) {
	b := New()
	s0 := b.AllocateSlot()
	s1 := b.AllocateSlot()
	assert.EqualValues(t, 0, s0)
	assert.EqualValues(t, 1, s1)

	b.Free(s0)
	s2 := b.AllocateSlot()
	assert.Equal(t, s0, s2, "freed slots are reused before growing the tail")
}

func TestSetThenFreeThenAllocateDoesNotLeakMatrix(t *testing.T) {
	b := New()
	slot := b.AllocateSlot()
	m := mgl32.Translate3D(1, 2, 3)
	b.Set(slot, m)
	assert.Equal(t, m, b.Get(slot))

	b.Free(slot)
	reused := b.AllocateSlot()
	assert.Equal(t, slot, reused)
	assert.Equal(t, mgl32.Mat4{}, b.Get(reused), "reused slot must not retain the previous owner's matrix")
}

func TestDirtySpansMergeContiguousSlots(t *testing.T) {
	b := New()
	for i := 0; i < 5; i++ {
		b.AllocateSlot()
	}
	b.Set(0, mgl32.Ident4())
	b.Set(1, mgl32.Ident4())
	b.Set(3, mgl32.Ident4())

	spans := b.DirtySpans()
	assert.ElementsMatch(t, []Span{{Start: 0, Count: 2}, {Start: 3, Count: 1}}, spans)
}

func TestFlushUploadsMergedSpansAndClearsDirty(t *testing.T) {
	b := New()
	for i := 0; i < 3; i++ {
		b.AllocateSlot()
	}
	b.Set(0, mgl32.Ident4())
	b.Set(1, mgl32.Ident4())
	b.Set(2, mgl32.Ident4())

	var uploads int
	var lastOffset uint64
	var lastLen int
	b.Flush(func(byteOffset uint64, data []byte) {
		uploads++
		lastOffset = byteOffset
		lastLen = len(data)
	})

	assert.Equal(t, 1, uploads, "three contiguous dirty slots must merge into a single upload")
	assert.EqualValues(t, 0, lastOffset)
	assert.Equal(t, 3*64, lastLen)

	assert.Empty(t, b.DirtySpans(), "flush must clear the dirty set")
}

func TestRoundTripThroughFlushPreservesMatrixBytes(t *testing.T) {
	b := New()
	slot := b.AllocateSlot()
	m := mgl32.Translate3D(5, 6, 7)
	b.Set(slot, m)

	var captured []byte
	b.Flush(func(byteOffset uint64, data []byte) {
		captured = append([]byte(nil), data...)
	})

	assert.Len(t, captured, 64)
}
