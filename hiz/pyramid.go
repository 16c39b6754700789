package hiz

import "math"

// Mip is one level of a CPU-side pyramid: a row-major W*H array of
// float32 depth values.
type Mip struct {
	Width, Height uint32
	Texels        []float32
}

// at returns the texel at (x, y), treating both out-of-range coordinates
// and an in-range cleared/sky value (<= 0) as the mip's +infinity
// empty-pixel sentinel (spec.md §4.5/§8: "treat values <= 0 (cleared) as
// +infinity"), so neither ever under-reports occlusion during the max.
// At is the exported form of at, used by callers outside this package
// (cull.NewHiZOcclusionTest's CPU-side Hi-Z sample) that read a readback-
// ed pyramid directly.
func (m Mip) At(x, y uint32) float32 { return m.at(x, y) }

func (m Mip) at(x, y uint32) float32 {
	if x >= m.Width || y >= m.Height {
		return float32(math.Inf(1))
	}
	v := m.Texels[y*m.Width+x]
	if v <= 0 {
		return float32(math.Inf(1))
	}
	return v
}

// Downsample produces the next coarser mip by taking the max of each 2x2
// texel block the finer mip covers.
func Downsample(fine Mip) Mip {
	w := (fine.Width + 1) / 2
	h := (fine.Height + 1) / 2
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	out := Mip{Width: w, Height: h, Texels: make([]float32, w*h)}
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			x0, y0 := x*2, y*2
			m := fine.at(x0, y0)
			m = max32(m, fine.at(x0+1, y0))
			m = max32(m, fine.at(x0, y0+1))
			m = max32(m, fine.at(x0+1, y0+1))
			out.Texels[y*w+x] = m
		}
	}
	return out
}

// BuildPyramid downsamples mip0 down to a 1x1 top level, a pure-Go
// reference used to verify the GPU compute pipeline's invariant and to
// drive CPU-side occlusion pre-passes when no GPU readback is available.
func BuildPyramid(mip0 Mip) []Mip {
	mips := []Mip{mip0}
	cur := mip0
	for cur.Width > 1 || cur.Height > 1 {
		cur = Downsample(cur)
		mips = append(mips, cur)
	}
	return mips
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
