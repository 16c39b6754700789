package streaming

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// CPUTexture is the parsed, CPU-resident form a LoadAsync createGPU
// callback uploads: tightly packed RGBA8 rows, top-to-bottom, matching
// wgpu's TextureFormatRGBA8Unorm row layout (bindless's sampled-texture
// descriptor type for streamed material textures).
type CPUTexture struct {
	Width, Height int
	Pixels        []byte // len == Width*Height*4
}

// DecodeTexture sniffs and decodes a texture file's bytes, converting to
// RGBA8 if the source decoder produced a different pixel format (bmp,
// tiff and webp may all decode to non-RGBA image.Image concrete types;
// jpeg always does, and png only for paletted/gray sources). This is the
// CPU-side decoder a StreamingManager.LoadAsync parse callback reaches
// for: register it via the registered format name so a single call site
// handles every texture extension this engine ships assets in.
//
// png and jpeg decode through the standard library; bmp, tiff and webp
// register themselves against image.Decode via their blank imports above,
// matching the teacher's own go.mod dependency on golang.org/x/image for
// exactly these three formats (webp decode-only; there is no webp
// encoder in the x/image tree).
func DecodeTexture(data []byte) (*CPUTexture, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("streaming: decode texture: %w", err)
	}

	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)

	if rgba.Stride != b.Dx()*4 {
		// NewRGBA always returns a tightly packed buffer for a bounds
		// rooted at (0,0)-ish sizes, but guard the assumption the rest of
		// this function relies on rather than silently shipping a
		// mis-strided upload.
		return nil, fmt.Errorf("streaming: decode texture: unexpected %s stride %d for width %d", format, rgba.Stride, b.Dx())
	}

	return &CPUTexture{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pixels: rgba.Pix,
	}, nil
}

// RegisteredTextureFormats lists the image formats DecodeTexture accepts,
// for callers that need to filter a directory listing before streaming it
// (e.g. an asset importer skipping sidecar files).
func RegisteredTextureFormats() []string {
	return []string{"png", "jpeg", "bmp", "tiff", "webp"}
}
