package streaming

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// a 1x1 opaque red PNG, small enough to inline as a literal.
const onePixelRedPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="

func TestDecodeTextureDecodesPNGToRGBA8(t *testing.T) {
	data, err := base64.StdEncoding.DecodeString(onePixelRedPNG)
	require.NoError(t, err)

	tex, err := DecodeTexture(data)
	require.NoError(t, err)

	assert.Equal(t, 1, tex.Width)
	assert.Equal(t, 1, tex.Height)
	require.Len(t, tex.Pixels, 4)
	assert.Equal(t, []byte{0xff, 0x00, 0x00, 0xff}, tex.Pixels, "opaque red pixel decodes to R=255,G=0,B=0,A=255")
}

func TestDecodeTextureRejectsGarbageBytes(t *testing.T) {
	_, err := DecodeTexture([]byte{0, 1, 2, 3})
	assert.Error(t, err)
}

type sequentialFences struct{ next uint64 }

func (f *sequentialFences) NextFenceValue() uint64 {
	f.next++
	return f.next
}

// TestLoadAsyncWiresDecodeTextureAsParseCallback exercises the call site
// streaming.go's package doc comment promises: a StreamingManager caller's
// parse function reaching for DecodeTexture.
func TestLoadAsyncWiresDecodeTextureAsParseCallback(t *testing.T) {
	data, err := base64.StdEncoding.DecodeString(onePixelRedPNG)
	require.NoError(t, err)

	m := New(&sequentialFences{}, nil, 0)
	var uploaded *CPUTexture
	asset := m.LoadAsync(nil,
		func() (any, error) { return DecodeTexture(data) },
		func(cpu any) error {
			uploaded = cpu.(*CPUTexture)
			return nil
		},
	)

	require.Eventually(t, func() bool { return m.Pending() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, m.Drain(DefaultDrainBudget))
	assert.True(t, asset.IsReady(100))
	require.NotNil(t, uploaded)
	assert.Equal(t, 1, uploaded.Width)
}
