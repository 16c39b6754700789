package renderview

import "testing"

// FramesInFlight sizes the pacing ring: one fence slot per in-flight
// frame.
func TestFramesInFlightMatchesRingSize(t *testing.T) {
	rv := &RenderView{}
	if len(rv.ringFences) != FramesInFlight {
		t.Fatalf("ringFences has %d slots, want %d", len(rv.ringFences), FramesInFlight)
	}
}

func TestWidthHeightAccessorsReflectConfiguredSize(t *testing.T) {
	rv := &RenderView{width: 1920, height: 1080}
	if rv.Width() != 1920 || rv.Height() != 1080 {
		t.Fatalf("got %dx%d, want 1920x1080", rv.Width(), rv.Height())
	}
}
