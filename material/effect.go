package material

import "github.com/gekko3d/forgecore/batch"

// Effect pairs a material slot with the pass mask its shading model
// participates in (this design: "Pass mask is derived from the
// material's effect"). A fully opaque surface targets PassOpaque and
// PassShadow; an emissive-only or post-process surface may skip shadow
// casting entirely.
type Effect struct {
	MaterialSlot uint32
	PassMask     batch.PassMask
}

// OpaqueEffect is the common case: casts shadows, receives lighting, and
// participates in the opaque G-buffer pass.
func OpaqueEffect(materialSlot uint32) Effect {
	return Effect{MaterialSlot: materialSlot, PassMask: batch.PassOpaque | batch.PassShadow | batch.PassLight}
}

// UnlitEffect skips the light pass: used for skyboxes, debug overlays and
// emissive-only surfaces that don't sample the shadow cascades or
// G-buffer lighting.
func UnlitEffect(materialSlot uint32) Effect {
	return Effect{MaterialSlot: materialSlot, PassMask: batch.PassOpaque}
}
