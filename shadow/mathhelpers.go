package shadow

import "math"

// floorf, expf and lnf wrap math's float64 transcendental functions for
// the float32 arithmetic the rest of this package uses; justified as
// stdlib since no example-pack library wraps basic transcendental math.
func floorf(v float32) float32 { return float32(math.Floor(float64(v))) }
func expf(v float32) float32   { return float32(math.Exp(float64(v))) }
func lnf(v float32) float32    { return float32(math.Log(float64(v))) }
