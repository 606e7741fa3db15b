package navigation

import "math"

// AngleTrans returns the rotation in degrees from target to self along the shorter arc. An
// exact half turn keeps the unwrapped difference, so AngleTrans(0, 180) is -180 and
// AngleTrans(180, 0) is 180.
func AngleTrans(self, target float64) float64 {
	t := self - target
	var alt float64
	if t > 0 {
		alt = t - 360
	} else {
		alt = t + 360
	}
	if math.Abs(alt) < math.Abs(t) {
		return alt
	}
	return t
}
