package utils

import (
	"math"
)

// Float32Epsilon is the float32 machine epsilon. Deadband checks compare against it so that
// values sitting exactly on a deadband are treated the same way the controller firmware did.
const Float32Epsilon = 1.1920929e-07

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Square is faster than math.Pow(n, 2).
func Square(n float64) float64 {
	return n * n
}

// CompareFloat returns -1, 0 or 1 as a is less than, within Float32Epsilon of, or greater than b.
func CompareFloat(a, b float64) int {
	diff := a - b
	if math.Abs(diff) < Float32Epsilon {
		return 0
	}
	if diff < 0 {
		return -1
	}
	return 1
}

// Sign returns -1, 0 or 1.
func Sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// Hypot is math.Hypot that maps a NaN result to +Inf so distance checks never pass by accident.
func Hypot(dx, dy float64) float64 {
	d := math.Hypot(dx, dy)
	if math.IsNaN(d) {
		return math.Inf(1)
	}
	return d
}
