package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestAngleConversion(t *testing.T) {
	test.That(t, DegToRad(180), test.ShouldAlmostEqual, math.Pi)
	test.That(t, RadToDeg(-math.Pi/2), test.ShouldAlmostEqual, -90)
	test.That(t, Square(-3), test.ShouldEqual, 9)
}

func TestCompareFloat(t *testing.T) {
	test.That(t, CompareFloat(1, 1), test.ShouldEqual, 0)
	test.That(t, CompareFloat(1, 1+Float32Epsilon/2), test.ShouldEqual, 0)
	test.That(t, CompareFloat(1, 1.001), test.ShouldEqual, -1)
	test.That(t, CompareFloat(1.001, 1), test.ShouldEqual, 1)
}

func TestSignAndHypot(t *testing.T) {
	test.That(t, Sign(-2), test.ShouldEqual, -1)
	test.That(t, Sign(0), test.ShouldEqual, 0)
	test.That(t, Sign(0.1), test.ShouldEqual, 1)
	test.That(t, Hypot(3, 4), test.ShouldEqual, 5)
	test.That(t, math.IsInf(Hypot(math.NaN(), 1), 1), test.ShouldBeTrue)
}
