package navigation

import (
	"math"
	"testing"

	"go.viam.com/test"

	"go.viam.com/hoopbot/pose"
	"go.viam.com/hoopbot/utils"
)

func TestAimBearing(t *testing.T) {
	origin := pose.Pose{}
	for _, tc := range []struct {
		x, y    float64
		bearing float64
	}{
		{0, 1000, 0},
		{-1000, 0, math.Pi / 2},
		{1000, 0, -math.Pi / 2},
		{0, -1000, math.Pi},
		{-1000, 1000, math.Pi / 4},
		{1000, -1000, -3 * math.Pi / 4},
	} {
		a, ok := AimBearing(origin, tc.x, tc.y)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, a, test.ShouldAlmostEqual, tc.bearing)
	}

	a, ok := AimBearing(pose.Pose{X: 5, Y: 5}, 5, 5)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, a, test.ShouldEqual, 0)
}

func TestRingProjectOffset(t *testing.T) {
	ring, err := NewRing(DefaultRingConfig())
	test.That(t, err, test.ShouldBeNil)
	bx, by := ring.Basket()

	for _, tc := range []struct {
		name string
		p    pose.Pose
		// The [-pi, -pi/2) quadrant mirrors x, so its target is off the circle.
		onCircle bool
	}{
		{"below left", pose.Pose{X: 0, Y: 0}, true},
		{"below right", pose.Pose{X: 6000, Y: 10000}, true},
		{"above right", pose.Pose{X: 6000, Y: 16000}, true},
		{"above left", pose.Pose{X: 1000, Y: 16000}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < ring.Len(); i++ {
				radius := ring.Entry(i).Radius
				k := radius - ring.DistanceToBasket(tc.p)
				target := ring.Project(tc.p, radius)

				offset := math.Hypot(target.X-tc.p.X, target.Y-tc.p.Y)
				test.That(t, offset, test.ShouldAlmostEqual, math.Abs(k), 1e-6)

				a, ok := ring.BasketBearing(tc.p)
				test.That(t, ok, test.ShouldBeTrue)
				test.That(t, target.Yaw, test.ShouldAlmostEqual, utils.RadToDeg(a))

				if tc.onCircle {
					test.That(t, math.Hypot(bx-target.X, by-target.Y), test.ShouldAlmostEqual, radius, 1e-6)
				}
			}
		})
	}
}

func TestRingProjectContinuity(t *testing.T) {
	ring, err := NewRing(DefaultRingConfig())
	test.That(t, err, test.ShouldBeNil)
	bx, _ := ring.Basket()
	const radius = 3000.0

	// Across the bearing-zero boundary, straight below the basket.
	left := ring.Project(pose.Pose{X: bx - 0.5}, radius)
	right := ring.Project(pose.Pose{X: bx + 0.5}, radius)
	test.That(t, math.Hypot(left.X-right.X, left.Y-right.Y), test.ShouldBeLessThan, 2)

	// Within a quadrant, a small move gives a small change.
	prev := ring.Project(pose.Pose{X: -2000, Y: 2000}, radius)
	for x := -1990.0; x <= 0; x += 10 {
		next := ring.Project(pose.Pose{X: x, Y: 2000}, radius)
		test.That(t, math.Hypot(next.X-prev.X, next.Y-prev.Y), test.ShouldBeLessThan, 20)
		prev = next
	}
}

func testRing(t *testing.T, minX float64) *Ring {
	t.Helper()
	ring, err := NewRing(RingConfig{
		Table: []RingEntry{{500, 1}, {1000, 2}, {1500, 3}, {2000, 4}, {2500, 5}, {3000, 6}},
		MinX:  minX,
		MaxX:  1000,
	})
	test.That(t, err, test.ShouldBeNil)
	return ring
}

func TestRingResolve(t *testing.T) {
	ring := testRing(t, -1100)
	p := pose.Pose{X: -5000}

	idx, target, ok := ring.Resolve(p, 5)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, idx, test.ShouldEqual, 1)
	test.That(t, target.X, test.ShouldAlmostEqual, -1000)
	test.That(t, ring.InBounds(target), test.ShouldBeTrue)

	idx, _, ok = ring.Resolve(p, 99)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, idx, test.ShouldEqual, 1)

	idx, target, ok = ring.Resolve(p, -3)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, idx, test.ShouldEqual, 0)
	test.That(t, target.X, test.ShouldAlmostEqual, -500)
}

func TestRingResolveNeverBelowZero(t *testing.T) {
	ring := testRing(t, -400)

	idx, target, ok := ring.Resolve(pose.Pose{X: -5000}, 5)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, idx, test.ShouldEqual, 0)
	test.That(t, target.X, test.ShouldAlmostEqual, -500)
}

func TestRingNearestIndex(t *testing.T) {
	ring, err := NewRing(DefaultRingConfig())
	test.That(t, err, test.ShouldBeNil)

	idx, diff := ring.NearestIndex(2050)
	test.That(t, idx, test.ShouldEqual, 0)
	test.That(t, diff, test.ShouldEqual, 50)

	idx, _ = ring.NearestIndex(2060)
	test.That(t, idx, test.ShouldEqual, 1)

	idx, diff = ring.NearestIndex(10000)
	test.That(t, idx, test.ShouldEqual, 17)
	test.That(t, diff, test.ShouldEqual, 4000)

	test.That(t, ring.SpeedAt(-1), test.ShouldEqual, 13600)
	test.That(t, ring.SpeedAt(100), test.ShouldEqual, 20200)
}

func TestRingConfigValidate(t *testing.T) {
	test.That(t, DefaultRingConfig().Validate(), test.ShouldBeNil)

	_, err := NewRing(RingConfig{MinX: 10, MaxX: 0})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "table is empty")
	test.That(t, err.Error(), test.ShouldContainSubstring, "min_x")

	err = RingConfig{Table: []RingEntry{{2000, 1}, {1000, 2}}, MinX: -1, MaxX: 1}.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "table[1] radius must increase")
}
