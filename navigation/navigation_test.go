package navigation

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.viam.com/test"

	"go.viam.com/hoopbot/components/base/fake"
	"go.viam.com/hoopbot/control"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/pose"
)

var (
	testSpeedPID = control.NewPIDConfig(5000, 0, 0, 0, control.PositionPID, 1, 0, 0)
	testAnglePID = control.NewPIDConfig(1000, 0, 0, 0, control.PositionPID, 10, 0, 0)
)

func newTestEngine(t *testing.T, distDB, angDB float64) (*Engine, *pose.Source) {
	t.Helper()
	reg := pose.NewRegistry(nil, pose.LocationNUC)
	channels := map[PointType]ChannelConfig{}
	for _, pt := range []PointType{PointFlat, PointRing, PointLinear, PointAxisSequence} {
		channels[pt] = ChannelConfig{
			Location:         pose.LocationNUC,
			Speed:            testSpeedPID,
			Angle:            testAnglePID,
			DistanceDeadband: distDB,
			AngleDeadband:    angDB,
			Strategy:         DefaultStrategy(pt),
		}
	}
	engine, err := NewEngine(reg, channels, DefaultCompensation, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	src, err := reg.Source(pose.LocationNUC)
	test.That(t, err, test.ShouldBeNil)
	return engine, src
}

func TestNewEngineMissingSource(t *testing.T) {
	reg := pose.NewRegistry(nil, pose.LocationNUC)
	_, err := NewEngine(reg, map[PointType]ChannelConfig{
		PointLoadBall: {Location: pose.LocationAction, Speed: testSpeedPID, Angle: testAnglePID},
	}, DefaultCompensation, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "load_ball")
}

func TestDirectDeadband(t *testing.T) {
	engine, src := newTestEngine(t, 500, 1)

	res := engine.Solve(PointFlat, Target{X: 1000})
	test.That(t, res.Arrival, test.ShouldEqual, NotArrived)
	test.That(t, res.MovingVelocity, test.ShouldAlmostEqual, 1000)
	test.That(t, res.HeadingAngle, test.ShouldAlmostEqual, 0)

	src.Set(pose.Pose{X: 600})
	res = engine.Solve(PointFlat, Target{X: 1000})
	test.That(t, res.Arrival, test.ShouldEqual, Arrived)
	test.That(t, res.MovingVelocity, test.ShouldEqual, 0)

	res = engine.Solve(PointFlat, Target{X: 1000, Yaw: 90})
	test.That(t, res.Arrival, test.ShouldEqual, PositionArrivedYawPending)
	test.That(t, res.TurningVelocity, test.ShouldAlmostEqual, -900)
	test.That(t, engine.Last(PointFlat), test.ShouldResemble, res)
}

func TestDirectHeading(t *testing.T) {
	engine, _ := newTestEngine(t, 10, 1)

	res := engine.Solve(PointFlat, Target{X: 0, Y: 1000})
	test.That(t, res.HeadingAngle, test.ShouldAlmostEqual, math.Pi/2)

	res = engine.Solve(PointFlat, Target{X: 0, Y: -1000})
	test.That(t, res.HeadingAngle, test.ShouldAlmostEqual, -math.Pi/2)

	// dy == 0 takes the lower branch.
	res = engine.Solve(PointFlat, Target{X: -1000, Y: 0})
	test.That(t, res.HeadingAngle, test.ShouldAlmostEqual, -math.Pi)
}

func TestDeadbandIdempotence(t *testing.T) {
	const distDB, angDB = 500.0, 2.0
	const eps = 1e-3

	for _, tc := range []struct {
		name    string
		dist    float64
		yaw     float64
		arrival ArrivalState
	}{
		{"on both deadbands", distDB, angDB, Arrived},
		{"inside both deadbands", distDB - eps, angDB - eps, Arrived},
		{"yaw within float32 epsilon", distDB, angDB + 1e-9, Arrived},
		{"outside distance deadband", distDB + eps, 0, NotArrived},
		{"outside angle deadband", distDB, angDB + eps, PositionArrivedYawPending},
	} {
		t.Run(tc.name, func(t *testing.T) {
			engine, src := newTestEngine(t, distDB, angDB)
			src.Set(pose.Pose{X: 1000 - tc.dist, Yaw: tc.yaw})
			target := Target{X: 1000}
			for i := 0; i < 5; i++ {
				test.That(t, engine.Solve(PointFlat, target).Arrival, test.ShouldEqual, tc.arrival)
			}
		})
	}
}

func TestInvalidChannel(t *testing.T) {
	engine, _ := newTestEngine(t, 500, 1)

	for _, pt := range []PointType{PointLoadBall, PointType(-1), NumPointTypes, PointType(99)} {
		test.That(t, engine.Configured(pt), test.ShouldBeFalse)
		res := engine.Solve(pt, Target{X: 1000})
		test.That(t, res, test.ShouldResemble, Result{Arrival: InvalidChannel})
		test.That(t, engine.Last(pt).Arrival, test.ShouldEqual, InvalidChannel)
	}

	sink := fake.NewDrivetrain()
	arrival, err := engine.Drive(context.Background(), PointLoadBall, Target{X: 1000}, sink)
	test.That(t, arrival, test.ShouldEqual, InvalidChannel)
	test.That(t, errors.Is(err, ErrInvalidChannel), test.ShouldBeTrue)
	test.That(t, sink.Count(), test.ShouldEqual, 0)
}

func TestNaNNeverPanics(t *testing.T) {
	engine, src := newTestEngine(t, 500, 1)

	res := engine.Solve(PointFlat, Target{X: math.NaN()})
	test.That(t, res, test.ShouldResemble, Result{Arrival: NotArrived})

	src.Set(pose.Pose{X: math.NaN()})
	for _, pt := range []PointType{PointFlat, PointLinear, PointAxisSequence} {
		res = engine.Solve(pt, Target{X: 1000})
		test.That(t, res, test.ShouldResemble, Result{Arrival: NotArrived})
	}

	// Zero distance.
	src.Set(pose.Pose{X: 1000})
	res = engine.Solve(PointFlat, Target{X: 1000})
	test.That(t, res.Arrival, test.ShouldEqual, Arrived)
}

func TestLinearStrategy(t *testing.T) {
	engine, src := newTestEngine(t, 50, 1)

	// Travelling along +y, the yaw target is the direction of travel (90).
	res := engine.Solve(PointLinear, Target{Y: 1000, Yaw: 30})
	test.That(t, res.Arrival, test.ShouldEqual, NotArrived)
	test.That(t, res.TurningVelocity, test.ShouldAlmostEqual, -900)

	src.Set(pose.Pose{Y: 1000, Yaw: 0})
	res = engine.Solve(PointLinear, Target{Y: 1000, Yaw: 30})
	test.That(t, res.Arrival, test.ShouldEqual, PositionArrivedYawPending)
	test.That(t, res.MovingVelocity, test.ShouldEqual, 0)
	test.That(t, res.TurningVelocity, test.ShouldAlmostEqual, -300)

	src.Set(pose.Pose{Y: 1000, Yaw: 30})
	test.That(t, engine.Solve(PointLinear, Target{Y: 1000, Yaw: 30}).Arrival, test.ShouldEqual, Arrived)
}

func TestAxisSequenceStrategy(t *testing.T) {
	engine, src := newTestEngine(t, 50, 1)
	target := Target{X: -1000, Y: 500, Yaw: 45}

	res := engine.Solve(PointAxisSequence, target)
	test.That(t, res.Arrival, test.ShouldEqual, NotArrived)
	test.That(t, res.HeadingAngle, test.ShouldEqual, math.Pi)
	test.That(t, res.MovingVelocity, test.ShouldAlmostEqual, 1000)
	test.That(t, res.TurningVelocity, test.ShouldEqual, 0)

	src.Set(pose.Pose{X: -990})
	res = engine.Solve(PointAxisSequence, target)
	test.That(t, res.HeadingAngle, test.ShouldEqual, math.Pi/2)
	test.That(t, res.MovingVelocity, test.ShouldAlmostEqual, 500)
	test.That(t, res.TurningVelocity, test.ShouldEqual, 0)

	src.Set(pose.Pose{X: -990, Y: 480})
	res = engine.Solve(PointAxisSequence, target)
	test.That(t, res.Arrival, test.ShouldEqual, NotArrived)
	test.That(t, res.MovingVelocity, test.ShouldEqual, 0)
	test.That(t, res.TurningVelocity, test.ShouldAlmostEqual, -450)

	src.Set(pose.Pose{X: -990, Y: 480, Yaw: 45})
	test.That(t, engine.Solve(PointAxisSequence, target).Arrival, test.ShouldEqual, Arrived)

	// Drifting off x during the yaw phase restarts the sequence.
	src.Set(pose.Pose{X: -900, Y: 480, Yaw: 45})
	res = engine.Solve(PointAxisSequence, target)
	test.That(t, res.Arrival, test.ShouldEqual, NotArrived)
	test.That(t, res.HeadingAngle, test.ShouldEqual, math.Pi)
}

func TestDrive(t *testing.T) {
	engine, _ := newTestEngine(t, 10, 1)
	sink := fake.NewDrivetrain()

	arrival, err := engine.Drive(context.Background(), PointFlat, Target{Y: 1000, Yaw: 90}, sink)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, arrival, test.ShouldEqual, NotArrived)
	cmd := sink.Last()
	test.That(t, cmd.Linear.X, test.ShouldAlmostEqual, 0)
	test.That(t, cmd.Linear.Y, test.ShouldAlmostEqual, 1000)
	// Rotation waits for the translation.
	test.That(t, cmd.Angular.Z, test.ShouldEqual, 0)
}

func TestDriveLinearTurnsAtTheEnd(t *testing.T) {
	engine, src := newTestEngine(t, 50, 1)
	sink := fake.NewDrivetrain()
	src.Set(pose.Pose{Y: 1000})

	arrival, err := engine.Drive(context.Background(), PointLinear, Target{Y: 1000, Yaw: 30}, sink)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, arrival, test.ShouldEqual, PositionArrivedYawPending)
	cmd := sink.Last()
	test.That(t, cmd.Linear.X, test.ShouldEqual, 0)
	test.That(t, cmd.Linear.Y, test.ShouldEqual, 0)
	// -300 from the angle loop plus the deadzone bias
	test.That(t, cmd.Angular.Z, test.ShouldAlmostEqual, -540)

	src.Set(pose.Pose{Y: 1000, Yaw: 30})
	arrival, err = engine.Drive(context.Background(), PointLinear, Target{Y: 1000, Yaw: 30}, sink)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, arrival, test.ShouldEqual, Arrived)
	test.That(t, sink.Last().Angular.Z, test.ShouldEqual, 0)
}

func TestAngleTrans(t *testing.T) {
	test.That(t, AngleTrans(10, 350), test.ShouldAlmostEqual, 20)
	test.That(t, AngleTrans(350, 10), test.ShouldAlmostEqual, -20)
	test.That(t, AngleTrans(0, 180), test.ShouldEqual, -180)
	test.That(t, AngleTrans(180, 0), test.ShouldEqual, 180)
	test.That(t, AngleTrans(-90, 90), test.ShouldEqual, -180)
	test.That(t, AngleTrans(45, 45), test.ShouldEqual, 0)

	for self := -180.0; self <= 180; self += 7.5 {
		for target := -180.0; target <= 180; target += 5 {
			got := AngleTrans(self, target)
			test.That(t, got, test.ShouldBeGreaterThanOrEqualTo, -180)
			test.That(t, got, test.ShouldBeLessThanOrEqualTo, 180)
			rem := math.Mod(self-target-got, 360)
			test.That(t, rem, test.ShouldAlmostEqual, 0)
		}
	}
}

func TestDecompose(t *testing.T) {
	res := Result{MovingVelocity: 100, HeadingAngle: math.Pi / 2, TurningVelocity: 50, Arrival: NotArrived}
	v := Decompose(res, DefaultCompensation)
	test.That(t, v.X, test.ShouldAlmostEqual, 0)
	test.That(t, v.Y, test.ShouldAlmostEqual, 100)
	test.That(t, v.W, test.ShouldEqual, 0)

	res.Arrival = PositionArrivedYawPending
	v = Decompose(res, DefaultCompensation)
	test.That(t, v.X, test.ShouldEqual, 0)
	test.That(t, v.Y, test.ShouldEqual, 0)
	test.That(t, v.W, test.ShouldEqual, 290)

	res.Arrival = Arrived
	res.TurningVelocity = -10
	v = Decompose(res, DefaultCompensation)
	test.That(t, v.W, test.ShouldEqual, -10)

	res.Arrival = InvalidChannel
	test.That(t, Decompose(res, DefaultCompensation), test.ShouldResemble, Velocity{})

	linear, angular := Velocity{X: 1, Y: 2, W: 3}.Vectors()
	test.That(t, linear.X, test.ShouldEqual, 1)
	test.That(t, linear.Y, test.ShouldEqual, 2)
	test.That(t, linear.Z, test.ShouldEqual, 0)
	test.That(t, angular.Z, test.ShouldEqual, 3)
}

func TestCompensation(t *testing.T) {
	c := Compensation{Threshold: 20, Bias: 240}
	test.That(t, c.Apply(20), test.ShouldEqual, 20)
	test.That(t, c.Apply(21), test.ShouldEqual, 261)
	test.That(t, c.Apply(-21), test.ShouldEqual, -261)
	test.That(t, c.Apply(-20), test.ShouldEqual, -20)
}

func TestPointTypeFromString(t *testing.T) {
	for pt := PointFlat; pt < NumPointTypes; pt++ {
		parsed, err := PointTypeFromString(pt.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, pt)
	}
	_, err := PointTypeFromString("spiral")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, PointType(42).String(), test.ShouldEqual, "invalid")
}

func TestStrategyFromString(t *testing.T) {
	s, err := StrategyFromString("axis_sequence")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s, test.ShouldEqual, StrategyAxisSequence)
	test.That(t, DefaultStrategy(PointLinear).String(), test.ShouldEqual, "linear")
	_, err = StrategyFromString("zigzag")
	test.That(t, err, test.ShouldNotBeNil)
}
