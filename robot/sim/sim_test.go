package sim

import (
	"context"
	"math"
	"testing"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/hoopbot/components/input/remote"
	"go.viam.com/hoopbot/components/slavelink"
	"go.viam.com/hoopbot/config"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/pose"
	"go.viam.com/hoopbot/robot"
	"go.viam.com/hoopbot/services/chassis"
)

func TestAdvance(t *testing.T) {
	// world frame: the command is the world motion whatever the heading
	p := Advance(pose.Pose{Yaw: 90}, slavelink.State{VX: 100, WorldYaw: 90}, 1, 1, 1)
	test.That(t, p.X, test.ShouldAlmostEqual, 100.0)
	test.That(t, p.Y, test.ShouldAlmostEqual, 0.0)

	// chassis frame: forward turns with the chassis
	p = Advance(pose.Pose{Yaw: 90}, slavelink.State{VX: 100}, 1, 1, 1)
	test.That(t, p.X, test.ShouldAlmostEqual, 0.0)
	test.That(t, p.Y, test.ShouldAlmostEqual, 100.0)

	p = Advance(pose.Pose{Yaw: 170}, slavelink.State{W: 40}, 1, 1, 0.5)
	test.That(t, p.Yaw, test.ShouldAlmostEqual, -170.0)

	p = Advance(pose.Pose{X: 5}, slavelink.State{VX: 100, VY: 100}, 0.5, 2, 1)
	test.That(t, p.X, test.ShouldAlmostEqual, 105.0)
	test.That(t, p.Y, test.ShouldAlmostEqual, 100.0)
}

func TestRobotOnSim(t *testing.T) {
	logger := logging.NewTestLogger(t)
	s := New(DefaultConfig(), nil, logger.Sublogger("sim"))
	r, err := robot.New(context.Background(), config.Default(), s.Hardware(), nil, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, r.Close(context.Background()), test.ShouldBeNil)
		test.That(t, s.Close(), test.ShouldBeNil)
	}()

	test.That(t, r.Chassis(), test.ShouldNotBeNil)
	test.That(t, r.Dribble(), test.ShouldNotBeNil)
	test.That(t, r.Shooter(), test.ShouldNotBeNil)
	test.That(t, r.Orchestrator(), test.ShouldNotBeNil)

	// the vision pose reaches the robot
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		_, ok := r.Registry().Get(pose.LocationNUC)
		test.That(tb, ok, test.ShouldBeTrue)
	})
	test.That(t, s.Slave().Halt, test.ShouldBeTrue)

	test.That(t, s.Press(remote.Frame{Key: chassis.KeyHalt}), test.ShouldBeNil)
	var axes remote.Axes
	axes[remote.LeftY] = 60
	test.That(t, s.Press(remote.Frame{Axes: axes}), test.ShouldBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, s.Slave().Halt, test.ShouldBeFalse)
		test.That(tb, s.Pose().Y, test.ShouldBeGreaterThan, 1.0)
		test.That(tb, math.Abs(s.Pose().X), test.ShouldBeLessThan, 1.0)
		test.That(tb, s.Reports(), test.ShouldBeGreaterThan, 0)
	})

	test.That(t, s.Press(remote.Frame{}), test.ShouldBeNil)
}
