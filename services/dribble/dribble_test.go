package dribble

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest/observer"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/hoopbot/components/board"
	"go.viam.com/hoopbot/components/board/fake"
	"go.viam.com/hoopbot/components/input/remote"
	"go.viam.com/hoopbot/components/motor"
	motorfake "go.viam.com/hoopbot/components/motor/fake"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/utils/mailbox"
)

type recordingShooter struct {
	mu     sync.Mutex
	speeds []float64
}

func (s *recordingShooter) PreSpeed(ctx context.Context, speed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speeds = append(s.speeds, speed)
	return nil
}

func (s *recordingShooter) Speeds() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.speeds...)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.ClampSettle = 5 * time.Millisecond
	cfg.HitSettle = time.Millisecond
	cfg.HitPulse = 2 * time.Millisecond
	cfg.DepartTimeout = 50 * time.Millisecond
	cfg.ReboundDelay = time.Millisecond
	cfg.ReboundTimeout = 100 * time.Millisecond
	cfg.ProximityTimeout = 50 * time.Millisecond
	cfg.DropTimeout = 50 * time.Millisecond
	cfg.HandoffSettle = 5 * time.Millisecond
	return cfg
}

type harness struct {
	dribble *Dribble
	board   *fake.Board
	shooter *recordingShooter
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T, cfg Config, catchMotor motor.CurrentMotor) *harness {
	t.Helper()
	logger, logs := logging.NewObservedTestLogger(t)
	b := fake.NewBoard()
	h := &harness{board: b, shooter: &recordingShooter{}, logs: logs}

	var err error
	h.dribble, err = New(context.Background(), Deps{
		Clamp: b.GPIOPinByName("clamp"),
		Top:   b.GPIOPinByName("top"),
		Push:  b.GPIOPinByName("push"),
		Presence: [3]board.Sensor{
			b.Sensor("npn1", true),
			b.Sensor("npn2", true),
			b.Sensor("npn3", true),
		},
		ProximityOut: b.Sensor("prox_out", true),
		ProximityIn:  b.Sensor("prox_in", true),
		CatchMotor:   catchMotor,
		Shooter:      h.shooter,
		Clock:        clock.New(),
		Logger:       logger,
	}, cfg)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, h.dribble.Close(context.Background()), test.ShouldBeNil)
	})
	return h
}

func (h *harness) pin(name string) *fake.GPIOPin {
	return h.board.GPIOPinByName(name)
}

func TestRestPosition(t *testing.T) {
	h := newHarness(t, fastConfig(), nil)
	test.That(t, h.pin("push").History(), test.ShouldResemble, []bool{false})
	test.That(t, h.pin("clamp").History(), test.ShouldResemble, []bool{false})
	test.That(t, h.dribble.CatchState(), test.ShouldEqual, ToShoot)
	test.That(t, h.dribble.State(), test.ShouldEqual, Idle)
}

func TestNewMissingPins(t *testing.T) {
	_, err := New(context.Background(), Deps{Logger: logging.NewTestLogger(t)}, DefaultConfig())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "pins are required")
}

func TestWholeProcessNoBall(t *testing.T) {
	cfg := fastConfig()
	h := newHarness(t, cfg, nil)

	start := time.Now()
	h.dribble.Send(WholeProcess)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.dribble.StatusMailbox().Len(), test.ShouldEqual, 1)
	})
	elapsed := time.Since(start)
	test.That(t, elapsed, test.ShouldBeGreaterThanOrEqualTo, cfg.ReboundTimeout)
	test.That(t, elapsed, test.ShouldBeLessThan, cfg.ReboundTimeout+cfg.DepartTimeout+time.Second)

	msg, ok := h.dribble.StatusMailbox().TryReceive()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, msg.Value, test.ShouldEqual, Unsuccessful)
	test.That(t, h.logs.FilterMessage("ball did not come back").Len(), test.ShouldEqual, 1)
	test.That(t, h.logs.FilterMessage("ball did not leave the clamp").Len(), test.ShouldEqual, 0)

	test.That(t, h.pin("clamp").History(), test.ShouldResemble, []bool{false, true, false})
	test.That(t, h.pin("top").History(), test.ShouldResemble, []bool{true, false})
	test.That(t, h.pin("push").History(), test.ShouldResemble, []bool{false, true})
}

func TestWholeProcessStuckSensor(t *testing.T) {
	h := newHarness(t, fastConfig(), nil)
	h.pin("npn1").SetLevel(true)

	h.dribble.Send(WholeProcess)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.dribble.StatusMailbox().Len(), test.ShouldEqual, 1)
	})
	msg, ok := h.dribble.StatusMailbox().TryReceive()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, msg.Value, test.ShouldEqual, Successful)
	test.That(t, h.logs.FilterMessage("ball did not leave the clamp").Len(), test.ShouldEqual, 1)
}

func TestPartProcess(t *testing.T) {
	h := newHarness(t, fastConfig(), nil)
	h.pin("prox_out").SetLevel(true)

	h.dribble.Send(PartProcess)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.shooter.Speeds(), test.ShouldResemble, []float64{16000})
	})
	test.That(t, h.dribble.CatchState(), test.ShouldEqual, ToShoot)
	// rest, open, close after the drop, close again inside push in
	test.That(t, h.pin("clamp").History(), test.ShouldResemble, []bool{false, true, false, false})
	test.That(t, h.pin("push").History(), test.ShouldResemble, []bool{false, true, false})
	test.That(t, h.logs.FilterMessage("catch drawer did not reach the catch position").Len(), test.ShouldEqual, 0)
}

func TestHandoffDrawerTimeout(t *testing.T) {
	h := newHarness(t, fastConfig(), nil)

	h.dribble.Send(HandoffBall)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.logs.FilterMessage("catch drawer did not reach the catch position").Len(), test.ShouldEqual, 1)
		test.That(tb, h.pin("push").History(), test.ShouldHaveLength, 3)
	})
	test.That(t, h.shooter.Speeds(), test.ShouldHaveLength, 0)
}

func TestGetStatus(t *testing.T) {
	h := newHarness(t, fastConfig(), nil)

	h.dribble.Send(GetStatus)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.dribble.StatusMailbox().Len(), test.ShouldEqual, 1)
	})
	msg, _ := h.dribble.StatusMailbox().TryReceive()
	test.That(t, msg.Value, test.ShouldEqual, ClampOpened)

	h.pin("npn1").SetLevel(true)
	h.dribble.Send(GetStatus)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.dribble.StatusMailbox().Len(), test.ShouldEqual, 1)
	})
	msg, _ = h.dribble.StatusMailbox().TryReceive()
	test.That(t, msg.Value, test.ShouldEqual, HaveBall)
}

func TestStaleEvent(t *testing.T) {
	h := newHarness(t, fastConfig(), nil)
	h.dribble.Events().ResetAndSendMessage(mailbox.Message[Event]{
		Time:  time.Now().Add(-3 * time.Second),
		Value: OpenClamp,
	})
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.logs.FilterMessage("dropping stale message").Len(), test.ShouldEqual, 1)
	})
	test.That(t, h.pin("clamp").History(), test.ShouldResemble, []bool{false})
}

func TestKeys(t *testing.T) {
	h := newHarness(t, fastConfig(), nil)
	logger, logs := logging.NewObservedTestLogger(t)
	r := remote.NewRouter(logger)
	h.dribble.RegisterKeys(r)
	test.That(t, logs.FilterMessage("ignoring handler for invalid key").Len(), test.ShouldEqual, 0)
	ctx := context.Background()

	r.Feed(ctx, remote.Frame{Key: KeyMoveToCatch})
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.dribble.CatchState(), test.ShouldEqual, ToCatch)
	})

	r.Feed(ctx, remote.Frame{Key: KeyMoveToShoot})
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.dribble.CatchState(), test.ShouldEqual, ToShoot)
		test.That(tb, h.shooter.Speeds(), test.ShouldResemble, []float64{16000})
	})

	r.Feed(ctx, remote.Frame{Key: KeyClampToggle})
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.pin("clamp").High(), test.ShouldBeTrue)
	})
	r.Feed(ctx, remote.Frame{})
	r.Feed(ctx, remote.Frame{Key: KeyClampToggle})
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.pin("clamp").High(), test.ShouldBeFalse)
	})
}

func TestCatchStep(t *testing.T) {
	h := newHarness(t, fastConfig(), nil)
	m := &motorfake.Motor{}
	d := h.dribble
	d.deps.CatchMotor = m
	ctx := context.Background()

	d.catchStep(ctx)
	test.That(t, d.catchTarget, test.ShouldEqual, -5000.0)
	test.That(t, m.Current(), test.ShouldEqual, int16(-16384))

	h.pin("prox_in").SetLevel(true)
	m.SetFeedback(motor.Feedback{RotorDegree: 100})
	d.catchStep(ctx)
	test.That(t, d.latch, test.ShouldEqual, 100.0)
	test.That(t, d.catchTarget, test.ShouldEqual, -5000.0)

	// p = 20*-10, i = 0.001*-10, d = 11*-10
	m.SetFeedback(motor.Feedback{RotorDegree: 110})
	d.catchStep(ctx)
	test.That(t, d.catchTarget, test.ShouldAlmostEqual, -310.01)

	h.pin("prox_in").SetLevel(false)
	d.catchStep(ctx)
	test.That(t, d.latch, test.ShouldEqual, 0.0)
	test.That(t, d.catchTarget, test.ShouldEqual, -5000.0)

	d.setCatchState(ToCatch)
	d.catchStep(ctx)
	test.That(t, d.catchTarget, test.ShouldEqual, 5000.0)
	test.That(t, m.Commands(), test.ShouldEqual, 5)
}

func TestConfigValidate(t *testing.T) {
	test.That(t, DefaultConfig().Validate("dribble"), test.ShouldBeNil)
	cfg := DefaultConfig()
	cfg.CatchSpeed = 0
	cfg.PollInterval = 0
	err := cfg.Validate("dribble")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "catch_speed")
	test.That(t, err.Error(), test.ShouldContainSubstring, "poll_interval")
}
