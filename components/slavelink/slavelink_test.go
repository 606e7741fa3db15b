package slavelink

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/pose"
	"go.viam.com/hoopbot/protocol"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func TestStateRoundTrip(t *testing.T) {
	s := State{VX: 1.5, VY: -2, W: 3, WorldYaw: 90, Halt: true, FrictionSpeed: 16000, ShootFlag: 2}
	b, err := s.MarshalBinary()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b, test.ShouldHaveLength, StateSize)
	test.That(t, b[16], test.ShouldEqual, byte(1))
	test.That(t, b[21], test.ShouldEqual, byte(2))

	got, err := UnmarshalState(b)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, s)

	_, err = UnmarshalState(b[:10])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLinkPublishes(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	out := &syncBuffer{}
	nuc := pose.NewSource(pose.LocationNUC, clk)
	nuc.Set(pose.Pose{Yaw: 45})

	link := New(out, nuc, clk, DefaultPeriod, logging.NewTestLogger(t))
	defer func() {
		test.That(t, link.Close(), test.ShouldBeNil)
	}()

	test.That(t, link.State().Halt, test.ShouldBeTrue)
	test.That(t, link.State().WorldYaw, test.ShouldEqual, 45)

	test.That(t, link.SetHalt(ctx, false), test.ShouldBeNil)
	test.That(t, link.SetVelocity(ctx, r3.Vector{X: 100, Y: -50}, r3.Vector{Z: 7}, nil), test.ShouldBeNil)
	test.That(t, link.SetSpeed(ctx, 16000), test.ShouldBeNil)
	test.That(t, link.SetFlag(ctx, 1), test.ShouldBeNil)

	want := State{VX: 100, VY: -50, W: 7, WorldYaw: 45, FrictionSpeed: 16000, ShootFlag: 1}
	test.That(t, link.State(), test.ShouldResemble, want)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		clk.Add(DefaultPeriod)
		frame, err := protocol.NewDecoder(bytes.NewReader(out.Bytes())).Next()
		test.That(tb, err, test.ShouldBeNil)
		test.That(tb, frame.ID, test.ShouldEqual, protocol.IDToSlave)
		got, err := UnmarshalState(frame.Payload)
		test.That(tb, err, test.ShouldBeNil)
		test.That(tb, got, test.ShouldResemble, want)
	})

	link.SetWorldFrame(false)
	test.That(t, link.State().WorldYaw, test.ShouldEqual, 0)
}
