package pose

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/protocol"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry(nil, LocationNUC, LocationOdometry)

	src, err := reg.Source(LocationNUC)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, src.Type(), test.ShouldEqual, LocationNUC)
	test.That(t, src.UpdatedAt().IsZero(), test.ShouldBeTrue)

	src.Set(Pose{X: 1, Y: 2, Yaw: 3})
	p, ok := reg.Get(LocationNUC)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p, test.ShouldResemble, Pose{X: 1, Y: 2, Yaw: 3})
	test.That(t, src.UpdatedAt().IsZero(), test.ShouldBeFalse)

	_, err = reg.Source(LocationAction)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "action")
	_, ok = reg.Get(LocationAction)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestSourceStampsWithClock(t *testing.T) {
	clk := clock.NewMock()
	reg := NewRegistry(clk, LocationNUC)
	src, err := reg.Source(LocationNUC)
	test.That(t, err, test.ShouldBeNil)

	clk.Add(3 * time.Second)
	src.Set(Pose{X: 1})
	test.That(t, src.UpdatedAt(), test.ShouldEqual, clk.Now())

	clk.Add(time.Second)
	test.That(t, clk.Since(src.UpdatedAt()), test.ShouldEqual, time.Second)
}

func TestSnapshotsNeverTear(t *testing.T) {
	src := NewSource(LocationNUC, nil)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10000; i++ {
			v := float64(i)
			src.Set(Pose{X: v, Y: v, Yaw: v})
		}
	}()
	for i := 0; i < 10000; i++ {
		p := src.Get()
		test.That(t, p.X, test.ShouldEqual, p.Y)
		test.That(t, p.Y, test.ShouldEqual, p.Yaw)
	}
	wg.Wait()
}

func TestLocationTypeFromString(t *testing.T) {
	lt, err := LocationTypeFromString(" NUC")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lt, test.ShouldEqual, LocationNUC)
	_, err = LocationTypeFromString("gps")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, LocationType(42).String(), test.ShouldEqual, "unknown")
}

func TestDistanceTo(t *testing.T) {
	test.That(t, Pose{X: 3, Y: 0}.DistanceTo(0, 4), test.ShouldEqual, 5)
}

func TestNUCRoundTrip(t *testing.T) {
	p, err := DecodeNUC(EncodeNUC(Pose{X: 1500, Y: -250, Yaw: 90}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.X, test.ShouldAlmostEqual, 1500, 1e-3)
	test.That(t, p.Y, test.ShouldAlmostEqual, -250, 1e-3)
	test.That(t, p.Yaw, test.ShouldAlmostEqual, 90)

	_, err = DecodeNUC([]byte{1, 2, 3})
	test.That(t, err, test.ShouldNotBeNil)

	nan := EncodeNUC(Pose{X: math.NaN()})
	_, err = DecodeNUC(nan)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestParseOdometryLine(t *testing.T) {
	p, err := ParseOdometryLine("1.5, -0.25,45\r")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldResemble, Pose{X: 1500, Y: -250, Yaw: 45})

	_, err = ParseOdometryLine("1,2")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ParseOdometryLine("1,b,3")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "field 1")
}

func TestRunOdometryStream(t *testing.T) {
	logger, observed := logging.NewObservedTestLogger(t)
	src := NewSource(LocationOdometry, nil)
	input := "0.1,0.2,3\ngarbage\n\n2,3,4\n"

	err := RunOdometryStream(context.Background(), strings.NewReader(input), src, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, src.Get(), test.ShouldResemble, Pose{X: 2000, Y: 3000, Yaw: 4})
	test.That(t, observed.FilterMessage("skipping odometry line").Len(), test.ShouldEqual, 1)
}

func TestRunNUCStream(t *testing.T) {
	logger, observed := logging.NewObservedTestLogger(t)
	src := NewSource(LocationNUC, nil)

	var stream []byte
	var err error
	stream, err = protocol.Encode(stream, protocol.Frame{ID: protocol.IDNUC, Payload: EncodeNUC(Pose{X: 1000, Y: 2000, Yaw: 10})})
	test.That(t, err, test.ShouldBeNil)
	stream, err = protocol.Encode(stream, protocol.Frame{ID: protocol.IDRemote, Payload: []byte{1, 2, 3, 4, 5}})
	test.That(t, err, test.ShouldBeNil)
	corrupt, err := protocol.Encode(nil, protocol.Frame{ID: protocol.IDNUC, Payload: EncodeNUC(Pose{X: 9000})})
	test.That(t, err, test.ShouldBeNil)
	corrupt[len(corrupt)-1]++
	stream = append(stream, corrupt...)
	stream, err = protocol.Encode(stream, protocol.Frame{ID: protocol.IDNUC, Payload: []byte{1}})
	test.That(t, err, test.ShouldBeNil)

	frames := 0
	err = RunNUCStream(context.Background(), bytes.NewReader(stream), src, logger, func() { frames++ })
	test.That(t, errors.Is(err, io.EOF), test.ShouldBeTrue)
	test.That(t, frames, test.ShouldEqual, 1)
	p := src.Get()
	test.That(t, p.X, test.ShouldAlmostEqual, 1000, 1e-3)
	test.That(t, p.Y, test.ShouldAlmostEqual, 2000, 1e-3)
	test.That(t, observed.FilterMessage("skipping corrupt nuc frame").Len(), test.ShouldEqual, 1)
	test.That(t, observed.FilterMessage("skipping nuc frame").Len(), test.ShouldEqual, 1)
}
