package telemetry

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/hoopbot/logging"
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

func TestPositionMarshal(t *testing.T) {
	b, err := Position{X: 1234.9, Y: -40000, Yaw: 89.5, Point: 5, Halted: true, WorldFrame: true}.MarshalBinary()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b, test.ShouldHaveLength, 9)
	test.That(t, ReportType(b[0]), test.ShouldEqual, ReportPosition)
	test.That(t, int16(binary.LittleEndian.Uint16(b[1:3])), test.ShouldEqual, 1234)
	test.That(t, int16(binary.LittleEndian.Uint16(b[3:5])), test.ShouldEqual, math.MinInt16)
	test.That(t, int16(binary.LittleEndian.Uint16(b[5:7])), test.ShouldEqual, 89)
	test.That(t, b[7], test.ShouldEqual, 5)
	test.That(t, b[8], test.ShouldEqual, byte(0b101))

	b, err = Position{AimLocked: true}.MarshalBinary()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b[8], test.ShouldEqual, byte(0b010))
}

func TestShootMarshal(t *testing.T) {
	for _, tc := range []struct {
		flag   uint8
		status byte
	}{
		{0, 0b00},
		{1, 0b11},
		{2, 0b01},
	} {
		b, err := Shoot{Speed: 16000, Flag: tc.flag}.MarshalBinary()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, b, test.ShouldHaveLength, 6)
		test.That(t, ReportType(b[0]), test.ShouldEqual, ReportShoot)
		test.That(t, math.Float32frombits(binary.LittleEndian.Uint32(b[1:5])), test.ShouldEqual, float32(16000))
		test.That(t, b[5], test.ShouldEqual, tc.status)
	}
}

func TestReporter(t *testing.T) {
	logger := logging.NewTestLogger(t)
	requests, err := NewRequests(clock.New(), logger)
	test.That(t, err, test.ShouldBeNil)

	var out syncBuffer
	r := NewReporter(requests, &out, Sources{
		Position: func() Position { return Position{X: 10, Y: 20, Yaw: 30, Point: 2} },
		Shoot:    func() Shoot { return Shoot{Speed: 100, Flag: 2} },
	}, logger)
	defer r.Close()

	Request(requests, ReportPosition)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, len(out.Bytes()), test.ShouldBeGreaterThan, 0)
	})
	Request(requests, ReportShoot)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, len(out.Bytes()), test.ShouldBeGreaterThan, 15)
	})

	dec := protocol.NewDecoder(bytes.NewReader(out.Bytes()))
	f, err := dec.Next()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.ID, test.ShouldEqual, protocol.IDReport)
	test.That(t, f.Type, test.ShouldEqual, protocol.TypeCustom)
	test.That(t, f.Payload, test.ShouldHaveLength, 9)
	f, err = dec.Next()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.Payload, test.ShouldHaveLength, 6)

	Request(nil, ReportShoot)
}

func TestReporterUnknownType(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	requests, err := NewRequests(clock.New(), logger)
	test.That(t, err, test.ShouldBeNil)

	var out syncBuffer
	r := NewReporter(requests, &out, Sources{}, logger)
	defer r.Close()

	test.That(t, r.Report(ReportPosition), test.ShouldBeNil)
	test.That(t, out.Bytes(), test.ShouldHaveLength, 0)

	Request(requests, ReportType(9))
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, logs.FilterMessage("sending report failed").Len(), test.ShouldEqual, 1)
	})
}
