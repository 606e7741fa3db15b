// Package telemetry sends packed status reports to the operator remote when asked to.
package telemetry

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/protocol"
	"go.viam.com/hoopbot/utils"
	"go.viam.com/hoopbot/utils/mailbox"
)

// ReportType selects which report to send.
type ReportType uint8

// The report types. The values are the first byte of each report on the wire.
const (
	ReportPosition ReportType = iota
	ReportShoot
)

func (rt ReportType) String() string {
	switch rt {
	case ReportPosition:
		return "position"
	case ReportShoot:
		return "shoot"
	}
	return "unknown"
}

// Status bits of the position report.
const (
	bitWorldFrame = 1 << 0
	bitAimLocked  = 1 << 1
	bitHalted     = 1 << 2
)

// Status bits of the shoot report.
const (
	bitEnabled = 1 << 0
	bitPushing = 1 << 1
)

// Position is the chassis half of the telemetry.
type Position struct {
	X, Y, Yaw  float64
	Point      uint8
	Halted     bool
	AimLocked  bool
	WorldFrame bool
}

// Shoot is the shooter half of the telemetry.
type Shoot struct {
	Speed float64
	Flag  uint8
}

type positionWire struct {
	Type   ReportType
	X, Y   int16
	Yaw    int16
	Point  uint8
	Status uint8
}

type shootWire struct {
	Type   ReportType
	Speed  float32
	Status uint8
}

// saturating conversion; the remote display has no use for wrapped coordinates
func toInt16(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// MarshalBinary packs the report as type, x, y, yaw (int16 LE), point and status bits.
func (p Position) MarshalBinary() ([]byte, error) {
	w := positionWire{
		Type:  ReportPosition,
		X:     toInt16(p.X),
		Y:     toInt16(p.Y),
		Yaw:   toInt16(p.Yaw),
		Point: p.Point,
	}
	if p.WorldFrame {
		w.Status |= bitWorldFrame
	}
	if p.AimLocked {
		w.Status |= bitAimLocked
	}
	if p.Halted {
		w.Status |= bitHalted
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalBinary packs the report as type, speed (float32 LE) and status bits.
func (s Shoot) MarshalBinary() ([]byte, error) {
	w := shootWire{Type: ReportShoot, Speed: float32(s.Speed)}
	if s.Flag != 0 {
		w.Status |= bitEnabled
	}
	if s.Flag == 1 {
		w.Status |= bitPushing
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Sources supply the report contents at send time. A nil source makes its report a no-op.
type Sources struct {
	Position func() Position
	Shoot    func() Shoot
}

// NewRequests returns the capacity-1 mailbox controllers post report requests to.
func NewRequests(clk clock.Clock, logger logging.Logger) (*mailbox.Mailbox[ReportType], error) {
	return mailbox.New[ReportType]("telemetry.requests", 1, clk, logger)
}

// Request asks for a report, replacing any request not yet served. A nil mailbox is ignored so
// controllers can run without telemetry.
func Request(requests *mailbox.Mailbox[ReportType], rt ReportType) {
	if requests == nil {
		return
	}
	requests.ResetAndSend(rt)
}

// Reporter serves report requests.
type Reporter struct {
	requests *mailbox.Mailbox[ReportType]
	w        *protocol.Writer
	sources  Sources
	logger   logging.Logger
	workers  utils.StoppableWorkers
}

// NewReporter starts serving requests, writing frames to w.
func NewReporter(requests *mailbox.Mailbox[ReportType], w io.Writer, sources Sources, logger logging.Logger) *Reporter {
	r := &Reporter{
		requests: requests,
		w:        protocol.NewWriter(w),
		sources:  sources,
		logger:   logger,
	}
	r.workers = utils.NewStoppableWorkers(r.run)
	return r
}

func (r *Reporter) run(ctx context.Context) {
	for {
		msg, err := r.requests.Receive(ctx)
		if err != nil {
			return
		}
		if err := r.Report(msg.Value); err != nil {
			r.logger.Errorw("sending report failed", "report", msg.Value, "error", err)
		}
	}
}

// Report builds and writes one report immediately.
func (r *Reporter) Report(rt ReportType) error {
	var (
		payload []byte
		err     error
	)
	switch rt {
	case ReportPosition:
		if r.sources.Position == nil {
			return nil
		}
		payload, err = r.sources.Position().MarshalBinary()
	case ReportShoot:
		if r.sources.Shoot == nil {
			return nil
		}
		payload, err = r.sources.Shoot().MarshalBinary()
	default:
		return errors.Errorf("unknown report type %d", rt)
	}
	if err != nil {
		return err
	}
	return r.w.WriteFrame(protocol.Frame{ID: protocol.IDReport, Type: protocol.TypeCustom, Payload: payload})
}

// Close stops serving requests.
func (r *Reporter) Close() error {
	r.workers.Stop()
	return nil
}
