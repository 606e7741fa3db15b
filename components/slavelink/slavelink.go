// Package slavelink publishes the chassis and flywheel setpoints to the slave board that drives
// the wheels and the friction belt.
//
// The link keeps one packed State and writes it as a protocol frame on a fixed period. It is both
// the chassis drivetrain sink and the shooter flywheel sink, so those controllers never touch the
// UART themselves.
package slavelink

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"go.viam.com/hoopbot/components/base"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/pose"
	"go.viam.com/hoopbot/protocol"
	"go.viam.com/hoopbot/utils"
)

// DefaultPeriod is how often the state is published.
const DefaultPeriod = 2 * time.Millisecond

// StateSize is the packed size of State.
const StateSize = 22

// State is everything the slave board needs, in its wire order.
type State struct {
	VX            float32
	VY            float32
	W             float32
	WorldYaw      float32
	Halt          bool
	FrictionSpeed float32
	ShootFlag     uint8
}

// MarshalBinary packs the state little-endian with no padding.
func (s State) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(StateSize)
	if err := binary.Write(&buf, binary.LittleEndian, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalState decodes a packed state.
func UnmarshalState(b []byte) (State, error) {
	var s State
	if len(b) != StateSize {
		return s, errors.Errorf("slave state is %d bytes, want %d", len(b), StateSize)
	}
	err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &s)
	return s, err
}

// Link publishes State to the slave board.
type Link struct {
	w      *protocol.Writer
	yaw    pose.Reader
	logger logging.Logger

	mu         sync.Mutex
	state      State
	worldFrame atomic.Bool

	warn    rate.Sometimes
	workers utils.StoppableWorkers
}

var _ base.Drivetrain = (*Link)(nil)

// New starts publishing to w every period. The world yaw is read from yaw while the world frame
// is on. The link starts halted with the world frame on.
func New(w io.Writer, yaw pose.Reader, clk clock.Clock, period time.Duration, logger logging.Logger) *Link {
	l := &Link{
		w:      protocol.NewWriter(w),
		yaw:    yaw,
		logger: logger,
		state:  State{Halt: true},
		warn:   rate.Sometimes{Interval: time.Second},
	}
	l.worldFrame.Store(true)
	l.workers = utils.NewStoppableWorkers()
	l.workers.AddPeriodic(clk, period, l.publish)
	return l
}

// SetVelocity stores the planar velocity.
func (l *Link) SetVelocity(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.VX = float32(linear.X)
	l.state.VY = float32(linear.Y)
	l.state.W = float32(angular.Z)
	return nil
}

// SetHalt stores the halt flag.
func (l *Link) SetHalt(ctx context.Context, halt bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Halt = halt
	return nil
}

// SetSpeed stores the friction belt speed.
func (l *Link) SetSpeed(ctx context.Context, speed float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.FrictionSpeed = float32(speed)
	return nil
}

// SetFlag stores the shoot flag.
func (l *Link) SetFlag(ctx context.Context, flag uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.ShootFlag = flag
	return nil
}

// SetWorldFrame selects whether velocities are world frame (the slave board rotates them by
// the published yaw) or chassis frame (yaw published as 0).
func (l *Link) SetWorldFrame(on bool) {
	l.worldFrame.Store(on)
}

// State returns a copy of the state as it would be published now.
func (l *Link) State() State {
	l.mu.Lock()
	s := l.state
	l.mu.Unlock()
	if l.worldFrame.Load() {
		s.WorldYaw = float32(l.yaw.Get().Yaw)
	}
	return s
}

func (l *Link) publish(ctx context.Context) {
	payload, err := l.State().MarshalBinary()
	if err == nil {
		err = l.w.WriteFrame(protocol.Frame{ID: protocol.IDToSlave, Type: protocol.TypeCustom, Payload: payload})
	}
	if err != nil {
		l.warn.Do(func() {
			l.logger.Warnw("publishing to slave board failed", "error", err)
		})
	}
}

// Close stops publishing.
func (l *Link) Close() error {
	l.workers.Stop()
	return nil
}
