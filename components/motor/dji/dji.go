// Package dji drives a DJI M2006/M3508 style motor through its C610/C620 controller over CAN.
//
// The controller takes current setpoints for four motors in one frame (0x200 for IDs 1-4, 0x1FF
// for IDs 5-8) and reports each motor on 0x200+ID. This adapter owns the whole command frame, so
// only one adapter may run per bus group.
package dji

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-daq/canbus"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"golang.org/x/time/rate"

	"go.viam.com/hoopbot/components/motor"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/utils"
)

const (
	groupLowID  = 0x200
	groupHighID = 0x1FF
	feedbackID  = 0x200

	encoderResolution = 8192
)

// Config describes where the motor is.
type Config struct {
	Interface string `mapstructure:"interface" json:"interface"`
	ID        int    `mapstructure:"id" json:"id"`
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate(path string) error {
	if cfg.Interface == "" {
		return errors.Errorf("%s: interface is required", path)
	}
	if cfg.ID < 1 || cfg.ID > 8 {
		return errors.Errorf("%s: id must be 1-8, got %d", path, cfg.ID)
	}
	return nil
}

// Bus is the part of a CAN socket the adapter uses. *canbus.Socket satisfies it.
type Bus interface {
	Send(frame canbus.Frame) (int, error)
	Recv() (canbus.Frame, error)
	Close() error
}

// Motor is a DJI motor on a CAN bus.
type Motor struct {
	bus    Bus
	id     int
	logger logging.Logger

	mu       sync.Mutex
	feedback motor.Feedback
	seen     bool
	offset   int
	lastECD  int
	turns    int

	closed  atomic.Bool
	warn    *rate.Sometimes
	workers utils.StoppableWorkers
}

var _ motor.CurrentMotor = (*Motor)(nil)

// Open binds a SocketCAN socket to cfg.Interface and starts reading feedback.
func Open(cfg Config, logger logging.Logger) (*Motor, error) {
	if err := cfg.Validate("motor"); err != nil {
		return nil, err
	}
	sock, err := canbus.New()
	if err != nil {
		return nil, errors.Wrap(err, "creating can socket")
	}
	if err := sock.Bind(cfg.Interface); err != nil {
		goutils.UncheckedError(sock.Close())
		return nil, errors.Wrapf(err, "binding can socket to %s", cfg.Interface)
	}
	return New(sock, cfg.ID, logger), nil
}

// New starts reading feedback for motor id from bus. Close closes the bus.
func New(bus Bus, id int, logger logging.Logger) *Motor {
	m := &Motor{
		bus:    bus,
		id:     id,
		logger: logger,
		warn:   &rate.Sometimes{Interval: time.Second},
	}
	m.workers = utils.NewStoppableWorkers(m.receiveLoop)
	return m
}

func (m *Motor) receiveLoop(ctx context.Context) {
	for {
		frame, err := m.bus.Recv()
		if m.closed.Load() || ctx.Err() != nil {
			return
		}
		if err != nil {
			m.warn.Do(func() {
				m.logger.Warnw("can receive failed", "error", err)
			})
			if !goutils.SelectContextOrWait(ctx, 10*time.Millisecond) {
				return
			}
			continue
		}
		m.handleFrame(frame)
	}
}

func (m *Motor) handleFrame(frame canbus.Frame) {
	if frame.ID != uint32(feedbackID+m.id) || len(frame.Data) < 6 {
		return
	}
	ecd := int(binary.BigEndian.Uint16(frame.Data[0:2]))
	rpm := int16(binary.BigEndian.Uint16(frame.Data[2:4]))
	current := int16(binary.BigEndian.Uint16(frame.Data[4:6]))

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.seen {
		m.seen = true
		m.offset = ecd
		m.lastECD = ecd
	}
	switch delta := ecd - m.lastECD; {
	case delta > encoderResolution/2:
		m.turns--
	case delta < -encoderResolution/2:
		m.turns++
	}
	m.lastECD = ecd
	total := m.turns*encoderResolution + ecd - m.offset
	m.feedback = motor.Feedback{
		RotorDegree: float64(total) * 360 / encoderResolution,
		RPM:         float64(rpm),
		Current:     current,
	}
}

// CurrentFrame builds the command frame carrying current for motor id. The other three slots
// in the group are zero.
func CurrentFrame(id int, current int16) canbus.Frame {
	frameID := uint32(groupLowID)
	if id > 4 {
		frameID = groupHighID
	}
	data := make([]byte, 8)
	slot := (id - 1) % 4
	binary.BigEndian.PutUint16(data[2*slot:], uint16(current))
	return canbus.Frame{ID: frameID, Data: data, Kind: canbus.SFF}
}

// SetCurrent sends the current setpoint.
func (m *Motor) SetCurrent(ctx context.Context, current int16) error {
	if _, err := m.bus.Send(CurrentFrame(m.id, current)); err != nil {
		return errors.Wrapf(err, "sending current to motor %d", m.id)
	}
	return nil
}

// Feedback returns the latest report.
func (m *Motor) Feedback() motor.Feedback {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feedback
}

// Close stops the receiver and closes the bus.
func (m *Motor) Close() error {
	m.closed.Store(true)
	err := m.bus.Close()
	m.workers.Stop()
	return err
}
