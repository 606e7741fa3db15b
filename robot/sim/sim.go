// Package sim plays the boards around the controller so the robot can run on a desk: it reads
// the slave board stream, moves a simulated chassis by the commanded velocity and reports the
// resulting pose back the way the vision computer does.
package sim

import (
	"context"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/hoopbot/components/board"
	boardfake "go.viam.com/hoopbot/components/board/fake"
	"go.viam.com/hoopbot/components/input/remote"
	motorfake "go.viam.com/hoopbot/components/motor/fake"
	"go.viam.com/hoopbot/components/slavelink"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/navigation"
	"go.viam.com/hoopbot/pose"
	"go.viam.com/hoopbot/protocol"
	"go.viam.com/hoopbot/robot"
	"go.viam.com/hoopbot/utils"
)

// Config tunes the simulated chassis.
type Config struct {
	// Period is how often the pose is integrated and reported.
	Period time.Duration
	// LinearScale converts a commanded linear velocity unit into mm/s.
	LinearScale float64
	// AngularScale converts a commanded angular velocity unit into deg/s.
	AngularScale float64
	Start        pose.Pose
}

// DefaultConfig returns a chassis that moves 1 mm/s per unit and turns 0.5 deg/s per unit.
func DefaultConfig() Config {
	return Config{
		Period:       10 * time.Millisecond,
		LinearScale:  1,
		AngularScale: 0.5,
	}
}

type link struct {
	robotEnd io.Closer
	simEnd   io.Closer
}

// Sim is a running simulation.
type Sim struct {
	cfg    Config
	clk    clock.Clock
	logger logging.Logger
	board  *boardfake.Board
	motor  *motorfake.Motor

	mu    sync.Mutex
	pose  pose.Pose
	slave slavelink.State

	reports atomic.Int64

	hw      *robot.Hardware
	remote  *protocol.Writer
	nuc     *protocol.Writer
	links   []link
	workers utils.StoppableWorkers
}

// New starts the simulation. Hardware returns the robot side of it.
func New(cfg Config, clk clock.Clock, logger logging.Logger) *Sim {
	if clk == nil {
		clk = clock.New()
	}
	s := &Sim{
		cfg:    cfg,
		clk:    clk,
		logger: logger,
		board:  boardfake.NewBoard(),
		motor:  &motorfake.Motor{},
		pose:   cfg.Start,
		slave:  slavelink.State{Halt: true},
	}

	remoteR, remoteW := io.Pipe()
	nucR, nucW := io.Pipe()
	slaveR, slaveW := io.Pipe()
	telemetryR, telemetryW := io.Pipe()
	s.links = []link{
		{robotEnd: remoteR, simEnd: remoteW},
		{robotEnd: nucR, simEnd: nucW},
		{robotEnd: slaveW, simEnd: slaveR},
		{robotEnd: telemetryW, simEnd: telemetryR},
	}
	s.remote = protocol.NewWriter(remoteW)
	s.nuc = protocol.NewWriter(nucW)

	// the presence switches read untouched until a test says otherwise
	presence := [3]board.Sensor{
		s.board.Sensor("presence1", true),
		s.board.Sensor("presence2", true),
		s.board.Sensor("presence3", true),
	}
	s.hw = &robot.Hardware{
		Remote:       remoteR,
		Telemetry:    telemetryW,
		NUC:          nucR,
		Slave:        slaveW,
		Clamp:        s.board.GPIOPinByName("clamp"),
		Top:          s.board.GPIOPinByName("top"),
		Push:         s.board.GPIOPinByName("push"),
		Presence:     presence,
		ProximityOut: s.board.Sensor("proximity_out", true),
		ProximityIn:  s.board.Sensor("proximity_in", true),
		LED:          s.board.GPIOPinByName("led"),
		CatchMotor:   s.motor,
	}
	for _, l := range s.links {
		s.hw.Closers = append(s.hw.Closers, l.robotEnd)
	}

	s.workers = utils.NewStoppableWorkers(
		func(ctx context.Context) { s.readSlave(ctx, slaveR) },
		func(ctx context.Context) { s.readTelemetry(ctx, telemetryR) },
	)
	s.workers.AddPeriodic(clk, cfg.Period, s.step)
	return s
}

// Hardware returns the robot side of the simulation. The robot owns the returned closers.
func (s *Sim) Hardware() *robot.Hardware {
	return s.hw
}

// Board returns the fake board holding the mechanism lines.
func (s *Sim) Board() *boardfake.Board {
	return s.board
}

// Pose returns the simulated chassis pose.
func (s *Sim) Pose() pose.Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pose
}

// Slave returns the last state received from the robot.
func (s *Sim) Slave() slavelink.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slave
}

// Reports returns how many telemetry frames the robot sent.
func (s *Sim) Reports() int {
	return int(s.reports.Load())
}

// Press sends one remote frame, as the receiver does on every poll.
func (s *Sim) Press(f remote.Frame) error {
	return s.remote.WriteFrame(protocol.Frame{ID: protocol.IDRemote, Type: protocol.TypeUint8, Payload: f.Encode()})
}

func (s *Sim) readSlave(ctx context.Context, r io.Reader) {
	dec := protocol.NewDecoder(r)
	for ctx.Err() == nil {
		f, err := dec.Next()
		if err != nil {
			if errors.Is(err, protocol.ErrCorrupt) {
				continue
			}
			return
		}
		if f.ID != protocol.IDToSlave {
			continue
		}
		state, err := slavelink.UnmarshalState(f.Payload)
		if err != nil {
			s.logger.Debugw("bad slave frame", "error", err)
			continue
		}
		s.mu.Lock()
		s.slave = state
		s.mu.Unlock()
	}
}

func (s *Sim) readTelemetry(ctx context.Context, r io.Reader) {
	dec := protocol.NewDecoder(r)
	for ctx.Err() == nil {
		f, err := dec.Next()
		if err != nil {
			if errors.Is(err, protocol.ErrCorrupt) {
				continue
			}
			return
		}
		if f.ID == protocol.IDReport {
			s.reports.Add(1)
		}
	}
}

// step advances the chassis by one period and reports the new pose.
func (s *Sim) step(ctx context.Context) {
	dt := s.cfg.Period.Seconds()
	s.mu.Lock()
	st := s.slave
	if !st.Halt {
		s.pose = Advance(s.pose, st, dt, s.cfg.LinearScale, s.cfg.AngularScale)
	}
	p := s.pose
	s.mu.Unlock()

	err := s.nuc.WriteFrame(protocol.Frame{ID: protocol.IDNUC, Type: protocol.TypeFloat, Payload: pose.EncodeNUC(p)})
	if err != nil && ctx.Err() == nil {
		s.logger.Debugw("nuc frame not delivered", "error", err)
	}
}

// Advance moves p by the velocity in st for dt seconds. The slave board rotates commanded
// velocities from the world frame into the chassis frame by st.WorldYaw, so the world motion is
// the command rotated by the difference between the chassis yaw and WorldYaw.
func Advance(p pose.Pose, st slavelink.State, dt, linearScale, angularScale float64) pose.Pose {
	theta := (p.Yaw - float64(st.WorldYaw)) * math.Pi / 180
	vx, vy := float64(st.VX)*linearScale, float64(st.VY)*linearScale
	sin, cos := math.Sincos(theta)
	p.X += (vx*cos - vy*sin) * dt
	p.Y += (vx*sin + vy*cos) * dt
	p.Yaw = navigation.AngleTrans(p.Yaw+float64(st.W)*angularScale*dt, 0)
	return p
}

// Close stops the simulation and releases the robot side of every link.
func (s *Sim) Close() error {
	var errs error
	for _, l := range s.links {
		errs = multierr.Append(errs, l.simEnd.Close())
	}
	s.workers.Stop()
	return errs
}
