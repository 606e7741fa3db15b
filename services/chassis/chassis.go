// Package chassis implements the chassis controller: a manual joystick task, an automatic
// point-following task and a dispatcher that switches between them on command.
//
// Commands are posted to a capacity-1 mailbox, so only the latest intent survives. The
// dispatcher drops commands older than the staleness threshold. The two driving tasks run behind
// gates and the dispatcher always suspends one before resuming the other, so they never drive
// the chassis at the same time.
package chassis

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"go.viam.com/hoopbot/components/base"
	"go.viam.com/hoopbot/components/input/remote"
	"go.viam.com/hoopbot/control"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/navigation"
	"go.viam.com/hoopbot/pose"
	"go.viam.com/hoopbot/services/telemetry"
	"go.viam.com/hoopbot/utils"
	"go.viam.com/hoopbot/utils/mailbox"
)

// Command is a chassis mode command.
type Command int

// The chassis commands.
const (
	RunPoint Command = iota
	SetManual
	SetHalt
	SetUnhalt
	SetNoTask
	RunNearestRing
	AimBasket
	AimLeft
	AimRight
	ResetAim
)

func (c Command) String() string {
	switch c {
	case RunPoint:
		return "run_point"
	case SetManual:
		return "set_manual"
	case SetHalt:
		return "set_halt"
	case SetUnhalt:
		return "set_unhalt"
	case SetNoTask:
		return "set_no_task"
	case RunNearestRing:
		return "run_nearest_ring"
	case AimBasket:
		return "aim_basket"
	case AimLeft:
		return "aim_left"
	case AimRight:
		return "aim_right"
	case ResetAim:
		return "reset_aim"
	}
	return "unknown"
}

// Status is published by the auto task.
type Status int

// PointArrived means the active point was reached or abandoned.
const PointArrived Status = iota

// Mode is the driving task that currently owns the chassis.
type Mode int

// The chassis modes.
const (
	ModeManual Mode = iota
	ModeAuto
	ModeNoTask
)

func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeAuto:
		return "auto"
	case ModeNoTask:
		return "no_task"
	}
	return "unknown"
}

// State is a snapshot of the controller's flags.
type State struct {
	Halted     bool
	AimLocked  bool
	WorldFrame bool
	PointIndex uint8
	SpinScale  float64
	Mode       Mode
}

// Joystick supplies the latest stick positions.
type Joystick interface {
	Axes() remote.Axes
}

// WorldFramer is implemented by drivetrains that can interpret velocities in the world frame.
type WorldFramer interface {
	SetWorldFrame(on bool)
}

// Deps are the collaborators of the controller.
type Deps struct {
	Engine     *navigation.Engine
	Ring       *navigation.Ring
	Pose       pose.Reader
	Drivetrain base.Drivetrain
	Joystick   Joystick
	// Reports may be nil.
	Reports *mailbox.Mailbox[telemetry.ReportType]
	Clock   clock.Clock
	Logger  logging.Logger
}

type aimTarget struct {
	x, y float64
}

// Chassis is the chassis controller.
type Chassis struct {
	engine   *navigation.Engine
	ring     *navigation.Ring
	pose     pose.Reader
	sink     base.Drivetrain
	joystick Joystick
	reports  *mailbox.Mailbox[telemetry.ReportType]
	clk      clock.Clock
	cfg      Config
	logger   logging.Logger

	ctrl   *mailbox.Mailbox[Command]
	status *mailbox.Mailbox[Status]

	manual *gate
	auto   *gate

	// owned by the manual task
	orientation *control.PID
	// owned by the auto task
	arrivedCycles int

	mu        sync.Mutex
	state     State
	aim       aimTarget
	catalogue []TargetPoint

	warn    rate.Sometimes
	workers utils.StoppableWorkers
}

// New builds the controller in its initial state (halted, world frame on, manual task running)
// and starts its goroutines.
func New(ctx context.Context, deps Deps, cfg Config) (*Chassis, error) {
	if err := cfg.Validate("chassis"); err != nil {
		return nil, err
	}
	if deps.Engine == nil || deps.Ring == nil || deps.Pose == nil || deps.Drivetrain == nil || deps.Joystick == nil {
		return nil, errors.New("chassis: engine, ring, pose, drivetrain and joystick are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	ctrl, err := mailbox.New[Command]("chassis.ctrl", 1, deps.Clock, deps.Logger)
	if err != nil {
		return nil, err
	}
	status, err := mailbox.New[Status]("chassis.status", 1, deps.Clock, deps.Logger)
	if err != nil {
		return nil, err
	}

	c := &Chassis{
		engine:      deps.Engine,
		ring:        deps.Ring,
		pose:        deps.Pose,
		sink:        deps.Drivetrain,
		joystick:    deps.Joystick,
		reports:     deps.Reports,
		clk:         deps.Clock,
		cfg:         cfg,
		logger:      deps.Logger,
		ctrl:        ctrl,
		status:      status,
		manual:      newGate(true),
		auto:        newGate(false),
		orientation: control.NewPID(cfg.Orientation),
		state: State{
			Halted:     true,
			WorldFrame: true,
			SpinScale:  1,
			Mode:       ModeManual,
		},
		catalogue: append([]TargetPoint(nil), cfg.Points...),
		warn:      rate.Sometimes{Interval: time.Second},
	}

	if wf, ok := c.sink.(WorldFramer); ok {
		wf.SetWorldFrame(true)
	}
	if err := c.sink.SetHalt(ctx, true); err != nil {
		return nil, errors.Wrap(err, "halting drivetrain")
	}
	if err := base.Stop(ctx, c.sink); err != nil {
		return nil, errors.Wrap(err, "stopping drivetrain")
	}

	c.workers = utils.NewStoppableWorkers(
		c.dispatch,
		func(ctx context.Context) { c.runGated(ctx, c.manual, c.manualStep) },
		func(ctx context.Context) { c.runGated(ctx, c.auto, c.autoStep) },
	)
	return c, nil
}

// Send posts cmd, replacing any command not yet dispatched.
func (c *Chassis) Send(cmd Command) {
	c.ctrl.ResetAndSend(cmd)
}

// Commands returns the command mailbox.
func (c *Chassis) Commands() *mailbox.Mailbox[Command] {
	return c.ctrl
}

// StatusMailbox returns the mailbox PointArrived is published to.
func (c *Chassis) StatusMailbox() *mailbox.Mailbox[Status] {
	return c.status
}

// State returns a snapshot of the controller's flags.
func (c *Chassis) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Point returns catalogue entry i.
func (c *Chassis) Point(i int) (TargetPoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.catalogue) {
		return TargetPoint{}, false
	}
	return c.catalogue[i], true
}

// SetPointIndex selects the point the auto task drives to.
func (c *Chassis) SetPointIndex(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.catalogue) {
		return errors.Errorf("point index %d out of range [0, %d)", i, len(c.catalogue))
	}
	c.state.PointIndex = uint8(i)
	return nil
}

// Position returns the position report contents.
func (c *Chassis) Position() telemetry.Position {
	p := c.pose.Get()
	s := c.State()
	return telemetry.Position{
		X:          p.X,
		Y:          p.Y,
		Yaw:        p.Yaw,
		Point:      s.PointIndex,
		Halted:     s.Halted,
		AimLocked:  s.AimLocked,
		WorldFrame: s.WorldFrame,
	}
}

// OverwriteRingPoint projects the ring point for ring table entry index from the current pose,
// stepping the index down while the projection leaves the field, and stores it in the
// catalogue. It returns the index actually used.
func (c *Chassis) OverwriteRingPoint(index int) int {
	p := c.pose.Get()
	resolved, target, inBounds := c.ring.Resolve(p, index)
	if !inBounds {
		c.logger.Warnw("no ring point inside the field, using the smallest ring",
			"requested", index, "x", target.X, "y", target.Y)
	}
	c.mu.Lock()
	c.catalogue[c.cfg.RingPoint] = TargetPoint{
		X:    target.X,
		Y:    target.Y,
		Yaw:  target.Yaw,
		Type: navigation.PointRing,
	}
	c.mu.Unlock()
	return resolved
}

func (c *Chassis) requestReport() {
	telemetry.Request(c.reports, telemetry.ReportPosition)
}

// Close stops the controller's goroutines. The drivetrain is left as last commanded.
func (c *Chassis) Close(ctx context.Context) error {
	c.workers.Stop()
	return nil
}
