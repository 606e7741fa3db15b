// Package dribble implements the ball handling controller: the clamp, hit and push cylinders,
// the sensor-gated dribble and handoff sequences, and the catch drawer motor.
package dribble

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"go.viam.com/hoopbot/components/board"
	"go.viam.com/hoopbot/components/motor"
	"go.viam.com/hoopbot/control"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/utils"
	"go.viam.com/hoopbot/utils/mailbox"
)

// Event is a dribble command.
type Event int

// The dribble events.
const (
	WholeProcess Event = iota
	PartProcess
	OpenClamp
	CloseClamp
	HitBall
	PushOut
	PushIn
	GetStatus
	MoveToCatch
	MoveToShoot
	HandoffBall
)

var eventNames = []string{
	"whole_process", "part_process", "open_clamp", "close_clamp", "hit_ball", "push_out",
	"push_in", "get_status", "move_to_catch", "move_to_shoot", "handoff_ball",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[e]
}

// Status is a sequence outcome or a clamp reading.
type Status int

// The dribble statuses.
const (
	Successful Status = iota
	Unsuccessful
	HaveBall
	ClampOpened
)

func (s Status) String() string {
	switch s {
	case Successful:
		return "successful"
	case Unsuccessful:
		return "unsuccessful"
	case HaveBall:
		return "have_ball"
	case ClampOpened:
		return "clamp_opened"
	}
	return "unknown"
}

// State is what the mechanism is doing.
type State int32

// The mechanism states.
const (
	Idle State = iota
	Opening
	Closing
	Hitting
	Pushing
	CatchingToShoot
	CatchingToCatch
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Opening:
		return "opening"
	case Closing:
		return "closing"
	case Hitting:
		return "hitting"
	case Pushing:
		return "pushing"
	case CatchingToShoot:
		return "catching_to_shoot"
	case CatchingToCatch:
		return "catching_to_catch"
	}
	return "unknown"
}

// CatchState is where the catch drawer is driven to.
type CatchState int32

// The catch drawer targets.
const (
	ToShoot CatchState = iota
	ToCatch
)

func (c CatchState) String() string {
	if c == ToCatch {
		return "to_catch"
	}
	return "to_shoot"
}

// Config configures the dribble controller.
type Config struct {
	Staleness    time.Duration `mapstructure:"staleness" json:"staleness"`
	ReceiveWait  time.Duration `mapstructure:"receive_wait" json:"receive_wait"`
	PollInterval time.Duration `mapstructure:"poll_interval" json:"poll_interval"`

	ClampSettle      time.Duration `mapstructure:"clamp_settle" json:"clamp_settle"`
	HitSettle        time.Duration `mapstructure:"hit_settle" json:"hit_settle"`
	HitPulse         time.Duration `mapstructure:"hit_pulse" json:"hit_pulse"`
	DepartTimeout    time.Duration `mapstructure:"depart_timeout" json:"depart_timeout"`
	ReboundDelay     time.Duration `mapstructure:"rebound_delay" json:"rebound_delay"`
	ReboundTimeout   time.Duration `mapstructure:"rebound_timeout" json:"rebound_timeout"`
	ProximityTimeout time.Duration `mapstructure:"proximity_timeout" json:"proximity_timeout"`
	DropTimeout      time.Duration `mapstructure:"drop_timeout" json:"drop_timeout"`
	HandoffSettle    time.Duration `mapstructure:"handoff_settle" json:"handoff_settle"`

	// HandoffSpeed is the flywheel speed requested once a ball is on its way to the shooter.
	HandoffSpeed float64 `mapstructure:"handoff_speed" json:"handoff_speed"`

	CatchPeriod time.Duration     `mapstructure:"catch_period" json:"catch_period"`
	CatchSpeed  float64           `mapstructure:"catch_speed" json:"catch_speed"`
	SpeedPID    control.PIDConfig `mapstructure:"speed_pid" json:"speed_pid"`
	AnglePID    control.PIDConfig `mapstructure:"angle_pid" json:"angle_pid"`
}

// DefaultConfig returns the timings the robot competed with.
func DefaultConfig() Config {
	return Config{
		Staleness:        2 * time.Second,
		ReceiveWait:      5 * time.Second,
		PollInterval:     time.Millisecond,
		ClampSettle:      500 * time.Millisecond,
		HitSettle:        35 * time.Millisecond,
		HitPulse:         100 * time.Millisecond,
		DepartTimeout:    2 * time.Second,
		ReboundDelay:     30 * time.Millisecond,
		ReboundTimeout:   3 * time.Second,
		ProximityTimeout: 3 * time.Second,
		DropTimeout:      2 * time.Second,
		HandoffSettle:    500 * time.Millisecond,
		HandoffSpeed:     16000,
		CatchPeriod:      10 * time.Millisecond,
		CatchSpeed:       5000,
		SpeedPID:         control.NewPIDConfig(16384, 5000, 10, 16384, control.PositionPID, 15, 0.01, 1),
		AnglePID:         control.NewPIDConfig(8192, 8192, 10, 16384, control.PositionPID, 20, 0.001, 11),
	}
}

// Validate returns every problem with the config combined.
func (cfg Config) Validate(path string) error {
	var errs error
	for name, d := range map[string]time.Duration{
		"staleness":     cfg.Staleness,
		"receive_wait":  cfg.ReceiveWait,
		"poll_interval": cfg.PollInterval,
		"catch_period":  cfg.CatchPeriod,
	} {
		if d <= 0 {
			errs = multierr.Append(errs, errors.Errorf("%s: %s must be positive", path, name))
		}
	}
	if cfg.CatchSpeed <= 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: catch_speed must be positive", path))
	}
	errs = multierr.Append(errs, cfg.SpeedPID.Validate(path+".speed_pid"))
	errs = multierr.Append(errs, cfg.AnglePID.Validate(path+".angle_pid"))
	return errs
}

// Shooter is the part of the shooter the dribble controller drives.
type Shooter interface {
	PreSpeed(ctx context.Context, speed float64) error
}

// Deps are the pins, sensors and collaborators of the controller.
type Deps struct {
	Clamp board.GPIOPin
	Top   board.GPIOPin
	Push  board.GPIOPin

	Presence     [3]board.Sensor
	ProximityOut board.Sensor
	ProximityIn  board.Sensor

	// CatchMotor may be nil, in which case the catch drawer is not driven.
	CatchMotor motor.CurrentMotor
	// Shooter may be nil.
	Shooter Shooter

	Clock  clock.Clock
	Logger logging.Logger
}

// Dribble is the ball handling controller.
type Dribble struct {
	deps   Deps
	clk    clock.Clock
	cfg    Config
	logger logging.Logger

	ctrl   *mailbox.Mailbox[Event]
	status *mailbox.Mailbox[Status]

	state      atomic.Int32
	catchState atomic.Int32

	// toggle remembered by the key handler
	clampKeyOpen atomic.Bool

	// owned by the catch motor task
	catchSpeed  *control.PID
	catchAngle  *control.PID
	catchTarget float64
	latch       float64

	warn    rate.Sometimes
	workers utils.StoppableWorkers
}

// New puts the mechanism in its rest position (pushed in, clamp closed, drawer toward the
// shooter) and starts the controller.
func New(ctx context.Context, deps Deps, cfg Config) (*Dribble, error) {
	if err := cfg.Validate("dribble"); err != nil {
		return nil, err
	}
	if deps.Clamp == nil || deps.Top == nil || deps.Push == nil {
		return nil, errors.New("dribble: clamp, top and push pins are required")
	}
	for i, s := range deps.Presence {
		if s.Pin == nil {
			return nil, errors.Errorf("dribble: presence sensor %d is required", i+1)
		}
	}
	if deps.ProximityOut.Pin == nil || deps.ProximityIn.Pin == nil {
		return nil, errors.New("dribble: proximity sensors are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	ctrl, err := mailbox.New[Event]("dribble.ctrl", 1, deps.Clock, deps.Logger)
	if err != nil {
		return nil, err
	}
	status, err := mailbox.New[Status]("dribble.status", 1, deps.Clock, deps.Logger)
	if err != nil {
		return nil, err
	}

	d := &Dribble{
		deps:       deps,
		clk:        deps.Clock,
		cfg:        cfg,
		logger:     deps.Logger,
		ctrl:       ctrl,
		status:     status,
		catchSpeed: control.NewPID(cfg.SpeedPID),
		catchAngle: control.NewPID(cfg.AnglePID),
		warn:       rate.Sometimes{Interval: time.Second},
	}
	if err := d.pushIn(ctx); err != nil {
		return nil, errors.Wrap(err, "dribble: moving to rest position")
	}
	d.setCatchState(ToShoot)
	d.setState(Idle)

	d.workers = utils.NewStoppableWorkers(d.run)
	if deps.CatchMotor != nil {
		d.workers.AddPeriodic(d.clk, cfg.CatchPeriod, d.catchStep)
	}
	return d, nil
}

// Send posts ev, replacing any event not yet handled.
func (d *Dribble) Send(ev Event) {
	d.ctrl.ResetAndSend(ev)
}

// Events returns the event mailbox.
func (d *Dribble) Events() *mailbox.Mailbox[Event] {
	return d.ctrl
}

// StatusMailbox returns the mailbox sequence outcomes are published to.
func (d *Dribble) StatusMailbox() *mailbox.Mailbox[Status] {
	return d.status
}

// State returns what the mechanism is doing.
func (d *Dribble) State() State {
	return State(d.state.Load())
}

func (d *Dribble) setState(s State) {
	d.state.Store(int32(s))
}

// CatchState returns where the catch drawer is driven to.
func (d *Dribble) CatchState() CatchState {
	return CatchState(d.catchState.Load())
}

func (d *Dribble) setCatchState(s CatchState) {
	d.catchState.Store(int32(s))
}

func (d *Dribble) run(ctx context.Context) {
	for {
		msg, err := d.ctrl.ReceiveTimeout(ctx, d.cfg.ReceiveWait)
		if err != nil {
			if errors.Is(err, mailbox.ErrTimeout) {
				continue
			}
			return
		}
		if !d.ctrl.Fresh(ctx, msg, d.cfg.Staleness) {
			continue
		}
		if err := d.handle(ctx, msg.Value); err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warnw("dribble event failed", "event", msg.Value, "error", err)
		}
		d.setState(Idle)
	}
}

func (d *Dribble) handle(ctx context.Context, ev Event) error {
	d.logger.CDebugw(ctx, "handling event", "event", ev)
	switch ev {
	case WholeProcess:
		ok, err := d.wholeProcess(ctx)
		if err != nil {
			return err
		}
		if ok {
			d.status.ResetAndSend(Successful)
		} else {
			d.status.ResetAndSend(Unsuccessful)
		}
	case PartProcess:
		if err := d.handoff(ctx); err != nil {
			return err
		}
		d.preSpeed(ctx)
	case HandoffBall:
		return d.handoff(ctx)
	case OpenClamp:
		return d.openClamp(ctx)
	case CloseClamp:
		return d.closeClamp(ctx)
	case HitBall:
		return d.hit(ctx)
	case PushOut:
		return d.pushOut(ctx)
	case PushIn:
		return d.pushIn(ctx)
	case GetStatus:
		touched, err := d.deps.Presence[0].Touched(ctx)
		if err != nil {
			return errors.Wrap(err, "reading presence sensor")
		}
		if touched {
			d.status.ResetAndSend(HaveBall)
		} else {
			d.status.ResetAndSend(ClampOpened)
		}
	case MoveToCatch:
		d.setCatchState(ToCatch)
	case MoveToShoot:
		d.setCatchState(ToShoot)
		d.preSpeed(ctx)
	default:
		return errors.Errorf("unknown event %d", ev)
	}
	return nil
}

func (d *Dribble) preSpeed(ctx context.Context) {
	if d.deps.Shooter == nil {
		return
	}
	if err := d.deps.Shooter.PreSpeed(ctx, d.cfg.HandoffSpeed); err != nil {
		d.logger.Warnw("requesting shooter pre-speed failed", "error", err)
	}
}

// Close stops the controller. The cylinders are left where they are.
func (d *Dribble) Close(ctx context.Context) error {
	d.workers.Stop()
	return nil
}
