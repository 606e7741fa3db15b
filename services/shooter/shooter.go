// Package shooter implements the flywheel controller. Events are queued from the remote, the
// dribble controller and the orchestrator, and a single consumer turns them into speed ramps and
// feed flag changes published to the flywheel.
package shooter

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/services/telemetry"
	"go.viam.com/hoopbot/utils"
	"go.viam.com/hoopbot/utils/mailbox"
)

// EventType is a shooter command.
type EventType int

// The shooter commands.
const (
	Disable EventType = iota
	Enable
	Push
	Ready
	EnableCycle
	PreSpeed
	ZeroSpeed
	DirectSpeed
	IncrementSpeed
	DecrementSpeed
	LoadBall
	CalculateSpeed
)

var eventTypeNames = []string{
	"disable", "enable", "push", "ready", "enable_cycle", "pre_speed", "zero_speed",
	"direct_speed", "increment_speed", "decrement_speed", "load_ball", "calculate_speed",
}

func (t EventType) String() string {
	if t < 0 || int(t) >= len(eventTypeNames) {
		return "unknown"
	}
	return eventTypeNames[t]
}

// Event is a command with its speed argument. Speed is ignored by the events that take none.
type Event struct {
	Type  EventType
	Speed float64
}

// The feed flag values understood by the slave board.
const (
	FlagDisabled uint8 = 0
	FlagPush     uint8 = 1
	FlagReady    uint8 = 2
)

// FribeltStatus reports the last speed change.
type FribeltStatus int

// The speed statuses.
const (
	FribeltIdle FribeltStatus = iota
	FribeltDone
	FribeltZero
)

// PushStatus reports the last feed change.
type PushStatus int

// The feed statuses.
const (
	PushIdle PushStatus = iota
	PushDone
	PassDone
)

// AbleStatus reports whether the shooter was last enabled or disabled.
type AbleStatus int

// The enable statuses.
const (
	AbleIdle AbleStatus = iota
	AbleDisabled
	AbleEnabled
)

// Status is published after every handled event.
type Status struct {
	Fribelt FribeltStatus
	Push    PushStatus
	Able    AbleStatus
}

// State is derived from the flag, the speed and whether a ramp is running.
type State int

// The derived shooter states.
const (
	StateDisabled State = iota
	StateReady
	StateLoading
	StatePushing
	StateAtSpeed
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateReady:
		return "ready"
	case StateLoading:
		return "loading"
	case StatePushing:
		return "pushing"
	case StateAtSpeed:
		return "at_speed"
	}
	return "unknown"
}

// Flywheel is the sink for the shooter's speed and feed flag.
type Flywheel interface {
	SetSpeed(ctx context.Context, speed float64) error
	SetFlag(ctx context.Context, flag uint8) error
}

// Config configures the shooter.
type Config struct {
	Staleness time.Duration `mapstructure:"staleness" json:"staleness"`
	SendWait  time.Duration `mapstructure:"send_wait" json:"send_wait"`
	Capacity  int           `mapstructure:"capacity" json:"capacity"`

	SpeedStep float64 `mapstructure:"speed_step" json:"speed_step"`

	PreSpeedSteps    int           `mapstructure:"pre_speed_steps" json:"pre_speed_steps"`
	PreSpeedInterval time.Duration `mapstructure:"pre_speed_interval" json:"pre_speed_interval"`

	CalibrationStep     float64       `mapstructure:"calibration_step" json:"calibration_step"`
	CalibrationSteps    int           `mapstructure:"calibration_steps" json:"calibration_steps"`
	CalibrationInterval time.Duration `mapstructure:"calibration_interval" json:"calibration_interval"`
	CalibrationHold     float64       `mapstructure:"calibration_hold" json:"calibration_hold"`
	CalibrationSettle   time.Duration `mapstructure:"calibration_settle" json:"calibration_settle"`
	CalibrationSpinUp   time.Duration `mapstructure:"calibration_spin_up" json:"calibration_spin_up"`

	Fit       FitKind   `mapstructure:"fit" json:"fit"`
	Piecewise Piecewise `mapstructure:"piecewise" json:"piecewise"`
	Linear    Linear    `mapstructure:"linear" json:"linear"`
}

// DefaultConfig returns the shooter constants the robot competed with.
func DefaultConfig() Config {
	return Config{
		Staleness:           100 * time.Millisecond,
		SendWait:            5 * time.Millisecond,
		Capacity:            5,
		SpeedStep:           100,
		PreSpeedSteps:       10,
		PreSpeedInterval:    200 * time.Millisecond,
		CalibrationStep:     1000,
		CalibrationSteps:    10,
		CalibrationInterval: 150 * time.Millisecond,
		CalibrationHold:     13000,
		CalibrationSettle:   300 * time.Millisecond,
		CalibrationSpinUp:   5 * time.Second,
		Fit:                 QuadraticFit,
		Piecewise:           DefaultPiecewise,
		Linear:              DefaultLinear,
	}
}

// Validate returns every problem with the config combined.
func (cfg Config) Validate(path string) error {
	var errs error
	if cfg.Staleness <= 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: staleness must be positive", path))
	}
	if cfg.Capacity < 1 {
		errs = multierr.Append(errs, errors.Errorf("%s: capacity must be at least 1", path))
	}
	if cfg.PreSpeedSteps < 1 {
		errs = multierr.Append(errs, errors.Errorf("%s: pre_speed_steps must be at least 1", path))
	}
	if cfg.CalibrationSteps < 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: calibration_steps must not be negative", path))
	}
	if _, err := FitKindFromString(string(cfg.Fit)); err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, path))
	}
	return errs
}

// SpeedFit returns the fit selected by the config.
func (cfg Config) SpeedFit() SpeedFit {
	if cfg.Fit == LinearFit {
		return cfg.Linear
	}
	return cfg.Piecewise
}

// Deps are the collaborators of the shooter.
type Deps struct {
	Flywheel Flywheel
	// Distance returns the current distance to the basket in mm.
	Distance func() float64
	// Reports may be nil.
	Reports *mailbox.Mailbox[telemetry.ReportType]
	Clock   clock.Clock
	Logger  logging.Logger
}

// Shooter is the flywheel controller.
type Shooter struct {
	flywheel Flywheel
	distance func() float64
	reports  *mailbox.Mailbox[telemetry.ReportType]
	clk      clock.Clock
	cfg      Config
	fit      SpeedFit
	logger   logging.Logger

	events *mailbox.Mailbox[Event]
	status *mailbox.Mailbox[Status]

	mu      sync.Mutex
	speed   float64
	flag    uint8
	ramping bool
	last    Status

	workers utils.StoppableWorkers
}

// New starts the shooter disabled at zero speed.
func New(ctx context.Context, deps Deps, cfg Config) (*Shooter, error) {
	if err := cfg.Validate("shooter"); err != nil {
		return nil, err
	}
	if deps.Flywheel == nil {
		return nil, errors.New("shooter: flywheel is required")
	}
	if deps.Distance == nil {
		deps.Distance = func() float64 { return 0 }
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	events, err := mailbox.New[Event]("shooter.events", cfg.Capacity, deps.Clock, deps.Logger)
	if err != nil {
		return nil, err
	}
	status, err := mailbox.New[Status]("shooter.status", cfg.Capacity, deps.Clock, deps.Logger)
	if err != nil {
		return nil, err
	}

	s := &Shooter{
		flywheel: deps.Flywheel,
		distance: deps.Distance,
		reports:  deps.Reports,
		clk:      deps.Clock,
		cfg:      cfg,
		fit:      cfg.SpeedFit(),
		logger:   deps.Logger,
		events:   events,
		status:   status,
	}
	if err := s.publish(ctx); err != nil {
		return nil, errors.Wrap(err, "shooter: publishing initial state")
	}
	s.workers = utils.NewStoppableWorkers(s.run)
	return s, nil
}

// Send queues ev, waiting at most SendWait for room. A full queue is logged and returned.
func (s *Shooter) Send(ctx context.Context, ev Event) error {
	if err := s.events.Send(ctx, ev, s.cfg.SendWait); err != nil {
		s.logger.Errorw("shooter event send failed", "event", ev.Type, "error", err)
		return err
	}
	return nil
}

// PreSpeed queues a ramp to speed.
func (s *Shooter) PreSpeed(ctx context.Context, speed float64) error {
	return s.Send(ctx, Event{Type: PreSpeed, Speed: speed})
}

// Events returns the event mailbox.
func (s *Shooter) Events() *mailbox.Mailbox[Event] {
	return s.events
}

// StatusMailbox returns the mailbox a Status is published to after every event.
func (s *Shooter) StatusMailbox() *mailbox.Mailbox[Status] {
	return s.status
}

// Fit returns the speed the configured fit gives for radius.
func (s *Shooter) Fit(radius float64) float64 {
	return s.fit.Speed(radius)
}

// Speed returns the commanded flywheel speed.
func (s *Shooter) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// Flag returns the commanded feed flag.
func (s *Shooter) Flag() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flag
}

// State derives what the shooter is doing.
func (s *Shooter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.flag == FlagDisabled:
		return StateDisabled
	case s.speed < 0:
		return StateLoading
	case s.flag == FlagPush:
		return StatePushing
	case s.ramping || s.speed == 0:
		return StateReady
	default:
		return StateAtSpeed
	}
}

// Shoot returns the shoot report contents.
func (s *Shooter) Shoot() telemetry.Shoot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return telemetry.Shoot{Speed: s.speed, Flag: s.flag}
}

func (s *Shooter) setSpeed(v float64) {
	s.mu.Lock()
	s.speed = v
	s.mu.Unlock()
}

func (s *Shooter) setFlag(f uint8) {
	s.mu.Lock()
	s.flag = f
	s.mu.Unlock()
}

// publish sends the current speed and flag to the flywheel.
func (s *Shooter) publish(ctx context.Context) error {
	s.mu.Lock()
	speed, flag := s.speed, s.flag
	s.mu.Unlock()
	return multierr.Combine(
		s.flywheel.SetSpeed(ctx, speed),
		s.flywheel.SetFlag(ctx, flag),
	)
}

func (s *Shooter) sleep(ctx context.Context, d time.Duration) error {
	return utils.SleepClock(ctx, s.clk, d)
}

func (s *Shooter) run(ctx context.Context) {
	for {
		msg, err := s.events.Receive(ctx)
		if err != nil {
			return
		}
		if !s.events.Fresh(ctx, msg, s.cfg.Staleness) {
			continue
		}
		if err := s.handle(ctx, msg.Value); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warnw("shooter event failed", "event", msg.Value.Type, "error", err)
		}
		if err := s.publish(ctx); err != nil {
			s.logger.Warnw("publishing flywheel state failed", "error", err)
		}

		s.mu.Lock()
		st := s.last
		s.mu.Unlock()
		if !s.status.TrySend(st) {
			s.logger.CDebugw(ctx, "status mailbox full", "status", st)
		}
		telemetry.Request(s.reports, telemetry.ReportShoot)
	}
}

func (s *Shooter) handle(ctx context.Context, ev Event) error {
	s.logger.CDebugw(ctx, "handling event", "event", ev.Type, "speed", ev.Speed)
	switch ev.Type {
	case Disable:
		s.mu.Lock()
		s.flag, s.speed = FlagDisabled, 0
		s.last.Able = AbleDisabled
		s.mu.Unlock()
	case Enable:
		s.mu.Lock()
		s.flag = FlagReady
		s.last.Able = AbleEnabled
		s.mu.Unlock()
	case Push:
		s.mu.Lock()
		s.flag = FlagPush
		s.last.Push = PushDone
		s.mu.Unlock()
	case Ready:
		s.mu.Lock()
		s.flag = FlagReady
		s.last.Push = PassDone
		s.mu.Unlock()
	case EnableCycle:
		s.mu.Lock()
		if s.flag == FlagReady {
			s.flag = FlagPush
		} else {
			s.flag = FlagReady
		}
		flag := s.flag
		s.mu.Unlock()
		s.logger.Infow("shooter feed changed", "flag", flag)
	case PreSpeed:
		if err := s.preSpeed(ctx, ev.Speed); err != nil {
			return err
		}
		s.setFribelt(FribeltDone)
	case ZeroSpeed:
		s.setSpeed(0)
		s.setFribelt(FribeltZero)
	case DirectSpeed, LoadBall:
		s.setSpeed(ev.Speed)
	case IncrementSpeed:
		s.adjust(s.cfg.SpeedStep)
	case DecrementSpeed:
		s.adjust(-s.cfg.SpeedStep)
	case CalculateSpeed:
		return s.calculate(ctx)
	default:
		return errors.Errorf("unknown event %d", ev.Type)
	}
	return nil
}

func (s *Shooter) setFribelt(fs FribeltStatus) {
	s.mu.Lock()
	s.last.Fribelt = fs
	s.mu.Unlock()
}

func (s *Shooter) adjust(delta float64) {
	s.mu.Lock()
	s.speed += delta
	s.last.Fribelt = FribeltDone
	s.mu.Unlock()
}

func (s *Shooter) setRamping(on bool) {
	s.mu.Lock()
	s.ramping = on
	s.mu.Unlock()
}

// step sets the speed, publishes it and waits d.
func (s *Shooter) step(ctx context.Context, speed float64, d time.Duration) error {
	s.setSpeed(speed)
	if err := s.publish(ctx); err != nil {
		return err
	}
	return s.sleep(ctx, d)
}

// preSpeed enables the shooter and ramps to target in equal steps.
func (s *Shooter) preSpeed(ctx context.Context, target float64) error {
	s.setRamping(true)
	defer s.setRamping(false)

	s.setFlag(FlagReady)
	if err := s.publish(ctx); err != nil {
		return err
	}
	n := s.cfg.PreSpeedSteps
	for i := 0; i < n; i++ {
		if err := s.step(ctx, float64(i+1)*target/float64(n), s.cfg.PreSpeedInterval); err != nil {
			return err
		}
	}
	return nil
}

// calculate spins up in fixed steps, settles at the hold speed, switches to the fitted speed for
// the current distance and pushes the ball once the flywheel had time to reach it.
func (s *Shooter) calculate(ctx context.Context) error {
	s.setRamping(true)
	defer s.setRamping(false)

	s.setFlag(FlagReady)
	if err := s.publish(ctx); err != nil {
		return err
	}
	for i := 1; i <= s.cfg.CalibrationSteps; i++ {
		if err := s.step(ctx, s.cfg.CalibrationStep*float64(i), s.cfg.CalibrationInterval); err != nil {
			return err
		}
	}
	if err := s.step(ctx, s.cfg.CalibrationHold, s.cfg.CalibrationSettle); err != nil {
		return err
	}
	radius := s.distance()
	target := s.fit.Speed(radius)
	s.logger.Infow("calculated shot speed", "radius", radius, "speed", target)
	if err := s.step(ctx, target, s.cfg.CalibrationSpinUp); err != nil {
		return err
	}
	s.setFlag(FlagPush)
	return nil
}

// Close stops the consumer. The flywheel keeps its last command.
func (s *Shooter) Close(ctx context.Context) error {
	s.workers.Stop()
	return nil
}
