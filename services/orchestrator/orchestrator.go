// Package orchestrator turns single operator intents into coordinated chassis and shooter
// commands: drive to the nearest shooting ring while the flywheel spins up, step between rings,
// and fetch balls from the load points.
package orchestrator

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/hoopbot/components/input/remote"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/navigation"
	"go.viam.com/hoopbot/pose"
	"go.viam.com/hoopbot/services/chassis"
	"go.viam.com/hoopbot/services/shooter"
	"go.viam.com/hoopbot/utils"
	"go.viam.com/hoopbot/utils/mailbox"
)

// Intent is a composite operator request.
type Intent int

// The intents.
const (
	Radium Intent = iota
	LeftBall
	RightBall
	SmallLoop
	BigLoop
)

func (i Intent) String() string {
	switch i {
	case Radium:
		return "radium"
	case LeftBall:
		return "left_ball"
	case RightBall:
		return "right_ball"
	case SmallLoop:
		return "small_loop"
	case BigLoop:
		return "big_loop"
	}
	return "unknown"
}

// Chassis is the part of the chassis controller the orchestrator drives.
type Chassis interface {
	Send(cmd chassis.Command)
	OverwriteRingPoint(index int) int
}

// Shooter is the part of the shooter the orchestrator drives.
type Shooter interface {
	Send(ctx context.Context, ev shooter.Event) error
}

// Config configures the orchestrator.
type Config struct {
	// LoadWait is how long the chassis aims at a load point before aiming is released.
	LoadWait time.Duration `mapstructure:"load_wait" json:"load_wait"`
	// LoadSpeed is the reverse flywheel speed used to take a ball in.
	LoadSpeed float64 `mapstructure:"load_speed" json:"load_speed"`
	// BiasDeadzone is how far the right stick must be pushed to shift the ring choice.
	BiasDeadzone int8 `mapstructure:"bias_deadzone" json:"bias_deadzone"`
}

// DefaultConfig returns the orchestrator constants the robot competed with.
func DefaultConfig() Config {
	return Config{
		LoadWait:     500 * time.Millisecond,
		LoadSpeed:    -2800,
		BiasDeadzone: 5,
	}
}

// Validate returns every problem with the config combined.
func (cfg Config) Validate(path string) error {
	var errs error
	if cfg.LoadWait < 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: load_wait must not be negative", path))
	}
	if cfg.BiasDeadzone < 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: bias_deadzone must not be negative", path))
	}
	return errs
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Chassis  Chassis
	Shooter  Shooter
	Ring     *navigation.Ring
	Pose     pose.Reader
	Joystick chassis.Joystick
	Clock    clock.Clock
	Logger   logging.Logger
}

// Orchestrator is the top level controller.
type Orchestrator struct {
	deps   Deps
	clk    clock.Clock
	cfg    Config
	logger logging.Logger

	intents *mailbox.Mailbox[Intent]
	// owned by the consumer
	index int

	workers utils.StoppableWorkers
}

// New starts the orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate("orchestrator"); err != nil {
		return nil, err
	}
	if deps.Chassis == nil || deps.Shooter == nil || deps.Ring == nil || deps.Pose == nil || deps.Joystick == nil {
		return nil, errors.New("orchestrator: chassis, shooter, ring, pose and joystick are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	intents, err := mailbox.New[Intent]("orchestrator.intents", 1, deps.Clock, deps.Logger)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		deps:    deps,
		clk:     deps.Clock,
		cfg:     cfg,
		logger:  deps.Logger,
		intents: intents,
	}
	o.workers = utils.NewStoppableWorkers(o.run)
	return o, nil
}

// Send posts intent, replacing any intent not yet handled.
func (o *Orchestrator) Send(intent Intent) {
	o.intents.ResetAndSend(intent)
}

// Intents returns the intent mailbox.
func (o *Orchestrator) Intents() *mailbox.Mailbox[Intent] {
	return o.intents
}

func (o *Orchestrator) run(ctx context.Context) {
	for {
		msg, err := o.intents.Receive(ctx)
		if err != nil {
			return
		}
		if err := o.handle(ctx, msg.Value); err != nil {
			if ctx.Err() != nil {
				return
			}
			o.logger.Warnw("intent failed", "intent", msg.Value, "error", err)
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, intent Intent) error {
	o.logger.CDebugw(ctx, "handling intent", "intent", intent)
	switch intent {
	case Radium:
		o.index = o.nearestRing()
		return o.goToRing(ctx, shooter.PreSpeed)
	case BigLoop:
		o.index = o.deps.Ring.Clamp(o.index + 1)
		return o.goToRing(ctx, shooter.DirectSpeed)
	case SmallLoop:
		o.index = o.deps.Ring.Clamp(o.index - 1)
		return o.goToRing(ctx, shooter.DirectSpeed)
	case LeftBall:
		return o.loadBall(ctx, chassis.AimLeft, 0)
	case RightBall:
		return o.loadBall(ctx, chassis.AimRight, o.cfg.LoadWait)
	}
	return errors.Errorf("unknown intent %d", intent)
}

// nearestRing picks the ring table entry closest to the current distance from the basket,
// shifted one ring by the right stick.
func (o *Orchestrator) nearestRing() int {
	distance := o.deps.Ring.DistanceToBasket(o.deps.Pose.Get())
	i, diff := o.deps.Ring.NearestIndex(distance)
	bias := o.deps.Joystick.Axes()[remote.RightY]
	if distance >= diff {
		if bias < -o.cfg.BiasDeadzone {
			i++
		}
	} else if bias > o.cfg.BiasDeadzone {
		i--
	}
	return o.deps.Ring.Clamp(i)
}

// goToRing writes the ring point for the current index, spins the flywheel up to the ring's
// speed and starts the chassis toward it.
func (o *Orchestrator) goToRing(ctx context.Context, spin shooter.EventType) error {
	o.index = o.deps.Chassis.OverwriteRingPoint(o.index)
	speed := o.deps.Ring.SpeedAt(o.index)
	o.logger.Infow("heading to ring", "index", o.index, "speed", speed)
	err := o.deps.Shooter.Send(ctx, shooter.Event{Type: spin, Speed: speed})
	o.deps.Chassis.Send(chassis.RunNearestRing)
	return err
}

// loadBall aims at a load point with the shooter disabled, releases the aim once the chassis
// had time to turn, and reverses the flywheel to take the ball in.
func (o *Orchestrator) loadBall(ctx context.Context, aim chassis.Command, extra time.Duration) error {
	o.deps.Chassis.Send(chassis.SetManual)
	o.deps.Chassis.Send(aim)
	errs := o.deps.Shooter.Send(ctx, shooter.Event{Type: shooter.Disable})
	if err := utils.SleepClock(ctx, o.clk, o.cfg.LoadWait); err != nil {
		return err
	}
	o.deps.Chassis.Send(chassis.ResetAim)
	if err := utils.SleepClock(ctx, o.clk, extra); err != nil {
		return err
	}
	return multierr.Append(errs, o.deps.Shooter.Send(ctx, shooter.Event{Type: shooter.LoadBall, Speed: o.cfg.LoadSpeed}))
}

// Close stops the orchestrator.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.workers.Stop()
	return nil
}
