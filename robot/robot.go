// Package robot assembles the controllers, pose inputs and links into a running robot.
//
// A subsystem that cannot start is logged and left out; the rest of the robot runs without it.
// New only fails when the configuration is unusable or no controller started at all.
package robot

import (
	"context"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"go.viam.com/hoopbot/components/base"
	"go.viam.com/hoopbot/components/board"
	"go.viam.com/hoopbot/components/input/remote"
	"go.viam.com/hoopbot/components/motor"
	"go.viam.com/hoopbot/components/slavelink"
	"go.viam.com/hoopbot/config"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/navigation"
	"go.viam.com/hoopbot/pose"
	"go.viam.com/hoopbot/services/chassis"
	"go.viam.com/hoopbot/services/dribble"
	"go.viam.com/hoopbot/services/orchestrator"
	"go.viam.com/hoopbot/services/shooter"
	"go.viam.com/hoopbot/services/telemetry"
	"go.viam.com/hoopbot/utils"
	"go.viam.com/hoopbot/utils/mailbox"
)

// ErrNothingStarted is returned by New when every controller failed to start.
var ErrNothingStarted = errors.New("no controller could be started")

// Hardware is everything the robot reads from or drives. A nil field disables whatever depends
// on it.
type Hardware struct {
	// Remote carries operator remote frames.
	Remote io.Reader
	// Telemetry receives reports.
	Telemetry io.Writer
	// NUC carries vision computer pose frames.
	NUC io.Reader
	// Odometry carries text odometry lines.
	Odometry io.Reader

	// Slave, when set, gets a slavelink publisher that serves as both the drivetrain and the
	// flywheel. Otherwise Drivetrain and Flywheel are used directly.
	Slave      io.Writer
	Drivetrain base.Drivetrain
	Flywheel   shooter.Flywheel

	Clamp        board.GPIOPin
	Top          board.GPIOPin
	Push         board.GPIOPin
	Presence     [3]board.Sensor
	ProximityOut board.Sensor
	ProximityIn  board.Sensor
	LED          board.GPIOPin

	CatchMotor motor.CurrentMotor

	// Closers are closed after every controller has stopped.
	Closers []io.Closer
}

// Robot is a running robot.
type Robot struct {
	logger logging.Logger
	hw     *Hardware

	registry *pose.Registry
	sources  map[pose.LocationType]*pose.Source
	ring     *navigation.Ring
	router   *remote.Router
	link     *slavelink.Link
	reporter *telemetry.Reporter

	chassis      *chassis.Chassis
	dribble      *dribble.Dribble
	shooter      *shooter.Shooter
	orchestrator *orchestrator.Orchestrator

	streams       utils.StoppableWorkers
	cancelStreams context.CancelFunc
}

// New builds and starts the robot described by cfg on hw. The robot owns hw.Closers from then on,
// and New closes them itself when it fails.
func New(ctx context.Context, cfg config.Config, hw *Hardware, clk clock.Clock, logger logging.Logger) (*Robot, error) {
	if clk == nil {
		clk = clock.New()
	}
	if hw == nil {
		hw = &Hardware{}
	}
	guard := utils.NewGuard(func() {
		if err := closeAll(hw.Closers); err != nil {
			logger.Warnw("closing hardware after failed start", "error", err)
		}
	})
	defer guard.OnFail()

	ring, err := navigation.NewRing(cfg.Navigation.Ring)
	if err != nil {
		return nil, err
	}
	channels, err := cfg.Navigation.ChannelMap()
	if err != nil {
		return nil, err
	}
	locations := []pose.LocationType{pose.LocationAction, pose.LocationNUC, pose.LocationOdometry}
	registry := pose.NewRegistry(clk, locations...)
	sources := make(map[pose.LocationType]*pose.Source, len(locations))
	for _, lt := range locations {
		if sources[lt], err = registry.Source(lt); err != nil {
			return nil, err
		}
	}
	engine, err := navigation.NewEngine(registry, channels, cfg.Navigation.Compensation, logger.Sublogger("navigation"))
	if err != nil {
		return nil, err
	}
	requests, err := telemetry.NewRequests(clk, logger.Sublogger("telemetry"))
	if err != nil {
		return nil, err
	}

	r := &Robot{
		logger:   logger,
		hw:       hw,
		registry: registry,
		sources:  sources,
		ring:     ring,
	}

	var routerOpts []remote.Option
	if hw.LED != nil && cfg.Heartbeat > 0 {
		routerOpts = append(routerOpts, remote.WithHeartbeat(hw.LED, cfg.Heartbeat))
	}
	r.router = remote.NewRouter(logger.Sublogger("remote"), routerOpts...)

	drivetrain, flywheel := hw.Drivetrain, hw.Flywheel
	if hw.Slave != nil {
		nuc := r.source(pose.LocationNUC)
		r.link = slavelink.New(hw.Slave, nuc, clk, cfg.SlavePeriod, logger.Sublogger("slavelink"))
		drivetrain, flywheel = r.link, r.link
	}

	// the shooter and the chassis read the pose the ring channel navigates on
	ringPose := r.source(pose.LocationNUC)
	if ch, ok := channels[navigation.PointRing]; ok {
		ringPose = r.source(ch.Location)
	}
	distance := func() float64 { return ring.DistanceToBasket(ringPose.Get()) }

	r.startShooter(ctx, cfg, flywheel, distance, requests, clk)
	r.startChassis(ctx, cfg, engine, ringPose, drivetrain, requests, clk)
	r.startDribble(ctx, cfg, clk)
	r.startOrchestrator(cfg, ringPose, clk)

	if r.chassis == nil && r.dribble == nil && r.shooter == nil {
		return nil, multierr.Combine(ErrNothingStarted, r.closeControllers(ctx))
	}

	// later registrations win, so the orchestrator's keys override the controllers'
	if r.chassis != nil {
		r.chassis.RegisterKeys(r.router)
	}
	if r.dribble != nil {
		r.dribble.RegisterKeys(r.router)
	}
	if r.shooter != nil {
		r.shooter.RegisterKeys(r.router)
	}
	if r.orchestrator != nil {
		r.orchestrator.RegisterKeys(r.router)
	}

	if hw.Telemetry != nil {
		var sources telemetry.Sources
		if r.chassis != nil {
			sources.Position = r.chassis.Position
		}
		if r.shooter != nil {
			sources.Shoot = r.shooter.Shoot
		}
		r.reporter = telemetry.NewReporter(requests, hw.Telemetry, sources, logger.Sublogger("telemetry"))
	}

	r.startStreams()
	guard.Success()
	return r, nil
}

// source returns the registered source for lt, falling back to the NUC source.
func (r *Robot) source(lt pose.LocationType) *pose.Source {
	if src, ok := r.sources[lt]; ok {
		return src
	}
	return r.sources[pose.LocationNUC]
}

func (r *Robot) startShooter(
	ctx context.Context,
	cfg config.Config,
	flywheel shooter.Flywheel,
	distance func() float64,
	requests *mailbox.Mailbox[telemetry.ReportType],
	clk clock.Clock,
) {
	s, err := shooter.New(ctx, shooter.Deps{
		Flywheel: flywheel,
		Distance: distance,
		Reports:  requests,
		Clock:    clk,
		Logger:   r.logger.Sublogger("shooter"),
	}, cfg.Shooter)
	if err != nil {
		r.logger.Errorw("shooter not started", "error", err)
		return
	}
	r.shooter = s
}

func (r *Robot) startChassis(
	ctx context.Context,
	cfg config.Config,
	engine *navigation.Engine,
	reader pose.Reader,
	drivetrain base.Drivetrain,
	requests *mailbox.Mailbox[telemetry.ReportType],
	clk clock.Clock,
) {
	if drivetrain == nil {
		r.logger.Errorw("chassis not started", "error", errors.New("no drivetrain"))
		return
	}
	c, err := chassis.New(ctx, chassis.Deps{
		Engine:     engine,
		Ring:       r.ring,
		Pose:       reader,
		Drivetrain: drivetrain,
		Joystick:   r.router,
		Reports:    requests,
		Clock:      clk,
		Logger:     r.logger.Sublogger("chassis"),
	}, cfg.Chassis)
	if err != nil {
		r.logger.Errorw("chassis not started", "error", err)
		return
	}
	r.chassis = c
}

func (r *Robot) startDribble(ctx context.Context, cfg config.Config, clk clock.Clock) {
	deps := dribble.Deps{
		Clamp:        r.hw.Clamp,
		Top:          r.hw.Top,
		Push:         r.hw.Push,
		Presence:     r.hw.Presence,
		ProximityOut: r.hw.ProximityOut,
		ProximityIn:  r.hw.ProximityIn,
		CatchMotor:   r.hw.CatchMotor,
		Clock:        clk,
		Logger:       r.logger.Sublogger("dribble"),
	}
	if r.shooter != nil {
		deps.Shooter = r.shooter
	}
	d, err := dribble.New(ctx, deps, cfg.Dribble)
	if err != nil {
		r.logger.Errorw("dribble not started", "error", err)
		return
	}
	r.dribble = d
}

func (r *Robot) startOrchestrator(cfg config.Config, reader pose.Reader, clk clock.Clock) {
	if r.chassis == nil || r.shooter == nil {
		r.logger.Warn("orchestrator not started: it needs both the chassis and the shooter")
		return
	}
	o, err := orchestrator.New(orchestrator.Deps{
		Chassis:  r.chassis,
		Shooter:  r.shooter,
		Ring:     r.ring,
		Pose:     reader,
		Joystick: r.router,
		Clock:    clk,
		Logger:   r.logger.Sublogger("orchestrator"),
	}, cfg.Orchestrator)
	if err != nil {
		r.logger.Errorw("orchestrator not started", "error", err)
		return
	}
	r.orchestrator = o
}

// startStreams feeds the remote, vision and odometry inputs. A stream that fails is logged and
// not restarted.
func (r *Robot) startStreams() {
	ctx, cancel := context.WithCancel(context.Background())
	r.streams = utils.NewStoppableWorkersWithContext(ctx)
	r.cancelStreams = cancel
	if r.hw.Remote != nil {
		r.streams.AddWorkers(func(ctx context.Context) {
			r.logStreamEnd(ctx, "remote", r.router.Run(ctx, r.hw.Remote))
		})
	}
	if r.hw.NUC != nil {
		alive := rate.Sometimes{Interval: 10 * time.Second}
		logger := r.logger.Sublogger("nuc")
		r.streams.AddWorkers(func(ctx context.Context) {
			err := pose.RunNUCStream(ctx, r.hw.NUC, r.source(pose.LocationNUC), logger, func() {
				alive.Do(func() { logger.Debugw("nuc pose", "pose", r.source(pose.LocationNUC).Get()) })
			})
			r.logStreamEnd(ctx, "nuc", err)
		})
	}
	if r.hw.Odometry != nil {
		logger := r.logger.Sublogger("odometry")
		r.streams.AddWorkers(func(ctx context.Context) {
			r.logStreamEnd(ctx, "odometry", pose.RunOdometryStream(ctx, r.hw.Odometry, r.source(pose.LocationOdometry), logger))
		})
	}
}

func (r *Robot) logStreamEnd(ctx context.Context, name string, err error) {
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		r.logger.Errorw("input stream stopped", "stream", name, "error", err)
		return
	}
	r.logger.Warnw("input stream ended", "stream", name)
}

// Router returns the operator input router.
func (r *Robot) Router() *remote.Router {
	return r.router
}

// Registry returns the pose sources.
func (r *Robot) Registry() *pose.Registry {
	return r.registry
}

// Chassis returns the chassis controller, or nil if it did not start.
func (r *Robot) Chassis() *chassis.Chassis {
	return r.chassis
}

// Dribble returns the ball handling controller, or nil if it did not start.
func (r *Robot) Dribble() *dribble.Dribble {
	return r.dribble
}

// Shooter returns the shooter, or nil if it did not start.
func (r *Robot) Shooter() *shooter.Shooter {
	return r.shooter
}

// Orchestrator returns the orchestrator, or nil if it did not start.
func (r *Robot) Orchestrator() *orchestrator.Orchestrator {
	return r.orchestrator
}

// Close stops the controllers in reverse start order, then the links, then the hardware.
func (r *Robot) Close(ctx context.Context) error {
	errs := r.closeControllers(ctx)
	if r.cancelStreams != nil {
		r.cancelStreams()
	}
	// closing the hardware unblocks the stream readers
	errs = multierr.Append(errs, closeAll(r.hw.Closers))
	if r.streams != nil {
		r.streams.Stop()
	}
	return errs
}

func (r *Robot) closeControllers(ctx context.Context) error {
	var errs error
	if r.orchestrator != nil {
		errs = multierr.Append(errs, r.orchestrator.Close(ctx))
	}
	if r.dribble != nil {
		errs = multierr.Append(errs, r.dribble.Close(ctx))
	}
	if r.chassis != nil {
		errs = multierr.Append(errs, r.chassis.Close(ctx))
	}
	if r.shooter != nil {
		errs = multierr.Append(errs, r.shooter.Close(ctx))
	}
	if r.reporter != nil {
		errs = multierr.Append(errs, r.reporter.Close())
	}
	if r.link != nil {
		errs = multierr.Append(errs, r.link.Close())
	}
	return errs
}

func closeAll(closers []io.Closer) error {
	var errs error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, closers[i].Close())
	}
	return errs
}
