// Package navigation turns a target pose into a chassis velocity and an arrival classification.
//
// The engine holds one channel per point type. A channel binds a pose source, a translational
// and a rotational PID, two deadbands and a motion strategy. Channels are built once by NewEngine
// and never reconfigured.
package navigation

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/hoopbot/components/base"
	"go.viam.com/hoopbot/control"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/pose"
)

// PointType names a navigation channel.
type PointType int

// The point types.
const (
	PointFlat PointType = iota
	PointRing
	PointLoadBall
	PointLinear
	PointAxisSequence

	NumPointTypes
)

var pointTypeNames = [NumPointTypes]string{"flat", "ring", "load_ball", "linear", "axis_sequence"}

func (pt PointType) String() string {
	if pt < 0 || pt >= NumPointTypes {
		return "invalid"
	}
	return pointTypeNames[pt]
}

// MarshalText encodes the point type by name.
func (pt PointType) MarshalText() ([]byte, error) {
	return []byte(pt.String()), nil
}

// PointTypeFromString parses a point type name.
func PointTypeFromString(s string) (PointType, error) {
	for i, name := range pointTypeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return PointType(i), nil
		}
	}
	return 0, errors.Errorf("unknown point type %q", s)
}

// Strategy selects how a channel moves toward its target.
type Strategy int

// The motion strategies.
const (
	// StrategyDirect translates straight at the target while rotating to the target yaw.
	StrategyDirect Strategy = iota
	// StrategyLinear faces the direction of travel until the position is reached, then rotates
	// to the target yaw.
	StrategyLinear
	// StrategyAxisSequence moves along x, then y, then rotates.
	StrategyAxisSequence
)

var strategyNames = []string{"direct", "linear", "axis_sequence"}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return "invalid"
	}
	return strategyNames[s]
}

// MarshalText encodes the strategy by name.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StrategyFromString parses a strategy name.
func StrategyFromString(s string) (Strategy, error) {
	for i, name := range strategyNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Strategy(i), nil
		}
	}
	return 0, errors.Errorf("unknown strategy %q", s)
}

// DefaultStrategy returns the strategy a point type uses unless configured otherwise.
func DefaultStrategy(pt PointType) Strategy {
	switch pt {
	case PointLinear:
		return StrategyLinear
	case PointAxisSequence:
		return StrategyAxisSequence
	default:
		return StrategyDirect
	}
}

// ArrivalState classifies one solve.
type ArrivalState int

// The arrival states.
const (
	NotArrived ArrivalState = iota
	PositionArrivedYawPending
	Arrived
	InvalidChannel
)

func (a ArrivalState) String() string {
	switch a {
	case NotArrived:
		return "not_arrived"
	case PositionArrivedYawPending:
		return "position_arrived_yaw_pending"
	case Arrived:
		return "arrived"
	case InvalidChannel:
		return "invalid_channel"
	}
	return "unknown"
}

// ErrInvalidChannel is returned by Drive for a point type with no configured channel.
var ErrInvalidChannel = errors.New("invalid navigation channel")

// Target is a world frame pose to drive to, in millimetres and degrees.
type Target struct {
	X   float64
	Y   float64
	Yaw float64
}

// Result is the output of one solve. HeadingAngle is in radians in the world frame.
type Result struct {
	MovingVelocity  float64
	HeadingAngle    float64
	TurningVelocity float64
	Arrival         ArrivalState
}

// ChannelConfig configures one channel.
type ChannelConfig struct {
	Location         pose.LocationType `mapstructure:"location" json:"location"`
	Speed            control.PIDConfig `mapstructure:"speed" json:"speed"`
	Angle            control.PIDConfig `mapstructure:"angle" json:"angle"`
	DistanceDeadband float64           `mapstructure:"distance_deadband" json:"distance_deadband"`
	AngleDeadband    float64           `mapstructure:"angle_deadband" json:"angle_deadband"`
	Strategy         Strategy          `mapstructure:"strategy" json:"strategy"`
}

type channel struct {
	mu       sync.Mutex
	pt       PointType
	src      pose.Reader
	speed    *control.PID
	angle    *control.PID
	distDB   float64
	angDB    float64
	strategy Strategy

	last Result
}

// Engine solves navigation requests.
type Engine struct {
	channels     [NumPointTypes]*channel
	compensation Compensation
	logger       logging.Logger
}

// NewEngine builds a channel for every configured point type, binding each to its pose source.
func NewEngine(
	registry *pose.Registry,
	channels map[PointType]ChannelConfig,
	compensation Compensation,
	logger logging.Logger,
) (*Engine, error) {
	e := &Engine{compensation: compensation, logger: logger}
	for pt, cfg := range channels {
		if pt < 0 || pt >= NumPointTypes {
			return nil, errors.Errorf("point type %d out of range", pt)
		}
		src, err := registry.Source(cfg.Location)
		if err != nil {
			return nil, errors.Wrapf(err, "channel %s", pt)
		}
		e.channels[pt] = &channel{
			pt:       pt,
			src:      src,
			speed:    control.NewPID(cfg.Speed),
			angle:    control.NewPID(cfg.Angle),
			distDB:   cfg.DistanceDeadband,
			angDB:    cfg.AngleDeadband,
			strategy: cfg.Strategy,
		}
	}
	return e, nil
}

// Configured reports whether pt has a channel.
func (e *Engine) Configured(pt PointType) bool {
	return pt >= 0 && pt < NumPointTypes && e.channels[pt] != nil
}

// Compensation returns the engine's rotational compensation.
func (e *Engine) Compensation() Compensation {
	return e.compensation
}

// Solve runs one control cycle of pt's channel toward target. A point type without a channel
// yields InvalidChannel and zero velocities.
func (e *Engine) Solve(pt PointType, target Target) Result {
	if !e.Configured(pt) {
		return Result{Arrival: InvalidChannel}
	}
	ch := e.channels[pt]
	ch.mu.Lock()
	defer ch.mu.Unlock()

	current := ch.src.Get()
	if hasNaN(current) || math.IsNaN(target.X) || math.IsNaN(target.Y) || math.IsNaN(target.Yaw) {
		ch.last = Result{Arrival: NotArrived}
		return ch.last
	}

	switch ch.strategy {
	case StrategyLinear:
		ch.last = ch.solveLinear(current, target)
	case StrategyAxisSequence:
		ch.last = ch.solveAxisSequence(current, target)
	default:
		ch.last = ch.solveDirect(current, target)
	}
	return ch.last
}

// Last returns the most recent result of pt's channel.
func (e *Engine) Last(pt PointType) Result {
	if !e.Configured(pt) {
		return Result{Arrival: InvalidChannel}
	}
	ch := e.channels[pt]
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.last
}

// Drive solves pt toward target and sends the decomposed velocity to sink.
func (e *Engine) Drive(ctx context.Context, pt PointType, target Target, sink base.Drivetrain) (ArrivalState, error) {
	res := e.Solve(pt, target)
	if res.Arrival == InvalidChannel {
		return InvalidChannel, errors.Wrapf(ErrInvalidChannel, "point type %s", pt)
	}
	v := Decompose(res, e.compensation)
	linear, angular := v.Vectors()
	if err := sink.SetVelocity(ctx, linear, angular, nil); err != nil {
		return res.Arrival, errors.Wrap(err, "setting chassis velocity")
	}
	return res.Arrival, nil
}

func hasNaN(p pose.Pose) bool {
	return math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Yaw)
}
