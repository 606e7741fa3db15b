package chassis

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/hoopbot/control"
	"go.viam.com/hoopbot/navigation"
)

// Curve maps a joystick axis to a velocity. Inside Deadband the output is zero, up to Knee it
// is InnerGain*v, and beyond it OuterGain*v pulled back toward zero by Offset.
type Curve struct {
	Deadband  float64 `mapstructure:"deadband" json:"deadband"`
	Knee      float64 `mapstructure:"knee" json:"knee"`
	InnerGain float64 `mapstructure:"inner_gain" json:"inner_gain"`
	OuterGain float64 `mapstructure:"outer_gain" json:"outer_gain"`
	Offset    float64 `mapstructure:"offset" json:"offset"`
}

// Apply evaluates the curve at v.
func (c Curve) Apply(v float64) float64 {
	a := math.Abs(v)
	switch {
	case a < c.Deadband:
		return 0
	case a < c.Knee:
		return c.InnerGain * v
	case v > 0:
		return c.OuterGain*v - c.Offset
	default:
		return c.OuterGain*v + c.Offset
	}
}

// TargetPoint is one entry of the point catalogue.
type TargetPoint struct {
	X    float64              `mapstructure:"x" json:"x"`
	Y    float64              `mapstructure:"y" json:"y"`
	Yaw  float64              `mapstructure:"yaw" json:"yaw"`
	Type navigation.PointType `mapstructure:"type" json:"type"`
}

// Target returns the point as a navigation target.
func (p TargetPoint) Target() navigation.Target {
	return navigation.Target{X: p.X, Y: p.Y, Yaw: p.Yaw}
}

// Config configures the chassis controller.
type Config struct {
	Staleness     time.Duration `mapstructure:"staleness" json:"staleness"`
	Period        time.Duration `mapstructure:"period" json:"period"`
	ArrivalCycles int           `mapstructure:"arrival_cycles" json:"arrival_cycles"`

	Orientation control.PIDConfig `mapstructure:"orientation" json:"orientation"`
	AimGain     float64           `mapstructure:"aim_gain" json:"aim_gain"`
	Translation Curve             `mapstructure:"translation" json:"translation"`
	Rotation    Curve             `mapstructure:"rotation" json:"rotation"`
	SlowSpin    float64           `mapstructure:"slow_spin" json:"slow_spin"`

	Points    []TargetPoint `mapstructure:"points" json:"points"`
	RingPoint int           `mapstructure:"ring_point" json:"ring_point"`

	// The auto task gives up on a load_ball point once x leaves this band.
	LoadBallMinX float64 `mapstructure:"load_ball_min_x" json:"load_ball_min_x"`
	LoadBallMaxX float64 `mapstructure:"load_ball_max_x" json:"load_ball_max_x"`

	AimLeftX  float64 `mapstructure:"aim_left_x" json:"aim_left_x"`
	AimRightX float64 `mapstructure:"aim_right_x" json:"aim_right_x"`
}

// DefaultConfig returns the tuning the robot competed with.
func DefaultConfig() Config {
	return Config{
		Staleness:     100 * time.Millisecond,
		Period:        time.Millisecond,
		ArrivalCycles: 5,
		Orientation:   control.NewPIDConfig(300, 8, 0, 500, control.PositionPID, 3.2, 0.1, 2.0),
		AimGain:       12,
		Translation:   Curve{Deadband: 3, Knee: 15, InnerGain: 200, OuterGain: 800, Offset: 9000},
		Rotation:      Curve{Deadband: 3, Knee: 3, InnerGain: 100, OuterGain: 100},
		SlowSpin:      0.12,
		Points: []TargetPoint{
			{X: -0.12, Y: 0.59, Type: navigation.PointFlat},
			{X: 3656.11, Y: 3314.07, Type: navigation.PointFlat},
			{X: 2614.78, Y: 3600.57, Yaw: 88.09, Type: navigation.PointFlat},
			{Type: navigation.PointFlat},
			{Type: navigation.PointFlat},
			{Type: navigation.PointRing},
			{X: -7000, Type: navigation.PointLoadBall},
			{X: -800, Type: navigation.PointLoadBall},
		},
		RingPoint:    5,
		LoadBallMinX: -7000,
		LoadBallMaxX: -800,
		AimLeftX:     -8000,
		AimRightX:    -10,
	}
}

// Validate returns every problem with the config combined.
func (cfg Config) Validate(path string) error {
	var errs error
	if cfg.Staleness <= 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: staleness must be positive", path))
	}
	if cfg.Period <= 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: period must be positive", path))
	}
	if cfg.ArrivalCycles < 1 {
		errs = multierr.Append(errs, errors.Errorf("%s: arrival_cycles must be at least 1", path))
	}
	errs = multierr.Append(errs, cfg.Orientation.Validate(path+".orientation"))
	if len(cfg.Points) == 0 || len(cfg.Points) > math.MaxUint8 {
		errs = multierr.Append(errs, errors.Errorf("%s: need between 1 and 255 points, got %d", path, len(cfg.Points)))
	}
	if cfg.RingPoint < 0 || cfg.RingPoint >= len(cfg.Points) {
		errs = multierr.Append(errs, errors.Errorf("%s: ring_point %d is not in the catalogue", path, cfg.RingPoint))
	} else if cfg.Points[cfg.RingPoint].Type != navigation.PointRing {
		errs = multierr.Append(errs, errors.Errorf("%s: ring_point %d must have type ring", path, cfg.RingPoint))
	}
	for i, p := range cfg.Points {
		if p.Type < 0 || p.Type >= navigation.NumPointTypes {
			errs = multierr.Append(errs, errors.Errorf("%s.points[%d]: invalid type %d", path, i, p.Type))
		}
	}
	if cfg.LoadBallMinX >= cfg.LoadBallMaxX {
		errs = multierr.Append(errs, errors.Errorf("%s: load_ball_min_x must be below load_ball_max_x", path))
	}
	return errs
}
