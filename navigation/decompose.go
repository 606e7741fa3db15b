package navigation

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/hoopbot/components/base"
)

// Compensation biases the rotational command away from zero once it exceeds Threshold, to get
// the wheels past their low speed deadzone. The values are tuned on the robot.
type Compensation struct {
	Threshold float64 `mapstructure:"threshold" json:"threshold"`
	Bias      float64 `mapstructure:"bias" json:"bias"`
}

// DefaultCompensation is the bias the drivetrain was tuned with.
var DefaultCompensation = Compensation{Threshold: 20, Bias: 240}

// Apply returns w with the deadzone bias added.
func (c Compensation) Apply(w float64) float64 {
	if w > c.Threshold {
		return w + c.Bias
	}
	if w < -c.Threshold {
		return w - c.Bias
	}
	return w
}

// Velocity is a chassis velocity command.
type Velocity struct {
	X float64
	Y float64
	W float64
}

// Vectors returns the linear and angular vectors a Drivetrain takes.
func (v Velocity) Vectors() (linear, angular r3.Vector) {
	return base.Planar(v.X, v.Y, v.W)
}

// Decompose converts a Result into a chassis velocity. Translation has priority while the
// position is not reached, so rotation is zeroed; once only the yaw is pending, translation is
// zeroed.
func Decompose(res Result, c Compensation) Velocity {
	v := Velocity{
		X: res.MovingVelocity * math.Cos(res.HeadingAngle),
		Y: res.MovingVelocity * math.Sin(res.HeadingAngle),
		W: c.Apply(res.TurningVelocity),
	}
	switch res.Arrival {
	case NotArrived:
		v.W = 0
	case PositionArrivedYawPending:
		v.X, v.Y = 0, 0
	case InvalidChannel:
		return Velocity{}
	case Arrived:
	}
	return v
}
