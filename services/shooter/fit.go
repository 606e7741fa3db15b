package shooter

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// SpeedFit maps the distance to the basket in mm to a flywheel speed.
type SpeedFit interface {
	Speed(radius float64) float64
}

// Quadratic is a*r² + b*r + c.
type Quadratic struct {
	A float64 `mapstructure:"a" json:"a"`
	B float64 `mapstructure:"b" json:"b"`
	C float64 `mapstructure:"c" json:"c"`
}

// Speed evaluates the polynomial at radius.
func (q Quadratic) Speed(radius float64) float64 {
	return q.A*radius*radius + q.B*radius + q.C
}

// Piecewise uses Inside below Split and Outside from Split on.
type Piecewise struct {
	Split   float64   `mapstructure:"split" json:"split"`
	Inside  Quadratic `mapstructure:"inside" json:"inside"`
	Outside Quadratic `mapstructure:"outside" json:"outside"`
}

// Speed evaluates the regime radius falls in.
func (p Piecewise) Speed(radius float64) float64 {
	if radius < p.Split {
		return p.Inside.Speed(radius)
	}
	return p.Outside.Speed(radius)
}

// Linear is Slope*(r-Offset) + Intercept.
type Linear struct {
	Slope     float64 `mapstructure:"slope" json:"slope"`
	Offset    float64 `mapstructure:"offset" json:"offset"`
	Intercept float64 `mapstructure:"intercept" json:"intercept"`
}

// Speed evaluates the line at radius.
func (l Linear) Speed(radius float64) float64 {
	return l.Slope*(radius-l.Offset) + l.Intercept
}

// DefaultPiecewise is the fit measured on the competition field. The split is the three point
// line.
var DefaultPiecewise = Piecewise{
	Split:   3125,
	Inside:  Quadratic{A: 9.9838e-04, B: -3.6070, C: 1.6728e+04},
	Outside: Quadratic{A: -9.1348e-05, B: 2.7080, C: 7.2400e+03},
}

// DefaultLinear is the older single line fit.
var DefaultLinear = Linear{Slope: 1.8877, Offset: 100, Intercept: 10406.43}

// FitKind selects the speed fit.
type FitKind string

// The speed fits.
const (
	QuadraticFit FitKind = "quadratic"
	LinearFit    FitKind = "linear"
)

// FitKindFromString parses a fit name, case insensitively.
func FitKindFromString(s string) (FitKind, error) {
	switch k := FitKind(strings.ToLower(strings.TrimSpace(s))); k {
	case QuadraticFit, LinearFit:
		return k, nil
	}
	return "", errors.Errorf("unknown speed fit %q", s)
}

// Sample is one calibration shot: the distance it was taken from and the speed that scored.
type Sample struct {
	Radius float64
	Speed  float64
}

// FitQuadratic returns the least squares quadratic through samples.
func FitQuadratic(samples []Sample) (Quadratic, error) {
	if len(samples) < 3 {
		return Quadratic{}, errors.Errorf("need at least 3 samples to fit a quadratic, got %d", len(samples))
	}
	a := mat.NewDense(len(samples), 3, nil)
	b := mat.NewVecDense(len(samples), nil)
	for i, s := range samples {
		if math.IsNaN(s.Radius) || math.IsNaN(s.Speed) {
			return Quadratic{}, errors.Errorf("sample %d is not a number", i)
		}
		a.Set(i, 0, s.Radius*s.Radius)
		a.Set(i, 1, s.Radius)
		a.Set(i, 2, 1)
		b.SetVec(i, s.Speed)
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return Quadratic{}, errors.Wrap(err, "solving least squares")
	}
	return Quadratic{A: x.AtVec(0), B: x.AtVec(1), C: x.AtVec(2)}, nil
}
