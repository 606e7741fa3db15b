// Package control implements the PID primitive shared by the navigation engine and the
// mechanism controllers.
package control

import (
	"math"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// PIDMode selects the PID update law.
type PIDMode int

const (
	// PositionPID computes the output directly from the current error.
	PositionPID PIDMode = iota
	// DeltaPID computes an increment that is added to the previous output.
	DeltaPID
)

func (m PIDMode) String() string {
	switch m {
	case PositionPID:
		return "position"
	case DeltaPID:
		return "delta"
	}
	return "unknown"
}

// MarshalText encodes the mode by name.
func (m PIDMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// PIDModeFromString parses "position" or "delta".
func PIDModeFromString(s string) (PIDMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "position", "pos":
		return PositionPID, nil
	case "delta":
		return DeltaPID, nil
	}
	return 0, errors.Errorf("unknown pid mode %q", s)
}

// PIDConfig describes a PID controller. The argument order of NewPIDConfig mirrors the
// (max output, max integral, deadband, max error, mode, kp, ki, kd) tuple used on the robot.
type PIDConfig struct {
	MaxOutput   float64 `mapstructure:"max_output" json:"max_output"`
	MaxIntegral float64 `mapstructure:"max_integral" json:"max_integral"`
	// Deadband zeroes the output while |error| is below it.
	Deadband float64 `mapstructure:"deadband" json:"deadband"`
	// MaxError clamps |error| when positive.
	MaxError float64 `mapstructure:"max_error" json:"max_error"`
	Mode     PIDMode `mapstructure:"mode" json:"mode"`
	Kp       float64 `mapstructure:"kp" json:"kp"`
	Ki       float64 `mapstructure:"ki" json:"ki"`
	Kd       float64 `mapstructure:"kd" json:"kd"`
}

// NewPIDConfig builds a PIDConfig from the positional tuple.
func NewPIDConfig(maxOut, maxIntegral, deadband, maxErr float64, mode PIDMode, kp, ki, kd float64) PIDConfig {
	return PIDConfig{
		MaxOutput:   maxOut,
		MaxIntegral: maxIntegral,
		Deadband:    deadband,
		MaxError:    maxErr,
		Mode:        mode,
		Kp:          kp,
		Ki:          ki,
		Kd:          kd,
	}
}

// Validate returns every problem with the config combined.
func (cfg PIDConfig) Validate(path string) error {
	var errs error
	if cfg.MaxOutput <= 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: max_output must be positive, got %v", path, cfg.MaxOutput))
	}
	if cfg.MaxIntegral < 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: max_integral cannot be negative", path))
	}
	if cfg.Deadband < 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: deadband cannot be negative", path))
	}
	if cfg.MaxError < 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: max_error cannot be negative", path))
	}
	if cfg.Mode != PositionPID && cfg.Mode != DeltaPID {
		errs = multierr.Append(errs, errors.Errorf("%s: unknown pid mode %d", path, cfg.Mode))
	}
	return errs
}

// PID is a discrete PID controller. It is called once per control cycle, so it has no notion of
// dt; gains are tuned per cycle.
type PID struct {
	mu  sync.Mutex
	cfg PIDConfig

	integral float64
	lastErr  float64
	prevErr  float64
	lastOut  float64
}

// NewPID returns a PID with cleared history.
func NewPID(cfg PIDConfig) *PID {
	return &PID{cfg: cfg}
}

// Compute returns the output for one cycle.
func (p *PID) Compute(target, measured float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := target - measured
	if math.IsNaN(err) {
		return 0
	}
	if math.Abs(err) < p.cfg.Deadband {
		return 0
	}
	if p.cfg.MaxError > 0 {
		err = clamp(err, p.cfg.MaxError)
	}

	var out float64
	switch p.cfg.Mode {
	case DeltaPID:
		delta := p.cfg.Kp*(err-p.lastErr) + p.cfg.Ki*err + p.cfg.Kd*(err-2*p.lastErr+p.prevErr)
		out = p.lastOut + delta
	default:
		p.integral = clamp(p.integral+p.cfg.Ki*err, p.cfg.MaxIntegral)
		out = p.cfg.Kp*err + p.integral + p.cfg.Kd*(err-p.lastErr)
	}
	out = clamp(out, p.cfg.MaxOutput)

	p.prevErr = p.lastErr
	p.lastErr = err
	p.lastOut = out
	return out
}

// ResetIntegral zeroes the accumulated integral term.
func (p *PID) ResetIntegral() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.integral = 0
}

// Integral returns the accumulated integral term.
func (p *PID) Integral() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.integral
}

// Reset clears all history.
func (p *PID) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.integral = 0
	p.lastErr = 0
	p.prevErr = 0
	p.lastOut = 0
}

// Config returns the controller's config.
func (p *PID) Config() PIDConfig {
	return p.cfg
}

func clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
