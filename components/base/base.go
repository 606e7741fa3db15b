// Package base defines the drivetrain sink the chassis controller commands.
package base

import (
	"context"

	"github.com/golang/geo/r3"
)

// A Drivetrain is the only output of the chassis controller toward the wheels. Velocities are in
// the chassis frame: linear is (vx, vy, 0) and angular is (0, 0, w). Units are the wheel
// controller's own; the controller never converts them.
type Drivetrain interface {
	// SetVelocity commands the chassis velocity.
	SetVelocity(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error

	// SetHalt locks (true) or releases (false) the wheels.
	SetHalt(ctx context.Context, halt bool) error
}

// Stop commands zero velocity.
func Stop(ctx context.Context, d Drivetrain) error {
	return d.SetVelocity(ctx, r3.Vector{}, r3.Vector{}, nil)
}

// Planar builds the linear and angular vectors for a planar velocity.
func Planar(vx, vy, w float64) (linear, angular r3.Vector) {
	return r3.Vector{X: vx, Y: vy}, r3.Vector{Z: w}
}
