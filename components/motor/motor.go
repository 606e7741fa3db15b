// Package motor defines the current-controlled motors the mechanism controllers close loops on.
package motor

import "context"

// Feedback is the latest state a motor reported.
type Feedback struct {
	// RotorDegree is the multi-turn rotor angle since the first report, before any gearbox.
	RotorDegree float64
	RPM         float64
	Current     int16
}

// A CurrentMotor takes a raw current setpoint and reports rotor feedback.
type CurrentMotor interface {
	// SetCurrent commands the motor current in the driver's raw units.
	SetCurrent(ctx context.Context, current int16) error

	// Feedback returns the latest report. It never blocks.
	Feedback() Feedback
}
