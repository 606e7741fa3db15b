package dribble

import (
	"context"

	"go.viam.com/hoopbot/components/board"
)

// catchStep runs one cycle of the catch drawer loop. The drawer runs at CatchSpeed toward its
// end switch; once the switch trips, the rotor angle at that instant is latched and held.
func (d *Dribble) catchStep(ctx context.Context) {
	fb := d.deps.CatchMotor.Feedback()

	var (
		sensor board.Sensor
		speed  float64
	)
	if d.CatchState() == ToCatch {
		sensor, speed = d.deps.ProximityOut, d.cfg.CatchSpeed
	} else {
		sensor, speed = d.deps.ProximityIn, -d.cfg.CatchSpeed
	}
	tripped, err := sensor.Touched(ctx)
	if err != nil {
		d.warn.Do(func() {
			d.logger.Warnw("reading catch drawer switch failed", "error", err)
		})
		tripped = false
	}

	switch {
	case !tripped:
		d.catchTarget = speed
		d.latch = 0
	case d.latch == 0:
		d.latch = fb.RotorDegree
	default:
		d.catchTarget = d.catchAngle.Compute(d.latch, fb.RotorDegree)
	}

	current := d.catchSpeed.Compute(d.catchTarget, fb.RPM)
	if err := d.deps.CatchMotor.SetCurrent(ctx, int16(current)); err != nil {
		d.warn.Do(func() {
			d.logger.Warnw("setting catch motor current failed", "error", err)
		})
	}
}
