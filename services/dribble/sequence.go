package dribble

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/hoopbot/components/board"
	"go.viam.com/hoopbot/utils"
)

// sleep waits dur on the controller clock.
func (d *Dribble) sleep(ctx context.Context, dur time.Duration) error {
	return utils.SleepClock(ctx, d.clk, dur)
}

func (d *Dribble) set(ctx context.Context, pin board.GPIOPin, name string, high bool) error {
	if err := pin.Set(ctx, high, nil); err != nil {
		return errors.Wrapf(err, "setting %s cylinder", name)
	}
	return nil
}

func (d *Dribble) openClamp(ctx context.Context) error {
	if err := d.pushOut(ctx); err != nil {
		return err
	}
	d.setState(Opening)
	if err := d.sleep(ctx, d.cfg.ClampSettle); err != nil {
		return err
	}
	return d.set(ctx, d.deps.Clamp, "clamp", true)
}

func (d *Dribble) closeClamp(ctx context.Context) error {
	d.setState(Closing)
	return d.set(ctx, d.deps.Clamp, "clamp", false)
}

func (d *Dribble) hit(ctx context.Context) error {
	d.setState(Hitting)
	if err := d.set(ctx, d.deps.Top, "top", true); err != nil {
		return err
	}
	if err := d.sleep(ctx, d.cfg.HitPulse); err != nil {
		// never leave the hit cylinder extended
		return multierr.Combine(err, d.set(context.Background(), d.deps.Top, "top", false))
	}
	return d.set(ctx, d.deps.Top, "top", false)
}

func (d *Dribble) pushOut(ctx context.Context) error {
	d.setState(Pushing)
	return d.set(ctx, d.deps.Push, "push", true)
}

func (d *Dribble) pushIn(ctx context.Context) error {
	d.setState(Pushing)
	if err := d.set(ctx, d.deps.Push, "push", false); err != nil {
		return err
	}
	return d.closeClamp(ctx)
}

func (d *Dribble) anyPresence(ctx context.Context) bool {
	for _, s := range d.deps.Presence {
		if touched, err := s.Touched(ctx); err == nil && touched {
			return true
		}
	}
	return false
}

// wholeProcess bounces the ball once: release and hit it, wait for it to leave and come back,
// and close on it. It reports whether the ball is held afterwards. Sensor timeouts do not abort
// the sequence.
func (d *Dribble) wholeProcess(ctx context.Context) (bool, error) {
	if err := d.openClamp(ctx); err != nil {
		return false, err
	}
	if err := d.sleep(ctx, d.cfg.HitSettle); err != nil {
		return false, err
	}
	if err := d.hit(ctx); err != nil {
		return false, err
	}

	presence := d.deps.Presence[0]
	departed, err := presence.WaitFor(ctx, d.clk, false, d.cfg.PollInterval, d.cfg.DepartTimeout)
	if err != nil {
		return false, err
	}
	if !departed {
		d.logger.Warnw("ball did not leave the clamp", "timeout", d.cfg.DepartTimeout)
	}
	if err := d.sleep(ctx, d.cfg.ReboundDelay); err != nil {
		return false, err
	}

	returned, err := board.PollUntil(ctx, d.clk, d.cfg.PollInterval, d.cfg.ReboundTimeout, func() bool {
		return d.anyPresence(ctx)
	})
	if err != nil {
		return false, err
	}
	if !returned {
		d.logger.Warnw("ball did not come back", "timeout", d.cfg.ReboundTimeout)
	}
	if err := d.closeClamp(ctx); err != nil {
		return false, err
	}

	held, err := presence.Touched(ctx)
	if err != nil {
		return false, errors.Wrap(err, "reading presence sensor")
	}
	return held, nil
}

// handoff passes the held ball to the shooter through the catch drawer.
func (d *Dribble) handoff(ctx context.Context) error {
	d.setCatchState(ToCatch)
	d.setState(CatchingToCatch)
	out, err := d.deps.ProximityOut.WaitFor(ctx, d.clk, true, d.cfg.PollInterval, d.cfg.ProximityTimeout)
	if err != nil {
		return err
	}
	if !out {
		d.logger.Warnw("catch drawer did not reach the catch position", "timeout", d.cfg.ProximityTimeout)
	}

	if err := d.openClamp(ctx); err != nil {
		return err
	}
	dropped, err := d.deps.Presence[0].WaitFor(ctx, d.clk, false, d.cfg.PollInterval, d.cfg.DropTimeout)
	if err != nil {
		return err
	}
	if !dropped {
		d.logger.Warnw("ball did not drop into the drawer", "timeout", d.cfg.DropTimeout)
	}
	if err := d.sleep(ctx, d.cfg.HandoffSettle); err != nil {
		return err
	}
	if err := d.closeClamp(ctx); err != nil {
		return err
	}
	if err := d.pushIn(ctx); err != nil {
		return err
	}
	d.setCatchState(ToShoot)
	d.setState(CatchingToShoot)
	return nil
}
