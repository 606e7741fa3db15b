package chassis

import (
	"context"

	"go.viam.com/hoopbot/components/base"
	"go.viam.com/hoopbot/components/input/remote"
	"go.viam.com/hoopbot/navigation"
	"go.viam.com/hoopbot/utils"
)

// runGated calls step once per period while g is open.
func (c *Chassis) runGated(ctx context.Context, g *gate, step func(context.Context)) {
	ticker := c.clk.Ticker(c.cfg.Period)
	defer ticker.Stop()
	for {
		if !g.enter(ctx) {
			return
		}
		step(ctx)
		g.exit()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Chassis) manualStep(ctx context.Context) {
	axes := c.joystick.Axes()
	vx := c.cfg.Translation.Apply(float64(axes[remote.LeftX]))
	vy := c.cfg.Translation.Apply(float64(axes[remote.LeftY]))

	c.mu.Lock()
	locked, aim, spin := c.state.AimLocked, c.aim, c.state.SpinScale
	c.mu.Unlock()

	var w float64
	if locked {
		p := c.pose.Get()
		if bearing, ok := navigation.AimBearing(p, aim.x, aim.y); ok {
			delta := navigation.AngleTrans(p.Yaw, utils.RadToDeg(bearing))
			w = c.orientation.Compute(delta, 0) * c.cfg.AimGain
		}
	} else {
		w = c.cfg.Rotation.Apply(float64(axes[remote.RightX])) * spin
	}

	linear, angular := base.Planar(vx, vy, w)
	if err := c.sink.SetVelocity(ctx, linear, angular, nil); err != nil {
		c.warn.Do(func() {
			c.logger.Warnw("manual velocity command failed", "error", err)
		})
	}
}

// autoStep drives one cycle toward the selected catalogue point. Only the ring point's yaw is
// refreshed from the live pose each cycle; catalogue positions change only through overwrites.
func (c *Chassis) autoStep(ctx context.Context) {
	p := c.pose.Get()

	c.mu.Lock()
	if bearing, ok := c.ring.BasketBearing(p); ok {
		c.catalogue[c.cfg.RingPoint].Yaw = utils.RadToDeg(bearing)
	}
	idx := int(c.state.PointIndex)
	pt := c.catalogue[idx]
	c.mu.Unlock()

	if pt.Type == navigation.PointLoadBall && (p.X < c.cfg.LoadBallMinX || p.X > c.cfg.LoadBallMaxX) {
		c.logger.CDebugw(ctx, "left the load ball band, giving up the point", "point", idx, "x", p.X)
		c.status.ResetAndSend(PointArrived)
		c.stop(ctx)
		c.ctrl.ResetAndSend(SetManual)
		return
	}

	arrival, err := c.engine.Drive(ctx, pt.Type, pt.Target(), c.sink)
	if err != nil {
		c.warn.Do(func() {
			c.logger.Warnw("driving to point failed", "point", idx, "type", pt.Type, "error", err)
		})
		return
	}
	if arrival != navigation.Arrived {
		c.arrivedCycles = 0
		return
	}
	c.arrivedCycles++
	if c.arrivedCycles < c.cfg.ArrivalCycles {
		return
	}
	c.arrivedCycles = 0
	c.logger.CDebugw(ctx, "arrived", "point", idx)
	c.status.ResetAndSend(PointArrived)
	c.ctrl.ResetAndSend(SetManual)
}
