package chassis

import (
	"context"

	"go.viam.com/hoopbot/components/base"
)

func (c *Chassis) dispatch(ctx context.Context) {
	for {
		msg, err := c.ctrl.Receive(ctx)
		if err != nil {
			return
		}
		if !c.ctrl.Fresh(ctx, msg, c.cfg.Staleness) {
			continue
		}
		c.apply(ctx, msg.Value)
	}
}

func (c *Chassis) apply(ctx context.Context, cmd Command) {
	c.logger.CDebugw(ctx, "applying command", "command", cmd)
	switch cmd {
	case RunPoint:
		c.runAuto()
	case SetManual:
		c.runManual()
	case SetHalt:
		c.setHalt(ctx, true)
	case SetUnhalt:
		c.setHalt(ctx, false)
	case SetNoTask:
		c.manual.suspend()
		c.auto.suspend()
		c.setMode(ModeNoTask)
		c.stop(ctx)
	case RunNearestRing:
		c.mu.Lock()
		c.state.PointIndex = uint8(c.cfg.RingPoint)
		c.mu.Unlock()
		c.runAuto()
	case AimBasket:
		c.toggleAim()
	case AimLeft:
		c.runManual()
		c.lockAim(c.cfg.AimLeftX)
	case AimRight:
		c.runManual()
		c.lockAim(c.cfg.AimRightX)
	case ResetAim:
		c.mu.Lock()
		c.state.AimLocked = false
		c.mu.Unlock()
	default:
		c.logger.Warnw("ignoring unknown command", "command", int(cmd))
	}
}

func (c *Chassis) runAuto() {
	c.manual.suspend()
	c.auto.suspend()
	c.arrivedCycles = 0
	c.setMode(ModeAuto)
	c.auto.resume()
}

func (c *Chassis) runManual() {
	c.auto.suspend()
	c.setMode(ModeManual)
	c.manual.resume()
}

func (c *Chassis) setMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Mode = m
}

func (c *Chassis) setHalt(ctx context.Context, halt bool) {
	c.mu.Lock()
	c.state.Halted = halt
	c.mu.Unlock()

	c.stop(ctx)
	if err := c.sink.SetHalt(ctx, halt); err != nil {
		c.logger.Warnw("setting drivetrain halt failed", "halt", halt, "error", err)
	}
}

func (c *Chassis) toggleHalt(ctx context.Context) {
	c.setHalt(ctx, !c.State().Halted)
}

func (c *Chassis) toggleAim() {
	bx, by := c.ring.Basket()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.AimLocked = !c.state.AimLocked
	c.aim = aimTarget{x: bx, y: by}
}

// lockAim aims at (x, current y), a point straight along the field's x axis.
func (c *Chassis) lockAim(x float64) {
	y := c.pose.Get().Y
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.AimLocked = true
	c.aim = aimTarget{x: x, y: y}
}

func (c *Chassis) toggleSpin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.SpinScale == 1 {
		c.state.SpinScale = c.cfg.SlowSpin
	} else {
		c.state.SpinScale = 1
	}
}

func (c *Chassis) stop(ctx context.Context) {
	if err := base.Stop(ctx, c.sink); err != nil {
		c.logger.Warnw("stopping drivetrain failed", "error", err)
	}
}
