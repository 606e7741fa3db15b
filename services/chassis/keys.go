package chassis

import (
	"context"

	"go.viam.com/hoopbot/components/input/remote"
)

// The remote keys the chassis listens to.
const (
	KeyHalt   uint8 = 1
	KeyManual uint8 = 2
	KeyAim    uint8 = 3
	KeyPoint  uint8 = 4
	KeyReset  uint8 = 6
)

// RegisterKeys binds the chassis handlers on r.
func (c *Chassis) RegisterKeys(r *remote.Router) {
	r.Register(KeyAim, remote.PressUp, c.onKey)
	r.Register(KeyHalt, remote.PressDown, c.onKey)
	r.Register(KeyPoint, remote.PressDown, c.onKey)
	r.Register(KeyPoint, remote.PressUp, c.onKey)
	r.Register(KeyManual, remote.PressUp, c.onKey)
	r.Register(KeyReset, remote.PressUp, c.onKey)
}

func (c *Chassis) onKey(ctx context.Context, key uint8, event remote.EventType) {
	switch {
	case key == KeyAim && event == remote.PressUp:
		c.toggleAim()
	case key == KeyHalt && event == remote.PressDown:
		c.toggleHalt(ctx)
	case key == KeyPoint && event == remote.PressDown:
		if !c.ctrl.TrySend(RunPoint) {
			c.logger.CDebugw(ctx, "command mailbox full, dropping key", "key", key)
		}
	case key == KeyPoint && event == remote.PressUp:
		if !c.ctrl.TrySend(SetManual) {
			c.logger.CDebugw(ctx, "command mailbox full, dropping key", "key", key)
		}
	case key == KeyManual && event == remote.PressUp:
		c.Send(SetManual)
	case key == KeyReset && event == remote.PressUp:
		c.setHalt(ctx, false)
		c.Send(ResetAim)
		c.toggleSpin()
	}
	c.requestReport()
}
