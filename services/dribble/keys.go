package dribble

import (
	"context"

	"go.viam.com/hoopbot/components/input/remote"
)

// The remote keys the dribble controller listens to.
const (
	KeyClampToggle  uint8 = 2
	KeyMoveToShoot  uint8 = 3
	KeyMoveToCatch  uint8 = 4
	KeyWholeProcess uint8 = 8
	KeyHandoff      uint8 = 9
	KeyPartProcess  uint8 = 10
)

// RegisterKeys binds the dribble handlers on r.
func (d *Dribble) RegisterKeys(r *remote.Router) {
	for _, key := range []uint8{
		KeyWholeProcess, KeyPartProcess, KeyClampToggle, KeyHandoff, KeyMoveToShoot, KeyMoveToCatch,
	} {
		r.Register(key, remote.PressDown, d.onKey)
	}
}

func (d *Dribble) onKey(ctx context.Context, key uint8, event remote.EventType) {
	switch key {
	case KeyWholeProcess:
		d.Send(WholeProcess)
	case KeyPartProcess:
		d.Send(PartProcess)
	case KeyClampToggle:
		// flips the remembered state and sends the event for the new one
		if d.clampKeyOpen.Swap(!d.clampKeyOpen.Load()) {
			d.Send(CloseClamp)
		} else {
			d.Send(OpenClamp)
		}
	case KeyMoveToShoot:
		d.Send(MoveToShoot)
	case KeyMoveToCatch:
		d.Send(MoveToCatch)
	case KeyHandoff:
		d.Send(HandoffBall)
		d.preSpeed(ctx)
	}
}
