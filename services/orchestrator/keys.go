package orchestrator

import (
	"context"

	"go.viam.com/hoopbot/components/input/remote"
)

// The remote keys the orchestrator listens to.
const (
	KeyRadium    uint8 = 4
	KeySmallLoop uint8 = 5
	KeyBigLoop   uint8 = 11
	KeyLeftBall  uint8 = 17
	KeyRightBall uint8 = 18
)

// RegisterKeys binds the orchestrator handlers on r. Register it after the other controllers:
// KeyRadium replaces their press-down bindings.
func (o *Orchestrator) RegisterKeys(r *remote.Router) {
	r.Register(KeyRadium, remote.PressDown, o.onKey)
	r.Register(KeyRightBall, remote.PressUp, o.onKey)
	r.Register(KeyLeftBall, remote.PressUp, o.onKey)
	r.Register(KeySmallLoop, remote.PressUp, o.onKey)
	r.Register(KeyBigLoop, remote.PressUp, o.onKey)
}

func (o *Orchestrator) onKey(ctx context.Context, key uint8, event remote.EventType) {
	switch key {
	case KeyRadium:
		o.Send(Radium)
	case KeyRightBall:
		o.Send(RightBall)
	case KeyLeftBall:
		o.Send(LeftBall)
	case KeySmallLoop:
		o.Send(SmallLoop)
	case KeyBigLoop:
		o.Send(BigLoop)
	}
}
