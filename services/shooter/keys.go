package shooter

import (
	"context"

	"go.viam.com/hoopbot/components/input/remote"
)

// The remote keys the shooter listens to.
const (
	KeyIncrement   uint8 = 5
	KeyEnableCycle uint8 = 6
	KeyDecrement   uint8 = 11
	KeyDisable     uint8 = 12
)

// RegisterKeys binds the shooter handlers on r.
func (s *Shooter) RegisterKeys(r *remote.Router) {
	for _, key := range []uint8{
		KeyIncrement, KeyDecrement, KeyEnableCycle, KeyDisable,
	} {
		r.Register(key, remote.PressDown, s.onKey)
	}
}

func (s *Shooter) onKey(ctx context.Context, key uint8, event remote.EventType) {
	var ev Event
	switch key {
	case KeyIncrement:
		ev = Event{Type: IncrementSpeed}
	case KeyDecrement:
		ev = Event{Type: DecrementSpeed}
	case KeyEnableCycle:
		ev = Event{Type: EnableCycle}
	case KeyDisable:
		ev = Event{Type: Disable}
	default:
		return
	}
	//nolint:errcheck
	s.Send(ctx, ev)
}
