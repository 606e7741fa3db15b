package chassis

import (
	"context"
	"sync"
)

// gate pauses a periodic task between iterations. suspend does not return while an iteration is
// in flight, so once it returns the task is guaranteed to be idle until resume.
type gate struct {
	iter sync.Mutex // held for the duration of one iteration

	mu      sync.Mutex
	running bool
	wake    chan struct{}
}

func newGate(running bool) *gate {
	return &gate{running: running, wake: make(chan struct{})}
}

// enter blocks until the gate is open and then marks an iteration as started. It returns false if
// ctx is done first.
func (g *gate) enter(ctx context.Context) bool {
	for {
		g.mu.Lock()
		if g.running {
			g.iter.Lock()
			g.mu.Unlock()
			return true
		}
		wake := g.wake
		g.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return false
		}
	}
}

func (g *gate) exit() {
	g.iter.Unlock()
}

func (g *gate) suspend() {
	g.mu.Lock()
	g.running = false
	g.mu.Unlock()

	// wait out the in-flight iteration, if any
	g.iter.Lock()
	g.iter.Unlock() //nolint:staticcheck
}

func (g *gate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return
	}
	g.running = true
	close(g.wake)
	g.wake = make(chan struct{})
}

func (g *gate) isRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}
