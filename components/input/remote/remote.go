// Package remote decodes the operator's handheld remote and dispatches its keys.
//
// The remote streams a five byte frame (key, then four signed joystick axes) many times a
// second. Key events are derived by comparing each frame's key to the previous frame's, and
// each (key, event) slot holds at most one handler. The joystick axes are not events; the
// manual teleop loop samples them through Axes.
package remote

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"go.viam.com/hoopbot/components/board"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/protocol"
)

// NumKeys is the number of keys on the remote. Keys are numbered from 1; 0 means no key.
const NumKeys = 18

// FrameSize is the size of an encoded Frame.
const FrameSize = 5

// EventType is a key transition.
type EventType int

// The key events.
const (
	PressDown EventType = iota
	Pressing
	PressUp

	numEvents
)

func (e EventType) String() string {
	switch e {
	case PressDown:
		return "PressDown"
	case Pressing:
		return "Pressing"
	case PressUp:
		return "PressUp"
	case numEvents:
	}
	return "unknown"
}

// Joystick axes, in frame order.
const (
	LeftX = iota
	LeftY
	RightX
	RightY
)

// Axes holds the four joystick readings.
type Axes [4]int8

// Frame is one remote report.
type Frame struct {
	Key  uint8
	Axes Axes
}

// DecodeFrame decodes exactly FrameSize bytes.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) != FrameSize {
		return Frame{}, errors.Errorf("remote frame is %d bytes, want %d", len(b), FrameSize)
	}
	f := Frame{Key: b[0]}
	for i := range f.Axes {
		f.Axes[i] = int8(b[i+1])
	}
	return f, nil
}

// Encode returns the wire form of f.
func (f Frame) Encode() []byte {
	b := make([]byte, FrameSize)
	b[0] = f.Key
	for i, a := range f.Axes {
		b[i+1] = byte(a)
	}
	return b
}

// Handler is called with the key and event that fired. Handlers run on the feed goroutine, so
// they must hand work off rather than block, and they log their own errors.
type Handler func(ctx context.Context, key uint8, event EventType)

// Router turns frames into key events.
type Router struct {
	logger logging.Logger

	mu       sync.RWMutex
	handlers [NumKeys][numEvents]Handler

	feedMu  sync.Mutex
	lastKey uint8
	axes    atomic.Uint32

	led       board.GPIOPin
	heartbeat rate.Sometimes
}

// Option configures a Router.
type Option func(*Router)

// WithHeartbeat toggles led at most every interval while frames arrive.
func WithHeartbeat(led board.GPIOPin, interval time.Duration) Option {
	return func(r *Router) {
		r.led = led
		r.heartbeat = rate.Sometimes{Interval: interval}
	}
}

// NewRouter returns a router with no handlers.
func NewRouter(logger logging.Logger, opts ...Option) *Router {
	r := &Router{logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func validSlot(key uint8, event EventType) bool {
	return key >= 1 && key <= NumKeys && event >= 0 && event < numEvents
}

// Register sets the handler for (key, event), replacing any earlier one. Keys outside 1..18
// are ignored and reported as false.
func (r *Router) Register(key uint8, event EventType, h Handler) bool {
	if !validSlot(key, event) {
		r.logger.Warnw("ignoring handler for invalid key", "key", key, "event", event)
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key-1][event] = h
	return true
}

// Unregister clears the handler for (key, event).
func (r *Router) Unregister(key uint8, event EventType) {
	if !validSlot(key, event) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key-1][event] = nil
}

func (r *Router) dispatch(ctx context.Context, key uint8, event EventType) {
	if !validSlot(key, event) {
		return
	}
	r.mu.RLock()
	h := r.handlers[key-1][event]
	r.mu.RUnlock()
	if h != nil {
		h(ctx, key, event)
	}
}

// Feed stores the frame's axes and dispatches the key events it implies.
func (r *Router) Feed(ctx context.Context, f Frame) {
	r.axes.Store(packAxes(f.Axes))
	if r.led != nil {
		r.heartbeat.Do(func() {
			if err := board.Toggle(ctx, r.led); err != nil {
				r.logger.Debugw("heartbeat led toggle failed", "error", err)
			}
		})
	}

	r.feedMu.Lock()
	defer r.feedMu.Unlock()
	prev := r.lastKey
	r.lastKey = f.Key

	switch {
	case prev != 0 && f.Key == 0:
		r.dispatch(ctx, prev, PressUp)
	case prev != 0 && f.Key == prev:
		r.dispatch(ctx, f.Key, Pressing)
	case prev != 0:
		r.dispatch(ctx, prev, PressUp)
		r.dispatch(ctx, f.Key, PressDown)
	case f.Key != 0:
		r.dispatch(ctx, f.Key, PressDown)
	}
}

// Axes returns the most recent joystick readings.
func (r *Router) Axes() Axes {
	return unpackAxes(r.axes.Load())
}

func packAxes(a Axes) uint32 {
	return uint32(uint8(a[0])) | uint32(uint8(a[1]))<<8 | uint32(uint8(a[2]))<<16 | uint32(uint8(a[3]))<<24
}

func unpackAxes(v uint32) Axes {
	return Axes{int8(v), int8(v >> 8), int8(v >> 16), int8(v >> 24)}
}

// Run feeds remote frames decoded from r until r fails or ctx is done.
func (r *Router) Run(ctx context.Context, rd io.Reader) error {
	dec := protocol.NewDecoder(rd)
	for ctx.Err() == nil {
		pf, err := dec.Next()
		if err != nil {
			if errors.Is(err, protocol.ErrCorrupt) {
				r.logger.Debugw("skipping corrupt remote frame", "error", err)
				continue
			}
			if ctx.Err() != nil {
				break
			}
			return errors.Wrap(err, "reading remote stream")
		}
		if pf.ID != protocol.IDRemote || pf.Type != protocol.TypeUint8 {
			continue
		}
		f, err := DecodeFrame(pf.Payload)
		if err != nil {
			r.logger.Debugw("skipping remote frame", "error", err)
			continue
		}
		r.Feed(ctx, f)
	}
	return ctx.Err()
}
