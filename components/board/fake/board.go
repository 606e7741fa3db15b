// Package fake implements a fake board.
package fake

import (
	"context"
	"sync"

	"go.viam.com/hoopbot/components/board"
)

// Board hands out fake pins by name, creating them on first use.
type Board struct {
	mu   sync.Mutex
	pins map[string]*GPIOPin
}

// NewBoard returns a new fake board.
func NewBoard() *Board {
	return &Board{pins: map[string]*GPIOPin{}}
}

// GPIOPinByName returns the named pin, creating a low pin if it does not exist yet.
func (b *Board) GPIOPinByName(name string) *GPIOPin {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[name]
	if !ok {
		p = &GPIOPin{}
		b.pins[name] = p
	}
	return p
}

// Sensor returns a sensor reading the named pin.
func (b *Board) Sensor(name string, touchedLevel bool) board.Sensor {
	return board.Sensor{Pin: b.GPIOPinByName(name), TouchedLevel: touchedLevel}
}

// A GPIOPin reads back the same set values and records every Set.
type GPIOPin struct {
	mu      sync.Mutex
	high    bool
	history []bool
	getErr  error
}

var _ board.GPIOPin = (*GPIOPin)(nil)

// Set sets the pin to either low or high.
func (gp *GPIOPin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.high = high
	gp.history = append(gp.history, high)
	return nil
}

// Get gets the high/low state of the pin.
func (gp *GPIOPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	if gp.getErr != nil {
		return false, gp.getErr
	}
	return gp.high, nil
}

// SetLevel changes the level without recording it, the way an external signal would.
func (gp *GPIOPin) SetLevel(high bool) {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.high = high
}

// SetGetError makes every Get fail with err until it is called again with nil.
func (gp *GPIOPin) SetGetError(err error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.getErr = err
}

// History returns the levels passed to Set, oldest first.
func (gp *GPIOPin) History() []bool {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return append([]bool(nil), gp.history...)
}

// High returns the current level.
func (gp *GPIOPin) High() bool {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.high
}
