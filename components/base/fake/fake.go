// Package fake implements a fake drivetrain.
package fake

import (
	"context"
	"sync"

	"github.com/golang/geo/r3"

	"go.viam.com/hoopbot/components/base"
)

// Command is one SetVelocity call recorded by the fake.
type Command struct {
	Linear  r3.Vector
	Angular r3.Vector
}

// Drivetrain is a fake drivetrain that records what it was provided in each method.
type Drivetrain struct {
	mu       sync.Mutex
	last     Command
	halted   bool
	commands int
	onSet    func(Command)
}

var _ base.Drivetrain = (*Drivetrain)(nil)

// NewDrivetrain returns a halted fake drivetrain.
func NewDrivetrain() *Drivetrain {
	return &Drivetrain{halted: true}
}

// OnSetVelocity registers a callback invoked with every command. The simulator integrates pose
// from it.
func (d *Drivetrain) OnSetVelocity(fn func(Command)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSet = fn
}

// SetVelocity records the command.
func (d *Drivetrain) SetVelocity(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error {
	d.mu.Lock()
	cmd := Command{Linear: linear, Angular: angular}
	d.last = cmd
	d.commands++
	onSet := d.onSet
	d.mu.Unlock()
	if onSet != nil {
		onSet(cmd)
	}
	return nil
}

// SetHalt records the halt flag.
func (d *Drivetrain) SetHalt(ctx context.Context, halt bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.halted = halt
	return nil
}

// Last returns the most recent command.
func (d *Drivetrain) Last() Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Halted returns the recorded halt flag.
func (d *Drivetrain) Halted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.halted
}

// Count returns how many SetVelocity calls were made.
func (d *Drivetrain) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commands
}
