// Package fake implements a fake current motor.
package fake

import (
	"context"
	"sync"

	"go.viam.com/hoopbot/components/motor"
)

// Motor records the current it is given and reports whatever feedback the test sets.
type Motor struct {
	mu       sync.Mutex
	feedback motor.Feedback
	current  int16
	commands int
}

var _ motor.CurrentMotor = (*Motor)(nil)

// SetCurrent records the command.
func (m *Motor) SetCurrent(ctx context.Context, current int16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = current
	m.commands++
	return nil
}

// Feedback returns the feedback set with SetFeedback.
func (m *Motor) Feedback() motor.Feedback {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feedback
}

// SetFeedback changes what Feedback reports.
func (m *Motor) SetFeedback(fb motor.Feedback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = fb
}

// Current returns the last commanded current.
func (m *Motor) Current() int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Commands returns how many SetCurrent calls were made.
func (m *Motor) Commands() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commands
}
