//go:build !linux

package genericlinux

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/hoopbot/components/board"
)

// Pin is unavailable outside Linux.
type Pin struct{}

// NewPin always fails outside Linux.
func NewPin(cfg board.PinConfig, output bool) (*Pin, error) {
	return nil, errors.New("gpio character devices are only supported on linux")
}

// Set is never reachable.
func (pin *Pin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	return errors.New("unsupported")
}

// Get is never reachable.
func (pin *Pin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	return false, errors.New("unsupported")
}

// Close is a no-op.
func (pin *Pin) Close() error {
	return nil
}
