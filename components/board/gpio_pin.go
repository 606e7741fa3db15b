// Package board defines the digital pins the mechanism controllers drive and sense.
package board

import (
	"context"

	"github.com/pkg/errors"
)

// A GPIOPin represents an individual GPIO pin on a board.
type GPIOPin interface {
	// Set sets the pin to either low or high.
	Set(ctx context.Context, high bool, extra map[string]interface{}) error

	// Get gets the high/low state of the pin.
	Get(ctx context.Context, extra map[string]interface{}) (bool, error)
}

// Toggle inverts the pin's current level.
func Toggle(ctx context.Context, pin GPIOPin) error {
	high, err := pin.Get(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "reading pin to toggle")
	}
	return pin.Set(ctx, !high, nil)
}

// PinConfig locates a pin on a Linux GPIO character device.
type PinConfig struct {
	Chip   string `mapstructure:"chip" json:"chip"`
	Offset uint32 `mapstructure:"offset" json:"offset"`
}

// Validate ensures all parts of the config are valid.
func (cfg PinConfig) Validate(path string) error {
	if cfg.Chip == "" {
		return errors.Errorf("%s: chip is required", path)
	}
	return nil
}
