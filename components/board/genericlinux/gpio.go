//go:build linux

// Package genericlinux drives GPIO lines through the Linux character device interface, by way of
// mkch's gpio package.
package genericlinux

import (
	"context"
	"sync"

	"github.com/mkch/gpio"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/hoopbot/components/board"
)

const consumer = "hoopbot"

// Pin is a single GPIO line. It opens the line lazily and keeps it open until Close.
type Pin struct {
	// These values should be considered immutable.
	devicePath string
	offset     uint32
	output     bool

	mu   sync.Mutex
	line *gpio.Line
}

var _ board.GPIOPin = (*Pin)(nil)

// NewPin returns an output (solenoid) or input (switch) pin described by cfg.
func NewPin(cfg board.PinConfig, output bool) (*Pin, error) {
	if err := cfg.Validate("pin"); err != nil {
		return nil, err
	}
	return &Pin{devicePath: cfg.Chip, offset: cfg.Offset, output: output}, nil
}

// This should only be called when the mutex is locked.
func (pin *Pin) open() error {
	if pin.line != nil {
		return nil
	}

	chip, err := gpio.OpenChip(pin.devicePath)
	if err != nil {
		return errors.Wrapf(err, "opening %s", pin.devicePath)
	}
	defer utils.UncheckedErrorFunc(chip.Close)

	// Outputs start low, which is every cylinder's rest position.
	var line *gpio.Line
	if pin.output {
		line, err = chip.OpenLine(pin.offset, 0, gpio.Output, consumer)
	} else {
		line, err = chip.OpenLine(pin.offset, 0, gpio.Input, consumer)
	}
	if err != nil {
		return errors.Wrapf(err, "opening line %d on %s", pin.offset, pin.devicePath)
	}
	pin.line = line
	return nil
}

// Set drives an output line.
func (pin *Pin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	if !pin.output {
		return errors.Errorf("line %d on %s is an input", pin.offset, pin.devicePath)
	}
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if err := pin.open(); err != nil {
		return err
	}
	var value byte
	if high {
		value = 1
	}
	return pin.line.SetValue(value)
}

// Get reads the line. Any non-zero value is high.
func (pin *Pin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if err := pin.open(); err != nil {
		return false, err
	}
	value, err := pin.line.Value()
	if err != nil {
		return false, err
	}
	return value != 0, nil
}

// Close releases the line.
func (pin *Pin) Close() error {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if pin.line == nil {
		return nil
	}
	err := pin.line.Close()
	pin.line = nil
	return err
}
