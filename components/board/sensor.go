package board

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// A Sensor is a discrete switch (photoelectric or proximity) read through a GPIOPin.
type Sensor struct {
	Pin GPIOPin
	// TouchedLevel is the pin level that means the switch is triggered.
	TouchedLevel bool
}

// Touched reports whether the switch is triggered.
func (s Sensor) Touched(ctx context.Context) (bool, error) {
	level, err := s.Pin.Get(ctx, nil)
	if err != nil {
		return false, err
	}
	return level == s.TouchedLevel, nil
}

// WaitFor polls the sensor every interval until it reads want or timeout elapses. It returns
// whether the level was reached. A read error counts as not reached for that poll.
func (s Sensor) WaitFor(ctx context.Context, clk clock.Clock, want bool, interval, timeout time.Duration) (bool, error) {
	return PollUntil(ctx, clk, interval, timeout, func() bool {
		touched, err := s.Touched(ctx)
		return err == nil && touched == want
	})
}

// PollUntil calls cond every interval until it returns true or timeout elapses. A zero timeout
// polls once. It only returns an error when ctx is done.
func PollUntil(ctx context.Context, clk clock.Clock, interval, timeout time.Duration, cond func() bool) (bool, error) {
	if cond() {
		return true, nil
	}
	if timeout <= 0 {
		return false, nil
	}
	deadline := clk.Timer(timeout)
	defer deadline.Stop()
	ticker := clk.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false, errors.Wrap(ctx.Err(), "waiting on sensor")
		case <-deadline.C:
			return cond(), nil
		case <-ticker.C:
			if cond() {
				return true, nil
			}
		}
	}
}
