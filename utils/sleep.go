package utils

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// SleepClock waits d on clk. It returns ctx.Err() if ctx is done first.
func SleepClock(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
