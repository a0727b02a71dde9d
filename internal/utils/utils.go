package utils

import (
	"context"
	"time"
)

var newTimer = time.NewTimer

// WaitFor blocks for d or until ctx is done, whichever comes first.
// The timer is released on both paths.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := newTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
