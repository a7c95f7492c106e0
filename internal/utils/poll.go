package utils

import (
	"context"
	"time"
)

// Clock abstracts wall time so polling loops can be driven in tests
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock is the system clock
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Sleep waits for d on clock, returning ctx.Err() if cancelled first
func Sleep(ctx context.Context, clock Clock, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}

// PollUntil evaluates pred every interval until it returns true or timeout elapses.
// It returns whether pred became true. A cancelled context returns ctx.Err().
func PollUntil(ctx context.Context, clock Clock, interval, timeout time.Duration, pred func() bool) (bool, error) {
	deadline := clock.Now().Add(timeout)
	for {
		if pred() {
			return true, nil
		}
		if !clock.Now().Before(deadline) {
			return false, nil
		}
		if err := Sleep(ctx, clock, interval); err != nil {
			return false, err
		}
	}
}
