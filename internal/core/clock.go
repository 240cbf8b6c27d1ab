package core

import (
	"context"
	"time"
)

// Clock abstracts time for the poller and scheduler loops so tests can
// drive them without real sleeps.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled. It reports whether the
	// full duration elapsed.
	Sleep(ctx context.Context, d time.Duration) bool
}

type systemClock struct{}

// SystemClock returns the wall-clock implementation of Clock.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
