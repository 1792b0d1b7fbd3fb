package processor

import (
	"context"
	"time"
)

// Clock abstracts time for the processor's two suspension points (the
// pause wait and the post-error backoff), so pause/cancel latency is
// testable without real timers.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is done, returning ctx's error in
	// the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SystemClock is the real wall clock.
var SystemClock Clock = systemClock{}
