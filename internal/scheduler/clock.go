package scheduler

import (
	"context"
	"time"

	"github.com/biocore-hpc/seqjob/internal/retry"
)

// Clock is the only source of suspension in the engine. Tests inject a
// clock that returns immediately.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock sleeps on the wall clock.
type RealClock struct{}

// Sleep waits for d or until ctx is done.
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	return retry.SleepContext(ctx, d)
}
