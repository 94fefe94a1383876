// Package retry runs operations with a bounded, fixed-delay retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/biocore-hpc/seqjob/internal/constants"
	"github.com/biocore-hpc/seqjob/internal/errs"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds retry parameters for Do.
type Config struct {
	// MaxRetries is the number of additional attempts after the first
	// failure. MaxRetries=3 means at most 4 attempts.
	MaxRetries int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
	// Retryable decides whether an error warrants another attempt.
	// Nil means IsTransport.
	Retryable func(error) bool
	// Sleep replaces the real timer in tests. Nil means SleepContext.
	Sleep SleepFunc
	// OnRetry is invoked before each retry attempt
	OnRetry func(attempt int, err error)
}

// DefaultConfig returns the scheduler query policy: 3 retries, 10s apart.
func DefaultConfig() Config {
	return Config{
		MaxRetries: constants.QueryRetries,
		Delay:      constants.QueryRetryDelay,
	}
}

// IsTransport reports whether err is a failed shell or HTTP invocation.
// Job-content failures and configuration errors are never retried.
func IsTransport(err error) bool {
	var execErr *errs.ExecFailedError
	return errors.As(err, &execErr)
}

// SleepContext waits for d, returning early with ctx.Err() on cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs operation until it succeeds, returns a non-retryable error, or
// exhausts config.MaxRetries. After exhaustion the last error is returned
// unwrapped so callers can still inspect it with errors.As.
func Do(ctx context.Context, config Config, operation func() error) error {
	retryable := config.Retryable
	if retryable == nil {
		retryable = IsTransport
	}
	sleep := config.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			if config.OnRetry != nil {
				config.OnRetry(attempt, lastErr)
			}
			if err := sleep(ctx, config.Delay); err != nil {
				return fmt.Errorf("retry interrupted: %w", err)
			}
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
