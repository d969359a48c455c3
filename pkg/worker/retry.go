package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jdziat/simple-job-worker/pkg/core"
)

// RetryConfig controls how often a failed job reset is written again before
// the worker gives up and leaves the job to be recovered by an operator.
type RetryConfig struct {
	// MaxAttempts counts the first write. Default 5.
	MaxAttempts int

	// InitialBackoff is the wait after the first failed reset. Default 100ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between resets. Default 5s.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the wait after every failed reset. Default 2.
	BackoffMultiplier float64

	// JitterFraction spreads concurrent runners apart. Default 0.1.
	JitterFraction float64
}

// DefaultRetryConfig returns the reset retry policy used when none is set.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// retryWithBackoff runs write until it succeeds, fails permanently or the
// attempts run out, and returns the last error.
func retryWithBackoff(ctx context.Context, config RetryConfig, write func() error) error {
	var lastErr error
	wait := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if lastErr = write(); lastErr == nil {
			return nil
		}
		if !IsRetryableError(lastErr) || attempt == config.MaxAttempts {
			break
		}

		jitter := time.Duration(float64(wait) * config.JitterFraction * (rand.Float64()*2 - 1))
		pause := wait + jitter
		if pause < 0 {
			pause = wait
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}

		wait = min(time.Duration(float64(wait)*config.BackoffMultiplier), config.MaxBackoff)
	}

	return lastErr
}

// IsRetryableError reports whether a failed job write may succeed when
// repeated. A job that is gone or now owned by another runner cannot be
// reset by this worker, and a cancelled write stays cancelled. Database
// errors such as lock timeouts and dropped connections are retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !errors.Is(err, core.ErrInvalidArgument) && !errors.Is(err, core.ErrInvalidOperation)
}
