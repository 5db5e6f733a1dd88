// Package retry runs an operation again after transient failures, doubling
// the wait between attempts.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config controls how many times an operation runs and how long the waits
// between attempts are.
type Config struct {
	// MaxAttempts counts the first call too. Values below 1 mean a single
	// attempt with no retries.
	MaxAttempts int
	// InitialDelay is the wait after the first failure. Each later wait is
	// twice the previous one, capped at MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// ShouldRetry classifies errors. A nil predicate retries everything;
	// returning false stops immediately with that error.
	ShouldRetry func(err error) bool
}

// DefaultConfig suits short network calls.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

func (cfg Config) normalized() Config {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = func(error) bool { return true }
	}
	return cfg
}

// Do runs fn until it succeeds, the attempt budget runs out, ShouldRetry
// rejects the error, or ctx is cancelled. The error of the final attempt is
// returned; on cancellation it is joined with the context error.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg = cfg.normalized()

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt >= cfg.MaxAttempts || !cfg.ShouldRetry(lastErr) {
			return lastErr
		}

		slog.Debug("retrying after failure",
			"attempt", attempt, "max", cfg.MaxAttempts,
			"err", lastErr, "delay", delay)

		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(delay):
		}

		if delay *= 2; delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
