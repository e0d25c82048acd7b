package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/vocepta/pkg/provider"
)

// Retry defaults, matching the turn pipeline's budget: three attempts half a
// second apart keep a flaky vendor call under the conversational latency
// ceiling.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 500 * time.Millisecond
)

// RetryConfig holds tuning knobs for [Retry] and [RetryResult].
type RetryConfig struct {
	// Name is a human-readable label used in log messages ("stt", "llm", ...).
	Name string

	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3.
	MaxAttempts int

	// Delay is the fixed pause between attempts. Default: 500ms.
	Delay time.Duration
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultRetryDelay
	}
	return cfg
}

// Retry runs fn up to cfg.MaxAttempts times with a fixed delay between
// attempts, returning nil on the first success and the last error on
// exhaustion.
//
// Two conditions short-circuit the loop: a cancelled context, and an error
// whose provider kind is not retryable ([provider.Retryable]); credential
// and input problems will not improve on a second attempt.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := RetryResult(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryResult is [Retry] for functions that return a value. This is a
// package-level function because Go does not support method-level type
// parameters.
func RetryResult[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !provider.Retryable(err) {
			slog.Warn("attempt failed, not retryable",
				"name", cfg.Name, "attempt", attempt, "error", err)
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		slog.Warn("attempt failed, retrying",
			"name", cfg.Name,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"delay", cfg.Delay,
			"error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(cfg.Delay):
		}
	}

	slog.Error("all attempts exhausted",
		"name", cfg.Name, "max_attempts", cfg.MaxAttempts, "error", lastErr)
	return zero, lastErr
}
