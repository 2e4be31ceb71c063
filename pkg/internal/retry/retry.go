// Package retry implements exponential backoff with jitter for the
// probing channel's transient transport failures. Trimmed to the single
// policy httpchannel actually drives (WithExponentialBackoff); the
// teacher's custom-backoff and retryable-error-predicate surface had no
// caller in an HTTP-probing core.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config contains configuration for retry logic.
type Config struct {
	// MaxRetries is the maximum number of retry attempts (default: 3).
	MaxRetries int

	// InitialDelay is the delay before the first retry (default: 1 second).
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay (default: 60 seconds).
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier (default: 2 for exponential backoff).
	Multiplier float64

	// Jitter adds randomness to delays to prevent thundering herd (default: true).
	Jitter bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// RetryFunc represents a function that can be retried.
type RetryFunc func(ctx context.Context) error

// Do executes fn with exponential backoff, retrying every error up to
// cfg.MaxRetries times. A zero Config falls back to DefaultConfig.
func Do(ctx context.Context, cfg Config, fn RetryFunc) error {
	if cfg.MaxRetries == 0 {
		cfg = DefaultConfig()
	}

	var lastErr error
	attempt := 0

	for attempt <= cfg.MaxRetries {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("context cancelled after %d attempts: %w", attempt, lastErr)
			}
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		attempt++

		if attempt > cfg.MaxRetries {
			return fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, err)
		}

		delay := calculateDelay(attempt, cfg)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("context cancelled after %d attempts: %w", attempt, lastErr)
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}

// calculateDelay computes the exponential-backoff-with-jitter delay for the
// given attempt number.
func calculateDelay(attempt int, cfg Config) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		jitter := delay * 0.25 * (0.5 + (float64(time.Now().UnixNano()%1000) / 2000.0))
		delay += jitter
	}
	return time.Duration(delay)
}

// WithExponentialBackoff retries fn using DefaultConfig.
func WithExponentialBackoff(ctx context.Context, fn RetryFunc) error {
	return Do(ctx, DefaultConfig(), fn)
}
