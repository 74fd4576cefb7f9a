// Package retry runs an operation until it succeeds, fails permanently or
// runs out of attempts, sleeping with capped exponential backoff in between.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Config holds configuration for retry behavior.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	// Zero means a single attempt.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the wait after every retry. Defaults to 2.
	BackoffFactor float64

	// Jitter adds up to one extra backoff of random delay to each wait.
	Jitter bool
}

// DefaultConfig returns the configuration used for connecting to
// collaborators at startup.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     5,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

func (c Config) withDefaults() Config {
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2.0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 10 * time.Millisecond
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Backoff returns the wait before retry number attempt (1-based), ignoring
// Jitter. It lets callers that hand retries to someone else, such as a
// queue's redelivery, follow the same schedule.
func (c Config) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	wait := c.InitialBackoff
	for i := 1; i < attempt; i++ {
		wait = time.Duration(float64(wait) * c.BackoffFactor)
		if wait >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return min(wait, c.MaxBackoff)
}

// OnRetryFunc is called before each retry. attempt starts at 1.
type OnRetryFunc func(attempt int, err error, wait time.Duration)

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it returns nil, returns an error marked Permanent, or
// the retries are exhausted. A nil isRetryable treats every error as
// retryable.
func Do(ctx context.Context, cfg Config, isRetryable func(error) bool, onRetry OnRetryFunc, fn func(ctx context.Context) error) error {
	_, err := Value(ctx, cfg, isRetryable, onRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, cfg Config, isRetryable func(error) bool, onRetry OnRetryFunc, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	var zero T
	backoff := cfg.InitialBackoff

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if isRetryable != nil && !isRetryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxRetries {
			return zero, fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}

		wait := backoff
		if cfg.Jitter {
			wait += rand.N(backoff)
		}
		if onRetry != nil {
			onRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry interrupted: %w", errors.Join(ctx.Err(), err))
		case <-timer.C:
		}

		backoff = min(time.Duration(float64(backoff)*cfg.BackoffFactor), cfg.MaxBackoff)
	}
}
