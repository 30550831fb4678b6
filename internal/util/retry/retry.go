// Package retry provides a single retry policy used by all adapters.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy holds retry configuration.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Retryable decides whether an error is worth another attempt.
	// A nil predicate retries everything except context cancellation.
	Retryable func(error) bool
}

// Option is a functional option for retry configuration.
type Option func(*Policy)

// Do executes the operation under the given policy. Delays between attempts
// grow by Multiplier up to MaxDelay; Multiplier 1.0 gives fixed backoff.
// Context cancellation is respected between attempts.
func Do(ctx context.Context, operation func() error, opts ...Option) error {
	p := &Policy{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	for _, opt := range opts {
		opt(p)
	}

	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !p.retryable(err) {
			return fmt.Errorf("not retrying after attempt %d: %w", attempt, err)
		}

		if attempt < p.MaxAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * p.Multiplier)
				if delay > p.MaxDelay {
					delay = p.MaxDelay
				}
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", p.MaxAttempts, lastErr)
}

func (p *Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		p.MaxAttempts = n
	}
}

// WithInitialDelay sets the initial delay between attempts.
func WithInitialDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.InitialDelay = d
	}
}

// WithMaxDelay sets the maximum delay between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.MaxDelay = d
	}
}

// WithFixedBackoff makes every delay equal to the initial delay.
func WithFixedBackoff() Option {
	return func(p *Policy) {
		p.Multiplier = 1.0
	}
}

// WithRetryable sets the predicate deciding which errors are retried.
func WithRetryable(f func(error) bool) Option {
	return func(p *Policy) {
		p.Retryable = f
	}
}
