package adapters

import (
	"context"
	"time"
)

// WaitOptions bounds a polling loop. Waits are never indefinite: a zero
// timeout falls back to DefaultWaitTimeout.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// Defaults for wait-until operations.
const (
	DefaultWaitTimeout  = 5 * time.Minute
	DefaultWaitInterval = 5 * time.Second
)

func (o WaitOptions) withDefaults() WaitOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultWaitTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultWaitInterval
	}
	return o
}

// WaitUntil polls cond at a fixed interval until it reports true, returns an
// error, or the timeout expires. The condition is evaluated immediately on
// entry. Expiry yields a *TimeoutError naming op.
func WaitUntil(ctx context.Context, op string, opts WaitOptions, cond func(context.Context) (bool, error)) error {
	opts = opts.withDefaults()

	deadline := time.Now().Add(opts.Timeout)
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Op: op, Timeout: opts.Timeout}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
