// Package retry runs an operation a bounded number of times with a fixed
// delay between attempts.
package retry

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Policy bounds a retried operation. Attempts counts the first call, so a
// policy with one attempt never retries.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultPolicy is used when a component is not given an explicit policy.
var DefaultPolicy = Policy{Attempts: 3, Delay: 2 * time.Second}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts are
// exhausted or ctx is done. It returns the last error seen.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	return goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		return goretry.RetryableError(err)
	})
}

func (p Policy) backoff() goretry.Backoff {
	retries := p.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	delay := p.Delay
	// NewConstant rejects non-positive durations.
	var base goretry.Backoff = goretry.BackoffFunc(func() (time.Duration, bool) { return delay, false })
	if delay > 0 {
		base = goretry.NewConstant(delay)
	}
	return goretry.WithMaxRetries(uint64(retries), base)
}
