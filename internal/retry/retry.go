// Package retry runs an operation under a bounded attempt policy.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Base is the delay before the second attempt.
	Base time.Duration
	// Multiplier scales the delay after each failed retry. Values below 1 mean a fixed delay.
	Multiplier float64
	// Max caps a single delay. Zero means uncapped.
	Max time.Duration
}

// Default mirrors the remote API policy: three tries, 2s then 4s apart.
var Default = Policy{Attempts: 3, Base: 2 * time.Second, Multiplier: 2}

// Delay returns the wait before attempt n+1, after n failed attempts (n >= 1).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 || p.Base <= 0 {
		return 0
	}
	d := float64(p.Base)
	if p.Multiplier > 1 {
		for i := 1; i < n; i++ {
			d *= p.Multiplier
			if p.Max > 0 && time.Duration(d) >= p.Max {
				return p.Max
			}
		}
	}
	out := time.Duration(d)
	if p.Max > 0 && out > p.Max {
		out = p.Max
	}
	return out
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the timer-backed Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Hook observes each failed attempt that will be retried.
type Hook func(attempt int, delay time.Duration, err error)

type options struct {
	sleep   Sleeper
	onRetry Hook
}

type Option func(*options)

// WithSleeper replaces the timer wait, mainly for tests.
func WithSleeper(s Sleeper) Option { return func(o *options) { o.sleep = s } }

// OnRetry registers a hook called before each backoff wait.
func OnRetry(h Hook) Option { return func(o *options) { o.onRetry = h } }

// ExhaustedError is returned once every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Do calls fn until it succeeds, returns an error retryable rejects, the
// policy's attempts run out, or ctx is done. A nil retryable retries every error.
func Do[T any](ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{sleep: Sleep}
	for _, opt := range opts {
		opt(&o)
	}
	attempts := max(p.Attempts, 1)

	var zero T
	var last error
	for n := 1; n <= attempts; n++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		last = err
		if retryable != nil && !retryable(err) {
			return zero, err
		}
		if n == attempts {
			break
		}
		if ctx.Err() != nil {
			return zero, err
		}
		d := p.Delay(n)
		if o.onRetry != nil {
			o.onRetry(n, d, err)
		}
		if serr := o.sleep(ctx, d); serr != nil {
			return zero, err
		}
	}
	return zero, &ExhaustedError{Attempts: attempts, Last: last}
}
