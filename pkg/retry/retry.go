// Package retry re-runs an operation with exponential backoff and jitter.
// The services use it to establish their first connection to PostgreSQL or
// Redis. Ledger writes never go through it: a failed payment is resubmitted
// by the caller, not replayed here.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Retryable marks err as worth another attempt under a policy without
// ShouldRetry.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// Permanent stops retrying regardless of ShouldRetry. Do returns the
// unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Policy describes how often and how long to wait.
type Policy struct {
	// Attempts counts the first call too.
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
	// Jitter spreads each wait by up to ±Jitter of its length.
	Jitter float64

	// ShouldRetry decides which errors are retried. Nil retries only
	// errors marked with Retryable.
	ShouldRetry func(error) bool
	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Initial <= 0 {
		p.Initial = 100 * time.Millisecond
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = 0
	}
	return p
}

// Retrier runs operations under one Policy.
type Retrier struct {
	policy Policy
}

func New(p Policy) *Retrier {
	return &Retrier{policy: p.normalized()}
}

// StartupRetrier retries every error except Permanent ones and context
// cancellation, waiting 0.5s, 1s, 2s... up to 10s between attempts.
// onRetry may be nil.
func StartupRetrier(attempts int, onRetry func(attempt int, err error, wait time.Duration)) *Retrier {
	return New(Policy{
		Attempts: attempts,
		Initial:  500 * time.Millisecond,
		Max:      10 * time.Second,
		Factor:   2,
		Jitter:   0.2,
		ShouldRetry: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
		OnRetry: onRetry,
	})
}

// Do calls op until it succeeds, returns an error that should not be
// retried, or the attempts run out. If ctx ends while waiting, the last
// error from op is returned.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	p := r.policy
	var last error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		last = unmark(err)

		if IsPermanent(err) || !r.shouldRetry(err) || attempt >= p.Attempts {
			return last
		}

		wait := r.backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, last, wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return last
		case <-t.C:
		}
	}
}

func (r *Retrier) shouldRetry(err error) bool {
	if r.policy.ShouldRetry != nil {
		return r.policy.ShouldRetry(err)
	}
	return IsRetryable(err)
}

// backoff is Initial * Factor^(attempt-1), capped at Max, then jittered.
func (r *Retrier) backoff(attempt int) time.Duration {
	p := r.policy
	d := float64(p.Initial)
	for i := 1; i < attempt && d < float64(p.Max); i++ {
		d *= p.Factor
	}
	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(max(d, 0))
}

// unmark strips the outer Retryable/Permanent wrapper.
func unmark(err error) error {
	switch e := err.(type) {
	case *retryableError:
		return e.err
	case *permanentError:
		return e.err
	}
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}
