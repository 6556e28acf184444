// Package retry runs AWS calls under a bounded, classified retry policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/LeoncioXavier/elasticache-inventory/internal/failure"
)

// Policy controls how retryable failures are retried.
type Policy struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
	Jitter          float64       `yaml:"jitter"`
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
		Multiplier:      2,
		Jitter:          0.5,
	}
}

// Retryable reports whether a failure kind may be retried under this policy.
func (p Policy) Retryable(kind failure.Kind) bool {
	return kind.Retryable()
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = d.Jitter
	}
	return p
}

// Backoff returns a fresh exponential backoff with jitter for this policy.
func (p Policy) Backoff() *backoff.ExponentialBackOff {
	p = p.normalized()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.Reset()
	return b
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier executes operations under a Policy.
type Retrier struct {
	policy  Policy
	sleep   SleepFunc
	onRetry func(attempt int, c failure.Classification, wait time.Duration)
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithSleep replaces the sleep function (tests).
func WithSleep(fn SleepFunc) Option {
	return func(r *Retrier) { r.sleep = fn }
}

// WithNotify registers a callback invoked before each retry.
func WithNotify(fn func(attempt int, c failure.Classification, wait time.Duration)) Option {
	return func(r *Retrier) { r.onRetry = fn }
}

// New creates a Retrier.
func New(policy Policy, opts ...Option) *Retrier {
	r := &Retrier{policy: policy.normalized(), sleep: Sleep}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do calls fn until it succeeds, fails with a non-retryable kind, the
// attempt budget is spent or ctx is done. It returns the number of attempts
// made and the last error.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	b := r.policy.Backoff()

	var err error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, err
		}

		c := failure.Classify(err)
		if !r.policy.Retryable(c.Kind) || attempt == r.policy.MaxAttempts {
			return attempt, err
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return attempt, err
		}
		if r.onRetry != nil {
			r.onRetry(attempt, c, wait)
		}
		if serr := r.sleep(ctx, wait); serr != nil {
			return attempt, err
		}
	}
	return r.policy.MaxAttempts, err
}
