package provider

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryPolicy decides how many times a remote call is attempted and how long
// to wait between attempts.
type RetryPolicy struct {
	maxAttempts int
	backoff     func(attempt int) time.Duration
	retryable   func(err error) bool
	sleep       func(ctx context.Context, d time.Duration) error
}

// RetryOption configures a RetryPolicy.
type RetryOption func(*RetryPolicy)

// WithSleep replaces the wait between attempts. Tests use it to avoid real delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(p *RetryPolicy) { p.sleep = fn }
}

// WithRetryable sets the predicate that decides whether a failure is retried.
func WithRetryable(fn func(err error) bool) RetryOption {
	return func(p *RetryPolicy) { p.retryable = fn }
}

// WithBackoff sets the wait before the attempt following failed attempt n (0-based).
func WithBackoff(fn func(attempt int) time.Duration) RetryOption {
	return func(p *RetryPolicy) { p.backoff = fn }
}

// NewRetryPolicy creates a policy that makes at most maxAttempts calls.
// Without options every error is retried and there is no wait.
func NewRetryPolicy(maxAttempts int, opts ...RetryOption) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	p := RetryPolicy{
		maxAttempts: maxAttempts,
		backoff:     func(int) time.Duration { return 0 },
		retryable:   func(error) bool { return true },
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// ExponentialBackoff waits base * factor^attempt after failed attempt n.
// With base 1s and factor 30 the waits are 1s, 30s, 900s.
func ExponentialBackoff(base time.Duration, factor float64) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(float64(base) * math.Pow(factor, float64(attempt)))
	}
}

// MaxAttempts returns the attempt budget.
func (p RetryPolicy) MaxAttempts() int { return p.maxAttempts }

// Backoff returns the wait after failed attempt n.
func (p RetryPolicy) Backoff(attempt int) time.Duration { return p.backoff(attempt) }

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. The last error is returned wrapped.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !p.retryable(lastErr) {
			return lastErr
		}

		if attempt < p.maxAttempts-1 {
			if err := p.sleep(ctx, p.backoff(attempt)); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("%d attempts exhausted: %w", p.maxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
