// Package retry provides a generic retry helper for node and model calls,
// grounded on this codebase's ExponentialBackoffRetry and RetryConfig but
// generalized over the result type and reworked so callers hand it a
// fresh computation each attempt rather than the untyped, single-shot
// closure the original took.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy configures retry behavior. RetryableErrors decides whether an
// error should trigger another attempt; nil means retry every error.
type Policy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	Jitter          float64 // fraction of delay, e.g. 0.25 for ±25%
	RetryableErrors func(error) bool
}

// DefaultPolicy mirrors this codebase's DefaultRetryConfig.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        0.25,
	}
}

// Do invokes op up to policy.MaxAttempts times, backing off exponentially
// with jitter between attempts. op is a factory for a fresh computation:
// callers must not memoize the result of a prior attempt and pass it in,
// since Do calls op() anew on every attempt including the first.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := policy.InitialDelay
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry: cancelled: %w", ctx.Err())
		default:
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if policy.RetryableErrors != nil && !policy.RetryableErrors(err) {
			return zero, fmt.Errorf("retry: non-retryable error: %w", err)
		}

		if attempt == policy.MaxAttempts-1 {
			break
		}

		wait := delay
		if policy.Jitter > 0 {
			//nolint:gosec // jitter does not need a cryptographic RNG
			jitter := time.Duration(float64(wait) * policy.Jitter * (2*rand.Float64() - 1))
			wait += jitter
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return zero, fmt.Errorf("retry: cancelled during backoff: %w", ctx.Err())
		}

		if policy.BackoffFactor > 0 {
			next := time.Duration(float64(delay) * policy.BackoffFactor)
			if policy.MaxDelay > 0 && next > policy.MaxDelay {
				next = policy.MaxDelay
			}
			delay = next
		}
	}

	return zero, fmt.Errorf("retry: max attempts (%d) exceeded: %w", policy.MaxAttempts, lastErr)
}

// BackoffDelay exposes the delay-calculation formula for tests and for
// callers that want to preview the schedule without executing it.
func BackoffDelay(policy Policy, attempt int) time.Duration {
	d := float64(policy.InitialDelay) * math.Pow(policy.BackoffFactor, float64(attempt))
	if policy.MaxDelay > 0 && time.Duration(d) > policy.MaxDelay {
		return policy.MaxDelay
	}
	return time.Duration(d)
}
