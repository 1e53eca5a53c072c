// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package backend

import (
	"context"
	"math/rand/v2"
	"time"

	vgerr "github.com/vgate-dev/vgate/pkg/errors"
)

// RetryPolicy is a reusable retry strategy: attempt bound, backoff shape, and
// a retryable-error predicate. The same policy object is injected into the
// Client and the model pool prober instead of duplicating retry loops per
// call site.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the backoff before the second attempt.
	BaseDelay time.Duration
	// Factor multiplies the delay after every failed attempt.
	Factor float64
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// Jitter is the fraction of the delay randomized on top of it ([0,1]).
	Jitter float64
	// Retryable decides whether an error is worth another attempt.
	// When nil, DefaultRetryable is used.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the backend defaults: 3 attempts, exponential
// backoff from 100ms with factor 2 capped at 2s, plus jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		Factor:      2,
		MaxDelay:    2 * time.Second,
		Jitter:      0.2,
		Retryable:   DefaultRetryable,
	}
}

// DefaultRetryable retries timeouts and transient upstream failures.
// Validation errors, not-found, and conflicts fail immediately.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	return vgerr.IsTimeout(err) || vgerr.IsUpstreamFailure(err)
}

// Validate checks the policy is well formed.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"retry max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"retry base delay must not be negative, got %s", p.BaseDelay)
	}
	if p.Factor < 1 {
		return vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"retry factor must be at least 1, got %g", p.Factor)
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"retry jitter must be in [0,1], got %g", p.Jitter)
	}
	return nil
}

// Do runs op until it succeeds, the attempt bound is reached, a non-retryable
// error occurs, or ctx is done. The last error is returned as-is so callers
// keep its code.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || !retryable(lastErr) {
			return lastErr
		}

		wait := delay
		if p.Jitter > 0 {
			wait += time.Duration(rand.Float64() * p.Jitter * float64(delay))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return vgerr.Wrap(ctx.Err(), vgerr.CodeBackendRequestTimeout,
				"retry abandoned: deadline exceeded")
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * p.Factor)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
