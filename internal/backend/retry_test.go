// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package backend_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vgate-dev/vgate/internal/backend"
	vgerr "github.com/vgate-dev/vgate/pkg/errors"
)

func fastPolicy(attempts int) backend.RetryPolicy {
	return backend.RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Factor:      2,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return vgerr.New(vgerr.CodeBackendRequestTimeout, "transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return vgerr.New(vgerr.CodeBackendUpstreamFailure, "down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, vgerr.IsUpstreamFailure(err))
}

func TestRetry_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return vgerr.New(vgerr.CodeVectorDimensionMismatch, "bad input")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_NotFoundIsNotRetried(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return vgerr.New(vgerr.CodeVectorNotFound, "missing")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := backend.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Hour, // never elapses; cancellation must win
		Factor:      2,
	}

	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func(context.Context) error {
			return vgerr.New(vgerr.CodeBackendRequestTimeout, "transient")
		})
	}()

	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, vgerr.IsTimeout(err))
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}

func TestRetryPolicy_Validate(t *testing.T) {
	assert.Error(t, backend.RetryPolicy{MaxAttempts: 0}.Validate())
	assert.Error(t, backend.RetryPolicy{MaxAttempts: 1, Factor: 0.5}.Validate())
	assert.Error(t, backend.RetryPolicy{MaxAttempts: 1, Factor: 2, Jitter: 1.5}.Validate())
	assert.NoError(t, backend.DefaultRetryPolicy().Validate())
}
