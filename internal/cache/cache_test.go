// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package cache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vgate-dev/vgate/internal/cache"
	vgerr "github.com/vgate-dev/vgate/pkg/errors"
)

func newCache(t *testing.T, maxEntries int) *cache.Cache {
	t.Helper()
	c, err := cache.New(cache.Config{MaxEntries: maxEntries})
	require.NoError(t, err)
	return c
}

func TestCache_HitAfterCompute(t *testing.T) {
	c := newCache(t, 16)
	ctx := context.Background()

	var computes atomic.Int32
	compute := func(context.Context) (any, error) {
		computes.Add(1)
		return "value", nil
	}

	v, err := c.GetOrCompute(ctx, 1, "docs", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	v, err = c.GetOrCompute(ctx, 1, "docs", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	assert.Equal(t, int32(1), computes.Load())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCache_SingleFlightSharedByConcurrentCallers(t *testing.T) {
	c := newCache(t, 16)
	ctx := context.Background()

	var computes atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (any, error) {
		computes.Add(1)
		<-release
		return "shared", nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]any, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrCompute(ctx, 42, "docs", time.Minute, compute)
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	// Give every caller time to join the in-flight computation.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), computes.Load())
	for _, v := range results {
		assert.Equal(t, "shared", v)
	}
}

func TestCache_FailureIsNotCached(t *testing.T) {
	c := newCache(t, 16)
	ctx := context.Background()

	var computes atomic.Int32
	_, err := c.GetOrCompute(ctx, 7, "docs", time.Minute, func(context.Context) (any, error) {
		computes.Add(1)
		return nil, vgerr.New(vgerr.CodeBackendUpstreamFailure, "boom")
	})
	require.Error(t, err)

	v, err := c.GetOrCompute(ctx, 7, "docs", time.Minute, func(context.Context) (any, error) {
		computes.Add(1)
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, int32(2), computes.Load())
}

func TestCache_TTLExpiry(t *testing.T) {
	c := newCache(t, 16)
	ctx := context.Background()

	now := time.Now()
	c.SetNowFunc(func() time.Time { return now })

	var computes atomic.Int32
	compute := func(context.Context) (any, error) {
		computes.Add(1)
		return "v", nil
	}

	_, err := c.GetOrCompute(ctx, 1, "docs", time.Minute, compute)
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, err = c.GetOrCompute(ctx, 1, "docs", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, int32(1), computes.Load(), "entry should still be fresh")

	now = now.Add(2 * time.Minute)
	_, err = c.GetOrCompute(ctx, 1, "docs", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, int32(2), computes.Load(), "expired entry must recompute")
}

func TestCache_LRUEviction(t *testing.T) {
	c := newCache(t, 2)
	ctx := context.Background()

	store := func(fp cache.Fingerprint) {
		_, err := c.GetOrCompute(ctx, fp, "docs", time.Minute, func(context.Context) (any, error) {
			return fp, nil
		})
		require.NoError(t, err)
	}

	store(1)
	store(2)

	// Touch 1 so 2 becomes the least recently used.
	_, err := c.GetOrCompute(ctx, 1, "docs", time.Minute, func(context.Context) (any, error) {
		t.Fatal("fingerprint 1 should be a hit")
		return nil, nil
	})
	require.NoError(t, err)

	store(3)

	var recomputed atomic.Int32
	_, err = c.GetOrCompute(ctx, 2, "docs", time.Minute, func(context.Context) (any, error) {
		recomputed.Add(1)
		return "again", nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), recomputed.Load(), "LRU entry should have been evicted")
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestCache_InvalidateCollection(t *testing.T) {
	c := newCache(t, 16)
	ctx := context.Background()

	var computes atomic.Int32
	compute := func(context.Context) (any, error) {
		computes.Add(1)
		return "v", nil
	}

	_, err := c.GetOrCompute(ctx, 1, "docs", time.Minute, compute)
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, 2, "images", time.Minute, compute)
	require.NoError(t, err)

	c.InvalidateCollection("docs")

	_, err = c.GetOrCompute(ctx, 1, "docs", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, int32(3), computes.Load(), "docs entry must recompute after invalidation")

	_, err = c.GetOrCompute(ctx, 2, "images", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, int32(3), computes.Load(), "images entry must survive docs invalidation")
}

func TestCache_WriteDuringInFlightComputeDiscardsResult(t *testing.T) {
	c := newCache(t, 16)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(ctx, 9, "docs", time.Minute, func(context.Context) (any, error) {
			close(started)
			<-release
			return "stale", nil
		})
		done <- err
	}()

	<-started
	// A write lands while the computation is in flight.
	c.InvalidateCollection("docs")
	close(release)
	require.NoError(t, <-done)

	// The in-flight result must not have been cached.
	var recomputed atomic.Int32
	v, err := c.GetOrCompute(ctx, 9, "docs", time.Minute, func(context.Context) (any, error) {
		recomputed.Add(1)
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.Equal(t, int32(1), recomputed.Load())
}

func TestCache_CallerDeadlineBoundsWait(t *testing.T) {
	c := newCache(t, 16)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	_, err := c.GetOrCompute(ctx, 5, "docs", time.Minute, func(context.Context) (any, error) {
		<-release
		return "slow", nil
	})
	require.Error(t, err)
	assert.True(t, vgerr.IsTimeout(err))
}
