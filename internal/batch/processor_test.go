// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package batch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vgate-dev/vgate/internal/backend"
	"github.com/vgate-dev/vgate/internal/batch"
	"github.com/vgate-dev/vgate/internal/cache"
	"github.com/vgate-dev/vgate/internal/vectorops"
	vgerr "github.com/vgate-dev/vgate/pkg/errors"
	"github.com/vgate-dev/vgate/pkg/vector"
)

func newProcessor(t *testing.T) (*batch.Processor, *vectorops.Manager) {
	t.Helper()

	client, err := backend.NewClient(backend.NewMemoryEngine(), backend.ClientConfig{})
	require.NoError(t, err)
	c, err := cache.New(cache.Config{})
	require.NoError(t, err)
	ops, err := vectorops.NewManager(client, c)
	require.NoError(t, err)

	require.NoError(t, ops.CreateCollection(context.Background(), vector.Collection{
		Name: "docs", Dimensions: 2, Metric: vector.MetricCosine,
	}))

	p, err := batch.NewProcessor(ops)
	require.NoError(t, err)
	return p, ops
}

func insertOp(id string, embedding []float32) batch.Operation {
	return batch.Operation{
		Kind:   batch.OpInsert,
		Record: vector.Record{ID: id, Collection: "docs", Embedding: embedding},
	}
}

func TestRun_AllSucceed(t *testing.T) {
	p, ops := newProcessor(t)
	ctx := context.Background()

	res, err := p.Run(ctx, batch.Job{
		Operations: []batch.Operation{
			insertOp("a", []float32{1, 0}),
			insertOp("b", []float32{0, 1}),
			insertOp("c", []float32{1, 1}),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 0, res.Failed)

	for _, id := range []string{"a", "b", "c"} {
		_, err := ops.Get(ctx, "docs", id)
		assert.NoError(t, err)
	}
}

func TestRun_CollectErrorsCorrelatesByIndex(t *testing.T) {
	p, _ := newProcessor(t)

	res, err := p.Run(context.Background(), batch.Job{
		Policy: batch.PolicyCollectErrors,
		Operations: []batch.Operation{
			insertOp("a", []float32{1, 0}),
			insertOp("bad", []float32{1, 0, 0}), // dimension mismatch
			insertOp("c", []float32{0, 1}),
		},
	})
	require.NoError(t, err, "partial failure is a structured result, not a hard error")
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)

	require.Len(t, res.PerOp, 3)
	for i, st := range res.PerOp {
		assert.Equal(t, i, st.Index)
	}
	assert.NoError(t, res.PerOp[0].Err)
	assert.Error(t, res.PerOp[1].Err)
	assert.Equal(t, vgerr.CodeVectorDimensionMismatch, vgerr.CodeOf(res.PerOp[1].Err))
	assert.NoError(t, res.PerOp[2].Err)
}

func TestRun_FailFastSkipsUnstartedOperations(t *testing.T) {
	p, _ := newProcessor(t)

	ops := []batch.Operation{
		insertOp("bad", []float32{1, 0, 0}), // fails immediately
	}
	for i := 0; i < 64; i++ {
		ops = append(ops, insertOp("", []float32{1, 0}))
	}

	res, err := p.Run(context.Background(), batch.Job{
		Policy:         batch.PolicyFailFast,
		MaxParallelism: 1,
		Operations:     ops,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Failed, 1)

	skipped := 0
	for _, st := range res.PerOp {
		if vgerr.HasCode(st.Err, vgerr.CodeBatchOpSkipped) {
			skipped++
		}
	}
	assert.Greater(t, skipped, 0, "later operations should have been skipped")
}

func TestRun_DeleteAndUpdateKinds(t *testing.T) {
	p, ops := newProcessor(t)
	ctx := context.Background()

	rec, err := ops.Insert(ctx, vector.Record{ID: "a", Collection: "docs", Embedding: []float32{1, 0}})
	require.NoError(t, err)

	res, err := p.Run(ctx, batch.Job{
		Operations: []batch.Operation{
			{
				Kind: batch.OpUpdate,
				ID:   rec.ID,
				Record: vector.Record{
					Collection: "docs",
					Embedding:  []float32{0, 1},
				},
			},
			{Kind: batch.OpDelete, Collection: "docs", ID: "ghost"}, // idempotent no-op
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)

	got, err := ops.Get(ctx, "docs", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, got.Embedding)
}

func TestRun_Validation(t *testing.T) {
	p, _ := newProcessor(t)
	ctx := context.Background()

	_, err := p.Run(ctx, batch.Job{})
	assert.True(t, vgerr.HasCode(err, vgerr.CodeBatchInvalidInput))

	_, err = p.Run(ctx, batch.Job{
		Policy:     "halt_and_catch_fire",
		Operations: []batch.Operation{insertOp("a", []float32{1, 0})},
	})
	assert.True(t, vgerr.HasCode(err, vgerr.CodeBatchInvalidInput))

	res, err := p.Run(ctx, batch.Job{
		Operations: []batch.Operation{{Kind: "upsert"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, vgerr.HasCode(res.PerOp[0].Err, vgerr.CodeBatchInvalidInput))
}
