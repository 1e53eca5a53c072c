// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package gateway_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vgate-dev/vgate/internal/backend"
	"github.com/vgate-dev/vgate/internal/batch"
	"github.com/vgate-dev/vgate/internal/cache"
	"github.com/vgate-dev/vgate/internal/gateway"
	"github.com/vgate-dev/vgate/internal/modelpool"
	"github.com/vgate-dev/vgate/internal/search"
	"github.com/vgate-dev/vgate/internal/vectorops"
	vgerr "github.com/vgate-dev/vgate/pkg/errors"
	"github.com/vgate-dev/vgate/pkg/vector"
)

var allCaps = []string{"vector.read", "vector.write", "vector.search", "vector.batch", "collection.admin", "collection.read"}

// slowEngine delays searches so the request budget can expire first.
type slowEngine struct {
	*backend.MemoryEngine
	delay time.Duration
}

func (e *slowEngine) Search(ctx context.Context, req vector.SearchRequest) ([]vector.ScoredPoint, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(e.delay):
	}
	return e.MemoryEngine.Search(ctx, req)
}

func newRouter(t *testing.T, engine backend.Engine, cfg gateway.Config) *gateway.Router {
	t.Helper()

	client, err := backend.NewClient(engine, backend.ClientConfig{})
	require.NoError(t, err)
	c, err := cache.New(cache.Config{})
	require.NoError(t, err)
	ops, err := vectorops.NewManager(client, c)
	require.NoError(t, err)

	pool, err := modelpool.New(modelpool.Config{}, map[string]modelpool.Group{
		"default": {Size: 1, Endpoints: []modelpool.Endpoint{
			&modelpool.StaticEndpoint{Name: "ep-0", EmbedFunc: func(context.Context, string) ([]float32, error) {
				return []float32{1, 0}, nil
			}},
		}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	se, err := search.NewEngine(ops, pool, search.Config{EmbedGroup: "default"})
	require.NoError(t, err)
	bp, err := batch.NewProcessor(ops)
	require.NoError(t, err)

	gw, err := gateway.NewRouter(ops, se, bp, pool, cfg)
	require.NoError(t, err)

	resp := gw.Dispatch(context.Background(), gateway.Request{
		Operation: "create_collection",
		Payload: map[string]any{
			"name": "docs", "dimensions": 2, "metric": "cosine",
		},
		Capabilities: allCaps,
	})
	require.NoError(t, resp.Err)
	return gw
}

func dispatch(t *testing.T, gw *gateway.Router, op string, payload map[string]any, caps []string) gateway.Response {
	t.Helper()
	return gw.Dispatch(context.Background(), gateway.Request{
		Operation:    op,
		Payload:      payload,
		Capabilities: caps,
	})
}

func TestDispatch_UnknownOperation(t *testing.T) {
	gw := newRouter(t, backend.NewMemoryEngine(), gateway.Config{})

	resp := dispatch(t, gw, "mutate_reality", nil, allCaps)
	assert.Equal(t, gateway.StatusError, resp.Status)
	assert.True(t, vgerr.HasCode(resp.Err, vgerr.CodeGatewayUnknownOperation))
}

func TestDispatch_MissingCapabilityIsUnauthorized(t *testing.T) {
	gw := newRouter(t, backend.NewMemoryEngine(), gateway.Config{})

	resp := dispatch(t, gw, "insert", map[string]any{
		"record": vector.Record{ID: "a", Collection: "docs", Embedding: []float32{1, 0}},
	}, []string{"vector.read"})

	assert.Equal(t, gateway.StatusError, resp.Status)
	assert.True(t, vgerr.IsUnauthorized(resp.Err))

	// The denied write must not have touched storage.
	got := dispatch(t, gw, "get", map[string]any{"collection": "docs", "id": "a"}, allCaps)
	assert.True(t, vgerr.IsNotFound(got.Err))
}

func TestDispatch_WildcardCapability(t *testing.T) {
	gw := newRouter(t, backend.NewMemoryEngine(), gateway.Config{})

	resp := dispatch(t, gw, "insert", map[string]any{
		"record": vector.Record{ID: "a", Collection: "docs", Embedding: []float32{1, 0}},
	}, []string{"vector.*"})
	assert.Equal(t, gateway.StatusOK, resp.Status)
}

func TestDispatch_InsertGetDeleteFlow(t *testing.T) {
	gw := newRouter(t, backend.NewMemoryEngine(), gateway.Config{})

	resp := dispatch(t, gw, "insert", map[string]any{
		"record": vector.Record{
			ID: "a", Collection: "docs", Embedding: []float32{1, 0},
			Payload: map[string]any{"lang": "go"},
		},
	}, allCaps)
	require.NoError(t, resp.Err)
	inserted, ok := resp.Body.(vector.Record)
	require.True(t, ok)
	assert.Equal(t, "a", inserted.ID)

	resp = dispatch(t, gw, "get", map[string]any{"collection": "docs", "id": "a"}, allCaps)
	require.NoError(t, resp.Err)

	resp = dispatch(t, gw, "delete", map[string]any{"collection": "docs", "id": "a"}, allCaps)
	require.NoError(t, resp.Err)

	resp = dispatch(t, gw, "get", map[string]any{"collection": "docs", "id": "a"}, allCaps)
	assert.True(t, vgerr.IsNotFound(resp.Err))
}

func TestDispatch_DeleteByFilterReturnsCount(t *testing.T) {
	gw := newRouter(t, backend.NewMemoryEngine(), gateway.Config{})

	for _, id := range []string{"a", "b"} {
		resp := dispatch(t, gw, "insert", map[string]any{
			"record": vector.Record{
				ID: id, Collection: "docs", Embedding: []float32{1, 0},
				Payload: map[string]any{"lang": "go"},
			},
		}, allCaps)
		require.NoError(t, resp.Err)
	}

	resp := dispatch(t, gw, "delete", map[string]any{
		"collection": "docs",
		"filter":     map[string]any{"lang": "go"},
	}, allCaps)
	require.NoError(t, resp.Err)
	assert.Equal(t, map[string]any{"deleted": 2}, resp.Body)
}

func TestDispatch_SearchOperations(t *testing.T) {
	gw := newRouter(t, backend.NewMemoryEngine(), gateway.Config{})

	for _, id := range []string{"a", "b"} {
		emb := []float32{1, 0}
		if id == "b" {
			emb = []float32{0, 1}
		}
		resp := dispatch(t, gw, "insert", map[string]any{
			"record": vector.Record{ID: id, Collection: "docs", Embedding: emb},
		}, allCaps)
		require.NoError(t, resp.Err)
	}

	resp := dispatch(t, gw, "search", map[string]any{
		"collection": "docs", "query_vector": []float32{1, 0}, "top_k": 1,
	}, allCaps)
	require.NoError(t, resp.Err)
	points := resp.Body.([]vector.ScoredPoint)
	require.Len(t, points, 1)
	assert.Equal(t, "a", points[0].ID)

	resp = dispatch(t, gw, "search_multi", map[string]any{
		"requests": []map[string]any{
			{"collection": "docs", "query_vector": []float32{1, 0}, "top_k": 1},
			{"collection": "docs", "query_vector": []float32{0, 1}, "top_k": 1},
		},
	}, allCaps)
	require.NoError(t, resp.Err)
	multi := resp.Body.([][]vector.ScoredPoint)
	require.Len(t, multi, 2)
	assert.Equal(t, "a", multi[0][0].ID)
	assert.Equal(t, "b", multi[1][0].ID)

	resp = dispatch(t, gw, "search_hybrid", map[string]any{
		"collection": "docs", "query_vector": []float32{1, 0}, "top_k": 5,
	}, allCaps)
	require.Error(t, resp.Err, "hybrid without filter must be rejected")
}

func TestDispatch_TextSearchUsesPool(t *testing.T) {
	gw := newRouter(t, backend.NewMemoryEngine(), gateway.Config{})

	resp := dispatch(t, gw, "insert", map[string]any{
		"record": vector.Record{ID: "a", Collection: "docs", Embedding: []float32{1, 0}},
	}, allCaps)
	require.NoError(t, resp.Err)

	resp = dispatch(t, gw, "search", map[string]any{
		"collection": "docs", "query_text": "hello", "top_k": 1,
	}, allCaps)
	require.NoError(t, resp.Err)
	points := resp.Body.([]vector.ScoredPoint)
	require.Len(t, points, 1)
	assert.Equal(t, "a", points[0].ID)
}

func TestDispatch_BatchRunWireResult(t *testing.T) {
	gw := newRouter(t, backend.NewMemoryEngine(), gateway.Config{})

	resp := dispatch(t, gw, "batch_run", map[string]any{
		"operations": []map[string]any{
			{"kind": "insert", "record": vector.Record{ID: "a", Collection: "docs", Embedding: []float32{1, 0}}},
			{"kind": "insert", "record": vector.Record{ID: "bad", Collection: "docs", Embedding: []float32{1, 0, 0}}},
		},
		"partial_failure_policy": "collect_errors",
	}, allCaps)
	require.NoError(t, resp.Err, "partial failure is a structured result")

	raw, err := json.Marshal(resp.Body)
	require.NoError(t, err)

	var result struct {
		PerOperation []struct {
			Index int    `json:"index"`
			OK    bool   `json:"ok"`
			Code  string `json:"code"`
		} `json:"per_operation_status"`
		Succeeded int `json:"succeeded_count"`
		Failed    int `json:"failed_count"`
	}
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.PerOperation, 2)
	assert.True(t, result.PerOperation[0].OK)
	assert.False(t, result.PerOperation[1].OK)
	assert.Equal(t, string(vgerr.CodeVectorDimensionMismatch), result.PerOperation[1].Code)
}

func TestDispatch_RequestBudgetTimeout(t *testing.T) {
	engine := &slowEngine{MemoryEngine: backend.NewMemoryEngine(), delay: 500 * time.Millisecond}
	gw := newRouter(t, engine, gateway.Config{RequestTimeout: 50 * time.Millisecond})

	resp := dispatch(t, gw, "insert", map[string]any{
		"record": vector.Record{ID: "a", Collection: "docs", Embedding: []float32{1, 0}},
	}, allCaps)
	require.NoError(t, resp.Err)

	resp = dispatch(t, gw, "search", map[string]any{
		"collection": "docs", "query_vector": []float32{1, 0}, "top_k": 1,
	}, allCaps)
	require.Error(t, resp.Err)
	assert.True(t, vgerr.IsTimeout(resp.Err))
}

func TestDispatch_CollectionOperations(t *testing.T) {
	gw := newRouter(t, backend.NewMemoryEngine(), gateway.Config{})

	resp := dispatch(t, gw, "list_collections", nil, allCaps)
	require.NoError(t, resp.Err)
	cols := resp.Body.([]vector.Collection)
	require.Len(t, cols, 1)
	assert.Equal(t, "docs", cols[0].Name)

	resp = dispatch(t, gw, "describe_collection", map[string]any{"name": "docs"}, allCaps)
	require.NoError(t, resp.Err)

	resp = dispatch(t, gw, "drop_collection", map[string]any{"name": "docs"}, allCaps)
	require.NoError(t, resp.Err)

	resp = dispatch(t, gw, "describe_collection", map[string]any{"name": "docs"}, allCaps)
	assert.True(t, vgerr.IsNotFound(resp.Err))
}

func TestHealth_Report(t *testing.T) {
	gw := newRouter(t, backend.NewMemoryEngine(), gateway.Config{})

	report := gw.Health(context.Background())
	assert.True(t, report.StorageReachable)
	assert.True(t, report.CacheReachable)
	assert.Equal(t, map[string]bool{"ep-0": true}, report.ExternalEndpoints)
	assert.True(t, report.Healthy())
}
