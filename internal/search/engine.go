// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

// Package search performs similarity, multi-vector, and hybrid queries on
// top of the vector operations manager. Every search is cache-first; only a
// miss reaches the backend client.
package search

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vgate-dev/vgate/internal/cache"
	"github.com/vgate-dev/vgate/internal/modelpool"
	"github.com/vgate-dev/vgate/internal/vectorops"
	vgerr "github.com/vgate-dev/vgate/pkg/errors"
	"github.com/vgate-dev/vgate/pkg/vector"
)

// Config configures the search engine.
type Config struct {
	// EmbedGroup is the model pool group used to embed query text.
	// Zero value means text queries are rejected.
	EmbedGroup string
	// CacheTTL is how long search results stay cached. Zero uses 60s.
	CacheTTL time.Duration
	// MaxTopK bounds top_k to protect the backend. Zero uses 1000.
	MaxTopK int
}

// Validate checks the config and applies defaults.
func (c *Config) Validate() error {
	if c.CacheTTL < 0 {
		return vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"search cache ttl must not be negative, got %s", c.CacheTTL)
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 60 * time.Second
	}
	if c.MaxTopK < 0 {
		return vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"search max top_k must not be negative, got %d", c.MaxTopK)
	}
	if c.MaxTopK == 0 {
		c.MaxTopK = 1000
	}
	return nil
}

// Engine executes search requests.
type Engine struct {
	ops  *vectorops.Manager
	pool *modelpool.Pool
	cfg  Config
}

// NewEngine wires a search engine. pool may be nil when no embedding
// endpoints are configured; text queries then fail with embedding
// unavailable.
func NewEngine(ops *vectorops.Manager, pool *modelpool.Pool, cfg Config) (*Engine, error) {
	if ops == nil {
		return nil, vgerr.New(vgerr.CodeConfigValidateInvalidValue,
			"search engine requires a vectorops manager")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{ops: ops, pool: pool, cfg: cfg}, nil
}

// Similarity runs one similarity search. When query_text is supplied the
// engine first leases a model pool handle to obtain an embedding, then
// proceeds as a vector query.
func (e *Engine) Similarity(ctx context.Context, req vector.SearchRequest) ([]vector.ScoredPoint, error) {
	if err := e.validateRequest(req); err != nil {
		return nil, err
	}

	if req.QueryText != "" {
		embedding, err := e.embed(ctx, req.QueryText)
		if err != nil {
			return nil, err
		}
		req.QueryVector = embedding
		req.QueryText = ""
	}

	return e.cachedSearch(ctx, req)
}

// MultiVector runs one search per input request and returns one result set
// per input, order-preserving. Requests run concurrently; the first failure
// fails the whole call.
func (e *Engine) MultiVector(ctx context.Context, reqs []vector.SearchRequest) ([][]vector.ScoredPoint, error) {
	if len(reqs) == 0 {
		return nil, vgerr.New(vgerr.CodeSearchInvalidInput, "at least one search request is required")
	}

	results := make([][]vector.ScoredPoint, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			points, err := e.Similarity(gctx, req)
			if err != nil {
				return err
			}
			results[i] = points
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Hybrid combines a payload filter predicate with vector similarity. The
// filter is pushed down to the storage layer, never re-evaluated in-process,
// so unbounded candidate sets stay out of the gateway.
func (e *Engine) Hybrid(ctx context.Context, req vector.SearchRequest) ([]vector.ScoredPoint, error) {
	if len(req.Filter) == 0 {
		return nil, vgerr.New(vgerr.CodeSearchInvalidInput,
			"hybrid search requires a payload filter")
	}
	return e.Similarity(ctx, req)
}

func (e *Engine) validateRequest(req vector.SearchRequest) error {
	if req.Collection == "" {
		return vgerr.New(vgerr.CodeSearchInvalidInput, "search collection is required")
	}
	if req.TopK <= 0 {
		return vgerr.Errorf(vgerr.CodeSearchInvalidInput,
			"top_k must be positive, got %d", req.TopK)
	}
	if req.TopK > e.cfg.MaxTopK {
		return vgerr.Errorf(vgerr.CodeSearchInvalidInput,
			"top_k must not exceed %d, got %d", e.cfg.MaxTopK, req.TopK)
	}
	hasVector := len(req.QueryVector) > 0
	hasText := req.QueryText != ""
	if hasVector == hasText {
		return vgerr.New(vgerr.CodeSearchInvalidInput,
			"exactly one of query_vector and query_text must be set")
	}
	return nil
}

// embed turns query text into a vector through the model pool.
// Embedding-generation failures are reported distinctly from storage search
// failures so callers can retry with a pre-computed vector instead.
func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	if e.pool == nil || e.cfg.EmbedGroup == "" {
		return nil, vgerr.New(vgerr.CodeSearchEmbeddingUnavailable,
			"no embedding endpoint group configured")
	}

	handle, err := e.pool.Acquire(ctx, e.cfg.EmbedGroup)
	if err != nil {
		if vgerr.IsPoolExhausted(err) {
			return nil, err
		}
		return nil, vgerr.Wrap(err, vgerr.CodeSearchEmbeddingUnavailable,
			"embedding endpoint unavailable")
	}
	defer e.pool.Release(handle)

	embedding, err := handle.Embed(ctx, text)
	if err != nil {
		return nil, vgerr.Wrap(err, vgerr.CodeSearchEmbeddingUnavailable,
			"embedding generation failed", vgerr.FieldEndpoint(handle.EndpointID()))
	}
	return embedding, nil
}

func (e *Engine) cachedSearch(ctx context.Context, req vector.SearchRequest) ([]vector.ScoredPoint, error) {
	c := e.ops.Cache()
	fp := cache.SearchFingerprint(req, c.Quantum())

	value, err := c.GetOrCompute(ctx, fp, req.Collection, e.cfg.CacheTTL, func(ctx context.Context) (any, error) {
		points, err := e.ops.Client().Search(ctx, req)
		if err != nil {
			return nil, err
		}
		return postProcess(points, req), nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]vector.ScoredPoint), nil
}

// postProcess applies the score threshold and the deterministic ordering
// guarantee (descending score, ties ascending ID). The backend's tie order
// is not stable across index rebuilds, so stability is enforced here.
func postProcess(points []vector.ScoredPoint, req vector.SearchRequest) []vector.ScoredPoint {
	if req.ScoreThreshold != nil {
		kept := points[:0]
		for _, pt := range points {
			if pt.Score >= *req.ScoreThreshold {
				kept = append(kept, pt)
			}
		}
		points = kept
	}

	vector.SortStable(points)
	if req.TopK > 0 && len(points) > req.TopK {
		points = points[:req.TopK]
	}
	return points
}
