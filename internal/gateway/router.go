// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

// Package gateway is the top-level entry point of the vector operations
// gateway. It normalizes inbound requests into one internal request model,
// applies the capability check, establishes the request-scoped timeout
// budget, and dispatches to the search engine, vector operations manager,
// or batch processor.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/vgate-dev/vgate/internal/batch"
	"github.com/vgate-dev/vgate/internal/modelpool"
	"github.com/vgate-dev/vgate/internal/search"
	"github.com/vgate-dev/vgate/internal/security"
	"github.com/vgate-dev/vgate/internal/vectorops"
	vgerr "github.com/vgate-dev/vgate/pkg/errors"
	"github.com/vgate-dev/vgate/pkg/health"
	"github.com/vgate-dev/vgate/pkg/vector"
)

// Config configures the router.
type Config struct {
	// RequestTimeout is the per-request budget propagated to every
	// downstream call. Zero uses 30s.
	RequestTimeout time.Duration
}

// Validate checks the config and applies defaults.
func (c *Config) Validate() error {
	if c.RequestTimeout < 0 {
		return vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"gateway request timeout must not be negative, got %s", c.RequestTimeout)
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	return nil
}

// Router dispatches internal requests to the core components.
type Router struct {
	ops    *vectorops.Manager
	search *search.Engine
	batch  *batch.Processor
	pool   *modelpool.Pool
	cfg    Config
}

// NewRouter wires a Router. pool may be nil when no external model
// endpoints are configured.
func NewRouter(ops *vectorops.Manager, se *search.Engine, bp *batch.Processor, pool *modelpool.Pool, cfg Config) (*Router, error) {
	if ops == nil || se == nil || bp == nil {
		return nil, vgerr.New(vgerr.CodeConfigValidateInvalidValue,
			"gateway router requires vectorops, search, and batch components")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Router{ops: ops, search: se, batch: bp, pool: pool, cfg: cfg}, nil
}

// Dispatch runs one internal request. The capability check happens before
// anything else; on failure the response is Unauthorized and no other
// component is touched. This is the single place the request-scoped timeout
// budget is established.
func (r *Router) Dispatch(ctx context.Context, req Request) Response {
	capability, ok := requiredCapability(req.Operation)
	if !ok {
		return errResponse(vgerr.New(vgerr.CodeGatewayUnknownOperation,
			"unknown operation", vgerr.FieldOperation(req.Operation)))
	}

	caps := security.NewCapabilitySet(req.Capabilities...)
	if !caps.Contains(capability) {
		return errResponse(vgerr.New(vgerr.CodeGatewayUnauthorized,
			"caller lacks required capability",
			vgerr.FieldOperation(req.Operation), vgerr.Field("capability", capability)))
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	body, err := r.execute(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !vgerr.IsTimeout(err) {
			err = vgerr.Wrap(err, vgerr.CodeGatewayDeadlineExceeded,
				"request budget exhausted", vgerr.FieldOperation(req.Operation))
		}
		slog.Warn("request failed",
			"operation", req.Operation, "elapsed", elapsed, "code", vgerr.CodeOf(err), "err", err)
		return errResponse(err)
	}

	slog.Debug("request served", "operation", req.Operation, "elapsed", elapsed)
	return Response{Status: StatusOK, Body: body}
}

func (r *Router) execute(ctx context.Context, req Request) (any, error) {
	switch req.Operation {
	case "search":
		var sr vector.SearchRequest
		if err := decodePayload(req.Payload, &sr); err != nil {
			return nil, err
		}
		return r.search.Similarity(ctx, sr)

	case "search_multi":
		var p multiSearchPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return r.search.MultiVector(ctx, p.Requests)

	case "search_hybrid":
		var sr vector.SearchRequest
		if err := decodePayload(req.Payload, &sr); err != nil {
			return nil, err
		}
		return r.search.Hybrid(ctx, sr)

	case "insert":
		var p insertPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return r.ops.Insert(ctx, p.Record)

	case "update":
		var p updatePayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, r.ops.Update(ctx, p.ID, p.Record)

	case "delete":
		var p deletePayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		if p.ID != "" {
			return nil, r.ops.Delete(ctx, p.Collection, p.ID)
		}
		count, err := r.ops.DeleteByFilter(ctx, p.Collection, p.Filter)
		if err != nil {
			return nil, err
		}
		return map[string]any{"deleted": count}, nil

	case "get":
		var p getPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return r.ops.Get(ctx, p.Collection, p.ID)

	case "batch_run":
		var p batchPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		job := batch.Job{MaxParallelism: p.MaxParallelism, Policy: batch.Policy(p.Policy)}
		for _, op := range p.Operations {
			job.Operations = append(job.Operations, batch.Operation{
				Kind:       batch.OpKind(op.Kind),
				Collection: op.Collection,
				ID:         op.ID,
				Record:     op.Record,
			})
		}
		res, err := r.batch.Run(ctx, job)
		if err != nil {
			return nil, err
		}
		return toBatchResult(res), nil

	case "create_collection":
		var spec vector.Collection
		if err := decodePayload(req.Payload, &spec); err != nil {
			return nil, err
		}
		return nil, r.ops.CreateCollection(ctx, spec)

	case "drop_collection":
		var p collectionPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, r.ops.DropCollection(ctx, p.Name)

	case "describe_collection":
		var p collectionPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return r.ops.DescribeCollection(ctx, p.Name)

	case "list_collections":
		return r.ops.ListCollections(ctx)

	default:
		return nil, vgerr.New(vgerr.CodeGatewayUnknownOperation,
			"unknown operation", vgerr.FieldOperation(req.Operation))
	}
}

// Health reports subsystem reachability for the monitoring collaborator.
func (r *Router) Health(ctx context.Context) health.Report {
	report := health.Report{
		CacheReachable:    true, // in-process cache
		ExternalEndpoints: map[string]bool{},
	}
	if err := r.ops.Client().Ping(ctx); err == nil {
		report.StorageReachable = true
	}
	if r.pool != nil {
		report.ExternalEndpoints = r.pool.Health()
	}
	return report
}

// requiredCapability is the dispatch table's authorization column.
func requiredCapability(operation string) (string, bool) {
	switch {
	case operation == "get":
		return "vector.read", true
	case operation == "insert" || operation == "update" || operation == "delete":
		return "vector.write", true
	case strings.HasPrefix(operation, "search"):
		return "vector.search", true
	case strings.HasPrefix(operation, "batch_"):
		return "vector.batch", true
	case operation == "create_collection" || operation == "drop_collection":
		return "collection.admin", true
	case operation == "list_collections" || operation == "describe_collection":
		return "collection.read", true
	default:
		return "", false
	}
}

func errResponse(err error) Response {
	return Response{Status: StatusError, Err: err}
}
