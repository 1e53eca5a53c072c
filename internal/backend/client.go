// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package backend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	vgerr "github.com/vgate-dev/vgate/pkg/errors"
	"github.com/vgate-dev/vgate/pkg/vector"
)

// Observer receives one latency observation per backend call. The monitoring
// collaborator consumes these; the default just logs at debug level.
type Observer func(op string, elapsed time.Duration, err error)

// ClientConfig configures the backend client.
type ClientConfig struct {
	// CallTimeout bounds every engine call. The caller's context deadline
	// still applies when it is tighter.
	CallTimeout time.Duration
	Retry       RetryPolicy
	Observer    Observer
}

// Validate checks the config and applies defaults.
func (c *ClientConfig) Validate() error {
	if c.CallTimeout < 0 {
		return vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"backend call timeout must not be negative, got %s", c.CallTimeout)
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = DefaultRetryPolicy()
	}
	return c.Retry.Validate()
}

// Client wraps an Engine with per-call timeouts, a retry policy for
// transient failures, and a latency observation per call. All engine
// operations are idempotent when keyed by explicit ID, so retrying a timed
// out call is safe.
type Client struct {
	engine  Engine
	cfg     ClientConfig
	observe Observer
}

// NewClient validates cfg and wraps engine.
func NewClient(engine Engine, cfg ClientConfig) (*Client, error) {
	if engine == nil {
		return nil, vgerr.New(vgerr.CodeConfigValidateInvalidValue, "backend engine is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	observe := cfg.Observer
	if observe == nil {
		observe = func(op string, elapsed time.Duration, err error) {
			slog.Debug("backend call", "op", op, "elapsed", elapsed, "err", err)
		}
	}

	return &Client{engine: engine, cfg: cfg, observe: observe}, nil
}

// Engine exposes the wrapped engine for capability probing.
func (c *Client) Engine() Engine { return c.engine }

func (c *Client) Upsert(ctx context.Context, rec vector.Record) error {
	return c.call(ctx, "upsert", func(ctx context.Context) error {
		return c.engine.Upsert(ctx, rec)
	})
}

func (c *Client) Get(ctx context.Context, collection, id string) (vector.Record, error) {
	var rec vector.Record
	err := c.call(ctx, "get", func(ctx context.Context) error {
		var err error
		rec, err = c.engine.Get(ctx, collection, id)
		return err
	})
	return rec, err
}

func (c *Client) Delete(ctx context.Context, collection string, ids []string, filter map[string]any) (int, error) {
	var count int
	err := c.call(ctx, "delete", func(ctx context.Context) error {
		var err error
		count, err = c.engine.Delete(ctx, collection, ids, filter)
		return err
	})
	return count, err
}

func (c *Client) Search(ctx context.Context, req vector.SearchRequest) ([]vector.ScoredPoint, error) {
	var points []vector.ScoredPoint
	err := c.call(ctx, "search", func(ctx context.Context) error {
		var err error
		points, err = c.engine.Search(ctx, req)
		return err
	})
	return points, err
}

func (c *Client) EnsureCollection(ctx context.Context, spec vector.Collection) error {
	return c.call(ctx, "ensure_collection", func(ctx context.Context) error {
		err := c.engine.CreateCollection(ctx, spec)
		if vgerr.IsConflict(err) {
			// Already exists with this spec; ensure is idempotent.
			existing, derr := c.engine.DescribeCollection(ctx, spec.Name)
			if derr != nil {
				return derr
			}
			if existing.Dimensions != spec.Dimensions || existing.Metric != spec.Metric {
				return err
			}
			return nil
		}
		return err
	})
}

func (c *Client) DescribeCollection(ctx context.Context, name string) (vector.Collection, error) {
	var col vector.Collection
	err := c.call(ctx, "describe_collection", func(ctx context.Context) error {
		var err error
		col, err = c.engine.DescribeCollection(ctx, name)
		return err
	})
	return col, err
}

func (c *Client) DropCollection(ctx context.Context, name string) error {
	return c.call(ctx, "drop_collection", func(ctx context.Context) error {
		return c.engine.DropCollection(ctx, name)
	})
}

func (c *Client) ListCollections(ctx context.Context) ([]vector.Collection, error) {
	var cols []vector.Collection
	err := c.call(ctx, "list_collections", func(ctx context.Context) error {
		var err error
		cols, err = c.engine.ListCollections(ctx)
		return err
	})
	return cols, err
}

// Ping reports storage reachability without retries.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	return c.engine.Ping(ctx)
}

func (c *Client) Close() error {
	return c.engine.Close()
}

// call runs op under the configured timeout and retry policy and emits a
// latency observation covering all attempts.
func (c *Client) call(ctx context.Context, name string, op func(context.Context) error) error {
	start := time.Now()
	err := c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
		return mapEngineErr(op(attemptCtx))
	})
	c.observe(name, time.Since(start), err)
	return err
}

// mapEngineErr normalizes raw context errors from the engine into coded
// timeouts so the retry predicate and callers can classify them.
func mapEngineErr(err error) error {
	if err == nil {
		return nil
	}
	if vgerr.CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return vgerr.Wrap(err, vgerr.CodeBackendRequestTimeout, "backend call timed out")
	}
	if errors.Is(err, context.Canceled) {
		return vgerr.Wrap(err, vgerr.CodeBackendRequestTimeout, "backend call cancelled")
	}
	return vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure, "backend call failed")
}
