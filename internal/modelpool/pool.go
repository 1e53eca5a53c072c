// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package modelpool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	vgerr "github.com/vgate-dev/vgate/pkg/errors"
	"github.com/vgate-dev/vgate/pkg/health"
)

// Config configures pool-wide behaviour. Group composition is fixed at
// construction.
type Config struct {
	// FailureThreshold is the consecutive-failure count that removes a
	// handle from rotation. Zero uses DefaultFailureThreshold.
	FailureThreshold int
	// ProbeInterval is how often unhealthy handles are re-probed.
	// Zero uses 10s.
	ProbeInterval time.Duration
	// ProbeTimeout bounds one liveness probe. Zero uses 2s.
	ProbeTimeout time.Duration
}

// Validate checks the config and applies defaults.
func (c *Config) Validate() error {
	if c.FailureThreshold < 0 {
		return vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"pool failure threshold must not be negative, got %d", c.FailureThreshold)
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.ProbeInterval < 0 || c.ProbeTimeout < 0 {
		return vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"pool probe interval and timeout must not be negative")
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = 10 * time.Second
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 2 * time.Second
	}
	return nil
}

// Group declares one endpoint group: a fixed number of handles distributed
// round-robin across equivalent endpoints.
type Group struct {
	Size      int
	Endpoints []Endpoint
}

// Handle is a leased connection to one endpoint. It is returned to the pool
// with Release and must not be used afterwards.
type Handle struct {
	endpoint Endpoint
	tracker  *healthTracker
	group    string
	inUse    bool
}

// EndpointID identifies the endpoint this handle is bound to.
func (h *Handle) EndpointID() string { return h.endpoint.ID() }

// Embed calls the endpoint and feeds the outcome into health tracking.
func (h *Handle) Embed(ctx context.Context, input string) ([]float32, error) {
	out, err := h.endpoint.Embed(ctx, input)
	if err != nil {
		if h.tracker.RecordFailure() {
			slog.Warn("endpoint removed from rotation",
				"group", h.group, "endpoint", h.endpoint.ID())
		}
		return nil, err
	}
	h.tracker.RecordSuccess()
	return out, nil
}

type waiter struct {
	ch chan waitResult
}

type waitResult struct {
	handle *Handle
	err    error
}

type group struct {
	name    string
	handles []*Handle
	waiters []*waiter
	rr      int // round-robin cursor over handles
}

// Pool owns the handle sets for all endpoint groups. The handle set is
// mutable shared state; every mutation goes through mu. Acquire blocks on a
// FIFO waiter queue bounded by the caller's context.
type Pool struct {
	mu     sync.Mutex
	groups map[string]*group
	cfg    Config
}

// New builds a Pool with fixed group composition. Each group gets Size
// handles, handle i bound to endpoint i mod len(endpoints).
func New(cfg Config, groups map[string]Group) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{groups: make(map[string]*group), cfg: cfg}
	for name, g := range groups {
		if g.Size <= 0 {
			return nil, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
				"pool group %q size must be positive, got %d", name, g.Size)
		}
		if len(g.Endpoints) == 0 {
			return nil, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
				"pool group %q has no endpoints", name)
		}

		grp := &group{name: name}
		for i := 0; i < g.Size; i++ {
			grp.handles = append(grp.handles, &Handle{
				endpoint: g.Endpoints[i%len(g.Endpoints)],
				tracker:  newHealthTracker(cfg.FailureThreshold),
				group:    name,
			})
		}
		p.groups[name] = grp
	}
	return p, nil
}

// Acquire leases a free healthy handle from the group, blocking until one is
// released or ctx expires. When every handle in the group is unhealthy it
// fails fast with an all-unavailable error instead of blocking; when the
// wait bound is exceeded it fails with pool-exhausted. Cancellation removes
// the caller from the wait queue immediately.
func (p *Pool) Acquire(ctx context.Context, groupName string) (*Handle, error) {
	p.mu.Lock()
	grp, ok := p.groups[groupName]
	if !ok {
		p.mu.Unlock()
		return nil, vgerr.New(vgerr.CodePoolGroupNotFound,
			"unknown endpoint group", vgerr.Field("group", groupName))
	}

	if grp.healthyCount() == 0 {
		p.mu.Unlock()
		return nil, vgerr.New(vgerr.CodePoolAllUnavailable,
			"all endpoints in group are unhealthy", vgerr.Field("group", groupName))
	}

	if h := grp.takeFreeLocked(); h != nil {
		p.mu.Unlock()
		return h, nil
	}

	w := &waiter{ch: make(chan waitResult, 1)}
	grp.waiters = append(grp.waiters, w)
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		p.mu.Lock()
		grp.removeWaiterLocked(w)
		p.mu.Unlock()
		// A handle may have been handed over concurrently with cancellation.
		select {
		case res := <-w.ch:
			if res.handle != nil {
				p.Release(res.handle)
			}
		default:
		}
		return nil, vgerr.Wrap(ctx.Err(), vgerr.CodePoolExhausted,
			"no handle became free within the deadline", vgerr.Field("group", groupName))
	case res := <-w.ch:
		return res.handle, res.err
	}
}

// Release returns a handle to the pool, handing it directly to the oldest
// waiter when one exists and the handle is still in rotation.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	grp, ok := p.groups[h.group]
	if !ok {
		return
	}

	h.inUse = false
	if h.tracker.IsHealthy() {
		if w := grp.popWaiterLocked(); w != nil {
			h.inUse = true
			w.ch <- waitResult{handle: h}
			return
		}
	}

	if grp.healthyCount() == 0 {
		grp.failWaitersLocked()
	}
}

// MarkUnhealthy removes the handle's endpoint binding from rotation
// immediately, bypassing the consecutive-failure threshold.
func (p *Pool) MarkUnhealthy(h *Handle) {
	if h == nil {
		return
	}
	h.tracker.MarkUnhealthy()

	p.mu.Lock()
	defer p.mu.Unlock()
	if grp, ok := p.groups[h.group]; ok && grp.healthyCount() == 0 {
		grp.failWaitersLocked()
	}
}

// Health reports per-endpoint availability across all groups. An endpoint is
// healthy while any handle bound to it remains in rotation.
func (p *Pool) Health() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]bool)
	for _, grp := range p.groups {
		for _, h := range grp.handles {
			id := h.endpoint.ID()
			out[id] = out[id] || h.tracker.IsHealthy()
		}
	}
	return out
}

// Metrics returns per-endpoint health snapshots for monitoring.
func (p *Pool) Metrics() map[string]health.EndpointMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]health.EndpointMetrics)
	for _, grp := range p.groups {
		for _, h := range grp.handles {
			out[h.endpoint.ID()] = h.tracker.Metrics()
		}
	}
	return out
}

// Close closes every distinct endpoint once.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	closed := make(map[string]bool)
	var errs []error
	for _, grp := range p.groups {
		grp.failWaitersLocked()
		for _, h := range grp.handles {
			id := h.endpoint.ID()
			if closed[id] {
				continue
			}
			closed[id] = true
			if err := h.endpoint.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return vgerr.Join(errs...)
	}
	return nil
}

func (g *group) healthyCount() int {
	n := 0
	for _, h := range g.handles {
		if h.tracker.IsHealthy() {
			n++
		}
	}
	return n
}

// takeFreeLocked scans round-robin from the cursor for a free healthy
// handle. An unhealthy endpoint is never selected while a healthy
// alternative exists.
func (g *group) takeFreeLocked() *Handle {
	n := len(g.handles)
	for i := 1; i <= n; i++ {
		h := g.handles[(g.rr+i)%n]
		if !h.inUse && h.tracker.IsHealthy() {
			g.rr = (g.rr + i) % n
			h.inUse = true
			return h
		}
	}
	return nil
}

func (g *group) popWaiterLocked() *waiter {
	if len(g.waiters) == 0 {
		return nil
	}
	w := g.waiters[0]
	g.waiters = g.waiters[1:]
	return w
}

func (g *group) removeWaiterLocked(target *waiter) {
	for i, w := range g.waiters {
		if w == target {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return
		}
	}
}

// failWaitersLocked fails every queued waiter fast once no healthy handle
// remains, rather than letting them block until their deadlines.
func (g *group) failWaitersLocked() {
	for _, w := range g.waiters {
		w.ch <- waitResult{err: vgerr.New(vgerr.CodePoolAllUnavailable,
			"all endpoints in group are unhealthy", vgerr.Field("group", g.name))}
	}
	g.waiters = nil
}
