// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package modelpool

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// RunProber periodically re-probes handles that are out of rotation and
// returns them to service when their endpoint answers again. It blocks until
// ctx is cancelled; callers run it in its own goroutine.
func (p *Pool) RunProber(ctx context.Context) {
	limiter := rate.NewLimiter(rate.Every(p.cfg.ProbeInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		p.probeOnce(ctx)
	}
}

// probeOnce probes every out-of-rotation handle once. Exported to tests via
// export_test.go so recovery can be driven without the timer.
func (p *Pool) probeOnce(ctx context.Context) {
	type candidate struct {
		handle *Handle
	}

	p.mu.Lock()
	var candidates []candidate
	for _, grp := range p.groups {
		for _, h := range grp.handles {
			if !h.inUse && !h.tracker.IsHealthy() {
				candidates = append(candidates, candidate{handle: h})
			}
		}
	}
	p.mu.Unlock()

	for _, c := range candidates {
		probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
		err := c.handle.endpoint.Probe(probeCtx)
		cancel()

		if err != nil {
			slog.Debug("endpoint probe failed",
				"group", c.handle.group, "endpoint", c.handle.endpoint.ID(), "err", err)
			continue
		}

		c.handle.tracker.RecordSuccess()
		slog.Info("endpoint returned to rotation",
			"group", c.handle.group, "endpoint", c.handle.endpoint.ID())
		p.dispatchFree(c.handle)
	}
}

// dispatchFree hands a now-healthy free handle to the oldest waiter, if any.
func (p *Pool) dispatchFree(h *Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	grp, ok := p.groups[h.group]
	if !ok || h.inUse || !h.tracker.IsHealthy() {
		return
	}
	if w := grp.popWaiterLocked(); w != nil {
		h.inUse = true
		w.ch <- waitResult{handle: h}
	}
}
