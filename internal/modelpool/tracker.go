// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package modelpool

import (
	"sync"
	"time"

	"github.com/vgate-dev/vgate/pkg/health"
)

// DefaultFailureThreshold is the number of consecutive failures after which
// a handle is removed from rotation until a probe succeeds.
const DefaultFailureThreshold = 3

// healthTracker tracks consecutive failures for one handle. A handle stays
// in rotation until the failure threshold is reached; the background prober
// is the only path back to healthy.
type healthTracker struct {
	mu            sync.RWMutex
	threshold     int
	consecutive   int
	totalFailures int64
	lastFailureAt time.Time
	nowFunc       func() time.Time // for testing
}

func newHealthTracker(threshold int) *healthTracker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &healthTracker{threshold: threshold, nowFunc: time.Now}
}

// IsHealthy reports whether the handle is still in rotation.
func (h *healthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.consecutive < h.threshold
}

// RecordSuccess puts the handle back in rotation.
func (h *healthTracker) RecordSuccess() {
	h.mu.Lock()
	h.consecutive = 0
	h.mu.Unlock()
}

// RecordFailure counts one failure and reports whether the handle just
// crossed the threshold out of rotation.
func (h *healthTracker) RecordFailure() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.consecutive++
	h.totalFailures++
	h.lastFailureAt = h.nowFunc()
	return h.consecutive == h.threshold
}

// MarkUnhealthy takes the handle out of rotation immediately.
func (h *healthTracker) MarkUnhealthy() {
	h.mu.Lock()
	if h.consecutive < h.threshold {
		h.consecutive = h.threshold
		h.totalFailures++
		h.lastFailureAt = h.nowFunc()
	}
	h.mu.Unlock()
}

// Metrics returns a point-in-time snapshot of the tracker's state.
func (h *healthTracker) Metrics() health.EndpointMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := health.EndpointMetrics{
		FailureCount: h.totalFailures,
		Available:    h.consecutive < h.threshold,
	}
	if h.totalFailures > 0 {
		t := h.lastFailureAt
		m.LastFailureAt = &t
	}
	return m
}
