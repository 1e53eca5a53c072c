// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

// Package health holds the snapshot types the gateway reports to the
// monitoring collaborator that polls it.
package health

import "time"

// EndpointMetrics exposes the current health state of one external model
// endpoint. All fields are point-in-time snapshots safe to serialize to JSON.
type EndpointMetrics struct {
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	Available     bool       `json:"available"`
}

// Report is the gateway-wide health summary.
type Report struct {
	StorageReachable  bool            `json:"storage_reachable"`
	CacheReachable    bool            `json:"cache_reachable"`
	ExternalEndpoints map[string]bool `json:"external_endpoints"`
}

// Healthy reports whether every subsystem in the report is reachable.
func (r Report) Healthy() bool {
	if !r.StorageReachable || !r.CacheReachable {
		return false
	}
	for _, ok := range r.ExternalEndpoints {
		if !ok {
			return false
		}
	}
	return true
}
