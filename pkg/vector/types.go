// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

// Package vector defines the data model shared by the gateway core:
// records, collections, search requests, and scored results.
package vector

import (
	"sort"

	"github.com/google/uuid"
)

// Metric identifies the distance function a collection is indexed with.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
	MetricDot       Metric = "dot"
)

// Valid reports whether m is a recognised metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricCosine, MetricEuclidean, MetricDot:
		return true
	}
	return false
}

// Record is a single stored vector with its payload.
type Record struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Embedding  []float32      `json:"embedding"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// EnsureID assigns a generated UUID when the caller did not supply one.
func (r *Record) EnsureID() {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
}

// Collection describes a named vector space. Dimensions and Metric are
// immutable after creation; deleting a collection cascades to its records.
type Collection struct {
	Name        string         `json:"name"`
	Dimensions  int            `json:"dimensions"`
	Metric      Metric         `json:"metric"`
	IndexParams map[string]any `json:"index_params,omitempty"`
}

// SearchRequest is a transient similarity query. Exactly one of QueryVector
// or QueryText must be set; QueryText requires an external embedding endpoint.
type SearchRequest struct {
	Collection     string         `json:"collection"`
	QueryVector    []float32      `json:"query_vector,omitempty"`
	QueryText      string         `json:"query_text,omitempty"`
	TopK           int            `json:"top_k"`
	Filter         map[string]any `json:"filter,omitempty"`
	ScoreThreshold *float64       `json:"score_threshold,omitempty"`
}

// ScoredPoint is one search hit.
type ScoredPoint struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`
}

// SortStable orders points by descending score, ties broken by ascending ID.
// The backend's tie order is not stable across index rebuilds, so callers
// that promise deterministic output must apply this before returning.
func SortStable(points []ScoredPoint) {
	sort.Slice(points, func(i, j int) bool {
		if points[i].Score != points[j].Score {
			return points[i].Score > points[j].Score
		}
		return points[i].ID < points[j].ID
	})
}
