// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vgate-dev/vgate/internal/cache"
	"github.com/vgate-dev/vgate/pkg/vector"
)

func baseRequest() vector.SearchRequest {
	return vector.SearchRequest{
		Collection:  "docs",
		QueryVector: []float32{0.25, 0.5},
		TopK:        10,
	}
}

func TestSearchFingerprint_Deterministic(t *testing.T) {
	a := cache.SearchFingerprint(baseRequest(), cache.DefaultQuantum)
	b := cache.SearchFingerprint(baseRequest(), cache.DefaultQuantum)
	assert.Equal(t, a, b)
}

func TestSearchFingerprint_QuantizesFloatNoise(t *testing.T) {
	a := baseRequest()
	b := baseRequest()
	b.QueryVector = []float32{0.25, 0.5 + 1e-9}

	// Noise below the quantum collapses to the same key.
	assert.Equal(t,
		cache.SearchFingerprint(a, 1e-6),
		cache.SearchFingerprint(b, 1e-6))

	// A difference above the quantum does not.
	c := baseRequest()
	c.QueryVector = []float32{0.25, 0.6}
	assert.NotEqual(t,
		cache.SearchFingerprint(a, 1e-6),
		cache.SearchFingerprint(c, 1e-6))
}

func TestSearchFingerprint_FilterOrderIndependent(t *testing.T) {
	a := baseRequest()
	a.Filter = map[string]any{"lang": "go", "year": 2026}
	b := baseRequest()
	b.Filter = map[string]any{"year": 2026, "lang": "go"}

	assert.Equal(t,
		cache.SearchFingerprint(a, cache.DefaultQuantum),
		cache.SearchFingerprint(b, cache.DefaultQuantum))
}

func TestSearchFingerprint_DiscriminatesFields(t *testing.T) {
	base := cache.SearchFingerprint(baseRequest(), cache.DefaultQuantum)

	other := baseRequest()
	other.Collection = "images"
	assert.NotEqual(t, base, cache.SearchFingerprint(other, cache.DefaultQuantum))

	other = baseRequest()
	other.TopK = 11
	assert.NotEqual(t, base, cache.SearchFingerprint(other, cache.DefaultQuantum))

	other = baseRequest()
	threshold := 0.5
	other.ScoreThreshold = &threshold
	assert.NotEqual(t, base, cache.SearchFingerprint(other, cache.DefaultQuantum))

	other = baseRequest()
	other.QueryText = "query"
	assert.NotEqual(t, base, cache.SearchFingerprint(other, cache.DefaultQuantum))
}
