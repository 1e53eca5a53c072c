// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package backend

import (
	"math"

	"github.com/vgate-dev/vgate/pkg/vector"
)

// Score computes the similarity score between two equal-length vectors under
// the given metric. Higher is always more similar; euclidean distance is
// negated so every metric sorts descending.
func Score(metric vector.Metric, a, b []float32) float64 {
	switch metric {
	case vector.MetricDot:
		return dot(a, b)
	case vector.MetricEuclidean:
		return -euclidean(a, b)
	default:
		return cosine(a, b)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func l2norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32) float64 {
	na, nb := l2norm(a), l2norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
