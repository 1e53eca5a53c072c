// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package vectorops

import (
	"math"

	vgerr "github.com/vgate-dev/vgate/pkg/errors"
	"github.com/vgate-dev/vgate/pkg/vector"
)

// MaxDimensions bounds collection dimensionality to prevent resource
// exhaustion from malformed specs.
const MaxDimensions = 65536

// ValidateRecord checks rec against its collection before any backend
// round-trip. A dimension mismatch is rejected here, without touching the
// backend.
func ValidateRecord(rec vector.Record, col vector.Collection) error {
	if rec.Collection == "" {
		return vgerr.New(vgerr.CodeVectorInvalidInput, "record collection is required")
	}
	if len(rec.Embedding) == 0 {
		return vgerr.New(vgerr.CodeVectorInvalidInput, "record embedding is required",
			vgerr.FieldCollection(rec.Collection))
	}
	if len(rec.Embedding) != col.Dimensions {
		return vgerr.Errorf(vgerr.CodeVectorDimensionMismatch,
			"embedding has %d dimensions, collection %q expects %d",
			len(rec.Embedding), col.Name, col.Dimensions)
	}
	for i, v := range rec.Embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return vgerr.Errorf(vgerr.CodeVectorInvalidInput,
				"embedding component %d is not a finite number", i)
		}
	}
	return nil
}

// ValidateCollection checks a collection spec at creation time.
func ValidateCollection(spec vector.Collection) error {
	if spec.Name == "" {
		return vgerr.New(vgerr.CodeCollectionInvalid, "collection name is required")
	}
	if spec.Dimensions <= 0 {
		return vgerr.Errorf(vgerr.CodeCollectionInvalid,
			"collection dimensions must be positive, got %d", spec.Dimensions)
	}
	if spec.Dimensions > MaxDimensions {
		return vgerr.Errorf(vgerr.CodeCollectionInvalid,
			"collection dimensions must not exceed %d, got %d", MaxDimensions, spec.Dimensions)
	}
	if !spec.Metric.Valid() {
		return vgerr.Errorf(vgerr.CodeCollectionInvalid,
			"unknown distance metric %q", spec.Metric)
	}
	return nil
}
