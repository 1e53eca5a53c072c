// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

// Package backend wraps the external vector-storage engine behind a typed
// client with timeout enforcement and retries.
package backend

import (
	"context"

	"github.com/vgate-dev/vgate/pkg/vector"
)

// Engine is the storage engine boundary. Implementations must keep Upsert and
// Delete idempotent when keyed by explicit record ID, and must return search
// results ordered by the engine's native score.
type Engine interface {
	CreateCollection(ctx context.Context, spec vector.Collection) error
	DescribeCollection(ctx context.Context, name string) (vector.Collection, error)
	DropCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]vector.Collection, error)

	Upsert(ctx context.Context, rec vector.Record) error
	Get(ctx context.Context, collection, id string) (vector.Record, error)
	// Delete removes records by explicit IDs or by payload filter and returns
	// the number of records removed. Missing IDs are not an error.
	Delete(ctx context.Context, collection string, ids []string, filter map[string]any) (int, error)
	Search(ctx context.Context, req vector.SearchRequest) ([]vector.ScoredPoint, error)

	Ping(ctx context.Context) error
	Close() error
}
