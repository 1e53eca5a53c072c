// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

// Package vectorops owns CRUD and validation for vectors and collections.
// It validates before any backend round-trip and keeps the cache coherent by
// invalidating the written collection on every successful write.
package vectorops

import (
	"context"
	"log/slog"

	"github.com/vgate-dev/vgate/internal/backend"
	"github.com/vgate-dev/vgate/internal/cache"
	vgerr "github.com/vgate-dev/vgate/pkg/errors"
	"github.com/vgate-dev/vgate/pkg/vector"
)

// Manager composes the backend client and the cache layer.
type Manager struct {
	client *backend.Client
	cache  *cache.Cache
}

// NewManager wires a Manager.
func NewManager(client *backend.Client, c *cache.Cache) (*Manager, error) {
	if client == nil || c == nil {
		return nil, vgerr.New(vgerr.CodeConfigValidateInvalidValue,
			"vectorops manager requires a backend client and a cache")
	}
	return &Manager{client: client, cache: c}, nil
}

// Client exposes the backend client for the search engine.
func (m *Manager) Client() *backend.Client { return m.client }

// Cache exposes the cache layer for the search engine.
func (m *Manager) Cache() *cache.Cache { return m.cache }

// Insert validates rec against its collection and writes it. A missing ID is
// generated. All cached search results for the collection are dropped before
// returning; collection-scoped invalidation trades hit-rate for correctness
// simplicity.
func (m *Manager) Insert(ctx context.Context, rec vector.Record) (vector.Record, error) {
	col, err := m.client.DescribeCollection(ctx, rec.Collection)
	if err != nil {
		return vector.Record{}, err
	}
	if err := ValidateRecord(rec, col); err != nil {
		return vector.Record{}, err
	}

	rec.EnsureID()
	if err := m.client.Upsert(ctx, rec); err != nil {
		return vector.Record{}, err
	}

	m.cache.InvalidateCollection(rec.Collection)
	return rec, nil
}

// Update replaces an existing record in full. The record must exist; partial
// updates to the embedding are not supported. Replace is atomic at the
// storage boundary because the engine contract mandates upsert-by-id.
func (m *Manager) Update(ctx context.Context, id string, rec vector.Record) error {
	col, err := m.client.DescribeCollection(ctx, rec.Collection)
	if err != nil {
		return err
	}
	rec.ID = id
	if err := ValidateRecord(rec, col); err != nil {
		return err
	}

	// Existence check first so a replace of a missing record surfaces as
	// not-found rather than silently inserting.
	if _, err := m.client.Get(ctx, rec.Collection, id); err != nil {
		return err
	}
	if err := m.client.Upsert(ctx, rec); err != nil {
		return err
	}

	m.cache.InvalidateCollection(rec.Collection)
	return nil
}

// Delete removes a record by ID. Deleting a missing ID is a no-op success;
// delete is idempotent.
func (m *Manager) Delete(ctx context.Context, collection, id string) error {
	count, err := m.client.Delete(ctx, collection, []string{id}, nil)
	if err != nil {
		return err
	}
	if count == 0 {
		slog.Debug("delete of missing record treated as success",
			"collection", collection, "record_id", id)
		return nil
	}

	m.cache.InvalidateCollection(collection)
	return nil
}

// DeleteByFilter removes every record matching the payload filter and
// returns the removed count.
func (m *Manager) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) (int, error) {
	count, err := m.client.Delete(ctx, collection, nil, filter)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		m.cache.InvalidateCollection(collection)
	}
	return count, nil
}

// Get reads a record by ID.
func (m *Manager) Get(ctx context.Context, collection, id string) (vector.Record, error) {
	return m.client.Get(ctx, collection, id)
}

// CreateCollection validates and creates a collection. Dimensions and metric
// are immutable afterwards.
func (m *Manager) CreateCollection(ctx context.Context, spec vector.Collection) error {
	if err := ValidateCollection(spec); err != nil {
		return err
	}
	return m.client.EnsureCollection(ctx, spec)
}

// DropCollection deletes a collection and cascades to all contained records.
func (m *Manager) DropCollection(ctx context.Context, name string) error {
	if err := m.client.DropCollection(ctx, name); err != nil {
		return err
	}
	m.cache.InvalidateCollection(name)
	return nil
}

// ListCollections lists all collections.
func (m *Manager) ListCollections(ctx context.Context) ([]vector.Collection, error) {
	return m.client.ListCollections(ctx)
}

// DescribeCollection returns one collection's spec.
func (m *Manager) DescribeCollection(ctx context.Context, name string) (vector.Collection, error) {
	return m.client.DescribeCollection(ctx, name)
}
