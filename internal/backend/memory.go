// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package backend

import (
	"context"
	"reflect"
	"sort"
	"sync"

	vgerr "github.com/vgate-dev/vgate/pkg/errors"
	"github.com/vgate-dev/vgate/pkg/vector"
)

// Compile-time interface check.
var _ Engine = (*MemoryEngine)(nil)

// MemoryEngine is an in-process Engine used as the default backend and as
// the test double for everything above the storage boundary. Exhaustive
// scan, no index; fine for small collections.
type MemoryEngine struct {
	mu          sync.RWMutex
	collections map[string]vector.Collection
	records     map[string]map[string]vector.Record
}

// NewMemoryEngine creates an empty in-process engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		collections: make(map[string]vector.Collection),
		records:     make(map[string]map[string]vector.Record),
	}
}

func (e *MemoryEngine) CreateCollection(_ context.Context, spec vector.Collection) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.collections[spec.Name]; ok {
		return vgerr.New(vgerr.CodeCollectionExists,
			"collection already exists", vgerr.FieldCollection(spec.Name))
	}
	e.collections[spec.Name] = spec
	e.records[spec.Name] = make(map[string]vector.Record)
	return nil
}

func (e *MemoryEngine) DescribeCollection(_ context.Context, name string) (vector.Collection, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	col, ok := e.collections[name]
	if !ok {
		return vector.Collection{}, vgerr.New(vgerr.CodeCollectionNotFound,
			"collection not found", vgerr.FieldCollection(name))
	}
	return col, nil
}

func (e *MemoryEngine) DropCollection(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.collections[name]; !ok {
		return vgerr.New(vgerr.CodeCollectionNotFound,
			"collection not found", vgerr.FieldCollection(name))
	}
	delete(e.collections, name)
	delete(e.records, name)
	return nil
}

func (e *MemoryEngine) ListCollections(_ context.Context) ([]vector.Collection, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cols := make([]vector.Collection, 0, len(e.collections))
	for _, col := range e.collections {
		cols = append(cols, col)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	return cols, nil
}

func (e *MemoryEngine) Upsert(_ context.Context, rec vector.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	col, ok := e.collections[rec.Collection]
	if !ok {
		return vgerr.New(vgerr.CodeCollectionNotFound,
			"collection not found", vgerr.FieldCollection(rec.Collection))
	}
	if len(rec.Embedding) != col.Dimensions {
		return vgerr.Errorf(vgerr.CodeVectorDimensionMismatch,
			"embedding has %d dimensions, collection %q expects %d",
			len(rec.Embedding), col.Name, col.Dimensions)
	}
	e.records[rec.Collection][rec.ID] = rec
	return nil
}

func (e *MemoryEngine) Get(_ context.Context, collection, id string) (vector.Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	recs, ok := e.records[collection]
	if !ok {
		return vector.Record{}, vgerr.New(vgerr.CodeCollectionNotFound,
			"collection not found", vgerr.FieldCollection(collection))
	}
	rec, ok := recs[id]
	if !ok {
		return vector.Record{}, vgerr.New(vgerr.CodeVectorNotFound,
			"record not found", vgerr.FieldCollection(collection), vgerr.FieldRecordID(id))
	}
	return rec, nil
}

func (e *MemoryEngine) Delete(_ context.Context, collection string, ids []string, filter map[string]any) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	recs, ok := e.records[collection]
	if !ok {
		return 0, vgerr.New(vgerr.CodeCollectionNotFound,
			"collection not found", vgerr.FieldCollection(collection))
	}

	count := 0
	if len(ids) > 0 {
		for _, id := range ids {
			if _, ok := recs[id]; ok {
				delete(recs, id)
				count++
			}
		}
		return count, nil
	}

	for id, rec := range recs {
		if matchesFilter(rec.Payload, filter) {
			delete(recs, id)
			count++
		}
	}
	return count, nil
}

func (e *MemoryEngine) Search(_ context.Context, req vector.SearchRequest) ([]vector.ScoredPoint, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	col, ok := e.collections[req.Collection]
	if !ok {
		return nil, vgerr.New(vgerr.CodeCollectionNotFound,
			"collection not found", vgerr.FieldCollection(req.Collection))
	}
	if len(req.QueryVector) != col.Dimensions {
		return nil, vgerr.Errorf(vgerr.CodeVectorDimensionMismatch,
			"query has %d dimensions, collection %q expects %d",
			len(req.QueryVector), col.Name, col.Dimensions)
	}

	points := make([]vector.ScoredPoint, 0, len(e.records[req.Collection]))
	for _, rec := range e.records[req.Collection] {
		if !matchesFilter(rec.Payload, req.Filter) {
			continue
		}
		score := Score(col.Metric, req.QueryVector, rec.Embedding)
		if req.ScoreThreshold != nil && score < *req.ScoreThreshold {
			continue
		}
		points = append(points, vector.ScoredPoint{ID: rec.ID, Score: score, Payload: rec.Payload})
	}

	vector.SortStable(points)
	if req.TopK > 0 && len(points) > req.TopK {
		points = points[:req.TopK]
	}
	return points, nil
}

func (e *MemoryEngine) Ping(context.Context) error { return nil }

func (e *MemoryEngine) Close() error { return nil }

// matchesFilter is the engine-side payload predicate: every filter field
// must equal the payload field. An empty filter matches everything.
func matchesFilter(payload, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := payload[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
