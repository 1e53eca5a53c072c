// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/vgate-dev/vgate/internal/gateway"
	vgerr "github.com/vgate-dev/vgate/pkg/errors"
	"github.com/vgate-dev/vgate/pkg/health"
	"github.com/vgate-dev/vgate/pkg/vector"
)

// capabilityHeader carries the caller's capability tokens, comma-separated.
const capabilityHeader = "X-Vgate-Capabilities"

func (s *Server) registerRoutes() {
	// Collection endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "create-collection",
		Method:      http.MethodPost,
		Path:        "/api/v1/collections",
		Summary:     "Create a collection",
		Tags:        []string{"collections"},
	}, s.handleCreateCollection)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-collections",
		Method:      http.MethodGet,
		Path:        "/api/v1/collections",
		Summary:     "List collections",
		Tags:        []string{"collections"},
	}, s.handleListCollections)

	huma.Register(s.api, huma.Operation{
		OperationID: "describe-collection",
		Method:      http.MethodGet,
		Path:        "/api/v1/collections/{name}",
		Summary:     "Describe a collection",
		Tags:        []string{"collections"},
	}, s.handleDescribeCollection)

	huma.Register(s.api, huma.Operation{
		OperationID: "drop-collection",
		Method:      http.MethodDelete,
		Path:        "/api/v1/collections/{name}",
		Summary:     "Drop a collection",
		Tags:        []string{"collections"},
	}, s.handleDropCollection)

	// Point endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "insert-point",
		Method:      http.MethodPost,
		Path:        "/api/v1/collections/{name}/points",
		Summary:     "Insert a vector record",
		Tags:        []string{"points"},
	}, s.handleInsertPoint)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-point",
		Method:      http.MethodGet,
		Path:        "/api/v1/collections/{name}/points/{id}",
		Summary:     "Fetch a vector record",
		Tags:        []string{"points"},
	}, s.handleGetPoint)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-point",
		Method:      http.MethodPut,
		Path:        "/api/v1/collections/{name}/points/{id}",
		Summary:     "Replace a vector record",
		Tags:        []string{"points"},
	}, s.handleUpdatePoint)

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-point",
		Method:      http.MethodDelete,
		Path:        "/api/v1/collections/{name}/points/{id}",
		Summary:     "Delete a vector record",
		Tags:        []string{"points"},
	}, s.handleDeletePoint)

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-points-by-filter",
		Method:      http.MethodPost,
		Path:        "/api/v1/collections/{name}/points/delete",
		Summary:     "Delete records matching a metadata filter",
		Tags:        []string{"points"},
	}, s.handleDeleteByFilter)

	// Search endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodPost,
		Path:        "/api/v1/collections/{name}/search",
		Summary:     "Similarity search",
		Tags:        []string{"search"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "hybrid-search",
		Method:      http.MethodPost,
		Path:        "/api/v1/collections/{name}/search/hybrid",
		Summary:     "Similarity search with mandatory metadata filter",
		Tags:        []string{"search"},
	}, s.handleHybridSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "multi-search",
		Method:      http.MethodPost,
		Path:        "/api/v1/search/multi",
		Summary:     "Run several searches concurrently",
		Tags:        []string{"search"},
	}, s.handleMultiSearch)

	// Batch endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "run-batch",
		Method:      http.MethodPost,
		Path:        "/api/v1/batch",
		Summary:     "Run a batch of vector operations",
		Tags:        []string{"batch"},
	}, s.handleRunBatch)

	// Health endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, s.handleHealth)
}

// --- Request/Response types for huma ---

// resultOutput is the shared response envelope. Result holds the
// operation-specific body, if any.
type resultOutput struct {
	Body resultBody
}

type resultBody struct {
	Status string `json:"status" example:"ok" doc:"Request status"`
	Result any    `json:"result,omitempty" doc:"Operation-specific result"`
}

type createCollectionInput struct {
	Capabilities string `header:"X-Vgate-Capabilities"`
	Body         struct {
		Name        string         `json:"name" minLength:"1" doc:"Collection name"`
		Dimensions  int            `json:"dimensions" minimum:"1" doc:"Vector dimensionality"`
		Metric      string         `json:"metric,omitempty" doc:"Distance metric: cosine, euclidean, or dot"`
		IndexParams map[string]any `json:"index_params,omitempty" doc:"Engine-specific index parameters"`
	}
}

type listCollectionsInput struct {
	Capabilities string `header:"X-Vgate-Capabilities"`
}

type collectionNameInput struct {
	Capabilities string `header:"X-Vgate-Capabilities"`
	Name         string `path:"name"`
}

type insertPointInput struct {
	Capabilities string `header:"X-Vgate-Capabilities"`
	Name         string `path:"name"`
	Body         pointBody
}

type pointBody struct {
	ID        string         `json:"id,omitempty" doc:"Record ID; generated when omitted"`
	Embedding []float32      `json:"embedding" doc:"Vector components"`
	Payload   map[string]any `json:"payload,omitempty" doc:"Metadata payload"`
}

type pointIDInput struct {
	Capabilities string `header:"X-Vgate-Capabilities"`
	Name         string `path:"name"`
	ID           string `path:"id"`
}

type updatePointInput struct {
	Capabilities string `header:"X-Vgate-Capabilities"`
	Name         string `path:"name"`
	ID           string `path:"id"`
	Body         pointBody
}

type deleteByFilterInput struct {
	Capabilities string `header:"X-Vgate-Capabilities"`
	Name         string `path:"name"`
	Body         struct {
		Filter map[string]any `json:"filter" doc:"Metadata equality filter"`
	}
}

type searchInput struct {
	Capabilities string `header:"X-Vgate-Capabilities"`
	Name         string `path:"name"`
	Body         searchBody
}

type searchBody struct {
	QueryVector    []float32      `json:"query_vector,omitempty" doc:"Query vector; mutually exclusive with query_text"`
	QueryText      string         `json:"query_text,omitempty" doc:"Query text to embed; mutually exclusive with query_vector"`
	TopK           int            `json:"top_k" minimum:"1" doc:"Number of results"`
	Filter         map[string]any `json:"filter,omitempty" doc:"Metadata equality filter"`
	ScoreThreshold *float64       `json:"score_threshold,omitempty" doc:"Minimum score to include"`
}

type multiSearchInput struct {
	Capabilities string `header:"X-Vgate-Capabilities"`
	Body         struct {
		Requests []vector.SearchRequest `json:"requests" doc:"Searches to run concurrently"`
	}
}

type runBatchInput struct {
	Capabilities string `header:"X-Vgate-Capabilities"`
	Body         struct {
		Operations []struct {
			Kind       string     `json:"kind" doc:"insert, update, or delete"`
			Collection string     `json:"collection,omitempty"`
			ID         string     `json:"id,omitempty"`
			Record     *pointBody `json:"record,omitempty"`
		} `json:"operations"`
		MaxParallelism int    `json:"max_parallelism,omitempty" doc:"Concurrent operation limit"`
		Policy         string `json:"partial_failure_policy,omitempty" doc:"fail_fast or collect_errors"`
	}
}

type healthOutput struct {
	Body struct {
		Status            string          `json:"status" example:"ok" doc:"Overall health"`
		StorageReachable  bool            `json:"storage_reachable"`
		CacheReachable    bool            `json:"cache_reachable"`
		ExternalEndpoints map[string]bool `json:"external_endpoints,omitempty"`
	}
}

// --- Handlers ---

func (s *Server) handleCreateCollection(ctx context.Context, in *createCollectionInput) (*resultOutput, error) {
	return s.dispatch(ctx, "create_collection", map[string]any{
		"name":         in.Body.Name,
		"dimensions":   in.Body.Dimensions,
		"metric":       in.Body.Metric,
		"index_params": in.Body.IndexParams,
	}, in.Capabilities)
}

func (s *Server) handleListCollections(ctx context.Context, in *listCollectionsInput) (*resultOutput, error) {
	return s.dispatch(ctx, "list_collections", nil, in.Capabilities)
}

func (s *Server) handleDescribeCollection(ctx context.Context, in *collectionNameInput) (*resultOutput, error) {
	return s.dispatch(ctx, "describe_collection", map[string]any{"name": in.Name}, in.Capabilities)
}

func (s *Server) handleDropCollection(ctx context.Context, in *collectionNameInput) (*resultOutput, error) {
	return s.dispatch(ctx, "drop_collection", map[string]any{"name": in.Name}, in.Capabilities)
}

func (s *Server) handleInsertPoint(ctx context.Context, in *insertPointInput) (*resultOutput, error) {
	rec := vector.Record{
		ID:         in.Body.ID,
		Collection: in.Name,
		Embedding:  in.Body.Embedding,
		Payload:    in.Body.Payload,
	}
	return s.dispatch(ctx, "insert", map[string]any{"record": rec}, in.Capabilities)
}

func (s *Server) handleGetPoint(ctx context.Context, in *pointIDInput) (*resultOutput, error) {
	return s.dispatch(ctx, "get", map[string]any{
		"collection": in.Name,
		"id":         in.ID,
	}, in.Capabilities)
}

func (s *Server) handleUpdatePoint(ctx context.Context, in *updatePointInput) (*resultOutput, error) {
	rec := vector.Record{
		ID:         in.ID,
		Collection: in.Name,
		Embedding:  in.Body.Embedding,
		Payload:    in.Body.Payload,
	}
	return s.dispatch(ctx, "update", map[string]any{
		"id":     in.ID,
		"record": rec,
	}, in.Capabilities)
}

func (s *Server) handleDeletePoint(ctx context.Context, in *pointIDInput) (*resultOutput, error) {
	return s.dispatch(ctx, "delete", map[string]any{
		"collection": in.Name,
		"id":         in.ID,
	}, in.Capabilities)
}

func (s *Server) handleDeleteByFilter(ctx context.Context, in *deleteByFilterInput) (*resultOutput, error) {
	return s.dispatch(ctx, "delete", map[string]any{
		"collection": in.Name,
		"filter":     in.Body.Filter,
	}, in.Capabilities)
}

func (s *Server) handleSearch(ctx context.Context, in *searchInput) (*resultOutput, error) {
	return s.dispatch(ctx, "search", searchPayload(in.Name, in.Body), in.Capabilities)
}

func (s *Server) handleHybridSearch(ctx context.Context, in *searchInput) (*resultOutput, error) {
	return s.dispatch(ctx, "search_hybrid", searchPayload(in.Name, in.Body), in.Capabilities)
}

func (s *Server) handleMultiSearch(ctx context.Context, in *multiSearchInput) (*resultOutput, error) {
	return s.dispatch(ctx, "search_multi", map[string]any{
		"requests": in.Body.Requests,
	}, in.Capabilities)
}

func (s *Server) handleRunBatch(ctx context.Context, in *runBatchInput) (*resultOutput, error) {
	ops := make([]map[string]any, len(in.Body.Operations))
	for i, op := range in.Body.Operations {
		entry := map[string]any{
			"kind":       op.Kind,
			"collection": op.Collection,
			"id":         op.ID,
		}
		if op.Record != nil {
			entry["record"] = vector.Record{
				ID:         op.Record.ID,
				Collection: op.Collection,
				Embedding:  op.Record.Embedding,
				Payload:    op.Record.Payload,
			}
		}
		ops[i] = entry
	}
	return s.dispatch(ctx, "batch_run", map[string]any{
		"operations":             ops,
		"max_parallelism":        in.Body.MaxParallelism,
		"partial_failure_policy": in.Body.Policy,
	}, in.Capabilities)
}

func (s *Server) handleHealth(ctx context.Context, _ *struct{}) (*healthOutput, error) {
	report := s.gw.Health(ctx)

	out := &healthOutput{}
	out.Body.Status = statusOf(report)
	out.Body.StorageReachable = report.StorageReachable
	out.Body.CacheReachable = report.CacheReachable
	out.Body.ExternalEndpoints = report.ExternalEndpoints
	return out, nil
}

func statusOf(report health.Report) string {
	if report.Healthy() {
		return "ok"
	}
	return "degraded"
}

// dispatch forwards one normalized request to the gateway and translates
// the typed error kind to an HTTP status.
func (s *Server) dispatch(ctx context.Context, op string, payload map[string]any, capsHeader string) (*resultOutput, error) {
	resp := s.gw.Dispatch(ctx, gateway.Request{
		Operation:    op,
		Payload:      payload,
		Capabilities: splitCapabilities(capsHeader),
	})
	if resp.Err != nil {
		return nil, huma.NewError(vgerr.HTTPStatus(resp.Err), resp.Err.Error())
	}

	out := &resultOutput{}
	out.Body.Status = resp.Status
	out.Body.Result = resp.Body
	return out, nil
}

func searchPayload(collection string, body searchBody) map[string]any {
	req := vector.SearchRequest{
		Collection:     collection,
		QueryVector:    body.QueryVector,
		QueryText:      body.QueryText,
		TopK:           body.TopK,
		Filter:         body.Filter,
		ScoreThreshold: body.ScoreThreshold,
	}

	// Flatten to the generic payload shape every adapter normalizes to.
	raw, _ := json.Marshal(req)
	var payload map[string]any
	_ = json.Unmarshal(raw, &payload)
	return payload
}

func splitCapabilities(header string) []string {
	if header == "" {
		return nil
	}

	var caps []string
	for _, tok := range strings.Split(header, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			caps = append(caps, tok)
		}
	}
	return caps
}
