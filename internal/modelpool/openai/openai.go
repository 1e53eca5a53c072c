// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

// Package openai implements the external model endpoint boundary using the
// OpenAI embeddings API.
package openai

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/vgate-dev/vgate/internal/modelpool"
	vgerr "github.com/vgate-dev/vgate/pkg/errors"
)

// DefaultModel is the embedding model used when config leaves it unset.
const DefaultModel = "text-embedding-3-small"

// Config holds OpenAI endpoint configuration.
type Config struct {
	// Name identifies this endpoint inside its group; defaults to "openai".
	Name    string
	APIKey  string
	Model   string
	BaseURL string // optional, useful for testing against a mock server
}

// Compile-time interface check.
var _ modelpool.Endpoint = (*Endpoint)(nil)

// Endpoint implements modelpool.Endpoint using the OpenAI embeddings API.
type Endpoint struct {
	client openaisdk.Client
	cfg    Config
}

// New creates an OpenAI endpoint. Returns an error if the API key is missing.
func New(cfg Config) (*Endpoint, error) {
	if cfg.APIKey == "" {
		return nil, vgerr.New(vgerr.CodeConfigValidateInvalidValue,
			"openai: missing api_key in config")
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Endpoint{client: openaisdk.NewClient(opts...), cfg: cfg}, nil
}

func (e *Endpoint) ID() string { return e.cfg.Name }

func (e *Endpoint) Embed(ctx context.Context, input string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(input)},
		Model: openaisdk.EmbeddingModel(e.cfg.Model),
	})
	if err != nil {
		return nil, vgerr.Wrap(err, vgerr.CodeBackendUpstreamFailure,
			"openai embedding request failed", vgerr.FieldEndpoint(e.cfg.Name))
	}
	if len(resp.Data) == 0 {
		return nil, vgerr.New(vgerr.CodeBackendUpstreamFailure,
			"openai returned no embedding data", vgerr.FieldEndpoint(e.cfg.Name))
	}

	raw := resp.Data[0].Embedding
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)
	}
	return out, nil
}

// Probe lists models as a lightweight liveness check.
func (e *Endpoint) Probe(ctx context.Context) error {
	_, err := e.client.Models.List(ctx)
	if err != nil {
		return vgerr.Wrap(err, vgerr.CodeBackendUnavailable,
			"openai liveness probe failed", vgerr.FieldEndpoint(e.cfg.Name))
	}
	return nil
}

func (e *Endpoint) Close() error { return nil }
