// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

// Package modelpool manages bounded pools of reusable connections to
// external inference endpoints, with per-endpoint health tracking and
// round-robin distribution across equivalent endpoints.
package modelpool

import "context"

// Endpoint is the external model boundary: a request/response call that
// turns input into an embedding vector, plus a lightweight liveness probe
// used by health tracking.
type Endpoint interface {
	ID() string
	Embed(ctx context.Context, input string) ([]float32, error)
	Probe(ctx context.Context) error
	Close() error
}

// StaticEndpoint is a deterministic in-process endpoint used as the default
// backend in tests and local setups. EmbedFunc and ProbeFunc may be swapped
// to simulate failures.
type StaticEndpoint struct {
	Name      string
	EmbedFunc func(ctx context.Context, input string) ([]float32, error)
	ProbeFunc func(ctx context.Context) error
}

func (s *StaticEndpoint) ID() string { return s.Name }

func (s *StaticEndpoint) Embed(ctx context.Context, input string) ([]float32, error) {
	return s.EmbedFunc(ctx, input)
}

func (s *StaticEndpoint) Probe(ctx context.Context) error {
	if s.ProbeFunc == nil {
		return nil
	}
	return s.ProbeFunc(ctx)
}

func (s *StaticEndpoint) Close() error { return nil }
