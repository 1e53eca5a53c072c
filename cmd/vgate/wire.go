// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package main

import (
	"log/slog"

	"github.com/vgate-dev/vgate/internal/backend"
	"github.com/vgate-dev/vgate/internal/backend/sqlite"
	"github.com/vgate-dev/vgate/internal/batch"
	"github.com/vgate-dev/vgate/internal/cache"
	"github.com/vgate-dev/vgate/internal/config"
	"github.com/vgate-dev/vgate/internal/gateway"
	"github.com/vgate-dev/vgate/internal/modelpool"
	openaiep "github.com/vgate-dev/vgate/internal/modelpool/openai"
	"github.com/vgate-dev/vgate/internal/search"
	"github.com/vgate-dev/vgate/internal/server"
	"github.com/vgate-dev/vgate/internal/vectorops"
	vgerr "github.com/vgate-dev/vgate/pkg/errors"
)

// Gateway holds all wired subsystems and manages their lifecycle.
type Gateway struct {
	Server *server.Server
	Pool   *modelpool.Pool

	client *backend.Client
}

// Close releases the storage engine and pool connections.
func (g *Gateway) Close() error {
	var errs []error
	if g.Pool != nil {
		if err := g.Pool.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := g.client.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return vgerr.Join(errs...)
	}
	return nil
}

// WireGateway creates all subsystems and wires them together.
func WireGateway(cfg *config.Config) (*Gateway, error) {
	// 1. Storage engine and resilient client.
	engine, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}

	client, err := backend.NewClient(engine, backend.ClientConfig{
		CallTimeout: cfg.Backend.CallTimeout,
		Retry: backend.RetryPolicy{
			MaxAttempts: cfg.Backend.Retry.MaxAttempts,
			BaseDelay:   cfg.Backend.Retry.BaseDelay,
			MaxDelay:    cfg.Backend.Retry.MaxDelay,
		},
	})
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	// 2. Search result cache.
	resultCache, err := cache.New(cache.Config{MaxEntries: cfg.Cache.MaxEntries})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	// 3. Vector operations manager.
	ops, err := vectorops.NewManager(client, resultCache)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	// 4. External model pool. Nil when no groups are configured; text
	// queries are then rejected at the search layer.
	pool, err := newPool(cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if pool == nil {
		slog.Warn("no model endpoint groups configured, query_text searches will be rejected")
	}

	// 5. Search engine and batch processor.
	se, err := search.NewEngine(ops, pool, search.Config{
		EmbedGroup: cfg.Search.EmbedGroup,
		CacheTTL:   cfg.Cache.TTL,
		MaxTopK:    cfg.Search.MaxTopK,
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	bp, err := batch.NewProcessor(ops)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	// 6. Gateway router and HTTP server.
	gw, err := gateway.NewRouter(ops, se, bp, pool, gateway.Config{
		RequestTimeout: cfg.Gateway.RequestTimeout,
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	srv, err := server.New(server.Config{ListenAddr: cfg.Server.Listen}, gw)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Gateway{Server: srv, Pool: pool, client: client}, nil
}

func newEngine(cfg *config.Config) (backend.Engine, error) {
	switch cfg.Backend.Engine {
	case "sqlite":
		return sqlite.Open(cfg.Backend.Path)
	case "memory":
		return backend.NewMemoryEngine(), nil
	default:
		return nil, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"unknown backend engine %q", cfg.Backend.Engine)
	}
}

func newPool(cfg *config.Config) (*modelpool.Pool, error) {
	if len(cfg.Groups) == 0 {
		return nil, nil
	}

	endpoints := make(map[string]modelpool.Endpoint, len(cfg.Endpoints))
	for name, epCfg := range cfg.Endpoints {
		ep, err := openaiep.New(openaiep.Config{
			Name:    name,
			APIKey:  epCfg.APIKey,
			Model:   epCfg.Model,
			BaseURL: epCfg.BaseURL,
		})
		if err != nil {
			return nil, vgerr.Wrapf(err, vgerr.CodeConfigValidateInvalidValue,
				"creating endpoint %s", name)
		}
		endpoints[name] = ep
	}

	groups := make(map[string]modelpool.Group, len(cfg.Groups))
	for name, grpCfg := range cfg.Groups {
		grp := modelpool.Group{Size: grpCfg.Size}
		for _, epName := range grpCfg.Endpoints {
			ep, ok := endpoints[epName]
			if !ok {
				return nil, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
					"group %s references unknown endpoint %s", name, epName)
			}
			grp.Endpoints = append(grp.Endpoints, ep)
		}
		groups[name] = grp
	}

	return modelpool.New(modelpool.Config{
		FailureThreshold: cfg.Pool.FailureThreshold,
		ProbeInterval:    cfg.Pool.ProbeInterval,
		ProbeTimeout:     cfg.Pool.ProbeTimeout,
	}, groups)
}
