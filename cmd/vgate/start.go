// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vgate-dev/vgate/internal/config"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the vgate gateway",
		Long:  "Load configuration, initialize all subsystems, and start the HTTP server.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	gw, err := WireGateway(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := gw.Close(); err != nil {
			slog.Warn("shutdown cleanup failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background health probing keeps unhealthy endpoints retried until
	// they recover.
	if gw.Pool != nil {
		go gw.Pool.RunProber(ctx)
	}

	slog.Info("starting vgate", "listen", cfg.Server.Listen, "backend", cfg.Backend.Engine)
	return gw.Server.Start(ctx)
}
