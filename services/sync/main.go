// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// The sync service binary: the goal-graph synchronization engine behind
// one gin HTTP surface. The Server struct is the explicit context
// object owning the store, engine, broker, and queue; nothing lives in
// package-level state.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/questgraph/pkg/logging"
	"github.com/AleutianAI/questgraph/services/sync/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("QUESTGRAPH_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogDir,
		Service: "sync",
		JSON:    cfg.LogDir != "",
	})
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	server, err := NewServer(cfg, logger.Logger)
	if err != nil {
		logger.Error("server init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
