// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/questgraph/services/sync/broker"
	"github.com/AleutianAI/questgraph/services/sync/config"
	"github.com/AleutianAI/questgraph/services/sync/engine"
	"github.com/AleutianAI/questgraph/services/sync/queue"
	"github.com/AleutianAI/questgraph/services/sync/routes"
	"github.com/AleutianAI/questgraph/services/sync/storage/badger"
	"github.com/AleutianAI/questgraph/services/sync/store"
)

// Server owns the sync service components and their lifecycles.
type Server struct {
	cfg    config.Config
	logger *slog.Logger

	db     *badger.DB
	store  *store.GraphStore
	engine *engine.Engine
	broker *broker.Broker
	queue  *queue.Queue
	http   *http.Server
}

// NewServer builds a fully wired server from cfg. Call Run to serve.
func NewServer(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dbCfg := badger.DefaultConfig()
	dbCfg.Path = cfg.DataDir
	dbCfg.Logger = logger
	db, err := badger.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	st := store.New(db, store.Config{HistoryTTL: cfg.HistoryTTL, Logger: logger})
	eng := engine.New(st, logger)

	brokerCfg := broker.DefaultConfig()
	if cfg.PingInterval > 0 {
		brokerCfg.PingInterval = cfg.PingInterval
	}
	b := broker.New(eng, st, brokerCfg, logger)

	queueCfg := queue.DefaultConfig()
	queueCfg.Workers = cfg.QueueWorkers
	queueCfg.Logger = logger
	q := queue.New(db, eng, b, queueCfg)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, b, eng, st, q)

	return &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
		store:  st,
		engine: eng,
		broker: b,
		queue:  q,
		http:   &http.Server{Addr: cfg.Addr, Handler: router},
	}, nil
}

// Run serves until ctx is cancelled, then shuts down in dependency
// order: HTTP listener, live connections, queue workers, storage.
func (s *Server) Run(ctx context.Context) error {
	s.queue.Start(ctx)
	s.logger.Info("sync service listening", slog.String("addr", s.cfg.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.shutdown()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down sync service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown", slog.String("error", err.Error()))
	}
	s.shutdown()
	return nil
}

func (s *Server) shutdown() {
	s.broker.Shutdown()
	s.queue.Stop()
	if err := s.db.Close(); err != nil {
		s.logger.Warn("storage close", slog.String("error", err.Error()))
	}
}
