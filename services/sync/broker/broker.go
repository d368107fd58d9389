// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package broker manages live websocket subscriptions and fans applied
// operations out to every connection viewing the same document.
//
// The broker owns the connection registry explicitly: it is constructed
// with its dependencies and passed where needed, never held as package
// state. Applied operations are delivered to every connection sharing
// the (docId, owner) scope, including the one that issued the command,
// so all clients converge on the server-applied truth. ERROR frames go
// only to the issuing connection.
package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/questgraph/pkg/validation"
	"github.com/AleutianAI/questgraph/services/sync/datatypes"
	"github.com/AleutianAI/questgraph/services/sync/engine"
	"github.com/AleutianAI/questgraph/services/sync/store"
)

var (
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "questgraph_connections_active",
		Help: "Live websocket connections",
	})

	broadcastTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "questgraph_broadcast_frames_total",
		Help: "OPERATION_APPLIED frames handed to connection send queues",
	}, []string{"doc_id"})
)

// Config holds broker timing knobs.
type Config struct {
	// PingInterval is how often the server pings each connection.
	PingInterval time.Duration

	// PongWait is how long a connection may go without any inbound
	// traffic (including pongs) before it is forcibly terminated.
	PongWait time.Duration

	// WriteWait bounds each individual socket write.
	WriteWait time.Duration

	// SendBuffer is the per-connection outbound frame queue length.
	SendBuffer int
}

// DefaultConfig returns production timing defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval: 30 * time.Second,
		PongWait:     75 * time.Second,
		WriteWait:    10 * time.Second,
		SendBuffer:   64,
	}
}

// Broker routes websocket frames between clients and the engine.
//
// Thread Safety: safe for concurrent use. Each connection runs its own
// read and write goroutines; the registry is mutex-guarded.
type Broker struct {
	engine *engine.Engine
	store  *store.GraphStore
	cfg    Config
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Connection
}

// New creates a Broker.
func New(eng *engine.Engine, st *store.GraphStore, cfg Config, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PingInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Broker{
		engine: eng,
		store:  st,
		cfg:    cfg,
		logger: logger,
		conns:  make(map[string]*Connection),
	}
}

// HandleConnection serves one upgraded websocket until it disconnects.
// It registers the connection, sends CONNECTION_ESTABLISHED, and runs
// the read loop; the write pump runs on its own goroutine.
func (b *Broker) HandleConnection(ctx context.Context, ws *websocket.Conn) {
	conn := newConnection(uuid.New().String(), ws, b.cfg.SendBuffer, b.logger)

	b.register(conn)
	defer b.unregister(conn)

	go conn.writePump(b.cfg.PingInterval, b.cfg.WriteWait)

	conn.Send(datatypes.ServerMessage{
		Type:         datatypes.MsgConnectionEstablished,
		ConnectionID: conn.ID,
	})

	_ = ws.SetReadDeadline(time.Now().Add(b.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(b.cfg.PongWait))
	})

	for {
		var msg datatypes.ClientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			b.logger.Info("websocket client disconnected",
				slog.String("connection_id", conn.ID), slog.String("error", err.Error()))
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(b.cfg.PongWait))
		b.dispatch(ctx, conn, msg)
	}
}

func (b *Broker) dispatch(ctx context.Context, conn *Connection, msg datatypes.ClientMessage) {
	switch msg.Type {
	case datatypes.MsgSubscribe:
		b.handleSubscribe(ctx, conn, msg)
	case datatypes.MsgOperation:
		b.handleOperation(ctx, conn, msg)
	case datatypes.MsgSync:
		b.handleSync(ctx, conn)
	case datatypes.MsgPing:
		conn.Send(datatypes.ServerMessage{Type: datatypes.MsgPong})
	default:
		conn.Send(errorFrame("unknown message type: " + string(msg.Type)))
	}
}

func (b *Broker) handleSubscribe(ctx context.Context, conn *Connection, msg datatypes.ClientMessage) {
	if err := validation.ValidateDocID(msg.DocID); err != nil {
		conn.Send(errorFrame(err.Error()))
		return
	}
	if err := validation.ValidateOwner(msg.Owner); err != nil {
		conn.Send(errorFrame(err.Error()))
		return
	}

	// The periodic leaf reset, when due, runs before the snapshot so the
	// subscriber never sees pre-reset completion state.
	doc, err := b.engine.LoadForSubscribe(ctx, msg.Owner, msg.DocID, time.Now())
	if err != nil {
		b.logger.Error("subscribe failed",
			slog.String("connection_id", conn.ID), slog.String("doc_id", msg.DocID),
			slog.String("error", err.Error()))
		conn.Send(errorFrame("subscribe failed: store unavailable"))
		return
	}

	conn.setScope(msg.DocID, msg.Owner)
	conn.Send(datatypes.ServerMessage{
		Type:     datatypes.MsgDocumentState,
		Document: doc,
	})
	b.logger.Info("connection subscribed",
		slog.String("connection_id", conn.ID), slog.String("doc_id", msg.DocID),
		slog.String("owner", msg.Owner))
}

func (b *Broker) handleOperation(ctx context.Context, conn *Connection, msg datatypes.ClientMessage) {
	docID, owner := conn.Scope()
	if docID == "" {
		conn.Send(errorFrame("not subscribed"))
		return
	}
	if msg.Command == nil {
		conn.Send(errorFrame("OPERATION frame missing command"))
		return
	}

	_, err := b.engine.Apply(ctx, owner, docID, *msg.Command, conn.ID)
	if err != nil {
		// Engine failures never crash the process and never reach other
		// connections; only the issuer learns about them.
		b.reportApplyError(conn, *msg.Command, err)
		return
	}

	b.BroadcastApplied(owner, docID, *msg.Command, conn.ID)
}

func (b *Broker) reportApplyError(conn *Connection, cmd datatypes.Command, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownCommand):
		conn.Send(errorFrame("command not applied: " + err.Error()))
	case engine.NotFound(err):
		conn.Send(errorFrame("target not found: " + err.Error()))
	case errors.Is(err, engine.ErrInvalidPayload), errors.Is(err, engine.ErrDuplicateNode):
		conn.Send(errorFrame("command rejected: " + err.Error()))
	default:
		b.logger.Error("command apply failed",
			slog.String("connection_id", conn.ID), slog.String("command", string(cmd.Type)),
			slog.String("error", err.Error()))
		conn.Send(errorFrame("command failed: store unavailable"))
	}
}

func (b *Broker) handleSync(ctx context.Context, conn *Connection) {
	docID, owner := conn.Scope()
	if docID == "" {
		conn.Send(errorFrame("not subscribed"))
		return
	}
	doc, err := b.store.Load(ctx, owner, docID)
	if err != nil {
		conn.Send(errorFrame("sync failed: store unavailable"))
		return
	}
	conn.Send(datatypes.ServerMessage{
		Type:     datatypes.MsgSyncResponse,
		Document: doc,
	})
}

// BroadcastApplied delivers an OPERATION_APPLIED frame to every live
// connection subscribed to (docId, owner), including the originator.
// Queue-ingress applies call this with an empty connectionID.
func (b *Broker) BroadcastApplied(owner, docID string, cmd datatypes.Command, connectionID string) {
	frame := datatypes.ServerMessage{
		Type:         datatypes.MsgOperationApplied,
		Command:      &cmd,
		ConnectionID: connectionID,
		Timestamp:    time.Now().UTC(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, conn := range b.conns {
		d, o := conn.Scope()
		if d != docID || o != owner {
			continue
		}
		conn.Send(frame)
		broadcastTotal.WithLabelValues(docID).Inc()
	}
}

// ConnectionCount returns the number of live connections.
func (b *Broker) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// Shutdown closes every live connection.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	conns := make([]*Connection, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (b *Broker) register(conn *Connection) {
	b.mu.Lock()
	b.conns[conn.ID] = conn
	b.mu.Unlock()
	activeConnections.Inc()
}

func (b *Broker) unregister(conn *Connection) {
	conn.Close()
	b.mu.Lock()
	delete(b.conns, conn.ID)
	b.mu.Unlock()
	activeConnections.Dec()
}

func errorFrame(message string) datatypes.ServerMessage {
	return datatypes.ServerMessage{Type: datatypes.MsgError, Message: message}
}
