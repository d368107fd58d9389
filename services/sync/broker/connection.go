// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package broker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleutianAI/questgraph/services/sync/datatypes"
)

// Connection is the broker-side state for one live websocket. A
// connection subscribes to exactly one (docId, owner) scope at a time;
// re-subscribing replaces the scope.
type Connection struct {
	ID string

	ws     *websocket.Conn
	send   chan datatypes.ServerMessage
	logger *slog.Logger

	mu    sync.RWMutex
	docID string
	owner string

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(id string, ws *websocket.Conn, sendBuffer int, logger *slog.Logger) *Connection {
	return &Connection{
		ID:     id,
		ws:     ws,
		send:   make(chan datatypes.ServerMessage, sendBuffer),
		logger: logger,
		closed: make(chan struct{}),
	}
}

// Scope returns the current (docId, owner) subscription, empty strings
// when the connection has not subscribed yet.
func (c *Connection) Scope() (docID, owner string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docID, c.owner
}

func (c *Connection) setScope(docID, owner string) {
	c.mu.Lock()
	c.docID = docID
	c.owner = owner
	c.mu.Unlock()
}

// Send queues a frame for delivery. Delivery is best-effort at-most-once:
// when the send buffer is full the frame is dropped with a warning
// rather than blocking the broadcast loop on a slow consumer.
func (c *Connection) Send(msg datatypes.ServerMessage) {
	select {
	case <-c.closed:
	case c.send <- msg:
	default:
		c.logger.Warn("dropping frame for slow consumer",
			slog.String("connection_id", c.ID), slog.String("type", string(msg.Type)))
	}
}

// Close tears the websocket down exactly once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// writePump owns all writes to the websocket: queued frames plus the
// liveness pings. Per-socket ordering is the channel's FIFO; nothing
// else writes to the socket.
func (c *Connection) writePump(pingInterval, writeWait time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.logger.Info("websocket write failed, closing",
					slog.String("connection_id", c.ID), slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
