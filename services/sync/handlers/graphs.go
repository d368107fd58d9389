// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the gin handlers for the sync service:
// the websocket upgrade endpoint and the thin REST wrappers over the
// store, engine, and command queue.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/questgraph/pkg/validation"
	"github.com/AleutianAI/questgraph/services/sync/datatypes"
	"github.com/AleutianAI/questgraph/services/sync/engine"
	"github.com/AleutianAI/questgraph/services/sync/middleware"
	"github.com/AleutianAI/questgraph/services/sync/queue"
	"github.com/AleutianAI/questgraph/services/sync/store"
)

// SaveDocumentRequest is the bulk-save payload. This is the ingress the
// plan-generation pipeline uses to land a whole generated graph; its
// link symmetry is validated before it reaches this endpoint.
type SaveDocumentRequest struct {
	Nodes    []*datatypes.Node  `json:"nodes" binding:"required"`
	Edges    []datatypes.Edge   `json:"edges"`
	Viewport datatypes.Viewport `json:"viewport"`
	Settings datatypes.Settings `json:"settings"`
}

// EnqueueCommandRequest wraps one command for the queue ingress.
type EnqueueCommandRequest struct {
	Command datatypes.Command `json:"command" binding:"required"`
}

func docIDParam(c *gin.Context) (string, bool) {
	docID := c.Param("docId")
	if err := validation.ValidateDocID(docID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return docID, true
}

// GetDocument returns the current snapshot for (owner, docId). Absent
// documents materialize empty at version 0.
func GetDocument(st *store.GraphStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, ok := docIDParam(c)
		if !ok {
			return
		}
		doc, err := st.Load(c.Request.Context(), middleware.GetOwner(c), docID)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

// GetVersion returns just the persisted version number.
func GetVersion(st *store.GraphStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, ok := docIDParam(c)
		if !ok {
			return
		}
		version, err := st.Version(c.Request.Context(), middleware.GetOwner(c), docID)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"docId": docID, "version": version})
	}
}

// SaveDocument replaces the whole document body through the engine's
// bulk-save path (version continuity and progress recompute included).
func SaveDocument(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, ok := docIDParam(c)
		if !ok {
			return
		}
		var req SaveDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed document payload: " + err.Error()})
			return
		}
		doc := &datatypes.Document{
			Nodes:    req.Nodes,
			Edges:    req.Edges,
			Viewport: req.Viewport,
			Settings: req.Settings,
		}
		if doc.Edges == nil {
			doc.Edges = []datatypes.Edge{}
		}
		res, err := eng.ReplaceDocument(c.Request.Context(), middleware.GetOwner(c), docID, doc)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"docId": docID, "version": res.Version})
	}
}

// EnqueueCommand accepts one command onto the durable queue and returns
// 202 with the task id. The apply happens asynchronously; live
// subscribers see it via the normal broadcast path.
func EnqueueCommand(q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, ok := docIDParam(c)
		if !ok {
			return
		}
		var req EnqueueCommandRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed command payload: " + err.Error()})
			return
		}
		taskID, err := q.Enqueue(c.Request.Context(), middleware.GetOwner(c), docID, req.Command)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue unavailable"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"taskId": taskID})
	}
}

// GetOperations returns the bounded per-document operation log, oldest
// first.
func GetOperations(st *store.GraphStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, ok := docIDParam(c)
		if !ok {
			return
		}
		entries, err := st.OpLog(c.Request.Context(), middleware.GetOwner(c), docID)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}
		if entries == nil {
			entries = []store.OpLogEntry{}
		}
		c.JSON(http.StatusOK, gin.H{"docId": docID, "operations": entries})
	}
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
