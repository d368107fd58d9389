// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/questgraph/services/sync/broker"
	"github.com/AleutianAI/questgraph/services/sync/engine"
	"github.com/AleutianAI/questgraph/services/sync/handlers"
	"github.com/AleutianAI/questgraph/services/sync/middleware"
	"github.com/AleutianAI/questgraph/services/sync/queue"
	"github.com/AleutianAI/questgraph/services/sync/store"
)

// SetupRoutes wires the sync service endpoints onto the router.
func SetupRoutes(router *gin.Engine, b *broker.Broker, eng *engine.Engine,
	st *store.GraphStore, q *queue.Queue) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.OwnerResolver())
	{
		v1.GET("/graphs/ws", handlers.HandleGraphWebSocket(b))

		graphs := v1.Group("/graphs/:docId")
		{
			graphs.GET("", handlers.GetDocument(st))
			graphs.GET("/version", handlers.GetVersion(st))
			graphs.POST("", handlers.SaveDocument(eng))
			graphs.POST("/commands", handlers.EnqueueCommand(q))
			graphs.GET("/operations", handlers.GetOperations(st))
		}
	}
}
