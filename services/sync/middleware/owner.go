// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the sync service.
//
// The open source build resolves document ownership from the
// X-Owner-ID header, defaulting to "local-user" so the service works
// without any identity infrastructure. Enterprise deployments replace
// this with real token validation in front of the same context key.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/questgraph/pkg/validation"
)

const ownerContextKey = "questgraph.owner"

// DefaultOwner is used when no X-Owner-ID header is present.
const DefaultOwner = "local-user"

// OwnerResolver extracts the owner id for the request and stores it in
// the gin context. Malformed owner ids abort with 400 before any
// handler runs.
func OwnerResolver() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetHeader("X-Owner-ID")
		if owner == "" {
			owner = DefaultOwner
		}
		if err := validation.ValidateOwner(owner); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Set(ownerContextKey, owner)
		c.Next()
	}
}

// GetOwner returns the owner id resolved for this request.
func GetOwner(c *gin.Context) string {
	if owner, ok := c.Get(ownerContextKey); ok {
		if s, ok := owner.(string); ok {
			return s
		}
	}
	return DefaultOwner
}
