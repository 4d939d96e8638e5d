// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enrich

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all enrichment routes with the router.
//
// Description:
//
//	Registers all /v1/enrich/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/enrich/segment - Match thesaurus concepts against one segment
//	GET  /v1/enrich/health - Health and loaded-resource stats
//
// Example:
//
//	service := enrich.NewService()
//	handlers := enrich.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	enrich.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	RegisterRoutesWithMiddleware(rg, handlers, nil)
}

// RegisterRoutesWithMiddleware registers enrichment routes with optional
// middleware on the enrichment endpoint.
//
// Description:
//
//	Same as RegisterRoutes but applies middleware (e.g., the warmup guard)
//	to POST /segment. The health endpoint stays unguarded so probes see the
//	service during warmup. If middleware is nil, none is applied.
//
// Thread Safety: This function is safe for concurrent use.
func RegisterRoutesWithMiddleware(rg *gin.RouterGroup, handlers *Handlers, middleware gin.HandlerFunc) {
	enrich := rg.Group("/enrich")
	{
		enrich.GET("/health", handlers.HandleHealth)

		if middleware != nil {
			enrich.POST("/segment", middleware, handlers.HandleEnrichSegment)
		} else {
			enrich.POST("/segment", handlers.HandleEnrichSegment)
		}
	}
}
