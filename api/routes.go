// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all Routescope endpoints with the router group.
//
// Endpoints:
//
//	POST /v1/routescope/init - Build or load the import graph
//	POST /v1/routescope/detect - Resolve route impact for changed files
//	GET  /v1/routescope/metrics - Graph statistics
//	POST /v1/routescope/clear - Drop the graph and snapshot
//	GET  /v1/routescope/health - Health check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rs := rg.Group("/routescope")
	{
		rs.POST("/init", handlers.HandleInit)
		rs.POST("/detect", handlers.HandleDetect)
		rs.GET("/metrics", handlers.HandleMetrics)
		rs.POST("/clear", handlers.HandleClear)
		rs.GET("/health", handlers.HandleHealth)
	}
}
