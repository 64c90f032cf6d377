// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package api exposes the analyzer over HTTP for CI systems and editor
// integrations that prefer a long-running server to repeated CLI runs.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/routescope/routescope"
	"github.com/routescope/routescope/gitdiff"
)

// ServiceVersion is the Routescope service version.
const ServiceVersion = "1.0.0"

// Handlers contains the HTTP handlers for the analyzer endpoints.
type Handlers struct {
	analyzer *routescope.Analyzer
	logger   *slog.Logger
}

// NewHandlers creates handlers around an Analyzer.
func NewHandlers(analyzer *routescope.Analyzer, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{analyzer: analyzer, logger: logger}
}

// HandleInit handles POST /v1/routescope/init.
//
// Response:
//
//	200 OK: InitResponse
//	400 Bad Request: Invalid body
//	500 Internal Server Error: Build failure
func (h *Handlers) HandleInit(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleInit")

	var req InitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Invalid request body",
				Code:  "INVALID_REQUEST",
			})
			return
		}
	}

	start := time.Now()
	source := "snapshot"
	var err error
	if req.Force {
		source = "build"
		err = h.analyzer.ForceRebuild(c.Request.Context())
	} else {
		err = h.analyzer.Load(c.Request.Context())
	}
	if err != nil {
		logger.Error("init failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "INIT_FAILED",
		})
		return
	}

	if err := h.analyzer.Persist(c.Request.Context()); err != nil {
		logger.Warn("persist after init failed", "error", err)
	}

	m := h.analyzer.Metrics()
	logger.Info("graph initialized",
		"files", m.TotalFiles,
		"route_files", m.RouteFiles,
		"duration_ms", time.Since(start).Milliseconds())

	c.JSON(http.StatusOK, InitResponse{
		TotalFiles:  m.TotalFiles,
		RouteFiles:  m.RouteFiles,
		EntryPoints: m.EntryPoints,
		ImportEdges: m.ImportEdges,
		DurationMs:  time.Since(start).Milliseconds(),
		Source:      source,
	})
}

// HandleDetect handles POST /v1/routescope/detect.
//
// Response:
//
//	200 OK: DetectResponse
//	400 Bad Request: Invalid body or unparseable diff
//	409 Conflict: Graph not initialized
func (h *Handlers) HandleDetect(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleDetect")

	var req DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	files := req.Files
	if req.Diff != "" {
		changes, err := gitdiff.Parse(req.Diff)
		if err != nil {
			logger.Warn("unparseable diff", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: err.Error(),
				Code:  "INVALID_DIFF",
			})
			return
		}
		files = append(files, gitdiff.CodePaths(changes)...)
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "either files or diff is required",
			Code:  "EMPTY_CHANGE_SET",
		})
		return
	}

	if req.Refresh {
		if _, err := h.analyzer.Update(c.Request.Context(), files); err != nil {
			if errors.Is(err, routescope.ErrNotReady) {
				c.JSON(http.StatusConflict, ErrorResponse{
					Error: err.Error(),
					Code:  "NOT_INITIALIZED",
				})
				return
			}
			logger.Error("refresh failed", "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: err.Error(),
				Code:  "REFRESH_FAILED",
			})
			return
		}
	}

	impact, err := h.analyzer.DetectRoutes(c.Request.Context(), files)
	if err != nil {
		if errors.Is(err, routescope.ErrNotReady) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: err.Error(),
				Code:  "NOT_INITIALIZED",
			})
			return
		}
		logger.Error("detect failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "DETECT_FAILED",
		})
		return
	}

	logger.Info("impact resolved",
		"changed_files", len(files),
		"routes", len(unionRoutes(impact)))

	c.JSON(http.StatusOK, DetectResponse{
		Impact: impact,
		Routes: unionRoutes(impact),
	})
}

// HandleMetrics handles GET /v1/routescope/metrics.
func (h *Handlers) HandleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.analyzer.Metrics())
}

// HandleClear handles POST /v1/routescope/clear.
func (h *Handlers) HandleClear(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleClear")

	if err := h.analyzer.Clear(c.Request.Context()); err != nil {
		logger.Error("clear failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "CLEAR_FAILED",
		})
		return
	}
	logger.Info("graph and snapshot cleared")
	c.Status(http.StatusNoContent)
}

// HandleHealth handles GET /v1/routescope/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: ServiceVersion,
		Ready:   h.analyzer.Ready(),
	})
}

// getOrCreateRequestID propagates or mints the X-Request-ID header.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// unionRoutes collects the distinct routes across all changed files.
func unionRoutes(impact map[string][]string) []string {
	seen := make(map[string]bool)
	var routes []string
	for _, rs := range impact {
		for _, r := range rs {
			if !seen[r] {
				seen[r] = true
				routes = append(routes, r)
			}
		}
	}
	sort.Strings(routes)
	return routes
}
