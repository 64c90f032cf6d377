// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

// InitRequest is the body of POST /v1/routescope/init.
type InitRequest struct {
	// Force rebuilds from source, ignoring any persisted snapshot.
	Force bool `json:"force"`
}

// InitResponse reports graph statistics after initialization.
type InitResponse struct {
	TotalFiles  int    `json:"total_files"`
	RouteFiles  int    `json:"route_files"`
	EntryPoints int    `json:"entry_points"`
	ImportEdges int    `json:"import_edges"`
	DurationMs  int64  `json:"duration_ms"`
	Source      string `json:"source"` // "snapshot" or "build"
}

// DetectRequest is the body of POST /v1/routescope/detect. Exactly one
// of Files or Diff must be set.
type DetectRequest struct {
	// Files lists changed repo-relative paths.
	Files []string `json:"files,omitempty"`

	// Diff is raw unified diff output; changed files are extracted
	// from it.
	Diff string `json:"diff,omitempty"`

	// Refresh runs an incremental graph update for the changed files
	// before resolving impact.
	Refresh bool `json:"refresh"`
}

// DetectResponse maps each changed file to its affected routes.
type DetectResponse struct {
	Impact map[string][]string `json:"impact"`

	// Routes is the union of all affected routes, sorted.
	Routes []string `json:"routes"`
}

// HealthResponse is the body of GET /v1/routescope/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Ready   bool   `json:"ready"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`
}
