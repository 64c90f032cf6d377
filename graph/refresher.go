// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/routescope/routescope/ast"
)

// Refresher applies incremental updates to an existing graph when files
// change. Only the changed files are reparsed; everything else keeps its
// cached parse product.
type Refresher struct {
	builder *Builder
	logger  *slog.Logger
}

// NewRefresher creates a Refresher sharing the builder's parser, extractor,
// and caches.
func NewRefresher(builder *Builder) *Refresher {
	return &Refresher{
		builder: builder,
		logger:  builder.logger,
	}
}

// Update reparses the changed files and rewires their edges.
//
// Description:
//
//	For each changed file: deleted files are detached from the graph;
//	unchanged files (same mtime as the cached record) are skipped; the
//	rest are reparsed, their old forward edges removed, and new edges
//	merged in. Route-query cache entries for the changed files and every
//	file in their transitive importer closure are invalidated, since those
//	cached answers may now be stale.
//
// Outputs:
//
//	[]FileError - Per-file failures; analysis of other files continues.
//	error - Cancellation only.
func (r *Refresher) Update(ctx context.Context, g *Graph, rootPath string, changed []string) ([]FileError, error) {
	if len(changed) == 0 {
		return nil, nil
	}

	ctx, span := startRefreshSpan(ctx, len(changed))
	defer span.End()
	start := time.Now()

	// Collect the stale query keys against the pre-update edge set: the
	// importers that cached answers through the old edges are exactly the
	// ones whose answers may change.
	stale := make(map[string]bool, len(changed))
	for _, rel := range changed {
		rel = filepath.ToSlash(rel)
		stale[rel] = true
		if id := g.Lookup(rel); id != InvalidNode {
			for _, p := range r.transitiveImporters(g, id) {
				stale[p] = true
			}
		}
	}

	resolverFiles := g.Files()
	for _, rel := range changed {
		resolverFiles = append(resolverFiles, filepath.ToSlash(rel))
	}
	resolver := ast.NewResolver(resolverFiles, ast.WithAlias("@/", r.builder.aliasRoot+"/"))

	dirPairs := make(map[NodeID]NodeID)
	var fileErrors []FileError

	for _, rel := range changed {
		rel = filepath.ToSlash(rel)
		if !ast.IsCodeFile(rel) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fileErrors, err
		}

		full := filepath.Join(rootPath, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil {
			if os.IsNotExist(err) {
				g.RemoveFile(rel)
				r.logger.Debug("removed deleted file", slog.String("file", rel))
				continue
			}
			fileErrors = append(fileErrors, FileError{Path: rel, Err: err})
			continue
		}

		if existing := g.FileRecord(rel); existing != nil &&
			existing.LastModified == info.ModTime().UnixMilli() && existing.Hash != "" {
			continue
		}

		rec, fe, err := r.builder.parseOne(ctx, rootPath, rel)
		if err != nil {
			return fileErrors, err
		}
		if fe != nil {
			fileErrors = append(fileErrors, *fe)
		}
		if rec == nil {
			continue
		}

		id := g.Intern(rel)
		g.RemoveForwardEdges(id)
		r.builder.mergeRecord(g, resolver, rec, dirPairs)
	}

	r.builder.linkDirectoryPairs(g, dirPairs)
	r.builder.markEntryPoints(g, g.Files())

	staleList := make([]string, 0, len(stale))
	for p := range stale {
		staleList = append(staleList, p)
	}
	r.builder.caches.InvalidateQueries(staleList)

	recordRefreshMetrics(ctx, len(changed), len(fileErrors))
	r.logger.Info("graph refresh complete",
		slog.Int("changed", len(changed)),
		slog.Int("invalidatedQueries", len(staleList)),
		slog.Int("fileErrors", len(fileErrors)),
		slog.Duration("elapsed", time.Since(start)))

	return fileErrors, nil
}

// refreshIterationCap bounds the importer-closure walk on pathological
// graphs.
const refreshIterationCap = 100_000

// transitiveImporters walks reverse edges from a node and returns every
// importer path in its closure.
func (r *Refresher) transitiveImporters(g *Graph, id NodeID) []string {
	visited := map[NodeID]bool{id: true}
	queue := []NodeID{id}
	var paths []string
	iterations := 0

	for len(queue) > 0 {
		if iterations++; iterations > refreshIterationCap {
			r.logger.Warn("importer closure iteration cap reached",
				slog.String("file", g.Path(id)))
			break
		}
		current := queue[0]
		queue = queue[1:]
		for importer := range g.Importers(current) {
			if visited[importer] {
				continue
			}
			visited[importer] = true
			queue = append(queue, importer)
			paths = append(paths, g.Path(importer))
		}
	}
	return paths
}
