// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package impact answers the core question: given a changed file, which
// application routes are affected. It walks reverse import edges outward
// from the changed file and matches route component names against the
// aliases the traversed files are imported under.
package impact

import (
	"context"
	"log/slog"
	"sort"

	"github.com/routescope/routescope/ast"
	"github.com/routescope/routescope/graph"
	"github.com/routescope/routescope/routes"
)

// DefaultIterationCap bounds BFS traversal on pathological graphs. The
// visited set already guarantees termination; the cap is a backstop that
// logs a warning rather than failing.
const DefaultIterationCap = 10_000

// Policy controls how the precise component-index lookup combines with the
// broader BFS result.
type Policy int

const (
	// PolicyPreferPrecise discards the BFS result entirely when the
	// component-index lookup is non-empty. Precision over recall.
	PolicyPreferPrecise Policy = iota

	// PolicyUnionResults unions both result sets. Recall over precision.
	PolicyUnionResults
)

// String returns the config label for the policy.
func (p Policy) String() string {
	if p == PolicyUnionResults {
		return "union"
	}
	return "prefer-precise"
}

// ParsePolicy converts a config label to a Policy.
func ParsePolicy(s string) Policy {
	if s == "union" {
		return PolicyUnionResults
	}
	return PolicyPreferPrecise
}

// Resolver runs route-impact queries against a graph.
//
// Thread Safety: safe for concurrent queries against a read-mostly graph;
// each query writes only its own cache slot.
type Resolver struct {
	graph        *graph.Graph
	caches       *graph.Caches
	logger       *slog.Logger
	policy       Policy
	iterationCap int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPolicy sets the precise-versus-broad combination policy.
func WithPolicy(p Policy) Option {
	return func(r *Resolver) {
		r.policy = p
	}
}

// WithIterationCap overrides the BFS iteration backstop.
func WithIterationCap(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.iterationCap = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a Resolver over a graph and its cache set.
func NewResolver(g *graph.Graph, caches *graph.Caches, opts ...Option) *Resolver {
	r := &Resolver{
		graph:        g,
		caches:       caches,
		logger:       slog.Default(),
		policy:       PolicyPreferPrecise,
		iterationCap: DefaultIterationCap,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DetectRoutes maps each changed file to its affected route paths.
func (r *Resolver) DetectRoutes(ctx context.Context, changedFiles []string) map[string][]string {
	out := make(map[string][]string, len(changedFiles))
	for _, path := range changedFiles {
		if err := ctx.Err(); err != nil {
			return out
		}
		out[path] = r.DetectRoutesForFile(ctx, path)
	}
	return out
}

// DetectRoutesForFile returns the route paths affected by a change to one
// file.
//
// Description:
//
//	Results are served from the route-query cache when the graph is
//	unchanged since they were computed. Otherwise the resolver walks
//	reverse edges from the file, collecting matching routes from every
//	route-defining file reached, consults the precise component index,
//	combines per policy, and filters to complete route paths. A file
//	absent from the graph contributes no routes; that is a degraded
//	answer, not an error.
func (r *Resolver) DetectRoutesForFile(ctx context.Context, path string) []string {
	version := r.graph.Version()
	if cached, ok := r.caches.Query(path, version); ok {
		recordQueryMetrics(ctx, true, 0, len(cached))
		return append([]string(nil), cached...)
	}

	ctx, span := startQuerySpan(ctx, path)
	defer span.End()

	id := r.graph.Lookup(path)
	if id == graph.InvalidNode {
		r.logger.Debug("queried file not in graph", slog.String("file", path))
		r.caches.StoreQuery(path, version, nil)
		recordQueryMetrics(ctx, false, 0, 0)
		return nil
	}

	var result []string

	// A route file's own routes are affected by definition.
	if rec := r.graph.FileRecord(path); rec != nil && len(rec.Routes) > 0 {
		for _, def := range rec.Routes {
			result = append(result, def.Path)
		}
	}

	broad, iterations := r.bfs(id)
	precise := r.precise(id, path)

	switch {
	case r.policy == PolicyPreferPrecise && len(precise) > 0:
		result = append(result, precise...)
	default:
		result = append(result, broad...)
		result = append(result, precise...)
	}

	result = routes.CompleteRoutes(sortedUnique(result))
	r.caches.StoreQuery(path, version, result)

	setQuerySpanResult(span, iterations, len(result))
	recordQueryMetrics(ctx, false, iterations, len(result))
	return result
}

// bfs walks reverse edges from the changed file. For each traversal step
// C -> I (I imports C) the aliases I binds C under are the names the chain
// is known by inside I; routes defined in I match when their component name
// is one of those aliases.
func (r *Resolver) bfs(start graph.NodeID) ([]string, int) {
	visited := map[graph.NodeID]bool{start: true}
	queue := []graph.NodeID{start}
	var found []string
	iterations := 0

	for len(queue) > 0 {
		if iterations++; iterations > r.iterationCap {
			r.logger.Warn("impact traversal iteration cap reached",
				slog.String("file", r.graph.Path(start)),
				slog.Int("cap", r.iterationCap))
			break
		}

		current := queue[0]
		queue = queue[1:]

		for importer, aliases := range r.graph.Importers(current) {
			_, isRoute, _, _ := r.graph.NodeInfo(importer)
			if isRoute {
				found = append(found, r.matchRoutes(importer, aliases)...)
			}
			if visited[importer] {
				continue
			}
			visited[importer] = true
			queue = append(queue, importer)
		}
	}

	return found, iterations
}

// matchRoutes returns the routes of a route file whose component names
// match the aliases the traversed file is bound under inside it. Routes
// without a component name (file-system routes) and edges without a stable
// alias (namespace, side-effect, bare dynamic) match unconditionally:
// dropping them would trade silent misses for precision.
func (r *Resolver) matchRoutes(routeFile graph.NodeID, aliases []graph.AliasInfo) []string {
	path, _, _, _ := r.graph.NodeInfo(routeFile)
	rec := r.graph.FileRecord(path)
	if rec == nil || len(rec.Routes) == 0 {
		return nil
	}

	names := make(map[string]bool, len(aliases))
	matchAll := false
	for _, a := range aliases {
		switch {
		case a.Kind == ast.ImportKindNamespace, a.Alias == "":
			matchAll = true
		default:
			names[a.Alias] = true
		}
	}

	var out []string
	for _, def := range rec.Routes {
		if matchAll || def.ComponentName == "" || names[def.ComponentName] {
			out = append(out, def.Path)
		}
	}
	return out
}

// precise consults the component-to-route index under every name the
// changed file is known by: its export names plus the aliases its direct
// importers bind it under. Lazy-import aliases land here even when they
// differ from the exported name.
func (r *Resolver) precise(id graph.NodeID, path string) []string {
	names := make(map[string]bool)
	if rec := r.graph.FileRecord(path); rec != nil {
		for _, n := range rec.Exports.Names() {
			names[n] = true
		}
	}
	for _, aliases := range r.graph.Importers(id) {
		for _, a := range aliases {
			if a.Alias != "" {
				names[a.Alias] = true
			}
		}
	}

	var out []string
	for name := range names {
		for _, def := range r.graph.RoutesForComponent(name) {
			out = append(out, def.Path)
		}
	}
	return out
}

func sortedUnique(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	sort.Strings(paths)
	out := paths[:1]
	for _, p := range paths[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}
