// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph maintains the incremental import dependency graph of a
// repository: forward and reverse edges between files, per-file metadata,
// and the parse products the impact resolver queries.
//
// Nodes live in an arena addressed by stable integer ids; adjacency lists
// hold ids, not path strings. Paths are interned once in a side index.
package graph

import (
	"sort"
	"sync"

	"github.com/routescope/routescope/ast"
	"github.com/routescope/routescope/routes"
)

// NodeID is a stable index into the graph's node arena.
type NodeID int32

// InvalidNode is returned for paths not present in the graph.
const InvalidNode NodeID = -1

// AliasInfo records how an imported file is locally named by one importer.
// The impact resolver matches these aliases against route component names.
type AliasInfo struct {
	// Alias is the local binding name. Empty for side-effect and bare
	// dynamic imports.
	Alias string `json:"alias,omitempty"`

	// ImportedName is the exported name the alias binds ("default", "*",
	// or a named export).
	ImportedName string `json:"imported_name,omitempty"`

	// Kind is the import form that created the edge.
	Kind ast.ImportKind `json:"kind"`
}

// Node is one file (or directory pseudo-path) in the arena.
//
// Invariant: for every id T in Imports of node A, node T's ImportedBy map
// contains A. Both sides are written only by the graph's mutation methods,
// which hold the write lock.
type Node struct {
	// Path is the repo-relative path, forward slashes. Directory
	// pseudo-nodes carry the bare directory path.
	Path string

	// Imports lists the files this node imports (forward edges).
	Imports []NodeID

	// ImportedBy maps importer id to the aliases the importer binds this
	// file under (reverse edges).
	ImportedBy map[NodeID][]AliasInfo

	// IsRouteFile is set when the file defines at least one route.
	IsRouteFile bool

	// IsEntryPoint is set by the entry-point heuristic for importer-less
	// roots.
	IsEntryPoint bool

	// IsDirectory marks a directory pseudo-node created for an
	// extensionless directory import.
	IsDirectory bool
}

// FileRecord is the cached parse product for one file: imports, exports,
// routes, and the content identity governing cache validity.
type FileRecord struct {
	Path         string                   `json:"path"`
	Imports      []ast.ImportEdge         `json:"imports,omitempty"`
	Exports      ast.ExportInfo           `json:"exports"`
	Routes       []routes.RouteDefinition `json:"routes,omitempty"`
	Hash         string                   `json:"hash,omitempty"`
	LastModified int64                    `json:"last_modified,omitempty"`
	ParseErrors  []string                 `json:"parse_errors,omitempty"`
}

// Stats is the observability snapshot of a graph.
type Stats struct {
	TotalFiles  int `json:"total_files"`
	RouteFiles  int `json:"route_files"`
	EntryPoints int `json:"entry_points"`
	ImportEdges int `json:"import_edges"`
}

// Graph owns the node arena, the path index, the file cache, and the
// component-to-route index.
//
// Thread Safety: all exported methods lock internally. Mutations are
// expected from a single writer (the builder or refresher); concurrent
// readers are safe against it.
type Graph struct {
	mu sync.RWMutex

	nodes []*Node
	index map[string]NodeID

	// files caches the parse product per file path.
	files map[string]*FileRecord

	// routesByComponent indexes extracted routes by component name for the
	// precise impact lookup.
	routesByComponent map[string][]routes.RouteDefinition

	// version increments on every mutation. Query caches tag entries with
	// the version they were computed at; a mismatch means stale.
	version uint64
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		index:             make(map[string]NodeID),
		files:             make(map[string]*FileRecord),
		routesByComponent: make(map[string][]routes.RouteDefinition),
	}
}

// Version returns the current mutation counter.
func (g *Graph) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// Intern returns the id for a path, creating the node when absent.
func (g *Graph) Intern(path string) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.internLocked(path)
}

func (g *Graph) internLocked(path string) NodeID {
	if id, ok := g.index[path]; ok {
		return id
	}
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, &Node{
		Path:       path,
		ImportedBy: make(map[NodeID][]AliasInfo),
	})
	g.index[path] = id
	g.version++
	return id
}

// Lookup returns the id for a path, or InvalidNode.
func (g *Graph) Lookup(path string) NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if id, ok := g.index[path]; ok {
		return id
	}
	return InvalidNode
}

// Path returns the path of a node id.
func (g *Graph) Path(id NodeID) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if id < 0 || int(id) >= len(g.nodes) {
		return ""
	}
	return g.nodes[id].Path
}

// AddEdge records that importer imports target under the given alias. Both
// edge directions are written together under the lock.
func (g *Graph) AddEdge(importer, target NodeID, alias AliasInfo) {
	if importer == target {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.validLocked(importer) || !g.validLocked(target) {
		return
	}

	from, to := g.nodes[importer], g.nodes[target]
	if !containsID(from.Imports, target) {
		from.Imports = append(from.Imports, target)
	}
	existing := to.ImportedBy[importer]
	for _, a := range existing {
		if a == alias {
			g.version++
			return
		}
	}
	to.ImportedBy[importer] = append(existing, alias)
	g.version++
}

// RemoveForwardEdges detaches every forward edge of the node, clearing the
// matching reverse entries. Used when a file is reparsed.
func (g *Graph) RemoveForwardEdges(id NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.validLocked(id) {
		return
	}
	node := g.nodes[id]
	for _, target := range node.Imports {
		delete(g.nodes[target].ImportedBy, id)
	}
	node.Imports = nil
	g.version++
}

// Importers returns the reverse edges of a node: each importer id with the
// aliases it binds the node under. The returned slices are copies.
func (g *Graph) Importers(id NodeID) map[NodeID][]AliasInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.validLocked(id) {
		return nil
	}
	out := make(map[NodeID][]AliasInfo, len(g.nodes[id].ImportedBy))
	for importer, aliases := range g.nodes[id].ImportedBy {
		out[importer] = append([]AliasInfo(nil), aliases...)
	}
	return out
}

// Imports returns the forward edges of a node.
func (g *Graph) Imports(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.validLocked(id) {
		return nil
	}
	return append([]NodeID(nil), g.nodes[id].Imports...)
}

// NodeInfo returns a copy of the node's metadata flags.
func (g *Graph) NodeInfo(id NodeID) (path string, isRoute, isEntry, isDir bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.validLocked(id) {
		return "", false, false, false
	}
	n := g.nodes[id]
	return n.Path, n.IsRouteFile, n.IsEntryPoint, n.IsDirectory
}

// SetRouteFile sets the route flag on a node.
func (g *Graph) SetRouteFile(id NodeID, isRoute bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.validLocked(id) && g.nodes[id].IsRouteFile != isRoute {
		g.nodes[id].IsRouteFile = isRoute
		g.version++
	}
}

// SetEntryPoint sets the entry-point flag on a node.
func (g *Graph) SetEntryPoint(id NodeID, isEntry bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.validLocked(id) && g.nodes[id].IsEntryPoint != isEntry {
		g.nodes[id].IsEntryPoint = isEntry
		g.version++
	}
}

// SetDirectory marks a node as a directory pseudo-node.
func (g *Graph) SetDirectory(id NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.validLocked(id) && !g.nodes[id].IsDirectory {
		g.nodes[id].IsDirectory = true
		g.version++
	}
}

// SetFileRecord replaces the cached parse product for a file and refreshes
// the component-to-route index.
func (g *Graph) SetFileRecord(rec *FileRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if old, ok := g.files[rec.Path]; ok {
		g.dropComponentRoutesLocked(old)
	}
	g.files[rec.Path] = rec
	for _, route := range rec.Routes {
		if route.ComponentName == "" {
			continue
		}
		g.routesByComponent[route.ComponentName] = append(g.routesByComponent[route.ComponentName], route)
	}
	g.version++
}

// FileRecord returns the cached parse product for a path, or nil.
func (g *Graph) FileRecord(path string) *FileRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.files[path]
}

// RemoveFile drops a file's record, edges, and index entries. The node
// itself stays in the arena so ids remain stable; it just becomes inert.
func (g *Graph) RemoveFile(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.files[path]; ok {
		g.dropComponentRoutesLocked(rec)
		delete(g.files, path)
	}
	id, ok := g.index[path]
	if !ok {
		g.version++
		return
	}
	node := g.nodes[id]
	for _, target := range node.Imports {
		delete(g.nodes[target].ImportedBy, id)
	}
	node.Imports = nil
	for importer := range node.ImportedBy {
		g.nodes[importer].Imports = removeID(g.nodes[importer].Imports, id)
	}
	node.ImportedBy = make(map[NodeID][]AliasInfo)
	node.IsRouteFile = false
	node.IsEntryPoint = false
	g.version++
}

func (g *Graph) dropComponentRoutesLocked(rec *FileRecord) {
	for _, route := range rec.Routes {
		if route.ComponentName == "" {
			continue
		}
		kept := g.routesByComponent[route.ComponentName][:0]
		for _, r := range g.routesByComponent[route.ComponentName] {
			if r.DefiningFile != rec.Path {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(g.routesByComponent, route.ComponentName)
		} else {
			g.routesByComponent[route.ComponentName] = kept
		}
	}
}

// RoutesForComponent returns the routes registered under a component name.
func (g *Graph) RoutesForComponent(name string) []routes.RouteDefinition {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]routes.RouteDefinition(nil), g.routesByComponent[name]...)
}

// Files returns every cached file path, sorted.
func (g *Graph) Files() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	paths := make([]string, 0, len(g.files))
	for p := range g.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Stats computes the observability snapshot.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := Stats{TotalFiles: len(g.files)}
	for _, n := range g.nodes {
		if n.IsRouteFile {
			s.RouteFiles++
		}
		if n.IsEntryPoint {
			s.EntryPoints++
		}
		s.ImportEdges += len(n.Imports)
	}
	return s
}

// Clear resets the graph to empty.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = nil
	g.index = make(map[string]NodeID)
	g.files = make(map[string]*FileRecord)
	g.routesByComponent = make(map[string][]routes.RouteDefinition)
	g.version++
}

func (g *Graph) validLocked(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

func containsID(ids []NodeID, id NodeID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []NodeID, id NodeID) []NodeID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
