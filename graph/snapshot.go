// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import "sort"

// NodeSnapshot is the serialized form of one graph node. Adjacency is
// exported as path strings; ids are an in-memory detail and never persisted.
type NodeSnapshot struct {
	File         string   `json:"file"`
	Imports      []string `json:"imports,omitempty"`
	ImportedBy   []string `json:"importedBy,omitempty"`
	IsRouteFile  bool     `json:"isRouteFile,omitempty"`
	IsEntryPoint bool     `json:"isEntryPoint,omitempty"`
	IsDirectory  bool     `json:"isDirectory,omitempty"`
}

// Export serializes the node arena and the file cache. Output is sorted by
// path so snapshots are byte-stable across runs.
func (g *Graph) Export() ([]NodeSnapshot, []*FileRecord) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]NodeSnapshot, 0, len(g.nodes))
	for _, n := range g.nodes {
		snap := NodeSnapshot{
			File:         n.Path,
			IsRouteFile:  n.IsRouteFile,
			IsEntryPoint: n.IsEntryPoint,
			IsDirectory:  n.IsDirectory,
		}
		for _, target := range n.Imports {
			snap.Imports = append(snap.Imports, g.nodes[target].Path)
		}
		for importer := range n.ImportedBy {
			snap.ImportedBy = append(snap.ImportedBy, g.nodes[importer].Path)
		}
		sort.Strings(snap.Imports)
		sort.Strings(snap.ImportedBy)
		nodes = append(nodes, snap)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].File < nodes[j].File })

	files := make([]*FileRecord, 0, len(g.files))
	for _, rec := range g.files {
		files = append(files, rec)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return nodes, files
}

// Restore rebuilds a graph from a snapshot. Edges are rehydrated from the
// file records' resolved import edges, which carry the alias information
// the node snapshots do not; node snapshots contribute the metadata flags.
func Restore(nodes []NodeSnapshot, files []*FileRecord) *Graph {
	g := New()

	for _, rec := range files {
		id := g.Intern(rec.Path)
		g.SetFileRecord(rec)
		for _, edge := range rec.Imports {
			if edge.Resolved == "" {
				continue
			}
			target := g.Intern(edge.Resolved)
			g.AddEdge(id, target, AliasInfo{
				Alias:        edge.LocalAlias,
				ImportedName: edge.ImportedName,
				Kind:         edge.Kind,
			})
		}
	}

	for _, snap := range nodes {
		id := g.Intern(snap.File)
		if snap.IsRouteFile {
			g.SetRouteFile(id, true)
		}
		if snap.IsEntryPoint {
			g.SetEntryPoint(id, true)
		}
		if snap.IsDirectory {
			g.SetDirectory(id)
		}
	}

	return g
}
