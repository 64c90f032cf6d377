// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/routescope/routescope/graph"
)

// SnapshotVersion is the current snapshot document format version.
// Loading a document with a different version fails with
// ErrSnapshotInvalid, which callers treat as a full-rebuild signal.
const SnapshotVersion = 1

// Document is the persisted form of a dependency graph.
type Document struct {
	Version   int                  `json:"version"`
	Timestamp time.Time            `json:"timestamp"`
	Graph     []graph.NodeSnapshot `json:"graph"`
	FileCache []*graph.FileRecord  `json:"fileCache"`
}

// Key returns the store key for a repository's snapshot.
func Key(namespace, repo string) string {
	namespace = strings.Trim(namespace, "/")
	repo = strings.Trim(repo, "/")
	return namespace + "/" + repo + "/import-graph.json"
}

// Save serializes g and writes it under the given key.
//
// Description: The document carries both the adjacency snapshot and the
// full parse records, so a restored graph can answer impact queries and
// serve incremental refreshes without reparsing unchanged files.
func Save(ctx context.Context, s Store, key string, g *graph.Graph) error {
	nodes, files := g.Export()
	doc := Document{
		Version:   SnapshotVersion,
		Timestamp: time.Now().UTC(),
		Graph:     nodes,
		FileCache: files,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.Put(ctx, key, data)
}

// Load reads a snapshot and rebuilds the graph.
//
// Outputs:
//
//	*graph.Graph - The restored graph.
//	error - ErrKeyNotFound when no snapshot exists, ErrSnapshotInvalid
//	        when the document is corrupt or from another format version.
//	        Both mean the caller should rebuild from source.
func Load(ctx context.Context, s Store, key string) (*graph.Graph, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotInvalid, err)
	}
	if doc.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrSnapshotInvalid, doc.Version, SnapshotVersion)
	}
	g := graph.Restore(doc.Graph, doc.FileCache)
	return g, nil
}
