// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/routescope/routescope/ast"
)

// Default cache capacities.
const (
	DefaultParseCacheSize = 4096
	DefaultQueryCacheSize = 1024
)

// QueryEntry is one cached route-query answer, tagged with the graph
// version it was computed at. Entries from older versions are stale and
// ignored on read.
type QueryEntry struct {
	Version uint64
	Paths   []string
}

// Caches bundles the LRU caches shared by the builder and the impact
// resolver: parse products keyed by content hash, and route-query answers
// keyed by file path.
//
// Thread Safety: safe for concurrent use.
type Caches struct {
	parsed *lru.Cache[string, *ast.FileNode]
	query  *lru.Cache[string, QueryEntry]
}

// NewCaches creates the cache set. Sizes of zero or less use the defaults.
func NewCaches(parseSize, querySize int) (*Caches, error) {
	if parseSize <= 0 {
		parseSize = DefaultParseCacheSize
	}
	if querySize <= 0 {
		querySize = DefaultQueryCacheSize
	}

	parsed, err := lru.New[string, *ast.FileNode](parseSize)
	if err != nil {
		return nil, fmt.Errorf("parse cache: %w", err)
	}
	query, err := lru.New[string, QueryEntry](querySize)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	return &Caches{parsed: parsed, query: query}, nil
}

// Parsed returns the cached parse product for a content hash.
func (c *Caches) Parsed(hash string) (*ast.FileNode, bool) {
	return c.parsed.Get(hash)
}

// StoreParsed caches a parse product under its content hash.
func (c *Caches) StoreParsed(hash string, node *ast.FileNode) {
	if hash != "" {
		c.parsed.Add(hash, node)
	}
}

// Query returns the cached route-query answer for a path when it was
// computed at the given graph version.
func (c *Caches) Query(path string, version uint64) ([]string, bool) {
	entry, ok := c.query.Get(path)
	if !ok || entry.Version != version {
		return nil, false
	}
	return entry.Paths, true
}

// StoreQuery caches a route-query answer at a graph version.
func (c *Caches) StoreQuery(path string, version uint64, paths []string) {
	c.query.Add(path, QueryEntry{Version: version, Paths: paths})
}

// InvalidateQueries drops the route-query entries for the given paths.
func (c *Caches) InvalidateQueries(paths []string) {
	for _, p := range paths {
		c.query.Remove(p)
	}
}

// Size returns the combined entry count across caches.
func (c *Caches) Size() int {
	return c.parsed.Len() + c.query.Len()
}

// Clear empties both caches.
func (c *Caches) Clear() {
	c.parsed.Purge()
	c.query.Purge()
}
