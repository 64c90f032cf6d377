// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes extracts route definitions from front-end source files.
// Three independent idioms are detected and their results unioned: route-table
// object literals, JSX route elements, and file-system routing conventions.
package routes

import (
	"sort"
	"strings"
)

// IndexRouteMarker is the sentinel path emitted for an index route that has
// no parent path to inherit.
const IndexRouteMarker = "<index>"

// RouteDefinition records one route found in a source file.
type RouteDefinition struct {
	// Path is the full route path template, parent segments joined in.
	// May contain :param, *rest, or *rest? markers for dynamic segments.
	Path string `json:"path"`

	// ComponentName is the identifier of the component rendered at this
	// route, as written at the definition site. Empty for file-system
	// routes, where the defining file is itself the component.
	ComponentName string `json:"component_name,omitempty"`

	// DefiningFile is the repository-relative path of the file the route
	// was extracted from.
	DefiningFile string `json:"defining_file"`

	// SourceLine is the 1-based line of the definition. Zero for
	// file-system routes.
	SourceLine int `json:"source_line,omitempty"`

	// SourceOffset is the byte offset of the definition site. Only
	// meaningful when SourceLine is non-zero.
	SourceOffset int `json:"source_offset,omitempty"`

	// IsIndex marks an index route (rendered at its parent's path).
	IsIndex bool `json:"is_index,omitempty"`
}

// JoinPaths joins a parent route path with a child segment the way nested
// route tables compose them.
func JoinPaths(parent, child string) string {
	switch {
	case child == "":
		if parent == "" {
			return IndexRouteMarker
		}
		return parent
	case strings.HasPrefix(child, "/"):
		return child
	case parent == "" || parent == "/":
		return "/" + child
	default:
		return strings.TrimSuffix(parent, "/") + "/" + child
	}
}

// CompleteRoutes drops any path that is a path-boundary suffix of another
// discovered path, keeping only the longest forms. With both "/settings" and
// "/admin/settings" present only the latter survives.
func CompleteRoutes(paths []string) []string {
	if len(paths) <= 1 {
		return paths
	}

	keep := make([]string, 0, len(paths))
	for _, p := range paths {
		suffix := false
		for _, q := range paths {
			if len(q) > len(p) && isPathSuffix(q, p) {
				suffix = true
				break
			}
		}
		if !suffix {
			keep = append(keep, p)
		}
	}
	sort.Strings(keep)
	return keep
}

// isPathSuffix reports whether p is a suffix of q starting at a path
// segment boundary.
func isPathSuffix(q, p string) bool {
	if !strings.HasSuffix(q, p) {
		return false
	}
	if strings.HasPrefix(p, "/") {
		return true
	}
	return q[len(q)-len(p)-1] == '/'
}

// Dedup removes duplicate definitions, keeping the first occurrence of each
// (path, component, file) triple. Order is preserved.
func Dedup(defs []RouteDefinition) []RouteDefinition {
	type key struct {
		path, component, file string
	}
	seen := make(map[key]bool, len(defs))
	out := defs[:0]
	for _, d := range defs {
		k := key{d.Path, d.ComponentName, d.DefiningFile}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	return out
}
