// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ast

import (
	"path"
	"sort"
	"strings"
)

// ResolutionKind classifies the outcome of resolving an import specifier.
type ResolutionKind int

const (
	// ResolutionFile means the specifier maps to a source file in the repo.
	ResolutionFile ResolutionKind = iota
	// ResolutionDirectory means the specifier names a repo directory whose
	// index file could not be determined from the file set alone. Callers
	// link these through a directory pseudo-node.
	ResolutionDirectory
	// ResolutionExternal means the specifier names a package dependency.
	ResolutionExternal
	// ResolutionUnknown means the specifier is repo-relative but no file or
	// directory matched.
	ResolutionUnknown
)

// extensionCandidates is the probe order for extensionless specifiers.
// TypeScript before JavaScript matches bundler behavior.
var extensionCandidates = []string{
	".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".mts", ".cts", ".svelte", ".vue",
}

// indexBasenames are probed inside a directory target, in order.
var indexBasenames = []string{
	"index.ts", "index.tsx", "index.js", "index.jsx", "index.mjs", "index.cjs",
}

// Resolver maps import specifiers to repo-relative file paths.
//
// Thread Safety: safe for concurrent use after construction; the file set
// and alias table are read-only.
type Resolver struct {
	aliases map[string]string
	exists  func(string) bool
	isDir   func(string) bool
	ordered []string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithAlias registers a specifier prefix rewrite, e.g. "@/" to "src/".
func WithAlias(prefix, target string) ResolverOption {
	return func(r *Resolver) {
		r.aliases[prefix] = target
	}
}

// NewResolver builds a resolver over a fixed set of repo-relative file
// paths. Directory membership is derived from the file set.
func NewResolver(files []string, opts ...ResolverOption) *Resolver {
	fileSet := make(map[string]bool, len(files))
	dirSet := make(map[string]bool)
	for _, f := range files {
		f = path.Clean(f)
		fileSet[f] = true
		for d := path.Dir(f); d != "." && d != "/"; d = path.Dir(d) {
			if dirSet[d] {
				break
			}
			dirSet[d] = true
		}
	}

	r := &Resolver{
		aliases: map[string]string{"@/": "src/"},
		exists:  func(p string) bool { return fileSet[p] },
		isDir:   func(p string) bool { return dirSet[p] },
	}
	for _, opt := range opts {
		opt(r)
	}

	// Longest prefix wins when aliases overlap.
	r.ordered = make([]string, 0, len(r.aliases))
	for prefix := range r.aliases {
		r.ordered = append(r.ordered, prefix)
	}
	sort.Slice(r.ordered, func(i, j int) bool { return len(r.ordered[i]) > len(r.ordered[j]) })

	return r
}

// Resolve maps a specifier found in importerPath to a repo-relative path.
//
// Relative specifiers resolve against the importing file's directory.
// Aliased specifiers rewrite their prefix first. Bare specifiers are
// external packages.
func (r *Resolver) Resolve(importerPath, specifier string) (string, ResolutionKind) {
	if specifier == "" {
		return "", ResolutionUnknown
	}

	var base string
	switch {
	case strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../"):
		base = path.Join(path.Dir(importerPath), specifier)
	case strings.HasPrefix(specifier, "/"):
		base = path.Clean(specifier[1:])
	default:
		rewritten := r.rewriteAlias(specifier)
		if rewritten == "" {
			return specifier, ResolutionExternal
		}
		base = path.Clean(rewritten)
	}

	// Query strings and fragments carry bundler directives, not path parts.
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}

	if r.exists(base) {
		return base, ResolutionFile
	}
	for _, ext := range extensionCandidates {
		if cand := base + ext; r.exists(cand) {
			return cand, ResolutionFile
		}
	}
	for _, idx := range indexBasenames {
		if cand := path.Join(base, idx); r.exists(cand) {
			return cand, ResolutionFile
		}
	}
	if r.isDir(base) {
		return base, ResolutionDirectory
	}
	return base, ResolutionUnknown
}

// rewriteAlias applies the longest matching alias prefix, or returns "".
func (r *Resolver) rewriteAlias(specifier string) string {
	for _, prefix := range r.ordered {
		if strings.HasPrefix(specifier, prefix) {
			return r.aliases[prefix] + specifier[len(prefix):]
		}
	}
	return ""
}
