// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scan enumerates the code files of a repository.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/routescope/routescope/ast"
)

// skipDirs are directory names never descended into. They hold dependencies,
// VCS internals, or build output, none of which define application routes.
var skipDirs = map[string]bool{
	"node_modules":  true,
	".git":          true,
	".hg":           true,
	".svn":          true,
	"dist":          true,
	"build":         true,
	"out":           true,
	".next":         true,
	".svelte-kit":   true,
	".nuxt":         true,
	".turbo":        true,
	".cache":        true,
	"coverage":      true,
	"__snapshots__": true,
}

// Scanner walks a repository root and returns its code files.
//
// Thread Safety: safe for concurrent use after construction.
type Scanner struct {
	excludes []glob.Glob
}

// Option configures a Scanner.
type Option func(*Scanner) error

// WithExcludes adds glob patterns matched against repo-relative paths.
// Matching files are skipped.
func WithExcludes(patterns ...string) Option {
	return func(s *Scanner) error {
		for _, p := range patterns {
			g, err := glob.Compile(p, '/')
			if err != nil {
				return fmt.Errorf("exclude pattern %q: %w", p, err)
			}
			s.excludes = append(s.excludes, g)
		}
		return nil
	}
}

// NewScanner creates a Scanner.
func NewScanner(opts ...Option) (*Scanner, error) {
	s := &Scanner{}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Scan walks rootPath and returns every parseable code file as a sorted
// list of repo-relative paths with forward slashes. Sorted output keeps
// batch composition deterministic across runs.
func (s *Scanner) Scan(ctx context.Context, rootPath string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(rootPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries degrade coverage, never abort the scan.
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if p != rootPath && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		if !ast.IsCodeFile(name) {
			return nil
		}

		rel, err := filepath.Rel(rootPath, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		for _, g := range s.excludes {
			if g.Match(rel) {
				return nil
			}
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", rootPath, err)
	}

	sort.Strings(files)
	return files, nil
}
