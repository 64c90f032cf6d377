// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gitdiff turns unified diff output into the changed-file list
// the impact resolver and graph refresher consume.
package gitdiff

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/routescope/routescope/ast"
)

// ChangeKind classifies what happened to a file in a diff.
type ChangeKind int

const (
	ChangeModified ChangeKind = iota
	ChangeAdded
	ChangeDeleted
	ChangeRenamed
)

// String implements fmt.Stringer.
func (k ChangeKind) String() string {
	switch k {
	case ChangeModified:
		return "modified"
	case ChangeAdded:
		return "added"
	case ChangeDeleted:
		return "deleted"
	case ChangeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Change is one changed file extracted from a diff.
type Change struct {
	// Path is the file's current repo-relative path. For deletions it is
	// the path the file had before removal.
	Path string

	// OldPath is set for renames.
	OldPath string

	Kind ChangeKind
}

// Parse reads a multi-file unified diff and returns one Change per file,
// sorted by path. Paths are normalized to forward slashes with the git
// a/ and b/ prefixes stripped.
func Parse(patch string) ([]Change, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}

	changes := make([]Change, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		origName := normalizePath(fd.OrigName)
		newName := normalizePath(fd.NewName)

		var c Change
		switch {
		case newName == "":
			c = Change{Path: origName, Kind: ChangeDeleted}
		case origName == "":
			c = Change{Path: newName, Kind: ChangeAdded}
		case origName != newName:
			c = Change{Path: newName, OldPath: origName, Kind: ChangeRenamed}
		default:
			c = Change{Path: newName, Kind: ChangeModified}
		}
		if c.Path == "" {
			continue
		}
		changes = append(changes, c)
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

// CodePaths filters changes down to analyzable source files and returns
// their paths. A rename contributes both sides so the old path's graph
// node is removed and the new one built.
func CodePaths(changes []Change) []string {
	seen := make(map[string]bool, len(changes))
	paths := make([]string, 0, len(changes))
	add := func(p string) {
		if p == "" || seen[p] || !ast.IsCodeFile(p) {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}
	for _, c := range changes {
		add(c.Path)
		add(c.OldPath)
	}
	sort.Strings(paths)
	return paths
}

// ChangedFiles reads a unified diff and returns the changed code paths.
// Shorthand for Parse followed by CodePaths when the caller holds a
// stream such as piped git output.
func ChangedFiles(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read diff: %w", err)
	}
	changes, err := Parse(string(data))
	if err != nil {
		return nil, err
	}
	return CodePaths(changes), nil
}

// normalizePath strips git's a/ and b/ prefixes and the /dev/null
// sentinel, returning a clean forward-slash path.
func normalizePath(name string) string {
	if name == "" || name == "/dev/null" {
		return ""
	}
	name = strings.TrimPrefix(name, "a/")
	name = strings.TrimPrefix(name, "b/")
	return filepath.ToSlash(name)
}
