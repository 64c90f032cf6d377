// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ast parses JavaScript and TypeScript source files with tree-sitter
// and extracts the import edges and exported symbols that feed the dependency
// graph. Parsing is error-tolerant: syntactically broken files produce partial
// results, and files that cannot be parsed at all are reported as empty
// FileNodes rather than failures.
package ast

import "fmt"

// Default limits for the parser.
const (
	// DefaultMaxFileSize is the size guard for source files (1 MiB).
	// Larger files are treated as unparseable and skipped.
	DefaultMaxFileSize = 1 << 20

	// WarnFileSize is the threshold above which a warning is logged
	// before parsing (512 KiB).
	WarnFileSize = 512 << 10
)

// ImportKind classifies how a module is imported.
type ImportKind int

const (
	// ImportKindUnknown indicates an unrecognized import form.
	ImportKindUnknown ImportKind = iota

	// ImportKindDefault is `import X from 'mod'`.
	ImportKindDefault

	// ImportKindNamed is `import { a, b as c } from 'mod'`.
	ImportKindNamed

	// ImportKindNamespace is `import * as ns from 'mod'`.
	ImportKindNamespace

	// ImportKindSideEffect is `import 'mod'` with no bindings.
	ImportKindSideEffect

	// ImportKindDynamic is a bare `import('mod')` expression. Dynamic
	// imports have no stable local name.
	ImportKindDynamic

	// ImportKindLazy is a dynamic import wrapped in a lazy-loading helper,
	// `const X = lazy(() => import('mod'))`. Unlike a bare dynamic import
	// the binding X is a stable local alias for the module's default export.
	ImportKindLazy

	// ImportKindType is a type-only import, `import type { T } from 'mod'`.
	ImportKindType

	// ImportKindCommonJS is `const x = require('mod')`.
	ImportKindCommonJS

	// ImportKindReExport is an `export ... from 'mod'` edge. The source
	// module is a dependency even though nothing is bound locally.
	ImportKindReExport
)

// importKindNames maps ImportKind values to their string representations.
var importKindNames = map[ImportKind]string{
	ImportKindUnknown:    "unknown",
	ImportKindDefault:    "default",
	ImportKindNamed:      "named",
	ImportKindNamespace:  "namespace",
	ImportKindSideEffect: "side_effect",
	ImportKindDynamic:    "dynamic",
	ImportKindLazy:       "lazy",
	ImportKindType:       "type",
	ImportKindCommonJS:   "commonjs",
	ImportKindReExport:   "re_export",
}

// String returns the string representation of the ImportKind.
func (k ImportKind) String() string {
	if name, ok := importKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseImportKind converts a string back to an ImportKind. Used when
// rehydrating persisted graph snapshots.
func ParseImportKind(s string) ImportKind {
	for k, name := range importKindNames {
		if name == s {
			return k
		}
	}
	return ImportKindUnknown
}

// ImportEdge records one import binding in a file.
//
// A file may carry several edges to the same target module, one per local
// alias: `import Users, { list as fetchUsers } from './users'` yields two
// edges to ./users with aliases "Users" and "fetchUsers".
type ImportEdge struct {
	// Specifier is the raw module specifier as written in the source.
	Specifier string `json:"specifier"`

	// Resolved is the repository-relative path of the target file, or the
	// directory pseudo-path for extensionless directory imports. Empty for
	// external packages (bare specifiers), which produce no graph edge.
	Resolved string `json:"resolved,omitempty"`

	// LocalAlias is the name the binding is known by inside the importing
	// file. Empty for side-effect, bare dynamic, and re-export edges.
	LocalAlias string `json:"local_alias,omitempty"`

	// ImportedName is the exported name being bound for named imports
	// (`import { a as b }` has ImportedName "a", LocalAlias "b").
	// "default" for default imports, "*" for namespace imports.
	ImportedName string `json:"imported_name,omitempty"`

	// Kind classifies the import form.
	Kind ImportKind `json:"kind"`

	// Line is the 1-based source line of the import.
	Line int `json:"line"`
}

// IsExternal reports whether the edge targets a package outside the
// repository.
func (e ImportEdge) IsExternal() bool {
	return e.Resolved == ""
}

// ModuleKind distinguishes ES modules from CommonJS modules.
type ModuleKind int

const (
	// ModuleKindESM is an ES module (import/export syntax).
	ModuleKindESM ModuleKind = iota

	// ModuleKindCommonJS is a CommonJS module (require/module.exports).
	ModuleKindCommonJS
)

// String returns "esm" or "commonjs".
func (k ModuleKind) String() string {
	if k == ModuleKindCommonJS {
		return "commonjs"
	}
	return "esm"
}

// ExportInfo describes what a file exports.
type ExportInfo struct {
	// DefaultName is the name of the default export, when it has one
	// ("export default Users" or "export default function Users()").
	// Anonymous default exports leave this empty but set HasDefault.
	DefaultName string `json:"default_name,omitempty"`

	// HasDefault is true when the file has any default export.
	HasDefault bool `json:"has_default,omitempty"`

	// Named maps exported name to the local name it is bound to.
	// `export { users as userList }` yields Named["userList"] = "users".
	Named map[string]string `json:"named,omitempty"`

	// ReExports maps exported name to the source specifier it is forwarded
	// from. The wildcard `export * from './x'` uses key "*".
	ReExports map[string]string `json:"re_exports,omitempty"`

	// ModuleKind is esm unless only CommonJS export forms were found.
	ModuleKind ModuleKind `json:"module_kind"`
}

// NewExportInfo returns an ExportInfo with allocated maps.
func NewExportInfo() ExportInfo {
	return ExportInfo{
		Named:     make(map[string]string),
		ReExports: make(map[string]string),
	}
}

// Names returns every name under which this file's contents can be imported:
// the default export name plus all named export names.
func (e ExportInfo) Names() []string {
	names := make([]string, 0, len(e.Named)+1)
	if e.DefaultName != "" {
		names = append(names, e.DefaultName)
	}
	for exported := range e.Named {
		names = append(names, exported)
	}
	return names
}

// FileNode is the per-file parse product: the file's import edges and
// export surface, plus the content identity used for cache validation.
//
// A FileNode is immutable once returned by the parser. Cache validity is
// governed solely by Hash and LastModified comparison, never by wall-clock
// TTL. When either changes the node is replaced wholesale.
type FileNode struct {
	// Path is the repository-relative file path, forward slashes.
	Path string `json:"path"`

	// Imports are the file's import edges in source order.
	Imports []ImportEdge `json:"imports,omitempty"`

	// Exports is the file's export surface.
	Exports ExportInfo `json:"exports"`

	// Hash is the SHA-256 of the file contents, lowercase hex.
	Hash string `json:"hash,omitempty"`

	// LastModified is the file mtime in Unix milliseconds.
	LastModified int64 `json:"last_modified,omitempty"`

	// ParseErrors holds non-fatal problems encountered while parsing.
	// A node with errors may still carry partial imports/exports.
	ParseErrors []string `json:"parse_errors,omitempty"`
}

// EmptyFileNode returns the node substituted for files that could not be
// parsed (binary, oversized, or broken beyond tree-sitter's tolerance).
func EmptyFileNode(path string, reason error) *FileNode {
	node := &FileNode{
		Path:    path,
		Exports: NewExportInfo(),
	}
	if reason != nil {
		node.ParseErrors = []string{reason.Error()}
	}
	return node
}

// Validate checks structural invariants on the FileNode.
func (n *FileNode) Validate() error {
	if n.Path == "" {
		return fmt.Errorf("file node has empty path")
	}
	for i, imp := range n.Imports {
		if imp.Specifier == "" {
			return fmt.Errorf("import[%d] has empty specifier", i)
		}
	}
	return nil
}
