// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ast

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func parseSource(t *testing.T, filePath, source string) *FileNode {
	t.Helper()
	p := NewParser()
	node, err := p.ParseFile(context.Background(), []byte(source), filePath)
	if err != nil {
		t.Fatalf("ParseFile(%s) error: %v", filePath, err)
	}
	return node
}

// findImport returns the first edge matching the specifier, or fails.
func findImport(t *testing.T, node *FileNode, specifier string) ImportEdge {
	t.Helper()
	for _, e := range node.Imports {
		if e.Specifier == specifier {
			return e
		}
	}
	t.Fatalf("no import edge for %q, have %+v", specifier, node.Imports)
	return ImportEdge{}
}

func TestParseFile_StaticImports(t *testing.T) {
	node := parseSource(t, "src/app.ts", `
import Users from './users';
import { list, detail as userDetail } from './views';
import * as helpers from '../lib/helpers';
import './styles.css';
import type { Config } from './config';
`)

	t.Run("default import", func(t *testing.T) {
		e := findImport(t, node, "./users")
		if e.Kind != ImportKindDefault {
			t.Errorf("kind = %v, want default", e.Kind)
		}
		if e.LocalAlias != "Users" || e.ImportedName != "default" {
			t.Errorf("alias/name = %q/%q", e.LocalAlias, e.ImportedName)
		}
	})

	t.Run("named imports produce one edge per binding", func(t *testing.T) {
		var edges []ImportEdge
		for _, e := range node.Imports {
			if e.Specifier == "./views" {
				edges = append(edges, e)
			}
		}
		if len(edges) != 2 {
			t.Fatalf("got %d edges for ./views, want 2", len(edges))
		}
		if edges[0].LocalAlias != "list" || edges[0].ImportedName != "list" {
			t.Errorf("plain binding = %+v", edges[0])
		}
		if edges[1].LocalAlias != "userDetail" || edges[1].ImportedName != "detail" {
			t.Errorf("aliased binding = %+v", edges[1])
		}
	})

	t.Run("namespace import", func(t *testing.T) {
		e := findImport(t, node, "../lib/helpers")
		if e.Kind != ImportKindNamespace || e.LocalAlias != "helpers" || e.ImportedName != "*" {
			t.Errorf("edge = %+v", e)
		}
	})

	t.Run("side-effect import", func(t *testing.T) {
		e := findImport(t, node, "./styles.css")
		if e.Kind != ImportKindSideEffect || e.LocalAlias != "" {
			t.Errorf("edge = %+v", e)
		}
	})

	t.Run("type-only import", func(t *testing.T) {
		e := findImport(t, node, "./config")
		if e.Kind != ImportKindType {
			t.Errorf("kind = %v, want type", e.Kind)
		}
	})
}

func TestParseFile_DynamicAndLazy(t *testing.T) {
	node := parseSource(t, "src/routes.tsx", `
import React, { lazy } from 'react';
const Settings = lazy(() => import('./pages/Settings'));
const Admin = React.lazy(() => import('./pages/Admin'));

function load() {
  return import('./pages/About');
}
`)

	t.Run("lazy wrapper keeps local alias", func(t *testing.T) {
		e := findImport(t, node, "./pages/Settings")
		if e.Kind != ImportKindLazy || e.LocalAlias != "Settings" {
			t.Errorf("edge = %+v", e)
		}
	})

	t.Run("React.lazy recognized", func(t *testing.T) {
		e := findImport(t, node, "./pages/Admin")
		if e.Kind != ImportKindLazy || e.LocalAlias != "Admin" {
			t.Errorf("edge = %+v", e)
		}
	})

	t.Run("bare dynamic import has no alias", func(t *testing.T) {
		e := findImport(t, node, "./pages/About")
		if e.Kind != ImportKindDynamic || e.LocalAlias != "" {
			t.Errorf("edge = %+v", e)
		}
	})

	t.Run("lazy import not double counted", func(t *testing.T) {
		count := 0
		for _, e := range node.Imports {
			if e.Specifier == "./pages/Settings" {
				count++
			}
		}
		if count != 1 {
			t.Errorf("got %d edges for ./pages/Settings, want 1", count)
		}
	})
}

func TestParseFile_CommonJS(t *testing.T) {
	node := parseSource(t, "src/server.js", `
const express = require('express');
const routes = require('./routes');

module.exports = createServer;
exports.start = start;
`)

	t.Run("require edge", func(t *testing.T) {
		e := findImport(t, node, "./routes")
		if e.Kind != ImportKindCommonJS || e.LocalAlias != "routes" {
			t.Errorf("edge = %+v", e)
		}
	})

	t.Run("module kind flips to commonjs", func(t *testing.T) {
		if node.Exports.ModuleKind != ModuleKindCommonJS {
			t.Errorf("module kind = %v", node.Exports.ModuleKind)
		}
	})

	t.Run("module.exports identifier becomes default name", func(t *testing.T) {
		if !node.Exports.HasDefault || node.Exports.DefaultName != "createServer" {
			t.Errorf("exports = %+v", node.Exports)
		}
	})

	t.Run("exports.x becomes named export", func(t *testing.T) {
		if node.Exports.Named["start"] != "start" {
			t.Errorf("named = %v", node.Exports.Named)
		}
	})
}

func TestParseFile_Exports(t *testing.T) {
	node := parseSource(t, "src/components/users.tsx", `
export default function UserList() { return null; }
export const pageSize = 25, retries = 3;
export function refresh() {}
const internal = 1;
export { internal as cacheSeed };
export { detail as UserDetail } from './detail';
export * from './shared';
`)

	t.Run("default export name", func(t *testing.T) {
		if !node.Exports.HasDefault || node.Exports.DefaultName != "UserList" {
			t.Errorf("exports = %+v", node.Exports)
		}
	})

	t.Run("multi-declarator export", func(t *testing.T) {
		if node.Exports.Named["pageSize"] != "pageSize" || node.Exports.Named["retries"] != "retries" {
			t.Errorf("named = %v", node.Exports.Named)
		}
	})

	t.Run("function export", func(t *testing.T) {
		if node.Exports.Named["refresh"] != "refresh" {
			t.Errorf("named = %v", node.Exports.Named)
		}
	})

	t.Run("aliased export clause", func(t *testing.T) {
		if node.Exports.Named["cacheSeed"] != "internal" {
			t.Errorf("named = %v", node.Exports.Named)
		}
	})

	t.Run("re-export records source and edge", func(t *testing.T) {
		if node.Exports.ReExports["UserDetail"] != "./detail" {
			t.Errorf("re-exports = %v", node.Exports.ReExports)
		}
		e := findImport(t, node, "./detail")
		if e.Kind != ImportKindReExport || e.ImportedName != "detail" {
			t.Errorf("edge = %+v", e)
		}
	})

	t.Run("star re-export", func(t *testing.T) {
		if node.Exports.ReExports["*"] != "./shared" {
			t.Errorf("re-exports = %v", node.Exports.ReExports)
		}
	})

	t.Run("names include default and named", func(t *testing.T) {
		names := node.Exports.Names()
		want := map[string]bool{"UserList": true, "pageSize": true, "retries": true, "refresh": true, "cacheSeed": true}
		found := 0
		for _, n := range names {
			if want[n] {
				found++
			}
		}
		if found != len(want) {
			t.Errorf("names = %v", names)
		}
	})
}

func TestParseFile_Guards(t *testing.T) {
	p := NewParser(WithMaxFileSize(64))
	ctx := context.Background()

	t.Run("oversized file", func(t *testing.T) {
		_, err := p.ParseFile(ctx, bytes.Repeat([]byte("a"), 128), "big.js")
		if !errors.Is(err, ErrFileTooLarge) {
			t.Errorf("err = %v, want ErrFileTooLarge", err)
		}
	})

	t.Run("binary content", func(t *testing.T) {
		_, err := p.ParseFile(ctx, []byte{'a', 0x00, 'b'}, "blob.js")
		if !errors.Is(err, ErrBinaryContent) {
			t.Errorf("err = %v, want ErrBinaryContent", err)
		}
	})

	t.Run("invalid utf-8", func(t *testing.T) {
		_, err := p.ParseFile(ctx, []byte{0xff, 0xfe, 0xfd}, "bad.js")
		if !errors.Is(err, ErrInvalidContent) {
			t.Errorf("err = %v, want ErrInvalidContent", err)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.ParseFile(canceled, []byte("const a = 1;"), "a.js")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

func TestParseFile_MalformedSourceIsPartial(t *testing.T) {
	node := parseSource(t, "src/broken.js", `
import Users from './users';
function (((
`)
	if len(node.ParseErrors) == 0 {
		t.Error("expected parse errors on malformed source")
	}
	// Imports before the syntax error still extract.
	findImport(t, node, "./users")
}

func TestParseFile_SvelteScriptBlock(t *testing.T) {
	node := parseSource(t, "src/routes/+page.svelte", `
<script lang="ts">
import { store } from '$lib/store';
import Widget from './Widget.svelte';
</script>
<h1>hello</h1>
`)
	e := findImport(t, node, "./Widget.svelte")
	if e.Kind != ImportKindDefault || e.LocalAlias != "Widget" {
		t.Errorf("edge = %+v", e)
	}
}

func TestParseFile_HashIsStable(t *testing.T) {
	src := "export const a = 1;\n"
	a := parseSource(t, "a.ts", src)
	b := parseSource(t, "a.ts", src)
	if a.Hash == "" || a.Hash != b.Hash {
		t.Errorf("hashes differ: %q vs %q", a.Hash, b.Hash)
	}
	c := parseSource(t, "a.ts", "export const a = 2;\n")
	if c.Hash == a.Hash {
		t.Error("different content produced identical hash")
	}
}

func TestIsCodeFile(t *testing.T) {
	for _, p := range []string{"a.js", "a.jsx", "a.ts", "b/a.tsx", "a.mjs", "a.svelte", "a.vue"} {
		if !IsCodeFile(p) {
			t.Errorf("IsCodeFile(%s) = false", p)
		}
	}
	for _, p := range []string{"a.css", "a.json", "a.go", "README.md", "a"} {
		if IsCodeFile(p) {
			t.Errorf("IsCodeFile(%s) = true", p)
		}
	}
}
