// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// Framework identifies which file-system routing convention a repository
// uses. Detected once from the project manifest, never per file.
type Framework int

const (
	// FrameworkNone means no file-system routing applies.
	FrameworkNone Framework = iota

	// FrameworkNextApp is the Next.js App Router (app/**/page.tsx).
	FrameworkNextApp

	// FrameworkNextPages is the Next.js Pages Router (pages/**/*.tsx).
	FrameworkNextPages

	// FrameworkSvelteKit is SvelteKit (src/routes/**/+page.svelte).
	FrameworkSvelteKit
)

// String returns the framework label used in logs and config.
func (f Framework) String() string {
	switch f {
	case FrameworkNextApp:
		return "next-app"
	case FrameworkNextPages:
		return "next-pages"
	case FrameworkSvelteKit:
		return "sveltekit"
	default:
		return "none"
	}
}

// ParseFramework converts a config label back to a Framework.
func ParseFramework(s string) Framework {
	switch strings.ToLower(s) {
	case "next-app", "nextapp", "next":
		return FrameworkNextApp
	case "next-pages", "nextpages":
		return FrameworkNextPages
	case "sveltekit", "svelte-kit", "svelte":
		return FrameworkSvelteKit
	default:
		return FrameworkNone
	}
}

// Page-file matchers per convention.
var (
	nextAppPageGlob   = glob.MustCompile("page.{js,jsx,ts,tsx}")
	nextPagesFileGlob = glob.MustCompile("*.{js,jsx,ts,tsx}", '/')
	svelteKitPageGlob = glob.MustCompile("+page.{svelte,js,ts}")
	nextPagesSkipGlob = glob.MustCompile("{_app,_document,_error}.{js,jsx,ts,tsx}")
)

// FSRule derives routes from file paths under a framework's routing
// directory. The file itself is the route's component, so emitted
// definitions carry no component name.
type FSRule struct {
	framework Framework
}

// NewFSRule returns the file-system routing rule for a framework, or nil
// when the framework has no file-system convention.
func NewFSRule(framework Framework) Rule {
	if framework == FrameworkNone {
		return nil
	}
	return &FSRule{framework: framework}
}

// Name implements Rule.
func (r *FSRule) Name() string { return "fs_" + r.framework.String() }

// Extract implements Rule. Content is not inspected; the route is a pure
// function of the file path.
func (r *FSRule) Extract(_ context.Context, _ []byte, filePath string) ([]RouteDefinition, error) {
	var routePath string
	var ok bool

	switch r.framework {
	case FrameworkNextApp:
		routePath, ok = nextAppRoute(filePath)
	case FrameworkNextPages:
		routePath, ok = nextPagesRoute(filePath)
	case FrameworkSvelteKit:
		routePath, ok = svelteKitRoute(filePath)
	}
	if !ok {
		return nil, nil
	}

	return []RouteDefinition{{
		Path:         routePath,
		DefiningFile: filePath,
	}}, nil
}

// nextAppRoute maps app/**/page.tsx to its route path.
func nextAppRoute(filePath string) (string, bool) {
	rel, ok := underDir(filePath, "app")
	if !ok {
		return "", false
	}
	dir, base := path.Split(rel)
	if !nextAppPageGlob.Match(base) {
		return "", false
	}
	return segmentsToRoute(strings.Trim(dir, "/")), true
}

// nextPagesRoute maps pages/**/*.tsx to its route path. Framework glue
// files and API routes are not UI routes.
func nextPagesRoute(filePath string) (string, bool) {
	rel, ok := underDir(filePath, "pages")
	if !ok {
		return "", false
	}
	if !nextPagesFileGlob.Match(path.Base(rel)) || nextPagesSkipGlob.Match(path.Base(rel)) {
		return "", false
	}
	if rel == "api" || strings.HasPrefix(rel, "api/") {
		return "", false
	}

	trimmed := strings.TrimSuffix(rel, path.Ext(rel))
	if path.Base(trimmed) == "index" {
		trimmed = path.Dir(trimmed)
		if trimmed == "." {
			trimmed = ""
		}
	}
	return segmentsToRoute(trimmed), true
}

// svelteKitRoute maps src/routes/**/+page.svelte to its route path.
func svelteKitRoute(filePath string) (string, bool) {
	rel, ok := underDir(filePath, "routes")
	if !ok {
		return "", false
	}
	dir, base := path.Split(rel)
	if !svelteKitPageGlob.Match(base) {
		return "", false
	}
	return segmentsToRoute(strings.Trim(dir, "/")), true
}

// underDir returns the path relative to the first occurrence of the named
// routing directory. Leading src/ prefixes are accepted.
func underDir(filePath, dirName string) (string, bool) {
	segments := strings.Split(filePath, "/")
	for i, seg := range segments {
		if seg != dirName {
			continue
		}
		// The routing dir must sit at the repo root or under src/.
		if i == 0 || (i == 1 && segments[0] == "src") {
			return strings.Join(segments[i+1:], "/"), true
		}
	}
	return "", false
}

// segmentsToRoute converts routing-directory segments into a route path.
// Bracketed segments become parameter markers, parenthesized route groups
// are dropped.
func segmentsToRoute(rel string) string {
	if rel == "" {
		return "/"
	}

	var out []string
	for _, seg := range strings.Split(rel, "/") {
		switch {
		case seg == "":
			continue
		case strings.HasPrefix(seg, "(") && strings.HasSuffix(seg, ")"):
			continue
		case strings.HasPrefix(seg, "[[...") && strings.HasSuffix(seg, "]]"):
			out = append(out, "*"+seg[5:len(seg)-2]+"?")
		case strings.HasPrefix(seg, "[...") && strings.HasSuffix(seg, "]"):
			out = append(out, "*"+seg[4:len(seg)-1])
		case strings.HasPrefix(seg, "[") && strings.HasSuffix(seg, "]"):
			out = append(out, ":"+seg[1:len(seg)-1])
		default:
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}
