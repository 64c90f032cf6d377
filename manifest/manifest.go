// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package manifest reads a repository's package.json and derives the routing
// framework and path-alias configuration. Detection runs once per analyzer
// instance; it is never re-derived per file.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/routescope/routescope/routes"
)

// ErrNoManifest indicates the repository has no package.json.
var ErrNoManifest = errors.New("no package.json found")

// Project describes what the manifest declares about the repository.
type Project struct {
	// Name is the package name, or the repo directory name as fallback.
	Name string

	// Framework is the file-system routing convention in use.
	Framework routes.Framework

	// Dependencies unions dependencies and devDependencies.
	Dependencies map[string]string

	// AliasRoot is the directory the "@/" specifier prefix maps to,
	// derived from tsconfig/jsconfig paths when present. Defaults to "src".
	AliasRoot string
}

// HasDependency reports whether the manifest declares the package.
func (p Project) HasDependency(name string) bool {
	_, ok := p.Dependencies[name]
	return ok
}

type packageJSON struct {
	Name            string            `json:"name"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// Load reads and parses the manifest at the repository root.
//
// Outputs:
//
//	Project - Always usable; detection falls back to defaults when the
//	          manifest is absent or malformed.
//	error - ErrNoManifest when package.json does not exist, or a wrapped
//	        parse error. Callers treat both as degraded, not fatal.
func Load(rootPath string) (Project, error) {
	project := Project{
		Name:         filepath.Base(rootPath),
		Framework:    routes.FrameworkNone,
		Dependencies: map[string]string{},
		AliasRoot:    "src",
	}

	raw, err := os.ReadFile(filepath.Join(rootPath, "package.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return project, ErrNoManifest
		}
		return project, fmt.Errorf("read package.json: %w", err)
	}

	var pkg packageJSON
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return project, fmt.Errorf("parse package.json: %w", err)
	}

	if pkg.Name != "" {
		project.Name = sanitizeName(pkg.Name)
	}
	for name, version := range pkg.Dependencies {
		project.Dependencies[name] = version
	}
	for name, version := range pkg.DevDependencies {
		project.Dependencies[name] = version
	}

	project.Framework = detectFramework(project, rootPath)
	if root := aliasRootFromTSConfig(rootPath); root != "" {
		project.AliasRoot = root
	}

	return project, nil
}

// detectFramework picks the file-system routing convention from declared
// dependencies. Next.js needs a directory probe to tell the App Router from
// the Pages Router apart.
func detectFramework(p Project, rootPath string) routes.Framework {
	switch {
	case p.HasDependency("@sveltejs/kit"):
		return routes.FrameworkSvelteKit
	case p.HasDependency("next"):
		for _, dir := range []string{"app", "src/app"} {
			if info, err := os.Stat(filepath.Join(rootPath, dir)); err == nil && info.IsDir() {
				return routes.FrameworkNextApp
			}
		}
		return routes.FrameworkNextPages
	default:
		// react-router and vue-router declare routes in code, not files.
		return routes.FrameworkNone
	}
}

// scoped package names contain characters unfit for storage keys.
var nameSanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeName(name string) string {
	name = strings.TrimPrefix(name, "@")
	return nameSanitizeRe.ReplaceAllString(name, "-")
}

type tsConfig struct {
	CompilerOptions struct {
		BaseURL string              `json:"baseUrl"`
		Paths   map[string][]string `json:"paths"`
	} `json:"compilerOptions"`
}

// tsconfig files allow comments and trailing commas; strip them before
// handing the bytes to the JSON decoder.
var (
	jsonCommentRe = regexp.MustCompile(`(?m)^\s*//.*$|/\*[\s\S]*?\*/`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// aliasRootFromTSConfig derives the "@/" alias target from tsconfig or
// jsconfig paths. Returns "" when no mapping is declared.
func aliasRootFromTSConfig(rootPath string) string {
	for _, name := range []string{"tsconfig.json", "jsconfig.json"} {
		raw, err := os.ReadFile(filepath.Join(rootPath, name))
		if err != nil {
			continue
		}
		raw = jsonCommentRe.ReplaceAll(raw, nil)
		raw = trailingComma.ReplaceAll(raw, []byte("$1"))

		var cfg tsConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			continue
		}
		targets, ok := cfg.CompilerOptions.Paths["@/*"]
		if !ok || len(targets) == 0 {
			continue
		}
		target := strings.TrimSuffix(strings.TrimPrefix(targets[0], "./"), "/*")
		if cfg.CompilerOptions.BaseURL != "" && cfg.CompilerOptions.BaseURL != "." {
			target = strings.TrimSuffix(cfg.CompilerOptions.BaseURL, "/") + "/" + target
		}
		if target != "" {
			return target
		}
	}
	return ""
}
