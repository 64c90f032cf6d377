// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routescope

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/routescope/routescope/config"
	"github.com/routescope/routescope/pkg/logging"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func fixtureRepo(t *testing.T) string {
	t.Helper()
	repo := t.TempDir()
	writeTree(t, repo, map[string]string{
		"src/routes.tsx": `
import Users from './pages/Users';
import Orders from './pages/Orders';

export const routes = [
  { path: '/users', component: Users },
  { path: '/orders', component: Orders },
];
`,
		"src/pages/Users.tsx":       "import { Avatar } from '../components/Avatar';\nexport default function Users() { return null; }\n",
		"src/pages/Orders.tsx":      "export default function Orders() { return null; }\n",
		"src/components/Avatar.tsx": "export function Avatar() { return null; }\n",
	})
	return repo
}

func fixtureConfig(repo, storePath string) *config.Config {
	return &config.Config{
		RepoRoot: repo,
		RepoName: "webapp",
		Store: config.StoreConfig{
			Backend:   "filesystem",
			Path:      storePath,
			Namespace: "test",
		},
		Build:  config.BuildConfig{BatchSize: 8},
		Impact: config.ImpactConfig{Policy: "prefer_precise", IterationCap: 1000},
	}
}

func newAnalyzer(t *testing.T, cfg *config.Config) *Analyzer {
	t.Helper()
	a, err := New(cfg, WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAnalyzer_BuildAndDetect(t *testing.T) {
	ctx := context.Background()
	a := newAnalyzer(t, fixtureConfig(fixtureRepo(t), t.TempDir()))

	if a.Ready() {
		t.Fatal("Ready() = true before Build")
	}
	if _, err := a.DetectRoutes(ctx, []string{"src/pages/Users.tsx"}); err != ErrNotReady {
		t.Fatalf("DetectRoutes before Build error = %v, want ErrNotReady", err)
	}

	if err := a.Build(ctx); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !a.Ready() {
		t.Fatal("Ready() = false after Build")
	}

	m := a.Metrics()
	if m.TotalFiles != 4 {
		t.Errorf("TotalFiles = %d, want 4", m.TotalFiles)
	}
	if m.RouteFiles != 1 {
		t.Errorf("RouteFiles = %d, want 1", m.RouteFiles)
	}
	if m.ImportEdges == 0 {
		t.Error("ImportEdges = 0")
	}

	impact, err := a.DetectRoutes(ctx, []string{"src/pages/Users.tsx"})
	if err != nil {
		t.Fatalf("DetectRoutes() error = %v", err)
	}
	if got := impact["src/pages/Users.tsx"]; !reflect.DeepEqual(got, []string{"/users"}) {
		t.Errorf("routes for Users.tsx = %v, want [/users]", got)
	}

	// Transitive dependency of the Users page.
	impact, err = a.DetectRoutes(ctx, []string{"src/components/Avatar.tsx"})
	if err != nil {
		t.Fatalf("DetectRoutes() error = %v", err)
	}
	if got := impact["src/components/Avatar.tsx"]; len(got) == 0 || got[0] != "/users" {
		t.Errorf("routes for Avatar.tsx = %v, want [/users]", got)
	}
}

func TestAnalyzer_PersistAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := fixtureRepo(t)
	storePath := t.TempDir()

	a := newAnalyzer(t, fixtureConfig(repo, storePath))
	if err := a.Build(ctx); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := a.Persist(ctx); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	want := a.Metrics()
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// A fresh analyzer restores from the snapshot.
	b := newAnalyzer(t, fixtureConfig(repo, storePath))
	if err := b.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got := b.Metrics()
	if got.TotalFiles != want.TotalFiles || got.RouteFiles != want.RouteFiles || got.ImportEdges != want.ImportEdges {
		t.Errorf("Metrics after Load = %+v, want %+v", got, want)
	}

	impact, err := b.DetectRoutes(ctx, []string{"src/pages/Orders.tsx"})
	if err != nil {
		t.Fatalf("DetectRoutes() error = %v", err)
	}
	if got := impact["src/pages/Orders.tsx"]; !reflect.DeepEqual(got, []string{"/orders"}) {
		t.Errorf("routes for Orders.tsx = %v, want [/orders]", got)
	}
}

func TestAnalyzer_LoadWithoutSnapshotBuilds(t *testing.T) {
	ctx := context.Background()
	a := newAnalyzer(t, fixtureConfig(fixtureRepo(t), t.TempDir()))

	if err := a.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !a.Ready() {
		t.Fatal("Ready() = false after Load fallback build")
	}
	if m := a.Metrics(); m.TotalFiles != 4 {
		t.Errorf("TotalFiles = %d, want 4", m.TotalFiles)
	}
}

func TestAnalyzer_UpdatePicksUpNewRoute(t *testing.T) {
	ctx := context.Background()
	repo := fixtureRepo(t)
	a := newAnalyzer(t, fixtureConfig(repo, t.TempDir()))
	if err := a.Build(ctx); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	writeTree(t, repo, map[string]string{
		"src/routes.tsx": `
import Users from './pages/Users';
import Orders from './pages/Orders';
import Billing from './pages/Billing';

export const routes = [
  { path: '/users', component: Users },
  { path: '/orders', component: Orders },
  { path: '/billing', component: Billing },
];
`,
		"src/pages/Billing.tsx": "export default function Billing() { return null; }\n",
	})

	if _, err := a.Update(ctx, []string{"src/routes.tsx", "src/pages/Billing.tsx"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	impact, err := a.DetectRoutes(ctx, []string{"src/pages/Billing.tsx"})
	if err != nil {
		t.Fatalf("DetectRoutes() error = %v", err)
	}
	if got := impact["src/pages/Billing.tsx"]; !reflect.DeepEqual(got, []string{"/billing"}) {
		t.Errorf("routes for Billing.tsx = %v, want [/billing]", got)
	}
}

func TestAnalyzer_ForceRebuildAndClear(t *testing.T) {
	ctx := context.Background()
	a := newAnalyzer(t, fixtureConfig(fixtureRepo(t), t.TempDir()))

	if err := a.Build(ctx); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := a.Persist(ctx); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	if err := a.ForceRebuild(ctx); err != nil {
		t.Fatalf("ForceRebuild() error = %v", err)
	}
	if !a.Ready() {
		t.Fatal("Ready() = false after ForceRebuild")
	}

	if err := a.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if a.Ready() {
		t.Fatal("Ready() = true after Clear")
	}

	// The snapshot is gone too; Load falls back to a fresh build.
	if err := a.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m := a.Metrics(); m.TotalFiles != 4 {
		t.Errorf("TotalFiles = %d, want 4", m.TotalFiles)
	}
}
