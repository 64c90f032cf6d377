// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package impact

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/routescope/routescope/ast"
	"github.com/routescope/routescope/graph"
	"github.com/routescope/routescope/routes"
	"github.com/routescope/routescope/scan"
)

func buildGraph(t *testing.T, files map[string]string) (*graph.Graph, *graph.Caches) {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	scanner, err := scan.NewScanner()
	if err != nil {
		t.Fatal(err)
	}
	b := graph.NewBuilder(ast.NewParser(), routes.NewExtractor(nil), scanner)
	g, ferrs, err := b.Build(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	for _, fe := range ferrs {
		t.Logf("file error: %v", fe)
	}
	return g, b.Caches()
}

func detect(t *testing.T, g *graph.Graph, c *graph.Caches, path string, opts ...Option) []string {
	t.Helper()
	r := NewResolver(g, c, opts...)
	return r.DetectRoutesForFile(context.Background(), path)
}

func TestDetect_ChangedComponentFile(t *testing.T) {
	g, c := buildGraph(t, map[string]string{
		"src/routes.tsx": `
import Users from './Users';
const router = [{ path: '/users', element: <Users /> }];
`,
		"src/Users.tsx": "export default function Users() {}\n",
	})

	got := detect(t, g, c, "src/Users.tsx")
	if !reflect.DeepEqual(got, []string{"/users"}) {
		t.Errorf("got %v, want [/users]", got)
	}
}

func TestDetect_NestedRouteTable(t *testing.T) {
	g, c := buildGraph(t, map[string]string{
		"src/routes.tsx": `
import Settings from './Settings';
const router = [{
  path: '/admin',
  children: [
    { path: 'settings', element: <Settings /> },
  ],
}];
`,
		"src/Settings.tsx": "export default function Settings() {}\n",
	})

	got := detect(t, g, c, "src/Settings.tsx")
	if !reflect.DeepEqual(got, []string{"/admin/settings"}) {
		t.Errorf("got %v, want [/admin/settings]", got)
	}
}

func TestDetect_LazyAlias(t *testing.T) {
	g, c := buildGraph(t, map[string]string{
		"src/routes.tsx": `
import { lazy } from 'react';
const Debugger = lazy(() => import('./Debugger'));
const router = [{ path: '/debug', element: <Debugger /> }];
`,
		"src/Debugger.tsx": "export default function DebugPanel() {}\n",
	})

	got := detect(t, g, c, "src/Debugger.tsx")
	if !reflect.DeepEqual(got, []string{"/debug"}) {
		t.Errorf("got %v, want [/debug]", got)
	}
}

func TestDetect_SharedUtilityReachesBothRoutes(t *testing.T) {
	g, c := buildGraph(t, map[string]string{
		"src/routes.tsx": `
import Orders from './Orders';
import Invoices from './Invoices';
const router = [
  { path: '/orders', element: <Orders /> },
  { path: '/invoices', element: <Invoices /> },
];
`,
		"src/Orders.tsx":   `import { fmt } from './format';` + "\nexport default function Orders() {}\n",
		"src/Invoices.tsx": `import { fmt } from './format';` + "\nexport default function Invoices() {}\n",
		"src/format.ts":    "export const fmt = (v) => v;\n",
	})

	got := detect(t, g, c, "src/format.ts")
	want := []string{"/invoices", "/orders"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDetect_UnrelatedFileIsEmpty(t *testing.T) {
	g, c := buildGraph(t, map[string]string{
		"src/routes.tsx": `
import Users from './Users';
const router = [{ path: '/users', element: <Users /> }];
`,
		"src/Users.tsx": "export default function Users() {}\n",
		"src/orphan.ts": "export const nothing = 1;\n",
	})

	if got := detect(t, g, c, "src/orphan.ts"); len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
	if got := detect(t, g, c, "src/missing.ts"); len(got) != 0 {
		t.Errorf("missing file: got %v, want empty", got)
	}
}

func TestDetect_CycleTerminates(t *testing.T) {
	g, c := buildGraph(t, map[string]string{
		"src/routes.tsx": `
import Panel from './a';
const router = [{ path: '/panel', element: <Panel /> }];
`,
		"src/a.tsx": `import { helper } from './b';` + "\nexport default function Panel() {}\n",
		"src/b.tsx": `import Panel from './a';` + "\nexport const helper = 1;\n",
	})

	got := detect(t, g, c, "src/b.tsx")
	if !reflect.DeepEqual(got, []string{"/panel"}) {
		t.Errorf("got %v, want [/panel]", got)
	}
}

func TestDetect_RouteFileItself(t *testing.T) {
	g, c := buildGraph(t, map[string]string{
		"src/routes.tsx": `
import Users from './Users';
const router = [{ path: '/users', element: <Users /> }];
`,
		"src/Users.tsx": "export default function Users() {}\n",
	})

	got := detect(t, g, c, "src/routes.tsx")
	if !reflect.DeepEqual(got, []string{"/users"}) {
		t.Errorf("got %v, want [/users]", got)
	}
}

func TestDetect_Idempotent(t *testing.T) {
	g, c := buildGraph(t, map[string]string{
		"src/routes.tsx": `
import Users from './Users';
const router = [{ path: '/users', element: <Users /> }];
`,
		"src/Users.tsx": "export default function Users() {}\n",
	})

	r := NewResolver(g, c)
	first := r.DetectRoutesForFile(context.Background(), "src/Users.tsx")
	second := r.DetectRoutesForFile(context.Background(), "src/Users.tsx")

	// The second call is served from cache; both must be identical, and a
	// recompute after invalidation must agree too.
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached result differs: %v vs %v", first, second)
	}
	c.InvalidateQueries([]string{"src/Users.tsx"})
	third := r.DetectRoutesForFile(context.Background(), "src/Users.tsx")
	if !reflect.DeepEqual(first, third) {
		t.Errorf("recomputed result differs: %v vs %v", first, third)
	}
}

func TestDetect_AliasPrecisionFiltersSiblingRoutes(t *testing.T) {
	// Both components live in the same route file; changing one must not
	// report the other's route.
	g, c := buildGraph(t, map[string]string{
		"src/routes.tsx": `
import Users from './Users';
import Orders from './Orders';
const router = [
  { path: '/users', element: <Users /> },
  { path: '/orders', element: <Orders /> },
];
`,
		"src/Users.tsx":  "export default function Users() {}\n",
		"src/Orders.tsx": "export default function Orders() {}\n",
	})

	got := detect(t, g, c, "src/Users.tsx")
	if !reflect.DeepEqual(got, []string{"/users"}) {
		t.Errorf("got %v, want [/users]", got)
	}
}

func TestDetect_UnionPolicy(t *testing.T) {
	g, c := buildGraph(t, map[string]string{
		"src/routes.tsx": `
import Users from './Users';
const router = [{ path: '/users', element: <Users /> }];
`,
		"src/Users.tsx": "export default function Users() {}\n",
	})

	got := detect(t, g, c, "src/Users.tsx", WithPolicy(PolicyUnionResults))
	if !reflect.DeepEqual(got, []string{"/users"}) {
		t.Errorf("got %v, want [/users]", got)
	}
}

func TestDetect_FileSystemRoute(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"package.json":           `{"dependencies":{"next":"14.0.0"}}`,
		"app/dashboard/page.tsx": `import { load } from '../../lib/data';` + "\nexport default function Dashboard() {}\n",
		"lib/data.ts":            "export const load = () => 1;\n",
	}
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	scanner, err := scan.NewScanner()
	if err != nil {
		t.Fatal(err)
	}
	extractor := routes.NewExtractor(routes.NewFSRule(routes.FrameworkNextApp))
	b := graph.NewBuilder(ast.NewParser(), extractor, scanner)
	g, _, err := b.Build(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("page file maps to its own route", func(t *testing.T) {
		got := detect(t, g, b.Caches(), "app/dashboard/page.tsx")
		if !reflect.DeepEqual(got, []string{"/dashboard"}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("imported library reaches the page route", func(t *testing.T) {
		got := detect(t, g, b.Caches(), "lib/data.ts")
		if !reflect.DeepEqual(got, []string{"/dashboard"}) {
			t.Errorf("got %v", got)
		}
	})
}

func TestDetectRoutes_MapsEachChangedFile(t *testing.T) {
	g, c := buildGraph(t, map[string]string{
		"src/routes.tsx": `
import Users from './Users';
const router = [{ path: '/users', element: <Users /> }];
`,
		"src/Users.tsx": "export default function Users() {}\n",
		"src/other.ts":  "export const x = 1;\n",
	})

	r := NewResolver(g, c)
	got := r.DetectRoutes(context.Background(), []string{"src/Users.tsx", "src/other.ts"})

	if !reflect.DeepEqual(got["src/Users.tsx"], []string{"/users"}) {
		t.Errorf("Users.tsx -> %v", got["src/Users.tsx"])
	}
	if len(got["src/other.ts"]) != 0 {
		t.Errorf("other.ts -> %v", got["src/other.ts"])
	}
}
