// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/routescope/routescope/ast"
	"github.com/routescope/routescope/graph"
	"github.com/routescope/routescope/routes"
)

func testBackends(t *testing.T) map[string]Store {
	t.Helper()

	badgerStore, err := OpenBadger(InMemoryBadgerConfig())
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	t.Cleanup(func() { badgerStore.Close() })

	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	t.Cleanup(func() { fileStore.Close() })

	return map[string]Store{
		"badger":     badgerStore,
		"filesystem": fileStore,
	}
}

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			key := "acme/webapp/import-graph.json"
			if err := s.Put(ctx, key, []byte(`{"version":1}`)); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			data, err := s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if string(data) != `{"version":1}` {
				t.Errorf("Get() = %q", data)
			}

			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, ErrKeyNotFound) {
				t.Errorf("Get() after Delete error = %v, want ErrKeyNotFound", err)
			}
		})
	}
}

func TestStore_GetMissingKey(t *testing.T) {
	ctx := context.Background()
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, "nope/missing.json"); !errors.Is(err, ErrKeyNotFound) {
				t.Errorf("Get() error = %v, want ErrKeyNotFound", err)
			}
		})
	}
}

func TestStore_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			seed := []string{
				"acme/app-a/import-graph.json",
				"acme/app-b/import-graph.json",
				"globex/app-c/import-graph.json",
			}
			for _, key := range seed {
				if err := s.Put(ctx, key, []byte("{}")); err != nil {
					t.Fatalf("Put(%s) error = %v", key, err)
				}
			}

			keys, err := s.List(ctx, "acme/")
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(keys) != 2 {
				t.Fatalf("List() = %v, want 2 keys", keys)
			}
			if keys[0] != seed[0] || keys[1] != seed[1] {
				t.Errorf("List() = %v, want sorted acme keys", keys)
			}
		})
	}
}

func TestStore_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			key := "acme/webapp/import-graph.json"
			if err := s.Put(ctx, key, []byte("old")); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if err := s.Put(ctx, key, []byte("new")); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			data, err := s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if string(data) != "new" {
				t.Errorf("Get() = %q, want overwrite", data)
			}
		})
	}
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	defer fileStore.Close()

	if err := fileStore.Put(ctx, "a/b", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() error = %v, want context.Canceled", err)
	}
	if _, err := fileStore.Get(ctx, "a/b"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
}

func TestFileStore_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	defer s.Close()

	for _, key := range []string{"../outside", "/etc/passwd", "a/../../b", "."} {
		if err := s.Put(ctx, key, []byte("x")); err == nil {
			t.Errorf("Put(%q) accepted an escaping key", key)
		}
	}
}

func TestKey(t *testing.T) {
	got := Key("acme", "webapp")
	want := "acme/webapp/import-graph.json"
	if got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
	if Key("/acme/", "webapp/") != want {
		t.Errorf("Key() should trim slashes")
	}
}

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()

	g.SetFileRecord(&graph.FileRecord{
		Path: "src/routes.tsx",
		Imports: []ast.ImportEdge{{
			Specifier:    "./pages/Users",
			Resolved:     "src/pages/Users.tsx",
			LocalAlias:   "Users",
			ImportedName: "default",
			Kind:         ast.ImportKindDefault,
			Line:         2,
		}},
		Exports: ast.NewExportInfo(),
		Routes: []routes.RouteDefinition{{
			Path:          "/users",
			ComponentName: "Users",
			DefiningFile:  "src/routes.tsx",
			SourceLine:    6,
		}},
		Hash:         "abc123",
		LastModified: time.Now().Unix(),
	})
	g.SetFileRecord(&graph.FileRecord{
		Path:         "src/pages/Users.tsx",
		Exports:      ast.NewExportInfo(),
		Hash:         "def456",
		LastModified: time.Now().Unix(),
	})

	routesID := g.Intern("src/routes.tsx")
	usersID := g.Intern("src/pages/Users.tsx")
	g.AddEdge(routesID, usersID, graph.AliasInfo{
		Alias:        "Users",
		ImportedName: "default",
		Kind:         ast.ImportKindDefault,
	})
	g.SetRouteFile(routesID, true)
	g.SetEntryPoint(routesID, true)
	return g
}

func TestSnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			g := testGraph(t)
			key := Key("acme", "webapp")

			if err := Save(ctx, s, key, g); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			restored, err := Load(ctx, s, key)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			wantStats := g.Stats()
			gotStats := restored.Stats()
			if gotStats != wantStats {
				t.Errorf("restored Stats() = %+v, want %+v", gotStats, wantStats)
			}

			routesID := restored.Lookup("src/routes.tsx")
			usersID := restored.Lookup("src/pages/Users.tsx")
			if routesID == graph.InvalidNode || usersID == graph.InvalidNode {
				t.Fatal("restored graph is missing nodes")
			}

			importers := restored.Importers(usersID)
			aliases, ok := importers[routesID]
			if !ok || len(aliases) != 1 || aliases[0].Alias != "Users" {
				t.Errorf("restored Importers() = %v, want Users alias from routes file", importers)
			}

			_, isRoute, isEntry, _ := restored.NodeInfo(routesID)
			if !isRoute || !isEntry {
				t.Errorf("restored flags = route %v entry %v, want both set", isRoute, isEntry)
			}

			rec := restored.FileRecord("src/routes.tsx")
			if rec == nil || rec.Hash != "abc123" {
				t.Errorf("restored FileRecord() = %+v, want preserved hash", rec)
			}
			if got := restored.RoutesForComponent("Users"); len(got) != 1 || got[0].Path != "/users" {
				t.Errorf("restored RoutesForComponent() = %v", got)
			}
		})
	}
}

func TestSnapshot_LoadCorruptDocument(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	defer s.Close()

	key := Key("acme", "webapp")
	if err := s.Put(ctx, key, []byte("{not json")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := Load(ctx, s, key); !errors.Is(err, ErrSnapshotInvalid) {
		t.Errorf("Load() error = %v, want ErrSnapshotInvalid", err)
	}
}

func TestSnapshot_LoadVersionMismatch(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	defer s.Close()

	doc := Document{Version: 99, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	key := Key("acme", "webapp")
	if err := s.Put(ctx, key, data); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := Load(ctx, s, key); !errors.Is(err, ErrSnapshotInvalid) {
		t.Errorf("Load() error = %v, want ErrSnapshotInvalid", err)
	}
}

func TestSnapshot_LoadMissing(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	defer s.Close()

	if _, err := Load(ctx, s, Key("acme", "webapp")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Load() error = %v, want ErrKeyNotFound", err)
	}
}

func TestBadgerStore_CloseIsIdempotent(t *testing.T) {
	s, err := OpenBadger(InMemoryBadgerConfig())
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
