// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func collectBatches(t *testing.T, root string) (*Watcher, func() [][]string) {
	t.Helper()

	var mu sync.Mutex
	var batches [][]string

	w, err := New(root, func(paths []string) {
		mu.Lock()
		batches = append(batches, paths)
		mu.Unlock()
	}, Options{DebounceWindow: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(w.Stop)

	return w, func() [][]string {
		mu.Lock()
		defer mu.Unlock()
		out := make([][]string, len(batches))
		copy(out, batches)
		return out
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcher_BatchesWritesInOneFlush(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}

	w, batches := collectBatches(t, root)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Two rapid writes inside one debounce window.
	if err := os.WriteFile(filepath.Join(src, "a.ts"), []byte("export const a = 1;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "b.tsx"), []byte("export const b = 1;\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(batches()) > 0 })

	got := batches()[0]
	want := map[string]bool{"src/a.ts": true, "src/b.tsx": true}
	for _, p := range got {
		if !want[p] {
			t.Errorf("unexpected path in batch: %s", p)
		}
		delete(want, p)
	}
	if len(want) != 0 {
		t.Errorf("batch %v is missing %v", got, want)
	}
}

func TestWatcher_IgnoresNonCodeAndExcludedDirs(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"src", "node_modules/pkg"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	w, batches := collectBatches(t, root)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("# x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "node_modules/pkg/index.js"), []byte("module.exports = 1;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src/app.ts"), []byte("export const x = 1;\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(batches()) > 0 })

	for _, batch := range batches() {
		for _, p := range batch {
			if p != "src/app.ts" {
				t.Errorf("unexpected path in batch: %s", p)
			}
		}
	}
}

func TestWatcher_PicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()

	w, batches := collectBatches(t, root)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Create a directory after Start, then write into it.
	dir := filepath.Join(root, "src", "pages")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "Users.tsx"), []byte("export default 1;\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		for _, batch := range batches() {
			for _, p := range batch {
				if p == "src/pages/Users.tsx" {
					return true
				}
			}
		}
		return false
	})
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, _ := collectBatches(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	w.Stop()
	w.Stop()
}
