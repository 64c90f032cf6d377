// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watch feeds filesystem change batches to the graph refresher.
// Events are debounced so a save storm during active editing produces one
// incremental update instead of one per keystroke.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/routescope/routescope/ast"
)

// Handler receives a debounced batch of changed files. Paths are
// repo-relative with forward slashes, deduplicated and sorted.
type Handler func(paths []string)

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is how long to wait for further events before the
	// handler fires. Default 250ms.
	DebounceWindow time.Duration

	// IgnoreDirs are directory basenames excluded from watching.
	IgnoreDirs []string

	// BufferSize is the event channel capacity. Default 1024.
	BufferSize int

	// Logger receives watcher diagnostics. Default slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns watcher defaults tuned for front-end repos.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 250 * time.Millisecond,
		IgnoreDirs: []string{
			".git", "node_modules", "dist", "build", "out",
			".next", ".svelte-kit", ".nuxt", ".turbo", "coverage",
		},
		BufferSize: 1024,
	}
}

// Watcher watches a repository root and emits debounced batches of
// changed source files.
//
// Thread Safety: safe for concurrent use. The handler runs on a single
// goroutine.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	handler  Handler
	debounce time.Duration
	ignore   map[string]bool
	logger   *slog.Logger

	events   chan string
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
}

// New creates a watcher for root. Call Start to begin receiving batches
// and Stop when done.
func New(root string, handler Handler, opts Options) (*Watcher, error) {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultOptions().DebounceWindow
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	if len(opts.IgnoreDirs) == 0 {
		opts.IgnoreDirs = DefaultOptions().IgnoreDirs
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ignore := make(map[string]bool, len(opts.IgnoreDirs))
	for _, d := range opts.IgnoreDirs {
		ignore[d] = true
	}

	return &Watcher{
		root:     root,
		fsw:      fsw,
		handler:  handler,
		debounce: opts.DebounceWindow,
		ignore:   ignore,
		logger:   opts.Logger,
		events:   make(chan string, opts.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the directory tree and spawns the event and debounce
// goroutines. Both exit on Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	w.logger.Info("file watcher started",
		slog.String("root", w.root),
		slog.Duration("debounce", w.debounce))
	return nil
}

// Stop closes the watcher. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if path != root && (w.ignore[base] || base[0] == '.') {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	if rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == "" || part == ".." {
			continue
		}
		if w.ignore[part] || part[0] == '.' {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}

			// Newly created directories join the watch set.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Warn("watch new directory",
							slog.String("path", event.Name),
							slog.String("error", err.Error()))
					}
					continue
				}
			}

			rel, err := filepath.Rel(w.root, event.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if !ast.IsCodeFile(rel) {
				continue
			}

			select {
			case w.events <- rel:
			default:
				w.logger.Warn("event buffer full, dropping change",
					slog.String("path", rel))
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	batch := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 && w.handler != nil {
			paths := make([]string, 0, len(batch))
			for p := range batch {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			w.handler(paths)
			batch = make(map[string]bool)
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case path := <-w.events:
			batch[path] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}
