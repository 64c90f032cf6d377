// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routescope answers "which routes does this change affect" for
// JavaScript and TypeScript front-end repositories. It builds a persisted
// import dependency graph, extracts route definitions from route tables,
// JSX route elements, and file-system routing conventions, and traverses
// reverse import edges from changed files up to the routes that render
// them.
//
// The Analyzer is the top-level entry point. The CLI and HTTP server are
// thin wrappers around it; embedders can use it directly:
//
//	a, err := routescope.New(cfg)
//	if err != nil { ... }
//	defer a.Close()
//	if err := a.Load(ctx); err != nil { ... }
//	impact, err := a.DetectRoutes(ctx, []string{"src/components/UserCard.tsx"})
package routescope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/routescope/routescope/ast"
	"github.com/routescope/routescope/config"
	"github.com/routescope/routescope/graph"
	"github.com/routescope/routescope/impact"
	"github.com/routescope/routescope/manifest"
	"github.com/routescope/routescope/pkg/logging"
	"github.com/routescope/routescope/routes"
	"github.com/routescope/routescope/scan"
	"github.com/routescope/routescope/store"
)

// ErrNotReady is returned when DetectRoutes runs before Build or Load.
var ErrNotReady = errors.New("graph not built")

// MetricsSnapshot is the observability view of an Analyzer.
type MetricsSnapshot struct {
	TotalFiles  int `json:"total_files"`
	RouteFiles  int `json:"route_files"`
	EntryPoints int `json:"entry_points"`
	ImportEdges int `json:"import_edges"`
	CacheSize   int `json:"cache_size"`
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger. Default is a stderr logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = logger }
}

// WithStore overrides the snapshot backend the config would select.
// Handy for tests and embedders that already hold a store.
func WithStore(s store.Store) Option {
	return func(a *Analyzer) { a.store = s }
}

// Analyzer owns the full analysis lifecycle: scan, parse, graph
// construction, impact queries, and snapshot persistence.
//
// Thread Safety: safe for concurrent use. Graph mutations (Build, Load,
// Update) serialize on an internal mutex; DetectRoutes runs concurrently
// against the shared graph.
type Analyzer struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   store.Store
	caches  *graph.Caches
	builder *graph.Builder

	mu        sync.Mutex
	graph     *graph.Graph
	refresher *graph.Refresher
	resolver  *impact.Resolver
	project   manifest.Project
}

// New wires an Analyzer from configuration. It opens the snapshot store
// and reads the repository manifest, but does not parse anything yet;
// call Build or Load next.
func New(cfg *config.Config, opts ...Option) (*Analyzer, error) {
	a := &Analyzer{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.Default()
	}

	project, err := manifest.Load(cfg.RepoRoot)
	if err != nil && !errors.Is(err, manifest.ErrNoManifest) {
		a.logger.Warn("manifest unreadable, using defaults",
			slog.String("error", err.Error()))
	}
	a.project = project

	if a.store == nil {
		s, err := openStore(cfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.store = s
	}

	caches, err := graph.NewCaches(graph.DefaultParseCacheSize, graph.DefaultQueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create caches: %w", err)
	}
	a.caches = caches

	scanner, err := scan.NewScanner(scan.WithExcludes(cfg.Build.Excludes...))
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}

	parser := ast.NewParser(ast.WithLogger(a.logger))
	extractor := routes.NewExtractor(
		routes.NewFSRule(project.Framework),
		routes.WithExtractorLogger(a.logger),
	)

	a.builder = graph.NewBuilder(parser, extractor, scanner,
		graph.WithBatchSize(cfg.Build.BatchSize),
		graph.WithAliasRoot(project.AliasRoot),
		graph.WithCaches(caches),
		graph.WithBuilderLogger(a.logger),
	)
	return a, nil
}

// openStore builds the configured snapshot backend.
func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "badger":
		bcfg := store.DefaultBadgerConfig(cfg.Store.Path)
		bcfg.Logger = logger
		s, err := store.OpenBadger(bcfg)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return s, nil
	case "filesystem":
		s, err := store.NewFileStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open filesystem store: %w", err)
		}
		return s, nil
	case "s3":
		s, err := store.NewObjectStore(store.ObjectConfig{
			Endpoint:  cfg.Store.S3.Endpoint,
			Region:    cfg.Store.S3.Region,
			AccessKey: cfg.Store.S3.AccessKey,
			SecretKey: cfg.Store.S3.SecretKey,
			Bucket:    cfg.Store.S3.Bucket,
			UseSSL:    cfg.Store.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("open object store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// snapshotKey returns this repository's store key.
func (a *Analyzer) snapshotKey() string {
	return store.Key(a.cfg.Store.Namespace, a.cfg.RepoName)
}

// Build parses the repository from scratch and installs the resulting
// graph. Per-file failures are logged and skipped, never fatal.
func (a *Analyzer) Build(ctx context.Context) error {
	start := time.Now()
	g, fileErrs, err := a.builder.Build(ctx, a.cfg.RepoRoot)
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}
	for _, fe := range fileErrs {
		a.logger.Warn("file skipped during build",
			slog.String("path", fe.Path),
			slog.String("error", fe.Err.Error()))
	}

	a.install(g)
	stats := g.Stats()
	a.logger.Info("graph built",
		slog.Int("files", stats.TotalFiles),
		slog.Int("route_files", stats.RouteFiles),
		slog.Int("edges", stats.ImportEdges),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Load restores the persisted snapshot and reconciles it against the
// working tree with an incremental update. Any persistence error falls
// back to a full build.
func (a *Analyzer) Load(ctx context.Context) error {
	g, err := store.Load(ctx, a.store, a.snapshotKey())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		a.logger.Info("snapshot unavailable, building from scratch",
			slog.String("reason", err.Error()))
		return a.Build(ctx)
	}

	a.install(g)

	// The snapshot may be behind the working tree. A refresh over all
	// known files skips everything whose mtime is unchanged.
	if _, err := a.Update(ctx, g.Files()); err != nil {
		a.logger.Warn("snapshot reconcile failed, rebuilding",
			slog.String("error", err.Error()))
		return a.Build(ctx)
	}
	a.logger.Info("snapshot loaded", slog.Int("files", g.Stats().TotalFiles))
	return nil
}

// install swaps in a freshly built or restored graph.
func (a *Analyzer) install(g *graph.Graph) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.graph = g
	a.refresher = graph.NewRefresher(a.builder)
	a.resolver = impact.NewResolver(g, a.caches,
		impact.WithPolicy(impact.ParsePolicy(a.cfg.Impact.Policy)),
		impact.WithIterationCap(a.cfg.Impact.IterationCap),
		impact.WithLogger(a.logger),
	)
}

// Update incrementally refreshes the graph for the given changed files.
func (a *Analyzer) Update(ctx context.Context, changed []string) ([]graph.FileError, error) {
	a.mu.Lock()
	g, refresher := a.graph, a.refresher
	a.mu.Unlock()
	if g == nil {
		return nil, ErrNotReady
	}
	return refresher.Update(ctx, g, a.cfg.RepoRoot, changed)
}

// DetectRoutes maps each changed file to the routes it affects. Unknown
// files yield empty slices.
func (a *Analyzer) DetectRoutes(ctx context.Context, changed []string) (map[string][]string, error) {
	a.mu.Lock()
	resolver := a.resolver
	a.mu.Unlock()
	if resolver == nil {
		return nil, ErrNotReady
	}
	return resolver.DetectRoutes(ctx, changed), nil
}

// Persist writes the current graph to the snapshot store.
func (a *Analyzer) Persist(ctx context.Context) error {
	a.mu.Lock()
	g := a.graph
	a.mu.Unlock()
	if g == nil {
		return ErrNotReady
	}
	if err := store.Save(ctx, a.store, a.snapshotKey(), g); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// ForceRebuild clears caches, deletes the persisted snapshot, and
// rebuilds from source.
func (a *Analyzer) ForceRebuild(ctx context.Context) error {
	a.caches.Clear()
	if err := a.store.Delete(ctx, a.snapshotKey()); err != nil {
		a.logger.Warn("delete snapshot", slog.String("error", err.Error()))
	}
	return a.Build(ctx)
}

// Clear drops the in-memory graph and the persisted snapshot.
func (a *Analyzer) Clear(ctx context.Context) error {
	a.mu.Lock()
	if a.graph != nil {
		a.graph.Clear()
	}
	a.graph = nil
	a.resolver = nil
	a.refresher = nil
	a.mu.Unlock()

	a.caches.Clear()
	return a.store.Delete(ctx, a.snapshotKey())
}

// Metrics returns the current observability snapshot.
func (a *Analyzer) Metrics() MetricsSnapshot {
	a.mu.Lock()
	g := a.graph
	a.mu.Unlock()

	m := MetricsSnapshot{CacheSize: a.caches.Size()}
	if g != nil {
		stats := g.Stats()
		m.TotalFiles = stats.TotalFiles
		m.RouteFiles = stats.RouteFiles
		m.EntryPoints = stats.EntryPoints
		m.ImportEdges = stats.ImportEdges
	}
	return m
}

// Project returns the detected repository manifest.
func (a *Analyzer) Project() manifest.Project {
	return a.project
}

// Ready reports whether a graph is installed.
func (a *Analyzer) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.graph != nil
}

// Close releases the snapshot store.
func (a *Analyzer) Close() error {
	return a.store.Close()
}
