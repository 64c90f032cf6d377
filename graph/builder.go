// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/routescope/routescope/ast"
	"github.com/routescope/routescope/routes"
	"github.com/routescope/routescope/scan"
)

// DefaultBatchSize bounds how many files are parsed concurrently. Batching
// caps peak open files and memory while keeping parser cores busy.
const DefaultBatchSize = 50

// entryPointRe matches basenames conventionally used for application roots.
var entryPointRe = regexp.MustCompile(`(?i)^(index|main|app|root|_app)\.`)

// Builder constructs the import graph from a repository on disk.
//
// Thread Safety: a Builder is safe for concurrent use; each Build call
// works on its own Graph. Batch workers write only their own per-file
// results; all shared graph state is written by a single merge pass per
// batch.
type Builder struct {
	parser    *ast.Parser
	extractor *routes.Extractor
	scanner   *scan.Scanner
	caches    *Caches
	logger    *slog.Logger
	batchSize int
	aliasRoot string
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBatchSize sets the parallel parse batch size.
func WithBatchSize(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithAliasRoot sets the directory the "@/" specifier prefix maps to.
func WithAliasRoot(dir string) BuilderOption {
	return func(b *Builder) {
		if dir != "" {
			b.aliasRoot = dir
		}
	}
}

// WithCaches shares a cache set between the builder and its consumers.
func WithCaches(c *Caches) BuilderOption {
	return func(b *Builder) {
		if c != nil {
			b.caches = c
		}
	}
}

// WithBuilderLogger sets the logger.
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder creates a Builder around a parser, a route extractor, and a
// file scanner.
func NewBuilder(parser *ast.Parser, extractor *routes.Extractor, scanner *scan.Scanner, opts ...BuilderOption) *Builder {
	caches, _ := NewCaches(0, 0)
	b := &Builder{
		parser:    parser,
		extractor: extractor,
		scanner:   scanner,
		caches:    caches,
		logger:    slog.Default(),
		batchSize: DefaultBatchSize,
		aliasRoot: "src",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Caches returns the cache set the builder writes through.
func (b *Builder) Caches() *Caches {
	return b.caches
}

// Build scans the repository and constructs a fresh graph.
//
// Description:
//
//	Files are parsed in parallel batches; each worker produces only its own
//	FileRecord. Shared edge maps are written by a single-threaded merge
//	pass per batch, so no two writers ever touch the same reverse-edge map.
//	After the scan a post-pass links directory pseudo-nodes to their index
//	files and marks entry points.
//
// Outputs:
//
//	*Graph - The constructed graph. Non-nil even when file errors occurred.
//	[]FileError - Per-file failures; the named files contribute empty nodes.
//	error - Fatal failures only: bad root, scan failure, or cancellation.
func (b *Builder) Build(ctx context.Context, rootPath string) (*Graph, []FileError, error) {
	if rootPath == "" {
		return nil, nil, ErrEmptyRoot
	}

	ctx, span := startBuildSpan(ctx, rootPath)
	defer span.End()
	start := time.Now()

	files, err := b.scanner.Scan(ctx, rootPath)
	if err != nil {
		return nil, nil, err
	}

	resolver := ast.NewResolver(files, ast.WithAlias("@/", b.aliasRoot+"/"))
	g := New()
	dirPairs := make(map[NodeID]NodeID)
	var fileErrors []FileError

	for lo := 0; lo < len(files); lo += b.batchSize {
		hi := min(lo+b.batchSize, len(files))
		batch := files[lo:hi]

		recs := make([]*FileRecord, len(batch))
		ferrs := make([]*FileError, len(batch))

		eg, egCtx := errgroup.WithContext(ctx)
		for i, rel := range batch {
			eg.Go(func() error {
				rec, fe, err := b.parseOne(egCtx, rootPath, rel)
				if err != nil {
					return err
				}
				recs[i], ferrs[i] = rec, fe
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, fileErrors, err
		}

		for i, rec := range recs {
			if ferrs[i] != nil {
				fileErrors = append(fileErrors, *ferrs[i])
			}
			if rec != nil {
				b.mergeRecord(g, resolver, rec, dirPairs)
			}
		}
	}

	b.linkDirectoryPairs(g, dirPairs)
	b.markEntryPoints(g, files)

	stats := g.Stats()
	span.SetAttributes(
		attribute.Int("graph.files", stats.TotalFiles),
		attribute.Int("graph.edges", stats.ImportEdges),
		attribute.Int("graph.file_errors", len(fileErrors)),
	)
	recordBuildMetrics(ctx, time.Since(start), len(files), len(fileErrors))

	b.logger.Info("graph build complete",
		slog.String("root", rootPath),
		slog.Int("files", stats.TotalFiles),
		slog.Int("routeFiles", stats.RouteFiles),
		slog.Int("edges", stats.ImportEdges),
		slog.Int("fileErrors", len(fileErrors)),
		slog.Duration("elapsed", time.Since(start)))

	return g, fileErrors, nil
}

// parseOne reads, parses, and extracts routes from a single file. The
// returned error is non-nil only for cancellation; per-file failures come
// back as a FileError alongside an empty record.
func (b *Builder) parseOne(ctx context.Context, rootPath, rel string) (*FileRecord, *FileError, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	full := filepath.Join(rootPath, filepath.FromSlash(rel))
	content, err := os.ReadFile(full)
	if err != nil {
		return emptyRecord(rel, err), &FileError{Path: rel, Err: err}, nil
	}
	var lastModified int64
	if info, err := os.Stat(full); err == nil {
		lastModified = info.ModTime().UnixMilli()
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	node, ok := b.caches.Parsed(hash)
	if !ok || node.Path != rel {
		var perr error
		node, perr = b.parser.ParseFile(ctx, content, rel)
		if perr != nil {
			if errors.Is(perr, context.Canceled) || errors.Is(perr, context.DeadlineExceeded) {
				return nil, nil, perr
			}
			rec := emptyRecord(rel, perr)
			rec.Hash = hash
			rec.LastModified = lastModified
			return rec, &FileError{Path: rel, Err: perr}, nil
		}
		b.caches.StoreParsed(hash, node)
	}

	rec := &FileRecord{
		Path:         rel,
		Imports:      append([]ast.ImportEdge(nil), node.Imports...),
		Exports:      node.Exports,
		Routes:       b.extractor.Extract(ctx, content, rel),
		Hash:         hash,
		LastModified: lastModified,
		ParseErrors:  node.ParseErrors,
	}
	return rec, nil, nil
}

func emptyRecord(rel string, reason error) *FileRecord {
	node := ast.EmptyFileNode(rel, reason)
	return &FileRecord{
		Path:        rel,
		Exports:     node.Exports,
		ParseErrors: node.ParseErrors,
	}
}

// mergeRecord resolves a record's import edges and writes them into the
// graph. Runs single-threaded relative to other merges.
func (b *Builder) mergeRecord(g *Graph, resolver *ast.Resolver, rec *FileRecord, dirPairs map[NodeID]NodeID) {
	id := g.Intern(rec.Path)

	for i := range rec.Imports {
		edge := &rec.Imports[i]
		resolved, kind := resolver.Resolve(rec.Path, edge.Specifier)
		alias := AliasInfo{
			Alias:        edge.LocalAlias,
			ImportedName: edge.ImportedName,
			Kind:         edge.Kind,
		}

		switch kind {
		case ast.ResolutionFile:
			edge.Resolved = resolved
			target := g.Intern(resolved)
			g.AddEdge(id, target, alias)
			if dir, ok := indexDirectory(edge.Specifier, resolved); ok {
				dirID := g.Intern(dir)
				g.SetDirectory(dirID)
				dirPairs[dirID] = target
			}
		case ast.ResolutionDirectory:
			edge.Resolved = resolved
			dirID := g.Intern(resolved)
			g.SetDirectory(dirID)
			g.AddEdge(id, dirID, alias)
		case ast.ResolutionExternal:
			edge.Resolved = ""
		default:
			// Unresolvable repo-relative specifier: expected for paths
			// outside the scanned set, no edge is created.
			edge.Resolved = ""
			b.logger.Debug("unresolved import",
				slog.String("file", rec.Path),
				slog.String("specifier", edge.Specifier))
		}
	}

	g.SetFileRecord(rec)
	g.SetRouteFile(id, len(rec.Routes) > 0)
}

// indexDirectory reports the directory a specifier named when resolution
// landed on its index file.
func indexDirectory(specifier, resolved string) (string, bool) {
	if !strings.HasPrefix(path.Base(resolved), "index.") {
		return "", false
	}
	if strings.Contains(path.Base(specifier), "index") {
		return "", false
	}
	return path.Dir(resolved), true
}

// linkDirectoryPairs connects directory pseudo-nodes with their resolved
// index files: importers recorded against the directory are mirrored onto
// the index file, and the route flag propagates in both directions.
func (b *Builder) linkDirectoryPairs(g *Graph, dirPairs map[NodeID]NodeID) {
	for dirID, indexID := range dirPairs {
		_, dirRoute, _, _ := g.NodeInfo(dirID)
		_, idxRoute, _, _ := g.NodeInfo(indexID)
		if idxRoute && !dirRoute {
			g.SetRouteFile(dirID, true)
		}
		if dirRoute && !idxRoute {
			g.SetRouteFile(indexID, true)
		}

		for importer, aliases := range g.Importers(dirID) {
			if importer == indexID {
				continue
			}
			for _, alias := range aliases {
				g.AddEdge(importer, indexID, alias)
			}
		}
	}
}

// markEntryPoints flags importer-less files whose basename matches an
// application-root convention.
func (b *Builder) markEntryPoints(g *Graph, files []string) {
	for _, rel := range files {
		id := g.Lookup(rel)
		if id == InvalidNode {
			continue
		}
		isEntry := len(g.Importers(id)) == 0 && entryPointRe.MatchString(path.Base(rel))
		g.SetEntryPoint(id, isEntry)
	}
}
