// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command routescope maps changed files to affected application routes.
//
// Usage:
//
//	# Build the import graph and persist the snapshot
//	routescope build --repo-root /path/to/webapp
//
//	# Which routes does a change affect?
//	routescope detect src/components/UserCard.tsx
//
//	# Feed it a diff instead
//	git diff main... | routescope detect --diff -
//
//	# Long-running server with filesystem watching
//	routescope serve --watch
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/routescope/routescope"
	"github.com/routescope/routescope/api"
	"github.com/routescope/routescope/config"
	"github.com/routescope/routescope/gitdiff"
	"github.com/routescope/routescope/pkg/logging"
	"github.com/routescope/routescope/telemetry"
	"github.com/routescope/routescope/watch"
)

var (
	cfgFile   string
	diffPath  string
	forceFlag bool
	jsonOut   bool

	rootCmd = &cobra.Command{
		Use:   "routescope",
		Short: "Route impact analysis for front-end repositories",
		Long: `Routescope builds a persisted import dependency graph of a
JavaScript/TypeScript repository and answers which application routes a
set of changed files affects.`,
		SilenceUsage: true,
	}

	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Build the import graph and persist the snapshot",
		RunE:  runBuild,
	}

	detectCmd = &cobra.Command{
		Use:   "detect [file...]",
		Short: "Resolve the routes affected by changed files",
		RunE:  runDetect,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE:  runServe,
	}

	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete the persisted snapshot and caches",
		RunE:  runClear,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default routescope.yaml)")
	pf.String("repo-root", ".", "front-end repository to analyze")
	pf.String("repo-name", "", "repository name in snapshot keys")
	pf.String("store-backend", "badger", "snapshot backend: badger, filesystem, or s3")
	pf.String("store-path", ".routescope", "data directory for local backends")
	pf.String("store-namespace", "default", "snapshot key namespace")
	pf.String("policy", "prefer_precise", "impact policy: prefer_precise or union")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: json or text")

	buildCmd.Flags().BoolVar(&forceFlag, "force", false, "ignore any persisted snapshot")

	detectCmd.Flags().StringVar(&diffPath, "diff", "", "unified diff file, - for stdin")
	detectCmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON instead of plain routes")

	serveCmd.Flags().String("server-addr", ":8085", "listen address")
	serveCmd.Flags().Bool("watch", false, "watch the repository for changes")

	rootCmd.AddCommand(buildCmd, detectCmd, serveCmd, clearCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads config and constructs the analyzer. The returned cleanup
// closes the logger's file handle, if any.
func setup(cmd *cobra.Command) (*routescope.Analyzer, *config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, nil, nil, err
	}

	logger, cleanup := logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "routescope",
	})

	analyzer, err := routescope.New(cfg, routescope.WithLogger(logger))
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, err
	}
	return analyzer, cfg, logger, cleanup, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runBuild(cmd *cobra.Command, args []string) error {
	analyzer, _, _, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	defer analyzer.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if forceFlag {
		err = analyzer.ForceRebuild(ctx)
	} else {
		err = analyzer.Load(ctx)
	}
	if err != nil {
		return err
	}
	if err := analyzer.Persist(ctx); err != nil {
		return err
	}

	m := analyzer.Metrics()
	fmt.Fprintf(cmd.OutOrStdout(), "graph ready: %d files, %d route files, %d edges\n",
		m.TotalFiles, m.RouteFiles, m.ImportEdges)
	return nil
}

func runDetect(cmd *cobra.Command, args []string) error {
	files := args
	if diffPath != "" {
		changed, err := readDiff(diffPath)
		if err != nil {
			return err
		}
		files = append(files, changed...)
	}
	if len(files) == 0 {
		return fmt.Errorf("no changed files: pass paths or --diff")
	}

	analyzer, _, _, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	defer analyzer.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := analyzer.Load(ctx); err != nil {
		return err
	}
	if _, err := analyzer.Update(ctx, files); err != nil {
		return err
	}

	impact, err := analyzer.DetectRoutes(ctx, files)
	if err != nil {
		return err
	}
	if err := analyzer.Persist(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(impact)
	}
	for _, file := range files {
		routes := impact[file]
		if len(routes) == 0 {
			fmt.Fprintf(out, "%s: no affected routes\n", file)
			continue
		}
		for _, r := range routes {
			fmt.Fprintf(out, "%s: %s\n", file, r)
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	analyzer, cfg, logger, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	defer analyzer.Close()

	ctx, cancel := signalContext()
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	if err := analyzer.Load(ctx); err != nil {
		return err
	}

	if cfg.Watch.Enabled {
		watcher, err := watch.New(cfg.RepoRoot, func(paths []string) {
			if _, err := analyzer.Update(ctx, paths); err != nil {
				logger.Warn("incremental update failed", "error", err)
				return
			}
			if err := analyzer.Persist(ctx); err != nil {
				logger.Warn("persist after update failed", "error", err)
			}
		}, watch.Options{DebounceWindow: cfg.Watch.Debounce, Logger: logger})
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	server := api.NewServer(api.ServerConfig{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, analyzer, logger)
	return server.Run(ctx)
}

func runClear(cmd *cobra.Command, args []string) error {
	analyzer, _, _, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	defer analyzer.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := analyzer.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "snapshot cleared")
	return nil
}

// readDiff parses a patch from a file, or stdin when path is "-".
func readDiff(path string) ([]string, error) {
	if path == "-" {
		return gitdiff.ChangedFiles(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open diff: %w", err)
	}
	defer f.Close()
	return gitdiff.ChangedFiles(f)
}
