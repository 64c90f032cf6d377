// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for graph construction.
var (
	tracer = otel.Tracer("routescope.graph")
	meter  = otel.Meter("routescope.graph")
)

// Metrics for build and refresh operations.
var (
	buildLatency   metric.Float64Histogram
	buildFiles     metric.Int64Histogram
	refreshTotal   metric.Int64Counter
	fileErrorTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"graph_build_duration_seconds",
			metric.WithDescription("Duration of full graph builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildFiles, err = meter.Int64Histogram(
			"graph_build_files",
			metric.WithDescription("Number of files processed per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		refreshTotal, err = meter.Int64Counter(
			"graph_refresh_total",
			metric.WithDescription("Total number of incremental refreshes"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fileErrorTotal, err = meter.Int64Counter(
			"graph_file_errors_total",
			metric.WithDescription("Total number of per-file build failures"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for one full build.
func recordBuildMetrics(ctx context.Context, duration time.Duration, fileCount, errorCount int) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}
	buildLatency.Record(ctx, duration.Seconds())
	buildFiles.Record(ctx, int64(fileCount))
	if errorCount > 0 {
		fileErrorTotal.Add(ctx, int64(errorCount))
	}
}

// recordRefreshMetrics records metrics for one incremental refresh.
func recordRefreshMetrics(ctx context.Context, changed, errorCount int) {
	if err := initMetrics(); err != nil {
		return
	}
	refreshTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.Int("changed_files", changed)))
	if errorCount > 0 {
		fileErrorTotal.Add(ctx, int64(errorCount))
	}
}

// startBuildSpan creates a span for a build operation.
func startBuildSpan(ctx context.Context, rootPath string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Builder.Build",
		trace.WithAttributes(attribute.String("graph.root", rootPath)),
	)
}

// startRefreshSpan creates a span for an incremental refresh.
func startRefreshSpan(ctx context.Context, changed int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Refresher.Update",
		trace.WithAttributes(attribute.Int("graph.changed_files", changed)),
	)
}
