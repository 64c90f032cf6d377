// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package impact

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for impact queries.
var (
	tracer = otel.Tracer("routescope.impact")
	meter  = otel.Meter("routescope.impact")
)

// Metrics for route-impact queries.
var (
	queryTotal    metric.Int64Counter
	queryRoutes   metric.Int64Histogram
	bfsIterations metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		queryTotal, err = meter.Int64Counter(
			"impact_queries_total",
			metric.WithDescription("Total number of route-impact queries"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryRoutes, err = meter.Int64Histogram(
			"impact_routes_per_query",
			metric.WithDescription("Number of routes returned per query"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		bfsIterations, err = meter.Int64Histogram(
			"impact_bfs_iterations",
			metric.WithDescription("BFS iterations per uncached query"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordQueryMetrics records metrics for one impact query.
func recordQueryMetrics(ctx context.Context, cacheHit bool, iterations, resultCount int) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}
	queryTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("cache_hit", cacheHit)))
	queryRoutes.Record(ctx, int64(resultCount))
	if !cacheHit {
		bfsIterations.Record(ctx, int64(iterations))
	}
}

// startQuerySpan creates a span for an uncached impact query.
func startQuerySpan(ctx context.Context, filePath string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Resolver.DetectRoutesForFile",
		trace.WithAttributes(attribute.String("impact.file", filePath)),
	)
}

// setQuerySpanResult sets the result attributes on a query span.
func setQuerySpanResult(span trace.Span, iterations, resultCount int) {
	span.SetAttributes(
		attribute.Int("impact.bfs_iterations", iterations),
		attribute.Int("impact.routes", resultCount),
	)
}
