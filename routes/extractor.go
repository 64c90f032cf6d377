// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"fmt"
	"log/slog"
)

// Rule is one route-extraction strategy. Rules run in registration order;
// when two rules find a route at the same source position the earlier rule's
// result wins.
type Rule interface {
	// Name identifies the rule in logs and metrics.
	Name() string

	// Extract returns the routes the rule finds in one file. Errors are
	// file-scoped; the extractor logs them and moves on.
	Extract(ctx context.Context, content []byte, filePath string) ([]RouteDefinition, error)
}

// Extractor runs a pluggable set of extraction rules over source files.
//
// Thread Safety: safe for concurrent use; rules must be stateless.
type Extractor struct {
	rules  []Rule
	logger *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithRules replaces the default rule set.
func WithRules(rules ...Rule) ExtractorOption {
	return func(e *Extractor) {
		e.rules = rules
	}
}

// WithExtractorLogger sets the logger for rule failures.
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExtractor creates an Extractor. The default rule set detects
// route-table object literals first, then JSX route elements; the table rule
// runs first because its text scan tolerates malformed sources that break
// the syntax tree. A file-system rule is appended when a framework
// convention is supplied.
func NewExtractor(fsRule Rule, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		rules:  []Rule{NewTableRule(), NewJSXRule()},
		logger: slog.Default(),
	}
	if fsRule != nil {
		e.rules = append(e.rules, fsRule)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs every rule over the file and unions the results.
//
// Routes found by a later rule at a byte offset already claimed by an
// earlier rule are discarded. Claims are recorded only after a rule's full
// result set is accepted, so they arbitrate between rules and never thin a
// single rule's own results. The final list is deduplicated by
// (path, component, file).
func (e *Extractor) Extract(ctx context.Context, content []byte, filePath string) []RouteDefinition {
	var all []RouteDefinition
	claimed := make(map[int]bool)

	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return Dedup(all)
		}

		defs, err := rule.Extract(ctx, content, filePath)
		if err != nil {
			e.logger.Debug("route rule failed",
				slog.String("rule", rule.Name()),
				slog.String("file", filePath),
				slog.String("error", err.Error()))
			continue
		}

		var accepted []RouteDefinition
		for _, d := range defs {
			if d.SourceLine > 0 && claimed[d.SourceOffset] {
				continue
			}
			accepted = append(accepted, d)
		}
		for _, d := range accepted {
			if d.SourceLine > 0 {
				claimed[d.SourceOffset] = true
			}
		}
		all = append(all, accepted...)
	}

	return Dedup(all)
}

// validate checks a definition before emission. Rules call this to drop
// malformed finds instead of propagating them.
func validate(d RouteDefinition) error {
	if d.Path == "" {
		return fmt.Errorf("route in %s has empty path", d.DefiningFile)
	}
	if d.DefiningFile == "" {
		return fmt.Errorf("route %s has no defining file", d.Path)
	}
	return nil
}
