// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ast

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// CodeExtensions lists every file extension the parser accepts.
var CodeExtensions = []string{
	".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs", ".mts", ".cts",
	".svelte", ".vue",
}

// IsCodeFile reports whether the path has a parseable extension.
func IsCodeFile(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range CodeExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// scriptBlockRe captures the body of a <script> element in single-file
// components (Svelte, Vue). The lang attribute, when present, selects the
// TypeScript grammar.
var scriptBlockRe = regexp.MustCompile(`(?s)<script([^>]*)>(.*?)</script>`)

// ParserOption configures a Parser instance.
type ParserOption func(*Parser)

// WithMaxFileSize sets the maximum file size the parser will accept.
func WithMaxFileSize(bytes int64) ParserOption {
	return func(p *Parser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithLogger sets the logger used for skip events.
func WithLogger(logger *slog.Logger) ParserOption {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Parser turns JS/TS source files into FileNodes.
//
// The grammar is selected per file by extension: .tsx uses the TSX grammar,
// .ts/.mts/.cts use the TypeScript grammar, everything else uses the
// JavaScript grammar. Single-file components (.svelte, .vue) have their
// <script> block extracted and parsed with the grammar its lang attribute
// implies.
//
// Thread Safety:
//
//	Parser is safe for concurrent use. Each ParseFile call creates its own
//	tree-sitter parser instance internally.
type Parser struct {
	maxFileSize int64
	logger      *slog.Logger
}

// NewParser creates a Parser with the given options.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile extracts imports and exports from one source file.
//
// Description:
//
//	Parses the content with tree-sitter and extracts the file's import
//	edges and export surface. The parser is error-tolerant: syntactically
//	invalid code yields partial results with ParseErrors set. Guard
//	failures (oversized or binary content) and total parse failures are
//	reported as errors so the caller can substitute an empty FileNode;
//	they are never fatal to a build.
//
// Inputs:
//
//	ctx - Context for cancellation. Checked before and after parsing.
//	content - Raw source bytes.
//	filePath - Repository-relative path, forward slashes. Selects the grammar.
//
// Outputs:
//
//	*FileNode - The parse product. Nil only when error is non-nil.
//	error - ErrFileTooLarge, ErrBinaryContent, ErrInvalidContent,
//	        ErrParseFailed, or a context error.
//
// Thread Safety: safe for concurrent use.
func (p *Parser) ParseFile(ctx context.Context, content []byte, filePath string) (*FileNode, error) {
	ctx, span := startParseSpan(ctx, grammarName(filePath), filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, grammarName(filePath), time.Since(start), false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	// Denial-of-service / binary-file guards. Skipped files are logged at
	// low severity by the caller and never fail a build.
	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(ctx, grammarName(filePath), time.Since(start), false)
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(content))
	}
	if bytes.IndexByte(content, 0) >= 0 {
		recordParseMetrics(ctx, grammarName(filePath), time.Since(start), false)
		return nil, ErrBinaryContent
	}
	if !utf8.Valid(content) {
		recordParseMetrics(ctx, grammarName(filePath), time.Since(start), false)
		return nil, ErrInvalidContent
	}

	if len(content) > WarnFileSize {
		p.logger.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	hash := sha256.Sum256(content)

	node := &FileNode{
		Path:    filePath,
		Exports: NewExportInfo(),
		Hash:    hex.EncodeToString(hash[:]),
	}

	source, lang, ok := p.selectSource(content, filePath)
	if !ok {
		// Single-file component with no script block: nothing to extract.
		return node, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		recordParseMetrics(ctx, grammarName(filePath), time.Since(start), false)
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, grammarName(filePath), time.Since(start), false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	root := tree.RootNode()
	if root == nil {
		node.ParseErrors = append(node.ParseErrors, "tree-sitter returned nil root node")
		return node, nil
	}
	if root.HasError() {
		node.ParseErrors = append(node.ParseErrors, "source contains syntax errors")
	}

	p.extractImports(root, source, node)
	p.extractExports(root, source, node)

	setParseSpanResult(span, len(node.Imports), len(node.ParseErrors))
	recordParseMetrics(ctx, grammarName(filePath), time.Since(start), true)

	return node, nil
}

// selectSource returns the bytes to parse and the grammar for the file.
// For single-file components only the script block is parsed; the returned
// bool is false when no script block exists.
func (p *Parser) selectSource(content []byte, filePath string) ([]byte, *sitter.Language, bool) {
	ext := strings.ToLower(path.Ext(filePath))
	switch ext {
	case ".tsx":
		return content, tsx.GetLanguage(), true
	case ".ts", ".mts", ".cts":
		return content, typescript.GetLanguage(), true
	case ".svelte", ".vue":
		m := scriptBlockRe.FindSubmatch(content)
		if m == nil {
			return nil, nil, false
		}
		attrs, body := string(m[1]), m[2]
		if strings.Contains(attrs, `lang="ts"`) || strings.Contains(attrs, "lang='ts'") {
			return body, typescript.GetLanguage(), true
		}
		return body, javascript.GetLanguage(), true
	default:
		return content, javascript.GetLanguage(), true
	}
}

// grammarName returns the metric label for a file's grammar.
func grammarName(filePath string) string {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".tsx":
		return "tsx"
	case ".ts", ".mts", ".cts":
		return "typescript"
	case ".svelte":
		return "svelte"
	case ".vue":
		return "vue"
	default:
		return "javascript"
	}
}

// nodeText returns the source text of a tree-sitter node.
func nodeText(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	return string(source[n.StartByte():n.EndByte()])
}

// stringContent extracts the unquoted content of a string literal node.
func stringContent(n *sitter.Node, source []byte) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() == "string_fragment" {
			return nodeText(child, source)
		}
	}
	raw := nodeText(n, source)
	return strings.Trim(raw, "\"'`")
}

// lineOf returns the 1-based line of a node.
func lineOf(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}
