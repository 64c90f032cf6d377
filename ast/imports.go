// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ast

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// maxDynamicImportDepth bounds the recursive walk for import() expressions.
// Real code nests dynamic imports inside closures and JSX props; a depth of
// 40 covers every tree seen in practice without risking pathological input.
const maxDynamicImportDepth = 40

// lazyHelperNames are the call targets recognized as lazy-loading wrappers
// around a dynamic import: React.lazy, bare lazy, and next/dynamic.
var lazyHelperNames = map[string]bool{
	"lazy":       true,
	"React.lazy": true,
	"dynamic":    true,
}

// extractImports collects every import edge in the file.
//
// Static import statements and CommonJS requires are found at the top level,
// lazy helper wrappings inside variable declarations (including exported
// ones), and bare dynamic import() expressions anywhere in the tree.
func (p *Parser) extractImports(root *sitter.Node, source []byte, node *FileNode) {
	// Byte offsets of import() calls already claimed by a lazy wrapper, so
	// the dynamic walk does not report them a second time.
	claimed := make(map[uint32]bool)

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "import_statement":
			p.processImportStatement(child, source, node)
		case "lexical_declaration", "variable_declaration":
			p.processDeclarationImports(child, source, node, claimed)
		case "export_statement":
			// export const X = lazy(() => import('./x'))
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				if gc.Type() == "lexical_declaration" || gc.Type() == "variable_declaration" {
					p.processDeclarationImports(gc, source, node, claimed)
				}
			}
		}
	}

	p.walkDynamicImports(root, source, node, claimed, 0)
}

// processImportStatement handles an ES module import statement, emitting one
// edge per binding.
func (p *Parser) processImportStatement(stmt *sitter.Node, source []byte, node *FileNode) {
	var specifier string
	var clause *sitter.Node
	typeOnly := false

	for i := 0; i < int(stmt.ChildCount()); i++ {
		child := stmt.Child(i)
		switch child.Type() {
		case "type":
			typeOnly = true
		case "import_clause":
			clause = child
		case "string":
			specifier = stringContent(child, source)
		}
	}

	if specifier == "" {
		return
	}

	line := lineOf(stmt)

	if clause == nil {
		node.Imports = append(node.Imports, ImportEdge{
			Specifier: specifier,
			Kind:      ImportKindSideEffect,
			Line:      line,
		})
		return
	}

	kindFor := func(k ImportKind) ImportKind {
		if typeOnly {
			return ImportKindType
		}
		return k
	}

	for i := 0; i < int(clause.ChildCount()); i++ {
		child := clause.Child(i)
		switch child.Type() {
		case "identifier":
			// import X from 'mod'
			node.Imports = append(node.Imports, ImportEdge{
				Specifier:    specifier,
				LocalAlias:   nodeText(child, source),
				ImportedName: "default",
				Kind:         kindFor(ImportKindDefault),
				Line:         line,
			})
		case "namespace_import":
			// import * as ns from 'mod'
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				if gc.Type() == "identifier" {
					node.Imports = append(node.Imports, ImportEdge{
						Specifier:    specifier,
						LocalAlias:   nodeText(gc, source),
						ImportedName: "*",
						Kind:         kindFor(ImportKindNamespace),
						Line:         line,
					})
				}
			}
		case "named_imports":
			// import { a, b as c } from 'mod'
			for j := 0; j < int(child.ChildCount()); j++ {
				spec := child.Child(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				name, alias, specTypeOnly := p.importSpecifier(spec, source)
				if name == "" {
					continue
				}
				if alias == "" {
					alias = name
				}
				kind := kindFor(ImportKindNamed)
				if specTypeOnly {
					kind = ImportKindType
				}
				node.Imports = append(node.Imports, ImportEdge{
					Specifier:    specifier,
					LocalAlias:   alias,
					ImportedName: name,
					Kind:         kind,
					Line:         line,
				})
			}
		}
	}
}

// importSpecifier extracts name, alias, and type-only flag from one
// import_specifier node.
func (p *Parser) importSpecifier(spec *sitter.Node, source []byte) (name, alias string, typeOnly bool) {
	for i := 0; i < int(spec.ChildCount()); i++ {
		child := spec.Child(i)
		switch child.Type() {
		case "type":
			typeOnly = true
		case "identifier":
			if name == "" {
				name = nodeText(child, source)
			} else {
				alias = nodeText(child, source)
			}
		}
	}
	return name, alias, typeOnly
}

// processDeclarationImports handles const/let/var declarators that bind a
// module: CommonJS requires and lazy-wrapped dynamic imports. A declaration
// may carry several declarators.
func (p *Parser) processDeclarationImports(decl *sitter.Node, source []byte, node *FileNode, claimed map[uint32]bool) {
	for i := 0; i < int(decl.ChildCount()); i++ {
		declarator := decl.Child(i)
		if declarator.Type() != "variable_declarator" {
			continue
		}

		var name string
		var call *sitter.Node
		for j := 0; j < int(declarator.ChildCount()); j++ {
			gc := declarator.Child(j)
			switch gc.Type() {
			case "identifier":
				name = nodeText(gc, source)
			case "call_expression":
				call = gc
			}
		}
		if name == "" || call == nil {
			continue
		}

		if specifier := p.requireSpecifier(call, source); specifier != "" {
			node.Imports = append(node.Imports, ImportEdge{
				Specifier:    specifier,
				LocalAlias:   name,
				ImportedName: "default",
				Kind:         ImportKindCommonJS,
				Line:         lineOf(declarator),
			})
			continue
		}

		if specifier, importCall := p.lazySpecifier(call, source); specifier != "" {
			claimed[importCall.StartByte()] = true
			node.Imports = append(node.Imports, ImportEdge{
				Specifier:    specifier,
				LocalAlias:   name,
				ImportedName: "default",
				Kind:         ImportKindLazy,
				Line:         lineOf(declarator),
			})
		}
	}
}

// requireSpecifier returns the module path of a require() call, or "".
func (p *Parser) requireSpecifier(call *sitter.Node, source []byte) string {
	var funcName, specifier string
	for i := 0; i < int(call.ChildCount()); i++ {
		child := call.Child(i)
		switch child.Type() {
		case "identifier":
			funcName = nodeText(child, source)
		case "arguments":
			for j := 0; j < int(child.ChildCount()); j++ {
				if arg := child.Child(j); arg.Type() == "string" {
					specifier = stringContent(arg, source)
				}
			}
		}
	}
	if funcName == "require" {
		return specifier
	}
	return ""
}

// lazySpecifier recognizes lazy(() => import('mod')) and returns the module
// specifier together with the inner import call node.
func (p *Parser) lazySpecifier(call *sitter.Node, source []byte) (string, *sitter.Node) {
	var helper string
	var args *sitter.Node
	for i := 0; i < int(call.ChildCount()); i++ {
		child := call.Child(i)
		switch child.Type() {
		case "identifier", "member_expression":
			if helper == "" {
				helper = nodeText(child, source)
			}
		case "arguments":
			args = child
		}
	}
	if !lazyHelperNames[helper] || args == nil {
		return "", nil
	}

	importCall := findImportCall(args, 0)
	if importCall == nil {
		return "", nil
	}
	specifier := importCallSpecifier(importCall, source)
	if specifier == "" {
		return "", nil
	}
	return specifier, importCall
}

// findImportCall locates the first import() call under a node.
func findImportCall(n *sitter.Node, depth int) *sitter.Node {
	if n == nil || depth > maxDynamicImportDepth {
		return nil
	}
	if n.Type() == "call_expression" {
		if first := n.Child(0); first != nil && first.Type() == "import" {
			return n
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := findImportCall(n.Child(i), depth+1); found != nil {
			return found
		}
	}
	return nil
}

// importCallSpecifier extracts the string argument of an import() call.
func importCallSpecifier(call *sitter.Node, source []byte) string {
	for i := 0; i < int(call.ChildCount()); i++ {
		child := call.Child(i)
		if child.Type() != "arguments" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			if arg := child.Child(j); arg.Type() == "string" {
				return stringContent(arg, source)
			}
		}
	}
	return ""
}

// walkDynamicImports reports bare import() expressions anywhere in the tree.
// Calls claimed by a lazy wrapper are skipped; a bare dynamic import has no
// stable local name.
func (p *Parser) walkDynamicImports(n *sitter.Node, source []byte, node *FileNode, claimed map[uint32]bool, depth int) {
	if n == nil || depth > maxDynamicImportDepth {
		return
	}

	if n.Type() == "call_expression" {
		if first := n.Child(0); first != nil && first.Type() == "import" && !claimed[n.StartByte()] {
			if specifier := importCallSpecifier(n, source); specifier != "" {
				node.Imports = append(node.Imports, ImportEdge{
					Specifier: specifier,
					Kind:      ImportKindDynamic,
					Line:      lineOf(n),
				})
			}
			claimed[n.StartByte()] = true
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		p.walkDynamicImports(n.Child(i), source, node, claimed, depth+1)
	}
}
