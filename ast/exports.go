// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ast

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// extractExports collects the export surface of the file.
//
// ES module exports are found at the top level. When none are present the
// tree is walked for module.exports / exports.x assignments and the module
// kind flips to CommonJS.
func (p *Parser) extractExports(root *sitter.Node, source []byte, node *FileNode) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child.Type() == "export_statement" {
			p.processExportStatement(child, source, node)
		}
	}

	if node.Exports.HasDefault || len(node.Exports.Named) > 0 || len(node.Exports.ReExports) > 0 {
		return
	}
	p.extractCommonJSExports(root, source, node)
}

func (p *Parser) processExportStatement(stmt *sitter.Node, source []byte, node *FileNode) {
	var isDefault, isStar bool
	var reExportSource string
	var clause, decl, value *sitter.Node

	for i := 0; i < int(stmt.ChildCount()); i++ {
		child := stmt.Child(i)
		switch child.Type() {
		case "default":
			isDefault = true
		case "*":
			isStar = true
		case "string":
			reExportSource = stringContent(child, source)
		case "export_clause":
			clause = child
		case "function_declaration", "generator_function_declaration", "class_declaration",
			"lexical_declaration", "variable_declaration",
			"interface_declaration", "type_alias_declaration", "enum_declaration",
			"abstract_class_declaration":
			decl = child
		case "identifier", "arrow_function", "function_expression", "call_expression",
			"object", "member_expression", "jsx_element", "jsx_self_closing_element",
			"parenthesized_expression", "number", "string_fragment":
			value = child
		}
	}

	switch {
	case isStar && reExportSource != "":
		// export * from 'mod'
		node.Exports.ReExports["*"] = reExportSource
		node.Imports = append(node.Imports, ImportEdge{
			Specifier:    reExportSource,
			ImportedName: "*",
			Kind:         ImportKindReExport,
			Line:         lineOf(stmt),
		})

	case clause != nil && reExportSource != "":
		// export { a, b as c } from 'mod'
		for _, sp := range exportSpecifiers(clause, source) {
			node.Exports.ReExports[sp.exported] = reExportSource
			node.Imports = append(node.Imports, ImportEdge{
				Specifier:    reExportSource,
				LocalAlias:   sp.exported,
				ImportedName: sp.local,
				Kind:         ImportKindReExport,
				Line:         lineOf(stmt),
			})
		}

	case clause != nil:
		// export { a, b as c }
		for _, sp := range exportSpecifiers(clause, source) {
			node.Exports.Named[sp.exported] = sp.local
		}

	case isDefault:
		node.Exports.HasDefault = true
		node.Exports.DefaultName = defaultExportName(decl, value, source)
		if node.Exports.DefaultName != "" {
			node.Exports.Named["default"] = node.Exports.DefaultName
		}

	case decl != nil:
		for _, name := range declaredNames(decl, source) {
			node.Exports.Named[name] = name
		}
	}
}

type exportSpec struct {
	local    string
	exported string
}

// exportSpecifiers flattens an export_clause into local/exported name pairs.
func exportSpecifiers(clause *sitter.Node, source []byte) []exportSpec {
	var specs []exportSpec
	for i := 0; i < int(clause.ChildCount()); i++ {
		child := clause.Child(i)
		if child.Type() != "export_specifier" {
			continue
		}
		var local, exported string
		for j := 0; j < int(child.ChildCount()); j++ {
			gc := child.Child(j)
			if gc.Type() == "identifier" {
				if local == "" {
					local = nodeText(gc, source)
				} else {
					exported = nodeText(gc, source)
				}
			}
		}
		if local == "" {
			continue
		}
		if exported == "" {
			exported = local
		}
		specs = append(specs, exportSpec{local: local, exported: exported})
	}
	return specs
}

// declaredNames returns the identifiers bound by a declaration node. A
// lexical declaration may bind several names at once.
func declaredNames(decl *sitter.Node, source []byte) []string {
	var names []string
	switch decl.Type() {
	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(decl.ChildCount()); i++ {
			declarator := decl.Child(i)
			if declarator.Type() != "variable_declarator" {
				continue
			}
			if id := declarator.Child(0); id != nil && id.Type() == "identifier" {
				names = append(names, nodeText(id, source))
			}
		}
	default:
		for i := 0; i < int(decl.ChildCount()); i++ {
			child := decl.Child(i)
			if child.Type() == "identifier" || child.Type() == "type_identifier" {
				names = append(names, nodeText(child, source))
				break
			}
		}
	}
	return names
}

// defaultExportName derives a name for a default export when one exists.
// Anonymous values (arrow functions, object literals) yield "".
func defaultExportName(decl, value *sitter.Node, source []byte) string {
	if decl != nil {
		if names := declaredNames(decl, source); len(names) > 0 {
			return names[0]
		}
		return ""
	}
	if value != nil && value.Type() == "identifier" {
		return nodeText(value, source)
	}
	return ""
}

// extractCommonJSExports walks for module.exports and exports.x assignments.
func (p *Parser) extractCommonJSExports(n *sitter.Node, source []byte, node *FileNode) {
	if n == nil {
		return
	}

	if n.Type() == "assignment_expression" {
		left := n.Child(0)
		if left != nil && left.Type() == "member_expression" {
			target := nodeText(left, source)
			switch {
			case target == "module.exports":
				node.Exports.ModuleKind = ModuleKindCommonJS
				node.Exports.HasDefault = true
				if right := n.Child(int(n.ChildCount()) - 1); right != nil && right.Type() == "identifier" {
					node.Exports.DefaultName = nodeText(right, source)
					node.Exports.Named["default"] = node.Exports.DefaultName
				}
			case len(target) > 8 && strings.HasPrefix(target, "exports.") && !strings.Contains(target[8:], "."):
				node.Exports.ModuleKind = ModuleKindCommonJS
				name := target[8:]
				node.Exports.Named[name] = name
			case len(target) > 15 && strings.HasPrefix(target, "module.exports.") && !strings.Contains(target[15:], "."):
				node.Exports.ModuleKind = ModuleKindCommonJS
				name := target[15:]
				node.Exports.Named[name] = name
			}
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		p.extractCommonJSExports(n.Child(i), source, node)
	}
}
