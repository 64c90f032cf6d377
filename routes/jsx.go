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
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
)

// attrKind tags the value shape of one JSX attribute.
type attrKind int

const (
	attrString  attrKind = iota // path="/users"
	attrElement                 // element={<Users />}
	attrExpr                    // element={users} or anything else
)

// jsxAttr is the typed form of one JSX attribute value.
type jsxAttr struct {
	Kind attrKind
	Text string // string content, element tag name, or raw expression text
}

// jsxNode is the typed form of one JSX element: tag, attributes, and child
// elements. The raw syntax tree is lowered into this shape before route
// matching so the matching logic never touches tree-sitter node types.
type jsxNode struct {
	Tag      string
	Attrs    map[string]jsxAttr
	Children []jsxNode
	Line     int
	Offset   int
}

// JSXRule extracts routes from JSX elements that carry a path attribute,
// such as react-router's <Route path="/users" element={<Users />} />.
// Nested route elements join their parent's path.
type JSXRule struct{}

// NewJSXRule returns the JSX route-element extraction rule.
func NewJSXRule() *JSXRule {
	return &JSXRule{}
}

// Name implements Rule.
func (r *JSXRule) Name() string { return "jsx_element" }

// Extract implements Rule.
func (r *JSXRule) Extract(ctx context.Context, content []byte, filePath string) ([]RouteDefinition, error) {
	ext := strings.ToLower(path.Ext(filePath))
	switch ext {
	case ".jsx", ".tsx", ".js":
	default:
		return nil, nil
	}

	parser := sitter.NewParser()
	if ext == ".tsx" {
		parser.SetLanguage(tsx.GetLanguage())
	} else {
		parser.SetLanguage(javascript.GetLanguage())
	}

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("jsx parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, nil
	}

	var defs []RouteDefinition
	walkJSXElements(root, content, func(n jsxNode) {
		emitJSXRoutes(n, "", filePath, &defs)
	})
	return defs, nil
}

// walkJSXElements calls fn for each outermost JSX element in the tree.
// Elements nested inside a reported element are reached through its
// Children, not reported again.
func walkJSXElements(n *sitter.Node, source []byte, fn func(jsxNode)) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "jsx_element", "jsx_self_closing_element":
		fn(lowerJSXElement(n, source))
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walkJSXElements(n.Child(i), source, fn)
	}
}

// lowerJSXElement converts a tree-sitter JSX node into a jsxNode.
func lowerJSXElement(n *sitter.Node, source []byte) jsxNode {
	node := jsxNode{
		Attrs:  make(map[string]jsxAttr),
		Line:   int(n.StartPoint().Row) + 1,
		Offset: int(n.StartByte()),
	}

	opening := n
	if n.Type() == "jsx_element" {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch child.Type() {
			case "jsx_opening_element":
				opening = child
			case "jsx_element", "jsx_self_closing_element":
				node.Children = append(node.Children, lowerJSXElement(child, source))
			}
		}
	}

	for i := 0; i < int(opening.ChildCount()); i++ {
		child := opening.Child(i)
		switch child.Type() {
		case "identifier", "jsx_identifier", "member_expression", "jsx_namespace_name":
			if node.Tag == "" {
				node.Tag = string(source[child.StartByte():child.EndByte()])
			}
		case "jsx_attribute":
			name, attr, ok := lowerJSXAttribute(child, source)
			if ok {
				node.Attrs[name] = attr
			}
		case "jsx_element", "jsx_self_closing_element":
			// Self-closing elements have no children; nothing here.
		}
	}

	return node
}

// lowerJSXAttribute converts one jsx_attribute node into its typed form.
func lowerJSXAttribute(n *sitter.Node, source []byte) (string, jsxAttr, bool) {
	var name string
	attr := jsxAttr{Kind: attrExpr}

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "property_identifier":
			name = string(source[child.StartByte():child.EndByte()])
		case "string":
			attr = jsxAttr{Kind: attrString, Text: stringLiteral(child, source)}
		case "jsx_expression":
			attr = lowerJSXExpression(child, source)
		}
	}

	if name == "" {
		return "", jsxAttr{}, false
	}
	return name, attr, true
}

// lowerJSXExpression inspects an attribute expression container. An element
// value yields its tag name, a bare identifier its text, anything else the
// raw expression.
func lowerJSXExpression(n *sitter.Node, source []byte) jsxAttr {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "jsx_element", "jsx_self_closing_element":
			inner := lowerJSXElement(child, source)
			return jsxAttr{Kind: attrElement, Text: inner.Tag}
		case "identifier":
			return jsxAttr{Kind: attrExpr, Text: string(source[child.StartByte():child.EndByte()])}
		case "string":
			return jsxAttr{Kind: attrString, Text: stringLiteral(child, source)}
		}
	}
	return jsxAttr{Kind: attrExpr, Text: string(source[n.StartByte():n.EndByte()])}
}

// stringLiteral returns the unquoted content of a string node.
func stringLiteral(n *sitter.Node, source []byte) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() == "string_fragment" {
			return string(source[child.StartByte():child.EndByte()])
		}
	}
	return strings.Trim(string(source[n.StartByte():n.EndByte()]), "\"'`")
}

// emitJSXRoutes walks a lowered element tree, joining nested route paths.
// An element with a path attribute and a component identity is emitted; its
// children inherit the joined path whether or not it was emitted itself.
func emitJSXRoutes(n jsxNode, parent, filePath string, out *[]RouteDefinition) {
	current := parent

	pathAttr, hasPath := n.Attrs["path"]
	indexAttr, hasIndex := n.Attrs["index"]

	if hasPath && pathAttr.Kind == attrString {
		current = JoinPaths(parent, pathAttr.Text)

		component := jsxComponentName(n)
		hasRouteChildren := false
		for _, child := range n.Children {
			if _, ok := child.Attrs["path"]; ok {
				hasRouteChildren = true
				break
			}
		}
		if component != "" && !hasRouteChildren {
			d := RouteDefinition{
				Path:          current,
				ComponentName: component,
				DefiningFile:  filePath,
				SourceLine:    n.Line,
				SourceOffset:  n.Offset,
			}
			if validate(d) == nil {
				*out = append(*out, d)
			}
		}
	} else if hasIndex && indexAttr.Text != "false" {
		if component := jsxComponentName(n); component != "" {
			d := RouteDefinition{
				Path:          JoinPaths(parent, ""),
				ComponentName: component,
				DefiningFile:  filePath,
				SourceLine:    n.Line,
				SourceOffset:  n.Offset,
				IsIndex:       true,
			}
			if validate(d) == nil {
				*out = append(*out, d)
			}
		}
	}

	for _, child := range n.Children {
		emitJSXRoutes(child, current, filePath, out)
	}
}

// jsxComponentName returns the component identity of a route element: the
// element/component attribute's tag when present, otherwise the element's
// own tag when it is not a bare router primitive.
func jsxComponentName(n jsxNode) string {
	for _, key := range []string{"element", "component", "Component"} {
		if attr, ok := n.Attrs[key]; ok && attr.Text != "" {
			return attr.Text
		}
	}
	return ""
}
