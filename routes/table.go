// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"bytes"
	"context"
	"regexp"
)

// routeEntry is the typed form of one route-table object literal. The text
// scanner lowers raw source into this shape before any route logic runs.
type routeEntry struct {
	Path      string
	HasPath   bool
	Component string
	Index     bool
	Children  []routeEntry
	Line      int
	Offset    int
}

// jsxTagRe pulls the component tag out of a JSX attribute value like
// <Users /> or <Users prop={x}>...</Users>.
var jsxTagRe = regexp.MustCompile(`<\s*([A-Za-z_$][\w.$]*)`)

// identRe matches a bare identifier value, e.g. component: Users.
var identRe = regexp.MustCompile(`^[A-Za-z_$][\w.$]*$`)

// TableRule extracts routes from route-table object literals by scanning the
// raw source text. The scan tolerates files whose syntax tree is partial or
// broken, which is why it runs before the JSX rule.
type TableRule struct{}

// NewTableRule returns the route-table extraction rule.
func NewTableRule() *TableRule {
	return &TableRule{}
}

// Name implements Rule.
func (r *TableRule) Name() string { return "route_table" }

// Extract implements Rule. It finds every object literal carrying a path,
// index, or children key, lowers it to a routeEntry tree, and emits leaf
// entries with their parent paths joined in.
func (r *TableRule) Extract(_ context.Context, content []byte, filePath string) ([]RouteDefinition, error) {
	if !bytes.Contains(content, []byte("path")) && !bytes.Contains(content, []byte("index")) {
		return nil, nil
	}

	s := newTableScanner(content)
	var defs []RouteDefinition

	for !s.eof() {
		s.skipTrivia()
		if s.eof() {
			break
		}
		if s.peek() == '{' {
			mark := s.pos
			markLine := s.line
			entry, ok := s.parseRouteObject()
			if ok && (entry.HasPath || entry.Index || len(entry.Children) > 0) {
				emitEntries(entry, "", filePath, &defs)
				continue
			}
			s.pos, s.line = mark+1, markLine
			continue
		}
		s.advance()
	}

	return defs, nil
}

// emitEntries walks a routeEntry tree and appends leaf RouteDefinitions.
// Entries with children contribute a path segment but are not themselves
// emitted; only component-bearing leaves and index entries produce routes.
func emitEntries(entry routeEntry, parent, filePath string, out *[]RouteDefinition) {
	full := JoinPaths(parent, entry.Path)

	if len(entry.Children) > 0 {
		for _, child := range entry.Children {
			emitEntries(child, full, filePath, out)
		}
		return
	}

	if entry.Component == "" && !entry.Index {
		return
	}

	d := RouteDefinition{
		Path:          full,
		ComponentName: entry.Component,
		DefiningFile:  filePath,
		SourceLine:    entry.Line,
		SourceOffset:  entry.Offset,
	}
	if entry.Index && !entry.HasPath {
		d.Path = JoinPaths(parent, "")
		d.IsIndex = true
	}
	if err := validate(d); err != nil {
		return
	}
	*out = append(*out, d)
}

// tableScanner is a tolerant character scanner over JS/TS source. It tracks
// line numbers and knows how to skip strings, comments, and JSX values.
type tableScanner struct {
	src  []byte
	pos  int
	line int
}

func newTableScanner(src []byte) *tableScanner {
	return &tableScanner{src: src, line: 1}
}

func (s *tableScanner) eof() bool  { return s.pos >= len(s.src) }
func (s *tableScanner) peek() byte { return s.src[s.pos] }

func (s *tableScanner) advance() {
	if s.src[s.pos] == '\n' {
		s.line++
	}
	s.pos++
}

// skipTrivia skips whitespace, comments, and string literals.
func (s *tableScanner) skipTrivia() {
	for !s.eof() {
		c := s.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			s.advance()
		case c == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '/':
			for !s.eof() && s.peek() != '\n' {
				s.advance()
			}
		case c == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '*':
			s.advance()
			s.advance()
			for !s.eof() {
				if s.peek() == '*' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '/' {
					s.advance()
					s.advance()
					break
				}
				s.advance()
			}
		default:
			return
		}
	}
}

// readString consumes a quoted literal and returns its content.
func (s *tableScanner) readString() string {
	quote := s.peek()
	s.advance()
	start := s.pos
	for !s.eof() {
		c := s.peek()
		if c == '\\' {
			s.advance()
			if !s.eof() {
				s.advance()
			}
			continue
		}
		if c == quote {
			text := string(s.src[start:s.pos])
			s.advance()
			return text
		}
		s.advance()
	}
	return string(s.src[start:])
}

// readIdentifier consumes an identifier and returns it.
func (s *tableScanner) readIdentifier() string {
	start := s.pos
	for !s.eof() {
		c := s.peek()
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == '_' || c == '$' {
			s.advance()
			continue
		}
		break
	}
	return string(s.src[start:s.pos])
}

// parseRouteObject parses one object literal starting at '{'. It collects
// the path, element/component, index, and children keys and skips everything
// else. Returns ok=false when the braces never balance.
func (s *tableScanner) parseRouteObject() (routeEntry, bool) {
	entry := routeEntry{Line: s.line, Offset: s.pos}
	s.advance() // consume '{'

	for {
		s.skipTrivia()
		if s.eof() {
			return entry, false
		}
		if s.peek() == '}' {
			s.advance()
			return entry, true
		}
		if s.peek() == ',' {
			s.advance()
			continue
		}

		key := s.readIdentifier()
		if key == "" {
			if s.peek() == '\'' || s.peek() == '"' || s.peek() == '`' {
				key = s.readString()
			} else {
				s.advance()
				continue
			}
		}

		s.skipTrivia()
		if s.eof() || s.peek() != ':' {
			// Shorthand property or method; its value was its name.
			continue
		}
		s.advance() // consume ':'
		s.skipTrivia()
		if s.eof() {
			return entry, false
		}

		switch key {
		case "path":
			if s.peek() == '\'' || s.peek() == '"' || s.peek() == '`' {
				entry.Path = s.readString()
				entry.HasPath = true
			} else {
				s.skipValue()
			}
		case "element", "component", "Component":
			raw := s.captureValue()
			if m := jsxTagRe.FindStringSubmatch(raw); m != nil {
				entry.Component = m[1]
			} else if identRe.MatchString(raw) {
				entry.Component = raw
			}
		case "index":
			raw := s.captureValue()
			if raw == "true" {
				entry.Index = true
			}
		case "children", "routes":
			if s.peek() == '[' {
				children, ok := s.parseChildArray()
				if !ok {
					return entry, false
				}
				entry.Children = children
			} else {
				s.skipValue()
			}
		default:
			s.skipValue()
		}
	}
}

// parseChildArray parses '[ {...}, {...} ]', recursing into each object.
func (s *tableScanner) parseChildArray() ([]routeEntry, bool) {
	s.advance() // consume '['
	var children []routeEntry
	for {
		s.skipTrivia()
		if s.eof() {
			return children, false
		}
		switch s.peek() {
		case ']':
			s.advance()
			return children, true
		case '{':
			child, ok := s.parseRouteObject()
			if !ok {
				return children, false
			}
			children = append(children, child)
		case ',':
			s.advance()
		default:
			s.skipValue()
		}
	}
}

// captureValue consumes one property value and returns its trimmed text.
func (s *tableScanner) captureValue() string {
	start := s.pos
	s.skipValue()
	raw := s.src[start:s.pos]
	return string(bytes.TrimSpace(raw))
}

// skipValue consumes one property value: everything up to the next ',' or
// '}' at nesting depth zero. JSX values are skipped by tag balance.
func (s *tableScanner) skipValue() {
	s.skipTrivia()
	if !s.eof() && s.peek() == '<' {
		s.skipJSX()
		return
	}

	depth := 0
	for !s.eof() {
		c := s.peek()
		switch c {
		case '\'', '"', '`':
			s.readString()
			continue
		case '(', '[', '{':
			depth++
		case ')', ']':
			depth--
		case '}':
			if depth == 0 {
				return
			}
			depth--
		case ',':
			if depth == 0 {
				return
			}
		case '/':
			if s.pos+1 < len(s.src) && (s.src[s.pos+1] == '/' || s.src[s.pos+1] == '*') {
				s.skipTrivia()
				continue
			}
		}
		s.advance()
	}
}

// skipJSX consumes a JSX value by balancing open and close tags. Attribute
// strings and expression braces are skipped so angle brackets inside them do
// not confuse the balance.
func (s *tableScanner) skipJSX() {
	depth := 0
	for !s.eof() {
		c := s.peek()
		switch {
		case c == '\'' || c == '"':
			s.readString()
			continue
		case c == '{':
			// Expression container: skip to matching brace.
			braces := 0
			for !s.eof() {
				switch s.peek() {
				case '{':
					braces++
				case '}':
					braces--
				case '\'', '"', '`':
					s.readString()
					continue
				}
				s.advance()
				if braces == 0 {
					break
				}
			}
			continue
		case c == '<' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '/':
			// Closing tag.
			for !s.eof() && s.peek() != '>' {
				s.advance()
			}
			if !s.eof() {
				s.advance()
			}
			depth--
			if depth <= 0 {
				return
			}
			continue
		case c == '<':
			// Opening tag: scan to '>' noting self-closing.
			depth++
			selfClosing := false
			for !s.eof() && s.peek() != '>' {
				if s.peek() == '\'' || s.peek() == '"' {
					s.readString()
					continue
				}
				selfClosing = s.peek() == '/'
				s.advance()
			}
			if !s.eof() {
				s.advance()
			}
			if selfClosing {
				depth--
				if depth <= 0 {
					return
				}
			}
			continue
		}
		s.advance()
	}
}
