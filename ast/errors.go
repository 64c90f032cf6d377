// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ast

import "errors"

// Sentinel errors for the ast package.
var (
	// ErrFileTooLarge indicates the file exceeds the configured size limit.
	// Oversized files are skipped, not parsed.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrBinaryContent indicates the content contains a null byte and is
	// treated as binary, not source code.
	ErrBinaryContent = errors.New("content appears to be binary")

	// ErrInvalidContent indicates the content is not valid UTF-8.
	ErrInvalidContent = errors.New("content is not valid UTF-8")

	// ErrParseFailed indicates tree-sitter could not produce a tree.
	ErrParseFailed = errors.New("parse failed")

	// ErrUnsupportedFile indicates the file extension has no parser.
	ErrUnsupportedFile = errors.New("unsupported file type")
)
