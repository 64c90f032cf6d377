// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for the graph package.
var (
	// ErrEmptyRoot indicates Build was called with an empty root path.
	ErrEmptyRoot = errors.New("empty root path")

	// ErrNotBuilt indicates a query ran before any build or load.
	ErrNotBuilt = errors.New("graph has not been built")
)

// FileError records a per-file failure during build or refresh. File
// failures never abort processing of the rest of the repository; callers
// collect them and degrade coverage for the named files only.
type FileError struct {
	Path string
	Err  error
}

// Error implements error.
func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e FileError) Unwrap() error {
	return e.Err
}
