// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists graph snapshots. Three backends implement the same
// small key-value surface: an embedded BadgerDB (default), a plain
// filesystem fallback, and a MinIO bucket for shared remote state.
package store

import (
	"context"
	"errors"
)

// Sentinel errors for the store package.
var (
	// ErrKeyNotFound indicates the key has no stored value.
	ErrKeyNotFound = errors.New("key not found")

	// ErrSnapshotInvalid indicates a persisted document could not be
	// decoded. Callers respond with a full rebuild, never a crash.
	ErrSnapshotInvalid = errors.New("snapshot invalid")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store is closed")
)

// Store is the persistence surface for serialized graph documents.
//
// Thread Safety: implementations are safe for concurrent use.
type Store interface {
	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns every stored key with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
