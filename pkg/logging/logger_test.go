// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger, cleanup := New(Config{
		Level:   "info",
		LogDir:  dir,
		Service: "test",
		Quiet:   true,
	})

	logger.Info("graph built", slog.Int("files", 42))
	logger.Debug("filtered out")
	cleanup()

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("ReadDir() = %v, %v, want one log file", entries, err)
	}
	if !strings.HasPrefix(entries[0].Name(), "test_") {
		t.Errorf("log file name = %q, want test_ prefix", entries[0].Name())
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("log file has %d lines, want 1 (debug filtered)", len(lines))
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("file log is not JSON: %v", err)
	}
	if record["msg"] != "graph built" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["service"] != "test" {
		t.Errorf("service = %v, want test attribute on every record", record["service"])
	}
}

func TestDiscard(t *testing.T) {
	// Must not panic and must drop everything silently.
	Discard().Error("nothing to see")
}
