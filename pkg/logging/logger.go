// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging builds the structured loggers Routescope components
// share. Output goes to stderr by default, following CLI conventions,
// with optional file logging for long-running server deployments.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Config configures logger construction. The zero value writes Info+
// messages to stderr as text.
type Config struct {
	// Level is the minimum level: debug, info, warn, or error.
	Level string

	// Format is json or text. File logs are always JSON.
	Format string

	// LogDir enables file logging alongside stderr. The file is named
	// {service}_{date}.log and the directory is created if missing.
	// Supports ~ expansion.
	LogDir string

	// Service is attached to every record as the service attribute.
	Service string

	// Quiet disables stderr output. Useful when the process runs as a
	// daemon and only file logs are wanted.
	Quiet bool
}

// ParseLevel maps a config level string onto slog.Level. Unknown
// strings fall back to Info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger from cfg.
//
// Outputs:
//
//	*slog.Logger - Ready to use. Never nil.
//	func() - Cleanup that syncs and closes the log file, if any.
func New(cfg Config) (*slog.Logger, func()) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handlers []slog.Handler
	if !cfg.Quiet {
		if cfg.Format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	cleanup := func() {}
	if cfg.LogDir != "" {
		dir := expandPath(cfg.LogDir)
		if err := os.MkdirAll(dir, 0o750); err == nil {
			service := cfg.Service
			if service == "" {
				service = "routescope"
			}
			name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
			file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
			if err == nil {
				handlers = append(handlers, slog.NewJSONHandler(file, opts))
				cleanup = func() {
					file.Sync()
					file.Close()
				}
			}
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(os.Stderr, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}
	return slog.New(handler), cleanup
}

// Default returns a stderr text logger at Info level.
func Default() *slog.Logger {
	logger, _ := New(Config{Service: "routescope"})
	return logger
}

// Discard returns a logger that drops everything. For tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
