// Copyright (C) 2025 Routescope Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads Routescope configuration from file, environment,
// and command-line flags. Precedence, highest to lowest: flags, env vars
// with the ROUTESCOPE_ prefix, config file, defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileName is the primary config file name.
const ConfigFileName = "routescope.yaml"

// ConfigFileNameAlt is the alternate config file name.
const ConfigFileNameAlt = "routescope.yml"

// envPrefix is the environment variable prefix. Double underscore nests:
// ROUTESCOPE_STORE__BACKEND maps to store.backend, ROUTESCOPE_REPO_ROOT
// to repo_root.
const envPrefix = "ROUTESCOPE_"

// StoreConfig selects and configures the snapshot backend.
type StoreConfig struct {
	// Backend is badger, filesystem, or s3.
	Backend string `koanf:"backend" validate:"oneof=badger filesystem s3"`

	// Path is the data directory for the badger and filesystem backends.
	Path string `koanf:"path"`

	// Namespace groups snapshots of related repositories under one key
	// prefix.
	Namespace string `koanf:"namespace" validate:"required"`

	// S3 configures the s3 backend. Ignored otherwise.
	S3 S3Config `koanf:"s3"`
}

// S3Config holds credentials for the S3-compatible backend. Password
// fields accept ${VAR} expansion so secrets stay out of config files.
type S3Config struct {
	Endpoint  string `koanf:"endpoint"`
	Region    string `koanf:"region"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// BuildConfig configures graph construction.
type BuildConfig struct {
	// BatchSize is how many files each parse batch holds.
	BatchSize int `koanf:"batch_size" validate:"gt=0"`

	// Excludes are glob patterns removed from the scan, on top of the
	// built-in skip list.
	Excludes []string `koanf:"excludes"`
}

// ImpactConfig configures impact queries.
type ImpactConfig struct {
	// Policy is prefer_precise or union.
	Policy string `koanf:"policy" validate:"oneof=prefer_precise union"`

	// IterationCap bounds reverse traversal per query.
	IterationCap int `koanf:"iteration_cap" validate:"gt=0"`
}

// WatchConfig configures the filesystem watcher.
type WatchConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Debounce time.Duration `koanf:"debounce"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `koanf:"level" validate:"oneof=debug info warn error"`

	// Format is json or text.
	Format string `koanf:"format" validate:"oneof=json text"`
}

// Config is the root configuration.
type Config struct {
	// RepoRoot is the front-end repository to analyze.
	RepoRoot string `koanf:"repo_root" validate:"required"`

	// RepoName identifies the repository in snapshot keys. Defaults to
	// the repo root's basename.
	RepoName string `koanf:"repo_name"`

	Store  StoreConfig  `koanf:"store"`
	Server ServerConfig `koanf:"server"`
	Build  BuildConfig  `koanf:"build"`
	Impact ImpactConfig `koanf:"impact"`
	Watch  WatchConfig  `koanf:"watch"`
	Log    LogConfig    `koanf:"log"`
}

// defaults are the lowest-precedence layer.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"repo_root":               ".",
		"store.backend":           "badger",
		"store.path":              ".routescope",
		"store.namespace":         "default",
		"server.addr":             ":8085",
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.shutdown_timeout": "10s",
		"build.batch_size":        50,
		"impact.policy":           "prefer_precise",
		"impact.iteration_cap":    10000,
		"watch.enabled":           false,
		"watch.debounce":          "250ms",
		"log.level":               "info",
		"log.format":              "json",
	}
}

// Load builds a Config from all layers and validates it.
//
// Inputs:
//
//	cfgFile - Explicit config file path. Empty means search the working
//	          directory for routescope.yaml or routescope.yml.
//	flags - Parsed CLI flags, may be nil. Only changed flags override.
//
// Outputs:
//
//	*Config - The merged, validated configuration.
//	error - Non-nil on unreadable file, bad YAML, or failed validation.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	path := findConfigFile(cfgFile)
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else if cfgFile != "" {
		return nil, fmt.Errorf("config file not found: %s", cfgFile)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if abs, err := filepath.Abs(cfg.RepoRoot); err == nil {
		cfg.RepoRoot = abs
	}
	if cfg.RepoName == "" {
		cfg.RepoName = filepath.Base(cfg.RepoRoot)
	}
	cfg.Store.S3.AccessKey = expandEnvVars(cfg.Store.S3.AccessKey)
	cfg.Store.S3.SecretKey = expandEnvVars(cfg.Store.S3.SecretKey)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// flagKey maps a kebab-case flag name onto its config key. Top-level
// keys keep their underscores; everything else nests on the first dash.
func flagKey(name string) string {
	switch name {
	case "repo-root":
		return "repo_root"
	case "repo-name":
		return "repo_name"
	case "store-backend":
		return "store.backend"
	case "store-path":
		return "store.path"
	case "store-namespace":
		return "store.namespace"
	case "server-addr":
		return "server.addr"
	case "batch-size":
		return "build.batch_size"
	case "policy":
		return "impact.policy"
	case "watch":
		return "watch.enabled"
	case "log-level":
		return "log.level"
	case "log-format":
		return "log.format"
	default:
		return strings.ReplaceAll(name, "-", ".")
	}
}

// findConfigFile resolves the config file path. An explicit path wins;
// otherwise the working directory is probed for the default names.
func findConfigFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// expandEnvVars replaces ${VAR} with the environment value, leaving the
// pattern intact when the variable is unset.
func expandEnvVars(s string) string {
	return os.Expand(s, func(name string) string {
		if v := os.Getenv(name); v != "" {
			return v
		}
		return "${" + name + "}"
	})
}
