// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package config loads the runtime's own tunables (log level, optional
// tracing, and the host-tunable resource limits of spec.md §5) from
// environment variables and an optional TOML file, adapted from the
// teacher's internal/config load-from-env-then-file idiom.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Limits holds the host-tunable resource limits. The interpreter
// enforces MaxFrameDepth, trapping with TrapStackOverflow when a call
// chain exceeds it. MaxMemoryPages and MaxTableEntries are loaded and
// validated here but are not consulted when memories and tables are
// instantiated or grown; those follow the module's own declared limits.
type Limits struct {
	MaxMemoryPages  uint32
	MaxTableEntries uint32
	MaxFrameDepth   uint32
}

// Config is the runtime's ambient configuration.
type Config struct {
	LogLevel             string
	TelemetryEnabled     bool
	TelemetryExporterURL string
	Limits               Limits
	// ABIMinVersion is loaded from PWASM_ABI_MIN_VERSION or the TOML
	// file. Native module registration does not consult it:
	// internal/abiversion.Check compares each native function's
	// MinRuntimeVersion against abiversion.Current.
	ABIMinVersion string
}

var defaultConfig = Config{
	LogLevel:             "info",
	TelemetryEnabled:     false,
	TelemetryExporterURL: "localhost:4318",
	Limits: Limits{
		MaxMemoryPages:  65536,
		MaxTableEntries: 1 << 20,
		MaxFrameDepth:   1024,
	},
	ABIMinVersion: "1.0.0",
}

// DefaultConfig returns a copy of the built-in defaults.
func DefaultConfig() Config { return defaultConfig }

// Load builds a Config from environment variables, falling back to a
// TOML file (./pwasmgo.toml, $HOME/.pwasmgo.toml, /etc/pwasmgo/config.toml,
// in that order) for any field left unset by the environment, and
// finally to the built-in defaults.
func Load() (Config, error) {
	cfg := defaultConfig

	if err := cfg.loadFromFile(); err != nil {
		return Config{}, err
	}

	cfg.LogLevel = getEnv("PWASM_LOG_LEVEL", cfg.LogLevel)
	if v := os.Getenv("PWASM_TELEMETRY_ENABLED"); v != "" {
		cfg.TelemetryEnabled = parseBool(v)
	}
	cfg.TelemetryExporterURL = getEnv("PWASM_TELEMETRY_EXPORTER_URL", cfg.TelemetryExporterURL)
	cfg.ABIMinVersion = getEnv("PWASM_ABI_MIN_VERSION", cfg.ABIMinVersion)
	if v := os.Getenv("PWASM_MAX_MEMORY_PAGES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Limits.MaxMemoryPages = uint32(n)
		}
	}
	if v := os.Getenv("PWASM_MAX_TABLE_ENTRIES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Limits.MaxTableEntries = uint32(n)
		}
	}
	if v := os.Getenv("PWASM_MAX_FRAME_DEPTH"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Limits.MaxFrameDepth = uint32(n)
		}
	}

	if err := RunValidators(&cfg, DefaultValidators()); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile() error {
	paths := []string{
		"pwasmgo.toml",
		filepath.Join(os.ExpandEnv("$HOME"), ".pwasmgo.toml"),
		"/etc/pwasmgo/config.toml",
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		c.parseTOML(string(data))
		return nil
	}
	return nil
}

func (c *Config) parseTOML(content string) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), "\"'")
		switch key {
		case "log_level":
			c.LogLevel = value
		case "telemetry_enabled":
			c.TelemetryEnabled = parseBool(value)
		case "telemetry_exporter_url":
			c.TelemetryExporterURL = value
		case "abi_min_version":
			c.ABIMinVersion = value
		case "max_memory_pages":
			if n, err := strconv.ParseUint(value, 10, 32); err == nil {
				c.Limits.MaxMemoryPages = uint32(n)
			}
		case "max_table_entries":
			if n, err := strconv.ParseUint(value, 10, 32); err == nil {
				c.Limits.MaxTableEntries = uint32(n)
			}
		case "max_frame_depth":
			if n, err := strconv.ParseUint(value, 10, 32); err == nil {
				c.Limits.MaxFrameDepth = uint32(n)
			}
		}
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
