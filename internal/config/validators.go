// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package config

import "fmt"

// Validator validates a specific aspect of the configuration, adapted
// from the teacher's pluggable Validator/RunValidators shape.
type Validator interface {
	Validate(cfg *Config) error
}

// LogLevelValidator checks that the log level is a known value.
type LogLevelValidator struct{}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

func (LogLevelValidator) Validate(cfg *Config) error {
	if cfg.LogLevel == "" {
		return nil
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("config: log_level must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	return nil
}

// LimitsValidator checks that the resource limits are internally
// consistent with the MVP's own hard ceilings (spec.md §5).
type LimitsValidator struct{}

func (LimitsValidator) Validate(cfg *Config) error {
	if cfg.Limits.MaxMemoryPages == 0 {
		return fmt.Errorf("config: max_memory_pages must be positive")
	}
	if cfg.Limits.MaxMemoryPages > 65536 {
		return fmt.Errorf("config: max_memory_pages cannot exceed 65536")
	}
	if cfg.Limits.MaxFrameDepth == 0 {
		return fmt.Errorf("config: max_frame_depth must be positive")
	}
	return nil
}

// DefaultValidators returns the standard validator set.
func DefaultValidators() []Validator {
	return []Validator{LogLevelValidator{}, LimitsValidator{}}
}

// RunValidators runs each validator against cfg, returning the first error.
func RunValidators(cfg *Config, validators []Validator) error {
	for _, v := range validators {
		if err := v.Validate(cfg); err != nil {
			return err
		}
	}
	return nil
}
