// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_PassesItsOwnValidators(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, RunValidators(&cfg, DefaultValidators()))
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("PWASM_LOG_LEVEL", "debug")
	t.Setenv("PWASM_MAX_FRAME_DEPTH", "256")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, uint32(256), cfg.Limits.MaxFrameDepth)
}

func TestLoad_RejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("PWASM_LOG_LEVEL", "verbose")
	_, err := Load()
	require.Error(t, err)
}

func TestLimitsValidator_RejectsZeroMaxMemoryPages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxMemoryPages = 0
	err := LimitsValidator{}.Validate(&cfg)
	require.Error(t, err)
}

func TestLimitsValidator_RejectsMemoryPagesAboveCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.MaxMemoryPages = 70000
	err := LimitsValidator{}.Validate(&cfg)
	require.Error(t, err)
}

func TestLogLevelValidator_AcceptsEmptyLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = ""
	require.NoError(t, LogLevelValidator{}.Validate(&cfg))
}
