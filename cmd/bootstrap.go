// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"log/slog"
	"os"

	"github.com/dotandev/pwasmgo/internal/config"
	"github.com/dotandev/pwasmgo/internal/logger"
	"github.com/dotandev/pwasmgo/internal/telemetry"
	"github.com/spf13/cobra"
)

// appConfig is loaded once by bootstrap and consulted by every
// subcommand that needs a resource limit, a log level, or a tracing
// endpoint.
var appConfig config.Config

var telemetryShutdown = func() {}

// bootstrap runs before every subcommand: it loads the runtime's own
// configuration, points internal/logger at the configured level, and
// brings tracing up (or leaves it a no-op) per TelemetryEnabled.
func bootstrap(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	appConfig = cfg

	logger.Init(parseLevel(cfg.LogLevel), os.Stderr)

	stop, err := telemetry.Init(cmd.Context(), telemetry.Config{
		Enabled:     cfg.TelemetryEnabled,
		ExporterURL: cfg.TelemetryExporterURL,
		ServiceName: "pwasmgo",
	})
	if err != nil {
		return err
	}
	telemetryShutdown = stop
	return nil
}

func shutdown(*cobra.Command, []string) {
	telemetryShutdown()
}

func parseLevel(level string) slog.Level {
	switch level {
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
