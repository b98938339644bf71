// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pwasmrun",
	Short: "A small illustrative WebAssembly 1.0 module runner",
	Long: `pwasmrun loads a WebAssembly 1.0 (MVP) binary module, validates it, and
either prints its section/import/export layout or calls one of its
exported functions.

It is a thin illustration of the embedding API in
github.com/dotandev/pwasmgo/internal/{wasm,runtime,interp} — not a
general-purpose WASM front-end.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: bootstrap,
	PersistentPostRun: shutdown,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
