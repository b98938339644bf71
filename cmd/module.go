// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/dotandev/pwasmgo/internal/wasm"
	"github.com/dotandev/pwasmgo/internal/wasmerr"
)

// loadModule reads, parses, and validates the WASM binary at path,
// reporting the first classified error via the shared MemCtx shim.
func loadModule(path string) (*wasm.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	mc := &wasmerr.MemCtx{OnError: func(text string) {
		fmt.Fprintln(os.Stderr, errorColor(text))
	}}
	mod, _, err := wasm.ParseModule(data, mc)
	if err != nil {
		return nil, err
	}
	if err := wasm.Validate(mod); err != nil {
		mc.Report(err)
		return nil, err
	}
	return mod, nil
}
