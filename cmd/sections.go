// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/dotandev/pwasmgo/internal/wasm"
	"github.com/spf13/cobra"
)

var sectionsCmd = &cobra.Command{
	Use:   "sections <wasm-file>",
	Short: "Print the section layout of a WASM module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mod, err := loadModule(args[0])
		if err != nil {
			return err
		}
		printSections(mod)
		return nil
	},
}

func printSections(mod *wasm.Module) {
	fmt.Println(headColor("section"), "\tcount")
	rows := []struct {
		name  string
		count int
	}{
		{"type", len(mod.Types)},
		{"import", len(mod.Imports)},
		{"function", len(mod.Functions)},
		{"table", len(mod.Tables)},
		{"memory", len(mod.Memories)},
		{"global", len(mod.Globals)},
		{"export", len(mod.Exports)},
		{"element", len(mod.Elements)},
		{"code", len(mod.Code)},
		{"data", len(mod.DataSegs)},
		{"custom", len(mod.Customs)},
	}
	for _, r := range rows {
		if r.count == 0 {
			continue
		}
		fmt.Printf("%-10s\t%d\n", r.name, r.count)
	}
	if mod.HasStart {
		fmt.Println("start function index:", mod.StartIndex)
	}
	var dataBytes uint64
	for _, ds := range mod.DataSegs {
		dataBytes += uint64(ds.Data.Len())
	}
	fmt.Println(okColor(fmt.Sprintf("%d decoded instructions, %s of data-segment bytes",
		len(mod.Insts), humanize.Bytes(dataBytes))))
}

func init() {
	rootCmd.AddCommand(sectionsCmd)
}
