// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var importsCmd = &cobra.Command{
	Use:   "imports <wasm-file>",
	Short: "List a WASM module's imports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mod, err := loadModule(args[0])
		if err != nil {
			return err
		}
		for _, imp := range mod.Imports {
			fmt.Printf("%s.%s\t%s\n", imp.ModuleName, imp.Name, imp.Kind)
		}
		return nil
	},
}

var exportsCmd = &cobra.Command{
	Use:   "exports <wasm-file>",
	Short: "List a WASM module's exports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mod, err := loadModule(args[0])
		if err != nil {
			return err
		}
		for _, exp := range mod.Exports {
			fmt.Printf("%s\t%s\tindex %d\n", exp.Name, exp.Kind, exp.Index)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importsCmd, exportsCmd)
}
