// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dotandev/pwasmgo/internal/interp"
	"github.com/dotandev/pwasmgo/internal/jit"
	"github.com/dotandev/pwasmgo/internal/logger"
	"github.com/dotandev/pwasmgo/internal/runtime"
	"github.com/dotandev/pwasmgo/internal/wasm"
	"github.com/dotandev/pwasmgo/internal/wasmerr"
	"github.com/spf13/cobra"
)

var (
	runFunc    string
	runArgs    string
	runBackend string
)

var runCmd = &cobra.Command{
	Use:   "run <wasm-file>",
	Short: "Call an exported function in a WASM module",
	Long: `Loads, validates, and instantiates a WASM module, then calls one of its
exported functions with the given arguments, printing its results.

Arguments are given as a comma-separated type:value list, e.g.
--args "i32:19,i32:23". Supported types: i32, i64, f32, f64.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mod, err := loadModule(args[0])
		if err != nil {
			return err
		}
		vals, err := parseArgs(runArgs)
		if err != nil {
			return err
		}

		backend, err := selectBackend(runBackend)
		if err != nil {
			return err
		}

		env := runtime.NewEnvironment(backend, &wasmerr.MemCtx{
			OnError: func(text string) { fmt.Println(trapColor(text)) },
		}, logger.Logger, appConfig.Limits)

		ctx := context.Background()
		h, err := env.AddModule(ctx, "main", mod)
		if err != nil {
			return err
		}

		res, err := env.Call(ctx, h, runFunc, vals)
		if err != nil {
			return err
		}
		if len(res) == 0 {
			fmt.Println(okColor("(no results)"))
			return nil
		}
		for _, v := range res {
			fmt.Println(formatValue(v))
		}
		return nil
	},
}

func selectBackend(name string) (runtime.Backend, error) {
	switch name {
	case "", "interp":
		return interp.New(logger.Logger), nil
	case "jit":
		return jit.New(logger.Logger, nil, interp.New(logger.Logger)), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want interp or jit)", name)
	}
}

func parseArgs(spec string) ([]runtime.Value, error) {
	if spec == "" {
		return nil, nil
	}
	parts := strings.Split(spec, ",")
	vals := make([]runtime.Value, 0, len(parts))
	for _, p := range parts {
		typ, lit, ok := strings.Cut(p, ":")
		if !ok {
			return nil, fmt.Errorf("bad argument %q, want type:value", p)
		}
		switch typ {
		case "i32":
			n, err := strconv.ParseInt(lit, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("bad i32 argument %q: %w", lit, err)
			}
			vals = append(vals, runtime.I32Val(int32(n)))
		case "i64":
			n, err := strconv.ParseInt(lit, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad i64 argument %q: %w", lit, err)
			}
			vals = append(vals, runtime.I64Val(n))
		case "f32":
			n, err := strconv.ParseFloat(lit, 32)
			if err != nil {
				return nil, fmt.Errorf("bad f32 argument %q: %w", lit, err)
			}
			vals = append(vals, runtime.F32Val(float32(n)))
		case "f64":
			n, err := strconv.ParseFloat(lit, 64)
			if err != nil {
				return nil, fmt.Errorf("bad f64 argument %q: %w", lit, err)
			}
			vals = append(vals, runtime.F64Val(n))
		default:
			return nil, fmt.Errorf("unknown argument type %q", typ)
		}
	}
	return vals, nil
}

func formatValue(v runtime.Value) string {
	switch v.Type {
	case wasm.I32:
		return fmt.Sprintf("i32:%d", v.I32)
	case wasm.I64:
		return fmt.Sprintf("i64:%d", v.I64)
	case wasm.F32:
		return fmt.Sprintf("f32:%g", v.F32)
	case wasm.F64:
		return fmt.Sprintf("f64:%g", v.F64)
	default:
		return "?"
	}
}

func init() {
	runCmd.Flags().StringVar(&runFunc, "func", "", "exported function name to call (required)")
	runCmd.Flags().StringVar(&runArgs, "args", "", "comma-separated type:value argument list")
	runCmd.Flags().StringVar(&runBackend, "backend", "interp", "execution backend: interp or jit")
	_ = runCmd.MarkFlagRequired("func")
	rootCmd.AddCommand(runCmd)
}
