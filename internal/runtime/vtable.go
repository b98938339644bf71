// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"

	"github.com/dotandev/pwasmgo/internal/wasm"
)

// Backend is the callback vtable spec.md C7 asks the environment to
// dispatch through: the one capability that genuinely differs between
// an interpreter and a JIT is how a function body turns into executed
// code, so that is the only method in the interface. Everything else
// (module registration, memory/table/global access, import lookup) is
// backend-agnostic and lives directly on Environment.
//
// Both internal/interp and internal/jit implement Backend and are
// otherwise interchangeable from the environment's point of view.
type Backend interface {
	// Call invokes the function identified by ref with args, returning
	// its results or a *wasmerr.Trap / error. Environment.Call checks
	// the argument count against the signature before dispatching here.
	Call(ctx context.Context, env *Environment, ref FuncRef, args []Value) ([]Value, error)

	// Name identifies the backend for logging and tracing.
	Name() string
}

// NativeFunc is a host function registered with AddNative: a plain Go
// closure with an explicit WASM-visible signature, invoked directly by
// the backend without going through Call's module dispatch.
type NativeFunc struct {
	ModuleName string
	Name       string
	Params     []wasm.ValueType
	Results    []wasm.ValueType
	Fn         func(ctx context.Context, args []Value) ([]Value, error)
	// MinRuntimeVersion, if set, is the lowest runtime ABI version (per
	// internal/abiversion) this native function's Fn is compatible with.
	MinRuntimeVersion string
}
