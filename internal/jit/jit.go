// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package jit is the pluggable native-code execution backend (spec.md
// C10). It implements the same runtime.Backend contract as
// internal/interp, but compiles a function's body to a CodeGenerator's
// native representation the first time it is called and dispatches
// through that compiled form on every call after.
//
// This package ships the dispatch shell only: compilation itself is
// delegated to a CodeGenerator, and the only CodeGenerator registered
// here (unimplementedGenerator) always declines, so Jit transparently
// falls back to an interpreter on every function. A real backend
// (x86-64, arm64, or a Cranelift/LLVM binding) plugs in by implementing
// CodeGenerator and passing it to New; nothing else in this package
// changes.
//
// Grounded on the teacher's internal/plugin package: a registry keyed
// by a stable identity, guarded by a single RWMutex, with a
// find-or-create path on the hot lookup (internal/plugin/registry.go's
// Registry.cache) generalized from decoder plugins keyed by name to
// compiled functions keyed by (module handle, function index).
package jit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dotandev/pwasmgo/internal/logger"
	"github.com/dotandev/pwasmgo/internal/runtime"
	"github.com/dotandev/pwasmgo/internal/wasm"
	"github.com/dotandev/pwasmgo/internal/wasmerr"
)

// CompiledFunc is a CodeGenerator's native translation of one WASM
// function body, callable directly once produced.
type CompiledFunc interface {
	// Invoke runs the compiled function against args. Environment.Call
	// checks their count against the function's parameters; their types
	// are not checked.
	Invoke(ctx context.Context, env *runtime.Environment, args []runtime.Value) ([]runtime.Value, error)
}

// CodeGenerator is the pluggable code-generation contract. Compile is
// called at most once per (module handle, function index) pair; its
// result is cached and reused for every subsequent call.
type CodeGenerator interface {
	// Name identifies the code generator for logging.
	Name() string

	// Compile attempts to translate fn's body into a CompiledFunc. A
	// generator that cannot handle fn (an unsupported opcode, an
	// unimplemented calling convention) returns ok=false rather than an
	// error, letting the Jit backend fall back to interpretation for
	// that function without failing the call.
	Compile(mod *wasm.Module, ft wasm.FuncType, body wasm.FunctionBody) (fn CompiledFunc, ok bool, err error)
}

// unimplementedGenerator is the default CodeGenerator: it declines to
// compile anything. It exists so Jit is constructible and exercises its
// full dispatch and caching path without requiring a real native
// backend to exist yet.
type unimplementedGenerator struct{}

func (unimplementedGenerator) Name() string { return "unimplemented" }

func (unimplementedGenerator) Compile(*wasm.Module, wasm.FuncType, wasm.FunctionBody) (CompiledFunc, bool, error) {
	return nil, false, nil
}

type funcKey struct {
	mod runtime.Handle
	idx uint32
}

// Jit is the C10 JIT shell: a runtime.Backend that compiles each
// function on its first call and dispatches through the cached
// compiled form afterward, falling back to an interpreter for
// functions its CodeGenerator declines.
type Jit struct {
	Logger *slog.Logger

	gen      CodeGenerator
	fallback runtime.Backend

	mu    sync.RWMutex
	cache map[funcKey]CompiledFunc
	// declined remembers functions the generator has already refused,
	// so repeated calls skip straight to the fallback instead of
	// re-attempting compilation every time.
	declined map[funcKey]struct{}
}

// New constructs a Jit backend. fallback runs any function the
// generator declines to compile (and native imports, which are never
// compiled); gen may be nil, which is equivalent to passing
// unimplementedGenerator{} and makes Jit behave as a pure pass-through
// to fallback.
func New(log *slog.Logger, gen CodeGenerator, fallback runtime.Backend) *Jit {
	if log == nil {
		log = logger.Logger
	}
	if gen == nil {
		gen = unimplementedGenerator{}
	}
	return &Jit{
		Logger:   log,
		gen:      gen,
		fallback: fallback,
		cache:    make(map[funcKey]CompiledFunc),
		declined: make(map[funcKey]struct{}),
	}
}

// Name implements runtime.Backend.
func (j *Jit) Name() string { return "jit/" + j.gen.Name() }

// Call implements runtime.Backend: native imports and functions the
// generator has declined (this call or a previous one) run on the
// fallback backend; everything else is compiled on first call and
// served from cache thereafter.
func (j *Jit) Call(ctx context.Context, env *runtime.Environment, ref runtime.FuncRef, args []runtime.Value) ([]runtime.Value, error) {
	if ref.Native != nil {
		return j.fallback.Call(ctx, env, ref, args)
	}

	key := funcKey{mod: ref.ModHandle, idx: ref.FuncIndex}

	j.mu.RLock()
	compiled, ok := j.cache[key]
	_, skip := j.declined[key]
	j.mu.RUnlock()
	if ok {
		return compiled.Invoke(ctx, env, args)
	}
	if skip {
		return j.fallback.Call(ctx, env, ref, args)
	}

	compiled, err := j.compile(env, key, ref)
	if err != nil {
		return nil, err
	}
	if compiled == nil {
		return j.fallback.Call(ctx, env, ref, args)
	}
	return compiled.Invoke(ctx, env, args)
}

func (j *Jit) compile(env *runtime.Environment, key funcKey, ref runtime.FuncRef) (CompiledFunc, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if compiled, ok := j.cache[key]; ok {
		return compiled, nil
	}
	if _, ok := j.declined[key]; ok {
		return nil, nil
	}

	inst, ok := env.Instance(ref.ModHandle)
	if !ok {
		return nil, wasmerr.NewLinkError(wasmerr.ImportNotFound, fmt.Sprintf("unknown module handle %d", ref.ModHandle))
	}
	ft, ok := inst.Module.TypeOfFunc(ref.FuncIndex)
	if !ok {
		return nil, wasmerr.NewValidateError(wasmerr.IndexOutOfRange, int(ref.FuncIndex), "function index out of range")
	}
	codeIdx := ref.FuncIndex - inst.Module.ImportCounts.Func
	if int(codeIdx) >= len(inst.Module.Code) {
		j.declined[key] = struct{}{}
		return nil, nil
	}
	body := inst.Module.Code[codeIdx]

	compiled, compiledOK, err := j.gen.Compile(inst.Module, ft, body)
	if err != nil {
		return nil, err
	}
	if !compiledOK {
		j.declined[key] = struct{}{}
		j.Logger.Debug("jit: declined function, falling back", "generator", j.gen.Name(), "func_index", ref.FuncIndex)
		return nil, nil
	}
	j.cache[key] = compiled
	j.Logger.Info("jit: compiled function", "generator", j.gen.Name(), "func_index", ref.FuncIndex)
	return compiled, nil
}

// Reset drops every cached compiled function and declined-function
// record, forcing recompilation on next call. Useful for tests and for
// callers that want to swap CodeGenerator at runtime.
func (j *Jit) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cache = make(map[funcKey]CompiledFunc)
	j.declined = make(map[funcKey]struct{})
}
