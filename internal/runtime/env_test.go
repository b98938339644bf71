// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"testing"

	"github.com/dotandev/pwasmgo/internal/arena"
	"github.com/dotandev/pwasmgo/internal/config"
	"github.com/dotandev/pwasmgo/internal/instr"
	"github.com/dotandev/pwasmgo/internal/opcode"
	"github.com/dotandev/pwasmgo/internal/wasm"
	"github.com/dotandev/pwasmgo/internal/wasmerr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// stubBackend returns a fixed result for every call, letting these
// tests exercise the environment's registration/lookup/dispatch surface
// without a real interpreter.
type stubBackend struct {
	result []Value
	err    error
	calls  int
}

func (b *stubBackend) Call(ctx context.Context, env *Environment, ref FuncRef, args []Value) ([]Value, error) {
	b.calls++
	return b.result, b.err
}
func (b *stubBackend) Name() string { return "stub" }

func noMemoryModule() *wasm.Module {
	return &wasm.Module{
		Types:     []wasm.FuncType{{Results: []wasm.ValueType{wasm.I32}}},
		Functions: []uint32{0},
		Code:      []wasm.FunctionBody{{TypeIndex: 0}},
		Exports:   []wasm.Export{{Name: "run", Kind: wasm.KindFunc, Index: 0}},
	}
}

func TestEnvironment_AddModuleThenCallDispatchesToBackend(t *testing.T) {
	backend := &stubBackend{result: []Value{I32Val(7)}}
	env := NewEnvironment(backend, &wasmerr.MemCtx{}, nil, config.DefaultConfig().Limits)

	h, err := env.AddModule(context.Background(), "m", noMemoryModule())
	require.NoError(t, err)
	require.NotZero(t, h)

	res, err := env.Call(context.Background(), h, "run", nil)
	require.NoError(t, err)
	require.Equal(t, []Value{I32Val(7)}, res)
	require.Equal(t, 1, backend.calls)
}

func TestEnvironment_CallUnknownExportFails(t *testing.T) {
	backend := &stubBackend{}
	env := NewEnvironment(backend, &wasmerr.MemCtx{}, nil, config.DefaultConfig().Limits)
	h, err := env.AddModule(context.Background(), "m", noMemoryModule())
	require.NoError(t, err)

	_, err = env.Call(context.Background(), h, "missing", nil)
	require.Error(t, err)
}

func TestEnvironment_StartFunctionTrapRollsBackRegistration(t *testing.T) {
	backend := &stubBackend{err: wasmerr.NewTrap(wasmerr.TrapUnreachable, "boom")}
	env := NewEnvironment(backend, &wasmerr.MemCtx{}, nil, config.DefaultConfig().Limits)

	mod := noMemoryModule()
	mod.Types = []wasm.FuncType{{}} // start functions take and return nothing
	mod.HasStart = true
	mod.StartIndex = 0

	_, err := env.AddModule(context.Background(), "m", mod)
	require.Error(t, err)
	require.Equal(t, 1, backend.calls)
	require.Zero(t, env.FindModule("m"))
}

func TestEnvironment_AddNativeRejectsDuplicateName(t *testing.T) {
	env := NewEnvironment(&stubBackend{}, &wasmerr.MemCtx{}, nil, config.DefaultConfig().Limits)
	fn := &NativeFunc{ModuleName: "host", Name: "double",
		Fn: func(ctx context.Context, args []Value) ([]Value, error) { return args, nil }}

	_, err := env.AddNative("host", []*NativeFunc{fn})
	require.NoError(t, err)

	_, err = env.AddNative("host", []*NativeFunc{fn})
	require.Error(t, err)
}

func TestEnvironment_AddNativeRejectsIncompatibleABI(t *testing.T) {
	env := NewEnvironment(&stubBackend{}, &wasmerr.MemCtx{}, nil, config.DefaultConfig().Limits)
	fn := &NativeFunc{ModuleName: "host", Name: "double", MinRuntimeVersion: "99.0.0",
		Fn: func(ctx context.Context, args []Value) ([]Value, error) { return args, nil }}

	_, err := env.AddNative("host", []*NativeFunc{fn})
	require.Error(t, err)
}

func TestEnvironment_MemGrowFailsPastMax(t *testing.T) {
	mod := noMemoryModule()
	mod.Memories = []wasm.MemType{{Limits: wasm.Limits{Min: 1, HasMax: true, Max: 1}}}
	env := NewEnvironment(&stubBackend{}, &wasmerr.MemCtx{}, nil, config.DefaultConfig().Limits)
	h, err := env.AddModule(context.Background(), "m", mod)
	require.NoError(t, err)

	prev, err := env.MemGrow(h, 1)
	require.NoError(t, err)
	require.Equal(t, int32(-1), prev)
}

func TestEnvironment_GetSetGlobalRoundTrips(t *testing.T) {
	mod := noMemoryModule()
	initExpr := []instr.Instruction{
		{Op: opcode.I32Const, I32: 0},
		{Op: opcode.End},
	}
	mod.Insts = append(mod.Insts, initExpr...)
	mod.Globals = []wasm.GlobalDef{{
		Type: wasm.GlobalType{ValType: wasm.I32, Mutable: true},
		Init: arena.Slice{Offset: uint32(len(mod.Insts) - len(initExpr)), Length: uint32(len(initExpr))},
	}}
	env := NewEnvironment(&stubBackend{}, &wasmerr.MemCtx{}, nil, config.DefaultConfig().Limits)
	h, err := env.AddModule(context.Background(), "m", mod)
	require.NoError(t, err)

	require.NoError(t, env.SetGlobal(h, 0, I32Val(42)))
	v, err := env.GetGlobal(h, 0)
	require.NoError(t, err)
	require.Equal(t, int32(42), v.I32)
}

func TestEnvironment_IDIsStableAndNonZero(t *testing.T) {
	env := NewEnvironment(&stubBackend{}, &wasmerr.MemCtx{}, nil, config.DefaultConfig().Limits)
	require.NotEqual(t, uuid.Nil, env.ID())
	require.Equal(t, env.ID(), env.ID())
}
