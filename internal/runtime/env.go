// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dotandev/pwasmgo/internal/abiversion"
	"github.com/dotandev/pwasmgo/internal/config"
	"github.com/dotandev/pwasmgo/internal/logger"
	"github.com/dotandev/pwasmgo/internal/telemetry"
	"github.com/dotandev/pwasmgo/internal/wasm"
	"github.com/dotandev/pwasmgo/internal/wasmerr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Handle is an opaque, non-zero identifier for a registered module or
// native module. The zero value means "not found" everywhere in this
// package's API, matching spec.md C7's handle convention.
type Handle uint32

type moduleEntry struct {
	name     string
	instance *Instance
}

type nativeEntry struct {
	name  string
	funcs map[string]*NativeFunc
}

// Environment is the C7 execution environment: the handle table for
// registered modules and native modules, the memory context, and the
// execution backend (interpreter or JIT) functions are dispatched
// through. It is adapted from the teacher's session registry
// (internal/session) generalized from OS process handles to WASM
// module handles.
type Environment struct {
	mu sync.RWMutex

	memCtx  *wasmerr.MemCtx
	backend Backend
	logger  *slog.Logger
	tracer  trace.Tracer
	limits  config.Limits

	nextHandle uint32
	modules    map[Handle]*moduleEntry
	moduleIdx  map[string]Handle
	natives    map[Handle]*nativeEntry
	nativeIdx  map[string]Handle

	// id correlates this environment's log lines across a process that
	// may run several independent environments at once.
	id uuid.UUID

	UserData any
}

// ID returns the environment's correlation id, attached to every log
// line this environment emits.
func (e *Environment) ID() uuid.UUID { return e.id }

// NewEnvironment is the C7 "init" operation: it wires a backend, a
// memory context, a logger, and host-tunable resource limits into a
// fresh, empty environment.
func NewEnvironment(backend Backend, memCtx *wasmerr.MemCtx, log *slog.Logger, limits config.Limits) *Environment {
	if log == nil {
		log = logger.Logger
	}
	return &Environment{
		memCtx:    memCtx,
		backend:   backend,
		logger:    log,
		tracer:    telemetry.GetTracer(),
		limits:    limits,
		modules:   make(map[Handle]*moduleEntry),
		moduleIdx: make(map[string]Handle),
		natives:   make(map[Handle]*nativeEntry),
		nativeIdx: make(map[string]Handle),
		id:        uuid.New(),
	}
}

// Fini is the C7 "fini" operation: it drops every registered module and
// native module. Backends that hold per-environment resources (the JIT's
// compiled-code cache) should be discarded by the caller afterward.
func (e *Environment) Fini() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.modules = make(map[Handle]*moduleEntry)
	e.moduleIdx = make(map[string]Handle)
	e.natives = make(map[Handle]*nativeEntry)
	e.nativeIdx = make(map[string]Handle)
}

func (e *Environment) allocHandle() Handle {
	e.nextHandle++
	return Handle(e.nextHandle)
}

// AddModule is the C8 "add_mod" operation: it validates mod, resolves
// its imports against already-registered modules and natives, allocates
// its memory/table/global instance state, initializes element and data
// segments, and — if present — runs the start function. A trapping
// start function rolls the registration back and the module is not
// visible to later lookups.
func (e *Environment) AddModule(ctx context.Context, name string, mod *wasm.Module) (Handle, error) {
	if err := wasm.Validate(mod); err != nil {
		e.memCtx.Report(err)
		return 0, err
	}

	ctx, span := e.tracer.Start(ctx, "runtime.AddModule")
	defer span.End()

	e.mu.Lock()
	h := e.allocHandle()
	inst, err := e.instantiate(ctx, h, mod)
	if err != nil {
		e.mu.Unlock()
		e.memCtx.Report(err)
		return 0, err
	}
	e.modules[h] = &moduleEntry{name: name, instance: inst}
	if name != "" {
		e.moduleIdx[name] = h
	}
	e.mu.Unlock()

	if mod.HasStart {
		if _, err := e.backend.Call(ctx, e, FuncRef{ModHandle: h, FuncIndex: mod.StartIndex}, nil); err != nil {
			e.mu.Lock()
			delete(e.modules, h)
			delete(e.moduleIdx, name)
			e.mu.Unlock()
			wrapped := wasmerr.NewLinkError(wasmerr.StartFunctionTrapped, err.Error())
			e.memCtx.Report(wrapped)
			return 0, wrapped
		}
	}
	e.logger.Info("module registered", "env", e.id, "name", name, "handle", h)
	return h, nil
}

// AddNative is the C8 "add_native" operation: it registers a set of
// host functions under a module name, making them resolvable by later
// AddModule calls whose imports name that module.
func (e *Environment) AddNative(name string, funcs []*NativeFunc) (Handle, error) {
	if name == "" {
		err := wasmerr.NewLinkError(wasmerr.ImportTypeMismatch, "native module must have a name")
		e.memCtx.Report(err)
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.nativeIdx[name]; exists {
		err := wasmerr.NewLinkError(wasmerr.ImportTypeMismatch, fmt.Sprintf("native module %q already registered", name))
		e.memCtx.Report(err)
		return 0, err
	}
	byName := make(map[string]*NativeFunc, len(funcs))
	for _, f := range funcs {
		if err := abiversion.Check(f.MinRuntimeVersion); err != nil {
			e.memCtx.Report(err)
			return 0, err
		}
		byName[f.Name] = f
	}
	h := e.allocHandle()
	e.natives[h] = &nativeEntry{name: name, funcs: byName}
	e.nativeIdx[name] = h
	return h, nil
}

// FindModule is the C7 "find_mod" operation.
func (e *Environment) FindModule(name string) Handle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.moduleIdx[name]
}

// FindNative looks a native module up by its registration name.
func (e *Environment) FindNative(name string) Handle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nativeIdx[name]
}

// Instance exposes the linked Instance behind h to the execution
// backends (internal/interp, internal/jit), which need direct access to
// its memory/table/globals/funcs to execute a function body.
func (e *Environment) Instance(h Handle) (*Instance, bool) {
	return e.instanceFor(h)
}

func (e *Environment) instanceFor(h Handle) (*Instance, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	me, ok := e.modules[h]
	if !ok {
		return nil, false
	}
	return me.instance, true
}

// FindFunc is the C7 "find_func" operation: it resolves an exported
// function name to a callable FuncRef.
func (e *Environment) FindFunc(h Handle, name string) (FuncRef, bool) {
	inst, ok := e.instanceFor(h)
	if !ok {
		return FuncRef{}, false
	}
	exp, ok := inst.Export(name)
	if !ok || exp.Kind != wasm.KindFunc {
		return FuncRef{}, false
	}
	if int(exp.Index) >= len(inst.Funcs) {
		return FuncRef{}, false
	}
	return inst.Funcs[exp.Index], true
}

// FindMem is the C7 "find_mem" operation: it returns the module's sole
// linear memory, if it declares or imports one.
func (e *Environment) FindMem(h Handle) (*Memory, bool) {
	inst, ok := e.instanceFor(h)
	if !ok || inst.Memory == nil {
		return nil, false
	}
	return inst.Memory, true
}

// FindTable is the C7 "find_table" operation.
func (e *Environment) FindTable(h Handle) (*Table, bool) {
	inst, ok := e.instanceFor(h)
	if !ok || inst.Table == nil {
		return nil, false
	}
	return inst.Table, true
}

// FindGlobal is the C7 "find_global" operation: it resolves an exported
// global name to its index within the module's global index space.
func (e *Environment) FindGlobal(h Handle, name string) (uint32, bool) {
	inst, ok := e.instanceFor(h)
	if !ok {
		return 0, false
	}
	exp, ok := inst.Export(name)
	if !ok || exp.Kind != wasm.KindGlobal {
		return 0, false
	}
	return exp.Index, true
}

// FindImport is the C7 "find_import" operation: it returns the import
// descriptor at idx in the import section of the module registered
// under h.
func (e *Environment) FindImport(h Handle, idx uint32) (wasm.Import, bool) {
	inst, ok := e.instanceFor(h)
	if !ok || int(idx) >= len(inst.Module.Imports) {
		return wasm.Import{}, false
	}
	return inst.Module.Imports[idx], true
}

// GetMem returns the memory backing handle h, or a LinkError if the
// module has none.
func (e *Environment) GetMem(h Handle) (*Memory, error) {
	mem, ok := e.FindMem(h)
	if !ok {
		return nil, wasmerr.NewLinkError(wasmerr.ImportNotFound, "module declares no memory")
	}
	return mem, nil
}

// MemLoad reads n bytes at addr from h's memory.
func (e *Environment) MemLoad(h Handle, addr uint64, n int) ([]byte, error) {
	mem, err := e.GetMem(h)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := mem.Load(addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// MemStore writes data at addr into h's memory.
func (e *Environment) MemStore(h Handle, addr uint64, data []byte) error {
	mem, err := e.GetMem(h)
	if err != nil {
		return err
	}
	return mem.Store(addr, data)
}

// MemSize returns the current size, in 64 KiB pages, of h's memory.
func (e *Environment) MemSize(h Handle) (uint32, error) {
	mem, err := e.GetMem(h)
	if err != nil {
		return 0, err
	}
	return mem.Pages(), nil
}

// MemGrow grows h's memory by delta pages, returning the previous size
// or -1 if growth would exceed the memory's declared maximum.
func (e *Environment) MemGrow(h Handle, delta uint32) (int32, error) {
	mem, err := e.GetMem(h)
	if err != nil {
		return 0, err
	}
	return mem.Grow(delta), nil
}

// GetGlobal reads the current value of the global at idx in h's global
// index space.
func (e *Environment) GetGlobal(h Handle, idx uint32) (Value, error) {
	inst, ok := e.instanceFor(h)
	if !ok || int(idx) >= len(inst.Globals) {
		return Value{}, wasmerr.NewValidateError(wasmerr.IndexOutOfRange, int(idx), "global index out of range")
	}
	return inst.Globals[idx].Get(), nil
}

// SetGlobal writes v to the global at idx in h's global index space.
func (e *Environment) SetGlobal(h Handle, idx uint32, v Value) error {
	inst, ok := e.instanceFor(h)
	if !ok || int(idx) >= len(inst.Globals) {
		return wasmerr.NewValidateError(wasmerr.IndexOutOfRange, int(idx), "global index out of range")
	}
	inst.Globals[idx].Set(v)
	return nil
}

// GetElem reads the table element at idx in h's table.
func (e *Environment) GetElem(h Handle, idx uint32) (*FuncRef, error) {
	tbl, ok := e.FindTable(h)
	if !ok {
		return nil, wasmerr.NewLinkError(wasmerr.ImportNotFound, "module declares no table")
	}
	return tbl.Get(idx)
}

// Call is the C7 "call" operation: it resolves name to an exported
// function on h and dispatches it through the active backend.
func (e *Environment) Call(ctx context.Context, h Handle, name string, args []Value) ([]Value, error) {
	ref, ok := e.FindFunc(h, name)
	if !ok {
		err := wasmerr.NewLinkError(wasmerr.ImportNotFound, fmt.Sprintf("no exported function %q", name))
		e.memCtx.Report(err)
		return nil, err
	}
	var params []wasm.ValueType
	if ref.Native != nil {
		params = ref.Native.Params
	} else if inst, ok := e.instanceFor(ref.ModHandle); ok {
		if ft, ok := inst.Module.TypeOfFunc(ref.FuncIndex); ok {
			params = ft.Params
		}
	}
	if len(args) != len(params) {
		err := wasmerr.NewValidateError(wasmerr.ArityMismatch, len(args), fmt.Sprintf("function %q takes %d arguments", name, len(params)))
		e.memCtx.Report(err)
		return nil, err
	}
	ctx, span := e.tracer.Start(ctx, "runtime.Call")
	defer span.End()
	res, err := e.backend.Call(ctx, e, ref, args)
	if err != nil {
		e.memCtx.Report(err)
	}
	return res, err
}

// Limits returns the environment's host-tunable resource limits
// (spec.md §5), consulted by the interpreter's frame-depth guard.
func (e *Environment) Limits() config.Limits { return e.limits }
