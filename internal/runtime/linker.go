// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"fmt"

	"github.com/dotandev/pwasmgo/internal/instr"
	"github.com/dotandev/pwasmgo/internal/opcode"
	"github.com/dotandev/pwasmgo/internal/wasm"
	"github.com/dotandev/pwasmgo/internal/wasmerr"
)

// instantiate is the C8 linking algorithm: resolve every import against
// already-registered modules and natives, allocate the memory/table/
// global state mod declares for itself, initialize element and data
// segments, and hand back a ready-to-call Instance. Callers hold e.mu
// for the duration (invoked only from AddModule). self is the handle
// mod will be registered under, needed so a module's own functions can
// reference themselves in FuncRef form.
func (e *Environment) instantiate(ctx context.Context, self Handle, mod *wasm.Module) (*Instance, error) {
	inst := &Instance{Module: mod}

	var importedFuncs []FuncRef
	var importedGlobals []*GlobalValue

	for _, imp := range mod.Imports {
		switch imp.Kind {
		case wasm.KindFunc:
			ref, sig, err := e.resolveFuncImport(imp)
			if err != nil {
				return nil, err
			}
			want := mod.Types[imp.FuncType]
			if !sameFuncType(want, sig) {
				return nil, wasmerr.NewLinkError(wasmerr.ImportTypeMismatch,
					fmt.Sprintf("function import %s.%s signature mismatch", imp.ModuleName, imp.Name))
			}
			importedFuncs = append(importedFuncs, ref)

		case wasm.KindTable:
			tbl, err := e.resolveTableImport(imp)
			if err != nil {
				return nil, err
			}
			inst.Table = tbl

		case wasm.KindMemory:
			mem, err := e.resolveMemImport(imp)
			if err != nil {
				return nil, err
			}
			inst.Memory = mem

		case wasm.KindGlobal:
			gv, err := e.resolveGlobalImport(imp)
			if err != nil {
				return nil, err
			}
			importedGlobals = append(importedGlobals, gv)
		}
	}

	if inst.Table == nil && len(mod.Tables) == 1 {
		inst.Table = newTable(mod.Tables[0])
	}
	if inst.Memory == nil && len(mod.Memories) == 1 {
		inst.Memory = newMemory(mod.Memories[0])
	}

	inst.Globals = append(inst.Globals, importedGlobals...)
	for _, gd := range mod.Globals {
		v, err := evalConstExpr(inst, mod.InstsOf(gd.Init))
		if err != nil {
			return nil, err
		}
		inst.Globals = append(inst.Globals, &GlobalValue{Type: gd.Type, Value: v})
	}

	inst.Funcs = append(inst.Funcs, importedFuncs...)
	for i := range mod.Functions {
		inst.Funcs = append(inst.Funcs, FuncRef{ModHandle: self, FuncIndex: uint32(len(importedFuncs) + i)})
	}

	for _, es := range mod.Elements {
		off, err := evalConstExpr(inst, mod.InstsOf(es.OffsetExpr))
		if err != nil {
			return nil, err
		}
		funcs := mod.U32sOf(es.Funcs)
		if inst.Table == nil || int(off.I32)+len(funcs) > len(inst.Table.Elems) {
			return nil, wasmerr.NewLinkError(wasmerr.LimitsIncompatible, "element segment does not fit in table")
		}
		for i, fidx := range funcs {
			ref := inst.Funcs[fidx]
			inst.Table.set(uint32(off.I32)+uint32(i), &ref)
		}
	}

	for _, ds := range mod.DataSegs {
		off, err := evalConstExpr(inst, mod.InstsOf(ds.OffsetExpr))
		if err != nil {
			return nil, err
		}
		data := mod.BytesOf(ds.Data)
		if inst.Memory == nil {
			return nil, wasmerr.NewLinkError(wasmerr.LimitsIncompatible, "data segment with no memory")
		}
		if err := inst.Memory.Store(uint64(uint32(off.I32)), data); err != nil {
			return nil, wasmerr.NewLinkError(wasmerr.LimitsIncompatible, "data segment does not fit in memory")
		}
	}

	return inst, nil
}

func (e *Environment) resolveFuncImport(imp wasm.Import) (FuncRef, wasm.FuncType, error) {
	if nh, ok := e.nativeIdx[imp.ModuleName]; ok {
		nf, ok := e.natives[nh].funcs[imp.Name]
		if !ok {
			return FuncRef{}, wasm.FuncType{}, wasmerr.NewLinkError(wasmerr.ImportNotFound,
				fmt.Sprintf("native function %s.%s not found", imp.ModuleName, imp.Name))
		}
		return FuncRef{Native: nf}, wasm.FuncType{Params: nf.Params, Results: nf.Results}, nil
	}
	if mh, ok := e.moduleIdx[imp.ModuleName]; ok {
		srcInst := e.modules[mh].instance
		exp, ok := srcInst.Export(imp.Name)
		if !ok || exp.Kind != wasm.KindFunc {
			return FuncRef{}, wasm.FuncType{}, wasmerr.NewLinkError(wasmerr.ImportNotFound,
				fmt.Sprintf("function %s.%s not found", imp.ModuleName, imp.Name))
		}
		sig, ok := srcInst.Module.TypeOfFunc(exp.Index)
		if !ok {
			return FuncRef{}, wasm.FuncType{}, wasmerr.NewLinkError(wasmerr.ImportNotFound, "exported function has no type")
		}
		return srcInst.Funcs[exp.Index], sig, nil
	}
	return FuncRef{}, wasm.FuncType{}, wasmerr.NewLinkError(wasmerr.ImportNotFound,
		fmt.Sprintf("module %q not registered", imp.ModuleName))
}

func (e *Environment) resolveTableImport(imp wasm.Import) (*Table, error) {
	mh, ok := e.moduleIdx[imp.ModuleName]
	if !ok {
		return nil, wasmerr.NewLinkError(wasmerr.ImportNotFound, fmt.Sprintf("module %q not registered", imp.ModuleName))
	}
	srcInst := e.modules[mh].instance
	exp, ok := srcInst.Export(imp.Name)
	if !ok || exp.Kind != wasm.KindTable || srcInst.Table == nil {
		return nil, wasmerr.NewLinkError(wasmerr.ImportNotFound, fmt.Sprintf("table %s.%s not found", imp.ModuleName, imp.Name))
	}
	if uint32(len(srcInst.Table.Elems)) < imp.Table.Limits.Min {
		return nil, wasmerr.NewLinkError(wasmerr.LimitsIncompatible, "imported table smaller than required minimum")
	}
	return srcInst.Table, nil
}

func (e *Environment) resolveMemImport(imp wasm.Import) (*Memory, error) {
	mh, ok := e.moduleIdx[imp.ModuleName]
	if !ok {
		return nil, wasmerr.NewLinkError(wasmerr.ImportNotFound, fmt.Sprintf("module %q not registered", imp.ModuleName))
	}
	srcInst := e.modules[mh].instance
	exp, ok := srcInst.Export(imp.Name)
	if !ok || exp.Kind != wasm.KindMemory || srcInst.Memory == nil {
		return nil, wasmerr.NewLinkError(wasmerr.ImportNotFound, fmt.Sprintf("memory %s.%s not found", imp.ModuleName, imp.Name))
	}
	if srcInst.Memory.Pages() < imp.Memory.Limits.Min {
		return nil, wasmerr.NewLinkError(wasmerr.LimitsIncompatible, "imported memory smaller than required minimum")
	}
	if imp.Memory.Limits.HasMax && srcInst.Memory.Max > imp.Memory.Limits.Max {
		return nil, wasmerr.NewLinkError(wasmerr.LimitsIncompatible, "imported memory's maximum exceeds requested bound")
	}
	return srcInst.Memory, nil
}

func (e *Environment) resolveGlobalImport(imp wasm.Import) (*GlobalValue, error) {
	mh, ok := e.moduleIdx[imp.ModuleName]
	if !ok {
		return nil, wasmerr.NewLinkError(wasmerr.ImportNotFound, fmt.Sprintf("module %q not registered", imp.ModuleName))
	}
	srcInst := e.modules[mh].instance
	exp, ok := srcInst.Export(imp.Name)
	if !ok || exp.Kind != wasm.KindGlobal {
		return nil, wasmerr.NewLinkError(wasmerr.ImportNotFound, fmt.Sprintf("global %s.%s not found", imp.ModuleName, imp.Name))
	}
	gv := srcInst.Globals[exp.Index]
	if gv.Type.ValType != imp.Global.ValType || gv.Type.Mutable != imp.Global.Mutable {
		return nil, wasmerr.NewLinkError(wasmerr.ImportTypeMismatch, fmt.Sprintf("global %s.%s type mismatch", imp.ModuleName, imp.Name))
	}
	return gv, nil
}

func sameFuncType(a, b wasm.FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}

// evalConstExpr evaluates the restricted constant-expression subset
// spec.md §3 allows: *.const, global.get (of an already-resolved
// imported global), and the terminating end.
func evalConstExpr(inst *Instance, insts []instr.Instruction) (Value, error) {
	for _, in := range insts {
		switch in.Op {
		case opcode.I32Const:
			return I32Val(in.I32), nil
		case opcode.I64Const:
			return I64Val(in.I64), nil
		case opcode.F32Const:
			return F32Val(in.F32), nil
		case opcode.F64Const:
			return F64Val(in.F64), nil
		case opcode.GlobalGet:
			if int(in.Idx) >= len(inst.Globals) {
				return Value{}, wasmerr.NewValidateError(wasmerr.IndexOutOfRange, int(in.Idx), "const expr global index out of range")
			}
			return inst.Globals[in.Idx].Get(), nil
		case opcode.End:
			// no-op terminator
		}
	}
	return Value{}, wasmerr.NewParseError(0, wasmerr.TruncatedStream, "empty constant expression")
}
