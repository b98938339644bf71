// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package wasm

import (
	"github.com/dotandev/pwasmgo/internal/instr"
	"github.com/dotandev/pwasmgo/internal/opcode"
	"github.com/dotandev/pwasmgo/internal/wasmerr"
)

// naturalAlign maps a memory-access opcode to its natural alignment
// exponent (spec.md §9: "a memory access's align immediate must not
// exceed the operation's natural alignment").
var naturalAlign = map[opcode.Opcode]uint32{
	0x28: 2, 0x29: 3, 0x2A: 2, 0x2B: 3,
	0x2C: 0, 0x2D: 0, 0x2E: 1, 0x2F: 1,
	0x30: 0, 0x31: 0, 0x32: 1, 0x33: 1, 0x34: 2, 0x35: 2,
	0x36: 2, 0x37: 3, 0x38: 2, 0x39: 3,
	0x3A: 0, 0x3B: 1,
	0x3C: 0, 0x3D: 1, 0x3E: 2,
}

// Validate performs the post-parse structural checks of spec.md C5:
// index-range validation, function/code arity agreement, single
// memory/table, branch-depth bounds, constant-expression legality, and
// alignment limits. It returns the first violation found.
func Validate(m *Module) error {
	if m.TableCount() > 1 {
		return wasmerr.NewValidateError(wasmerr.LimitsViolation, m.TableCount(), "at most one table allowed")
	}
	if m.MemoryCount() > 1 {
		return wasmerr.NewValidateError(wasmerr.LimitsViolation, m.MemoryCount(), "at most one memory allowed")
	}
	for i, t := range m.Tables {
		if err := checkLimits(t.Limits, i); err != nil {
			return err
		}
	}
	for i, mem := range m.Memories {
		if err := checkLimits(mem.Limits, i); err != nil {
			return err
		}
		if mem.Limits.Min > 65536 || (mem.Limits.HasMax && mem.Limits.Max > 65536) {
			return wasmerr.NewValidateError(wasmerr.LimitsViolation, i, "memory page count exceeds 65536")
		}
	}

	if len(m.Functions) != len(m.Code) {
		return wasmerr.NewValidateError(wasmerr.ArityMismatch, len(m.Functions), "function and code section counts differ")
	}
	for i, ft := range m.Types {
		if len(ft.Results) > 1 {
			return wasmerr.NewValidateError(wasmerr.ArityMismatch, i, "function type has more than one result (non-MVP)")
		}
	}

	for i, gd := range m.Globals {
		if err := validateConstExpr(m, m.InstsOf(gd.Init), i); err != nil {
			return err
		}
	}
	for i, ds := range m.DataSegs {
		if ds.MemoryIndex >= uint32(m.MemoryCount()) {
			return wasmerr.NewValidateError(wasmerr.IndexOutOfRange, i, "data segment memory index out of range")
		}
		if err := validateConstExpr(m, m.InstsOf(ds.OffsetExpr), i); err != nil {
			return err
		}
	}
	for i, es := range m.Elements {
		if es.TableIndex >= uint32(m.TableCount()) {
			return wasmerr.NewValidateError(wasmerr.IndexOutOfRange, i, "element segment table index out of range")
		}
		if err := validateConstExpr(m, m.InstsOf(es.OffsetExpr), i); err != nil {
			return err
		}
		for _, fidx := range m.U32sOf(es.Funcs) {
			if int(fidx) >= m.FuncCount() {
				return wasmerr.NewValidateError(wasmerr.IndexOutOfRange, int(fidx), "element segment function index out of range")
			}
		}
	}

	if m.HasStart {
		ft, ok := m.TypeOfFunc(m.StartIndex)
		if !ok {
			return wasmerr.NewValidateError(wasmerr.IndexOutOfRange, int(m.StartIndex), "start function index out of range")
		}
		if len(ft.Params) != 0 || len(ft.Results) != 0 {
			return wasmerr.NewValidateError(wasmerr.StartSignatureMismatch, int(m.StartIndex), "start function must be () -> ()")
		}
	}

	for i, exp := range m.Exports {
		var count int
		switch exp.Kind {
		case KindFunc:
			count = m.FuncCount()
		case KindTable:
			count = m.TableCount()
		case KindMemory:
			count = m.MemoryCount()
		case KindGlobal:
			count = m.GlobalCount()
		default:
			return wasmerr.NewValidateError(wasmerr.IndexOutOfRange, i, "bad export kind")
		}
		if int(exp.Index) >= count {
			return wasmerr.NewValidateError(wasmerr.IndexOutOfRange, i, "export index out of range")
		}
	}

	for i, body := range m.Code {
		funcIdx := int(m.ImportCounts.Func) + i
		if err := validateFunctionBody(m, body, funcIdx); err != nil {
			return err
		}
	}
	return nil
}

func checkLimits(l Limits, idx int) error {
	if l.HasMax && l.Max < l.Min {
		return wasmerr.NewValidateError(wasmerr.LimitsViolation, idx, "limits max below min")
	}
	return nil
}

// validateConstExpr checks spec.md §3 inv. 7's semantic half: a
// global.get inside a constant expression must reference an imported,
// immutable global (module-defined globals are not yet initialized
// while earlier globals' initializers run, so forward/self reference is
// rejected by construction).
func validateConstExpr(m *Module, insts []instr.Instruction, idx int) error {
	for _, in := range insts {
		if in.Op != opcode.GlobalGet {
			continue
		}
		if in.Idx >= m.ImportCounts.Global {
			return wasmerr.NewValidateError(wasmerr.ConstExprViolation, idx, "const expr may only reference imported globals")
		}
		gt := importedGlobalType(m, in.Idx)
		if gt.Mutable {
			return wasmerr.NewValidateError(wasmerr.ConstExprViolation, idx, "const expr global.get must reference an immutable global")
		}
	}
	return nil
}

func importedGlobalType(m *Module, idx uint32) GlobalType {
	i := uint32(0)
	for _, imp := range m.Imports {
		if imp.Kind != KindGlobal {
			continue
		}
		if i == idx {
			return imp.Global
		}
		i++
	}
	return GlobalType{}
}

type ctrlFrame struct {
	kind      opcode.Opcode // Block, Loop, or If
	arity     int           // 0 or 1 result
	sawElse   bool
}

// validateFunctionBody walks one function's instruction stream with a
// control-frame stack mirroring spec.md §4.5's "block|loop|if push,
// else swap, end pop" shape, checking branch-depth, local/global index,
// call target, and alignment bounds as it goes.
func validateFunctionBody(m *Module, body FunctionBody, funcIdx int) error {
	ft, ok := m.TypeOfFunc(uint32(funcIdx))
	if !ok {
		return wasmerr.NewValidateError(wasmerr.IndexOutOfRange, funcIdx, "function has no type")
	}
	numLocals := uint32(len(ft.Params))
	for _, lg := range m.LocalsOf(body.Locals) {
		numLocals += lg.Count
	}

	var frames []ctrlFrame
	insts := m.InstsOf(body.Body)
	for _, in := range insts {
		switch in.Op {
		case opcode.Block, opcode.Loop, opcode.If:
			arity := 0
			if !in.Block.Void && !in.Block.MultiValue {
				arity = 1
			}
			if in.Block.MultiValue {
				return wasmerr.NewValidateError(wasmerr.ArityMismatch, funcIdx, "multi-value block types are not MVP")
			}
			frames = append(frames, ctrlFrame{kind: in.Op, arity: arity})
		case opcode.Else:
			if len(frames) == 0 || frames[len(frames)-1].kind != opcode.If {
				return wasmerr.NewValidateError(wasmerr.BranchDepthExceeded, funcIdx, "else without matching if")
			}
			frames[len(frames)-1].sawElse = true
		case opcode.End:
			if len(frames) > 0 {
				frames = frames[:len(frames)-1]
			}
		case opcode.Br, opcode.BrIf:
			if int(in.Idx) >= len(frames) {
				return wasmerr.NewValidateError(wasmerr.BranchDepthExceeded, funcIdx, "branch label exceeds enclosing block depth")
			}
		case opcode.BrTable:
			for _, lbl := range m.U32sOf(in.BrTable.Labels) {
				if int(lbl) >= len(frames) {
					return wasmerr.NewValidateError(wasmerr.BranchDepthExceeded, funcIdx, "br_table label exceeds enclosing block depth")
				}
			}
			if int(in.BrTable.Default) >= len(frames) {
				return wasmerr.NewValidateError(wasmerr.BranchDepthExceeded, funcIdx, "br_table default label exceeds enclosing block depth")
			}
		case opcode.LocalGet, opcode.LocalSet, opcode.LocalTee:
			if in.Idx >= numLocals {
				return wasmerr.NewValidateError(wasmerr.IndexOutOfRange, funcIdx, "local index out of range")
			}
		case opcode.GlobalGet, opcode.GlobalSet:
			if int(in.Idx) >= m.GlobalCount() {
				return wasmerr.NewValidateError(wasmerr.IndexOutOfRange, funcIdx, "global index out of range")
			}
		case opcode.Call:
			if int(in.Idx) >= m.FuncCount() {
				return wasmerr.NewValidateError(wasmerr.IndexOutOfRange, funcIdx, "call target out of range")
			}
		case opcode.CallIndirect:
			if m.TableCount() == 0 {
				return wasmerr.NewValidateError(wasmerr.CallIndirectMissingTable, funcIdx, "call_indirect with no table")
			}
			if int(in.CallIndirect) >= len(m.Types) {
				return wasmerr.NewValidateError(wasmerr.IndexOutOfRange, funcIdx, "call_indirect type index out of range")
			}
		default:
			if align, ok := naturalAlign[in.Op]; ok {
				if in.Mem.Align > align {
					return wasmerr.NewValidateError(wasmerr.AlignmentExceedsNatural, funcIdx, "memory access alignment exceeds natural alignment")
				}
				if m.MemoryCount() == 0 {
					return wasmerr.NewValidateError(wasmerr.IndexOutOfRange, funcIdx, "memory access with no memory")
				}
			}
		}
	}
	if len(frames) != 0 {
		return wasmerr.NewValidateError(wasmerr.BranchDepthExceeded, funcIdx, "unbalanced block/end nesting")
	}
	return nil
}
