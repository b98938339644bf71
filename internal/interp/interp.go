// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package interp is the reference interpreting execution backend
// (spec.md C9): a stack machine over a function's flat instruction
// sequence, with an explicit control-frame stack standing in for the
// structured block/loop/if nesting the binary format encodes inline.
// It implements runtime.Backend and is interchangeable with
// internal/jit from the environment's point of view.
package interp

import (
	"context"
	"log/slog"

	"github.com/dotandev/pwasmgo/internal/instr"
	"github.com/dotandev/pwasmgo/internal/logger"
	"github.com/dotandev/pwasmgo/internal/opcode"
	"github.com/dotandev/pwasmgo/internal/runtime"
	"github.com/dotandev/pwasmgo/internal/wasm"
	"github.com/dotandev/pwasmgo/internal/wasmerr"
)

// Interp is a stateless Backend: all per-call state lives on the Go
// call stack of execFunc/invoke, so one Interp may serve many concurrent
// Environments.
type Interp struct {
	Logger *slog.Logger
}

// New constructs an interpreter backend.
func New(log *slog.Logger) *Interp {
	if log == nil {
		log = logger.Logger
	}
	return &Interp{Logger: log}
}

func (ip *Interp) Name() string { return "interp" }

// Call implements runtime.Backend.
func (ip *Interp) Call(ctx context.Context, env *runtime.Environment, ref runtime.FuncRef, args []runtime.Value) ([]runtime.Value, error) {
	return ip.invoke(ctx, env, ref, args, 0)
}

func (ip *Interp) invoke(ctx context.Context, env *runtime.Environment, ref runtime.FuncRef, args []runtime.Value, depth int) ([]runtime.Value, error) {
	if uint32(depth) > env.Limits().MaxFrameDepth {
		return nil, wasmerr.NewTrap(wasmerr.TrapStackOverflow, "call depth exceeded")
	}
	if ref.Native != nil {
		return ref.Native.Fn(ctx, args)
	}
	inst, ok := env.Instance(ref.ModHandle)
	if !ok {
		return nil, wasmerr.NewLinkError(wasmerr.ImportNotFound, "call target's module is not registered")
	}
	ft, ok := inst.Module.TypeOfFunc(ref.FuncIndex)
	if !ok {
		return nil, wasmerr.NewValidateError(wasmerr.IndexOutOfRange, int(ref.FuncIndex), "call target has no type")
	}
	codeIdx := int(ref.FuncIndex) - int(inst.Module.ImportCounts.Func)
	if codeIdx < 0 || codeIdx >= len(inst.Module.Code) {
		return nil, wasmerr.NewValidateError(wasmerr.IndexOutOfRange, int(ref.FuncIndex), "call target resolves to an import, not a defined function")
	}
	body := inst.Module.Code[codeIdx]

	locals := make([]runtime.Value, len(ft.Params), int(body.FrameSize)+len(ft.Params))
	copy(locals, args)
	for _, lg := range inst.Module.LocalsOf(body.Locals) {
		for i := uint32(0); i < lg.Count; i++ {
			locals = append(locals, runtime.ZeroValue(lg.Type))
		}
	}

	return ip.execFunc(ctx, env, inst, ft, locals, inst.Module.InstsOf(body.Body), depth)
}

type ctrlFrame struct {
	kind        opcode.Opcode
	stackBase   int
	arity       int
	matchingEnd int
	loopStart   int
}

func blockArity(bt instr.BlockType) int {
	if bt.Void {
		return 0
	}
	return 1
}

// scanBlock finds, starting at the first instruction inside a
// block/loop/if (start), the index of a same-depth else (or -1) and the
// index of the matching end.
func scanBlock(insts []instr.Instruction, start int) (elseIdx, endIdx int) {
	depth := 0
	elseIdx = -1
	for i := start; i < len(insts); i++ {
		switch insts[i].Op {
		case opcode.Block, opcode.Loop, opcode.If:
			depth++
		case opcode.Else:
			if depth == 0 && elseIdx == -1 {
				elseIdx = i
			}
		case opcode.End:
			if depth == 0 {
				return elseIdx, i
			}
			depth--
		}
	}
	return elseIdx, len(insts) - 1
}

func (ip *Interp) execFunc(ctx context.Context, env *runtime.Environment, inst *runtime.Instance, ft wasm.FuncType, locals []runtime.Value, insts []instr.Instruction, depth int) (result []runtime.Value, err error) {
	stack := make([]runtime.Value, 0, 16)
	var frames []ctrlFrame
	pc := 0

	pop := func() runtime.Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	push := func(v runtime.Value) { stack = append(stack, v) }

	returned := false
	for pc < len(insts) && !returned {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in := insts[pc]
		switch in.Op {
		case opcode.Unreachable:
			return nil, wasmerr.NewTrap(wasmerr.TrapUnreachable, "")
		case opcode.Nop:
			pc++
		case opcode.Block:
			_, endIdx := scanBlock(insts, pc+1)
			frames = append(frames, ctrlFrame{kind: opcode.Block, stackBase: len(stack), arity: blockArity(in.Block), matchingEnd: endIdx})
			pc++
		case opcode.Loop:
			_, endIdx := scanBlock(insts, pc+1)
			frames = append(frames, ctrlFrame{kind: opcode.Loop, stackBase: len(stack), arity: blockArity(in.Block), matchingEnd: endIdx, loopStart: pc + 1})
			pc++
		case opcode.If:
			cond := pop()
			elseIdx, endIdx := scanBlock(insts, pc+1)
			frames = append(frames, ctrlFrame{kind: opcode.If, stackBase: len(stack), arity: blockArity(in.Block), matchingEnd: endIdx})
			if cond.I32 != 0 {
				pc++
			} else if elseIdx >= 0 {
				pc = elseIdx + 1
			} else {
				frames = frames[:len(frames)-1]
				pc = endIdx + 1
			}
		case opcode.Else:
			top := frames[len(frames)-1]
			frames = frames[:len(frames)-1]
			pc = top.matchingEnd + 1
		case opcode.End:
			if len(frames) > 0 {
				frames = frames[:len(frames)-1]
			}
			pc++
		case opcode.Br:
			newPc, trapErr := branch(&frames, &stack, in.Idx)
			if trapErr != nil {
				return nil, trapErr
			}
			pc = newPc
		case opcode.BrIf:
			cond := pop()
			if cond.I32 != 0 {
				newPc, trapErr := branch(&frames, &stack, in.Idx)
				if trapErr != nil {
					return nil, trapErr
				}
				pc = newPc
			} else {
				pc++
			}
		case opcode.BrTable:
			idx := pop().I32
			labels := inst.Module.U32sOf(in.BrTable.Labels)
			lbl := in.BrTable.Default
			if idx >= 0 && int(idx) < len(labels) {
				lbl = labels[idx]
			}
			newPc, trapErr := branch(&frames, &stack, lbl)
			if trapErr != nil {
				return nil, trapErr
			}
			pc = newPc
		case opcode.Return:
			returned = true
		case opcode.Call:
			ref := inst.Funcs[in.Idx]
			argc := funcArgCount(inst, in.Idx)
			callArgs := append([]runtime.Value(nil), stack[len(stack)-argc:]...)
			stack = stack[:len(stack)-argc]
			res, callErr := ip.invoke(ctx, env, ref, callArgs, depth+1)
			if callErr != nil {
				return nil, callErr
			}
			stack = append(stack, res...)
			pc++
		case opcode.CallIndirect:
			tblIdx := pop().I32
			if inst.Table == nil {
				return nil, wasmerr.NewTrap(wasmerr.TrapOOBTable, "call_indirect with no table")
			}
			ref, tErr := inst.Table.Get(uint32(tblIdx))
			if tErr != nil {
				return nil, tErr
			}
			if ref == nil {
				return nil, wasmerr.NewTrap(wasmerr.TrapNullIndirect, "indirect call to null table element")
			}
			wantType := inst.Module.Types[in.CallIndirect]
			gotType, ok := funcType(env, inst, *ref)
			if !ok || !sameFuncTypePublic(wantType, gotType) {
				return nil, wasmerr.NewTrap(wasmerr.TrapIndirectCallTypeMismatch, "indirect call signature mismatch")
			}
			argc := len(wantType.Params)
			callArgs := append([]runtime.Value(nil), stack[len(stack)-argc:]...)
			stack = stack[:len(stack)-argc]
			res, callErr := ip.invoke(ctx, env, *ref, callArgs, depth+1)
			if callErr != nil {
				return nil, callErr
			}
			stack = append(stack, res...)
			pc++
		case opcode.Drop:
			pop()
			pc++
		case opcode.Select:
			c := pop()
			b := pop()
			a := pop()
			if c.I32 != 0 {
				push(a)
			} else {
				push(b)
			}
			pc++
		case opcode.LocalGet:
			push(locals[in.Idx])
			pc++
		case opcode.LocalSet:
			locals[in.Idx] = pop()
			pc++
		case opcode.LocalTee:
			v := stack[len(stack)-1]
			locals[in.Idx] = v
			pc++
		case opcode.GlobalGet:
			push(inst.Globals[in.Idx].Get())
			pc++
		case opcode.GlobalSet:
			inst.Globals[in.Idx].Set(pop())
			pc++
		case opcode.MemorySize:
			push(runtime.I32Val(int32(inst.Memory.Pages())))
			pc++
		case opcode.MemoryGrow:
			delta := pop().I32
			push(runtime.I32Val(inst.Memory.Grow(uint32(delta))))
			pc++
		case opcode.I32Const:
			push(runtime.I32Val(in.I32))
			pc++
		case opcode.I64Const:
			push(runtime.I64Val(in.I64))
			pc++
		case opcode.F32Const:
			push(runtime.F32Val(in.F32))
			pc++
		case opcode.F64Const:
			push(runtime.F64Val(in.F64))
			pc++
		default:
			if isMemOp(in.Op) {
				if memErr := execMemOp(inst, in, &stack); memErr != nil {
					return nil, memErr
				}
			} else if numErr := execNumericOp(in.Op, &stack); numErr != nil {
				return nil, numErr
			}
			pc++
		}
	}

	arity := len(ft.Results)
	if arity == 0 {
		return nil, nil
	}
	if len(stack) < arity {
		return nil, wasmerr.NewValidateError(wasmerr.ArityMismatch, 0, "function produced fewer values than declared results")
	}
	return stack[len(stack)-arity:], nil
}

func branch(frames *[]ctrlFrame, stack *[]runtime.Value, labelIdx uint32) (int, error) {
	fr := *frames
	if int(labelIdx) >= len(fr) {
		return 0, wasmerr.NewValidateError(wasmerr.BranchDepthExceeded, int(labelIdx), "branch target deeper than the control stack")
	}
	target := fr[len(fr)-1-int(labelIdx)]
	if target.kind == opcode.Loop {
		*stack = (*stack)[:target.stackBase]
		*frames = fr[:len(fr)-int(labelIdx)]
		return target.loopStart, nil
	}
	var kept []runtime.Value
	s := *stack
	if target.arity == 1 && len(s) > target.stackBase {
		kept = []runtime.Value{s[len(s)-1]}
	}
	*stack = append(s[:target.stackBase], kept...)
	*frames = fr[:len(fr)-int(labelIdx)-1]
	return target.matchingEnd + 1, nil
}

func funcArgCount(inst *runtime.Instance, funcIdx uint32) int {
	ft, ok := inst.Module.TypeOfFunc(funcIdx)
	if !ok {
		return 0
	}
	return len(ft.Params)
}

func funcType(env *runtime.Environment, inst *runtime.Instance, ref runtime.FuncRef) (wasm.FuncType, bool) {
	if ref.Native != nil {
		return wasm.FuncType{Params: ref.Native.Params, Results: ref.Native.Results}, true
	}
	target, ok := env.Instance(ref.ModHandle)
	if !ok {
		return wasm.FuncType{}, false
	}
	return target.Module.TypeOfFunc(ref.FuncIndex)
}

func sameFuncTypePublic(a, b wasm.FuncType) bool {
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
