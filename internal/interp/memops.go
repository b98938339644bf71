// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package interp

import (
	"encoding/binary"
	"math"

	"github.com/dotandev/pwasmgo/internal/instr"
	"github.com/dotandev/pwasmgo/internal/opcode"
	"github.com/dotandev/pwasmgo/internal/runtime"
	"github.com/dotandev/pwasmgo/internal/wasmerr"
)

func isMemOp(op opcode.Opcode) bool {
	switch op {
	case 0x28, 0x29, 0x2A, 0x2B, 0x2C, 0x2D, 0x2E, 0x2F,
		0x30, 0x31, 0x32, 0x33, 0x34, 0x35,
		0x36, 0x37, 0x38, 0x39, 0x3A, 0x3B, 0x3C, 0x3D, 0x3E:
		return true
	}
	return false
}

func effAddr(base int32, mem instr.MemArg) uint64 {
	return uint64(uint32(base)) + uint64(mem.Offset)
}

// execMemOp evaluates a memory load or store instruction against the
// function's module memory, trapping TrapOOBMemory if the access falls
// outside the current data buffer (spec.md §4.9).
func execMemOp(inst *runtime.Instance, in instr.Instruction, stackp *[]runtime.Value) error {
	if inst.Memory == nil {
		return wasmerr.NewTrap(wasmerr.TrapOOBMemory, "no memory declared")
	}
	stack := *stackp
	pop := func() runtime.Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	push := func(v runtime.Value) { stack = append(stack, v) }
	defer func() { *stackp = stack }()

	switch in.Op {
	case 0x36, 0x3A, 0x3B: // i32.store, i32.store8, i32.store16
		v := pop().I32
		addr := effAddr(pop().I32, in.Mem)
		var buf []byte
		switch in.Op {
		case 0x3A:
			buf = []byte{byte(v)}
		case 0x3B:
			buf = make([]byte, 2)
			binary.LittleEndian.PutUint16(buf, uint16(v))
		default:
			buf = make([]byte, 4)
			binary.LittleEndian.PutUint32(buf, uint32(v))
		}
		return inst.Memory.Store(addr, buf)
	case 0x37, 0x3C, 0x3D, 0x3E: // i64.store, i64.store8/16/32
		v := pop().I64
		addr := effAddr(pop().I32, in.Mem)
		var buf []byte
		switch in.Op {
		case 0x3C:
			buf = []byte{byte(v)}
		case 0x3D:
			buf = make([]byte, 2)
			binary.LittleEndian.PutUint16(buf, uint16(v))
		case 0x3E:
			buf = make([]byte, 4)
			binary.LittleEndian.PutUint32(buf, uint32(v))
		default:
			buf = make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, uint64(v))
		}
		return inst.Memory.Store(addr, buf)
	case 0x38: // f32.store
		v := pop().F32
		addr := effAddr(pop().I32, in.Mem)
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		return inst.Memory.Store(addr, buf)
	case 0x39: // f64.store
		v := pop().F64
		addr := effAddr(pop().I32, in.Mem)
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		return inst.Memory.Store(addr, buf)
	}

	addr := effAddr(pop().I32, in.Mem)
	switch in.Op {
	case 0x28: // i32.load
		buf := make([]byte, 4)
		if err := inst.Memory.Load(addr, buf); err != nil {
			return err
		}
		push(runtime.I32Val(int32(binary.LittleEndian.Uint32(buf))))
	case 0x29: // i64.load
		buf := make([]byte, 8)
		if err := inst.Memory.Load(addr, buf); err != nil {
			return err
		}
		push(runtime.I64Val(int64(binary.LittleEndian.Uint64(buf))))
	case 0x2A: // f32.load
		buf := make([]byte, 4)
		if err := inst.Memory.Load(addr, buf); err != nil {
			return err
		}
		push(runtime.F32Val(math.Float32frombits(binary.LittleEndian.Uint32(buf))))
	case 0x2B: // f64.load
		buf := make([]byte, 8)
		if err := inst.Memory.Load(addr, buf); err != nil {
			return err
		}
		push(runtime.F64Val(math.Float64frombits(binary.LittleEndian.Uint64(buf))))
	case 0x2C: // i32.load8_s
		buf := make([]byte, 1)
		if err := inst.Memory.Load(addr, buf); err != nil {
			return err
		}
		push(runtime.I32Val(int32(int8(buf[0]))))
	case 0x2D: // i32.load8_u
		buf := make([]byte, 1)
		if err := inst.Memory.Load(addr, buf); err != nil {
			return err
		}
		push(runtime.I32Val(int32(buf[0])))
	case 0x2E: // i32.load16_s
		buf := make([]byte, 2)
		if err := inst.Memory.Load(addr, buf); err != nil {
			return err
		}
		push(runtime.I32Val(int32(int16(binary.LittleEndian.Uint16(buf)))))
	case 0x2F: // i32.load16_u
		buf := make([]byte, 2)
		if err := inst.Memory.Load(addr, buf); err != nil {
			return err
		}
		push(runtime.I32Val(int32(binary.LittleEndian.Uint16(buf))))
	case 0x30: // i64.load8_s
		buf := make([]byte, 1)
		if err := inst.Memory.Load(addr, buf); err != nil {
			return err
		}
		push(runtime.I64Val(int64(int8(buf[0]))))
	case 0x31: // i64.load8_u
		buf := make([]byte, 1)
		if err := inst.Memory.Load(addr, buf); err != nil {
			return err
		}
		push(runtime.I64Val(int64(buf[0])))
	case 0x32: // i64.load16_s
		buf := make([]byte, 2)
		if err := inst.Memory.Load(addr, buf); err != nil {
			return err
		}
		push(runtime.I64Val(int64(int16(binary.LittleEndian.Uint16(buf)))))
	case 0x33: // i64.load16_u
		buf := make([]byte, 2)
		if err := inst.Memory.Load(addr, buf); err != nil {
			return err
		}
		push(runtime.I64Val(int64(binary.LittleEndian.Uint16(buf))))
	case 0x34: // i64.load32_s
		buf := make([]byte, 4)
		if err := inst.Memory.Load(addr, buf); err != nil {
			return err
		}
		push(runtime.I64Val(int64(int32(binary.LittleEndian.Uint32(buf)))))
	case 0x35: // i64.load32_u
		buf := make([]byte, 4)
		if err := inst.Memory.Load(addr, buf); err != nil {
			return err
		}
		push(runtime.I64Val(int64(binary.LittleEndian.Uint32(buf))))
	}
	return nil
}
