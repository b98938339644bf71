// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package interp

import (
	"testing"

	"github.com/dotandev/pwasmgo/internal/instr"
	"github.com/dotandev/pwasmgo/internal/opcode"
	"github.com/dotandev/pwasmgo/internal/runtime"
	"github.com/dotandev/pwasmgo/internal/wasmerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInstance(pages int) *runtime.Instance {
	return &runtime.Instance{Memory: &runtime.Memory{Data: make([]byte, pages*65536), Max: uint32(pages)}}
}

func TestExecMemOp_StoreThenLoadRoundTrip(t *testing.T) {
	inst := newTestInstance(1)

	stack := []runtime.Value{runtime.I32Val(0), runtime.I32Val(42)}
	store := instr.Instruction{Op: opcode.Opcode(0x36)} // i32.store
	require.NoError(t, execMemOp(inst, store, &stack))
	assert.Empty(t, stack)

	stack = []runtime.Value{runtime.I32Val(0)}
	load := instr.Instruction{Op: opcode.Opcode(0x28)} // i32.load
	require.NoError(t, execMemOp(inst, load, &stack))
	require.Len(t, stack, 1)
	assert.Equal(t, int32(42), stack[0].I32)
}

func TestExecMemOp_OutOfBoundsTraps(t *testing.T) {
	inst := newTestInstance(1)
	stack := []runtime.Value{runtime.I32Val(70000)}
	load := instr.Instruction{Op: opcode.Opcode(0x28)}
	err := execMemOp(inst, load, &stack)
	require.Error(t, err)
	var trap *wasmerr.Trap
	require.ErrorAs(t, err, &trap)
	assert.Equal(t, wasmerr.TrapOOBMemory, trap.Kind)
}

func TestExecMemOp_NoMemoryTraps(t *testing.T) {
	inst := &runtime.Instance{}
	stack := []runtime.Value{runtime.I32Val(0)}
	err := execMemOp(inst, instr.Instruction{Op: opcode.Opcode(0x28)}, &stack)
	require.Error(t, err)
}

func TestExecMemOp_I32Store8TruncatesAndLoadsUnsigned(t *testing.T) {
	inst := newTestInstance(1)
	stack := []runtime.Value{runtime.I32Val(0), runtime.I32Val(0x1FF)}
	require.NoError(t, execMemOp(inst, instr.Instruction{Op: opcode.Opcode(0x3A)}, &stack)) // i32.store8

	stack = []runtime.Value{runtime.I32Val(0)}
	require.NoError(t, execMemOp(inst, instr.Instruction{Op: opcode.Opcode(0x2D)}, &stack)) // i32.load8_u
	assert.Equal(t, int32(0xFF), stack[0].I32)
}
