// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package interp

import (
	"testing"

	"github.com/dotandev/pwasmgo/internal/opcode"
	"github.com/dotandev/pwasmgo/internal/runtime"
	"github.com/dotandev/pwasmgo/internal/wasmerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecNumericOp_I32Add(t *testing.T) {
	stack := []runtime.Value{runtime.I32Val(2), runtime.I32Val(3)}
	require.NoError(t, execNumericOp(opcode.Opcode(0x6A), &stack)) // i32.add
	require.Len(t, stack, 1)
	assert.Equal(t, int32(5), stack[0].I32)
}

func TestExecNumericOp_I32DivSByZeroTraps(t *testing.T) {
	stack := []runtime.Value{runtime.I32Val(10), runtime.I32Val(0)}
	err := execNumericOp(opcode.Opcode(0x6D), &stack) // i32.div_s
	require.Error(t, err)
	trap, ok := wasmerr.IsTrap(err)
	require.True(t, ok)
	assert.Equal(t, wasmerr.TrapIntegerDivideByZero, trap.Kind)
}

func TestExecNumericOp_I32DivSMinByNegOneOverflows(t *testing.T) {
	stack := []runtime.Value{runtime.I32Val(-2147483648), runtime.I32Val(-1)}
	err := execNumericOp(opcode.Opcode(0x6D), &stack)
	trap, ok := wasmerr.IsTrap(err)
	require.True(t, ok)
	assert.Equal(t, wasmerr.TrapIntegerOverflow, trap.Kind)
}

func TestExecNumericOp_I32RemSMinByNegOneIsZero(t *testing.T) {
	stack := []runtime.Value{runtime.I32Val(-2147483648), runtime.I32Val(-1)}
	require.NoError(t, execNumericOp(opcode.Opcode(0x6F), &stack)) // i32.rem_s
	assert.Equal(t, int32(0), stack[0].I32)
}

func TestExecNumericOp_I32RotlWraps(t *testing.T) {
	stack := []runtime.Value{runtime.I32Val(int32(uint32(0x80000000))), runtime.I32Val(1)}
	require.NoError(t, execNumericOp(opcode.Opcode(0x77), &stack)) // i32.rotl
	assert.Equal(t, int32(1), stack[0].I32)
}

func TestExecNumericOp_F64Comparisons(t *testing.T) {
	stack := []runtime.Value{runtime.F64Val(1.5), runtime.F64Val(2.5)}
	require.NoError(t, execNumericOp(opcode.Opcode(0x63), &stack)) // f64.lt
	assert.Equal(t, int32(1), stack[0].I32)
}

func TestExecNumericOp_I32TruncF64SOutOfRangeTraps(t *testing.T) {
	stack := []runtime.Value{runtime.F64Val(1e20)}
	err := execNumericOp(opcode.Opcode(0xAA), &stack) // i32.trunc_f64_s
	trap, ok := wasmerr.IsTrap(err)
	require.True(t, ok)
	assert.Equal(t, wasmerr.TrapIntegerOverflow, trap.Kind)
}

func TestExecNumericOp_I64ExtendI32U(t *testing.T) {
	stack := []runtime.Value{runtime.I32Val(-1)}
	require.NoError(t, execNumericOp(opcode.Opcode(0xAD), &stack)) // i64.extend_i32_u
	assert.Equal(t, int64(0xFFFFFFFF), stack[0].I64)
}

func TestExecNumericOp_F32ReinterpretI32RoundTrip(t *testing.T) {
	stack := []runtime.Value{runtime.F32Val(3.25)}
	require.NoError(t, execNumericOp(opcode.Opcode(0xBC), &stack)) // i32.reinterpret_f32
	require.NoError(t, execNumericOp(opcode.Opcode(0xBE), &stack)) // f32.reinterpret_i32
	assert.Equal(t, float32(3.25), stack[0].F32)
}
