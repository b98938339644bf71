// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package runtime is the execution environment (spec.md C7/C8): module
// and native-module registration behind opaque handles, import
// resolution and instantiation, and the memory/global/table/call
// surface the interpreter and JIT backends both sit behind. It is
// adapted from the teacher's daemon/session handle-table idiom,
// generalized from process handles to WASM module handles.
package runtime

import "github.com/dotandev/pwasmgo/internal/wasm"

// Value is a tagged WASM value. Go's interpreter and JIT backends both
// pass values by this small struct rather than by interface{}, keeping
// numeric dispatch a plain switch instead of a type assertion.
type Value struct {
	Type wasm.ValueType
	I32  int32
	I64  int64
	F32  float32
	F64  float64
}

func I32Val(v int32) Value { return Value{Type: wasm.I32, I32: v} }
func I64Val(v int64) Value { return Value{Type: wasm.I64, I64: v} }
func F32Val(v float32) Value { return Value{Type: wasm.F32, F32: v} }
func F64Val(v float64) Value { return Value{Type: wasm.F64, F64: v} }

// ZeroValue returns the default-initialized value for vt, used for
// locals that have no explicit initializer (spec.md §4.5).
func ZeroValue(vt wasm.ValueType) Value {
	switch vt {
	case wasm.I32:
		return I32Val(0)
	case wasm.I64:
		return I64Val(0)
	case wasm.F32:
		return F32Val(0)
	case wasm.F64:
		return F64Val(0)
	default:
		return Value{}
	}
}
