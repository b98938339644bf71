// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package wasm implements the binary-module parser, validator, and
// frozen module representation (spec.md components C4, C5, C6),
// grounded on the section-walking shape of the teacher's
// internal/abi/wasm.go (magic+LEB+custom-section walk) and
// internal/wasmopt/dce.go (section table / rebuild idiom).
package wasm

import (
	"github.com/dotandev/pwasmgo/internal/arena"
	"github.com/dotandev/pwasmgo/internal/instr"
)

// ValueType is a WASM value type tag using the canonical MVP encoding
// resolved from spec.md §9's open question (I32=0x7F, I64=0x7E,
// F32=0x7D, F64=0x7C — not the disagreeing 0x7E/0x7D swap seen in one
// revision of the original source's header).
type ValueType byte

const (
	I32 ValueType = 0x7F
	I64 ValueType = 0x7E
	F32 ValueType = 0x7D
	F64 ValueType = 0x7C
)

func (v ValueType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return "invalid"
	}
}

// IsValueType reports whether b encodes one of the four MVP value types.
func IsValueType(b byte) bool {
	switch ValueType(b) {
	case I32, I64, F32, F64:
		return true
	}
	return false
}

const FuncRef byte = 0x70

// Limits is {min, max?} with min <= max when max is present.
type Limits struct {
	Min    uint32
	HasMax bool
	Max    uint32
}

// FuncType is {params, results}. MVP restricts |results| <= 1.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// TableType is {elem_kind = funcref, limits}.
type TableType struct {
	ElemKind byte
	Limits   Limits
}

// MemType is limits in units of 64 KiB pages.
type MemType struct {
	Limits Limits
}

// GlobalType is {value_type, mutable}.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// ImportKind / ExportKind share the same encoding as the WASM binary format.
type EntityKind byte

const (
	KindFunc   EntityKind = 0
	KindTable  EntityKind = 1
	KindMemory EntityKind = 2
	KindGlobal EntityKind = 3
)

func (k EntityKind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindTable:
		return "table"
	case KindMemory:
		return "memory"
	case KindGlobal:
		return "global"
	default:
		return "invalid"
	}
}

// Import is {module_name, name, kind, discriminant}.
type Import struct {
	ModuleName string
	Name       string
	Kind       EntityKind
	FuncType   uint32 // valid when Kind == KindFunc
	Table      TableType
	Memory     MemType
	Global     GlobalType
}

// Export is {name, kind, index}.
type Export struct {
	Name  string
	Kind  EntityKind
	Index uint32
}

// GlobalDef is a module-defined global: its type plus constant-expression initializer.
type GlobalDef struct {
	Type GlobalType
	Init arena.Slice // slice into Module.Insts
}

// LocalGroup is one (count, value_type) run in a function body's locals vector.
type LocalGroup struct {
	Count uint32
	Type  ValueType
}

// FunctionBody is {type_index, locals, body, frame_size, max_locals}.
type FunctionBody struct {
	TypeIndex uint32
	Locals    arena.Slice // slice into Module.Locals
	Body      arena.Slice // slice into Module.Insts
	FrameSize uint32      // |params| + sum(locals counts)
	MaxLocals uint32      // same as FrameSize; named separately per spec.md §3
}

// ElementSegment is {table_index, offset_expr, funcs[]}.
type ElementSegment struct {
	TableIndex uint32
	OffsetExpr arena.Slice // slice into Module.Insts
	Funcs      arena.Slice // slice into Module.U32s
}

// DataSegment is {memory_index, offset_expr, data}.
type DataSegment struct {
	MemoryIndex uint32
	OffsetExpr  arena.Slice // slice into Module.Insts
	Data        arena.Slice // slice into Module.Bytes
}

// CustomSection is {name, remainder-of-section}.
type CustomSection struct {
	Name string
	Data arena.Slice // slice into Module.Bytes
}

// ImportCounts publishes the per-kind import counts so downstream
// indexers (the linker, the interpreter) can compute effective indices
// without rescanning the import section, per spec.md §4.6.
type ImportCounts struct {
	Func   uint32
	Table  uint32
	Memory uint32
	Global uint32
}
