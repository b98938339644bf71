// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package opcode defines the WebAssembly 1.0 (MVP) opcode space as a sum
// type plus a static 256-entry metadata table, adapted from the
// opcode-to-mnemonic mapping in the teacher's WAT disassembler
// (internal/wat/disassembler.go's decodeOpcode switch). Opcodes
// 0x00..0xBF are populated per the MVP; 0xC0..0xFF are reserved for
// later proposals (sign-extension, SIMD, ...) and are out of scope here.
package opcode

// Opcode is a single WASM instruction opcode byte.
type Opcode byte

// ImmKind classifies the immediate operand(s) that follow an opcode.
type ImmKind int

const (
	ImmNone ImmKind = iota
	ImmBlockType
	ImmLabelIdx    // br, br_if: single u32 label index
	ImmBrTable     // br_table: vector of label indices + default
	ImmFuncIdx     // call
	ImmCallIndirect // call_indirect: type index + reserved byte
	ImmLocalIdx
	ImmGlobalIdx
	ImmMemArg // align, offset
	ImmMemIdx // memory.size / memory.grow: reserved 0x00 byte
	ImmI32Const
	ImmI64Const
	ImmF32Const
	ImmF64Const
)

// Info is the per-opcode metadata the decoder and validator consult.
type Info struct {
	Name       string
	Imm        ImmKind
	Valid      bool
	ConstOK    bool // usable inside a constant expression (§3 inv. 7)
	IsControl  bool // block/loop/if/else/end: affects control depth
}

// Well-known opcodes referenced by name from the interpreter and validator.
const (
	Unreachable  Opcode = 0x00
	Nop          Opcode = 0x01
	Block        Opcode = 0x02
	Loop         Opcode = 0x03
	If           Opcode = 0x04
	Else         Opcode = 0x05
	End          Opcode = 0x0B
	Br           Opcode = 0x0C
	BrIf         Opcode = 0x0D
	BrTable      Opcode = 0x0E
	Return       Opcode = 0x0F
	Call         Opcode = 0x10
	CallIndirect Opcode = 0x11
	Drop         Opcode = 0x1A
	Select       Opcode = 0x1B
	LocalGet     Opcode = 0x20
	LocalSet     Opcode = 0x21
	LocalTee     Opcode = 0x22
	GlobalGet    Opcode = 0x23
	GlobalSet    Opcode = 0x24
	MemorySize   Opcode = 0x3F
	MemoryGrow   Opcode = 0x40
	I32Const     Opcode = 0x41
	I64Const     Opcode = 0x42
	F32Const     Opcode = 0x43
	F64Const     Opcode = 0x44
)

// Table is the static 256-entry opcode metadata table.
var Table [256]Info

func reg(op Opcode, name string, imm ImmKind, constOK, control bool) {
	Table[op] = Info{Name: name, Imm: imm, Valid: true, ConstOK: constOK, IsControl: control}
}

func init() {
	for i := range Table {
		Table[i] = Info{Name: "invalid", Imm: ImmNone, Valid: false}
	}

	reg(Unreachable, "unreachable", ImmNone, false, false)
	reg(Nop, "nop", ImmNone, false, false)
	reg(Block, "block", ImmBlockType, false, true)
	reg(Loop, "loop", ImmBlockType, false, true)
	reg(If, "if", ImmBlockType, false, true)
	reg(Else, "else", ImmNone, false, true)
	reg(End, "end", ImmNone, true, true)
	reg(Br, "br", ImmLabelIdx, false, false)
	reg(BrIf, "br_if", ImmLabelIdx, false, false)
	reg(BrTable, "br_table", ImmBrTable, false, false)
	reg(Return, "return", ImmNone, false, false)
	reg(Call, "call", ImmFuncIdx, false, false)
	reg(CallIndirect, "call_indirect", ImmCallIndirect, false, false)

	reg(Drop, "drop", ImmNone, false, false)
	reg(Select, "select", ImmNone, false, false)

	reg(LocalGet, "local.get", ImmLocalIdx, false, false)
	reg(LocalSet, "local.set", ImmLocalIdx, false, false)
	reg(LocalTee, "local.tee", ImmLocalIdx, false, false)
	reg(GlobalGet, "global.get", ImmGlobalIdx, true, false)
	reg(GlobalSet, "global.set", ImmGlobalIdx, false, false)

	loads := []struct {
		op   byte
		name string
	}{
		{0x28, "i32.load"}, {0x29, "i64.load"}, {0x2A, "f32.load"}, {0x2B, "f64.load"},
		{0x2C, "i32.load8_s"}, {0x2D, "i32.load8_u"}, {0x2E, "i32.load16_s"}, {0x2F, "i32.load16_u"},
		{0x30, "i64.load8_s"}, {0x31, "i64.load8_u"}, {0x32, "i64.load16_s"}, {0x33, "i64.load16_u"},
		{0x34, "i64.load32_s"}, {0x35, "i64.load32_u"},
		{0x36, "i32.store"}, {0x37, "i64.store"}, {0x38, "f32.store"}, {0x39, "f64.store"},
		{0x3A, "i32.store8"}, {0x3B, "i32.store16"},
		{0x3C, "i64.store8"}, {0x3D, "i64.store16"}, {0x3E, "i64.store32"},
	}
	for _, l := range loads {
		reg(Opcode(l.op), l.name, ImmMemArg, false, false)
	}
	reg(MemorySize, "memory.size", ImmMemIdx, false, false)
	reg(MemoryGrow, "memory.grow", ImmMemIdx, false, false)

	reg(I32Const, "i32.const", ImmI32Const, true, false)
	reg(I64Const, "i64.const", ImmI64Const, true, false)
	reg(F32Const, "f32.const", ImmF32Const, true, false)
	reg(F64Const, "f64.const", ImmF64Const, true, false)

	// Comparisons and numeric ops carry no immediate.
	noImm := []struct {
		lo, hi byte
		names  []string
	}{
		{0x45, 0x4F, []string{
			"i32.eqz", "i32.eq", "i32.ne", "i32.lt_s", "i32.lt_u", "i32.gt_s", "i32.gt_u",
			"i32.le_s", "i32.le_u", "i32.ge_s", "i32.ge_u",
		}},
		{0x50, 0x5A, []string{
			"i64.eqz", "i64.eq", "i64.ne", "i64.lt_s", "i64.lt_u", "i64.gt_s", "i64.gt_u",
			"i64.le_s", "i64.le_u", "i64.ge_s", "i64.ge_u",
		}},
		{0x5B, 0x60, []string{"f32.eq", "f32.ne", "f32.lt", "f32.gt", "f32.le", "f32.ge"}},
		{0x61, 0x66, []string{"f64.eq", "f64.ne", "f64.lt", "f64.gt", "f64.le", "f64.ge"}},
		{0x67, 0x78, []string{
			"i32.clz", "i32.ctz", "i32.popcnt", "i32.add", "i32.sub", "i32.mul", "i32.div_s",
			"i32.div_u", "i32.rem_s", "i32.rem_u", "i32.and", "i32.or", "i32.xor", "i32.shl",
			"i32.shr_s", "i32.shr_u", "i32.rotl", "i32.rotr",
		}},
		{0x79, 0x8A, []string{
			"i64.clz", "i64.ctz", "i64.popcnt", "i64.add", "i64.sub", "i64.mul", "i64.div_s",
			"i64.div_u", "i64.rem_s", "i64.rem_u", "i64.and", "i64.or", "i64.xor", "i64.shl",
			"i64.shr_s", "i64.shr_u", "i64.rotl", "i64.rotr",
		}},
		{0x8B, 0x98, []string{
			"f32.abs", "f32.neg", "f32.ceil", "f32.floor", "f32.trunc", "f32.nearest", "f32.sqrt",
			"f32.add", "f32.sub", "f32.mul", "f32.div", "f32.min", "f32.max", "f32.copysign",
		}},
		{0x99, 0xA6, []string{
			"f64.abs", "f64.neg", "f64.ceil", "f64.floor", "f64.trunc", "f64.nearest", "f64.sqrt",
			"f64.add", "f64.sub", "f64.mul", "f64.div", "f64.min", "f64.max", "f64.copysign",
		}},
	}
	for _, grp := range noImm {
		for i, op := 0, grp.lo; op <= grp.hi; i, op = i+1, op+1 {
			reg(Opcode(op), grp.names[i], ImmNone, false, false)
		}
	}

	conversions := map[byte]string{
		0xA7: "i32.wrap_i64",
		0xA8: "i32.trunc_f32_s", 0xA9: "i32.trunc_f32_u",
		0xAA: "i32.trunc_f64_s", 0xAB: "i32.trunc_f64_u",
		0xAC: "i64.extend_i32_s", 0xAD: "i64.extend_i32_u",
		0xAE: "i64.trunc_f32_s", 0xAF: "i64.trunc_f32_u",
		0xB0: "i64.trunc_f64_s", 0xB1: "i64.trunc_f64_u",
		0xB2: "f32.convert_i32_s", 0xB3: "f32.convert_i32_u",
		0xB4: "f32.convert_i64_s", 0xB5: "f32.convert_i64_u",
		0xB6: "f32.demote_f64",
		0xB7: "f64.convert_i32_s", 0xB8: "f64.convert_i32_u",
		0xB9: "f64.convert_i64_s", 0xBA: "f64.convert_i64_u",
		0xBB: "f64.promote_f32",
		0xBC: "i32.reinterpret_f32", 0xBD: "i64.reinterpret_f64",
		0xBE: "f32.reinterpret_i32", 0xBF: "f64.reinterpret_i64",
	}
	for op, name := range conversions {
		reg(Opcode(op), name, ImmNone, false, false)
	}
}

// Lookup returns the metadata for op.
func Lookup(op byte) Info { return Table[op] }
