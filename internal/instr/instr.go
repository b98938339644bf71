// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package instr decodes a single WASM instruction (opcode + immediate)
// from a byte cursor, consulting the opcode package's 256-entry metadata
// table for the immediate's shape. It is adapted from the per-opcode
// switch in the teacher's WAT disassembler (internal/wat/disassembler.go
// decodeOpcode), generalized from "produce a printable mnemonic" to
// "produce the typed immediate the validator and interpreter consume".
package instr

import (
	"errors"

	"github.com/dotandev/pwasmgo/internal/arena"
	"github.com/dotandev/pwasmgo/internal/leb"
	"github.com/dotandev/pwasmgo/internal/opcode"
)

// Decode errors, classified per spec.md §7's parse taxonomy.
var (
	ErrTruncated       = errors.New("instr: truncated stream")
	ErrInvalidOpcode   = errors.New("instr: invalid opcode")
	ErrBadBlockType    = errors.New("instr: bad block type")
	ErrBadImmediate    = errors.New("instr: truncated immediate")
	ErrCallIndirectRes = errors.New("instr: call_indirect reserved byte must be 0x00")
)

// BlockType is the decoded signature of a block/loop/if.
type BlockType struct {
	Void       bool
	ValType    byte  // valid when !Void && !MultiValue
	MultiValue bool  // type-index block type; not MVP, decoded but rejected by the validator
	TypeIndex  int64 // valid when MultiValue
}

// MemArg is the (align, offset) pair carried by memory instructions.
type MemArg struct {
	Align  uint32
	Offset uint32
}

// BrTableImm is br_table's label vector plus its default label. Labels
// is a slice into the module's shared u32 arena, per spec.md §4.4's
// "branch-table labels are stored in the u32 arena".
type BrTableImm struct {
	Labels  arena.Slice
	Default uint32
}

// Instruction is {opcode, immediate}. Exactly one of the Immediate
// fields is meaningful, selected by Imm (the opcode table's ImmKind for
// Op, mirrored here so callers need not re-look-up the table).
type Instruction struct {
	Op  opcode.Opcode
	Imm opcode.ImmKind

	Block        BlockType
	Idx          uint32 // label / func / local / global index
	Mem          MemArg
	CallIndirect uint32 // type index (reserved byte is checked, not stored)
	BrTable      BrTableImm
	I32          int32
	I64          int64
	F32          float32
	F64          float64
}

// Decode reads one instruction from data[0:]. u32s is the shared arena
// vector that br_table label lists are appended to. It returns the
// decoded instruction and the number of bytes consumed, or a classified
// error with 0 bytes consumed.
func Decode(data []byte, u32s *arena.Vector[uint32]) (Instruction, int, error) {
	if len(data) == 0 {
		return Instruction{}, 0, ErrTruncated
	}
	op := opcode.Opcode(data[0])
	info := opcode.Lookup(byte(op))
	if !info.Valid {
		return Instruction{}, 0, ErrInvalidOpcode
	}
	pos := 1
	inst := Instruction{Op: op, Imm: info.Imm}

	switch info.Imm {
	case opcode.ImmNone:
		// nothing to do

	case opcode.ImmBlockType:
		bt, n, err := decodeBlockType(data[pos:])
		if err != nil {
			return Instruction{}, 0, err
		}
		inst.Block = bt
		pos += n

	case opcode.ImmLabelIdx, opcode.ImmFuncIdx, opcode.ImmLocalIdx, opcode.ImmGlobalIdx:
		idx, n := leb.DecodeU32(data[pos:])
		if n == 0 {
			return Instruction{}, 0, ErrBadImmediate
		}
		inst.Idx = idx
		pos += n

	case opcode.ImmBrTable:
		count, n := leb.DecodeU32(data[pos:])
		if n == 0 {
			return Instruction{}, 0, ErrBadImmediate
		}
		pos += n
		labels := make([]uint32, 0, count)
		for i := uint32(0); i < count; i++ {
			lbl, m := leb.DecodeU32(data[pos:])
			if m == 0 {
				return Instruction{}, 0, ErrBadImmediate
			}
			labels = append(labels, lbl)
			pos += m
		}
		def, m := leb.DecodeU32(data[pos:])
		if m == 0 {
			return Instruction{}, 0, ErrBadImmediate
		}
		pos += m
		inst.BrTable = BrTableImm{Labels: u32s.PushAll(labels), Default: def}

	case opcode.ImmCallIndirect:
		typeIdx, n := leb.DecodeU32(data[pos:])
		if n == 0 {
			return Instruction{}, 0, ErrBadImmediate
		}
		pos += n
		if pos >= len(data) {
			return Instruction{}, 0, ErrBadImmediate
		}
		if data[pos] != 0x00 {
			return Instruction{}, 0, ErrCallIndirectRes
		}
		pos++
		inst.CallIndirect = typeIdx

	case opcode.ImmMemArg:
		align, n1 := leb.DecodeU32(data[pos:])
		if n1 == 0 {
			return Instruction{}, 0, ErrBadImmediate
		}
		pos += n1
		offset, n2 := leb.DecodeU32(data[pos:])
		if n2 == 0 {
			return Instruction{}, 0, ErrBadImmediate
		}
		pos += n2
		inst.Mem = MemArg{Align: align, Offset: offset}

	case opcode.ImmMemIdx:
		if pos >= len(data) || data[pos] != 0x00 {
			return Instruction{}, 0, ErrBadImmediate
		}
		pos++

	case opcode.ImmI32Const:
		v, n := leb.DecodeI32(data[pos:])
		if n == 0 {
			return Instruction{}, 0, ErrBadImmediate
		}
		inst.I32 = v
		pos += n

	case opcode.ImmI64Const:
		v, n := leb.DecodeI64(data[pos:])
		if n == 0 {
			return Instruction{}, 0, ErrBadImmediate
		}
		inst.I64 = v
		pos += n

	case opcode.ImmF32Const:
		v, n := leb.DecodeF32(data[pos:])
		if n == 0 {
			return Instruction{}, 0, ErrBadImmediate
		}
		inst.F32 = v
		pos += n

	case opcode.ImmF64Const:
		v, n := leb.DecodeF64(data[pos:])
		if n == 0 {
			return Instruction{}, 0, ErrBadImmediate
		}
		inst.F64 = v
		pos += n
	}

	return inst, pos, nil
}

func decodeBlockType(data []byte) (BlockType, int, error) {
	if len(data) == 0 {
		return BlockType{}, 0, ErrBadBlockType
	}
	switch data[0] {
	case 0x40:
		return BlockType{Void: true}, 1, nil
	case 0x7F, 0x7E, 0x7D, 0x7C:
		return BlockType{ValType: data[0]}, 1, nil
	default:
		idx, n := leb.DecodeI32(data)
		if n == 0 {
			return BlockType{}, 0, ErrBadBlockType
		}
		return BlockType{MultiValue: true, TypeIndex: int64(idx)}, n, nil
	}
}
