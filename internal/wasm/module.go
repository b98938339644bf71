// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package wasm

import (
	"github.com/dotandev/pwasmgo/internal/arena"
	"github.com/dotandev/pwasmgo/internal/instr"
)

// Module is the frozen, read-only representation of a parsed WASM
// module (spec.md C6). All index-space vectors hold only the
// module-defined entities; imported entities of the same kind occupy
// the index space *before* them, counted by Imports (spec.md §4.6).
type Module struct {
	Types     []FuncType
	Imports   []Import
	Functions []uint32 // type index per module-defined function, parallel to Code
	Tables    []TableType
	Memories  []MemType
	Globals   []GlobalDef
	Exports   []Export
	Elements  []ElementSegment
	DataSegs  []DataSegment
	Customs   []CustomSection
	Code      []FunctionBody

	HasStart   bool
	StartIndex uint32

	ImportCounts ImportCounts

	// SectionOrder records the section ids encountered, in stream order,
	// including repeatable custom sections (id 0).
	SectionOrder []byte

	// Shared backing arenas referenced by the arena.Slice fields above.
	Insts  []instr.Instruction
	U32s   []uint32
	Locals []LocalGroup
	Bytes  []byte
}

// InstsOf returns the instruction run s refers to.
func (m *Module) InstsOf(s arena.Slice) []instr.Instruction { return arena.Of(m.Insts, s) }

// U32sOf returns the uint32 run s refers to.
func (m *Module) U32sOf(s arena.Slice) []uint32 { return arena.Of(m.U32s, s) }

// LocalsOf returns the local-group run s refers to.
func (m *Module) LocalsOf(s arena.Slice) []LocalGroup { return arena.Of(m.Locals, s) }

// BytesOf returns the byte run s refers to.
func (m *Module) BytesOf(s arena.Slice) []byte { return arena.Of(m.Bytes, s) }

// FuncCount is the total function index space: imported + defined.
func (m *Module) FuncCount() int { return int(m.ImportCounts.Func) + len(m.Functions) }

// TypeOfFunc returns the signature of the function at the given index
// in the combined (imports-then-defined) function index space. ok is
// false when idx is out of range.
func (m *Module) TypeOfFunc(idx uint32) (FuncType, bool) {
	if int(idx) < int(m.ImportCounts.Func) {
		i := 0
		for _, imp := range m.Imports {
			if imp.Kind != KindFunc {
				continue
			}
			if uint32(i) == idx {
				if int(imp.FuncType) >= len(m.Types) {
					return FuncType{}, false
				}
				return m.Types[imp.FuncType], true
			}
			i++
		}
		return FuncType{}, false
	}
	defIdx := int(idx) - int(m.ImportCounts.Func)
	if defIdx < 0 || defIdx >= len(m.Functions) {
		return FuncType{}, false
	}
	typeIdx := m.Functions[defIdx]
	if int(typeIdx) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[typeIdx], true
}

// TableCount / MemoryCount / GlobalCount mirror FuncCount for the other
// three index spaces.
func (m *Module) TableCount() int  { return int(m.ImportCounts.Table) + len(m.Tables) }
func (m *Module) MemoryCount() int { return int(m.ImportCounts.Memory) + len(m.Memories) }
func (m *Module) GlobalCount() int { return int(m.ImportCounts.Global) + len(m.Globals) }

// builder accumulates a Module's arenas while the section stream is
// being walked, mirroring the "grow then freeze" idiom of the teacher's
// dce.go section rebuilder.
type builder struct {
	types     arena.Vector[FuncType]
	imports   arena.Vector[Import]
	functions arena.Vector[uint32]
	tables    arena.Vector[TableType]
	memories  arena.Vector[MemType]
	globals   arena.Vector[GlobalDef]
	exports   arena.Vector[Export]
	elements  arena.Vector[ElementSegment]
	dataSegs  arena.Vector[DataSegment]
	customs   arena.Vector[CustomSection]
	code      arena.Vector[FunctionBody]

	insts  arena.Vector[instr.Instruction]
	u32s   arena.Vector[uint32]
	locals arena.Vector[LocalGroup]
	bytes  arena.Vector[byte]

	hasStart   bool
	startIndex uint32

	counts ImportCounts

	sectionOrder []byte
}

func newBuilder() *builder { return &builder{} }

func (b *builder) freeze() *Module {
	return &Module{
		Types:        b.types.Freeze(),
		Imports:      b.imports.Freeze(),
		Functions:    b.functions.Freeze(),
		Tables:       b.tables.Freeze(),
		Memories:     b.memories.Freeze(),
		Globals:      b.globals.Freeze(),
		Exports:      b.exports.Freeze(),
		Elements:     b.elements.Freeze(),
		DataSegs:     b.dataSegs.Freeze(),
		Customs:      b.customs.Freeze(),
		Code:         b.code.Freeze(),
		HasStart:     b.hasStart,
		StartIndex:   b.startIndex,
		ImportCounts: b.counts,
		SectionOrder: b.sectionOrder,
		Insts:        b.insts.Freeze(),
		U32s:         b.u32s.Freeze(),
		Locals:       b.locals.Freeze(),
		Bytes:        b.bytes.Freeze(),
	}
}
