// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package wasm

import (
	"github.com/dotandev/pwasmgo/internal/arena"
	"github.com/dotandev/pwasmgo/internal/instr"
	"github.com/dotandev/pwasmgo/internal/leb"
	"github.com/dotandev/pwasmgo/internal/opcode"
	"github.com/dotandev/pwasmgo/internal/wasmerr"
)

const (
	secCustom   = 0
	secType     = 1
	secImport   = 2
	secFunction = 3
	secTable    = 4
	secMemory   = 5
	secGlobal   = 6
	secExport   = 7
	secStart    = 8
	secElement  = 9
	secCode     = 10
	secData     = 11
)

var wasmMagic = [4]byte{0x00, 0x61, 0x73, 0x6D}
var wasmVersion = [4]byte{0x01, 0x00, 0x00, 0x00}

// ParseModule decodes a binary WASM module (spec.md C4: module_init).
// It returns the frozen Module, the number of bytes consumed from data
// (the whole buffer on success), and a classified error with 0 bytes
// consumed on failure.
func ParseModule(data []byte, mc *wasmerr.MemCtx) (*Module, int, error) {
	if len(data) < 8 {
		err := wasmerr.NewParseError(0, wasmerr.TruncatedStream, "module shorter than header")
		mc.Report(err)
		return nil, 0, err
	}
	for i := 0; i < 4; i++ {
		if data[i] != wasmMagic[i] || data[4+i] != wasmVersion[i] {
			err := wasmerr.NewParseError(0, wasmerr.BadMagicOrVersion, "bad magic or unsupported version")
			mc.Report(err)
			return nil, 0, err
		}
	}

	b := newBuilder()
	pos := 8
	lastNonCustom := -1
	funcSectionCount := -1
	codeSectionSeen := false

	for pos < len(data) {
		id := data[pos]
		idPos := pos
		pos++
		length, n := leb.DecodeU32(data[pos:])
		if n == 0 {
			err := wasmerr.NewParseError(pos, wasmerr.MalformedLEB, "bad section length")
			mc.Report(err)
			return nil, 0, err
		}
		pos += n
		end := pos + int(length)
		if end > len(data) || end < pos {
			err := wasmerr.NewParseError(pos, wasmerr.TruncatedStream, "section length overruns buffer")
			mc.Report(err)
			return nil, 0, err
		}
		payload := data[pos:end]

		if id != secCustom {
			if int(id) <= lastNonCustom {
				kind := wasmerr.BadSectionOrder
				if int(id) == lastNonCustom {
					kind = wasmerr.DuplicateSection
				}
				err := wasmerr.NewParseError(idPos, kind, "section out of canonical order")
				mc.Report(err)
				return nil, 0, err
			}
			lastNonCustom = int(id)
		}
		b.sectionOrder = append(b.sectionOrder, id)

		var err error
		switch id {
		case secCustom:
			err = parseCustomSection(b, payload)
		case secType:
			err = parseTypeSection(b, payload)
		case secImport:
			err = parseImportSection(b, payload)
		case secFunction:
			funcSectionCount, err = parseFunctionSection(b, payload)
		case secTable:
			err = parseTableSection(b, payload)
		case secMemory:
			err = parseMemorySection(b, payload)
		case secGlobal:
			err = parseGlobalSection(b, payload)
		case secExport:
			err = parseExportSection(b, payload)
		case secStart:
			err = parseStartSection(b, payload)
		case secElement:
			err = parseElementSection(b, payload)
		case secCode:
			codeSectionSeen = true
			err = parseCodeSection(b, payload)
		case secData:
			err = parseDataSection(b, payload)
		default:
			err = wasmerr.NewParseError(idPos, wasmerr.InvalidOpcode, "unknown section id")
		}
		if err != nil {
			mc.Report(err)
			return nil, 0, err
		}
		pos = end
	}

	definedFuncs := b.functions.Len()
	if funcSectionCount >= 0 && definedFuncs != b.code.Len() {
		err := wasmerr.NewParseError(pos, wasmerr.LengthMismatch, "function and code section counts differ")
		mc.Report(err)
		return nil, 0, err
	}
	if funcSectionCount < 0 && codeSectionSeen && b.code.Len() != 0 {
		err := wasmerr.NewParseError(pos, wasmerr.LengthMismatch, "code section present without function section")
		mc.Report(err)
		return nil, 0, err
	}

	return b.freeze(), pos, nil
}

func parseCustomSection(b *builder, payload []byte) error {
	name, n := leb.ParseName(payload)
	if n == 0 {
		return wasmerr.NewParseError(0, wasmerr.InvalidUTF8Name, "bad custom section name")
	}
	data := b.bytes.PushAll(payload[n:])
	b.customs.Push(CustomSection{Name: name, Data: data})
	return nil
}

func parseTypeSection(b *builder, payload []byte) error {
	count, n := leb.DecodeU32(payload)
	if n == 0 {
		return wasmerr.NewParseError(0, wasmerr.MalformedLEB, "bad type section count")
	}
	pos := n
	for i := uint32(0); i < count; i++ {
		if pos >= len(payload) || payload[pos] != 0x60 {
			return wasmerr.NewParseError(pos, wasmerr.InvalidOpcode, "expected func type tag 0x60")
		}
		pos++
		params, m, err := parseValTypeVec(payload[pos:])
		if err != nil {
			return err
		}
		pos += m
		results, m2, err := parseValTypeVec(payload[pos:])
		if err != nil {
			return err
		}
		pos += m2
		b.types.Push(FuncType{Params: params, Results: results})
	}
	return nil
}

func parseValTypeVec(payload []byte) ([]ValueType, int, error) {
	count, n := leb.DecodeU32(payload)
	if n == 0 {
		return nil, 0, wasmerr.NewParseError(0, wasmerr.MalformedLEB, "bad value-type vector count")
	}
	pos := n
	out := make([]ValueType, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos >= len(payload) || !IsValueType(payload[pos]) {
			return nil, 0, wasmerr.NewParseError(pos, wasmerr.InvalidOpcode, "bad value type byte")
		}
		out = append(out, ValueType(payload[pos]))
		pos++
	}
	return out, pos, nil
}

func parseLimits(payload []byte) (Limits, int, error) {
	if len(payload) == 0 {
		return Limits{}, 0, wasmerr.NewParseError(0, wasmerr.TruncatedStream, "missing limits flag")
	}
	flag := payload[0]
	pos := 1
	min, n := leb.DecodeU32(payload[pos:])
	if n == 0 {
		return Limits{}, 0, wasmerr.NewParseError(pos, wasmerr.MalformedLEB, "bad limits min")
	}
	pos += n
	switch flag {
	case 0x00:
		return Limits{Min: min}, pos, nil
	case 0x01:
		max, m := leb.DecodeU32(payload[pos:])
		if m == 0 {
			return Limits{}, 0, wasmerr.NewParseError(pos, wasmerr.MalformedLEB, "bad limits max")
		}
		pos += m
		return Limits{Min: min, HasMax: true, Max: max}, pos, nil
	default:
		return Limits{}, 0, wasmerr.NewParseError(0, wasmerr.InvalidOpcode, "bad limits flag")
	}
}

func parseTableType(payload []byte) (TableType, int, error) {
	if len(payload) == 0 || payload[0] != FuncRef {
		return TableType{}, 0, wasmerr.NewParseError(0, wasmerr.InvalidOpcode, "expected funcref elem kind")
	}
	lim, n, err := parseLimits(payload[1:])
	if err != nil {
		return TableType{}, 0, err
	}
	return TableType{ElemKind: FuncRef, Limits: lim}, n + 1, nil
}

func parseGlobalType(payload []byte) (GlobalType, int, error) {
	if len(payload) < 2 || !IsValueType(payload[0]) {
		return GlobalType{}, 0, wasmerr.NewParseError(0, wasmerr.InvalidOpcode, "bad global value type")
	}
	mut := payload[1]
	if mut != 0x00 && mut != 0x01 {
		return GlobalType{}, 0, wasmerr.NewParseError(1, wasmerr.InvalidOpcode, "bad global mutability flag")
	}
	return GlobalType{ValType: ValueType(payload[0]), Mutable: mut == 0x01}, 2, nil
}

func parseImportSection(b *builder, payload []byte) error {
	count, n := leb.DecodeU32(payload)
	if n == 0 {
		return wasmerr.NewParseError(0, wasmerr.MalformedLEB, "bad import section count")
	}
	pos := n
	for i := uint32(0); i < count; i++ {
		modName, m := leb.ParseName(payload[pos:])
		if m == 0 {
			return wasmerr.NewParseError(pos, wasmerr.InvalidUTF8Name, "bad import module name")
		}
		pos += m
		name, m2 := leb.ParseName(payload[pos:])
		if m2 == 0 {
			return wasmerr.NewParseError(pos, wasmerr.InvalidUTF8Name, "bad import name")
		}
		pos += m2
		if pos >= len(payload) {
			return wasmerr.NewParseError(pos, wasmerr.TruncatedStream, "missing import kind")
		}
		kind := EntityKind(payload[pos])
		pos++
		imp := Import{ModuleName: modName, Name: name, Kind: kind}
		switch kind {
		case KindFunc:
			idx, m3 := leb.DecodeU32(payload[pos:])
			if m3 == 0 {
				return wasmerr.NewParseError(pos, wasmerr.MalformedLEB, "bad func import type index")
			}
			pos += m3
			imp.FuncType = idx
			b.counts.Func++
		case KindTable:
			tt, m3, err := parseTableType(payload[pos:])
			if err != nil {
				return err
			}
			pos += m3
			imp.Table = tt
			b.counts.Table++
		case KindMemory:
			mt, m3, err := parseLimits(payload[pos:])
			if err != nil {
				return err
			}
			pos += m3
			imp.Memory = MemType{Limits: mt}
			b.counts.Memory++
		case KindGlobal:
			gt, m3, err := parseGlobalType(payload[pos:])
			if err != nil {
				return err
			}
			pos += m3
			imp.Global = gt
			b.counts.Global++
		default:
			return wasmerr.NewParseError(pos-1, wasmerr.InvalidOpcode, "bad import kind")
		}
		b.imports.Push(imp)
	}
	return nil
}

func parseFunctionSection(b *builder, payload []byte) (int, error) {
	count, n := leb.DecodeU32(payload)
	if n == 0 {
		return -1, wasmerr.NewParseError(0, wasmerr.MalformedLEB, "bad function section count")
	}
	pos := n
	for i := uint32(0); i < count; i++ {
		idx, m := leb.DecodeU32(payload[pos:])
		if m == 0 {
			return -1, wasmerr.NewParseError(pos, wasmerr.MalformedLEB, "bad function type index")
		}
		pos += m
		b.functions.Push(idx)
	}
	return int(count), nil
}

func parseTableSection(b *builder, payload []byte) error {
	count, n := leb.DecodeU32(payload)
	if n == 0 {
		return wasmerr.NewParseError(0, wasmerr.MalformedLEB, "bad table section count")
	}
	pos := n
	for i := uint32(0); i < count; i++ {
		tt, m, err := parseTableType(payload[pos:])
		if err != nil {
			return err
		}
		pos += m
		b.tables.Push(tt)
	}
	return nil
}

func parseMemorySection(b *builder, payload []byte) error {
	count, n := leb.DecodeU32(payload)
	if n == 0 {
		return wasmerr.NewParseError(0, wasmerr.MalformedLEB, "bad memory section count")
	}
	pos := n
	for i := uint32(0); i < count; i++ {
		lim, m, err := parseLimits(payload[pos:])
		if err != nil {
			return err
		}
		pos += m
		b.memories.Push(MemType{Limits: lim})
	}
	return nil
}

func parseGlobalSection(b *builder, payload []byte) error {
	count, n := leb.DecodeU32(payload)
	if n == 0 {
		return wasmerr.NewParseError(0, wasmerr.MalformedLEB, "bad global section count")
	}
	pos := n
	for i := uint32(0); i < count; i++ {
		gt, m, err := parseGlobalType(payload[pos:])
		if err != nil {
			return err
		}
		pos += m
		init, m2, err := parseExpr(b, payload[pos:], true)
		if err != nil {
			return err
		}
		pos += m2
		b.globals.Push(GlobalDef{Type: gt, Init: init})
	}
	return nil
}

func parseExportSection(b *builder, payload []byte) error {
	count, n := leb.DecodeU32(payload)
	if n == 0 {
		return wasmerr.NewParseError(0, wasmerr.MalformedLEB, "bad export section count")
	}
	pos := n
	for i := uint32(0); i < count; i++ {
		name, m := leb.ParseName(payload[pos:])
		if m == 0 {
			return wasmerr.NewParseError(pos, wasmerr.InvalidUTF8Name, "bad export name")
		}
		pos += m
		if pos >= len(payload) {
			return wasmerr.NewParseError(pos, wasmerr.TruncatedStream, "missing export kind")
		}
		kind := EntityKind(payload[pos])
		pos++
		idx, m2 := leb.DecodeU32(payload[pos:])
		if m2 == 0 {
			return wasmerr.NewParseError(pos, wasmerr.MalformedLEB, "bad export index")
		}
		pos += m2
		b.exports.Push(Export{Name: name, Kind: kind, Index: idx})
	}
	return nil
}

func parseStartSection(b *builder, payload []byte) error {
	idx, n := leb.DecodeU32(payload)
	if n == 0 {
		return wasmerr.NewParseError(0, wasmerr.MalformedLEB, "bad start function index")
	}
	b.hasStart = true
	b.startIndex = idx
	return nil
}

func parseElementSection(b *builder, payload []byte) error {
	count, n := leb.DecodeU32(payload)
	if n == 0 {
		return wasmerr.NewParseError(0, wasmerr.MalformedLEB, "bad element section count")
	}
	pos := n
	for i := uint32(0); i < count; i++ {
		tableIdx, m := leb.DecodeU32(payload[pos:])
		if m == 0 {
			return wasmerr.NewParseError(pos, wasmerr.MalformedLEB, "bad element table index")
		}
		pos += m
		offset, m2, err := parseExpr(b, payload[pos:], true)
		if err != nil {
			return err
		}
		pos += m2
		count2, m3 := leb.DecodeU32(payload[pos:])
		if m3 == 0 {
			return wasmerr.NewParseError(pos, wasmerr.MalformedLEB, "bad element func vector count")
		}
		pos += m3
		funcs := make([]uint32, 0, count2)
		for j := uint32(0); j < count2; j++ {
			fidx, m4 := leb.DecodeU32(payload[pos:])
			if m4 == 0 {
				return wasmerr.NewParseError(pos, wasmerr.MalformedLEB, "bad element func index")
			}
			pos += m4
			funcs = append(funcs, fidx)
		}
		b.elements.Push(ElementSegment{TableIndex: tableIdx, OffsetExpr: offset, Funcs: b.u32s.PushAll(funcs)})
	}
	return nil
}

func parseCodeSection(b *builder, payload []byte) error {
	count, n := leb.DecodeU32(payload)
	if n == 0 {
		return wasmerr.NewParseError(0, wasmerr.MalformedLEB, "bad code section count")
	}
	pos := n
	for i := uint32(0); i < count; i++ {
		bodySize, m := leb.DecodeU32(payload[pos:])
		if m == 0 {
			return wasmerr.NewParseError(pos, wasmerr.MalformedLEB, "bad function body size")
		}
		pos += m
		bodyStart := pos
		bodyEnd := bodyStart + int(bodySize)
		if bodyEnd > len(payload) || bodyEnd < bodyStart {
			return wasmerr.NewParseError(pos, wasmerr.TruncatedStream, "function body overruns code section")
		}
		region := payload[bodyStart:bodyEnd]

		localCount, m2 := leb.DecodeU32(region)
		if m2 == 0 {
			return wasmerr.NewParseError(bodyStart, wasmerr.MalformedLEB, "bad local group count")
		}
		lpos := m2
		var typeIdx, frameSize uint32
		if i < uint32(b.functions.Len()) {
			typeIdx = b.functions.At(i)
			if typeIdx < uint32(b.types.Len()) {
				frameSize = uint32(len(b.types.At(typeIdx).Params))
			}
		}
		groups := make([]LocalGroup, 0, localCount)
		for g := uint32(0); g < localCount; g++ {
			cnt, m3 := leb.DecodeU32(region[lpos:])
			if m3 == 0 {
				return wasmerr.NewParseError(bodyStart+lpos, wasmerr.MalformedLEB, "bad local group run count")
			}
			lpos += m3
			if lpos >= len(region) || !IsValueType(region[lpos]) {
				return wasmerr.NewParseError(bodyStart+lpos, wasmerr.InvalidOpcode, "bad local value type")
			}
			vt := ValueType(region[lpos])
			lpos++
			groups = append(groups, LocalGroup{Count: cnt, Type: vt})
			frameSize += cnt
		}
		localsSlice := b.locals.PushAll(groups)

		bodyInsts, consumed, err := parseExpr(b, region[lpos:], false)
		if err != nil {
			return err
		}
		if lpos+consumed != len(region) {
			return wasmerr.NewParseError(bodyStart+lpos+consumed, wasmerr.LengthMismatch, "function body size mismatch")
		}

		b.code.Push(FunctionBody{
			TypeIndex: typeIdx,
			Locals:    localsSlice,
			Body:      bodyInsts,
			FrameSize: frameSize,
			MaxLocals: frameSize,
		})
		pos = bodyEnd
	}
	return nil
}

func parseDataSection(b *builder, payload []byte) error {
	count, n := leb.DecodeU32(payload)
	if n == 0 {
		return wasmerr.NewParseError(0, wasmerr.MalformedLEB, "bad data section count")
	}
	pos := n
	for i := uint32(0); i < count; i++ {
		memIdx, m := leb.DecodeU32(payload[pos:])
		if m == 0 {
			return wasmerr.NewParseError(pos, wasmerr.MalformedLEB, "bad data memory index")
		}
		pos += m
		offset, m2, err := parseExpr(b, payload[pos:], true)
		if err != nil {
			return err
		}
		pos += m2
		size, m3 := leb.DecodeU32(payload[pos:])
		if m3 == 0 {
			return wasmerr.NewParseError(pos, wasmerr.MalformedLEB, "bad data byte count")
		}
		pos += m3
		end := pos + int(size)
		if end > len(payload) || end < pos {
			return wasmerr.NewParseError(pos, wasmerr.TruncatedStream, "data segment overruns data section")
		}
		b.dataSegs.Push(DataSegment{MemoryIndex: memIdx, OffsetExpr: offset, Data: b.bytes.PushAll(payload[pos:end])})
		pos = end
	}
	return nil
}

// parseExpr walks instructions starting at data[0] until the matching
// terminal `end`, pushing each instruction into the shared arena and
// returning the slice describing the run plus bytes consumed (spec.md
// §4.4: depth increments on block|loop|if, decrements on end, the
// expression ends when depth returns to 0 at an end). When constOnly,
// only instructions the opcode table marks ConstOK are permitted
// (spec.md §3 inv. 7; the semantic half of that invariant — that a
// global.get must reference an imported immutable global — is checked
// by the validator).
func parseExpr(b *builder, data []byte, constOnly bool) (arena.Slice, int, error) {
	start := b.insts.Len()
	depth := 0
	pos := 0
	for {
		inst, n, err := instr.Decode(data[pos:], &b.u32s)
		if err != nil {
			return arena.Slice{}, 0, wasmerr.NewParseError(pos, classifyInstrErr(err), "bad instruction")
		}
		if constOnly && !opcode.Lookup(byte(inst.Op)).ConstOK {
			return arena.Slice{}, 0, wasmerr.NewParseError(pos, wasmerr.InvalidOpcode, "opcode not allowed in constant expression")
		}
		b.insts.Push(inst)
		pos += n
		switch inst.Op {
		case opcode.Block, opcode.Loop, opcode.If:
			depth++
		case opcode.End:
			if depth == 0 {
				return arena.Slice{Offset: uint32(start), Length: uint32(b.insts.Len() - start)}, pos, nil
			}
			depth--
		}
		if pos > len(data) {
			return arena.Slice{}, 0, wasmerr.NewParseError(pos, wasmerr.TruncatedStream, "expression runs past end of region")
		}
	}
}

func classifyInstrErr(err error) wasmerr.ParseErrorKind {
	switch err {
	case instr.ErrInvalidOpcode, instr.ErrCallIndirectRes, instr.ErrBadBlockType:
		return wasmerr.InvalidOpcode
	default:
		return wasmerr.MalformedLEB
	}
}
