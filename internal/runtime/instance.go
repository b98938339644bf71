// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"sync"

	"github.com/dotandev/pwasmgo/internal/wasm"
	"github.com/dotandev/pwasmgo/internal/wasmerr"
)

const pageSize = 65536

// Memory is one linear memory, grown in whole 64 KiB pages.
type Memory struct {
	mu   sync.RWMutex
	Data []byte
	Max  uint32 // page count Grow may reach; newMemory sets 65536 when the module declares no maximum
}

func newMemory(t wasm.MemType) *Memory {
	m := &Memory{Data: make([]byte, int(t.Limits.Min)*pageSize)}
	if t.Limits.HasMax {
		m.Max = t.Limits.Max
	} else {
		m.Max = 65536
	}
	return m
}

// Pages returns the current size in 64 KiB pages.
func (m *Memory) Pages() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint32(len(m.Data) / pageSize)
}

// Grow appends delta pages, returning the previous page count, or -1 if
// the growth would exceed Max (spec.md C7 mem_grow never traps; it
// signals failure via this sentinel, matching the memory.grow
// instruction's own failure contract).
func (m *Memory) Grow(delta uint32) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := uint32(len(m.Data) / pageSize)
	if uint64(prev)+uint64(delta) > uint64(m.Max) {
		return -1
	}
	m.Data = append(m.Data, make([]byte, int(delta)*pageSize)...)
	return int32(prev)
}

// Load copies n bytes starting at effective address addr into dst,
// trapping TrapOOBMemory on any out-of-bounds access (spec.md §4.9).
func (m *Memory) Load(addr uint64, dst []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	end := addr + uint64(len(dst))
	if end > uint64(len(m.Data)) || end < addr {
		return wasmerr.NewTrap(wasmerr.TrapOOBMemory, "memory load out of bounds")
	}
	copy(dst, m.Data[addr:end])
	return nil
}

// Store copies src into memory starting at effective address addr.
func (m *Memory) Store(addr uint64, src []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := addr + uint64(len(src))
	if end > uint64(len(m.Data)) || end < addr {
		return wasmerr.NewTrap(wasmerr.TrapOOBMemory, "memory store out of bounds")
	}
	copy(m.Data[addr:end], src)
	return nil
}

// FuncRef identifies a callable function: either one defined or
// imported by a registered module (ModHandle != 0), or a native host
// function (Native != nil). Exactly one is set.
type FuncRef struct {
	ModHandle Handle
	FuncIndex uint32
	Native    *NativeFunc
}

func (f FuncRef) IsZero() bool { return f.ModHandle == 0 && f.Native == nil }

// Table is an indirect-call table of funcrefs, nil entries denoting
// "no element" (calling one traps TrapNullIndirect).
type Table struct {
	mu     sync.RWMutex
	Elems  []*FuncRef
	Max    uint32
}

func newTable(t wasm.TableType) *Table {
	tbl := &Table{Elems: make([]*FuncRef, t.Limits.Min)}
	if t.Limits.HasMax {
		tbl.Max = t.Limits.Max
	} else {
		tbl.Max = ^uint32(0)
	}
	return tbl
}

func (t *Table) Get(idx uint32) (*FuncRef, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(idx) >= len(t.Elems) {
		return nil, wasmerr.NewTrap(wasmerr.TrapOOBTable, "table index out of bounds")
	}
	return t.Elems[idx], nil
}

func (t *Table) set(idx uint32, ref *FuncRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Elems[idx] = ref
}

// GlobalValue is a mutable cell holding a module-defined or imported
// global's current value.
type GlobalValue struct {
	mu    sync.RWMutex
	Type  wasm.GlobalType
	Value Value
}

func (g *GlobalValue) Get() Value {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.Value
}

func (g *GlobalValue) Set(v Value) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Value = v
}

// Instance is a fully linked, instantiated module: its frozen code plus
// the concrete memory/table/global cells and resolved function index
// space (imports first, then module-defined functions), per spec.md C8.
type Instance struct {
	Module  *wasm.Module
	Memory  *Memory // nil if the module declares no memory
	Table   *Table  // nil if the module declares no table
	Globals []*GlobalValue
	Funcs   []FuncRef // one per entry in the function index space
}

// Export resolves a name to its (kind, index) pair.
func (inst *Instance) Export(name string) (wasm.Export, bool) {
	for _, e := range inst.Module.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return wasm.Export{}, false
}
