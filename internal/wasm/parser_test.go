// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package wasm

import (
	"testing"

	"github.com/dotandev/pwasmgo/internal/wasmerr"
	"github.com/stretchr/testify/require"
)

// leb128U encodes an unsigned LEB128 value, smallest-case friendly for
// the small counts/indices these fixtures use.
func leb128U(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

func section(id byte, payload []byte) []byte {
	out := []byte{id}
	out = append(out, leb128U(uint32(len(payload)))...)
	return append(out, payload...)
}

// buildIdentityModule returns the bytes of a module exporting a single
// function `id(i32) -> i32` that returns its argument unchanged:
// local.get 0; end
func buildIdentityModule() []byte {
	data := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

	typeSec := section(secType, append(leb128U(1),
		append([]byte{0x60, 0x01, byte(I32), 0x01, byte(I32)})...))
	data = append(data, typeSec...)

	funcSec := section(secFunction, append(leb128U(1), leb128U(0)...))
	data = append(data, funcSec...)

	exportName := []byte("id")
	exportPayload := append(leb128U(1), append(leb128U(uint32(len(exportName))), exportName...)...)
	exportPayload = append(exportPayload, byte(KindFunc))
	exportPayload = append(exportPayload, leb128U(0)...)
	data = append(data, section(secExport, exportPayload)...)

	body := []byte{0x20, 0x00, 0x0B} // local.get 0; end
	fn := append(leb128U(0), body...) // 0 local groups, then body
	fnWithSize := append(leb128U(uint32(len(fn))), fn...)
	codePayload := append(leb128U(1), fnWithSize...)
	data = append(data, section(secCode, codePayload)...)

	return data
}

func TestParseModule_IdentityFunctionRoundTrips(t *testing.T) {
	mod, n, err := ParseModule(buildIdentityModule(), &wasmerr.MemCtx{})
	require.NoError(t, err)
	require.Equal(t, len(buildIdentityModule()), n)
	require.Len(t, mod.Types, 1)
	require.Equal(t, []ValueType{I32}, mod.Types[0].Params)
	require.Equal(t, []ValueType{I32}, mod.Types[0].Results)
	require.Len(t, mod.Functions, 1)
	require.Len(t, mod.Code, 1)
	require.Len(t, mod.Exports, 1)
	require.Equal(t, "id", mod.Exports[0].Name)
	require.Equal(t, KindFunc, mod.Exports[0].Kind)
}

func TestParseModule_RejectsBadMagic(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x00, 0x01, 0x00, 0x00, 0x00}
	_, _, err := ParseModule(data, &wasmerr.MemCtx{})
	require.Error(t, err)
}

func TestParseModule_RejectsTruncatedHeader(t *testing.T) {
	_, _, err := ParseModule([]byte{0x00, 0x61, 0x73}, &wasmerr.MemCtx{})
	require.Error(t, err)
}

func TestParseModule_RejectsSectionsOutOfOrder(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	// export section (7) before type section (1): out of canonical order.
	data = append(data, section(secExport, leb128U(0))...)
	data = append(data, section(secType, leb128U(0))...)
	_, _, err := ParseModule(data, &wasmerr.MemCtx{})
	require.Error(t, err)
}

func TestParseModule_RejectsFunctionCodeCountMismatch(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	data = append(data, section(secType, append(leb128U(1), []byte{0x60, 0x00, 0x00}...))...)
	data = append(data, section(secFunction, append(leb128U(1), leb128U(0)...))...)
	// no code section at all: function/code count mismatch (1 vs 0).
	_, _, err := ParseModule(data, &wasmerr.MemCtx{})
	require.Error(t, err)
}
