// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package wasmerr is the classified result/error taxonomy spec.md §7
// calls for: Parse, Validate, Link, Runtime trap, and Resource errors.
// It is adapted from the teacher's internal/errors sentinel+Wrap*
// pattern (internal/errors/errors.go) — string "kind" values compared
// against the Kind/CheckKind field of an error found with errors.As
// (IsTrap does this for traps), concrete error structs that carry the
// structured detail (offset, index, trap kind) spec.md asks for, and a
// thin on_error(text) callback shim for the outer C-API boundary rather
// than the primary error-reporting mechanism.
package wasmerr

import (
	"errors"
	"fmt"
)

// ParseErrorKind classifies a parse-time failure (spec.md §7).
type ParseErrorKind string

const (
	TruncatedStream  ParseErrorKind = "truncated_stream"
	MalformedLEB     ParseErrorKind = "malformed_leb"
	InvalidOpcode    ParseErrorKind = "invalid_opcode"
	BadSectionOrder  ParseErrorKind = "bad_section_order"
	DuplicateSection ParseErrorKind = "duplicate_section"
	LengthMismatch   ParseErrorKind = "length_mismatch"
	InvalidUTF8Name  ParseErrorKind = "invalid_utf8_name"
	BadMagicOrVersion ParseErrorKind = "bad_magic_or_version"
)

// ParseError reports where and why parsing failed.
type ParseError struct {
	Offset int
	Kind   ParseErrorKind
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s (%s)", e.Offset, e.Msg, e.Kind)
}

// NewParseError constructs a ParseError.
func NewParseError(offset int, kind ParseErrorKind, msg string) *ParseError {
	return &ParseError{Offset: offset, Kind: kind, Msg: msg}
}

// ValidateErrorKind classifies a post-parse validation failure.
type ValidateErrorKind string

const (
	IndexOutOfRange          ValidateErrorKind = "index_out_of_range"
	ArityMismatch            ValidateErrorKind = "arity_mismatch"
	ConstExprViolation       ValidateErrorKind = "const_expr_violation"
	LimitsViolation          ValidateErrorKind = "limits_violation"
	StartSignatureMismatch   ValidateErrorKind = "start_signature_mismatch"
	CallIndirectMissingTable ValidateErrorKind = "call_indirect_missing_table"
	BranchDepthExceeded      ValidateErrorKind = "branch_depth_exceeded"
	AlignmentExceedsNatural  ValidateErrorKind = "alignment_exceeds_natural"
)

// ValidateError reports which check failed and at what index.
type ValidateError struct {
	CheckKind ValidateErrorKind
	Index     int
	Msg       string
}

func (e *ValidateError) Error() string {
	return fmt.Sprintf("validation failed: %s at index %d: %s", e.CheckKind, e.Index, e.Msg)
}

// NewValidateError constructs a ValidateError.
func NewValidateError(kind ValidateErrorKind, index int, msg string) *ValidateError {
	return &ValidateError{CheckKind: kind, Index: index, Msg: msg}
}

// LinkErrorKind classifies a registration/instantiation failure.
type LinkErrorKind string

const (
	ImportNotFound      LinkErrorKind = "import_not_found"
	ImportTypeMismatch  LinkErrorKind = "import_type_mismatch"
	LimitsIncompatible  LinkErrorKind = "limits_incompatible"
	StartFunctionTrapped LinkErrorKind = "start_function_trapped"
	ABIVersionIncompatible LinkErrorKind = "abi_version_incompatible"
)

// LinkError reports why registration of a module or native module failed.
type LinkError struct {
	Kind LinkErrorKind
	Msg  string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link error: %s: %s", e.Kind, e.Msg)
}

// NewLinkError constructs a LinkError.
func NewLinkError(kind LinkErrorKind, msg string) *LinkError {
	return &LinkError{Kind: kind, Msg: msg}
}

// TrapKind enumerates the runtime trap taxonomy of spec.md §7, adapted
// from the shape of the teacher's trace.TrapType enum
// (internal/trace/trap.go) but with WASM-specific members.
type TrapKind string

const (
	TrapUnreachable               TrapKind = "unreachable"
	TrapIntegerDivideByZero       TrapKind = "integer_divide_by_zero"
	TrapIntegerOverflow           TrapKind = "integer_overflow"
	TrapOOBMemory                 TrapKind = "out_of_bounds_memory"
	TrapOOBTable                  TrapKind = "out_of_bounds_table"
	TrapIndirectCallTypeMismatch  TrapKind = "indirect_call_type_mismatch"
	TrapNullIndirect              TrapKind = "null_indirect"
	TrapStackOverflow             TrapKind = "stack_overflow"
)

// Trap is a runtime failure that aborts the current call and restores
// the operand stack to its entry position (spec.md §4.9/§5).
type Trap struct {
	Kind TrapKind
	Msg  string
}

func (t *Trap) Error() string {
	if t.Msg == "" {
		return fmt.Sprintf("trap: %s", t.Kind)
	}
	return fmt.Sprintf("trap: %s: %s", t.Kind, t.Msg)
}

// NewTrap constructs a Trap.
func NewTrap(kind TrapKind, msg string) *Trap {
	return &Trap{Kind: kind, Msg: msg}
}

// ErrAllocation is the sentinel Resource error (spec.md §7).
var ErrAllocation = errors.New("wasmerr: allocation failure")

// IsTrap reports whether err is (or wraps) a *Trap, and returns it.
func IsTrap(err error) (*Trap, bool) {
	var t *Trap
	if errors.As(err, &t) {
		return t, true
	}
	return nil, false
}

// MemCtx is the host-substitutable memory/error-reporting interface of
// spec.md §5: "memory allocation flows through a single memory-context
// interface {realloc(ptr, new_size), on_error(text)}". Go's allocator is
// GC-managed; OnError is the on_error(text) compatibility shim.
type MemCtx struct {
	// Realloc is carried in the struct only: no parser, arena or
	// instantiation path calls it, so setting it has no effect and
	// ErrAllocation is never produced by this module.
	Realloc func(newSize int) error
	// OnError is invoked with a short human-readable message whenever
	// ParseModule or an Environment's AddModule, AddNative or Call is
	// about to return a failure. The Environment's memory, global and
	// table accessors return their errors without invoking it.
	OnError func(text string)
}

// Report invokes mc.OnError, if set, with err's message. It is safe to
// call with a nil MemCtx.
func (mc *MemCtx) Report(err error) {
	if mc == nil || mc.OnError == nil || err == nil {
		return
	}
	mc.OnError(err.Error())
}
