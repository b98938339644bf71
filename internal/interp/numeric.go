// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package interp

import (
	"math"
	"math/bits"

	"github.com/dotandev/pwasmgo/internal/opcode"
	"github.com/dotandev/pwasmgo/internal/runtime"
	"github.com/dotandev/pwasmgo/internal/wasmerr"
)

// execNumericOp evaluates a comparison, arithmetic, or conversion
// instruction with no memory effect, implementing the WASM MVP's
// wraparound and trapping semantics (spec.md §4.9 / §9).
func execNumericOp(op opcode.Opcode, stackp *[]runtime.Value) error {
	stack := *stackp
	pop := func() runtime.Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	push := func(v runtime.Value) { stack = append(stack, v) }
	defer func() { *stackp = stack }()

	b := byte(op)
	switch {
	case b == 0x45: // i32.eqz
		push(boolI32(pop().I32 == 0))
		return nil
	case b >= 0x46 && b <= 0x4F: // i32 comparisons
		y, x := pop().I32, pop().I32
		push(boolI32(cmpI32(b, x, y)))
		return nil
	case b == 0x50: // i64.eqz
		push(boolI32(pop().I64 == 0))
		return nil
	case b >= 0x51 && b <= 0x5A: // i64 comparisons
		y, x := pop().I64, pop().I64
		push(boolI32(cmpI64(b, x, y)))
		return nil
	case b >= 0x5B && b <= 0x60: // f32 comparisons
		y, x := pop().F32, pop().F32
		push(boolI32(cmpF64(b-0x5B, float64(x), float64(y))))
		return nil
	case b >= 0x61 && b <= 0x66: // f64 comparisons
		y, x := pop().F64, pop().F64
		push(boolI32(cmpF64(b-0x61, x, y)))
		return nil
	case b >= 0x67 && b <= 0x78: // i32 arithmetic
		return execI32Arith(b, &pop, push)
	case b >= 0x79 && b <= 0x8A: // i64 arithmetic
		return execI64Arith(b, &pop, push)
	case b >= 0x8B && b <= 0x98: // f32 arithmetic
		execF32Arith(b, &pop, push)
		return nil
	case b >= 0x99 && b <= 0xA6: // f64 arithmetic
		execF64Arith(b, &pop, push)
		return nil
	case b >= 0xA7 && b <= 0xBF: // conversions
		return execConversion(b, &pop, push)
	}
	return wasmerr.NewParseError(0, wasmerr.InvalidOpcode, "unhandled numeric opcode")
}

func boolI32(v bool) runtime.Value {
	if v {
		return runtime.I32Val(1)
	}
	return runtime.I32Val(0)
}

func cmpI32(op byte, x, y int32) bool {
	ux, uy := uint32(x), uint32(y)
	switch op {
	case 0x46:
		return x == y
	case 0x47:
		return x != y
	case 0x48:
		return x < y
	case 0x49:
		return ux < uy
	case 0x4A:
		return x > y
	case 0x4B:
		return ux > uy
	case 0x4C:
		return x <= y
	case 0x4D:
		return ux <= uy
	case 0x4E:
		return x >= y
	case 0x4F:
		return ux >= uy
	}
	return false
}

func cmpI64(op byte, x, y int64) bool {
	ux, uy := uint64(x), uint64(y)
	switch op {
	case 0x51:
		return x == y
	case 0x52:
		return x != y
	case 0x53:
		return x < y
	case 0x54:
		return ux < uy
	case 0x55:
		return x > y
	case 0x56:
		return ux > uy
	case 0x57:
		return x <= y
	case 0x58:
		return ux <= uy
	case 0x59:
		return x >= y
	case 0x5A:
		return ux >= uy
	}
	return false
}

// cmpF64 shares one table for f32 and f64 comparisons; rel is the
// opcode offset from the group's first member (eq).
func cmpF64(rel byte, x, y float64) bool {
	switch rel {
	case 0:
		return x == y
	case 1:
		return x != y
	case 2:
		return x < y
	case 3:
		return x > y
	case 4:
		return x <= y
	case 5:
		return x >= y
	}
	return false
}

func execI32Arith(op byte, pop *func() runtime.Value, push func(runtime.Value)) error {
	switch op {
	case 0x67: // clz
		x := (*pop)().I32
		push(runtime.I32Val(int32(bits.LeadingZeros32(uint32(x)))))
		return nil
	case 0x68: // ctz
		x := (*pop)().I32
		push(runtime.I32Val(int32(bits.TrailingZeros32(uint32(x)))))
		return nil
	case 0x69: // popcnt
		x := (*pop)().I32
		push(runtime.I32Val(int32(bits.OnesCount32(uint32(x)))))
		return nil
	}
	y, x := (*pop)().I32, (*pop)().I32
	ux, uy := uint32(x), uint32(y)
	switch op {
	case 0x6A:
		push(runtime.I32Val(x + y))
	case 0x6B:
		push(runtime.I32Val(x - y))
	case 0x6C:
		push(runtime.I32Val(x * y))
	case 0x6D: // div_s
		if y == 0 {
			return wasmerr.NewTrap(wasmerr.TrapIntegerDivideByZero, "i32.div_s by zero")
		}
		if x == math.MinInt32 && y == -1 {
			return wasmerr.NewTrap(wasmerr.TrapIntegerOverflow, "i32.div_s overflow")
		}
		push(runtime.I32Val(x / y))
	case 0x6E: // div_u
		if uy == 0 {
			return wasmerr.NewTrap(wasmerr.TrapIntegerDivideByZero, "i32.div_u by zero")
		}
		push(runtime.I32Val(int32(ux / uy)))
	case 0x6F: // rem_s
		if y == 0 {
			return wasmerr.NewTrap(wasmerr.TrapIntegerDivideByZero, "i32.rem_s by zero")
		}
		if x == math.MinInt32 && y == -1 {
			push(runtime.I32Val(0))
		} else {
			push(runtime.I32Val(x % y))
		}
	case 0x70: // rem_u
		if uy == 0 {
			return wasmerr.NewTrap(wasmerr.TrapIntegerDivideByZero, "i32.rem_u by zero")
		}
		push(runtime.I32Val(int32(ux % uy)))
	case 0x71:
		push(runtime.I32Val(x & y))
	case 0x72:
		push(runtime.I32Val(x | y))
	case 0x73:
		push(runtime.I32Val(x ^ y))
	case 0x74:
		push(runtime.I32Val(int32(ux << (uy & 31))))
	case 0x75:
		push(runtime.I32Val(x >> (uy & 31)))
	case 0x76:
		push(runtime.I32Val(int32(ux >> (uy & 31))))
	case 0x77:
		push(runtime.I32Val(int32(bits.RotateLeft32(ux, int(uy&31)))))
	case 0x78:
		push(runtime.I32Val(int32(bits.RotateLeft32(ux, -int(uy&31)))))
	}
	return nil
}

func execI64Arith(op byte, pop *func() runtime.Value, push func(runtime.Value)) error {
	switch op {
	case 0x79: // clz
		x := (*pop)().I64
		push(runtime.I64Val(int64(bits.LeadingZeros64(uint64(x)))))
		return nil
	case 0x7A: // ctz
		x := (*pop)().I64
		push(runtime.I64Val(int64(bits.TrailingZeros64(uint64(x)))))
		return nil
	case 0x7B: // popcnt
		x := (*pop)().I64
		push(runtime.I64Val(int64(bits.OnesCount64(uint64(x)))))
		return nil
	}
	y, x := (*pop)().I64, (*pop)().I64
	ux, uy := uint64(x), uint64(y)
	switch op {
	case 0x7C:
		push(runtime.I64Val(x + y))
	case 0x7D:
		push(runtime.I64Val(x - y))
	case 0x7E:
		push(runtime.I64Val(x * y))
	case 0x7F: // div_s
		if y == 0 {
			return wasmerr.NewTrap(wasmerr.TrapIntegerDivideByZero, "i64.div_s by zero")
		}
		if x == math.MinInt64 && y == -1 {
			return wasmerr.NewTrap(wasmerr.TrapIntegerOverflow, "i64.div_s overflow")
		}
		push(runtime.I64Val(x / y))
	case 0x80: // div_u
		if uy == 0 {
			return wasmerr.NewTrap(wasmerr.TrapIntegerDivideByZero, "i64.div_u by zero")
		}
		push(runtime.I64Val(int64(ux / uy)))
	case 0x81: // rem_s
		if y == 0 {
			return wasmerr.NewTrap(wasmerr.TrapIntegerDivideByZero, "i64.rem_s by zero")
		}
		if x == math.MinInt64 && y == -1 {
			push(runtime.I64Val(0))
		} else {
			push(runtime.I64Val(x % y))
		}
	case 0x82: // rem_u
		if uy == 0 {
			return wasmerr.NewTrap(wasmerr.TrapIntegerDivideByZero, "i64.rem_u by zero")
		}
		push(runtime.I64Val(int64(ux % uy)))
	case 0x83:
		push(runtime.I64Val(x & y))
	case 0x84:
		push(runtime.I64Val(x | y))
	case 0x85:
		push(runtime.I64Val(x ^ y))
	case 0x86:
		push(runtime.I64Val(int64(ux << (uy & 63))))
	case 0x87:
		push(runtime.I64Val(x >> (uy & 63)))
	case 0x88:
		push(runtime.I64Val(int64(ux >> (uy & 63))))
	case 0x89:
		push(runtime.I64Val(int64(bits.RotateLeft64(ux, int(uy&63)))))
	case 0x8A:
		push(runtime.I64Val(int64(bits.RotateLeft64(ux, -int(uy&63)))))
	}
	return nil
}

func execF32Arith(op byte, pop *func() runtime.Value, push func(runtime.Value)) {
	switch op {
	case 0x8B:
		push(runtime.F32Val(float32(math.Abs(float64((*pop)().F32)))))
		return
	case 0x8C:
		push(runtime.F32Val(-(*pop)().F32))
		return
	case 0x8D:
		push(runtime.F32Val(float32(math.Ceil(float64((*pop)().F32)))))
		return
	case 0x8E:
		push(runtime.F32Val(float32(math.Floor(float64((*pop)().F32)))))
		return
	case 0x8F:
		push(runtime.F32Val(float32(math.Trunc(float64((*pop)().F32)))))
		return
	case 0x90:
		push(runtime.F32Val(float32(math.RoundToEven(float64((*pop)().F32)))))
		return
	case 0x91:
		push(runtime.F32Val(float32(math.Sqrt(float64((*pop)().F32)))))
		return
	}
	y, x := (*pop)().F32, (*pop)().F32
	switch op {
	case 0x92:
		push(runtime.F32Val(x + y))
	case 0x93:
		push(runtime.F32Val(x - y))
	case 0x94:
		push(runtime.F32Val(x * y))
	case 0x95:
		push(runtime.F32Val(x / y))
	case 0x96:
		push(runtime.F32Val(float32(math.Min(float64(x), float64(y)))))
	case 0x97:
		push(runtime.F32Val(float32(math.Max(float64(x), float64(y)))))
	case 0x98:
		push(runtime.F32Val(float32(math.Copysign(float64(x), float64(y)))))
	}
}

func execF64Arith(op byte, pop *func() runtime.Value, push func(runtime.Value)) {
	switch op {
	case 0x99:
		push(runtime.F64Val(math.Abs((*pop)().F64)))
		return
	case 0x9A:
		push(runtime.F64Val(-(*pop)().F64))
		return
	case 0x9B:
		push(runtime.F64Val(math.Ceil((*pop)().F64)))
		return
	case 0x9C:
		push(runtime.F64Val(math.Floor((*pop)().F64)))
		return
	case 0x9D:
		push(runtime.F64Val(math.Trunc((*pop)().F64)))
		return
	case 0x9E:
		push(runtime.F64Val(math.RoundToEven((*pop)().F64)))
		return
	case 0x9F:
		push(runtime.F64Val(math.Sqrt((*pop)().F64)))
		return
	}
	y, x := (*pop)().F64, (*pop)().F64
	switch op {
	case 0xA0:
		push(runtime.F64Val(x + y))
	case 0xA1:
		push(runtime.F64Val(x - y))
	case 0xA2:
		push(runtime.F64Val(x * y))
	case 0xA3:
		push(runtime.F64Val(x / y))
	case 0xA4:
		push(runtime.F64Val(math.Min(x, y)))
	case 0xA5:
		push(runtime.F64Val(math.Max(x, y)))
	case 0xA6:
		push(runtime.F64Val(math.Copysign(x, y)))
	}
}

func execConversion(op byte, pop *func() runtime.Value, push func(runtime.Value)) error {
	switch op {
	case 0xA7: // i32.wrap_i64
		push(runtime.I32Val(int32((*pop)().I64)))
	case 0xA8:
		return truncToI32(float64((*pop)().F32), true, push)
	case 0xA9:
		return truncToI32(float64((*pop)().F32), false, push)
	case 0xAA:
		return truncToI32((*pop)().F64, true, push)
	case 0xAB:
		return truncToI32((*pop)().F64, false, push)
	case 0xAC:
		push(runtime.I64Val(int64((*pop)().I32)))
	case 0xAD:
		push(runtime.I64Val(int64(uint32((*pop)().I32))))
	case 0xAE:
		return truncToI64(float64((*pop)().F32), true, push)
	case 0xAF:
		return truncToI64(float64((*pop)().F32), false, push)
	case 0xB0:
		return truncToI64((*pop)().F64, true, push)
	case 0xB1:
		return truncToI64((*pop)().F64, false, push)
	case 0xB2:
		push(runtime.F32Val(float32((*pop)().I32)))
	case 0xB3:
		push(runtime.F32Val(float32(uint32((*pop)().I32))))
	case 0xB4:
		push(runtime.F32Val(float32((*pop)().I64)))
	case 0xB5:
		push(runtime.F32Val(float32(uint64((*pop)().I64))))
	case 0xB6:
		push(runtime.F32Val(float32((*pop)().F64)))
	case 0xB7:
		push(runtime.F64Val(float64((*pop)().I32)))
	case 0xB8:
		push(runtime.F64Val(float64(uint32((*pop)().I32))))
	case 0xB9:
		push(runtime.F64Val(float64((*pop)().I64)))
	case 0xBA:
		push(runtime.F64Val(float64(uint64((*pop)().I64))))
	case 0xBB:
		push(runtime.F64Val(float64((*pop)().F32)))
	case 0xBC:
		push(runtime.I32Val(int32(math.Float32bits((*pop)().F32))))
	case 0xBD:
		push(runtime.I64Val(int64(math.Float64bits((*pop)().F64))))
	case 0xBE:
		push(runtime.F32Val(math.Float32frombits(uint32((*pop)().I32))))
	case 0xBF:
		push(runtime.F64Val(math.Float64frombits(uint64((*pop)().I64))))
	}
	return nil
}

func truncToI32(v float64, signed bool, push func(runtime.Value)) error {
	if math.IsNaN(v) {
		return wasmerr.NewTrap(wasmerr.TrapIntegerOverflow, "trunc of NaN")
	}
	t := math.Trunc(v)
	if signed {
		if t < math.MinInt32 || t > math.MaxInt32 {
			return wasmerr.NewTrap(wasmerr.TrapIntegerOverflow, "i32 trunc out of range")
		}
		push(runtime.I32Val(int32(t)))
	} else {
		if t < 0 || t > math.MaxUint32 {
			return wasmerr.NewTrap(wasmerr.TrapIntegerOverflow, "i32 trunc out of range")
		}
		push(runtime.I32Val(int32(uint32(t))))
	}
	return nil
}

func truncToI64(v float64, signed bool, push func(runtime.Value)) error {
	if math.IsNaN(v) {
		return wasmerr.NewTrap(wasmerr.TrapIntegerOverflow, "trunc of NaN")
	}
	t := math.Trunc(v)
	if signed {
		if t < math.MinInt64 || t >= math.MaxInt64 {
			return wasmerr.NewTrap(wasmerr.TrapIntegerOverflow, "i64 trunc out of range")
		}
		push(runtime.I64Val(int64(t)))
	} else {
		if t < 0 || t >= math.MaxUint64 {
			return wasmerr.NewTrap(wasmerr.TrapIntegerOverflow, "i64 trunc out of range")
		}
		push(runtime.I64Val(int64(uint64(t))))
	}
	return nil
}
