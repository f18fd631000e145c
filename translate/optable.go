package translate

import (
	"github.com/wippyai/wasm-zkasm/ir"
	"github.com/wippyai/wasm-zkasm/wasm"
)

var binaryOps = map[byte]ir.Opcode{
	wasm.OpI32Add: ir.OpIadd, wasm.OpI64Add: ir.OpIadd,
	wasm.OpI32Sub: ir.OpIsub, wasm.OpI64Sub: ir.OpIsub,
	wasm.OpI32Mul: ir.OpImul, wasm.OpI64Mul: ir.OpImul,
	wasm.OpI32DivU: ir.OpUdiv, wasm.OpI64DivU: ir.OpUdiv,
	wasm.OpI32DivS: ir.OpSdiv, wasm.OpI64DivS: ir.OpSdiv,
	wasm.OpI32RemU: ir.OpUrem, wasm.OpI64RemU: ir.OpUrem,
	wasm.OpI32RemS: ir.OpSrem, wasm.OpI64RemS: ir.OpSrem,
	wasm.OpI32And: ir.OpBand, wasm.OpI64And: ir.OpBand,
	wasm.OpI32Or: ir.OpBor, wasm.OpI64Or: ir.OpBor,
	wasm.OpI32Xor: ir.OpBxor, wasm.OpI64Xor: ir.OpBxor,
	wasm.OpI32Shl: ir.OpIshl, wasm.OpI64Shl: ir.OpIshl,
	wasm.OpI32ShrU: ir.OpUshr, wasm.OpI64ShrU: ir.OpUshr,
	wasm.OpI32ShrS: ir.OpSshr, wasm.OpI64ShrS: ir.OpSshr,
	wasm.OpI32Rotl: ir.OpRotl, wasm.OpI64Rotl: ir.OpRotl,
	wasm.OpI32Rotr: ir.OpRotr, wasm.OpI64Rotr: ir.OpRotr,
}

var unaryOps = map[byte]ir.Opcode{
	wasm.OpI32Clz: ir.OpClz, wasm.OpI64Clz: ir.OpClz,
	wasm.OpI32Ctz: ir.OpCtz, wasm.OpI64Ctz: ir.OpCtz,
	wasm.OpI32Popcnt: ir.OpPopcnt, wasm.OpI64Popcnt: ir.OpPopcnt,
}

var compareOps = map[byte]ir.IntCC{
	wasm.OpI32Eq: ir.IntEqual, wasm.OpI64Eq: ir.IntEqual,
	wasm.OpI32Ne: ir.IntNotEqual, wasm.OpI64Ne: ir.IntNotEqual,
	wasm.OpI32LtS: ir.IntSignedLessThan, wasm.OpI64LtS: ir.IntSignedLessThan,
	wasm.OpI32LtU: ir.IntUnsignedLessThan, wasm.OpI64LtU: ir.IntUnsignedLessThan,
	wasm.OpI32GtS: ir.IntSignedGreaterThan, wasm.OpI64GtS: ir.IntSignedGreaterThan,
	wasm.OpI32GtU: ir.IntUnsignedGreaterThan, wasm.OpI64GtU: ir.IntUnsignedGreaterThan,
	wasm.OpI32LeS: ir.IntSignedLessThanOrEqual, wasm.OpI64LeS: ir.IntSignedLessThanOrEqual,
	wasm.OpI32LeU: ir.IntUnsignedLessThanOrEqual, wasm.OpI64LeU: ir.IntUnsignedLessThanOrEqual,
	wasm.OpI32GeS: ir.IntSignedGreaterThanOrEqual, wasm.OpI64GeS: ir.IntSignedGreaterThanOrEqual,
	wasm.OpI32GeU: ir.IntUnsignedGreaterThanOrEqual, wasm.OpI64GeU: ir.IntUnsignedGreaterThanOrEqual,
}

type memAccess struct {
	typ    ir.Type
	size   uint8
	signed bool
}

var loadAccess = map[byte]memAccess{
	wasm.OpI32Load:    {ir.I32, 4, false},
	wasm.OpI64Load:    {ir.I64, 8, false},
	wasm.OpF32Load:    {ir.F32, 4, false},
	wasm.OpF64Load:    {ir.F64, 8, false},
	wasm.OpI32Load8S:  {ir.I32, 1, true},
	wasm.OpI32Load8U:  {ir.I32, 1, false},
	wasm.OpI32Load16S: {ir.I32, 2, true},
	wasm.OpI32Load16U: {ir.I32, 2, false},
	wasm.OpI64Load8S:  {ir.I64, 1, true},
	wasm.OpI64Load8U:  {ir.I64, 1, false},
	wasm.OpI64Load16S: {ir.I64, 2, true},
	wasm.OpI64Load16U: {ir.I64, 2, false},
	wasm.OpI64Load32S: {ir.I64, 4, true},
	wasm.OpI64Load32U: {ir.I64, 4, false},
}

var storeAccess = map[byte]memAccess{
	wasm.OpI32Store:   {ir.I32, 4, false},
	wasm.OpI64Store:   {ir.I64, 8, false},
	wasm.OpF32Store:   {ir.F32, 4, false},
	wasm.OpF64Store:   {ir.F64, 8, false},
	wasm.OpI32Store8:  {ir.I32, 1, false},
	wasm.OpI32Store16: {ir.I32, 2, false},
	wasm.OpI64Store8:  {ir.I64, 1, false},
	wasm.OpI64Store16: {ir.I64, 2, false},
	wasm.OpI64Store32: {ir.I64, 4, false},
}

// floatSig returns the operand count and result type of a single-byte float
// instruction.
func floatSig(op byte) (int, ir.Type) {
	switch {
	case op >= 0x5B && op <= 0x66: // comparisons
		return 2, ir.I32
	case op >= 0x8B && op <= 0x91:
		return 1, ir.F32
	case op >= 0x92 && op <= 0x98:
		return 2, ir.F32
	case op >= 0x99 && op <= 0x9F:
		return 1, ir.F64
	case op >= 0xA0 && op <= 0xA6:
		return 2, ir.F64
	}
	switch op {
	case 0xA8, 0xA9, 0xAA, 0xAB, wasm.OpI32ReinterpretF32:
		return 1, ir.I32
	case 0xAE, 0xAF, 0xB0, 0xB1, wasm.OpI64ReinterpretF64:
		return 1, ir.I64
	case 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, wasm.OpF32ReinterpretI32:
		return 1, ir.F32
	case 0xB7, 0xB8, 0xB9, 0xBA, wasm.OpF64PromoteF32, wasm.OpF64ReinterpretI64:
		return 1, ir.F64
	}
	return 0, ir.TypeInvalid
}

// truncSatResult returns the result type of a saturating truncation.
func truncSatResult(sub uint32) ir.Type {
	if sub < 4 {
		return ir.I32
	}
	return ir.I64
}
