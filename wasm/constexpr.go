package wasm

import "fmt"

// ConstKind identifies the form of a constant expression.
type ConstKind byte

const (
	ConstI32 ConstKind = iota
	ConstI64
	ConstF32
	ConstF64
	ConstGlobalGet
	ConstRefNull
	ConstRefFunc
)

// ConstExpr is an evaluated single-instruction constant expression, as used
// by global initializers and segment offsets.
type ConstExpr struct {
	Bits  uint64 // two's complement or IEEE-754 bit pattern
	Index uint32 // global or function index
	Kind  ConstKind
}

// Int64 returns the value of an integer constant, sign-extended.
func (c ConstExpr) Int64() int64 {
	if c.Kind == ConstI32 {
		return int64(int32(uint32(c.Bits)))
	}
	return int64(c.Bits)
}

// EvalConstExpr decodes a constant expression consisting of one instruction
// followed by end. Extended constant expressions are not supported.
func EvalConstExpr(expr []byte) (ConstExpr, error) {
	instrs, err := DecodeInstructions(expr)
	if err != nil {
		return ConstExpr{}, err
	}
	if len(instrs) != 2 || instrs[1].Opcode != OpEnd {
		return ConstExpr{}, fmt.Errorf("unsupported constant expression of %d instructions", len(instrs))
	}
	switch imm := instrs[0].Imm.(type) {
	case I32Imm:
		return ConstExpr{Kind: ConstI32, Bits: uint64(uint32(imm.Value))}, nil
	case I64Imm:
		return ConstExpr{Kind: ConstI64, Bits: uint64(imm.Value)}, nil
	case F32Imm:
		return ConstExpr{Kind: ConstF32, Bits: uint64(imm.Bits)}, nil
	case F64Imm:
		return ConstExpr{Kind: ConstF64, Bits: imm.Bits}, nil
	case GlobalImm:
		if instrs[0].Opcode == OpGlobalGet {
			return ConstExpr{Kind: ConstGlobalGet, Index: imm.GlobalIdx}, nil
		}
	case RefNullImm:
		return ConstExpr{Kind: ConstRefNull}, nil
	case RefFuncImm:
		return ConstExpr{Kind: ConstRefFunc, Index: imm.FuncIdx}, nil
	}
	return ConstExpr{}, fmt.Errorf("opcode 0x%02x is not a constant instruction", instrs[0].Opcode)
}

// ConstI32Expr returns the encoded expression `i32.const v; end`.
func ConstI32Expr(v int32) []byte {
	return EncodeInstructions([]Instruction{{Opcode: OpI32Const, Imm: I32Imm{Value: v}}, {Opcode: OpEnd}})
}

// ConstI64Expr returns the encoded expression `i64.const v; end`.
func ConstI64Expr(v int64) []byte {
	return EncodeInstructions([]Instruction{{Opcode: OpI64Const, Imm: I64Imm{Value: v}}, {Opcode: OpEnd}})
}
