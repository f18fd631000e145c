package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-zkasm/wasm/internal/binary"
)

// Instruction represents a decoded WebAssembly instruction
type Instruction struct {
	Imm    interface{}
	Opcode byte
}

// BlockImm holds the block type for block, loop and if. Negative values are
// the BlockType* shorthands, non-negative values are type indices.
type BlockImm struct {
	Type int64
}

// BranchImm holds the label index for br and br_if.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table for br_table.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the function index for call.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds type and table indices for call_indirect.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// LocalImm holds the local index for local.get, local.set, local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// TableImm holds the table index for table.get and table.set.
type TableImm struct {
	TableIdx uint32
}

// MemoryImm holds the memarg of loads and stores.
type MemoryImm struct {
	Offset uint64
	Align  uint32
	MemIdx uint32
}

// MemoryIdxImm holds the memory index for memory.size and memory.grow.
type MemoryIdxImm struct {
	MemIdx uint32
}

// I32Imm holds the constant of i32.const.
type I32Imm struct {
	Value int32
}

// I64Imm holds the constant of i64.const.
type I64Imm struct {
	Value int64
}

// F32Imm holds the raw IEEE-754 bits of f32.const.
type F32Imm struct {
	Bits uint32
}

// F64Imm holds the raw IEEE-754 bits of f64.const.
type F64Imm struct {
	Bits uint64
}

// SelectTypeImm holds the value types of a typed select.
type SelectTypeImm struct {
	Types []ValType
}

// RefNullImm holds the reference type of ref.null.
type RefNullImm struct {
	Type ValType
}

// RefFuncImm holds the function index of ref.func.
type RefFuncImm struct {
	FuncIdx uint32
}

// MiscImm holds the sub-opcode and index operands of 0xFC instructions.
type MiscImm struct {
	Operands  []uint32
	SubOpcode uint32
}

// AtomicImm holds the sub-opcode and memarg of 0xFE instructions. MemArg
// is nil for atomic.fence.
type AtomicImm struct {
	MemArg    *MemoryImm
	SubOpcode uint32
}

// IsLoad reports whether op is a memory load.
func IsLoad(op byte) bool {
	return op >= OpI32Load && op <= OpI64Load32U
}

// IsStore reports whether op is a memory store.
func IsStore(op byte) bool {
	return op >= OpI32Store && op <= OpI64Store32
}

// DecodeInstructions decodes a flat instruction sequence.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := binary.NewReader(code)
	instrs := make([]Instruction, 0, len(code)/2)
	for r.Len() > 0 {
		instr, err := decodeInstruction(r)
		if err != nil {
			return nil, r.WrapError("code", err)
		}
		instrs = append(instrs, instr)
	}
	return instrs, nil
}

func decodeInstruction(r *binary.Reader) (Instruction, error) {
	op, err := r.ReadByte()
	if err != nil {
		return Instruction{}, err
	}
	instr := Instruction{Opcode: op}

	switch {
	case op == OpBlock || op == OpLoop || op == OpIf:
		bt, err := r.ReadS33()
		if err != nil {
			return instr, err
		}
		instr.Imm = BlockImm{Type: bt}

	case op == OpBr || op == OpBrIf:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BranchImm{LabelIdx: idx}

	case op == OpBrTable:
		count, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		if int(count) > r.Len() {
			return instr, fmt.Errorf("br_table label count %d exceeds body size", count)
		}
		labels := make([]uint32, count)
		for i := range labels {
			if labels[i], err = r.ReadU32(); err != nil {
				return instr, err
			}
		}
		def, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BrTableImm{Labels: labels, Default: def}

	case op == OpCall:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = CallImm{FuncIdx: idx}

	case op == OpCallIndirect:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		tableIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}

	case op == OpSelectType:
		count, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		types := make([]ValType, 0, count)
		for i := uint32(0); i < count; i++ {
			t, err := r.ReadByte()
			if err != nil {
				return instr, err
			}
			types = append(types, ValType(t))
		}
		instr.Imm = SelectTypeImm{Types: types}

	case op == OpLocalGet || op == OpLocalSet || op == OpLocalTee:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = LocalImm{LocalIdx: idx}

	case op == OpGlobalGet || op == OpGlobalSet:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = GlobalImm{GlobalIdx: idx}

	case op == OpTableGet || op == OpTableSet:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = TableImm{TableIdx: idx}

	case IsLoad(op) || IsStore(op):
		memArg, err := readMemArg(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = memArg

	case op == OpMemorySize || op == OpMemoryGrow:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = MemoryIdxImm{MemIdx: idx}

	case op == OpI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return instr, err
		}
		instr.Imm = I32Imm{Value: v}

	case op == OpI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return instr, err
		}
		instr.Imm = I64Imm{Value: v}

	case op == OpF32Const:
		bits, err := r.ReadU32LE()
		if err != nil {
			return instr, err
		}
		instr.Imm = F32Imm{Bits: bits}

	case op == OpF64Const:
		bits, err := r.ReadU64LE()
		if err != nil {
			return instr, err
		}
		instr.Imm = F64Imm{Bits: bits}

	case op == OpRefNull:
		t, err := r.ReadByte()
		if err != nil {
			return instr, err
		}
		instr.Imm = RefNullImm{Type: ValType(t)}

	case op == OpRefFunc:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = RefFuncImm{FuncIdx: idx}

	case op == OpPrefixMisc:
		imm, err := decodeMiscImmediate(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = imm

	case op == OpPrefixAtomic:
		imm, err := decodeAtomicImmediate(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = imm

	case op == OpPrefixSIMD:
		return instr, fmt.Errorf("SIMD instructions are not supported")

	case isPlainOpcode(op):
		// no immediates

	default:
		return instr, fmt.Errorf("unknown opcode 0x%02x", op)
	}
	return instr, nil
}

func isPlainOpcode(op byte) bool {
	switch op {
	case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn, OpDrop, OpSelect, OpRefIsNull:
		return true
	}
	return op >= OpI32Eqz && op <= OpI64Extend32S
}

// miscOperandCount returns how many index operands follow a 0xFC sub-opcode.
func miscOperandCount(sub uint32) (int, bool) {
	switch {
	case sub <= MiscI64TruncSatF64U:
		return 0, true
	case sub == MiscMemoryInit, sub == MiscMemoryCopy, sub == MiscTableInit, sub == MiscTableCopy:
		return 2, true
	case sub == MiscDataDrop, sub == MiscMemoryFill, sub == MiscElemDrop,
		sub == MiscTableGrow, sub == MiscTableSize, sub == MiscTableFill:
		return 1, true
	}
	return 0, false
}

func decodeMiscImmediate(r *binary.Reader) (MiscImm, error) {
	sub, err := r.ReadU32()
	if err != nil {
		return MiscImm{}, err
	}
	n, ok := miscOperandCount(sub)
	if !ok {
		return MiscImm{}, fmt.Errorf("unknown 0xFC sub-opcode %d", sub)
	}
	imm := MiscImm{SubOpcode: sub}
	for i := 0; i < n; i++ {
		v, err := r.ReadU32()
		if err != nil {
			return imm, err
		}
		imm.Operands = append(imm.Operands, v)
	}
	return imm, nil
}

func decodeAtomicImmediate(r *binary.Reader) (AtomicImm, error) {
	sub, err := r.ReadU32()
	if err != nil {
		return AtomicImm{}, err
	}
	imm := AtomicImm{SubOpcode: sub}
	if sub == AtomicFence {
		if _, err := r.ReadByte(); err != nil {
			return imm, err
		}
		return imm, nil
	}
	memArg, err := readMemArg(r)
	if err != nil {
		return imm, err
	}
	imm.MemArg = &memArg
	return imm, nil
}

func readMemArg(r *binary.Reader) (MemoryImm, error) {
	align, err := r.ReadU32()
	if err != nil {
		return MemoryImm{}, err
	}
	var memIdx uint32
	if align&0x40 != 0 {
		align &^= 0x40
		if memIdx, err = r.ReadU32(); err != nil {
			return MemoryImm{}, err
		}
	}
	offset, err := r.ReadU64()
	if err != nil {
		return MemoryImm{}, err
	}
	return MemoryImm{Align: align, Offset: offset, MemIdx: memIdx}, nil
}

// EncodeInstructions encodes instrs into their binary form.
func EncodeInstructions(instrs []Instruction) []byte {
	w := binary.NewWriter()
	for i := range instrs {
		encodeInstruction(w, &instrs[i])
	}
	return w.Bytes()
}

func encodeInstruction(w *binary.Writer, instr *Instruction) {
	w.Byte(instr.Opcode)

	switch imm := instr.Imm.(type) {
	case BlockImm:
		w.WriteS64(imm.Type)
	case BranchImm:
		w.WriteU32(imm.LabelIdx)
	case BrTableImm:
		w.WriteU32(uint32(len(imm.Labels)))
		for _, l := range imm.Labels {
			w.WriteU32(l)
		}
		w.WriteU32(imm.Default)
	case CallImm:
		w.WriteU32(imm.FuncIdx)
	case CallIndirectImm:
		w.WriteU32(imm.TypeIdx)
		w.WriteU32(imm.TableIdx)
	case SelectTypeImm:
		w.WriteU32(uint32(len(imm.Types)))
		for _, t := range imm.Types {
			w.Byte(byte(t))
		}
	case LocalImm:
		w.WriteU32(imm.LocalIdx)
	case GlobalImm:
		w.WriteU32(imm.GlobalIdx)
	case TableImm:
		w.WriteU32(imm.TableIdx)
	case MemoryImm:
		writeMemArg(w, imm)
	case MemoryIdxImm:
		w.WriteU32(imm.MemIdx)
	case I32Imm:
		w.WriteS32(imm.Value)
	case I64Imm:
		w.WriteS64(imm.Value)
	case F32Imm:
		w.WriteU32LE(imm.Bits)
	case F64Imm:
		w.WriteU64LE(imm.Bits)
	case RefNullImm:
		w.Byte(byte(imm.Type))
	case RefFuncImm:
		w.WriteU32(imm.FuncIdx)
	case MiscImm:
		w.WriteU32(imm.SubOpcode)
		for _, v := range imm.Operands {
			w.WriteU32(v)
		}
	case AtomicImm:
		w.WriteU32(imm.SubOpcode)
		if imm.MemArg != nil {
			writeMemArg(w, *imm.MemArg)
		} else {
			w.Byte(0)
		}
	}
}

func writeMemArg(w *binary.Writer, imm MemoryImm) {
	if imm.MemIdx != 0 {
		w.WriteU32(imm.Align | 0x40)
		w.WriteU32(imm.MemIdx)
	} else {
		w.WriteU32(imm.Align)
	}
	w.WriteU64(imm.Offset)
}
