package ir

// Opcode identifies an IR instruction.
type Opcode uint8

const (
	OpNop Opcode = iota
	OpIconst
	OpFconst
	OpIadd
	OpIsub
	OpImul
	OpUdiv
	OpSdiv
	OpUrem
	OpSrem
	OpBand
	OpBor
	OpBxor
	OpIshl
	OpUshr
	OpSshr
	OpRotl
	OpRotr
	OpClz
	OpCtz
	OpPopcnt
	OpIcmp
	OpSelect
	OpUextend
	OpSextend
	OpIreduce
	OpLoad
	OpStore
	OpGlobalValue
	OpUseVar
	OpDefVar
	OpCall
	OpCallIndirect
	OpAssertEq
	OpFloat
	OpReturn
	OpJump
	OpBrif
	OpBrTable
	OpTrap
)

var opcodeNames = [...]string{
	OpNop:          "nop",
	OpIconst:       "iconst",
	OpFconst:       "fconst",
	OpIadd:         "iadd",
	OpIsub:         "isub",
	OpImul:         "imul",
	OpUdiv:         "udiv",
	OpSdiv:         "sdiv",
	OpUrem:         "urem",
	OpSrem:         "srem",
	OpBand:         "band",
	OpBor:          "bor",
	OpBxor:         "bxor",
	OpIshl:         "ishl",
	OpUshr:         "ushr",
	OpSshr:         "sshr",
	OpRotl:         "rotl",
	OpRotr:         "rotr",
	OpClz:          "clz",
	OpCtz:          "ctz",
	OpPopcnt:       "popcnt",
	OpIcmp:         "icmp",
	OpSelect:       "select",
	OpUextend:      "uextend",
	OpSextend:      "sextend",
	OpIreduce:      "ireduce",
	OpLoad:         "load",
	OpStore:        "store",
	OpGlobalValue:  "global_value",
	OpUseVar:       "use_var",
	OpDefVar:       "def_var",
	OpCall:         "call",
	OpCallIndirect: "call_indirect",
	OpAssertEq:     "assert_eq",
	OpFloat:        "float",
	OpReturn:       "return",
	OpJump:         "jump",
	OpBrif:         "brif",
	OpBrTable:      "br_table",
	OpTrap:         "trap",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return "unknown"
}

// IsTerminator reports whether op ends a block.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpReturn, OpJump, OpBrif, OpBrTable, OpTrap:
		return true
	}
	return false
}

// IntCC is an integer comparison condition.
type IntCC uint8

const (
	IntEqual IntCC = iota
	IntNotEqual
	IntSignedLessThan
	IntSignedGreaterThanOrEqual
	IntSignedGreaterThan
	IntSignedLessThanOrEqual
	IntUnsignedLessThan
	IntUnsignedGreaterThanOrEqual
	IntUnsignedGreaterThan
	IntUnsignedLessThanOrEqual
)

var intCCNames = [...]string{"eq", "ne", "slt", "sge", "sgt", "sle", "ult", "uge", "ugt", "ule"}

func (cc IntCC) String() string {
	if int(cc) < len(intCCNames) {
		return intCCNames[cc]
	}
	return "unknown"
}

// Signed reports whether cc compares operands as signed integers.
func (cc IntCC) Signed() bool {
	return cc >= IntSignedLessThan && cc <= IntSignedLessThanOrEqual
}

// TrapCode records why a trap instruction aborts execution.
type TrapCode uint8

const (
	TrapUnreachable TrapCode = iota
	TrapHeapOutOfBounds
	TrapUnsupported
	TrapIntegerDivisionByZero
)

func (c TrapCode) String() string {
	switch c {
	case TrapUnreachable:
		return "unreachable"
	case TrapHeapOutOfBounds:
		return "heap_oob"
	case TrapUnsupported:
		return "unsupported"
	case TrapIntegerDivisionByZero:
		return "int_divz"
	}
	return "unknown"
}

// InstData holds one instruction. Which fields are meaningful depends on Op:
//   - Iconst/Fconst: Imm holds the bit pattern
//   - Load/Store: Imm holds the static offset, Size the access width in
//     bytes and Signed whether a narrow load sign-extends
//   - Sextend: Imm holds the source width in bits
//   - Float: Imm holds the originating wasm opcode (misc ops add 0xFC00)
//   - Jump/Brif/BrTable: Targets, with the default last for BrTable
type InstData struct {
	Args    []Value
	Results []Value
	Targets []Block
	Imm     int64
	Var     Variable
	GV      GlobalValue
	Func    FuncRef
	Sig     SigRef
	Op      Opcode
	Type    Type
	Cond    IntCC
	Trap    TrapCode
	Size    uint8
	Signed  bool
}

// Narrow reports whether a load or store accesses fewer bytes than its type.
func (d *InstData) Narrow() bool {
	return int(d.Size) < d.Type.Bytes()
}

// Result returns the single result of the instruction.
func (d *InstData) Result() Value {
	return d.Results[0]
}
