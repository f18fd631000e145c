package ir

import "fmt"

// Builder appends instructions to the current block of a Function.
type Builder struct {
	fn  *Function
	cur Block
	set bool
}

// NewBuilder returns a builder for fn with no current block.
func NewBuilder(fn *Function) *Builder {
	return &Builder{fn: fn}
}

// Func returns the function under construction.
func (b *Builder) Func() *Function { return b.fn }

// CreateBlock creates a block outside the layout.
func (b *Builder) CreateBlock() Block {
	b.fn.blocks = append(b.fn.blocks, blockData{})
	return Block(len(b.fn.blocks) - 1)
}

// SwitchToBlock makes blk current, appending it to the layout the first
// time it is selected.
func (b *Builder) SwitchToBlock(blk Block) {
	bd := &b.fn.blocks[blk]
	if !bd.inLayout {
		bd.inLayout = true
		b.fn.layout = append(b.fn.layout, blk)
	}
	b.cur = blk
	b.set = true
}

// CurrentBlock returns the block receiving instructions.
func (b *Builder) CurrentBlock() Block { return b.cur }

// IsFilled reports whether the current block already ends in a terminator.
func (b *Builder) IsFilled() bool {
	insts := b.fn.blocks[b.cur].insts
	if len(insts) == 0 {
		return false
	}
	return b.fn.insts[insts[len(insts)-1]].Op.IsTerminator()
}

// DeclareVar declares a mutable variable of type t.
func (b *Builder) DeclareVar(t Type) Variable {
	b.fn.vars = append(b.fn.vars, t)
	return Variable(len(b.fn.vars) - 1)
}

func (b *Builder) append(d InstData, results ...Type) *InstData {
	if !b.set {
		panic("ir: no current block")
	}
	if b.IsFilled() {
		panic(fmt.Sprintf("ir: %s appended after terminator in %s", d.Op, b.cur))
	}
	inst := Inst(len(b.fn.insts))
	for _, t := range results {
		d.Results = append(d.Results, b.fn.newValue(ValueData{Type: t, Inst: inst}))
	}
	b.fn.insts = append(b.fn.insts, d)
	b.fn.blocks[b.cur].insts = append(b.fn.blocks[b.cur].insts, inst)
	return &b.fn.insts[inst]
}

// Iconst materializes an integer constant.
func (b *Builder) Iconst(t Type, imm int64) Value {
	return b.append(InstData{Op: OpIconst, Type: t, Imm: imm}, t).Result()
}

// Fconst materializes a float constant from its bit pattern.
func (b *Builder) Fconst(t Type, bits uint64) Value {
	return b.append(InstData{Op: OpFconst, Type: t, Imm: int64(bits)}, t).Result()
}

// Binary emits a two-operand integer instruction typed by x.
func (b *Builder) Binary(op Opcode, x, y Value) Value {
	t := b.fn.ValueType(x)
	return b.append(InstData{Op: op, Type: t, Args: []Value{x, y}}, t).Result()
}

// Unary emits a one-operand integer instruction typed by x.
func (b *Builder) Unary(op Opcode, x Value) Value {
	t := b.fn.ValueType(x)
	return b.append(InstData{Op: op, Type: t, Args: []Value{x}}, t).Result()
}

// Icmp compares x and y, producing 1 or 0 as an i32.
func (b *Builder) Icmp(cc IntCC, x, y Value) Value {
	return b.append(InstData{Op: OpIcmp, Type: b.fn.ValueType(x), Cond: cc, Args: []Value{x, y}}, I32).Result()
}

// Select returns x when c is nonzero and y otherwise.
func (b *Builder) Select(c, x, y Value) Value {
	t := b.fn.ValueType(x)
	return b.append(InstData{Op: OpSelect, Type: t, Args: []Value{c, x, y}}, t).Result()
}

// Uextend zero-extends x to t.
func (b *Builder) Uextend(t Type, x Value) Value {
	return b.append(InstData{Op: OpUextend, Type: t, Args: []Value{x}}, t).Result()
}

// Sextend sign-extends the low fromBits bits of x to t.
func (b *Builder) Sextend(t Type, x Value, fromBits int) Value {
	return b.append(InstData{Op: OpSextend, Type: t, Imm: int64(fromBits), Args: []Value{x}}, t).Result()
}

// Ireduce truncates x to t.
func (b *Builder) Ireduce(t Type, x Value) Value {
	return b.append(InstData{Op: OpIreduce, Type: t, Args: []Value{x}}, t).Result()
}

// Load reads a t from addr+offset.
func (b *Builder) Load(t Type, addr Value, offset int64) Value {
	return b.LoadSized(t, uint8(t.Bytes()), false, addr, offset)
}

// LoadSized reads size bytes from addr+offset and extends them to t.
func (b *Builder) LoadSized(t Type, size uint8, signed bool, addr Value, offset int64) Value {
	d := InstData{Op: OpLoad, Type: t, Imm: offset, Size: size, Signed: signed, Args: []Value{addr}}
	return b.append(d, t).Result()
}

// Store writes val to addr+offset.
func (b *Builder) Store(val, addr Value, offset int64) {
	b.StoreSized(uint8(b.fn.ValueType(val).Bytes()), val, addr, offset)
}

// StoreSized writes the low size bytes of val to addr+offset.
func (b *Builder) StoreSized(size uint8, val, addr Value, offset int64) {
	b.append(InstData{Op: OpStore, Type: b.fn.ValueType(val), Imm: offset, Size: size, Args: []Value{val, addr}})
}

// GlobalValue materializes a global value.
func (b *Builder) GlobalValue(t Type, gv GlobalValue) Value {
	return b.append(InstData{Op: OpGlobalValue, Type: t, GV: gv}, t).Result()
}

// UseVar reads the current value of a variable.
func (b *Builder) UseVar(v Variable) Value {
	t := b.fn.vars[v]
	return b.append(InstData{Op: OpUseVar, Type: t, Var: v}, t).Result()
}

// DefVar assigns val to a variable.
func (b *Builder) DefVar(v Variable, val Value) {
	b.append(InstData{Op: OpDefVar, Type: b.fn.vars[v], Var: v, Args: []Value{val}})
}

// Call calls an imported function and returns its results.
func (b *Builder) Call(callee FuncRef, args []Value) []Value {
	sig := b.fn.Signatures[b.fn.ExtFuncs[callee].Sig]
	return b.append(InstData{Op: OpCall, Func: callee, Args: args}, sig.Results...).Results
}

// CallIndirect calls the function at address callee with signature sig.
func (b *Builder) CallIndirect(sig SigRef, callee Value, args []Value) []Value {
	s := b.fn.Signatures[sig]
	all := append([]Value{callee}, args...)
	return b.append(InstData{Op: OpCallIndirect, Sig: sig, Args: all}, s.Results...).Results
}

// AssertEq checks that x equals y, aborting execution otherwise.
func (b *Builder) AssertEq(x, y Value) {
	b.append(InstData{Op: OpAssertEq, Type: b.fn.ValueType(x), Args: []Value{x, y}})
}

// Float emits an opaque floating-point or SIMD operation identified by its
// wasm opcode. result is TypeInvalid for operations without a result.
func (b *Builder) Float(wasmOp int64, result Type, args []Value) Value {
	if result == TypeInvalid {
		b.append(InstData{Op: OpFloat, Imm: wasmOp, Args: args})
		return 0
	}
	return b.append(InstData{Op: OpFloat, Type: result, Imm: wasmOp, Args: args}, result).Result()
}

// Return returns vals from the function.
func (b *Builder) Return(vals []Value) {
	b.append(InstData{Op: OpReturn, Args: vals})
}

// Jump branches unconditionally to dest.
func (b *Builder) Jump(dest Block) {
	b.append(InstData{Op: OpJump, Targets: []Block{dest}})
}

// Brif branches to then when c is nonzero and to els otherwise.
func (b *Builder) Brif(c Value, then, els Block) {
	b.append(InstData{Op: OpBrif, Args: []Value{c}, Targets: []Block{then, els}})
}

// BrTable branches to targets[idx], or def when idx is out of range.
func (b *Builder) BrTable(idx Value, targets []Block, def Block) {
	all := append(append([]Block{}, targets...), def)
	b.append(InstData{Op: OpBrTable, Args: []Value{idx}, Targets: all})
}

// Trap aborts execution.
func (b *Builder) Trap(code TrapCode) {
	b.append(InstData{Op: OpTrap, Trap: code})
}
