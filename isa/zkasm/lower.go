package zkasm

import (
	"fmt"
	"math/big"
	"strconv"

	"fortio.org/safecast"

	"github.com/wippyai/wasm-zkasm/environ"
	"github.com/wippyai/wasm-zkasm/errors"
	"github.com/wippyai/wasm-zkasm/ir"
)

// Flags configure lowering.
type Flags struct {
	HeapBase      uint64
	TableBase     uint64
	EmitProfiling bool
}

type lowerer struct {
	fn        *ir.Function
	frame     *frame
	env       *MachineEnv
	targeted  map[ir.Block]bool
	buf       MachBuffer
	flags     Flags
	nextLabel int
	index     uint32
}

// Lower emits fn as zkASM text. Every value lives in a frame slot and is
// loaded into registers around each instruction, so no register allocation
// pass is needed.
func Lower(fn *ir.Function, flags Flags) (*MachBufferFinalized, error) {
	fr, err := layoutFrame(fn)
	if err != nil {
		return nil, errors.WithFunc(err, fn.Name.Index)
	}
	l := &lowerer{
		fn:        fn,
		frame:     fr,
		env:       NewMachineEnv(),
		targeted:  make(map[ir.Block]bool),
		flags:     flags,
		nextLabel: fn.NumBlocks(),
		index:     fn.Name.Index,
	}
	if len(fn.Sig.Results) > len(l.resultRegs()) {
		return nil, l.unsupported("%d results, at most %d are returned in registers", len(fn.Sig.Results), len(l.resultRegs()))
	}
	for _, b := range fn.Layout() {
		for _, i := range fn.BlockInsts(b) {
			for _, t := range fn.Inst(i).Targets {
				l.targeted[t] = true
			}
		}
	}

	l.prologue()
	for n, b := range fn.Layout() {
		if n > 0 || l.targeted[b] {
			l.buf.Label(blockLabel(b))
		}
		for _, i := range fn.BlockInsts(b) {
			d := fn.Inst(i)
			if flags.EmitProfiling {
				l.buf.Inst("$${traceInstruction(%s)}", d.Op)
			}
			if err := l.lowerInst(d); err != nil {
				return nil, err
			}
		}
	}
	return l.buf.Finish(), nil
}

func blockLabel(b ir.Block) string {
	return "label_" + strconv.FormatUint(uint64(b), 10)
}

func (l *lowerer) newLabel() string {
	n := l.nextLabel
	l.nextLabel++
	return "label_" + itoa(n)
}

func itoa(n int) string { return strconv.Itoa(n) }

func (l *lowerer) unsupported(format string, args ...any) error {
	return errors.New(errors.PhaseLower, errors.KindUnsupported).
		Func(l.index).
		Detail(format, args...).
		Build()
}

func (l *lowerer) resultRegs() []Reg {
	return l.env.Preferred[ClassInt]
}

func (l *lowerer) prologue() {
	l.buf.Inst("SP - %d => SP", l.frame.size)
	l.buf.Inst("%s :MSTORE(%s)", LinkReg(), slotAddr(savedRRSlot))
	for i, p := range l.fn.Params {
		if i >= len(ArgRegs()) {
			break
		}
		l.buf.Inst("%s :MSTORE(%s)", ArgRegs()[i], slotAddr(l.frame.valueSlot(p)))
	}
}

// FormatConst writes c so the assembler reads it as an unsigned value.
// Constants beyond the immediate range need the big-integer suffix.
func FormatConst(c uint64) string {
	s := strconv.FormatUint(c, 10)
	if int64(c) >= 0 {
		if _, ok := GenerateImm(c, func(*Imm20) struct{} { return struct{}{} }); ok {
			return s
		}
	}
	return s + "n"
}

func widthMask(t ir.Type) uint64 {
	if t.Bits() == 32 {
		return 0xffff_ffff
	}
	return ^uint64(0)
}

func signBit(bits int) uint64 { return 1 << (bits - 1) }

// isGlobalsBase reports whether v is the address of the globals region,
// which has no runtime value: loads and stores through it name global_i.
func (l *lowerer) isGlobalsBase(v ir.Value) bool {
	d, ok := l.fn.Def(v)
	if !ok || d.Op != ir.OpGlobalValue {
		return false
	}
	gv := l.fn.GlobalValues[d.GV]
	return gv.Kind == ir.GVSymbol && gv.Name == environ.BaseName && gv.Offset == environ.GlobalsBase
}

func (l *lowerer) load(dst Writable[Reg], v ir.Value) error {
	if l.isGlobalsBase(v) {
		return l.unsupported("globals base address of %s used as a value", v)
	}
	if !l.frame.hasValue[v] {
		return errors.Internal(errors.PhaseLower, fmt.Sprintf("value %s has no frame slot", v))
	}
	l.buf.Inst("$ => %s :MLOAD(%s)", dst.ToReg(), slotAddr(l.frame.valueSlot(v)))
	return nil
}

func (l *lowerer) store(src Reg, v ir.Value) {
	l.buf.Inst("%s :MSTORE(%s)", src, slotAddr(l.frame.valueSlot(v)))
}

func (l *lowerer) set(dst Writable[Reg], c uint64) {
	l.buf.Inst("%s => %s", FormatConst(c), dst.ToReg())
}

// binop runs a binary state machine operation on A and B into dst.
func (l *lowerer) binop(dst Writable[Reg], op string) {
	l.buf.Inst("$ => %s :%s", dst.ToReg(), op)
}

// maskA truncates A to the width of t. Clobbers B.
func (l *lowerer) maskA(t ir.Type) {
	l.set(WritableReg(B()), widthMask(t))
	l.binop(WritableReg(A()), "AND")
}

func (l *lowerer) loadPair(x, y ir.Value) error {
	if err := l.load(WritableReg(A()), x); err != nil {
		return err
	}
	return l.load(WritableReg(B()), y)
}

func (l *lowerer) lowerInst(d *ir.InstData) error {
	switch d.Op {
	case ir.OpNop:
		return nil
	case ir.OpIconst, ir.OpFconst:
		c := uint64(d.Imm) & widthMask(d.Type)
		l.buf.Inst("%s :MSTORE(%s)", FormatConst(c), slotAddr(l.frame.valueSlot(d.Result())))
		return nil
	case ir.OpIadd, ir.OpIsub, ir.OpImul, ir.OpBand, ir.OpBor, ir.OpBxor:
		return l.lowerBinary(d)
	case ir.OpUdiv, ir.OpUrem:
		return l.lowerDivRem(d)
	case ir.OpIshl, ir.OpUshr, ir.OpSshr:
		return l.lowerShift(d)
	case ir.OpSdiv, ir.OpSrem, ir.OpRotl, ir.OpRotr, ir.OpClz, ir.OpCtz, ir.OpPopcnt:
		return l.unsupported("%s.%s", d.Op, d.Type)
	case ir.OpIcmp:
		return l.lowerIcmp(d)
	case ir.OpSelect:
		return l.lowerSelect(d)
	case ir.OpUextend:
		if err := l.load(WritableReg(A()), d.Args[0]); err != nil {
			return err
		}
		l.store(A(), d.Result())
		return nil
	case ir.OpSextend:
		return l.lowerSextend(d)
	case ir.OpIreduce:
		if err := l.load(WritableReg(A()), d.Args[0]); err != nil {
			return err
		}
		l.maskA(d.Type)
		l.store(A(), d.Result())
		return nil
	case ir.OpLoad:
		return l.lowerLoad(d)
	case ir.OpStore:
		return l.lowerStore(d)
	case ir.OpGlobalValue:
		return l.lowerGlobalValue(d)
	case ir.OpUseVar:
		l.buf.Inst("$ => %s :MLOAD(%s)", A(), slotAddr(l.frame.varSlot(d.Var)))
		l.store(A(), d.Result())
		return nil
	case ir.OpDefVar:
		if err := l.load(WritableReg(A()), d.Args[0]); err != nil {
			return err
		}
		l.buf.Inst("%s :MSTORE(%s)", A(), slotAddr(l.frame.varSlot(d.Var)))
		return nil
	case ir.OpCall:
		if err := l.passArgs(d.Args); err != nil {
			return err
		}
		l.buf.Reloc(l.fn.ExtFuncs[d.Func].Name)
		return l.takeResults(d.Results)
	case ir.OpCallIndirect:
		if err := l.passArgs(d.Args[1:]); err != nil {
			return err
		}
		if err := l.load(WritableReg(E()), d.Args[0]); err != nil {
			return err
		}
		l.buf.Inst("zkPC + 2 => %s", LinkReg())
		l.buf.Inst(":JMP(%s)", E())
		return l.takeResults(d.Results)
	case ir.OpAssertEq:
		if err := l.loadPair(d.Args[0], d.Args[1]); err != nil {
			return err
		}
		l.buf.Inst("%s :ASSERT", B())
		return nil
	case ir.OpFloat:
		l.buf.Trap(ir.TrapUnsupported)
		return nil
	case ir.OpReturn:
		return l.lowerReturn(d)
	case ir.OpJump:
		l.buf.Inst(":JMP(%s)", blockLabel(d.Targets[0]))
		return nil
	case ir.OpBrif:
		if err := l.load(WritableReg(A()), d.Args[0]); err != nil {
			return err
		}
		l.buf.Inst("%s :JMPNZ(%s)", A(), blockLabel(d.Targets[0]))
		l.buf.Inst(":JMP(%s)", blockLabel(d.Targets[1]))
		return nil
	case ir.OpBrTable:
		return l.lowerBrTable(d)
	case ir.OpTrap:
		l.buf.Trap(d.Trap)
		return nil
	}
	return errors.Internal(errors.PhaseLower, "unknown opcode "+d.Op.String())
}

func (l *lowerer) lowerBinary(d *ir.InstData) error {
	if err := l.loadPair(d.Args[0], d.Args[1]); err != nil {
		return err
	}
	a := WritableReg(A())
	switch d.Op {
	case ir.OpIadd:
		l.binop(a, "ADD")
		l.maskA(d.Type)
	case ir.OpIsub:
		l.binop(a, "SUB")
		l.maskA(d.Type)
	case ir.OpImul:
		l.mulAB(d.Type)
	case ir.OpBand:
		l.binop(a, "AND")
	case ir.OpBor:
		l.binop(a, "OR")
	case ir.OpBxor:
		l.binop(a, "XOR")
	}
	l.store(A(), d.Result())
	return nil
}

// mulAB sets A to A*B truncated to t. Both operands are below 2^64, so the
// high word D of the arithmetic check is zero.
func (l *lowerer) mulAB(t ir.Type) {
	l.set(WritableReg(C()), 0)
	l.set(WritableReg(D()), 0)
	l.binop(WritableReg(A()), "ARITH")
	l.maskA(t)
}

// lowerDivRem computes the quotient and remainder as free inputs and checks
// them with the arithmetic state machine: q*B + r == dividend.
func (l *lowerer) lowerDivRem(d *ir.InstData) error {
	if err := l.loadPair(d.Args[0], d.Args[1]); err != nil {
		return err
	}
	ok := l.newLabel()
	l.buf.Inst("%s :JMPNZ(%s)", B(), ok)
	l.buf.Trap(ir.TrapIntegerDivisionByZero)
	l.buf.Label(ok)
	l.buf.Inst("%s => %s", A(), E())
	l.buf.Inst("${E / B} => %s", A())
	l.buf.Inst("${E %% B} => %s", C())
	l.set(WritableReg(D()), 0)
	l.buf.Inst("%s :ARITH", E())
	if d.Op == ir.OpUdiv {
		l.store(A(), d.Result())
	} else {
		l.store(C(), d.Result())
	}
	return nil
}

// constShift returns the shift amount when y is a constant, reduced modulo
// the width of t.
func (l *lowerer) constShift(t ir.Type, y ir.Value) (uint8, bool) {
	def, ok := l.fn.Def(y)
	if !ok || def.Op != ir.OpIconst {
		return 0, false
	}
	k := uint8(uint64(def.Imm) & uint64(t.Bits()-1))
	if t.Bits() == 32 {
		u, ok := UImm5FromU8(k)
		return uint8(u.Bits()), ok
	}
	return k, true
}

func (l *lowerer) lowerShift(d *ir.InstData) error {
	t := d.Type
	bits := t.Bits()
	k, isConst := l.constShift(t, d.Args[1])
	if err := l.loadPair(d.Args[0], d.Args[1]); err != nil {
		return err
	}
	amount := fmt.Sprintf("(B %% %d)", bits)
	if isConst {
		amount = strconv.Itoa(int(k))
	}
	switch d.Op {
	case ir.OpIshl:
		if isConst {
			l.set(WritableReg(B()), 1<<k)
			l.mulAB(t)
			break
		}
		l.buf.Inst("${A << %s} => %s", amount, A())
		l.maskA(t)
	case ir.OpUshr:
		l.buf.Inst("${A >> %s} => %s", amount, A())
	case ir.OpSshr:
		// ((x ^ s) >> k) - (s >> k), kept non-negative by adding 2^bits.
		s := signBit(bits)
		span := new(big.Int).Lsh(big.NewInt(1), uint(bits))
		l.buf.Inst("${(((A ^ %d) >> %s) + (%s - (%d >> %s))) & %d} => %s", s, amount, span.String(), s, amount, widthMask(t), A())
	}
	l.store(A(), d.Result())
	return nil
}

// loadBiased loads v into A, flipping the sign bit when signed is set so
// that an unsigned comparison orders the values as signed ones.
func (l *lowerer) loadBiased(v ir.Value, t ir.Type, signed bool) error {
	if err := l.load(WritableReg(A()), v); err != nil {
		return err
	}
	if signed {
		l.set(WritableReg(B()), signBit(t.Bits()))
		l.binop(WritableReg(A()), "XOR")
	}
	return nil
}

func (l *lowerer) lowerIcmp(d *ir.InstData) error {
	x, y := d.Args[0], d.Args[1]
	var (
		op     = "LT"
		negate bool
	)
	switch d.Cond {
	case ir.IntEqual:
		op = "EQ"
	case ir.IntNotEqual:
		op, negate = "EQ", true
	case ir.IntUnsignedLessThan, ir.IntSignedLessThan:
	case ir.IntUnsignedGreaterThan, ir.IntSignedGreaterThan:
		x, y = y, x
	case ir.IntUnsignedGreaterThanOrEqual, ir.IntSignedGreaterThanOrEqual:
		negate = true
	case ir.IntUnsignedLessThanOrEqual, ir.IntSignedLessThanOrEqual:
		x, y = y, x
		negate = true
	default:
		return errors.Internal(errors.PhaseLower, "unknown condition "+d.Cond.String())
	}
	signed := d.Cond.Signed()
	if err := l.loadBiased(y, d.Type, signed); err != nil {
		return err
	}
	l.buf.Inst("%s => %s", A(), D())
	if err := l.loadBiased(x, d.Type, signed); err != nil {
		return err
	}
	l.buf.Inst("%s => %s", D(), B())
	l.binop(WritableReg(A()), op)
	if negate {
		l.set(WritableReg(B()), 1)
		l.binop(WritableReg(A()), "XOR")
	}
	l.store(A(), d.Result())
	return nil
}

func (l *lowerer) lowerSelect(d *ir.InstData) error {
	if err := l.load(WritableReg(A()), d.Args[0]); err != nil {
		return err
	}
	then, done := l.newLabel(), l.newLabel()
	l.buf.Inst("%s :JMPNZ(%s)", A(), then)
	if err := l.load(WritableReg(A()), d.Args[2]); err != nil {
		return err
	}
	l.buf.Inst(":JMP(%s)", done)
	l.buf.Label(then)
	if err := l.load(WritableReg(A()), d.Args[1]); err != nil {
		return err
	}
	l.buf.Label(done)
	l.store(A(), d.Result())
	return nil
}

// lowerSextend computes ((x & m) ^ s) - s, truncated to the result width.
func (l *lowerer) lowerSextend(d *ir.InstData) error {
	from := int(d.Imm)
	if from <= 0 || from > d.Type.Bits() {
		return errors.Internal(errors.PhaseLower, fmt.Sprintf("sextend from %d bits to %s", from, d.Type))
	}
	if err := l.load(WritableReg(A()), d.Args[0]); err != nil {
		return err
	}
	if from < d.Type.Bits() {
		a := WritableReg(A())
		l.set(WritableReg(B()), (uint64(1)<<from)-1)
		l.binop(a, "AND")
		l.set(WritableReg(B()), signBit(from))
		l.binop(a, "XOR")
		l.set(WritableReg(B()), signBit(from))
		l.binop(a, "SUB")
		l.maskA(d.Type)
	}
	l.store(A(), d.Result())
	return nil
}

// wordAddress turns the byte address in E plus offset into a word address.
func (l *lowerer) wordAddress(offset int64) {
	if offset != 0 {
		off, err := safecast.Conv[int8](offset)
		imm, ok := Imm5FromI8(off)
		if err == nil && ok && off > 0 {
			l.buf.Inst("%s + %s => %s", E(), imm, E())
		} else {
			l.buf.Inst("${E + %d} => %s", offset, E())
		}
	}
	l.buf.Inst("${E >> 3} => %s", E())
}

func (l *lowerer) lowerLoad(d *ir.InstData) error {
	if d.Narrow() {
		return l.unsupported("%d-byte load into %s", d.Size, d.Type)
	}
	addr := d.Args[0]
	if l.isGlobalsBase(addr) {
		l.buf.Inst("$ => %s :MLOAD(global_%d)", A(), d.Imm)
		l.store(A(), d.Result())
		return nil
	}
	if err := l.load(WritableReg(E()), addr); err != nil {
		return err
	}
	l.wordAddress(d.Imm)
	l.buf.Inst("$ => %s :MLOAD(%s)", A(), E())
	if d.Type.Bits() == 32 {
		l.maskA(d.Type)
	}
	l.store(A(), d.Result())
	return nil
}

func (l *lowerer) lowerStore(d *ir.InstData) error {
	if d.Narrow() {
		return l.unsupported("%d-byte store from %s", d.Size, d.Type)
	}
	val, addr := d.Args[0], d.Args[1]
	if err := l.load(WritableReg(A()), val); err != nil {
		return err
	}
	if l.isGlobalsBase(addr) {
		l.buf.Inst("%s :MSTORE(global_%d)", A(), d.Imm)
		return nil
	}
	if err := l.load(WritableReg(E()), addr); err != nil {
		return err
	}
	l.wordAddress(d.Imm)
	l.buf.Inst("%s :MSTORE(%s)", A(), E())
	return nil
}

func (l *lowerer) lowerGlobalValue(d *ir.InstData) error {
	if l.isGlobalsBase(d.Result()) {
		return nil
	}
	if err := l.materialize(d.GV); err != nil {
		return err
	}
	l.store(A(), d.Result())
	return nil
}

// materialize computes a global value into A.
func (l *lowerer) materialize(gv ir.GlobalValue) error {
	data := l.fn.GlobalValues[gv]
	switch data.Kind {
	case ir.GVSymbol:
		if data.Name != environ.BaseName {
			return l.unsupported("address of symbol %s", data.Name)
		}
		switch data.Offset {
		case environ.HeapBase:
			l.set(WritableReg(A()), l.flags.HeapBase)
		case environ.TableBase:
			l.set(WritableReg(A()), l.flags.TableBase)
		default:
			return l.unsupported("base symbol region %d used as a value", data.Offset)
		}
	case ir.GVLoad:
		if err := l.materialize(data.Base); err != nil {
			return err
		}
		l.buf.Inst("%s => %s", A(), E())
		l.wordAddress(data.Offset)
		l.buf.Inst("$ => %s :MLOAD(%s)", A(), E())
		if data.Type.Bits() == 32 {
			l.maskA(data.Type)
		}
	}
	return nil
}

// passArgs places stack arguments below SP first, using D, then loads the
// register arguments.
func (l *lowerer) passArgs(args []ir.Value) error {
	regs := ArgRegs()
	for j := len(regs); j < len(args); j++ {
		if err := l.load(WritableReg(D()), args[j]); err != nil {
			return err
		}
		l.buf.Inst("%s :MSTORE(%s)", D(), outgoingArgAddr(j))
	}
	for i := 0; i < len(args) && i < len(regs); i++ {
		if err := l.load(WritableReg(regs[i]), args[i]); err != nil {
			return err
		}
	}
	return nil
}

func (l *lowerer) takeResults(results []ir.Value) error {
	regs := l.resultRegs()
	if len(results) > len(regs) {
		return l.unsupported("call with %d results", len(results))
	}
	for i, r := range results {
		l.store(regs[i], r)
	}
	return nil
}

func (l *lowerer) lowerReturn(d *ir.InstData) error {
	regs := l.resultRegs()
	for i, v := range d.Args {
		if err := l.load(WritableReg(regs[i]), v); err != nil {
			return err
		}
	}
	l.buf.Inst("$ => %s :MLOAD(%s)", LinkReg(), slotAddr(savedRRSlot))
	l.buf.Inst("SP + %d => SP", l.frame.size)
	l.buf.Inst(":JMP(%s)", LinkReg())
	return nil
}

func (l *lowerer) lowerBrTable(d *ir.InstData) error {
	if err := l.load(WritableReg(A()), d.Args[0]); err != nil {
		return err
	}
	n := len(d.Targets) - 1
	for i, t := range d.Targets[:n] {
		l.set(WritableReg(B()), uint64(i))
		l.binop(WritableReg(B()), "EQ")
		l.buf.Inst("%s :JMPNZ(%s)", B(), blockLabel(t))
	}
	l.buf.Inst(":JMP(%s)", blockLabel(d.Targets[n]))
	return nil
}
