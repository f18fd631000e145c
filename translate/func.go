package translate

import (
	"fmt"
	"math"

	"fortio.org/safecast"

	"github.com/wippyai/wasm-zkasm/errors"
	"github.com/wippyai/wasm-zkasm/ir"
	"github.com/wippyai/wasm-zkasm/wasm"
)

// maxLocals bounds the number of locals a body may declare.
const maxLocals = 50000

type controlKind uint8

const (
	ctrlBlock controlKind = iota
	ctrlLoop
	ctrlIf
)

// controlFrame tracks one open block, loop or if. Block results travel
// through variables, so IR blocks never take parameters.
type controlFrame struct {
	elseParams  []ir.Value
	paramVars   []ir.Variable
	resultVars  []ir.Variable
	height      int
	dest        ir.Block
	header      ir.Block
	elseBlock   ir.Block
	kind        controlKind
	hasElse     bool
	exitReached bool
	dead        bool // opened in unreachable code
}

func (f *controlFrame) branchVars() []ir.Variable {
	if f.kind == ctrlLoop {
		return f.paramVars
	}
	return f.resultVars
}

func (f *controlFrame) branchTarget() ir.Block {
	if f.kind == ctrlLoop {
		return f.header
	}
	return f.dest
}

// stackUnderflow is raised when an instruction pops more operands than
// are available. Translate recovers it into an error.
type stackUnderflow struct{}

// FuncTranslator lowers wasm function bodies to IR. A translator can be
// reused for several functions but is not safe for concurrent use.
type FuncTranslator struct {
	env     FuncEnvironment
	fn      *ir.Function
	b       *ir.Builder
	globals map[uint32]GlobalVariable
	heaps   map[uint32]HeapData
	tables  map[uint32]TableData
	sigs    map[uint32]ir.SigRef
	funcs   map[uint32]ir.FuncRef
	zeros   map[ir.Type]ir.Value
	stack   []ir.Value
	frames  []controlFrame
	locals  []ir.Variable
	body    FunctionBody
	pos     int
	live    bool
}

// NewFuncTranslator returns an empty translator.
func NewFuncTranslator() *FuncTranslator {
	return &FuncTranslator{}
}

// Translate translates body into fn, whose signature and parameters must
// already be set.
func (t *FuncTranslator) Translate(body FunctionBody, fn *ir.Function, env FuncEnvironment) (err error) {
	t.reset(body, fn, env)
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(stackUnderflow); !ok {
				panic(r)
			}
			err = t.fail(errors.KindInvalidData, "operand stack underflow")
		}
	}()

	instrs, err := wasm.DecodeInstructions(body.Code)
	if err != nil {
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Func(body.FuncIndex).Cause(err).Detail("decode function body").Build()
	}

	t.b.SwitchToBlock(t.b.CreateBlock())
	if err := t.declareLocals(); err != nil {
		return err
	}
	t.frames = append(t.frames, controlFrame{
		kind:       ctrlBlock,
		dest:       t.b.CreateBlock(),
		resultVars: t.declareVars(fn.Sig.Results),
	})
	t.live = true

	for i := range instrs {
		t.pos = i
		if len(t.frames) == 0 {
			return t.fail(errors.KindInvalidData, "instructions after final end")
		}
		if err := t.translate(instrs[i]); err != nil {
			return t.annotate(err)
		}
	}
	if len(t.frames) != 0 {
		return t.fail(errors.KindInvalidData, "function body not terminated by end")
	}
	return nil
}

func (t *FuncTranslator) reset(body FunctionBody, fn *ir.Function, env FuncEnvironment) {
	t.env = env
	t.fn = fn
	t.b = ir.NewBuilder(fn)
	t.body = body
	t.globals = make(map[uint32]GlobalVariable)
	t.heaps = make(map[uint32]HeapData)
	t.tables = make(map[uint32]TableData)
	t.sigs = make(map[uint32]ir.SigRef)
	t.funcs = make(map[uint32]ir.FuncRef)
	t.zeros = make(map[ir.Type]ir.Value)
	t.stack = t.stack[:0]
	t.frames = t.frames[:0]
	t.locals = t.locals[:0]
	t.pos = 0
	t.live = false
}

func (t *FuncTranslator) fail(kind errors.Kind, format string, args ...any) error {
	return errors.New(errors.PhaseTranslate, kind).
		Func(t.body.FuncIndex).
		Path(fmt.Sprintf("instr %d", t.pos)).
		Detail(format, args...).
		Build()
}

// annotate attaches the function index to errors raised by the environment.
func (t *FuncTranslator) annotate(err error) error {
	if _, ok := err.(*errors.Error); ok {
		return errors.WithFunc(err, t.body.FuncIndex)
	}
	return errors.New(errors.PhaseTranslate, errors.KindInternal).
		Func(t.body.FuncIndex).
		Path(fmt.Sprintf("instr %d", t.pos)).
		Cause(err).
		Build()
}

func (t *FuncTranslator) declareLocals() error {
	for i, p := range t.fn.Params {
		v := t.b.DeclareVar(t.fn.Sig.Params[i])
		t.b.DefVar(v, p)
		t.locals = append(t.locals, v)
	}
	total := uint64(len(t.locals))
	for _, le := range t.body.Locals {
		total += uint64(le.Count)
		if total > maxLocals {
			return t.fail(errors.KindOutOfRange, "too many locals")
		}
		typ, ok := IRType(le.ValType)
		if !ok || typ == ir.V128 {
			return t.fail(errors.KindUnsupported, "local of type %s", le.ValType)
		}
		zero := t.zero(typ)
		for j := uint32(0); j < le.Count; j++ {
			v := t.b.DeclareVar(typ)
			t.b.DefVar(v, zero)
			t.locals = append(t.locals, v)
		}
	}
	return nil
}

func (t *FuncTranslator) zero(typ ir.Type) ir.Value {
	if v, ok := t.zeros[typ]; ok {
		return v
	}
	var v ir.Value
	if typ == ir.F32 || typ == ir.F64 {
		v = t.b.Fconst(typ, 0)
	} else {
		v = t.b.Iconst(typ, 0)
	}
	t.zeros[typ] = v
	return v
}

func (t *FuncTranslator) declareVars(types []ir.Type) []ir.Variable {
	if len(types) == 0 {
		return nil
	}
	vars := make([]ir.Variable, len(types))
	for i, typ := range types {
		vars[i] = t.b.DeclareVar(typ)
	}
	return vars
}

func (t *FuncTranslator) push(vs ...ir.Value) {
	t.stack = append(t.stack, vs...)
}

func (t *FuncTranslator) pop() ir.Value {
	if len(t.stack) == 0 {
		panic(stackUnderflow{})
	}
	v := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return v
}

func (t *FuncTranslator) popN(n int) []ir.Value {
	vs := t.peekN(n)
	t.stack = t.stack[:len(t.stack)-n]
	return vs
}

// peekN returns a copy of the top n operands.
func (t *FuncTranslator) peekN(n int) []ir.Value {
	if n > len(t.stack) {
		panic(stackUnderflow{})
	}
	return append([]ir.Value(nil), t.stack[len(t.stack)-n:]...)
}

func (t *FuncTranslator) translate(in wasm.Instruction) error {
	if !t.live {
		return t.translateUnreachable(in)
	}

	if op, ok := binaryOps[in.Opcode]; ok {
		y := t.pop()
		x := t.pop()
		t.push(t.b.Binary(op, x, y))
		return nil
	}
	if op, ok := unaryOps[in.Opcode]; ok {
		t.push(t.b.Unary(op, t.pop()))
		return nil
	}
	if cc, ok := compareOps[in.Opcode]; ok {
		y := t.pop()
		x := t.pop()
		t.push(t.b.Icmp(cc, x, y))
		return nil
	}
	if acc, ok := loadAccess[in.Opcode]; ok {
		return t.load(in.Imm.(wasm.MemoryImm), acc)
	}
	if acc, ok := storeAccess[in.Opcode]; ok {
		return t.store(in.Imm.(wasm.MemoryImm), acc)
	}
	if wasm.IsFloatOp(in.Opcode) {
		n, result := floatSig(in.Opcode)
		args := t.popN(n)
		t.push(t.b.Float(int64(in.Opcode), result, args))
		return nil
	}

	switch in.Opcode {
	case wasm.OpUnreachable:
		t.b.Trap(ir.TrapUnreachable)
		t.markUnreachable()
	case wasm.OpNop:
	case wasm.OpBlock:
		return t.openBlock(ctrlBlock, in.Imm.(wasm.BlockImm).Type)
	case wasm.OpLoop:
		return t.openBlock(ctrlLoop, in.Imm.(wasm.BlockImm).Type)
	case wasm.OpIf:
		return t.openBlock(ctrlIf, in.Imm.(wasm.BlockImm).Type)
	case wasm.OpElse:
		return t.elseBranch()
	case wasm.OpEnd:
		return t.end()
	case wasm.OpBr:
		return t.br(in.Imm.(wasm.BranchImm).LabelIdx)
	case wasm.OpBrIf:
		return t.brIf(in.Imm.(wasm.BranchImm).LabelIdx)
	case wasm.OpBrTable:
		imm := in.Imm.(wasm.BrTableImm)
		return t.brTable(imm.Labels, imm.Default)
	case wasm.OpReturn:
		t.b.Return(t.popN(len(t.fn.Sig.Results)))
		t.markUnreachable()
	case wasm.OpCall:
		return t.call(in.Imm.(wasm.CallImm).FuncIdx)
	case wasm.OpCallIndirect:
		imm := in.Imm.(wasm.CallIndirectImm)
		return t.callIndirect(imm.TypeIdx, imm.TableIdx)

	case wasm.OpDrop:
		t.pop()
	case wasm.OpSelect, wasm.OpSelectType:
		c := t.pop()
		y := t.pop()
		x := t.pop()
		t.push(t.b.Select(c, x, y))

	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
		return t.local(in.Opcode, in.Imm.(wasm.LocalImm).LocalIdx)
	case wasm.OpGlobalGet:
		return t.globalGet(in.Imm.(wasm.GlobalImm).GlobalIdx)
	case wasm.OpGlobalSet:
		return t.globalSet(in.Imm.(wasm.GlobalImm).GlobalIdx)

	case wasm.OpTableGet:
		idx := in.Imm.(wasm.TableImm).TableIdx
		table, err := t.table(idx)
		if err != nil {
			return err
		}
		v, err := t.env.TranslateTableGet(t.b, idx, table, t.pop())
		if err != nil {
			return err
		}
		t.push(v)
	case wasm.OpTableSet:
		idx := in.Imm.(wasm.TableImm).TableIdx
		table, err := t.table(idx)
		if err != nil {
			return err
		}
		val := t.pop()
		return t.env.TranslateTableSet(t.b, idx, table, val, t.pop())

	case wasm.OpMemorySize:
		idx := in.Imm.(wasm.MemoryIdxImm).MemIdx
		heap, err := t.heap(idx)
		if err != nil {
			return err
		}
		v, err := t.env.TranslateMemorySize(t.b, idx, heap)
		if err != nil {
			return err
		}
		t.push(v)
	case wasm.OpMemoryGrow:
		idx := in.Imm.(wasm.MemoryIdxImm).MemIdx
		heap, err := t.heap(idx)
		if err != nil {
			return err
		}
		v, err := t.env.TranslateMemoryGrow(t.b, idx, heap, t.pop())
		if err != nil {
			return err
		}
		t.push(v)

	case wasm.OpI32Const:
		t.push(t.b.Iconst(ir.I32, int64(in.Imm.(wasm.I32Imm).Value)))
	case wasm.OpI64Const:
		t.push(t.b.Iconst(ir.I64, in.Imm.(wasm.I64Imm).Value))
	case wasm.OpF32Const:
		t.push(t.b.Fconst(ir.F32, uint64(in.Imm.(wasm.F32Imm).Bits)))
	case wasm.OpF64Const:
		t.push(t.b.Fconst(ir.F64, in.Imm.(wasm.F64Imm).Bits))

	case wasm.OpI32Eqz, wasm.OpI64Eqz:
		x := t.pop()
		t.push(t.b.Icmp(ir.IntEqual, x, t.b.Iconst(t.fn.ValueType(x), 0)))
	case wasm.OpI32WrapI64:
		t.push(t.b.Ireduce(ir.I32, t.pop()))
	case wasm.OpI64ExtendI32S:
		t.push(t.b.Sextend(ir.I64, t.pop(), 32))
	case wasm.OpI64ExtendI32U:
		t.push(t.b.Uextend(ir.I64, t.pop()))
	case wasm.OpI32Extend8S:
		t.push(t.b.Sextend(ir.I32, t.pop(), 8))
	case wasm.OpI32Extend16S:
		t.push(t.b.Sextend(ir.I32, t.pop(), 16))
	case wasm.OpI64Extend8S:
		t.push(t.b.Sextend(ir.I64, t.pop(), 8))
	case wasm.OpI64Extend16S:
		t.push(t.b.Sextend(ir.I64, t.pop(), 16))
	case wasm.OpI64Extend32S:
		t.push(t.b.Sextend(ir.I64, t.pop(), 32))

	case wasm.OpRefNull:
		t.push(t.b.Iconst(ir.R64, 0))
	case wasm.OpRefIsNull:
		x := t.pop()
		t.push(t.b.Icmp(ir.IntEqual, x, t.b.Iconst(ir.R64, 0)))
	case wasm.OpRefFunc:
		v, err := t.env.TranslateRefFunc(t.b, in.Imm.(wasm.RefFuncImm).FuncIdx)
		if err != nil {
			return err
		}
		t.push(v)

	case wasm.OpPrefixMisc:
		return t.misc(in.Imm.(wasm.MiscImm))
	case wasm.OpPrefixAtomic:
		return t.atomic(in.Imm.(wasm.AtomicImm))

	default:
		return t.fail(errors.KindUnsupported, "opcode 0x%02x", in.Opcode)
	}
	return nil
}

// translateUnreachable tracks control structure in dead code without
// emitting anything.
func (t *FuncTranslator) translateUnreachable(in wasm.Instruction) error {
	switch in.Opcode {
	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
		t.frames = append(t.frames, controlFrame{dead: true})
	case wasm.OpElse:
		return t.elseBranch()
	case wasm.OpEnd:
		return t.end()
	}
	return nil
}

func (t *FuncTranslator) markUnreachable() {
	t.live = false
	if n := len(t.frames); n > 0 {
		t.stack = t.stack[:t.frames[n-1].height]
	}
}

func (t *FuncTranslator) blockType(bt int64) (params, results []ir.Type, err error) {
	if bt == wasm.BlockTypeVoid {
		return nil, nil, nil
	}
	if bt < 0 {
		typ, ok := IRType(wasm.ValType(byte(bt & 0x7f)))
		if !ok {
			return nil, nil, t.fail(errors.KindInvalidData, "block type %d", bt)
		}
		return nil, []ir.Type{typ}, nil
	}
	idx, err := safecast.Conv[uint32](bt)
	if err != nil {
		return nil, nil, t.fail(errors.KindOutOfRange, "block type index %d", bt)
	}
	sig, err := t.env.TypeSignature(idx)
	if err != nil {
		return nil, nil, err
	}
	return sig.Params, sig.Results, nil
}

func (t *FuncTranslator) openBlock(kind controlKind, bt int64) error {
	params, results, err := t.blockType(bt)
	if err != nil {
		return err
	}
	f := controlFrame{
		kind:       kind,
		dest:       t.b.CreateBlock(),
		resultVars: t.declareVars(results),
	}
	switch kind {
	case ctrlBlock:
		f.height = len(t.stack) - len(params)
	case ctrlLoop:
		args := t.popN(len(params))
		f.height = len(t.stack)
		f.paramVars = t.declareVars(params)
		for i, v := range f.paramVars {
			t.b.DefVar(v, args[i])
		}
		f.header = t.b.CreateBlock()
		t.b.Jump(f.header)
		t.b.SwitchToBlock(f.header)
		for _, v := range f.paramVars {
			t.push(t.b.UseVar(v))
		}
	case ctrlIf:
		cond := t.pop()
		f.elseParams = t.peekN(len(params))
		f.height = len(t.stack) - len(params)
		then := t.b.CreateBlock()
		f.elseBlock = t.b.CreateBlock()
		t.b.Brif(cond, then, f.elseBlock)
		t.b.SwitchToBlock(then)
	}
	if f.height < 0 {
		panic(stackUnderflow{})
	}
	t.frames = append(t.frames, f)
	return nil
}

// exit leaves the innermost live frame by falling through to its dest.
func (t *FuncTranslator) exit(f *controlFrame) {
	vals := t.popN(len(f.resultVars))
	for i, v := range f.resultVars {
		t.b.DefVar(v, vals[i])
	}
	t.b.Jump(f.dest)
	f.exitReached = true
}

func (t *FuncTranslator) elseBranch() error {
	if len(t.frames) == 0 {
		return t.fail(errors.KindInvalidData, "else outside if")
	}
	f := &t.frames[len(t.frames)-1]
	if f.dead {
		return nil
	}
	if f.kind != ctrlIf || f.hasElse {
		return t.fail(errors.KindInvalidData, "else without matching if")
	}
	if t.live {
		t.exit(f)
	}
	f.hasElse = true
	t.b.SwitchToBlock(f.elseBlock)
	t.stack = append(t.stack[:f.height], f.elseParams...)
	t.live = true
	return nil
}

func (t *FuncTranslator) end() error {
	if len(t.frames) == 0 {
		return t.fail(errors.KindInvalidData, "unbalanced end")
	}
	f := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	if f.dead {
		return nil
	}

	if t.live {
		t.exit(&f)
	}
	if f.kind == ctrlIf && !f.hasElse {
		// the missing else forwards the parameters as results
		t.b.SwitchToBlock(f.elseBlock)
		t.stack = append(t.stack[:f.height], f.elseParams...)
		t.exit(&f)
	}
	t.stack = t.stack[:f.height]

	if !f.exitReached {
		t.live = false
		return nil
	}
	t.b.SwitchToBlock(f.dest)
	t.live = true
	for _, v := range f.resultVars {
		t.push(t.b.UseVar(v))
	}
	if len(t.frames) == 0 {
		t.b.Return(t.popN(len(f.resultVars)))
		t.live = false
	}
	return nil
}

func (t *FuncTranslator) frameAt(depth uint32) (*controlFrame, error) {
	if int(depth) >= len(t.frames) {
		return nil, t.fail(errors.KindInvalidData, "branch depth %d exceeds %d open frames", depth, len(t.frames))
	}
	return &t.frames[len(t.frames)-1-int(depth)], nil
}

// assignBranch writes the branch operands of f into its variables without
// popping them.
func (t *FuncTranslator) assignBranch(f *controlFrame) {
	vars := f.branchVars()
	args := t.peekN(len(vars))
	for i, v := range vars {
		t.b.DefVar(v, args[i])
	}
	if f.kind != ctrlLoop {
		f.exitReached = true
	}
}

func (t *FuncTranslator) br(depth uint32) error {
	f, err := t.frameAt(depth)
	if err != nil {
		return err
	}
	t.assignBranch(f)
	t.b.Jump(f.branchTarget())
	t.markUnreachable()
	return nil
}

func (t *FuncTranslator) brIf(depth uint32) error {
	cond := t.pop()
	f, err := t.frameAt(depth)
	if err != nil {
		return err
	}
	t.assignBranch(f)
	next := t.b.CreateBlock()
	t.b.Brif(cond, f.branchTarget(), next)
	t.b.SwitchToBlock(next)
	return nil
}

func (t *FuncTranslator) brTable(labels []uint32, def uint32) error {
	idx := t.pop()
	defFrame, err := t.frameAt(def)
	if err != nil {
		return err
	}
	arity := len(defFrame.branchVars())

	// without operands every target is jumped to directly, otherwise each
	// distinct target gets an edge block that assigns its variables
	var order []uint32
	edges := make(map[uint32]ir.Block)
	target := func(depth uint32) (ir.Block, error) {
		f, err := t.frameAt(depth)
		if err != nil {
			return 0, err
		}
		if len(f.branchVars()) != arity {
			return 0, t.fail(errors.KindInvalidData, "br_table targets disagree on arity")
		}
		if arity == 0 {
			if f.kind != ctrlLoop {
				f.exitReached = true
			}
			return f.branchTarget(), nil
		}
		if blk, ok := edges[depth]; ok {
			return blk, nil
		}
		blk := t.b.CreateBlock()
		edges[depth] = blk
		order = append(order, depth)
		return blk, nil
	}

	targets := make([]ir.Block, len(labels))
	for i, l := range labels {
		if targets[i], err = target(l); err != nil {
			return err
		}
	}
	defBlock, err := target(def)
	if err != nil {
		return err
	}
	t.b.BrTable(idx, targets, defBlock)

	for _, depth := range order {
		f, _ := t.frameAt(depth)
		t.b.SwitchToBlock(edges[depth])
		t.assignBranch(f)
		t.b.Jump(f.branchTarget())
	}
	t.markUnreachable()
	return nil
}

func (t *FuncTranslator) local(op byte, idx uint32) error {
	if int(idx) >= len(t.locals) {
		return t.fail(errors.KindOutOfRange, "local index %d", idx)
	}
	v := t.locals[idx]
	switch op {
	case wasm.OpLocalGet:
		t.push(t.b.UseVar(v))
	case wasm.OpLocalSet:
		t.b.DefVar(v, t.pop())
	case wasm.OpLocalTee:
		t.b.DefVar(v, t.peekN(1)[0])
	}
	return nil
}

func (t *FuncTranslator) global(idx uint32) (GlobalVariable, error) {
	if g, ok := t.globals[idx]; ok {
		return g, nil
	}
	g, err := t.env.MakeGlobal(t.fn, idx)
	if err != nil {
		return g, err
	}
	t.globals[idx] = g
	return g, nil
}

func (t *FuncTranslator) globalGet(idx uint32) error {
	g, err := t.global(idx)
	if err != nil {
		return err
	}
	switch g.Kind {
	case GlobalConst:
		if g.Type == ir.F32 || g.Type == ir.F64 {
			t.push(t.b.Fconst(g.Type, g.Bits))
		} else {
			t.push(t.b.Iconst(g.Type, int64(g.Bits)))
		}
	case GlobalMemory:
		addr := t.b.GlobalValue(t.env.PointerType(), g.GV)
		t.push(t.b.Load(g.Type, addr, g.Offset))
	case GlobalCustom:
		v, err := t.env.TranslateCustomGlobalGet(t.b, idx)
		if err != nil {
			return err
		}
		t.push(v)
	}
	return nil
}

func (t *FuncTranslator) globalSet(idx uint32) error {
	g, err := t.global(idx)
	if err != nil {
		return err
	}
	val := t.pop()
	switch g.Kind {
	case GlobalConst:
		return t.fail(errors.KindInvalidData, "global.set on constant global %d", idx)
	case GlobalMemory:
		addr := t.b.GlobalValue(t.env.PointerType(), g.GV)
		t.b.Store(val, addr, g.Offset)
	case GlobalCustom:
		return t.env.TranslateCustomGlobalSet(t.b, idx, val)
	}
	return nil
}

func (t *FuncTranslator) heap(idx uint32) (HeapData, error) {
	if h, ok := t.heaps[idx]; ok {
		return h, nil
	}
	h, err := t.env.MakeHeap(t.fn, idx)
	if err != nil {
		return h, err
	}
	t.heaps[idx] = h
	return h, nil
}

func (t *FuncTranslator) table(idx uint32) (TableData, error) {
	if tb, ok := t.tables[idx]; ok {
		return tb, nil
	}
	tb, err := t.env.MakeTable(t.fn, idx)
	if err != nil {
		return tb, err
	}
	t.tables[idx] = tb
	return tb, nil
}

// heapAddr computes base+index for an access of size bytes at offset,
// emitting a bounds check unless the heap reservation and guard region
// cover every index the access can use.
func (t *FuncTranslator) heapAddr(heap HeapData, index ir.Value, offset uint64, size uint8) (ir.Value, error) {
	if heap.Style != HeapStatic {
		return 0, t.fail(errors.KindUnsupported, "dynamic heap")
	}
	ptr := t.env.PointerType()
	idx := index
	if heap.IndexType == ir.I32 && ptr != ir.I32 {
		idx = t.b.Uextend(ptr, index)
	}

	if offset > math.MaxUint64-uint64(size) {
		return 0, t.fail(errors.KindOutOfRange, "memory offset %d", offset)
	}
	end := offset + uint64(size)
	covered := heap.IndexType == ir.I32 &&
		heap.Bound+heap.OffsetGuardSize >= heap.Bound &&
		math.MaxUint32+end <= heap.Bound+heap.OffsetGuardSize
	if !covered {
		var oob ir.Value
		if end > heap.Bound {
			oob = t.b.Iconst(ir.I32, 1)
		} else {
			limit := t.b.Iconst(ptr, int64(heap.Bound-end))
			oob = t.b.Icmp(ir.IntUnsignedGreaterThan, idx, limit)
		}
		trap := t.b.CreateBlock()
		cont := t.b.CreateBlock()
		t.b.Brif(oob, trap, cont)
		t.b.SwitchToBlock(trap)
		t.b.Trap(ir.TrapHeapOutOfBounds)
		t.b.SwitchToBlock(cont)
	}

	base := t.b.GlobalValue(ptr, heap.Base)
	return t.b.Binary(ir.OpIadd, base, idx), nil
}

func (t *FuncTranslator) load(m wasm.MemoryImm, acc memAccess) error {
	heap, err := t.heap(m.MemIdx)
	if err != nil {
		return err
	}
	off, err := safecast.Conv[int64](m.Offset)
	if err != nil {
		return t.fail(errors.KindOutOfRange, "memory offset %d", m.Offset)
	}
	addr, err := t.heapAddr(heap, t.pop(), m.Offset, acc.size)
	if err != nil {
		return err
	}
	t.push(t.b.LoadSized(acc.typ, acc.size, acc.signed, addr, off))
	return nil
}

func (t *FuncTranslator) store(m wasm.MemoryImm, acc memAccess) error {
	heap, err := t.heap(m.MemIdx)
	if err != nil {
		return err
	}
	off, err := safecast.Conv[int64](m.Offset)
	if err != nil {
		return t.fail(errors.KindOutOfRange, "memory offset %d", m.Offset)
	}
	val := t.pop()
	addr, err := t.heapAddr(heap, t.pop(), m.Offset, acc.size)
	if err != nil {
		return err
	}
	t.b.StoreSized(acc.size, val, addr, off)
	return nil
}

func (t *FuncTranslator) call(funcIdx uint32) error {
	ref, ok := t.funcs[funcIdx]
	if !ok {
		var err error
		if ref, err = t.env.MakeDirectFunc(t.fn, funcIdx); err != nil {
			return err
		}
		t.funcs[funcIdx] = ref
	}
	sig := t.fn.Signatures[t.fn.ExtFuncs[ref].Sig]
	args := t.popN(len(sig.Params))
	results, err := t.env.TranslateCall(t.b, funcIdx, ref, args)
	if err != nil {
		return err
	}
	t.push(results...)
	return nil
}

func (t *FuncTranslator) callIndirect(typeIdx, tableIdx uint32) error {
	sigRef, ok := t.sigs[typeIdx]
	if !ok {
		var err error
		if sigRef, err = t.env.MakeIndirectSig(t.fn, typeIdx); err != nil {
			return err
		}
		t.sigs[typeIdx] = sigRef
	}
	table, err := t.table(tableIdx)
	if err != nil {
		return err
	}
	callee := t.pop()
	args := t.popN(len(t.fn.Signatures[sigRef].Params))
	results, err := t.env.TranslateCallIndirect(t.b, tableIdx, table, typeIdx, sigRef, callee, args)
	if err != nil {
		return err
	}
	t.push(results...)
	return nil
}

func (t *FuncTranslator) misc(imm wasm.MiscImm) error {
	ops := imm.Operands
	switch imm.SubOpcode {
	case wasm.MiscMemoryInit:
		n, src, dst := t.pop(), t.pop(), t.pop()
		return t.env.TranslateMemoryInit(t.b, ops[1], ops[0], dst, src, n)
	case wasm.MiscDataDrop:
		return t.env.TranslateDataDrop(t.b, ops[0])
	case wasm.MiscMemoryCopy:
		n, src, dst := t.pop(), t.pop(), t.pop()
		return t.env.TranslateMemoryCopy(t.b, ops[1], ops[0], dst, src, n)
	case wasm.MiscMemoryFill:
		n, val, dst := t.pop(), t.pop(), t.pop()
		return t.env.TranslateMemoryFill(t.b, ops[0], dst, val, n)
	case wasm.MiscTableInit:
		n, src, dst := t.pop(), t.pop(), t.pop()
		return t.env.TranslateTableInit(t.b, ops[0], ops[1], dst, src, n)
	case wasm.MiscElemDrop:
		return t.env.TranslateElemDrop(t.b, ops[0])
	case wasm.MiscTableCopy:
		n, src, dst := t.pop(), t.pop(), t.pop()
		return t.env.TranslateTableCopy(t.b, ops[0], ops[1], dst, src, n)
	case wasm.MiscTableGrow:
		table, err := t.table(ops[0])
		if err != nil {
			return err
		}
		delta, init := t.pop(), t.pop()
		v, err := t.env.TranslateTableGrow(t.b, ops[0], table, delta, init)
		if err != nil {
			return err
		}
		t.push(v)
	case wasm.MiscTableSize:
		table, err := t.table(ops[0])
		if err != nil {
			return err
		}
		v, err := t.env.TranslateTableSize(t.b, ops[0], table)
		if err != nil {
			return err
		}
		t.push(v)
	case wasm.MiscTableFill:
		n, val, dst := t.pop(), t.pop(), t.pop()
		return t.env.TranslateTableFill(t.b, ops[0], dst, val, n)
	default:
		if imm.SubOpcode > wasm.MiscI64TruncSatF64U {
			return t.fail(errors.KindUnsupported, "misc opcode %d", imm.SubOpcode)
		}
		x := t.pop()
		t.push(t.b.Float(0xFC00+int64(imm.SubOpcode), truncSatResult(imm.SubOpcode), []ir.Value{x}))
	}
	return nil
}

func (t *FuncTranslator) atomic(imm wasm.AtomicImm) error {
	switch imm.SubOpcode {
	case wasm.AtomicFence:
		return nil
	case wasm.AtomicNotify, wasm.AtomicWait32, wasm.AtomicWait64:
	default:
		return t.fail(errors.KindUnsupported, "atomic opcode %d", imm.SubOpcode)
	}

	m := imm.MemArg
	heap, err := t.heap(m.MemIdx)
	if err != nil {
		return err
	}
	size := uint8(4)
	if imm.SubOpcode == wasm.AtomicWait64 {
		size = 8
	}
	var v ir.Value
	if imm.SubOpcode == wasm.AtomicNotify {
		count := t.pop()
		addr, err := t.effectiveAddr(heap, m.Offset, size)
		if err != nil {
			return err
		}
		v, err = t.env.TranslateAtomicNotify(t.b, m.MemIdx, heap, addr, count)
		if err != nil {
			return err
		}
	} else {
		timeout, expected := t.pop(), t.pop()
		addr, err := t.effectiveAddr(heap, m.Offset, size)
		if err != nil {
			return err
		}
		v, err = t.env.TranslateAtomicWait(t.b, m.MemIdx, heap, addr, expected, timeout)
		if err != nil {
			return err
		}
	}
	t.push(v)
	return nil
}

// effectiveAddr pops an index and returns the native address base+index+offset.
func (t *FuncTranslator) effectiveAddr(heap HeapData, offset uint64, size uint8) (ir.Value, error) {
	addr, err := t.heapAddr(heap, t.pop(), offset, size)
	if err != nil {
		return 0, err
	}
	if offset == 0 {
		return addr, nil
	}
	off, err := safecast.Conv[int64](offset)
	if err != nil {
		return 0, t.fail(errors.KindOutOfRange, "memory offset %d", offset)
	}
	return t.b.Binary(ir.OpIadd, addr, t.b.Iconst(t.env.PointerType(), off)), nil
}
