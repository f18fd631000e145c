package environ

import (
	"fmt"

	"github.com/wippyai/wasm-zkasm/errors"
	"github.com/wippyai/wasm-zkasm/ir"
	"github.com/wippyai/wasm-zkasm/translate"
)

// Every heap, global and table access is addressed relative to one
// synthetic symbol. The symbol offset selects which base is meant.
const (
	HeapBase    int64 = 0
	GlobalsBase int64 = 1
	TableBase   int64 = 2
)

// BaseName names the synthetic base symbol. It lives in its own namespace
// so it can never be mistaken for a function.
var BaseName = ir.UserName(1, 0)

// Heap geometry: a fixed 4GiB reservation followed by a 2GiB guard region,
// so 32-bit indices with offsets below 2GiB need no bounds checks.
const (
	HeapBound     uint64 = 0x1_0000_0000
	HeapGuardSize uint64 = 0x8000_0000
)

// PointerBytes is the width of a table entry.
const PointerBytes = 8

// TrapFunc is the function index reserved for trap relocations.
const TrapFunc uint32 = 0

const intrinsicModule = "env"

// intrinsics maps imported names to the IR they are replaced with.
var intrinsics = map[string]func(b *ir.Builder, args []ir.Value){
	"assert_eq_i32": func(b *ir.Builder, args []ir.Value) { b.AssertEq(args[0], args[1]) },
	"assert_eq_i64": func(b *ir.Builder, args []ir.Value) { b.AssertEq(args[0], args[1]) },
}

// IsIntrinsic reports whether an import is replaced by inline IR.
func IsIntrinsic(name ImportName) bool {
	_, ok := intrinsics[name.Field]
	return ok && name.Module == intrinsicModule
}

// FuncEnv is the per-function environment. It only reads ModuleInfo, so
// several FuncEnvs may translate functions of one module concurrently.
type FuncEnv struct {
	info *ModuleInfo
}

// NewFuncEnv returns a function environment for info.
func NewFuncEnv(info *ModuleInfo) *FuncEnv {
	return &FuncEnv{info: info}
}

var _ translate.FuncEnvironment = (*FuncEnv)(nil)

func (e *FuncEnv) base(fn *ir.Function, which int64) ir.GlobalValue {
	return fn.CreateGlobalValue(ir.GlobalValueData{
		Kind:   ir.GVSymbol,
		Name:   BaseName,
		Offset: which,
		Type:   ir.I64,
	})
}

func (e *FuncEnv) PointerType() ir.Type { return ir.I64 }

func (e *FuncEnv) TypeSignature(typeIndex uint32) (ir.Signature, error) {
	if int(typeIndex) >= len(e.info.Signatures) {
		return ir.Signature{}, errors.OutOfRange(errors.PhaseTranslate, "type index", typeIndex)
	}
	return e.info.Signatures[typeIndex], nil
}

// MakeGlobal places global i at offset i of the globals base. The lowering
// maps that pair to the storage cell global_i.
func (e *FuncEnv) MakeGlobal(fn *ir.Function, index uint32) (translate.GlobalVariable, error) {
	if int(index) >= len(e.info.Globals) {
		return translate.GlobalVariable{}, errors.OutOfRange(errors.PhaseTranslate, "global index", index)
	}
	return translate.GlobalVariable{
		Kind:   translate.GlobalMemory,
		GV:     e.base(fn, GlobalsBase),
		Offset: int64(index),
		Type:   e.info.Globals[index].Entity.Type,
	}, nil
}

func (e *FuncEnv) MakeHeap(fn *ir.Function, index uint32) (translate.HeapData, error) {
	if index != 0 {
		return translate.HeapData{}, errors.Unsupported(errors.PhaseTranslate, fmt.Sprintf("memory %d", index))
	}
	return translate.HeapData{
		Base:            e.base(fn, HeapBase),
		Bound:           HeapBound,
		OffsetGuardSize: HeapGuardSize,
		Style:           translate.HeapStatic,
		IndexType:       ir.I32,
	}, nil
}

// MakeTable reads the table bound from offset 0 of the table base.
func (e *FuncEnv) MakeTable(fn *ir.Function, _ uint32) (translate.TableData, error) {
	base := e.base(fn, TableBase)
	bound := fn.CreateGlobalValue(ir.GlobalValueData{
		Kind:     ir.GVLoad,
		Base:     base,
		Type:     ir.I32,
		Readonly: true,
	})
	return translate.TableData{Base: base, Bound: bound, ElementSize: PointerBytes}, nil
}

func (e *FuncEnv) MakeIndirectSig(fn *ir.Function, typeIndex uint32) (ir.SigRef, error) {
	sig, err := e.TypeSignature(typeIndex)
	if err != nil {
		return 0, err
	}
	return fn.ImportSignature(sig), nil
}

// MakeDirectFunc names the callee by its function index. Resolution to a
// label happens when relocations are patched.
func (e *FuncEnv) MakeDirectFunc(fn *ir.Function, funcIndex uint32) (ir.FuncRef, error) {
	sig, err := e.info.FuncSignature(funcIndex)
	if err != nil {
		return 0, err
	}
	return fn.ImportFunction(ir.ExtFuncData{
		Name: ir.UserName(0, funcIndex),
		Sig:  fn.ImportSignature(sig),
	}), nil
}

func (e *FuncEnv) TranslateCall(b *ir.Builder, funcIndex uint32, callee ir.FuncRef, args []ir.Value) ([]ir.Value, error) {
	if imp, ok := e.info.ImportOf(funcIndex); ok {
		if !IsIntrinsic(imp) {
			return nil, errors.Unsupported(errors.PhaseTranslate, "call to imported function "+imp.String())
		}
		intrinsics[imp.Field](b, args)
		return nil, nil
	}
	if funcIndex == TrapFunc {
		return nil, errors.Unsupported(errors.PhaseTranslate, "call to function 0, which is reserved for traps")
	}
	return b.Call(callee, args), nil
}

// TranslateCallIndirect loads the callee address from table_base+idx*8.
// The signature of the target is not checked.
func (e *FuncEnv) TranslateCallIndirect(b *ir.Builder, _ uint32, table translate.TableData, _ uint32, sig ir.SigRef, callee ir.Value, args []ir.Value) ([]ir.Value, error) {
	idx := callee
	if b.Func().ValueType(callee) != ir.I64 {
		idx = b.Uextend(ir.I64, callee)
	}
	scaled := b.Binary(ir.OpImul, idx, b.Iconst(ir.I64, int64(table.ElementSize)))
	addr := b.Binary(ir.OpIadd, b.GlobalValue(ir.I64, table.Base), scaled)
	ptr := b.Load(ir.I64, addr, 0)
	return b.CallIndirect(sig, ptr, args), nil
}

func notSupported(b *ir.Builder) ir.Value {
	return b.Iconst(ir.I32, -1)
}

func (e *FuncEnv) TranslateMemoryGrow(b *ir.Builder, _ uint32, _ translate.HeapData, _ ir.Value) (ir.Value, error) {
	return notSupported(b), nil
}

func (e *FuncEnv) TranslateMemorySize(b *ir.Builder, _ uint32, _ translate.HeapData) (ir.Value, error) {
	return notSupported(b), nil
}

func (e *FuncEnv) TranslateMemoryCopy(*ir.Builder, uint32, uint32, ir.Value, ir.Value, ir.Value) error {
	return nil
}

func (e *FuncEnv) TranslateMemoryFill(*ir.Builder, uint32, ir.Value, ir.Value, ir.Value) error {
	return nil
}

func (e *FuncEnv) TranslateMemoryInit(*ir.Builder, uint32, uint32, ir.Value, ir.Value, ir.Value) error {
	return nil
}

func (e *FuncEnv) TranslateDataDrop(*ir.Builder, uint32) error { return nil }

func (e *FuncEnv) TranslateTableSize(b *ir.Builder, _ uint32, _ translate.TableData) (ir.Value, error) {
	return notSupported(b), nil
}

func (e *FuncEnv) TranslateTableGrow(b *ir.Builder, _ uint32, _ translate.TableData, _, _ ir.Value) (ir.Value, error) {
	return notSupported(b), nil
}

func (e *FuncEnv) TranslateTableGet(b *ir.Builder, _ uint32, _ translate.TableData, _ ir.Value) (ir.Value, error) {
	return b.Iconst(ir.R64, 0), nil
}

func (e *FuncEnv) TranslateTableSet(*ir.Builder, uint32, translate.TableData, ir.Value, ir.Value) error {
	return nil
}

func (e *FuncEnv) TranslateTableCopy(*ir.Builder, uint32, uint32, ir.Value, ir.Value, ir.Value) error {
	return nil
}

func (e *FuncEnv) TranslateTableFill(*ir.Builder, uint32, ir.Value, ir.Value, ir.Value) error {
	return nil
}

func (e *FuncEnv) TranslateTableInit(*ir.Builder, uint32, uint32, ir.Value, ir.Value, ir.Value) error {
	return nil
}

func (e *FuncEnv) TranslateElemDrop(*ir.Builder, uint32) error { return nil }

func (e *FuncEnv) TranslateRefFunc(b *ir.Builder, _ uint32) (ir.Value, error) {
	return b.Iconst(ir.R64, 0), nil
}

func (e *FuncEnv) TranslateCustomGlobalGet(b *ir.Builder, _ uint32) (ir.Value, error) {
	return notSupported(b), nil
}

func (e *FuncEnv) TranslateCustomGlobalSet(*ir.Builder, uint32, ir.Value) error { return nil }

func (e *FuncEnv) TranslateAtomicWait(b *ir.Builder, _ uint32, _ translate.HeapData, _, _, _ ir.Value) (ir.Value, error) {
	return notSupported(b), nil
}

func (e *FuncEnv) TranslateAtomicNotify(b *ir.Builder, _ uint32, _ translate.HeapData, _, _ ir.Value) (ir.Value, error) {
	return b.Iconst(ir.I32, 0), nil
}
