package translate

import (
	"github.com/wippyai/wasm-zkasm/ir"
	"github.com/wippyai/wasm-zkasm/wasm"
)

// NullFunc marks a null entry in an element segment.
const NullFunc = ^uint32(0)

// Global describes a module global.
type Global struct {
	Type    ir.Type
	Mutable bool
}

// GlobalInitKind identifies the form of a global initializer.
type GlobalInitKind uint8

const (
	InitI32Const GlobalInitKind = iota
	InitI64Const
	InitF32Const
	InitF64Const
	InitGetGlobal
	InitRefNull
	InitRefFunc
	InitImport
)

// GlobalInit is the initializer of a global.
type GlobalInit struct {
	Bits  uint64 // constant bit pattern
	Index uint32 // global or function index
	Kind  GlobalInitKind
}

// Table describes a table.
type Table struct {
	Max      *uint64
	Min      uint64
	ElemType ir.Type
}

// Memory describes a linear memory, sized in 64KiB pages.
type Memory struct {
	Max      *uint64
	Min      uint64
	Shared   bool
	Memory64 bool
}

// FunctionBody is the code of one defined function.
type FunctionBody struct {
	Locals       []wasm.LocalEntry
	Code         []byte
	FuncIndex    uint32 // index in the combined function space
	DefinedIndex uint32 // index among defined functions
	Size         uint32 // encoded body size in bytes
}

// ModuleEnvironment receives the declarations of a module in section order.
// Imported entities of each kind are always declared before defined ones.
type ModuleEnvironment interface {
	DeclareTypeFunc(sig wasm.FuncType) error
	DeclareFuncImport(typeIndex uint32, module, field string) error
	DeclareTableImport(table Table, module, field string) error
	DeclareMemoryImport(memory Memory, module, field string) error
	DeclareGlobalImport(global Global, module, field string) error
	DeclareFuncType(typeIndex uint32) error
	DeclareTable(table Table) error
	DeclareMemory(memory Memory) error
	DeclareGlobal(global Global, init GlobalInit) error
	DeclareFuncExport(funcIndex uint32, name string) error
	DeclareTableExport(tableIndex uint32, name string) error
	DeclareMemoryExport(memoryIndex uint32, name string) error
	DeclareGlobalExport(globalIndex uint32, name string) error
	DeclareStartFunc(funcIndex uint32) error
	DeclareTableElements(tableIndex uint32, base *uint32, offset uint32, elements []uint32) error
	DeclarePassiveElement(index uint32, elements []uint32) error
	DeclarePassiveData(index uint32, data []byte) error
	DeclareDataInitialization(memoryIndex uint32, base *uint32, offset uint64, data []byte) error
	DeclareModuleName(name string)
	DeclareFuncName(funcIndex uint32, name string)
	DefineFunctionBody(body FunctionBody) error
}

// GlobalVariableKind identifies how a global is accessed from code.
type GlobalVariableKind uint8

const (
	// GlobalMemory globals live at GV+Offset.
	GlobalMemory GlobalVariableKind = iota
	// GlobalConst globals fold to a constant.
	GlobalConst
	// GlobalCustom globals are accessed through environment callbacks.
	GlobalCustom
)

// GlobalVariable describes how code reads and writes one global.
type GlobalVariable struct {
	Offset int64
	Bits   uint64
	GV     ir.GlobalValue
	Kind   GlobalVariableKind
	Type   ir.Type
}

// HeapStyle distinguishes fixed from resizable heaps.
type HeapStyle uint8

const (
	HeapStatic HeapStyle = iota
	HeapDynamic
)

// HeapData describes the linear memory as seen from one function.
type HeapData struct {
	MaxSize         *uint64
	MinSize         uint64
	Bound           uint64 // reserved address space for static heaps
	OffsetGuardSize uint64
	Base            ir.GlobalValue
	Style           HeapStyle
	IndexType       ir.Type
}

// TableData describes a table as seen from one function.
type TableData struct {
	ElementSize uint64
	Base        ir.GlobalValue
	Bound       ir.GlobalValue
}

// FuncEnvironment supplies the target conventions a function body is
// translated under. Operations the target does not support are expected to
// produce sentinel values or nothing instead of failing.
type FuncEnvironment interface {
	PointerType() ir.Type
	TypeSignature(typeIndex uint32) (ir.Signature, error)

	MakeGlobal(fn *ir.Function, index uint32) (GlobalVariable, error)
	MakeHeap(fn *ir.Function, index uint32) (HeapData, error)
	MakeTable(fn *ir.Function, index uint32) (TableData, error)
	MakeIndirectSig(fn *ir.Function, typeIndex uint32) (ir.SigRef, error)
	MakeDirectFunc(fn *ir.Function, funcIndex uint32) (ir.FuncRef, error)

	TranslateCall(b *ir.Builder, funcIndex uint32, callee ir.FuncRef, args []ir.Value) ([]ir.Value, error)
	TranslateCallIndirect(b *ir.Builder, tableIndex uint32, table TableData, typeIndex uint32, sig ir.SigRef, callee ir.Value, args []ir.Value) ([]ir.Value, error)

	TranslateMemoryGrow(b *ir.Builder, index uint32, heap HeapData, delta ir.Value) (ir.Value, error)
	TranslateMemorySize(b *ir.Builder, index uint32, heap HeapData) (ir.Value, error)
	TranslateMemoryCopy(b *ir.Builder, srcIndex, dstIndex uint32, dst, src, n ir.Value) error
	TranslateMemoryFill(b *ir.Builder, index uint32, dst, val, n ir.Value) error
	TranslateMemoryInit(b *ir.Builder, index, segment uint32, dst, src, n ir.Value) error
	TranslateDataDrop(b *ir.Builder, segment uint32) error

	TranslateTableSize(b *ir.Builder, index uint32, table TableData) (ir.Value, error)
	TranslateTableGrow(b *ir.Builder, index uint32, table TableData, delta, init ir.Value) (ir.Value, error)
	TranslateTableGet(b *ir.Builder, index uint32, table TableData, idx ir.Value) (ir.Value, error)
	TranslateTableSet(b *ir.Builder, index uint32, table TableData, val, idx ir.Value) error
	TranslateTableCopy(b *ir.Builder, dstIndex, srcIndex uint32, dst, src, n ir.Value) error
	TranslateTableFill(b *ir.Builder, index uint32, dst, val, n ir.Value) error
	TranslateTableInit(b *ir.Builder, segment, table uint32, dst, src, n ir.Value) error
	TranslateElemDrop(b *ir.Builder, segment uint32) error
	TranslateRefFunc(b *ir.Builder, funcIndex uint32) (ir.Value, error)

	TranslateCustomGlobalGet(b *ir.Builder, index uint32) (ir.Value, error)
	TranslateCustomGlobalSet(b *ir.Builder, index uint32, val ir.Value) error

	TranslateAtomicWait(b *ir.Builder, index uint32, heap HeapData, addr, expected, timeout ir.Value) (ir.Value, error)
	TranslateAtomicNotify(b *ir.Builder, index uint32, heap HeapData, addr, count ir.Value) (ir.Value, error)
}

// IRType maps a wasm value type to its IR type. References are 64-bit.
func IRType(t wasm.ValType) (ir.Type, bool) {
	switch t {
	case wasm.ValI32:
		return ir.I32, true
	case wasm.ValI64:
		return ir.I64, true
	case wasm.ValF32:
		return ir.F32, true
	case wasm.ValF64:
		return ir.F64, true
	case wasm.ValV128:
		return ir.V128, true
	case wasm.ValFuncRef, wasm.ValExtern:
		return ir.R64, true
	}
	return ir.TypeInvalid, false
}

// IRSignature maps a wasm function type to an IR signature.
func IRSignature(ft wasm.FuncType) (ir.Signature, bool) {
	var sig ir.Signature
	for _, p := range ft.Params {
		t, ok := IRType(p)
		if !ok {
			return sig, false
		}
		sig.Params = append(sig.Params, t)
	}
	for _, r := range ft.Results {
		t, ok := IRType(r)
		if !ok {
			return sig, false
		}
		sig.Results = append(sig.Results, t)
	}
	return sig, true
}
