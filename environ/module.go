package environ

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-zkasm/errors"
	"github.com/wippyai/wasm-zkasm/ir"
	"github.com/wippyai/wasm-zkasm/translate"
	"github.com/wippyai/wasm-zkasm/wasm"
)

// Exportable couples a module entity with the names it is exported under.
type Exportable[T any] struct {
	Entity      T
	ExportNames []string
}

// NewExportable wraps an entity that has no exports yet.
func NewExportable[T any](entity T) Exportable[T] {
	return Exportable[T]{Entity: entity}
}

// ImportName is the two-level name of an imported entity.
type ImportName struct {
	Module string
	Field  string
}

func (n ImportName) String() string {
	return n.Module + "." + n.Field
}

// GlobalInit pairs a global with its initializer.
type GlobalInit struct {
	Init  translate.GlobalInit
	Index uint32
}

// DataInit is an active data segment placed at a constant byte offset.
type DataInit struct {
	Data   []byte
	Offset uint64
}

// TableInit is an active element segment.
type TableInit struct {
	Base     *uint32
	Elements []uint32
	Table    uint32
	Offset   uint32
}

// ModuleInfo collects everything declared by a module. Imported entities of
// each kind occupy the low indices of their index space.
type ModuleInfo struct {
	Signatures      []ir.Signature
	WasmTypes       []wasm.FuncType
	ImportedFuncs   []ImportName
	ImportedGlobals []ImportName
	ImportedTables  []ImportName
	ImportedMemory  []ImportName
	Functions       []Exportable[uint32] // type index per function
	Bodies          []translate.FunctionBody
	FunctionBodies  []*ir.Function // per defined function, filled by TranslateFunction callers
	Tables          []Exportable[translate.Table]
	Memories        []Exportable[translate.Memory]
	Globals         []Exportable[translate.Global]
	GlobalInits     []GlobalInit
	DataInits       []DataInit
	TableInits      []TableInit
	PassiveData     map[uint32][]byte
	PassiveElements map[uint32][]uint32
	FuncNames       map[uint32]string
	Start           *uint32
	Name            string
}

// NumImportedFuncs returns the number of imported functions.
func (m *ModuleInfo) NumImportedFuncs() int {
	return len(m.ImportedFuncs)
}

// FuncSignature returns the IR signature of function idx.
func (m *ModuleInfo) FuncSignature(idx uint32) (ir.Signature, error) {
	if int(idx) >= len(m.Functions) {
		return ir.Signature{}, errors.OutOfRange(errors.PhaseTranslate, "function index", idx)
	}
	return m.Signatures[m.Functions[idx].Entity], nil
}

// FuncName returns the name section entry for idx, or "".
func (m *ModuleInfo) FuncName(idx uint32) string {
	return m.FuncNames[idx]
}

// ImportOf returns the import name of function idx if it is imported.
func (m *ModuleInfo) ImportOf(idx uint32) (ImportName, bool) {
	if int(idx) < len(m.ImportedFuncs) {
		return m.ImportedFuncs[idx], true
	}
	return ImportName{}, false
}

// ExportedFunc looks up a function by export name.
func (m *ModuleInfo) ExportedFunc(name string) (uint32, bool) {
	for i, f := range m.Functions {
		for _, n := range f.ExportNames {
			if n == name {
				return uint32(i), true
			}
		}
	}
	return 0, false
}

// ZkasmEnvironment receives module declarations for the zkASM target.
type ZkasmEnvironment struct {
	Info *ModuleInfo
}

// NewZkasmEnvironment returns an environment with an empty ModuleInfo.
func NewZkasmEnvironment() *ZkasmEnvironment {
	return &ZkasmEnvironment{Info: &ModuleInfo{
		PassiveData:     make(map[uint32][]byte),
		PassiveElements: make(map[uint32][]uint32),
		FuncNames:       make(map[uint32]string),
	}}
}

// FuncEnv returns a function environment over the collected declarations.
func (e *ZkasmEnvironment) FuncEnv() *FuncEnv {
	return NewFuncEnv(e.Info)
}

func (e *ZkasmEnvironment) DeclareTypeFunc(ft wasm.FuncType) error {
	sig, ok := translate.IRSignature(ft)
	if !ok {
		return errors.Unsupported(errors.PhaseTranslate, "function type value")
	}
	e.Info.Signatures = append(e.Info.Signatures, sig)
	e.Info.WasmTypes = append(e.Info.WasmTypes, ft)
	return nil
}

// importsFirst rejects an import declared after a definition of its kind.
func importsFirst(kind string, imported, total int) error {
	if imported != total {
		return errors.New(errors.PhaseTranslate, errors.KindInvalidData).
			Path(kind).
			Detail("%s import declared after %d defined entities", kind, total-imported).
			Build()
	}
	return nil
}

func (e *ZkasmEnvironment) DeclareFuncImport(typeIndex uint32, module, field string) error {
	if err := importsFirst("function", len(e.Info.ImportedFuncs), len(e.Info.Functions)); err != nil {
		return err
	}
	e.Info.Functions = append(e.Info.Functions, NewExportable(typeIndex))
	e.Info.ImportedFuncs = append(e.Info.ImportedFuncs, ImportName{module, field})
	return nil
}

func (e *ZkasmEnvironment) DeclareTableImport(table translate.Table, module, field string) error {
	if err := importsFirst("table", len(e.Info.ImportedTables), len(e.Info.Tables)); err != nil {
		return err
	}
	e.Info.Tables = append(e.Info.Tables, NewExportable(table))
	e.Info.ImportedTables = append(e.Info.ImportedTables, ImportName{module, field})
	return nil
}

func (e *ZkasmEnvironment) DeclareMemoryImport(memory translate.Memory, module, field string) error {
	if err := importsFirst("memory", len(e.Info.ImportedMemory), len(e.Info.Memories)); err != nil {
		return err
	}
	e.Info.Memories = append(e.Info.Memories, NewExportable(memory))
	e.Info.ImportedMemory = append(e.Info.ImportedMemory, ImportName{module, field})
	return nil
}

func (e *ZkasmEnvironment) DeclareGlobalImport(global translate.Global, module, field string) error {
	if err := importsFirst("global", len(e.Info.ImportedGlobals), len(e.Info.Globals)); err != nil {
		return err
	}
	e.Info.Globals = append(e.Info.Globals, NewExportable(global))
	e.Info.ImportedGlobals = append(e.Info.ImportedGlobals, ImportName{module, field})
	return nil
}

func (e *ZkasmEnvironment) DeclareFuncType(typeIndex uint32) error {
	if int(typeIndex) >= len(e.Info.Signatures) {
		return errors.OutOfRange(errors.PhaseTranslate, "type index", typeIndex)
	}
	e.Info.Functions = append(e.Info.Functions, NewExportable(typeIndex))
	return nil
}

func (e *ZkasmEnvironment) DeclareTable(table translate.Table) error {
	e.Info.Tables = append(e.Info.Tables, NewExportable(table))
	return nil
}

func (e *ZkasmEnvironment) DeclareMemory(memory translate.Memory) error {
	e.Info.Memories = append(e.Info.Memories, NewExportable(memory))
	return nil
}

func (e *ZkasmEnvironment) DeclareGlobal(global translate.Global, init translate.GlobalInit) error {
	idx := uint32(len(e.Info.Globals))
	e.Info.Globals = append(e.Info.Globals, NewExportable(global))
	e.Info.GlobalInits = append(e.Info.GlobalInits, GlobalInit{Index: idx, Init: init})
	return nil
}

func (e *ZkasmEnvironment) DeclareFuncExport(funcIndex uint32, name string) error {
	if int(funcIndex) >= len(e.Info.Functions) {
		return errors.OutOfRange(errors.PhaseTranslate, "exported function index", funcIndex)
	}
	f := &e.Info.Functions[funcIndex]
	f.ExportNames = append(f.ExportNames, name)
	return nil
}

func (e *ZkasmEnvironment) DeclareTableExport(tableIndex uint32, name string) error {
	if int(tableIndex) >= len(e.Info.Tables) {
		return errors.OutOfRange(errors.PhaseTranslate, "exported table index", tableIndex)
	}
	t := &e.Info.Tables[tableIndex]
	t.ExportNames = append(t.ExportNames, name)
	return nil
}

func (e *ZkasmEnvironment) DeclareMemoryExport(memoryIndex uint32, name string) error {
	if int(memoryIndex) >= len(e.Info.Memories) {
		return errors.OutOfRange(errors.PhaseTranslate, "exported memory index", memoryIndex)
	}
	m := &e.Info.Memories[memoryIndex]
	m.ExportNames = append(m.ExportNames, name)
	return nil
}

func (e *ZkasmEnvironment) DeclareGlobalExport(globalIndex uint32, name string) error {
	if int(globalIndex) >= len(e.Info.Globals) {
		return errors.OutOfRange(errors.PhaseTranslate, "exported global index", globalIndex)
	}
	g := &e.Info.Globals[globalIndex]
	g.ExportNames = append(g.ExportNames, name)
	return nil
}

func (e *ZkasmEnvironment) DeclareStartFunc(funcIndex uint32) error {
	if e.Info.Start != nil {
		return errors.Duplicate(errors.PhaseTranslate, "start function", funcIndex)
	}
	e.Info.Start = &funcIndex
	return nil
}

func (e *ZkasmEnvironment) DeclareTableElements(tableIndex uint32, base *uint32, offset uint32, elements []uint32) error {
	e.Info.TableInits = append(e.Info.TableInits, TableInit{
		Table:    tableIndex,
		Base:     base,
		Offset:   offset,
		Elements: elements,
	})
	return nil
}

func (e *ZkasmEnvironment) DeclarePassiveElement(index uint32, elements []uint32) error {
	e.Info.PassiveElements[index] = elements
	return nil
}

func (e *ZkasmEnvironment) DeclarePassiveData(index uint32, data []byte) error {
	e.Info.PassiveData[index] = data
	return nil
}

// DeclareDataInitialization accepts only constant offsets into memory 0.
func (e *ZkasmEnvironment) DeclareDataInitialization(memoryIndex uint32, base *uint32, offset uint64, data []byte) error {
	if memoryIndex != 0 {
		return errors.Unsupported(errors.PhaseTranslate, fmt.Sprintf("data segment for memory %d", memoryIndex))
	}
	if base != nil {
		return errors.Unsupported(errors.PhaseTranslate, "data segment offset from a global")
	}
	e.Info.DataInits = append(e.Info.DataInits, DataInit{Offset: offset, Data: data})
	return nil
}

func (e *ZkasmEnvironment) DeclareModuleName(name string) {
	e.Info.Name = name
}

func (e *ZkasmEnvironment) DeclareFuncName(funcIndex uint32, name string) {
	e.Info.FuncNames[funcIndex] = name
}

func (e *ZkasmEnvironment) DefineFunctionBody(body translate.FunctionBody) error {
	want := uint32(e.Info.NumImportedFuncs() + len(e.Info.Bodies))
	if body.FuncIndex != want {
		return errors.Internal(errors.PhaseTranslate,
			fmt.Sprintf("function body %d defined out of order, want %d", body.FuncIndex, want))
	}
	e.Info.Bodies = append(e.Info.Bodies, body)
	e.Info.FunctionBodies = append(e.Info.FunctionBodies, nil)
	Logger().Debug("declared function body",
		zap.Uint32("func", body.FuncIndex),
		zap.Uint32("size", body.Size))
	return nil
}

// Translate decodes data and collects its declarations. Function bodies are
// recorded but not translated, see TranslateFunction.
func Translate(data []byte) (*ModuleInfo, *wasm.Module, error) {
	env := NewZkasmEnvironment()
	m, err := translate.TranslateModule(data, env)
	if err != nil {
		return nil, nil, err
	}
	Logger().Info("module declarations collected",
		zap.String("name", env.Info.Name),
		zap.Int("functions", len(env.Info.Functions)),
		zap.Int("imported", env.Info.NumImportedFuncs()),
		zap.Int("globals", len(env.Info.Globals)),
		zap.Int("data_segments", len(env.Info.DataInits)))
	return env.Info, m, nil
}

// TranslateFunction translates the defined function at defIndex to IR and
// stores it in info.FunctionBodies. Calls for distinct indices may run
// concurrently once all declarations are collected.
func TranslateFunction(info *ModuleInfo, defIndex int) (*ir.Function, error) {
	body := info.Bodies[defIndex]
	sig, err := info.FuncSignature(body.FuncIndex)
	if err != nil {
		return nil, err
	}
	fn := ir.NewFunction(ir.UserName(0, body.FuncIndex), sig)
	if err := translate.NewFuncTranslator().Translate(body, fn, NewFuncEnv(info)); err != nil {
		return nil, err
	}
	info.FunctionBodies[defIndex] = fn
	Logger().Debug("translated function",
		zap.Uint32("func", body.FuncIndex),
		zap.Int("blocks", len(fn.Layout())),
		zap.Int("insts", fn.NumInsts()))
	return fn, nil
}
