package translate

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/wippyai/wasm-zkasm/wasm"
)

// recorder logs every declaration as a short event string.
type recorder struct {
	events []string
	bodies []FunctionBody
}

func (r *recorder) add(format string, args ...any) error {
	r.events = append(r.events, fmt.Sprintf(format, args...))
	return nil
}

func (r *recorder) DeclareTypeFunc(sig wasm.FuncType) error {
	return r.add("type %d->%d", len(sig.Params), len(sig.Results))
}
func (r *recorder) DeclareFuncImport(ti uint32, module, field string) error {
	return r.add("import func %d %s.%s", ti, module, field)
}
func (r *recorder) DeclareTableImport(_ Table, module, field string) error {
	return r.add("import table %s.%s", module, field)
}
func (r *recorder) DeclareMemoryImport(_ Memory, module, field string) error {
	return r.add("import memory %s.%s", module, field)
}
func (r *recorder) DeclareGlobalImport(g Global, module, field string) error {
	return r.add("import global %s %s.%s", g.Type, module, field)
}
func (r *recorder) DeclareFuncType(ti uint32) error { return r.add("func %d", ti) }
func (r *recorder) DeclareTable(t Table) error      { return r.add("table %d", t.Min) }
func (r *recorder) DeclareMemory(m Memory) error    { return r.add("memory %d", m.Min) }
func (r *recorder) DeclareGlobal(g Global, init GlobalInit) error {
	return r.add("global %s %d", g.Type, init.Bits)
}
func (r *recorder) DeclareFuncExport(idx uint32, name string) error {
	return r.add("export func %d %s", idx, name)
}
func (r *recorder) DeclareTableExport(idx uint32, name string) error {
	return r.add("export table %d %s", idx, name)
}
func (r *recorder) DeclareMemoryExport(idx uint32, name string) error {
	return r.add("export memory %d %s", idx, name)
}
func (r *recorder) DeclareGlobalExport(idx uint32, name string) error {
	return r.add("export global %d %s", idx, name)
}
func (r *recorder) DeclareStartFunc(idx uint32) error { return r.add("start %d", idx) }
func (r *recorder) DeclareTableElements(ti uint32, base *uint32, offset uint32, elems []uint32) error {
	return r.add("elements %d %v %d %v", ti, base != nil, offset, elems)
}
func (r *recorder) DeclarePassiveElement(idx uint32, elems []uint32) error {
	return r.add("passive elem %d %v", idx, elems)
}
func (r *recorder) DeclarePassiveData(idx uint32, data []byte) error {
	return r.add("passive data %d %d", idx, len(data))
}
func (r *recorder) DeclareDataInitialization(mi uint32, base *uint32, offset uint64, data []byte) error {
	return r.add("data %d %v %d %d", mi, base != nil, offset, len(data))
}
func (r *recorder) DeclareModuleName(name string) { _ = r.add("module name %s", name) }
func (r *recorder) DeclareFuncName(idx uint32, name string) {
	_ = r.add("func name %d %s", idx, name)
}
func (r *recorder) DefineFunctionBody(body FunctionBody) error {
	r.bodies = append(r.bodies, body)
	return r.add("body %d/%d", body.FuncIndex, body.DefinedIndex)
}

func TestTranslateModuleOrder(t *testing.T) {
	end := wasm.EncodeInstructions([]wasm.Instruction{{Opcode: wasm.OpEnd}})
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}},
			{},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "assert_eq_i32", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Funcs:    []uint32{1},
		Tables:   []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 2}}},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI64, Mutable: true}, Init: wasm.ConstI64Expr(7)},
		},
		Exports: []wasm.Export{{Name: "main", Kind: wasm.KindFunc, Idx: 1}},
		Elements: []wasm.Element{
			{Offset: wasm.ConstI32Expr(1), FuncIdxs: []uint32{1}},
		},
		Code: []wasm.FuncBody{{Code: end}},
		Data: []wasm.DataSegment{
			{Offset: wasm.ConstI32Expr(16), Init: []byte{1, 2, 3}},
		},
		CustomSections: []wasm.CustomSection{
			{Name: "name", Data: wasm.EncodeNames(&wasm.Names{
				Module:    "demo",
				Functions: map[uint32]string{1: "main"},
			})},
		},
	}

	var r recorder
	got, err := TranslateModule(m.Encode(), &r)
	if err != nil {
		t.Fatalf("TranslateModule: %v", err)
	}
	if len(got.Code) != 1 {
		t.Fatalf("parsed module has %d bodies", len(got.Code))
	}

	want := []string{
		"type 2->0",
		"type 0->0",
		"import func 0 env.assert_eq_i32",
		"func 1",
		"table 2",
		"memory 1",
		"global i64 7",
		"export func 1 main",
		"elements 0 false 1 [1]",
		"module name demo",
		"func name 1 main",
		"body 1/0",
		"data 0 false 16 3",
	}
	if !reflect.DeepEqual(r.events, want) {
		t.Errorf("events:\n got %q\nwant %q", r.events, want)
	}
	if r.bodies[0].FuncIndex != 1 || r.bodies[0].DefinedIndex != 0 {
		t.Errorf("body indices = %d/%d", r.bodies[0].FuncIndex, r.bodies[0].DefinedIndex)
	}
}

func TestTranslateModulePassiveSegments(t *testing.T) {
	m := &wasm.Module{
		Types:    []wasm.FuncType{{}},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Elements: []wasm.Element{
			{Flags: 1, FuncIdxs: []uint32{0}},
		},
		Code: []wasm.FuncBody{{Code: wasm.EncodeInstructions([]wasm.Instruction{{Opcode: wasm.OpEnd}})}},
		Data: []wasm.DataSegment{
			{Flags: 1, Init: []byte{9, 9}},
		},
	}
	var r recorder
	if err := TranslateParsed(m, &r); err != nil {
		t.Fatalf("TranslateParsed: %v", err)
	}
	want := []string{
		"type 0->0",
		"func 0",
		"memory 1",
		"passive elem 0 [0]",
		"body 0/0",
		"passive data 0 2",
	}
	if !reflect.DeepEqual(r.events, want) {
		t.Errorf("events:\n got %q\nwant %q", r.events, want)
	}
}

func TestTranslateModuleErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte{1, 2, 3, 4}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r recorder
			if _, err := TranslateModule(tt.data, &r); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSegmentOffset(t *testing.T) {
	base, off, err := segmentOffset(wasm.ConstI32Expr(-1))
	if err != nil || base != nil || off != 0xffffffff {
		t.Errorf("i32 offset = %v %d %v", base, off, err)
	}

	gg := wasm.EncodeInstructions([]wasm.Instruction{
		{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: 3}},
		{Opcode: wasm.OpEnd},
	})
	base, off, err = segmentOffset(gg)
	if err != nil || base == nil || *base != 3 || off != 0 {
		t.Errorf("global.get offset = %v %d %v", base, off, err)
	}
}
