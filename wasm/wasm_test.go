package wasm_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/wippyai/wasm-zkasm/wasm"
)

func sampleModule() *wasm.Module {
	start := uint32(1)
	maxPages := uint64(2)
	return &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}},
			{},
			{Params: []wasm.ValType{wasm.ValI64}, Results: []wasm.ValType{wasm.ValI64}},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "assert_eq_i32", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Funcs:    []uint32{1, 2},
		Tables:   []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 4}}},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1, Max: &maxPages}}},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true}, Init: wasm.ConstI32Expr(42)},
		},
		Exports: []wasm.Export{{Name: "main", Kind: wasm.KindFunc, Idx: 1}},
		Start:   &start,
		Elements: []wasm.Element{
			{Offset: wasm.ConstI32Expr(0), FuncIdxs: []uint32{1, 2}},
		},
		Code: []wasm.FuncBody{
			{Code: wasm.EncodeInstructions([]wasm.Instruction{{Opcode: wasm.OpEnd}})},
			{
				Locals: []wasm.LocalEntry{{Count: 2, ValType: wasm.ValI64}},
				Code: wasm.EncodeInstructions([]wasm.Instruction{
					{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
					{Opcode: wasm.OpEnd},
				}),
			},
		},
		Data: []wasm.DataSegment{
			{Offset: wasm.ConstI32Expr(0), Init: make([]byte, 8)},
		},
	}
}

func TestModuleRoundTrip(t *testing.T) {
	m := sampleModule()
	data := m.Encode()

	got, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(got.Types) != 3 || !got.Types[2].Equal(m.Types[2]) {
		t.Errorf("types = %+v", got.Types)
	}
	if len(got.Imports) != 1 || got.Imports[0].Name != "assert_eq_i32" {
		t.Errorf("imports = %+v", got.Imports)
	}
	if got.NumImportedFuncs() != 1 {
		t.Errorf("NumImportedFuncs = %d, want 1", got.NumImportedFuncs())
	}
	if got.Start == nil || *got.Start != 1 {
		t.Errorf("start = %v, want 1", got.Start)
	}
	if got.Memories[0].Limits.Max == nil || *got.Memories[0].Limits.Max != 2 {
		t.Errorf("memory max = %v", got.Memories[0].Limits.Max)
	}
	if !bytes.Equal(got.Globals[0].Init, m.Globals[0].Init) || !got.Globals[0].Type.Mutable {
		t.Errorf("global = %+v", got.Globals[0])
	}
	if len(got.Elements) != 1 || len(got.Elements[0].FuncIdxs) != 2 {
		t.Errorf("elements = %+v", got.Elements)
	}
	if len(got.Code) != 2 || got.Code[1].Locals[0].Count != 2 {
		t.Errorf("code = %+v", got.Code)
	}
	if got.Code[1].Size == 0 || got.Code[1].Offset == 0 {
		t.Errorf("body size/offset not recorded: %+v", got.Code[1])
	}
	if len(got.Data) != 1 || len(got.Data[0].Init) != 8 {
		t.Errorf("data = %+v", got.Data)
	}

	if !bytes.Equal(got.Encode(), data) {
		t.Error("re-encoding is not byte-identical")
	}
}

func TestFuncTypeLookup(t *testing.T) {
	m := sampleModule()

	tests := []struct {
		idx     uint32
		typeIdx uint32
		ok      bool
	}{
		{0, 0, true},
		{1, 1, true},
		{2, 2, true},
		{3, 0, false},
	}
	for _, tt := range tests {
		typeIdx, ok := m.FuncTypeIndex(tt.idx)
		if ok != tt.ok || (ok && typeIdx != tt.typeIdx) {
			t.Errorf("FuncTypeIndex(%d) = %d, %v; want %d, %v", tt.idx, typeIdx, ok, tt.typeIdx, tt.ok)
		}
	}
	if ft := m.GetFuncType(2); ft == nil || ft.Results[0] != wasm.ValI64 {
		t.Errorf("GetFuncType(2) = %+v", ft)
	}
}

func TestParseModuleErrors(t *testing.T) {
	valid := sampleModule().Encode()

	tests := []struct {
		name   string
		data   []byte
		target error
	}{
		{"bad magic", []byte{0, 'a', 's', 'n', 1, 0, 0, 0}, wasm.ErrInvalidMagic},
		{"bad version", []byte{0, 'a', 's', 'm', 2, 0, 0, 0}, wasm.ErrInvalidVersion},
		{"truncated", valid[:len(valid)-3], nil},
		{"unknown section", append([]byte{0, 'a', 's', 'm', 1, 0, 0, 0}, 0x20, 0x00), nil},
		{"out of order", append([]byte{0, 'a', 's', 'm', 1, 0, 0, 0}, 3, 1, 0, 1, 1, 0), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wasm.ParseModule(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("error = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestFunctionCodeCountMismatch(t *testing.T) {
	m := &wasm.Module{Types: []wasm.FuncType{{}}, Funcs: []uint32{0}}
	if _, err := wasm.ParseModule(m.Encode()); err == nil {
		t.Error("expected error for missing code section")
	}
}

func TestAddType(t *testing.T) {
	m := &wasm.Module{}
	a := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
	b := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
	c := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}})
	if a != 0 || b != 0 || c != 1 {
		t.Errorf("AddType indices = %d %d %d, want 0 0 1", a, b, c)
	}
}
