package environ

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/wasm-zkasm/errors"
	"github.com/wippyai/wasm-zkasm/ir"
	"github.com/wippyai/wasm-zkasm/wasm"
)

func code(instrs ...wasm.Instruction) []byte {
	return wasm.EncodeInstructions(append(instrs, wasm.Instruction{Opcode: wasm.OpEnd}))
}

func i32Const(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}}
}

func call(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: idx}}
}

// testModule imports env.assert_eq_i32 as function 0 and defines main (1)
// and a helper (2).
func testModule(mainBody []byte) *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}},
			{},
			{Results: []wasm.ValType{wasm.ValI32}},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "assert_eq_i32", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Funcs:    []uint32{1, 2},
		Tables:   []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 2}}},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true}, Init: wasm.ConstI32Expr(-1)},
		},
		Exports: []wasm.Export{{Name: "main", Kind: wasm.KindFunc, Idx: 1}},
		Code: []wasm.FuncBody{
			{Code: mainBody},
			{Code: code(i32Const(7))},
		},
		Data: []wasm.DataSegment{
			{Offset: wasm.ConstI32Expr(8), Init: []byte{1, 2, 3, 4}},
		},
	}
}

func translateAll(t *testing.T, m *wasm.Module) (*ModuleInfo, error) {
	t.Helper()
	info, _, err := Translate(m.Encode())
	if err != nil {
		return nil, err
	}
	for i := range info.Bodies {
		if _, err := TranslateFunction(info, i); err != nil {
			return info, err
		}
	}
	return info, nil
}

func TestTranslateDeclarations(t *testing.T) {
	info, err := translateAll(t, testModule(code(call(2), i32Const(7), call(0))))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if info.NumImportedFuncs() != 1 || len(info.Functions) != 3 {
		t.Errorf("functions = %d (imported %d)", len(info.Functions), info.NumImportedFuncs())
	}
	if idx, ok := info.ExportedFunc("main"); !ok || idx != 1 {
		t.Errorf("ExportedFunc(main) = %d, %v", idx, ok)
	}
	if len(info.GlobalInits) != 1 || uint32(info.GlobalInits[0].Init.Bits) != 0xffffffff {
		t.Errorf("global inits = %+v", info.GlobalInits)
	}
	if len(info.DataInits) != 1 || info.DataInits[0].Offset != 8 {
		t.Errorf("data inits = %+v", info.DataInits)
	}
	if len(info.FunctionBodies) != 2 || info.FunctionBodies[0] == nil || info.FunctionBodies[1] == nil {
		t.Fatalf("function bodies = %v", info.FunctionBodies)
	}

	main := info.FunctionBodies[0].String()
	for _, s := range []string{"call fn0(", "assert_eq", "u0:2"} {
		if !strings.Contains(main, s) {
			t.Errorf("main IR missing %q:\n%s", s, main)
		}
	}
}

func TestGlobalsAndMemoryUseBaseSymbol(t *testing.T) {
	body := code(
		wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: 0}},
		i32Const(16),
		wasm.Instruction{Opcode: wasm.OpI32Load, Imm: wasm.MemoryImm{Align: 2}},
		wasm.Instruction{Opcode: wasm.OpI32Add},
		wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: 0}},
	)
	info, err := translateAll(t, testModule(body))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	fn := info.FunctionBodies[0]

	offsets := map[int64]bool{}
	for _, gv := range fn.GlobalValues {
		if gv.Kind != ir.GVSymbol || gv.Name != BaseName {
			t.Errorf("unexpected global value %+v", gv)
		}
		offsets[gv.Offset] = true
	}
	if !offsets[GlobalsBase] || !offsets[HeapBase] {
		t.Errorf("base offsets = %v", offsets)
	}
	if text := fn.String(); strings.Contains(text, "heap_oob") {
		t.Errorf("unexpected bounds check:\n%s", text)
	}
}

func TestSentinels(t *testing.T) {
	body := code(
		i32Const(1),
		wasm.Instruction{Opcode: wasm.OpMemoryGrow, Imm: wasm.MemoryIdxImm{}},
		wasm.Instruction{Opcode: wasm.OpMemorySize, Imm: wasm.MemoryIdxImm{}},
		wasm.Instruction{Opcode: wasm.OpI32Add},
		wasm.Instruction{Opcode: wasm.OpDrop},
		i32Const(0), i32Const(0), i32Const(0),
		wasm.Instruction{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscMemoryFill, Operands: []uint32{0}}},
	)
	info, err := translateAll(t, testModule(body))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if text := info.FunctionBodies[0].String(); strings.Count(text, "iconst.i32 -1") != 2 {
		t.Errorf("expected two -1 sentinels:\n%s", text)
	}
}

func TestCallIndirectLoadsFromTable(t *testing.T) {
	body := code(
		i32Const(1),
		wasm.Instruction{Opcode: wasm.OpCallIndirect, Imm: wasm.CallIndirectImm{TypeIdx: 2}},
		wasm.Instruction{Opcode: wasm.OpDrop},
	)
	info, err := translateAll(t, testModule(body))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	text := info.FunctionBodies[0].String()
	for _, s := range []string{"imul.i64", "load.i64", "call_indirect sig0"} {
		if !strings.Contains(text, s) {
			t.Errorf("missing %q:\n%s", s, text)
		}
	}
}

func TestTranslateRejects(t *testing.T) {
	tests := []struct {
		name   string
		module func() *wasm.Module
		kind   errors.Kind
	}{
		{
			name: "call to non-intrinsic import",
			module: func() *wasm.Module {
				m := testModule(code(i32Const(1), i32Const(2), call(0)))
				m.Imports[0].Name = "print"
				return m
			},
			kind: errors.KindUnsupported,
		},
		{
			name: "data offset from global",
			module: func() *wasm.Module {
				m := testModule(code())
				m.Data[0].Offset = wasm.EncodeInstructions([]wasm.Instruction{
					{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: 0}},
					{Opcode: wasm.OpEnd},
				})
				return m
			},
			kind: errors.KindUnsupported,
		},
		{
			name: "call to function 0",
			module: func() *wasm.Module {
				m := testModule(code(call(0)))
				m.Imports = nil
				m.Types[0] = wasm.FuncType{}
				m.Funcs = []uint32{0, 2}
				return m
			},
			kind: errors.KindUnsupported,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := translateAll(t, tt.module())
			if err == nil {
				t.Fatal("expected error")
			}
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Kind != tt.kind {
				t.Errorf("err = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestImportsFirst(t *testing.T) {
	env := NewZkasmEnvironment()
	if err := env.DeclareTypeFunc(wasm.FuncType{}); err != nil {
		t.Fatal(err)
	}
	if err := env.DeclareFuncType(0); err != nil {
		t.Fatal(err)
	}
	if err := env.DeclareFuncImport(0, "env", "late"); err == nil {
		t.Error("import after definition accepted")
	}
}

func TestIsIntrinsic(t *testing.T) {
	tests := []struct {
		name ImportName
		want bool
	}{
		{ImportName{"env", "assert_eq_i32"}, true},
		{ImportName{"env", "assert_eq_i64"}, true},
		{ImportName{"wasi", "assert_eq_i32"}, false},
		{ImportName{"env", "print"}, false},
	}
	for _, tt := range tests {
		if got := IsIntrinsic(tt.name); got != tt.want {
			t.Errorf("IsIntrinsic(%s) = %v", tt.name, got)
		}
	}
}
