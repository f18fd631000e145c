package program

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/wasm-zkasm/environ"
	"github.com/wippyai/wasm-zkasm/errors"
	"github.com/wippyai/wasm-zkasm/ir"
	"github.com/wippyai/wasm-zkasm/translate"
)

func u32(v uint32) *uint32 { return &v }

func moduleInfo() *environ.ModuleInfo {
	info := environ.NewZkasmEnvironment().Info
	info.Signatures = []ir.Signature{{}}
	info.Functions = []environ.Exportable[uint32]{
		environ.NewExportable(uint32(0)),
		{Entity: 0, ExportNames: []string{"main"}},
	}
	info.Globals = []environ.Exportable[translate.Global]{
		environ.NewExportable(translate.Global{Type: ir.I32, Mutable: true}),
	}
	info.GlobalInits = []environ.GlobalInit{{Index: 0, Init: translate.GlobalInit{Kind: translate.InitI32Const, Bits: 42}}}
	info.DataInits = []environ.DataInit{{Offset: 0, Data: make([]byte, 8)}}
	return info
}

var returnBody = []string{
	"  SP - 1 => SP",
	"  RR :MSTORE(SP)",
	"  $ => RR :MLOAD(SP)",
	"  SP + 1 => SP",
	"  :JMP(RR)",
}

func TestAssembleMinimalModule(t *testing.T) {
	info := moduleInfo()
	info.Start = u32(1)
	prog, err := Assemble(info, []Function{{Index: 1, Lines: returnBody}}, Options{StackTop: 0xffff})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	want := strings.Join([]string{
		"VAR GLOBAL global_0",
		"start:",
		"  42 :MSTORE(global_0)",
		"  0 => E",
		"  0n :MSTORE(E)",
		"  0xffff => SP",
		"  zkPC + 2 => RR",
		"  :JMP(function_1)",
		"  :JMP(finalizeExecution)",
		"function_1:",
		"  SP - 1 => SP",
		"  RR :MSTORE(SP)",
		"  $ => RR :MLOAD(SP)",
		"  SP + 1 => SP",
		"  :JMP(RR)",
		"finalizeExecution:",
		"  ${beforeLast()}  :JMPN(finalizeExecution)",
		"                   :JMP(start)",
	}, "\n") + "\n"
	if got := prog.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}

	text := prog.String()
	if n := strings.Count(text, "VAR GLOBAL"); n != 1 {
		t.Errorf("%d storage declarations", n)
	}
	if n := strings.Count(text, ":MSTORE(global_0)"); n != 1 {
		t.Errorf("%d global stores", n)
	}
	if n := strings.Count(text, ":MSTORE(E)"); n != 1 {
		t.Errorf("%d memory word writes", n)
	}
}

func TestAssembleOrdersFunctions(t *testing.T) {
	info := moduleInfo()
	funcs := []Function{
		{Index: 3, Lines: []string{"  :JMP(RR)"}},
		{Index: 1, Lines: returnBody},
		{Index: 2, Lines: []string{"  :JMP(RR)"}},
	}
	prog, err := Assemble(info, funcs, Options{StartExport: "main", StackTop: 0xffff})
	if err != nil {
		t.Fatal(err)
	}
	text := prog.String()
	i1 := strings.Index(text, "function_1:")
	i2 := strings.Index(text, "function_2:")
	i3 := strings.Index(text, "function_3:")
	if i1 < 0 || i1 > i2 || i2 > i3 {
		t.Errorf("functions out of order:\n%s", text)
	}
	if prog.Start != 1 {
		t.Errorf("start = %d", prog.Start)
	}
}

func TestResolveStart(t *testing.T) {
	info := moduleInfo()
	if idx, err := ResolveStart(info, "main"); err != nil || idx != 1 {
		t.Errorf("by export: (%d, %v)", idx, err)
	}
	info.Start = u32(0)
	if idx, err := ResolveStart(info, "main"); err != nil || idx != 0 {
		t.Errorf("start section should win: (%d, %v)", idx, err)
	}
	info.Start = nil
	_, err := ResolveStart(info, "entry")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseAssemble, Kind: errors.KindNotFound}) {
		t.Errorf("err = %v", err)
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(info *environ.ModuleInfo)
		funcs []Function
		kind  errors.Kind
	}{
		{
			name:  "missing start body",
			funcs: []Function{{Index: 2}},
			kind:  errors.KindNotFound,
		},
		{
			name:  "duplicate function",
			funcs: []Function{{Index: 1}, {Index: 1}},
			kind:  errors.KindDuplicate,
		},
		{
			name: "imported start",
			setup: func(info *environ.ModuleInfo) {
				info.ImportedFuncs = []environ.ImportName{{Module: "env", Field: "f"}}
				info.Start = u32(0)
			},
			kind: errors.KindUnsupported,
		},
		{
			name: "ref.func initializer",
			setup: func(info *environ.ModuleInfo) {
				info.GlobalInits[0].Init = translate.GlobalInit{Kind: translate.InitRefFunc, Index: 1}
			},
			funcs: []Function{{Index: 1}},
			kind:  errors.KindUnsupported,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := moduleInfo()
			if tt.setup != nil {
				tt.setup(info)
			}
			_, err := Assemble(info, tt.funcs, Options{StartExport: "main"})
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseAssemble, Kind: tt.kind}) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestGlobalInitializers(t *testing.T) {
	info := moduleInfo()
	info.Globals = append(info.Globals,
		environ.NewExportable(translate.Global{Type: ir.I64}),
		environ.NewExportable(translate.Global{Type: ir.I32}),
		environ.NewExportable(translate.Global{Type: ir.R64}),
	)
	info.GlobalInits = []environ.GlobalInit{
		{Index: 0, Init: translate.GlobalInit{Kind: translate.InitI32Const, Bits: 0xffff_ffff}},
		{Index: 1, Init: translate.GlobalInit{Kind: translate.InitI64Const, Bits: ^uint64(0)}},
		{Index: 2, Init: translate.GlobalInit{Kind: translate.InitGetGlobal, Index: 0}},
		{Index: 3, Init: translate.GlobalInit{Kind: translate.InitRefNull}},
	}
	prog, err := Assemble(info, []Function{{Index: 1}}, Options{StartExport: "main"})
	if err != nil {
		t.Fatal(err)
	}
	text := prog.String()
	for _, want := range []string{
		"  4294967295n :MSTORE(global_0)",
		"  18446744073709551615n :MSTORE(global_1)",
		"  $ => A :MLOAD(global_0)\n  A :MSTORE(global_2)",
		"  0 :MSTORE(global_3)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
	if n := strings.Count(text, "VAR GLOBAL"); n != 4 {
		t.Errorf("%d storage declarations", n)
	}
}

func TestDataWords(t *testing.T) {
	inits := []environ.DataInit{
		{Offset: 6, Data: []byte{1, 2, 3}},
		{Offset: 16, Data: []byte{0xff}},
		{Offset: 7, Data: []byte{9}},
	}
	got := dataWords(inits, 8)
	// With heap base 8 the bytes land at 14, 15, 16 and 24; byte 15 is
	// overwritten by the last segment.
	want := []word{
		{addr: 1, value: 0x0901_0000_0000_0000},
		{addr: 2, value: 0x03},
		{addr: 3, value: 0xff},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("word %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
