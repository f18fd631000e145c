package zkasm

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/wasm-zkasm/environ"
	"github.com/wippyai/wasm-zkasm/errors"
	"github.com/wippyai/wasm-zkasm/ir"
)

func newFunc(index uint32, params, results []ir.Type) (*ir.Function, *ir.Builder) {
	fn := ir.NewFunction(ir.UserName(0, index), ir.Signature{Params: params, Results: results})
	b := ir.NewBuilder(fn)
	b.SwitchToBlock(b.CreateBlock())
	return fn, b
}

func lower(t *testing.T, fn *ir.Function, flags Flags) *MachBufferFinalized {
	t.Helper()
	out, err := Lower(fn, flags)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	return out
}

func lineAt(data []byte, off int) string {
	start := bytes.LastIndexByte(data[:off], '\n') + 1
	end := bytes.IndexByte(data[off:], '\n')
	return string(data[start : off+end])
}

func TestLowerAddExact(t *testing.T) {
	fn, b := newFunc(1, []ir.Type{ir.I32}, []ir.Type{ir.I32})
	sum := b.Binary(ir.OpIadd, fn.Params[0], b.Iconst(ir.I32, 7))
	b.Return([]ir.Value{sum})

	want := strings.Join([]string{
		"  SP - 4 => SP",
		"  RR :MSTORE(SP)",
		"  A :MSTORE(SP + 1)",
		"  7 :MSTORE(SP + 2)",
		"  $ => A :MLOAD(SP + 1)",
		"  $ => B :MLOAD(SP + 2)",
		"  $ => A :ADD",
		"  4294967295n => B",
		"  $ => A :AND",
		"  A :MSTORE(SP + 3)",
		"  $ => A :MLOAD(SP + 3)",
		"  $ => RR :MLOAD(SP)",
		"  SP + 4 => SP",
		"  :JMP(RR)",
	}, "\n") + "\n"

	out := lower(t, fn, Flags{})
	if got := string(out.Data); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
	if len(out.Relocs) != 0 || len(out.Traps) != 0 {
		t.Errorf("relocs = %v, traps = %v", out.Relocs, out.Traps)
	}
}

func TestLowerCallEmitsRelocation(t *testing.T) {
	fn, b := newFunc(2, nil, []ir.Type{ir.I32})
	sig := fn.ImportSignature(ir.Signature{Results: []ir.Type{ir.I32}})
	callee := fn.ImportFunction(ir.ExtFuncData{Name: ir.UserName(0, 3), Sig: sig})
	res := b.Call(callee, nil)
	b.Return(res)

	out := lower(t, fn, Flags{})
	if len(out.Relocs) != 1 {
		t.Fatalf("relocs = %v", out.Relocs)
	}
	r := out.Relocs[0]
	if r.Name != ir.UserName(0, 3) {
		t.Errorf("reloc name = %v", r.Name)
	}
	if got := lineAt(out.Data, r.Offset); got != Placeholder {
		t.Errorf("reloc line = %q, want placeholder", got)
	}
	if !strings.Contains(string(out.Data), Placeholder+"\n  A :MSTORE(SP + 1)\n") {
		t.Errorf("call result not stored:\n%s", out.Data)
	}
}

func TestLowerTrap(t *testing.T) {
	fn, b := newFunc(4, nil, nil)
	b.Trap(ir.TrapUnreachable)

	out := lower(t, fn, Flags{})
	if len(out.Relocs) != 1 || out.Relocs[0].Name != ir.UserName(0, environ.TrapFunc) {
		t.Fatalf("relocs = %v", out.Relocs)
	}
	if len(out.Traps) != 1 || out.Traps[0].Code != ir.TrapUnreachable {
		t.Fatalf("traps = %v", out.Traps)
	}
	if got := lineAt(out.Data, out.Traps[0].Offset); got != Placeholder {
		t.Errorf("trap line = %q", got)
	}
}

func TestFrameLayoutStackArgs(t *testing.T) {
	params := []ir.Type{ir.I32, ir.I32, ir.I32, ir.I32, ir.I64}
	fn, b := newFunc(5, params, nil)
	b.Return(nil)

	fr, err := layoutFrame(fn)
	if err != nil {
		t.Fatal(err)
	}
	if fr.size != 6 {
		t.Fatalf("frame size = %d, want 6", fr.size)
	}
	wantSlots := []int{1, 2, 3, 5, 4}
	for i, p := range fn.Params {
		if got := fr.valueSlot(p); got != wantSlots[i] {
			t.Errorf("param %d slot = %d, want %d", i, got, wantSlots[i])
		}
	}
}

func TestLowerCallPassesStackArgs(t *testing.T) {
	fn, b := newFunc(6, nil, nil)
	params := []ir.Type{ir.I32, ir.I32, ir.I32, ir.I32, ir.I32}
	sig := fn.ImportSignature(ir.Signature{Params: params})
	callee := fn.ImportFunction(ir.ExtFuncData{Name: ir.UserName(0, 7), Sig: sig})
	var args []ir.Value
	for i := range params {
		args = append(args, b.Iconst(ir.I32, int64(i)))
	}
	b.Call(callee, args)
	b.Return(nil)

	text := string(lower(t, fn, Flags{}).Data)
	for _, want := range []string{"D :MSTORE(SP - 1)", "D :MSTORE(SP - 2)", "$ => C :MLOAD("} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
	if strings.Index(text, "D :MSTORE(SP - 2)") > strings.Index(text, "$ => A :MLOAD(SP + 1)") {
		t.Errorf("stack arguments must be stored before register arguments:\n%s", text)
	}
}

func TestLowerGlobalsAndHeap(t *testing.T) {
	fn, b := newFunc(8, nil, nil)
	globals := fn.CreateGlobalValue(ir.GlobalValueData{Kind: ir.GVSymbol, Name: environ.BaseName, Offset: environ.GlobalsBase, Type: ir.I64})
	heap := fn.CreateGlobalValue(ir.GlobalValueData{Kind: ir.GVSymbol, Name: environ.BaseName, Offset: environ.HeapBase, Type: ir.I64})

	g := b.Load(ir.I64, b.GlobalValue(ir.I64, globals), 2)
	b.Store(g, b.GlobalValue(ir.I64, globals), 0)
	v := b.Load(ir.I32, b.GlobalValue(ir.I64, heap), 3)
	b.Store(v, b.GlobalValue(ir.I64, heap), 64)
	b.Return(nil)

	text := string(lower(t, fn, Flags{HeapBase: 0x100}).Data)
	for _, want := range []string{
		"$ => A :MLOAD(global_2)",
		"A :MSTORE(global_0)",
		"256 => A",
		"E + 3 => E",
		"${E >> 3} => E",
		"$ => A :MLOAD(E)",
		"${E + 64} => E",
		"A :MSTORE(E)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}

func TestLowerBranches(t *testing.T) {
	fn, b := newFunc(9, []ir.Type{ir.I32}, []ir.Type{ir.I32})
	then, els := b.CreateBlock(), b.CreateBlock()
	b.Brif(fn.Params[0], then, els)
	b.SwitchToBlock(then)
	b.Return([]ir.Value{b.Iconst(ir.I32, 1)})
	b.SwitchToBlock(els)
	sel := b.Select(fn.Params[0], b.Iconst(ir.I32, 2), b.Iconst(ir.I32, 3))
	b.BrTable(sel, []ir.Block{then}, then)

	text := string(lower(t, fn, Flags{}).Data)
	for _, want := range []string{
		"  A :JMPNZ(label_1)\n  :JMP(label_2)\nlabel_1:\n",
		"label_2:\n",
		"A :JMPNZ(label_3)",
		":JMP(label_4)",
		"label_3:\n",
		"label_4:\n",
		"0 => B\n  $ => B :EQ\n  B :JMPNZ(label_1)\n  :JMP(label_1)\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
	if strings.HasPrefix(text, "label_0") || strings.Contains(text, "label_0:") {
		t.Errorf("entry block should not be labeled:\n%s", text)
	}
}

func TestLowerCompare(t *testing.T) {
	tests := []struct {
		cc   ir.IntCC
		want []string
	}{
		{ir.IntEqual, []string{"$ => A :EQ"}},
		{ir.IntNotEqual, []string{"$ => A :EQ", "1 => B\n  $ => A :XOR"}},
		{ir.IntUnsignedLessThan, []string{"$ => A :LT"}},
		{ir.IntSignedLessThan, []string{"2147483648n => B\n  $ => A :XOR", "$ => A :LT"}},
		{ir.IntSignedGreaterThanOrEqual, []string{"2147483648n => B", "$ => A :LT\n  1 => B\n  $ => A :XOR"}},
	}
	for _, tt := range tests {
		t.Run(tt.cc.String(), func(t *testing.T) {
			fn, b := newFunc(10, []ir.Type{ir.I32, ir.I32}, []ir.Type{ir.I32})
			b.Return([]ir.Value{b.Icmp(tt.cc, fn.Params[0], fn.Params[1])})
			text := string(lower(t, fn, Flags{}).Data)
			for _, w := range tt.want {
				if !strings.Contains(text, w) {
					t.Errorf("missing %q in:\n%s", w, text)
				}
			}
		})
	}
}

func TestLowerArithmetic(t *testing.T) {
	tests := []struct {
		name string
		op   ir.Opcode
		typ  ir.Type
		want []string
	}{
		{"mul", ir.OpImul, ir.I64, []string{"0 => C", "0 => D", "$ => A :ARITH", "18446744073709551615n => B"}},
		{"udiv", ir.OpUdiv, ir.I32, []string{"B :JMPNZ(label_1)", Placeholder, "label_1:", "${E / B} => A", "E :ARITH"}},
		{"urem", ir.OpUrem, ir.I64, []string{"${E % B} => C", "C :MSTORE("}},
		{"shl", ir.OpIshl, ir.I32, []string{"${A << (B % 32)} => A"}},
		{"ushr", ir.OpUshr, ir.I64, []string{"${A >> (B % 64)} => A"}},
		{"sshr", ir.OpSshr, ir.I32, []string{"A ^ 2147483648", "4294967296"}},
		{"xor", ir.OpBxor, ir.I32, []string{"$ => A :XOR"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, b := newFunc(11, []ir.Type{tt.typ, tt.typ}, []ir.Type{tt.typ})
			b.Return([]ir.Value{b.Binary(tt.op, fn.Params[0], fn.Params[1])})
			text := string(lower(t, fn, Flags{}).Data)
			for _, w := range tt.want {
				if !strings.Contains(text, w) {
					t.Errorf("missing %q in:\n%s", w, text)
				}
			}
		})
	}
}

func TestLowerConstantShift(t *testing.T) {
	fn, b := newFunc(12, []ir.Type{ir.I32}, []ir.Type{ir.I32})
	b.Return([]ir.Value{b.Binary(ir.OpIshl, fn.Params[0], b.Iconst(ir.I32, 35))})

	text := string(lower(t, fn, Flags{}).Data)
	if !strings.Contains(text, "8 => B\n  0 => C\n  0 => D\n  $ => A :ARITH") {
		t.Errorf("shift by 35 should multiply by 8:\n%s", text)
	}
}

func TestLowerSextend(t *testing.T) {
	fn, b := newFunc(13, []ir.Type{ir.I32}, []ir.Type{ir.I64})
	b.Return([]ir.Value{b.Sextend(ir.I64, fn.Params[0], 8)})

	text := string(lower(t, fn, Flags{}).Data)
	want := "255 => B\n  $ => A :AND\n  128 => B\n  $ => A :XOR\n  128 => B\n  $ => A :SUB\n  18446744073709551615n => B\n  $ => A :AND\n"
	if !strings.Contains(text, want) {
		t.Errorf("got:\n%s", text)
	}
}

func TestLowerFloatTraps(t *testing.T) {
	fn, b := newFunc(14, []ir.Type{ir.F64, ir.F64}, nil)
	b.Float(0xa0, ir.F64, []ir.Value{fn.Params[0], fn.Params[1]})
	b.Return(nil)

	out := lower(t, fn, Flags{})
	if len(out.Traps) != 1 || out.Traps[0].Code != ir.TrapUnsupported {
		t.Errorf("traps = %v", out.Traps)
	}
}

func TestLowerProfiling(t *testing.T) {
	fn, b := newFunc(15, nil, nil)
	b.Return(nil)

	text := string(lower(t, fn, Flags{EmitProfiling: true}).Data)
	if !strings.Contains(text, "  $${traceInstruction(return)}\n") {
		t.Errorf("got:\n%s", text)
	}
}

func TestLowerUnsupported(t *testing.T) {
	tests := []struct {
		name  string
		build func(fn *ir.Function, b *ir.Builder)
		res   []ir.Type
	}{
		{
			name: "narrow load",
			build: func(fn *ir.Function, b *ir.Builder) {
				b.LoadSized(ir.I32, 1, false, fn.Params[0], 0)
				b.Return(nil)
			},
		},
		{
			name: "sdiv",
			build: func(fn *ir.Function, b *ir.Builder) {
				b.Binary(ir.OpSdiv, fn.Params[0], fn.Params[0])
				b.Return(nil)
			},
		},
		{
			name: "popcnt",
			build: func(fn *ir.Function, b *ir.Builder) {
				b.Unary(ir.OpPopcnt, fn.Params[0])
				b.Return(nil)
			},
		},
		{
			name:  "six results",
			res:   []ir.Type{ir.I64, ir.I64, ir.I64, ir.I64, ir.I64, ir.I64},
			build: func(fn *ir.Function, b *ir.Builder) { b.Trap(ir.TrapUnreachable) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, b := newFunc(16, []ir.Type{ir.I64}, tt.res)
			tt.build(fn, b)
			_, err := Lower(fn, Flags{})
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLower, Kind: errors.KindUnsupported}) {
				t.Fatalf("err = %v", err)
			}
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Func == nil || *e.Func != 16 {
				t.Errorf("error does not name function 16: %v", err)
			}
		})
	}
}

func TestFormatConst(t *testing.T) {
	tests := []struct {
		c    uint64
		want string
	}{
		{0, "0"},
		{42, "42"},
		{uint64(ImmMax()), "2147481599"},
		{uint64(ImmMax()) + 1, "2147481600n"},
		{^uint64(0), "18446744073709551615n"},
	}
	for _, tt := range tests {
		if got := FormatConst(tt.c); got != tt.want {
			t.Errorf("FormatConst(%d) = %q, want %q", tt.c, got, tt.want)
		}
	}
}
