package ir

import (
	"strings"
	"testing"
)

func TestBuilderLayoutAndValues(t *testing.T) {
	fn := NewFunction(UserName(0, 3), Signature{Params: []Type{I32, I64}, Results: []Type{I32}})
	if len(fn.Params) != 2 || fn.ValueType(fn.Params[1]) != I64 {
		t.Fatalf("params = %v", fn.Params)
	}

	b := NewBuilder(fn)
	entry := b.CreateBlock()
	exit := b.CreateBlock()
	b.SwitchToBlock(entry)

	v := b.DeclareVar(I32)
	b.DefVar(v, fn.Params[0])
	c := b.Iconst(I32, 7)
	sum := b.Binary(OpIadd, b.UseVar(v), c)
	b.DefVar(v, sum)
	b.Jump(exit)

	if !b.IsFilled() {
		t.Error("block should be filled after jump")
	}

	b.SwitchToBlock(exit)
	b.Return([]Value{b.UseVar(v)})

	if got := fn.Layout(); len(got) != 2 || got[0] != entry || got[1] != exit {
		t.Errorf("layout = %v", got)
	}
	if fn.NumVars() != 1 || fn.VarType(v) != I32 {
		t.Errorf("vars = %d", fn.NumVars())
	}
	def, ok := fn.Def(sum)
	if !ok || def.Op != OpIadd || def.Type != I32 {
		t.Errorf("Def(sum) = %+v, %v", def, ok)
	}
	if _, ok := fn.Def(fn.Params[0]); ok {
		t.Error("params have no defining instruction")
	}
}

func TestLayoutFollowsSwitchOrder(t *testing.T) {
	fn := NewFunction(UserName(0, 0), Signature{})
	b := NewBuilder(fn)
	a, x, y := b.CreateBlock(), b.CreateBlock(), b.CreateBlock()
	b.SwitchToBlock(a)
	b.Jump(y)
	b.SwitchToBlock(y)
	b.Jump(x)
	b.SwitchToBlock(x)
	b.Return(nil)

	want := []Block{a, y, x}
	got := fn.Layout()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("layout = %v, want %v", got, want)
		}
	}
	if fn.NumBlocks() != 3 {
		t.Errorf("NumBlocks = %d", fn.NumBlocks())
	}
}

func TestAppendAfterTerminatorPanics(t *testing.T) {
	fn := NewFunction(UserName(0, 0), Signature{})
	b := NewBuilder(fn)
	b.SwitchToBlock(b.CreateBlock())
	b.Return(nil)

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	b.Iconst(I32, 1)
}

func TestCallResults(t *testing.T) {
	fn := NewFunction(UserName(0, 0), Signature{})
	sig := fn.ImportSignature(Signature{Params: []Type{I32}, Results: []Type{I64, I32}})
	callee := fn.ImportFunction(ExtFuncData{Name: UserName(0, 5), Sig: sig})

	b := NewBuilder(fn)
	b.SwitchToBlock(b.CreateBlock())
	arg := b.Iconst(I32, 1)
	res := b.Call(callee, []Value{arg})
	if len(res) != 2 || fn.ValueType(res[0]) != I64 || fn.ValueType(res[1]) != I32 {
		t.Errorf("call results = %v", res)
	}

	ptr := b.Iconst(I64, 0)
	ind := b.CallIndirect(sig, ptr, []Value{arg})
	if len(ind) != 2 {
		t.Errorf("call_indirect results = %v", ind)
	}
}

func TestDisplay(t *testing.T) {
	fn := NewFunction(UserName(0, 2), Signature{Params: []Type{I32}, Results: []Type{I32}})
	gv := fn.CreateGlobalValue(GlobalValueData{Kind: GVSymbol, Name: UserName(1, 0), Offset: 1, Type: I64})
	b := NewBuilder(fn)
	entry := b.CreateBlock()
	b.SwitchToBlock(entry)
	addr := b.GlobalValue(I64, gv)
	x := b.Load(I32, addr, 0)
	cmp := b.Icmp(IntUnsignedLessThan, x, fn.Params[0])
	then, els := b.CreateBlock(), b.CreateBlock()
	b.Brif(cmp, then, els)
	b.SwitchToBlock(then)
	b.Return([]Value{x})
	b.SwitchToBlock(els)
	b.Trap(TrapUnreachable)

	text := fn.String()
	for _, want := range []string{
		"function u0:2(i32) -> (i32) {",
		"gv0 = symbol.i64 u1:0+1",
		"block0(v0: i32):",
		"v1 = global_value.i64 gv0",
		"v2 = load.i32 v1+0",
		"v3 = icmp ult v2, v0",
		"brif v3, block1, block2",
		"return v2",
		"trap unreachable",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("display missing %q:\n%s", want, text)
		}
	}
}

func TestTypeHelpers(t *testing.T) {
	tests := []struct {
		t     Type
		bits  int
		mask  uint64
		isInt bool
	}{
		{I32, 32, 0xffffffff, true},
		{I64, 64, ^uint64(0), true},
		{F32, 32, 0xffffffff, false},
		{F64, 64, ^uint64(0), false},
	}
	for _, tt := range tests {
		if tt.t.Bits() != tt.bits || tt.t.IsInt() != tt.isInt {
			t.Errorf("%s: bits=%d int=%v", tt.t, tt.t.Bits(), tt.t.IsInt())
		}
		if tt.t.IsInt() && tt.t.Mask() != tt.mask {
			t.Errorf("%s: mask=%x", tt.t, tt.t.Mask())
		}
	}
	if !IntSignedLessThan.Signed() || IntUnsignedLessThan.Signed() || IntEqual.Signed() {
		t.Error("IntCC.Signed mismatch")
	}
	if OpIadd.IsTerminator() || !OpBrTable.IsTerminator() {
		t.Error("IsTerminator mismatch")
	}
}
