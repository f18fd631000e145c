package zkasm

import "testing"

func TestRegNames(t *testing.T) {
	tests := []struct {
		reg  Reg
		want string
	}{
		{ZeroReg(), "0"},
		{A0(), "A"},
		{A1(), "B"},
		{A2(), "C"},
		{StackReg(), "SP"},
		{LinkReg(), "RR"},
		{FPReg(), "CTX"},
		{SpillTmpReg(), "RCX"},
		{SpillTmpReg2(), "HASHPOS"},
		{FA0(), "f10"},
		{FA1(), "f11"},
		{FA7(), "f17"},
	}
	for _, tt := range tests {
		if got := tt.reg.String(); got != tt.want {
			t.Errorf("%v.String() = %q, want %q", tt.reg, got, tt.want)
		}
	}
}

func TestWritable(t *testing.T) {
	pairs := []struct {
		w Writable[Reg]
		r Reg
	}{
		{WritableZeroReg(), ZeroReg()},
		{WritableStackReg(), StackReg()},
		{WritableLinkReg(), LinkReg()},
		{WritableFPReg(), FPReg()},
		{WritableSpillTmpReg(), SpillTmpReg()},
		{WritableSpillTmpReg2(), SpillTmpReg2()},
	}
	for _, p := range pairs {
		if p.w.ToReg() != p.r {
			t.Errorf("writable %v wraps %v", p.r, p.w.ToReg())
		}
	}
}

func TestMachineEnv(t *testing.T) {
	env := NewMachineEnv()
	want := []Reg{A(), B(), C(), D(), E()}
	got := env.Preferred[ClassInt]
	if len(got) != len(want) {
		t.Fatalf("preferred int = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("preferred[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	for _, c := range []RegClass{ClassFloat, ClassVector} {
		if len(env.Preferred[c]) != 0 || len(env.NonPreferred[c]) != 0 {
			t.Errorf("%s class has allocatable registers", c)
		}
	}
	if len(env.FixedStackSlots) != 0 {
		t.Errorf("fixed stack slots = %v", env.FixedStackSlots)
	}
	for _, r := range []Reg{ZeroReg(), StackReg(), LinkReg(), FPReg(), SpillTmpReg(), SpillTmpReg2(), FA0()} {
		if env.Allocatable(r) {
			t.Errorf("%v is allocatable", r)
		}
	}
	if !env.Allocatable(D()) {
		t.Error("D is not allocatable")
	}
}

func TestRealRegRoundTrip(t *testing.T) {
	for _, r := range []Reg{A(), E(), StackReg(), FA7()} {
		if got := RealRegToReg(r.ToRealReg()); got != r {
			t.Errorf("RealRegToReg(%v) = %v", r, got)
		}
	}
}
