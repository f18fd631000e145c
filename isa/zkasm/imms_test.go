package zkasm

import (
	"math"
	"testing"
)

func split(t *testing.T, v int64) (int64, int64, bool) {
	t.Helper()
	return SplitImm(uint64(v))
}

func TestImmBounds(t *testing.T) {
	if got, want := ImmMax(), int64(math.MaxInt32)-2048; got != want {
		t.Errorf("ImmMax() = %d, want %d", got, want)
	}
	if got, want := ImmMin(), int64(math.MinInt32)-2048; got != want {
		t.Errorf("ImmMin() = %d, want %d", got, want)
	}
}

func TestSplitImmRoundTrip(t *testing.T) {
	check := func(v int64) {
		hi, lo, ok := split(t, v)
		if !ok {
			t.Fatalf("SplitImm(%d) failed", v)
		}
		if lo < -2048 || lo > 2047 {
			t.Fatalf("SplitImm(%d): imm12 %d out of range", v, lo)
		}
		if hi*4096+lo != v {
			t.Fatalf("SplitImm(%d) = (%d, %d)", v, hi, lo)
		}
	}

	for v := int64(-70000); v <= 70000; v++ {
		check(v)
	}
	for v := ImmMin(); v <= ImmMax()-9973; v += 9973 {
		check(v)
	}
	for _, v := range []int64{ImmMin(), ImmMin() + 1, ImmMax(), ImmMax() - 1, 2047, 2048, -2048, -2049, 4095, -4097} {
		check(v)
	}
}

func TestSplitImmOutOfRange(t *testing.T) {
	for _, v := range []int64{ImmMax() + 1, ImmMin() - 1, math.MaxInt64, math.MinInt64, 1 << 40} {
		if _, _, ok := split(t, v); ok {
			t.Errorf("SplitImm(%d) succeeded", v)
		}
	}
}

func TestGenerateImm(t *testing.T) {
	tests := []struct {
		name    string
		value   int64
		ok      bool
		wantHi  bool
		hiValue uint32
	}{
		{name: "small", value: 100, ok: true},
		{name: "negative small", value: -100, ok: true},
		{name: "carry", value: 4095, ok: true, wantHi: true, hiValue: 1},
		{name: "upper", value: 0x12345, ok: true, wantHi: true, hiValue: 0x12},
		{name: "negative upper", value: -4096, ok: true, wantHi: true, hiValue: 0xfffff},
		{name: "too big", value: ImmMax() + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GenerateImm(uint64(tt.value), func(hi *Imm20) *Imm20 { return hi })
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if (got != nil) != tt.wantHi {
				t.Fatalf("imm20 = %v, want present=%v", got, tt.wantHi)
			}
			if got != nil && got.AsU32() != tt.hiValue {
				t.Errorf("imm20 bits = %#x, want %#x", got.AsU32(), tt.hiValue)
			}
		})
	}
}

func TestUImm5(t *testing.T) {
	for v := 0; v < 256; v++ {
		u, ok := UImm5FromU8(uint8(v))
		if ok != (v < 32) {
			t.Fatalf("UImm5FromU8(%d) ok = %v", v, ok)
		}
		if ok && u.Bits() != uint32(v) {
			t.Fatalf("UImm5FromU8(%d).Bits() = %d", v, u.Bits())
		}
	}
}

func TestImm5(t *testing.T) {
	for v := math.MinInt8; v <= math.MaxInt8; v++ {
		imm, ok := Imm5FromI8(int8(v))
		if ok != (v >= -16 && v <= 15) {
			t.Fatalf("Imm5FromI8(%d) ok = %v", v, ok)
		}
		if ok && imm.Value() != int8(v) {
			t.Fatalf("Imm5FromI8(%d).Value() = %d", v, imm.Value())
		}
	}
	for bits := uint8(0); bits < 32; bits++ {
		imm := Imm5FromBits(bits)
		if imm.Bits() != bits {
			t.Fatalf("Imm5FromBits(%#x).Bits() = %#x", bits, imm.Bits())
		}
	}
	if got := Imm5FromBits(0x1f).Value(); got != -1 {
		t.Errorf("Imm5FromBits(0x1f) = %d, want -1", got)
	}
	if got := Imm5FromBits(0x10).Value(); got != -16 {
		t.Errorf("Imm5FromBits(0x10) = %d, want -16", got)
	}
}

func TestImm32FromU64(t *testing.T) {
	tests := []struct {
		value uint64
		ok    bool
		bits  int32
	}{
		{0, true, 0},
		{0x7fff_ffff, true, math.MaxInt32},
		{^uint64(0), true, -1},
		{uint64(1) << 31, false, 0},
		{uint64(math.MaxUint32), false, 0},
		{0xffff_ffff_8000_0000, true, math.MinInt32},
	}
	for _, tt := range tests {
		got, ok := Imm32FromU64(tt.value)
		if ok != tt.ok || (ok && got.Bits != tt.bits) {
			t.Errorf("Imm32FromU64(%#x) = (%v, %v), want (%d, %v)", tt.value, got, ok, tt.bits, tt.ok)
		}
	}
}
