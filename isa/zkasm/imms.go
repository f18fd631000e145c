package zkasm

import "strconv"

// Imm32 is a constant that fits in 32 signed bits.
type Imm32 struct {
	Bits int32
}

// Imm32FromU64 accepts values whose upper 33 bits are all zeros or all ones.
func Imm32FromU64(v uint64) (Imm32, bool) {
	const signBit = 1 << 31
	switch {
	case v == 0:
		return Imm32{}, true
	case v&signBit != 0 && v>>31 == 0x1_ffff_ffff:
		return Imm32{Bits: int32(uint32(v))}, true
	case v&signBit == 0 && v>>32 == 0:
		return Imm32{Bits: int32(uint32(v))}, true
	}
	return Imm32{}, false
}

func (i Imm32) String() string {
	if i.Bits >= 0 {
		return "+" + strconv.Itoa(int(i.Bits))
	}
	return strconv.Itoa(int(i.Bits))
}

// Imm20 is the upper immediate of a split constant, kept as its low 20 bits.
type Imm20 struct {
	Bits int32
}

// Imm20FromBits truncates bits to 20 bits.
func Imm20FromBits(bits int32) Imm20 {
	return Imm20{Bits: bits & 0xf_ffff}
}

// AsU32 returns the 20-bit pattern.
func (i Imm20) AsU32() uint32 {
	return uint32(i.Bits) & 0xf_ffff
}

func (i Imm20) String() string {
	return strconv.Itoa(int(i.Bits))
}

// UImm5 is an unsigned 5-bit immediate.
type UImm5 struct {
	value uint8
}

// UImm5FromU8 accepts values below 32.
func UImm5FromU8(v uint8) (UImm5, bool) {
	if v < 32 {
		return UImm5{value: v}, true
	}
	return UImm5{}, false
}

// Bits returns the encoding of the immediate.
func (u UImm5) Bits() uint32 {
	return uint32(u.value)
}

func (u UImm5) String() string {
	return strconv.Itoa(int(u.value))
}

// Imm5 is a signed 5-bit immediate.
type Imm5 struct {
	value int8
}

// Imm5FromI8 accepts values in [-16, 15].
func Imm5FromI8(v int8) (Imm5, bool) {
	if v >= -16 && v <= 15 {
		return Imm5{value: v}, true
	}
	return Imm5{}, false
}

// Imm5FromBits sign-extends a 5-bit pattern. The upper three bits of v must
// be clear.
func Imm5FromBits(v uint8) Imm5 {
	if v&0x1f != v {
		panic("zkasm: Imm5 bit pattern wider than 5 bits")
	}
	return Imm5{value: int8(v<<3) >> 3}
}

// Bits returns the 5-bit encoding.
func (i Imm5) Bits() uint8 {
	return uint8(i.value) & 0x1f
}

// Value returns the immediate as a signed integer.
func (i Imm5) Value() int8 {
	return i.value
}

func (i Imm5) String() string {
	return strconv.Itoa(int(i.value))
}

const (
	imm12Range = 4096
	imm12Half  = 2048
)

// ImmMin is the smallest constant expressible as imm20<<12 + imm12.
func ImmMin() int64 {
	const imm20Max int64 = (1 << 19) << 12
	const imm12Max = 1 << 11
	return -imm20Max - imm12Max
}

// ImmMax is the largest constant expressible as imm20<<12 + imm12.
func ImmMax() int64 {
	const imm20Max int64 = ((1 << 19) - 1) << 12
	const imm12Max = (1 << 11) - 1
	return imm20Max + imm12Max
}

// SplitImm splits v, read as a signed value, into imm20*4096 + imm12 with
// imm12 in [-2048, 2047]. It reports false when v is out of range.
func SplitImm(v uint64) (imm20, imm12 int64, ok bool) {
	value := int64(v)
	if value < ImmMin() || value > ImmMax() {
		return 0, 0, false
	}
	if value > 0 {
		imm20 = value / imm12Range
		imm12 = value % imm12Range
		if imm12 >= imm12Half {
			imm12 -= imm12Range
			imm20++
		}
	} else {
		abs := -value
		imm20 = -(abs / imm12Range)
		imm12 = -(abs % imm12Range)
		if imm12 < -imm12Half {
			imm12 += imm12Range
			imm20--
		}
	}
	if imm12 < -imm12Half || imm12 >= imm12Half {
		panic("zkasm: imm12 out of range")
	}
	if imm20 < -(0x7_ffff+1) || imm20 > 0x7_ffff {
		panic("zkasm: imm20 out of range")
	}
	return imm20, imm12, true
}

// GenerateImm reports whether v can be built from a 20-bit and a 12-bit
// immediate and, if so, returns handle's result. handle receives nil when
// the 12-bit immediate alone suffices.
func GenerateImm[R any](v uint64, handle func(imm20 *Imm20) R) (R, bool) {
	var zero R
	imm20, imm12, ok := SplitImm(v)
	if !ok {
		return zero, false
	}
	if v != 0 && imm20 == 0 && imm12 == 0 {
		panic("zkasm: nonzero constant split to zero")
	}
	if imm20 == 0 {
		return handle(nil), true
	}
	hi := Imm20FromBits(int32(imm20))
	return handle(&hi), true
}
