package zkasm

import "fmt"

// RegClass is the register bank a register belongs to.
type RegClass uint8

const (
	ClassInt RegClass = iota
	ClassFloat
	ClassVector
	numClasses
)

func (c RegClass) String() string {
	switch c {
	case ClassInt:
		return "int"
	case ClassFloat:
		return "float"
	case ClassVector:
		return "vector"
	}
	return "unknown"
}

// Reg identifies a register by class and hardware index.
type Reg struct {
	Index uint8
	Class RegClass
}

// Register indices of the integer class.
const (
	idxZero uint8 = iota
	idxA
	idxB
	idxC
	idxD
	idxE
	idxSP
	idxRR
	idxCTX
	idxRCX
	idxHASHPOS
)

var intRegNames = [...]string{
	idxZero:    "0",
	idxA:       "A",
	idxB:       "B",
	idxC:       "C",
	idxD:       "D",
	idxE:       "E",
	idxSP:      "SP",
	idxRR:      "RR",
	idxCTX:     "CTX",
	idxRCX:     "RCX",
	idxHASHPOS: "HASHPOS",
}

// String returns the register as it is written in zkASM source.
func (r Reg) String() string {
	if r.Class == ClassInt && int(r.Index) < len(intRegNames) {
		return intRegNames[r.Index]
	}
	if r.Class == ClassFloat {
		return fmt.Sprintf("f%d", r.Index)
	}
	return fmt.Sprintf("%s%d", r.Class, r.Index)
}

func intReg(idx uint8) Reg { return Reg{Index: idx, Class: ClassInt} }

func ZeroReg() Reg { return intReg(idxZero) }
func A() Reg       { return intReg(idxA) }
func B() Reg       { return intReg(idxB) }
func C() Reg       { return intReg(idxC) }
func D() Reg       { return intReg(idxD) }
func E() Reg       { return intReg(idxE) }

// StackReg is the stack pointer.
func StackReg() Reg { return intReg(idxSP) }

// LinkReg holds the return address.
func LinkReg() Reg { return intReg(idxRR) }

// FPReg is the frame pointer.
func FPReg() Reg { return intReg(idxCTX) }

// SpillTmpReg and SpillTmpReg2 are reserved for spill code and never
// handed to the allocator.
func SpillTmpReg() Reg  { return intReg(idxRCX) }
func SpillTmpReg2() Reg { return intReg(idxHASHPOS) }

// Argument registers.
func A0() Reg { return A() }
func A1() Reg { return B() }
func A2() Reg { return C() }

func floatReg(n uint8) Reg { return Reg{Index: n, Class: ClassFloat} }

func FA0() Reg { return floatReg(10) }
func FA1() Reg { return floatReg(11) }
func FA7() Reg { return floatReg(17) }

// ArgRegs returns the registers that carry the first integer arguments.
func ArgRegs() []Reg { return []Reg{A0(), A1(), A2()} }

// Writable marks a register that an instruction defines.
type Writable[T any] struct {
	reg T
}

// WritableReg wraps r as a definition.
func WritableReg[T any](r T) Writable[T] { return Writable[T]{reg: r} }

// ToReg returns the wrapped register.
func (w Writable[T]) ToReg() T { return w.reg }

// MachineEnv lists the registers an allocator may hand out, per class.
type MachineEnv struct {
	Preferred       [numClasses][]Reg
	NonPreferred    [numClasses][]Reg
	FixedStackSlots []int
}

// NewMachineEnv returns the allocatable set: A through E for integers and
// nothing for floats or vectors.
func NewMachineEnv() *MachineEnv {
	return &MachineEnv{
		Preferred: [numClasses][]Reg{
			ClassInt:    {A(), B(), C(), D(), E()},
			ClassFloat:  {},
			ClassVector: {},
		},
		NonPreferred: [numClasses][]Reg{
			ClassInt:    {},
			ClassFloat:  {},
			ClassVector: {},
		},
	}
}

// Allocatable reports whether r is in the preferred or non-preferred set.
func (m *MachineEnv) Allocatable(r Reg) bool {
	if r.Class >= numClasses {
		return false
	}
	for _, list := range [][]Reg{m.Preferred[r.Class], m.NonPreferred[r.Class]} {
		for _, x := range list {
			if x == r {
				return true
			}
		}
	}
	return false
}

// RealReg is the allocator's view of a hardware register.
type RealReg struct {
	HWEnc uint8
	Class RegClass
}

// RealRegToReg converts an allocated register back to a Reg of the same
// class and index.
func RealRegToReg(r RealReg) Reg {
	return Reg{Index: r.HWEnc, Class: r.Class}
}

// ToRealReg is the inverse of RealRegToReg.
func (r Reg) ToRealReg() RealReg {
	return RealReg{HWEnc: r.Index, Class: r.Class}
}

func WritableZeroReg() Writable[Reg]      { return WritableReg(ZeroReg()) }
func WritableStackReg() Writable[Reg]     { return WritableReg(StackReg()) }
func WritableLinkReg() Writable[Reg]      { return WritableReg(LinkReg()) }
func WritableFPReg() Writable[Reg]        { return WritableReg(FPReg()) }
func WritableSpillTmpReg() Writable[Reg]  { return WritableReg(SpillTmpReg()) }
func WritableSpillTmpReg2() Writable[Reg] { return WritableReg(SpillTmpReg2()) }
