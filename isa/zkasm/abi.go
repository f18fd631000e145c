package zkasm

import (
	"fortio.org/safecast"

	"github.com/wippyai/wasm-zkasm/errors"
	"github.com/wippyai/wasm-zkasm/ir"
)

// Frame layout, in words above SP after the prologue:
//
//	slot 0             saved RR
//	slots 1..3         register arguments
//	next NumVars       variables
//	next               every non-parameter value
//	top P-3 slots      stack arguments, written by the caller
//
// A caller stores stack argument j (j >= 3) at SP - (j - 2) before the
// call, which is slot F-1-(j-3) once the callee has moved SP down by F.
type frame struct {
	slots    []int // by value
	varBase  int
	size     int
	numArgs  int
	hasValue []bool
}

const savedRRSlot = 0

func layoutFrame(fn *ir.Function) (*frame, error) {
	nargs := len(fn.Params)
	inRegs := min(nargs, len(ArgRegs()))
	f := &frame{
		slots:    make([]int, fn.NumValues()),
		hasValue: make([]bool, fn.NumValues()),
		varBase:  1 + inRegs,
		numArgs:  nargs,
	}
	next := f.varBase + fn.NumVars()
	isParam := make(map[ir.Value]int, nargs)
	for i, p := range fn.Params {
		isParam[p] = i
	}
	for v := 0; v < fn.NumValues(); v++ {
		val := ir.Value(v)
		if _, ok := isParam[val]; ok {
			continue
		}
		f.slots[v] = next
		f.hasValue[v] = true
		next++
	}
	f.size = next + nargs - inRegs
	for i, p := range fn.Params {
		f.hasValue[p] = true
		if i < inRegs {
			f.slots[p] = 1 + i
		} else {
			f.slots[p] = f.size - 1 - (i - inRegs)
		}
	}
	if _, err := safecast.Conv[int32](f.size); err != nil {
		return nil, errors.OutOfRange(errors.PhaseLower, "frame size", f.size)
	}
	return f, nil
}

func (f *frame) valueSlot(v ir.Value) int { return f.slots[v] }

func (f *frame) varSlot(v ir.Variable) int { return f.varBase + int(v) }

// slotAddr formats the stack address of a slot.
func slotAddr(slot int) string {
	if slot == 0 {
		return "SP"
	}
	return "SP + " + itoa(slot)
}

// outgoingArgAddr is where a caller places stack argument j.
func outgoingArgAddr(j int) string {
	return "SP - " + itoa(j-len(ArgRegs())+1)
}
