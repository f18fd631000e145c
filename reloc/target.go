package reloc

import (
	"strconv"

	"github.com/wippyai/wasm-zkasm/ir"
)

// TargetKind distinguishes relocation targets.
type TargetKind uint8

const (
	// TargetUnresolved is a defect: the name could not be classified.
	TargetUnresolved TargetKind = iota
	// TargetTrap aborts execution.
	TargetTrap
	// TargetCall calls a function by index.
	TargetCall
)

func (k TargetKind) String() string {
	switch k {
	case TargetTrap:
		return "trap"
	case TargetCall:
		return "call"
	}
	return "unresolved"
}

// Target is what a relocation refers to.
type Target struct {
	Name string // original symbol, for unresolved targets
	Func uint32 // callee, for TargetCall
	Kind TargetKind
}

func Trap() Target                  { return Target{Kind: TargetTrap} }
func Call(index uint32) Target      { return Target{Kind: TargetCall, Func: index} }
func Unresolved(name string) Target { return Target{Kind: TargetUnresolved, Name: name} }

func (t Target) String() string {
	switch t.Kind {
	case TargetTrap:
		return "trap"
	case TargetCall:
		return "call " + FuncLabel(t.Func)
	}
	return "unresolved " + t.Name
}

// Classify maps an external name to a target. Function index 0 in the
// function namespace is the trap sentinel.
func Classify(name ir.ExternalName) Target {
	if name.Kind != ir.NameUser || name.Namespace != 0 {
		return Unresolved(name.String())
	}
	if name.Index == 0 {
		return Trap()
	}
	return Call(name.Index)
}

// FuncLabel returns the label that starts function index.
func FuncLabel(index uint32) string {
	return "function_" + strconv.FormatUint(uint64(index), 10)
}
