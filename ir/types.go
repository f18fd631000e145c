package ir

import "fmt"

// Type is the type of an IR value.
type Type uint8

const (
	TypeInvalid Type = iota
	I32
	I64
	F32
	F64
	V128
	R64
)

func (t Type) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case V128:
		return "i8x16"
	case R64:
		return "r64"
	}
	return "invalid"
}

// Bits returns the width of t in bits.
func (t Type) Bits() int {
	switch t {
	case I32, F32:
		return 32
	case I64, F64, R64:
		return 64
	case V128:
		return 128
	}
	return 0
}

// Bytes returns the width of t in bytes.
func (t Type) Bytes() int {
	return t.Bits() / 8
}

// IsInt reports whether t is an integer type.
func (t Type) IsInt() bool {
	return t == I32 || t == I64
}

// Mask returns the all-ones bit pattern of an integer type.
func (t Type) Mask() uint64 {
	if t == I32 {
		return 0xffffffff
	}
	return ^uint64(0)
}

// Entity references. Each is an index into the owning Function's tables.
type (
	Value       uint32
	Block       uint32
	Inst        uint32
	Variable    uint32
	GlobalValue uint32
	FuncRef     uint32
	SigRef      uint32
)

func (v Value) String() string       { return fmt.Sprintf("v%d", uint32(v)) }
func (b Block) String() string       { return fmt.Sprintf("block%d", uint32(b)) }
func (v Variable) String() string    { return fmt.Sprintf("var%d", uint32(v)) }
func (g GlobalValue) String() string { return fmt.Sprintf("gv%d", uint32(g)) }
func (f FuncRef) String() string     { return fmt.Sprintf("fn%d", uint32(f)) }
func (s SigRef) String() string      { return fmt.Sprintf("sig%d", uint32(s)) }

// Signature is a function signature in IR types.
type Signature struct {
	Params  []Type
	Results []Type
}

func (s Signature) String() string {
	return fmt.Sprintf("(%s) -> (%s)", joinTypes(s.Params), joinTypes(s.Results))
}

func joinTypes(types []Type) string {
	out := ""
	for i, t := range types {
		if i > 0 {
			out += ", "
		}
		out += t.String()
	}
	return out
}

// NameKind distinguishes the forms of ExternalName.
type NameKind uint8

const (
	// NameUser is a (namespace, index) pair chosen by the embedder.
	NameUser NameKind = iota
	// NameLibCall names a runtime library routine.
	NameLibCall
	// NameTestCase is a free-form symbol used by tests.
	NameTestCase
)

// ExternalName identifies a symbol outside the function being compiled.
type ExternalName struct {
	Symbol    string
	Namespace uint32
	Index     uint32
	Kind      NameKind
}

// UserName returns the user-defined name (namespace, index).
func UserName(namespace, index uint32) ExternalName {
	return ExternalName{Kind: NameUser, Namespace: namespace, Index: index}
}

// LibCallName returns the name of a library routine.
func LibCallName(symbol string) ExternalName {
	return ExternalName{Kind: NameLibCall, Symbol: symbol}
}

func (n ExternalName) String() string {
	if n.Kind == NameUser {
		return fmt.Sprintf("u%d:%d", n.Namespace, n.Index)
	}
	return "%" + n.Symbol
}
