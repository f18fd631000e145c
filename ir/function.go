package ir

// GlobalValueKind distinguishes the forms of GlobalValueData.
type GlobalValueKind uint8

const (
	// GVSymbol is the address of an external symbol plus a constant offset.
	GVSymbol GlobalValueKind = iota
	// GVLoad is a value loaded from Base plus Offset.
	GVLoad
)

// GlobalValueData describes a value computed once per function from symbols
// and memory, such as the base address of a heap.
type GlobalValueData struct {
	Name     ExternalName
	Offset   int64
	Base     GlobalValue
	Kind     GlobalValueKind
	Type     Type
	Readonly bool
}

// ExtFuncData describes a function the body calls directly.
type ExtFuncData struct {
	Name      ExternalName
	Sig       SigRef
	Colocated bool
}

// ValueData records the type and definition of a value.
type ValueData struct {
	Inst  Inst // defining instruction, unused for params
	Type  Type
	Param bool
}

type blockData struct {
	insts    []Inst
	inLayout bool
}

// Function is the IR graph of one function: a signature, entry parameters,
// blocks in layout order and the entity tables they reference.
type Function struct {
	Name   ExternalName
	Sig    Signature
	Params []Value

	GlobalValues []GlobalValueData
	ExtFuncs     []ExtFuncData
	Signatures   []Signature

	values []ValueData
	insts  []InstData
	blocks []blockData
	vars   []Type
	layout []Block
}

// NewFunction creates an empty function with one value per parameter.
func NewFunction(name ExternalName, sig Signature) *Function {
	fn := &Function{Name: name, Sig: sig}
	for _, t := range sig.Params {
		fn.Params = append(fn.Params, fn.newValue(ValueData{Type: t, Param: true}))
	}
	return fn
}

func (fn *Function) newValue(d ValueData) Value {
	fn.values = append(fn.values, d)
	return Value(len(fn.values) - 1)
}

// NumValues returns the number of values, including parameters.
func (fn *Function) NumValues() int { return len(fn.values) }

// NumVars returns the number of declared variables.
func (fn *Function) NumVars() int { return len(fn.vars) }

// NumInsts returns the number of instructions.
func (fn *Function) NumInsts() int { return len(fn.insts) }

// Value returns the data of v.
func (fn *Function) Value(v Value) ValueData { return fn.values[v] }

// ValueType returns the type of v.
func (fn *Function) ValueType(v Value) Type { return fn.values[v].Type }

// VarType returns the type of a variable.
func (fn *Function) VarType(v Variable) Type { return fn.vars[v] }

// Inst returns the data of an instruction.
func (fn *Function) Inst(i Inst) *InstData { return &fn.insts[i] }

// Layout returns the blocks in emission order. The first is the entry.
func (fn *Function) Layout() []Block { return fn.layout }

// BlockInsts returns the instructions of b in order.
func (fn *Function) BlockInsts(b Block) []Inst { return fn.blocks[b].insts }

// NumBlocks returns the number of created blocks, including ones never
// placed in the layout.
func (fn *Function) NumBlocks() int { return len(fn.blocks) }

// Def returns the instruction defining v and whether v has one.
func (fn *Function) Def(v Value) (*InstData, bool) {
	d := fn.values[v]
	if d.Param {
		return nil, false
	}
	return &fn.insts[d.Inst], true
}

// ImportSignature adds a signature and returns its reference.
func (fn *Function) ImportSignature(sig Signature) SigRef {
	fn.Signatures = append(fn.Signatures, sig)
	return SigRef(len(fn.Signatures) - 1)
}

// ImportFunction adds an external function and returns its reference.
func (fn *Function) ImportFunction(data ExtFuncData) FuncRef {
	fn.ExtFuncs = append(fn.ExtFuncs, data)
	return FuncRef(len(fn.ExtFuncs) - 1)
}

// CreateGlobalValue adds a global value and returns its reference.
func (fn *Function) CreateGlobalValue(data GlobalValueData) GlobalValue {
	fn.GlobalValues = append(fn.GlobalValues, data)
	return GlobalValue(len(fn.GlobalValues) - 1)
}
