package ir

import (
	"fmt"
	"strings"
)

// String renders the function as text.
func (fn *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "function %s%s {\n", fn.Name, fn.Sig)

	for i, sig := range fn.Signatures {
		fmt.Fprintf(&sb, "    %s = %s\n", SigRef(i), sig)
	}
	for i, ef := range fn.ExtFuncs {
		fmt.Fprintf(&sb, "    %s = %s %s\n", FuncRef(i), ef.Name, ef.Sig)
	}
	for i, gv := range fn.GlobalValues {
		switch gv.Kind {
		case GVSymbol:
			fmt.Fprintf(&sb, "    %s = symbol.%s %s%+d\n", GlobalValue(i), gv.Type, gv.Name, gv.Offset)
		case GVLoad:
			ro := ""
			if gv.Readonly {
				ro = " readonly"
			}
			fmt.Fprintf(&sb, "    %s = load.%s%s %s%+d\n", GlobalValue(i), gv.Type, ro, gv.Base, gv.Offset)
		}
	}
	for i, t := range fn.vars {
		fmt.Fprintf(&sb, "    %s: %s\n", Variable(i), t)
	}

	for n, blk := range fn.layout {
		sb.WriteString(blk.String())
		if n == 0 && len(fn.Params) > 0 {
			sb.WriteByte('(')
			for i, p := range fn.Params {
				if i > 0 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "%s: %s", p, fn.ValueType(p))
			}
			sb.WriteByte(')')
		}
		sb.WriteString(":\n")
		for _, inst := range fn.blocks[blk].insts {
			sb.WriteString("    ")
			sb.WriteString(fn.FormatInst(inst))
			sb.WriteByte('\n')
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

// FormatInst renders one instruction.
func (fn *Function) FormatInst(i Inst) string {
	d := &fn.insts[i]
	var sb strings.Builder
	if len(d.Results) > 0 {
		sb.WriteString(joinValues(d.Results))
		sb.WriteString(" = ")
	}
	sb.WriteString(d.Op.String())

	switch d.Op {
	case OpIconst:
		fmt.Fprintf(&sb, ".%s %d", d.Type, d.Imm)
	case OpFconst:
		fmt.Fprintf(&sb, ".%s 0x%x", d.Type, uint64(d.Imm))
	case OpIcmp:
		fmt.Fprintf(&sb, " %s %s", d.Cond, joinValues(d.Args))
	case OpSextend:
		fmt.Fprintf(&sb, ".%s %s from %d", d.Type, joinValues(d.Args), d.Imm)
	case OpLoad:
		if d.Narrow() {
			sign := "u"
			if d.Signed {
				sign = "s"
			}
			fmt.Fprintf(&sb, "_%s%d", sign, int(d.Size)*8)
		}
		fmt.Fprintf(&sb, ".%s %s%+d", d.Type, d.Args[0], d.Imm)
	case OpStore:
		if d.Narrow() {
			fmt.Fprintf(&sb, "%d", int(d.Size)*8)
		}
		fmt.Fprintf(&sb, " %s, %s%+d", d.Args[0], d.Args[1], d.Imm)
	case OpGlobalValue:
		fmt.Fprintf(&sb, ".%s %s", d.Type, d.GV)
	case OpUseVar:
		fmt.Fprintf(&sb, " %s", d.Var)
	case OpDefVar:
		fmt.Fprintf(&sb, " %s, %s", d.Var, d.Args[0])
	case OpCall:
		fmt.Fprintf(&sb, " %s(%s)", d.Func, joinValues(d.Args))
	case OpCallIndirect:
		fmt.Fprintf(&sb, " %s, %s(%s)", d.Sig, d.Args[0], joinValues(d.Args[1:]))
	case OpFloat:
		fmt.Fprintf(&sb, " 0x%x %s", d.Imm, joinValues(d.Args))
	case OpJump:
		fmt.Fprintf(&sb, " %s", d.Targets[0])
	case OpBrif:
		fmt.Fprintf(&sb, " %s, %s, %s", d.Args[0], d.Targets[0], d.Targets[1])
	case OpBrTable:
		n := len(d.Targets) - 1
		fmt.Fprintf(&sb, " %s, %s, [%s]", d.Args[0], d.Targets[n], joinBlocks(d.Targets[:n]))
	case OpTrap:
		fmt.Fprintf(&sb, " %s", d.Trap)
	default:
		if d.Type != TypeInvalid && len(d.Results) > 0 {
			fmt.Fprintf(&sb, ".%s", d.Type)
		}
		if len(d.Args) > 0 {
			sb.WriteByte(' ')
			sb.WriteString(joinValues(d.Args))
		}
	}
	return sb.String()
}

func joinValues(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

func joinBlocks(bs []Block) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = b.String()
	}
	return strings.Join(parts, ", ")
}
