package translate

import (
	"fmt"

	"github.com/wippyai/wasm-zkasm/errors"
	"github.com/wippyai/wasm-zkasm/wasm"
)

// TranslateModule decodes a wasm binary and feeds its declarations to env.
func TranslateModule(data []byte, env ModuleEnvironment) (*wasm.Module, error) {
	m, err := wasm.ParseModule(data)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "parse module")
	}
	if err := TranslateParsed(m, env); err != nil {
		return nil, err
	}
	return m, nil
}

// TranslateParsed feeds the declarations of an already decoded module to env.
// Sections are visited in their canonical order.
func TranslateParsed(m *wasm.Module, env ModuleEnvironment) error {
	for i, ft := range m.Types {
		if _, ok := IRSignature(ft); !ok {
			return errors.Unsupported(errors.PhaseTranslate, fmt.Sprintf("value type in function type %d", i))
		}
		if err := env.DeclareTypeFunc(ft); err != nil {
			return err
		}
	}
	if err := translateImports(m, env); err != nil {
		return err
	}
	for _, ti := range m.Funcs {
		if int(ti) >= len(m.Types) {
			return errors.OutOfRange(errors.PhaseTranslate, "type index", ti)
		}
		if err := env.DeclareFuncType(ti); err != nil {
			return err
		}
	}
	for i := range m.Tables {
		if err := env.DeclareTable(tableEntity(m.Tables[i])); err != nil {
			return err
		}
	}
	for i := range m.Memories {
		if err := env.DeclareMemory(memoryEntity(m.Memories[i])); err != nil {
			return err
		}
	}
	for i := range m.Globals {
		g, err := globalEntity(m.Globals[i].Type)
		if err != nil {
			return err
		}
		init, err := globalInit(m.Globals[i].Init)
		if err != nil {
			return err
		}
		if err := env.DeclareGlobal(g, init); err != nil {
			return err
		}
	}
	if err := translateExports(m, env); err != nil {
		return err
	}
	if m.Start != nil {
		if err := env.DeclareStartFunc(*m.Start); err != nil {
			return err
		}
	}
	if err := translateElements(m, env); err != nil {
		return err
	}
	translateNames(m, env)

	numImported := uint32(m.NumImportedFuncs())
	for i := range m.Code {
		c := &m.Code[i]
		body := FunctionBody{
			Locals:       c.Locals,
			Code:         c.Code,
			FuncIndex:    numImported + uint32(i),
			DefinedIndex: uint32(i),
			Size:         c.Size,
		}
		if err := env.DefineFunctionBody(body); err != nil {
			return err
		}
	}
	return translateData(m, env)
}

func translateImports(m *wasm.Module, env ModuleEnvironment) error {
	for _, imp := range m.Imports {
		var err error
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			if int(imp.Desc.TypeIdx) >= len(m.Types) {
				return errors.OutOfRange(errors.PhaseTranslate, "type index", imp.Desc.TypeIdx)
			}
			err = env.DeclareFuncImport(imp.Desc.TypeIdx, imp.Module, imp.Name)
		case wasm.KindTable:
			err = env.DeclareTableImport(tableEntity(*imp.Desc.Table), imp.Module, imp.Name)
		case wasm.KindMemory:
			err = env.DeclareMemoryImport(memoryEntity(*imp.Desc.Memory), imp.Module, imp.Name)
		case wasm.KindGlobal:
			var g Global
			g, err = globalEntity(*imp.Desc.Global)
			if err == nil {
				err = env.DeclareGlobalImport(g, imp.Module, imp.Name)
			}
		default:
			err = errors.InvalidData(errors.PhaseTranslate, []string{"import", imp.Module, imp.Name},
				fmt.Sprintf("unknown import kind 0x%02x", imp.Desc.Kind))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func translateExports(m *wasm.Module, env ModuleEnvironment) error {
	for _, exp := range m.Exports {
		var err error
		switch exp.Kind {
		case wasm.KindFunc:
			err = env.DeclareFuncExport(exp.Idx, exp.Name)
		case wasm.KindTable:
			err = env.DeclareTableExport(exp.Idx, exp.Name)
		case wasm.KindMemory:
			err = env.DeclareMemoryExport(exp.Idx, exp.Name)
		case wasm.KindGlobal:
			err = env.DeclareGlobalExport(exp.Idx, exp.Name)
		default:
			err = errors.InvalidData(errors.PhaseTranslate, []string{"export", exp.Name},
				fmt.Sprintf("unknown export kind 0x%02x", exp.Kind))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func translateElements(m *wasm.Module, env ModuleEnvironment) error {
	for i := range m.Elements {
		seg := &m.Elements[i]
		elems, err := elementItems(seg)
		if err != nil {
			return err
		}
		switch {
		case seg.Declarative():
			// only forward-declares ref.func targets
		case seg.Passive():
			if err := env.DeclarePassiveElement(uint32(i), elems); err != nil {
				return err
			}
		default:
			base, offset, err := segmentOffset(seg.Offset)
			if err != nil {
				return err
			}
			if err := env.DeclareTableElements(seg.TableIdx, base, uint32(offset), elems); err != nil {
				return err
			}
		}
	}
	return nil
}

func elementItems(seg *wasm.Element) ([]uint32, error) {
	if seg.Exprs == nil {
		return seg.FuncIdxs, nil
	}
	elems := make([]uint32, len(seg.Exprs))
	for i, expr := range seg.Exprs {
		c, err := wasm.EvalConstExpr(expr)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseTranslate, errors.KindInvalidData, err, "element expression")
		}
		switch c.Kind {
		case wasm.ConstRefFunc:
			elems[i] = c.Index
		case wasm.ConstRefNull:
			elems[i] = NullFunc
		default:
			return nil, errors.Unsupported(errors.PhaseTranslate, "element expression kind")
		}
	}
	return elems, nil
}

func translateData(m *wasm.Module, env ModuleEnvironment) error {
	for i := range m.Data {
		seg := &m.Data[i]
		if seg.Passive() {
			if err := env.DeclarePassiveData(uint32(i), seg.Init); err != nil {
				return err
			}
			continue
		}
		base, offset, err := segmentOffset(seg.Offset)
		if err != nil {
			return err
		}
		if err := env.DeclareDataInitialization(seg.MemIdx, base, offset, seg.Init); err != nil {
			return err
		}
	}
	return nil
}

// segmentOffset evaluates an active segment offset. A global.get offset
// yields the global index as base and a zero offset.
func segmentOffset(expr []byte) (*uint32, uint64, error) {
	c, err := wasm.EvalConstExpr(expr)
	if err != nil {
		return nil, 0, errors.Wrap(errors.PhaseTranslate, errors.KindInvalidData, err, "segment offset")
	}
	switch c.Kind {
	case wasm.ConstI32:
		return nil, uint64(uint32(c.Bits)), nil
	case wasm.ConstI64:
		return nil, c.Bits, nil
	case wasm.ConstGlobalGet:
		idx := c.Index
		return &idx, 0, nil
	}
	return nil, 0, errors.Unsupported(errors.PhaseTranslate, "segment offset expression")
}

// translateNames forwards the name section. A malformed name section is
// ignored, it never affects code generation.
func translateNames(m *wasm.Module, env ModuleEnvironment) {
	cs, ok := m.CustomSection("name")
	if !ok {
		return
	}
	names, err := wasm.ParseNames(cs.Data)
	if err != nil {
		return
	}
	if names.Module != "" {
		env.DeclareModuleName(names.Module)
	}
	for idx, name := range names.Functions {
		env.DeclareFuncName(idx, name)
	}
}

func tableEntity(t wasm.TableType) Table {
	et, _ := IRType(t.ElemType)
	return Table{ElemType: et, Min: t.Limits.Min, Max: t.Limits.Max}
}

func memoryEntity(m wasm.MemoryType) Memory {
	return Memory{
		Min:      m.Limits.Min,
		Max:      m.Limits.Max,
		Shared:   m.Limits.Shared,
		Memory64: m.Limits.Memory64,
	}
}

func globalEntity(gt wasm.GlobalType) (Global, error) {
	t, ok := IRType(gt.ValType)
	if !ok {
		return Global{}, errors.Unsupported(errors.PhaseTranslate, "global type "+gt.ValType.String())
	}
	return Global{Type: t, Mutable: gt.Mutable}, nil
}

func globalInit(expr []byte) (GlobalInit, error) {
	c, err := wasm.EvalConstExpr(expr)
	if err != nil {
		return GlobalInit{}, errors.Wrap(errors.PhaseTranslate, errors.KindInvalidData, err, "global initializer")
	}
	switch c.Kind {
	case wasm.ConstI32:
		return GlobalInit{Kind: InitI32Const, Bits: c.Bits}, nil
	case wasm.ConstI64:
		return GlobalInit{Kind: InitI64Const, Bits: c.Bits}, nil
	case wasm.ConstF32:
		return GlobalInit{Kind: InitF32Const, Bits: c.Bits}, nil
	case wasm.ConstF64:
		return GlobalInit{Kind: InitF64Const, Bits: c.Bits}, nil
	case wasm.ConstGlobalGet:
		return GlobalInit{Kind: InitGetGlobal, Index: c.Index}, nil
	case wasm.ConstRefNull:
		return GlobalInit{Kind: InitRefNull}, nil
	case wasm.ConstRefFunc:
		return GlobalInit{Kind: InitRefFunc, Index: c.Index}, nil
	}
	return GlobalInit{}, errors.Unsupported(errors.PhaseTranslate, "global initializer kind")
}
