package wasm

import (
	"errors"
	"fmt"

	"github.com/wippyai/wasm-zkasm/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

type sectionParser func(r *binary.Reader, m *Module) error

var sectionParsers = map[byte]struct {
	parse sectionParser
	name  string
	order int
}{
	SectionType:      {parseTypeSection, "type", 1},
	SectionImport:    {parseImportSection, "import", 2},
	SectionFunction:  {parseFunctionSection, "function", 3},
	SectionTable:     {parseTableSection, "table", 4},
	SectionMemory:    {parseMemorySection, "memory", 5},
	SectionGlobal:    {parseGlobalSection, "global", 6},
	SectionExport:    {parseExportSection, "export", 7},
	SectionStart:     {parseStartSection, "start", 8},
	SectionElement:   {parseElementSection, "element", 9},
	SectionDataCount: {parseDataCountSection, "data count", 10},
	SectionCode:      {parseCodeSection, "code", 11},
	SectionData:      {parseDataSection, "data", 12},
}

// ParseModule parses a WebAssembly binary module
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	lastOrder := 0
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, r.WrapError("section header", err)
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		sr, err := r.Sub(int(size))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}

		if id == SectionCustom {
			if err := parseCustomSection(sr, m); err != nil {
				return nil, fmt.Errorf("custom section: %w", err)
			}
			continue
		}

		p, ok := sectionParsers[id]
		if !ok {
			return nil, fmt.Errorf("unknown section ID: 0x%02x", id)
		}
		if p.order <= lastOrder {
			return nil, fmt.Errorf("section %d appears out of order", id)
		}
		lastOrder = p.order

		if err := p.parse(sr, m); err != nil {
			return nil, fmt.Errorf("%s section: %w", p.name, err)
		}
		if sr.Len() != 0 {
			return nil, fmt.Errorf("%s section: %d trailing bytes", p.name, sr.Len())
		}
	}

	if len(m.Funcs) != len(m.Code) {
		return nil, fmt.Errorf("function and code section counts differ: %d != %d", len(m.Funcs), len(m.Code))
	}
	return m, nil
}

// readVec reads a LEB128 count and calls fn that many times. The count is
// bounded by the remaining input so corrupt counts fail fast.
func readVec(r *binary.Reader, fn func(i uint32) error) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) > r.Len() {
		return fmt.Errorf("vector length %d exceeds remaining %d bytes", count, r.Len())
	}
	for i := uint32(0); i < count; i++ {
		if err := fn(i); err != nil {
			return err
		}
	}
	return nil
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	m.CustomSections = append(m.CustomSections, CustomSection{
		Name: name,
		Data: r.ReadRemaining(),
	})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	return readVec(r, func(uint32) error {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return fmt.Errorf("unsupported type form 0x%02x", form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
		return nil
	})
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	var types []ValType
	err := readVec(r, func(uint32) error {
		t, err := readValType(r)
		types = append(types, t)
		return err
	})
	return types, err
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch t := ValType(b); t {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExtern:
		return t, nil
	}
	return 0, fmt.Errorf("invalid value type 0x%02x", b)
}

func parseImportSection(r *binary.Reader, m *Module) error {
	return readVec(r, func(uint32) error {
		module, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}

		imp := Import{Module: module, Name: name, Desc: ImportDesc{Kind: kind}}
		switch kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.ReadU32()
		case KindTable:
			var t TableType
			t, err = readTableType(r)
			imp.Desc.Table = &t
		case KindMemory:
			var mt MemoryType
			mt, err = readMemoryType(r)
			imp.Desc.Memory = &mt
		case KindGlobal:
			var g GlobalType
			g, err = readGlobalType(r)
			imp.Desc.Global = &g
		default:
			return fmt.Errorf("unknown import kind: %d", kind)
		}
		if err != nil {
			return err
		}
		m.Imports = append(m.Imports, imp)
		return nil
	})
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	return readVec(r, func(uint32) error {
		idx, err := r.ReadU32()
		m.Funcs = append(m.Funcs, idx)
		return err
	})
}

func parseTableSection(r *binary.Reader, m *Module) error {
	return readVec(r, func(uint32) error {
		t, err := readTableType(r)
		m.Tables = append(m.Tables, t)
		return err
	})
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	return readVec(r, func(uint32) error {
		mt, err := readMemoryType(r)
		m.Memories = append(m.Memories, mt)
		return err
	})
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	return readVec(r, func(uint32) error {
		gt, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readInitExpr(r)
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
		return nil
	})
}

func parseExportSection(r *binary.Reader, m *Module) error {
	return readVec(r, func(uint32) error {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if kind > KindGlobal {
			return fmt.Errorf("invalid export kind: 0x%02x", kind)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Idx: idx})
		return nil
	})
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *binary.Reader, m *Module) error {
	return readVec(r, func(uint32) error {
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		if flags > 7 {
			return fmt.Errorf("invalid element segment flags: %d", flags)
		}
		elem := Element{Flags: flags, ElemType: ValFuncRef}

		active := flags&0x01 == 0
		explicitTable := flags&0x02 != 0
		usesExprs := flags&0x04 != 0

		if active && explicitTable {
			if elem.TableIdx, err = r.ReadU32(); err != nil {
				return err
			}
		}
		if active {
			if elem.Offset, err = readInitExpr(r); err != nil {
				return err
			}
		}
		if flags&0x03 != 0 {
			kind, err := r.ReadByte()
			if err != nil {
				return err
			}
			if usesExprs {
				elem.ElemType = ValType(kind)
			} else if kind != 0x00 {
				return fmt.Errorf("invalid element kind 0x%02x", kind)
			}
		}

		err = readVec(r, func(uint32) error {
			if usesExprs {
				expr, err := readInitExpr(r)
				elem.Exprs = append(elem.Exprs, expr)
				return err
			}
			idx, err := r.ReadU32()
			elem.FuncIdxs = append(elem.FuncIdxs, idx)
			return err
		})
		if err != nil {
			return err
		}
		m.Elements = append(m.Elements, elem)
		return nil
	})
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	return readVec(r, func(uint32) error {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		offset := r.Position()
		br, err := r.Sub(int(size))
		if err != nil {
			return err
		}

		var locals []LocalEntry
		var total uint64
		err = readVec(br, func(uint32) error {
			n, err := br.ReadU32()
			if err != nil {
				return err
			}
			t, err := readValType(br)
			if err != nil {
				return err
			}
			total += uint64(n)
			if total > 50000 {
				return fmt.Errorf("too many locals: %d", total)
			}
			locals = append(locals, LocalEntry{Count: n, ValType: t})
			return nil
		})
		if err != nil {
			return err
		}

		m.Code = append(m.Code, FuncBody{
			Locals: locals,
			Code:   br.ReadRemaining(),
			Size:   size,
			Offset: uint32(offset),
		})
		return nil
	})
}

func parseDataSection(r *binary.Reader, m *Module) error {
	return readVec(r, func(uint32) error {
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		if flags > 2 {
			return fmt.Errorf("invalid data segment flags: %d", flags)
		}
		seg := DataSegment{Flags: flags}
		if flags == 2 {
			if seg.MemIdx, err = r.ReadU32(); err != nil {
				return err
			}
		}
		if flags != 1 {
			if seg.Offset, err = readInitExpr(r); err != nil {
				return err
			}
		}
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		if seg.Init, err = r.ReadBytes(int(n)); err != nil {
			return err
		}
		m.Data = append(m.Data, seg)
		return nil
	})
}

func parseDataCountSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.DataCount = &count
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags > 0x07 {
		return Limits{}, fmt.Errorf("invalid limits flags 0x%02x", flags)
	}
	l := Limits{Shared: flags&0x02 != 0, Memory64: flags&0x04 != 0}
	if l.Min, err = r.ReadU64(); err != nil {
		return l, err
	}
	if flags&0x01 != 0 {
		hi, err := r.ReadU64()
		if err != nil {
			return l, err
		}
		l.Max = &hi
	}
	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	t, err := readValType(r)
	if err != nil {
		return TableType{}, err
	}
	if t != ValFuncRef && t != ValExtern {
		return TableType{}, fmt.Errorf("invalid table element type %s", t)
	}
	limits, err := readLimits(r)
	return TableType{ElemType: t, Limits: limits}, err
}

func readMemoryType(r *binary.Reader) (MemoryType, error) {
	limits, err := readLimits(r)
	return MemoryType{Limits: limits}, err
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	t, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("invalid global mutability %d", mut)
	}
	return GlobalType{ValType: t, Mutable: mut == 1}, nil
}

// readInitExpr reads instructions up to and including end and returns
// their canonical encoding.
func readInitExpr(r *binary.Reader) ([]byte, error) {
	var instrs []Instruction
	for {
		instr, err := decodeInstruction(r)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, instr)
		if instr.Opcode == OpEnd {
			return EncodeInstructions(instrs), nil
		}
	}
}
