package wasm

import (
	"github.com/wippyai/wasm-zkasm/wasm/internal/binary"
)

// Encode encodes the module to WebAssembly binary format
func (m *Module) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	vec := func(id byte, n int, fn func(sec *binary.Writer, i int)) {
		if n == 0 {
			return
		}
		sec := binary.NewWriter()
		sec.WriteU32(uint32(n))
		for i := 0; i < n; i++ {
			fn(sec, i)
		}
		w.Section(id, sec)
	}

	vec(SectionType, len(m.Types), func(sec *binary.Writer, i int) {
		sec.Byte(FuncTypeByte)
		writeValTypes(sec, m.Types[i].Params)
		writeValTypes(sec, m.Types[i].Results)
	})

	vec(SectionImport, len(m.Imports), func(sec *binary.Writer, i int) {
		imp := m.Imports[i]
		sec.WriteName(imp.Module)
		sec.WriteName(imp.Name)
		sec.Byte(imp.Desc.Kind)
		switch imp.Desc.Kind {
		case KindFunc:
			sec.WriteU32(imp.Desc.TypeIdx)
		case KindTable:
			writeTableType(sec, *imp.Desc.Table)
		case KindMemory:
			writeLimits(sec, imp.Desc.Memory.Limits)
		case KindGlobal:
			writeGlobalType(sec, *imp.Desc.Global)
		}
	})

	vec(SectionFunction, len(m.Funcs), func(sec *binary.Writer, i int) {
		sec.WriteU32(m.Funcs[i])
	})

	vec(SectionTable, len(m.Tables), func(sec *binary.Writer, i int) {
		writeTableType(sec, m.Tables[i])
	})

	vec(SectionMemory, len(m.Memories), func(sec *binary.Writer, i int) {
		writeLimits(sec, m.Memories[i].Limits)
	})

	vec(SectionGlobal, len(m.Globals), func(sec *binary.Writer, i int) {
		writeGlobalType(sec, m.Globals[i].Type)
		sec.WriteBytes(m.Globals[i].Init)
	})

	vec(SectionExport, len(m.Exports), func(sec *binary.Writer, i int) {
		sec.WriteName(m.Exports[i].Name)
		sec.Byte(m.Exports[i].Kind)
		sec.WriteU32(m.Exports[i].Idx)
	})

	if m.Start != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.Start)
		w.Section(SectionStart, sec)
	}

	vec(SectionElement, len(m.Elements), func(sec *binary.Writer, i int) {
		writeElement(sec, &m.Elements[i])
	})

	if m.DataCount != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.DataCount)
		w.Section(SectionDataCount, sec)
	}

	vec(SectionCode, len(m.Code), func(sec *binary.Writer, i int) {
		body := binary.NewWriter()
		body.WriteU32(uint32(len(m.Code[i].Locals)))
		for _, l := range m.Code[i].Locals {
			body.WriteU32(l.Count)
			body.Byte(byte(l.ValType))
		}
		body.WriteBytes(m.Code[i].Code)
		sec.WriteU32(uint32(body.Len()))
		sec.WriteBytes(body.Bytes())
	})

	vec(SectionData, len(m.Data), func(sec *binary.Writer, i int) {
		seg := m.Data[i]
		sec.WriteU32(seg.Flags)
		if seg.Flags == 2 {
			sec.WriteU32(seg.MemIdx)
		}
		if seg.Flags != 1 {
			sec.WriteBytes(seg.Offset)
		}
		sec.WriteU32(uint32(len(seg.Init)))
		sec.WriteBytes(seg.Init)
	})

	for _, cs := range m.CustomSections {
		sec := binary.NewWriter()
		sec.WriteName(cs.Name)
		sec.WriteBytes(cs.Data)
		w.Section(SectionCustom, sec)
	}

	return w.Bytes()
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	var flags byte
	if l.Max != nil {
		flags |= 0x01
	}
	if l.Shared {
		flags |= 0x02
	}
	if l.Memory64 {
		flags |= 0x04
	}
	w.Byte(flags)
	w.WriteU64(l.Min)
	if l.Max != nil {
		w.WriteU64(*l.Max)
	}
}

func writeTableType(w *binary.Writer, t TableType) {
	w.Byte(byte(t.ElemType))
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

func writeElement(w *binary.Writer, e *Element) {
	w.WriteU32(e.Flags)
	active := e.Flags&0x01 == 0
	if active && e.Flags&0x02 != 0 {
		w.WriteU32(e.TableIdx)
	}
	if active {
		w.WriteBytes(e.Offset)
	}
	usesExprs := e.Flags&0x04 != 0
	if e.Flags&0x03 != 0 {
		if usesExprs {
			w.Byte(byte(e.ElemType))
		} else {
			w.Byte(0x00)
		}
	}
	if usesExprs {
		w.WriteU32(uint32(len(e.Exprs)))
		for _, expr := range e.Exprs {
			w.WriteBytes(expr)
		}
		return
	}
	w.WriteU32(uint32(len(e.FuncIdxs)))
	for _, idx := range e.FuncIdxs {
		w.WriteU32(idx)
	}
}
