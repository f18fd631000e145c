// Package program joins compiled functions into one zkASM program.
//
// The program starts with a preamble that declares a storage cell per
// global, initializes globals and memory, sets up the stack and calls the
// start function. Function bodies follow in index order. The postamble
// pads execution up to the processor's fixed step count.
package program

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"slices"
	"strings"

	"github.com/wippyai/wasm-zkasm/environ"
	"github.com/wippyai/wasm-zkasm/errors"
	"github.com/wippyai/wasm-zkasm/isa/zkasm"
	"github.com/wippyai/wasm-zkasm/reloc"
	"github.com/wippyai/wasm-zkasm/translate"
)

const (
	startLabel    = "start"
	finalizeLabel = "finalizeExecution"
	wordBytes     = 8
)

// Function is the final text of one function, without its entry label.
type Function struct {
	Lines []string
	Index uint32
}

// Options control assembly.
type Options struct {
	StartExport string // export used when the module has no start section
	StackTop    uint64
	HeapBase    uint64
}

// Program is the assembled text.
type Program struct {
	Lines []string
	Start uint32
}

// String returns the program with a newline after every line.
func (p *Program) String() string {
	var b strings.Builder
	for _, l := range p.Lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}

// GlobalCell names the storage cell of global i.
func GlobalCell(i uint32) string {
	return fmt.Sprintf("global_%d", i)
}

// ResolveStart picks the start function: the start section if present,
// otherwise the function exported as export.
func ResolveStart(info *environ.ModuleInfo, export string) (uint32, error) {
	if info.Start != nil {
		return *info.Start, nil
	}
	if export != "" {
		if idx, ok := info.ExportedFunc(export); ok {
			return idx, nil
		}
	}
	return 0, errors.NotFound(errors.PhaseAssemble, "start function", export)
}

// Assemble builds the program for info from its compiled functions. funcs
// may be in any order; each defined function must appear exactly once.
func Assemble(info *environ.ModuleInfo, funcs []Function, opts Options) (*Program, error) {
	start, err := ResolveStart(info, opts.StartExport)
	if err != nil {
		return nil, err
	}
	if imp, ok := info.ImportOf(start); ok {
		return nil, errors.Unsupported(errors.PhaseAssemble, "start function is the import "+imp.String())
	}

	sorted := slices.Clone(funcs)
	slices.SortFunc(sorted, func(a, b Function) int { return cmp.Compare(a.Index, b.Index) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Index == sorted[i-1].Index {
			return nil, errors.Duplicate(errors.PhaseAssemble, "function", sorted[i].Index)
		}
	}
	if _, found := slices.BinarySearchFunc(sorted, start, func(f Function, idx uint32) int { return cmp.Compare(f.Index, idx) }); !found {
		return nil, errors.NotFound(errors.PhaseAssemble, "body of start function", reloc.FuncLabel(start))
	}

	p := &Program{Start: start}
	if err := p.preamble(info, opts); err != nil {
		return nil, err
	}
	for _, f := range sorted {
		p.Lines = append(p.Lines, reloc.FuncLabel(f.Index)+":")
		p.Lines = append(p.Lines, f.Lines...)
	}
	p.postamble()
	return p, nil
}

func (p *Program) inst(format string, args ...any) {
	p.Lines = append(p.Lines, "  "+fmt.Sprintf(format, args...))
}

func (p *Program) preamble(info *environ.ModuleInfo, opts Options) error {
	for i := range info.Globals {
		p.Lines = append(p.Lines, "VAR GLOBAL "+GlobalCell(uint32(i)))
	}
	p.Lines = append(p.Lines, startLabel+":")

	for _, g := range info.GlobalInits {
		if err := p.initGlobal(g); err != nil {
			return err
		}
	}
	for _, w := range dataWords(info.DataInits, opts.HeapBase) {
		p.inst("%s => E", zkasm.FormatConst(w.addr))
		p.inst("%dn :MSTORE(E)", w.value)
	}

	p.inst("0x%x => SP", opts.StackTop)
	p.inst("zkPC + 2 => RR")
	p.inst(":JMP(%s)", reloc.FuncLabel(p.Start))
	p.inst(":JMP(%s)", finalizeLabel)
	return nil
}

func (p *Program) initGlobal(g environ.GlobalInit) error {
	cell := GlobalCell(g.Index)
	switch g.Init.Kind {
	case translate.InitI32Const, translate.InitI64Const, translate.InitF32Const, translate.InitF64Const:
		p.inst("%s :MSTORE(%s)", zkasm.FormatConst(g.Init.Bits), cell)
	case translate.InitRefNull:
		p.inst("0 :MSTORE(%s)", cell)
	case translate.InitGetGlobal:
		p.inst("$ => A :MLOAD(%s)", GlobalCell(g.Init.Index))
		p.inst("A :MSTORE(%s)", cell)
	default:
		return errors.New(errors.PhaseAssemble, errors.KindUnsupported).
			Path(cell).
			Detail("global initializer kind %d", g.Init.Kind).
			Build()
	}
	return nil
}

func (p *Program) postamble() {
	p.Lines = append(p.Lines,
		finalizeLabel+":",
		"  ${beforeLast()}  :JMPN("+finalizeLabel+")",
		"                   :JMP("+startLabel+")",
	)
}

type word struct {
	addr  uint64 // word address
	value uint64
}

// dataWords packs data segments into little-endian 8-byte words. Later
// segments overwrite earlier ones; bytes no segment covers stay zero.
func dataWords(inits []environ.DataInit, heapBase uint64) []word {
	words := make(map[uint64]*[wordBytes]byte)
	for _, d := range inits {
		for i, b := range d.Data {
			addr := heapBase + d.Offset + uint64(i)
			w, ok := words[addr/wordBytes]
			if !ok {
				w = new([wordBytes]byte)
				words[addr/wordBytes] = w
			}
			w[addr%wordBytes] = b
		}
	}
	out := make([]word, 0, len(words))
	for addr, w := range words {
		out = append(out, word{addr: addr, value: binary.LittleEndian.Uint64(w[:])})
	}
	slices.SortFunc(out, func(a, b word) int { return cmp.Compare(a.addr, b.addr) })
	return out
}
