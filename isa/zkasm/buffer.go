package zkasm

import (
	"fmt"
	"strings"

	"github.com/wippyai/wasm-zkasm/environ"
	"github.com/wippyai/wasm-zkasm/ir"
)

// Placeholder is the text emitted at every relocation site. The patcher
// replaces the whole line, so its content only has to be recognizable.
const Placeholder = "  ;; @reloc"

// MachReloc is a pending reference to an external name at a byte offset
// inside a placeholder line.
type MachReloc struct {
	Name   ir.ExternalName
	Offset int
}

// MachTrap records a trap site.
type MachTrap struct {
	Offset int
	Code   ir.TrapCode
}

// MachBuffer accumulates the text of one function.
type MachBuffer struct {
	data   []byte
	relocs []MachReloc
	traps  []MachTrap
}

// MachBufferFinalized is the immutable result of emitting one function.
type MachBufferFinalized struct {
	Data   []byte
	Relocs []MachReloc
	Traps  []MachTrap
}

// Len returns the number of bytes emitted so far.
func (b *MachBuffer) Len() int { return len(b.data) }

// Inst emits one indented instruction line.
func (b *MachBuffer) Inst(format string, args ...any) {
	b.data = append(b.data, "  "...)
	b.data = fmt.Appendf(b.data, format, args...)
	b.data = append(b.data, '\n')
}

// Label emits a label definition.
func (b *MachBuffer) Label(name string) {
	b.data = append(b.data, name...)
	b.data = append(b.data, ":\n"...)
}

// Comment emits a comment line.
func (b *MachBuffer) Comment(text string) {
	b.data = append(b.data, "  ; "...)
	b.data = append(b.data, strings.ReplaceAll(text, "\n", " ")...)
	b.data = append(b.data, '\n')
}

// Reloc emits a placeholder line and records a relocation pointing inside it.
func (b *MachBuffer) Reloc(name ir.ExternalName) {
	off := len(b.data) + 2
	b.data = append(b.data, Placeholder...)
	b.data = append(b.data, '\n')
	b.relocs = append(b.relocs, MachReloc{Name: name, Offset: off})
}

// Trap emits a relocation to the trap sentinel and records the trap site.
func (b *MachBuffer) Trap(code ir.TrapCode) {
	b.traps = append(b.traps, MachTrap{Offset: len(b.data) + 2, Code: code})
	b.Reloc(ir.UserName(0, environ.TrapFunc))
}

// Finish returns the emitted text and its relocation and trap lists.
func (b *MachBuffer) Finish() *MachBufferFinalized {
	return &MachBufferFinalized{Data: b.data, Relocs: b.relocs, Traps: b.traps}
}
