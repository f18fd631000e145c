package reloc

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/wippyai/wasm-zkasm/errors"
	"github.com/wippyai/wasm-zkasm/ir"
)

// Relocation is a reference at a byte offset of a function's text.
type Relocation struct {
	Target Target
	Offset int
}

// TrapSite records where a trap was emitted.
type TrapSite struct {
	Offset int
	Code   ir.TrapCode
}

// CompiledFunction is the text of one function before patching. Every
// relocation offset lies inside a placeholder line.
type CompiledFunction struct {
	Code        []byte
	Relocations []Relocation
	Traps       []TrapSite
	Index       uint32
}

// Line is one line of a function's text, without its terminator.
type Line struct {
	Text  string
	Start int // byte offset in the original text
}

// Arena holds the lines of a function in order. Lines are immutable;
// patching builds a new sequence from them.
type Arena struct {
	lines []Line
}

// SplitLines splits code at newlines. A missing final newline is tolerated.
func SplitLines(code []byte) *Arena {
	a := &Arena{}
	start := 0
	for start < len(code) {
		end := start
		for end < len(code) && code[end] != '\n' {
			end++
		}
		a.lines = append(a.lines, Line{Text: string(code[start:end]), Start: start})
		start = end + 1
	}
	return a
}

// Len returns the number of lines.
func (a *Arena) Len() int { return len(a.lines) }

// Line returns line i.
func (a *Arena) Line(i int) Line { return a.lines[i] }

// Find returns the index of the line containing byte offset off.
func (a *Arena) Find(off int) (int, bool) {
	i := sort.Search(len(a.lines), func(i int) bool { return a.lines[i].Start > off }) - 1
	if i < 0 {
		return 0, false
	}
	l := a.lines[i]
	if off >= l.Start+len(l.Text) {
		return 0, false
	}
	return i, true
}

// Replacement returns the lines that replace a relocation site.
func Replacement(t Target) []string {
	switch t.Kind {
	case TargetTrap:
		return []string{"  A + 1 :ASSERT"}
	case TargetCall:
		return []string{"  zkPC + 2 => RR", "  :JMP(" + FuncLabel(t.Func) + ")"}
	}
	return []string{"  UNKNOWN"}
}

// Patched is a function with every relocation site rewritten.
type Patched struct {
	Lines  []string
	Deltas []int // per relocation, in offset order: bytes added
	Index  uint32
}

// Bytes returns the patched text, one newline after each line.
func (p *Patched) Bytes() []byte {
	var b strings.Builder
	for _, l := range p.Lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Patch rewrites every relocation site of cf. Relocations are applied in
// ascending offset order. Each replaces the whole line holding it with one
// or more lines.
//
// An unresolved target is written as UNKNOWN and reported as an error;
// the returned Patched is only meant for diagnostics in that case.
func Patch(cf *CompiledFunction) (*Patched, error) {
	arena := SplitLines(cf.Code)
	relocs := slices.Clone(cf.Relocations)
	slices.SortStableFunc(relocs, func(a, b Relocation) int { return a.Offset - b.Offset })

	out := &Patched{
		Lines:  make([]string, 0, arena.Len()+len(relocs)),
		Deltas: make([]int, 0, len(relocs)),
		Index:  cf.Index,
	}
	var firstErr error
	next := 0
	for _, r := range relocs {
		i, ok := arena.Find(r.Offset)
		if !ok {
			return nil, errors.New(errors.PhasePatch, errors.KindInternal).
				Func(cf.Index).
				Value(r.Offset).
				Detail("relocation offset %d is not inside a line", r.Offset).
				Build()
		}
		if i < next {
			return nil, errors.New(errors.PhasePatch, errors.KindInternal).
				Func(cf.Index).
				Path(fmt.Sprintf("line %d", i)).
				Detail("two relocations in one line").
				Build()
		}
		for _, l := range arena.lines[next:i] {
			out.Lines = append(out.Lines, l.Text)
		}
		repl := Replacement(r.Target)
		if r.Target.Kind == TargetUnresolved && firstErr == nil {
			firstErr = errors.UnresolvedRelocation(cf.Index, r.Offset, r.Target.Name)
		}
		out.Lines = append(out.Lines, repl...)
		out.Deltas = append(out.Deltas, textLen(repl)-(len(arena.lines[i].Text)+1))
		next = i + 1
	}
	for _, l := range arena.lines[next:] {
		out.Lines = append(out.Lines, l.Text)
	}
	return out, firstErr
}

func textLen(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	return n
}
