// Package labels makes block labels unique across a program and removes
// jumps to the line that immediately follows them.
//
// Lowering names block labels label_N, unique only within one function.
// Optimize rewrites them to label_F_N, where F is the owning function's
// index, then applies two conservative rules:
//   - a definition with no uses is deleted;
//   - a definition whose only use is on the line immediately before it is
//     deleted together with that use.
//
// Optimize keeps no state between calls, so functions may be processed
// concurrently.
package labels

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-zkasm/errors"
)

// Prefix starts every block label.
const Prefix = "label_"

type ref struct {
	line  int
	start int // byte offset of the prefix in the line
	end   int // byte offset after the digits
	id    int
}

type label struct {
	def  int
	uses []int
}

// Optimize renames and elides labels in the lines of function index.
func Optimize(index uint32, lines []string) ([]string, error) {
	refs, err := scan(index, lines)
	if err != nil {
		return nil, err
	}

	table := make(map[int]*label)
	get := func(id int) *label {
		l, ok := table[id]
		if !ok {
			l = &label{def: -1}
			table[id] = l
		}
		return l
	}
	for _, r := range refs {
		l := get(r.id)
		if isDef(lines[r.line]) {
			if l.def >= 0 {
				return nil, errors.New(errors.PhaseLabel, errors.KindInternal).
					Func(index).
					Path("line "+strconv.Itoa(r.line)).
					Detail("label %s%d defined twice", Prefix, r.id).
					Build()
			}
			l.def = r.line
			continue
		}
		l.uses = append(l.uses, r.line)
	}

	var drop []int
	for id, l := range table {
		if l.def < 0 {
			return nil, errors.New(errors.PhaseLabel, errors.KindInternal).
				Func(index).
				Path("line "+strconv.Itoa(l.uses[0])).
				Detail("use of undefined label %s%d", Prefix, id).
				Build()
		}
		switch {
		case len(l.uses) == 0:
			drop = append(drop, l.def)
		case len(l.uses) == 1 && l.uses[0] == l.def-1:
			drop = append(drop, l.def, l.uses[0])
		}
	}

	out := rename(index, lines, refs)
	slices.Sort(drop)
	drop = slices.Compact(drop)
	for j := len(drop) - 1; j >= 0; j-- {
		i := drop[j]
		out = slices.Delete(out, i, i+1)
	}
	return out, nil
}

// isDef reports whether a line defines a label.
func isDef(line string) bool {
	return strings.HasPrefix(line, Prefix) && strings.HasSuffix(line, ":")
}

// scan finds every label reference in order.
func scan(index uint32, lines []string) ([]ref, error) {
	var refs []ref
	for i, line := range lines {
		from := 0
		for {
			k := strings.Index(line[from:], Prefix)
			if k < 0 {
				break
			}
			start := from + k
			end := start + len(Prefix)
			for end < len(line) && line[end] >= '0' && line[end] <= '9' {
				end++
			}
			id, err := strconv.Atoi(line[start+len(Prefix) : end])
			if err != nil {
				return nil, errors.MalformedLabel(index, i, line)
			}
			refs = append(refs, ref{line: i, start: start, end: end, id: id})
			from = end
		}
	}
	return refs, nil
}

// rename returns a copy of lines with every reference suffixed by index.
func rename(index uint32, lines []string, refs []ref) []string {
	out := slices.Clone(lines)
	var b strings.Builder
	for n := 0; n < len(refs); {
		line := refs[n].line
		src := lines[line]
		b.Reset()
		prev := 0
		for ; n < len(refs) && refs[n].line == line; n++ {
			r := refs[n]
			b.WriteString(src[prev:r.start])
			fmt.Fprintf(&b, "%s%d_%d", Prefix, index, r.id)
			prev = r.end
		}
		b.WriteString(src[prev:])
		out[line] = b.String()
	}
	return out
}
