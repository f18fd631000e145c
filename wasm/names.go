package wasm

import (
	"fmt"
	"slices"

	"github.com/wippyai/wasm-zkasm/wasm/internal/binary"
)

// Names holds the module and function names of a "name" custom section.
type Names struct {
	Functions map[uint32]string
	Module    string
}

// Name subsection IDs.
const (
	nameSubModule   byte = 0
	nameSubFunction byte = 1
)

// ParseNames decodes the module and function subsections of a name section.
// Other subsections are skipped.
func ParseNames(data []byte) (*Names, error) {
	names := &Names{Functions: make(map[uint32]string)}
	r := binary.NewReader(data)
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		sub, err := r.Sub(int(size))
		if err != nil {
			return nil, err
		}
		switch id {
		case nameSubModule:
			if names.Module, err = sub.ReadName(); err != nil {
				return nil, fmt.Errorf("module name: %w", err)
			}
		case nameSubFunction:
			err = readVec(sub, func(uint32) error {
				idx, err := sub.ReadU32()
				if err != nil {
					return err
				}
				name, err := sub.ReadName()
				if err != nil {
					return err
				}
				names.Functions[idx] = name
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("function names: %w", err)
			}
		}
	}
	return names, nil
}

// EncodeNames builds the payload of a "name" custom section.
func EncodeNames(n *Names) []byte {
	w := binary.NewWriter()
	if n.Module != "" {
		sub := binary.NewWriter()
		sub.WriteName(n.Module)
		w.Section(nameSubModule, sub)
	}
	if len(n.Functions) > 0 {
		idxs := make([]uint32, 0, len(n.Functions))
		for idx := range n.Functions {
			idxs = append(idxs, idx)
		}
		slices.Sort(idxs)
		sub := binary.NewWriter()
		sub.WriteU32(uint32(len(idxs)))
		for _, idx := range idxs {
			sub.WriteU32(idx)
			sub.WriteName(n.Functions[idx])
		}
		w.Section(nameSubFunction, sub)
	}
	return w.Bytes()
}
