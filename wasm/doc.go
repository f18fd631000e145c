// Package wasm decodes and encodes WebAssembly core modules.
//
// The decoder covers the sections and instructions a zkASM compilation can
// meet: MVP control, memory, numeric and conversion instructions, sign
// extension, saturating truncation and bulk memory (0xFC), reference
// instructions, and atomic wait/notify/fence (0xFE). SIMD bodies are rejected.
//
// Parse a binary:
//
//	m, err := wasm.ParseModule(data)
//
// Build one in memory, typically in tests:
//
//	m := &wasm.Module{
//		Types: []wasm.FuncType{{Results: []wasm.ValType{wasm.ValI32}}},
//		Funcs: []uint32{0},
//		Code: []wasm.FuncBody{{Code: wasm.EncodeInstructions([]wasm.Instruction{
//			{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 42}},
//			{Opcode: wasm.OpEnd},
//		})}},
//	}
//	data := m.Encode()
package wasm
