// Package ir defines the intermediate representation a WebAssembly function
// is translated into before zkASM lowering.
//
// A Function owns every entity it references: values, instructions, blocks,
// variables, global values, external functions and signatures are indices
// into its tables. Mutable state (wasm locals, block results) lives in
// variables read with UseVar and written with DefVar, so blocks carry no
// parameters and every value is defined exactly once.
//
// Functions are built with a Builder:
//
//	fn := ir.NewFunction(ir.UserName(0, 1), ir.Signature{Results: []ir.Type{ir.I32}})
//	b := ir.NewBuilder(fn)
//	b.SwitchToBlock(b.CreateBlock())
//	b.Return([]ir.Value{b.Iconst(ir.I32, 42)})
package ir
