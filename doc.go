// Package wasmzkasm compiles core WebAssembly modules into zkASM, the
// assembly language of the Polygon zkEVM ROM.
//
// The root package holds no code; the compiler is split by pipeline stage:
//
//	wasmzkasm/
//	├── wasm/        Core wasm binary decoder and encoder
//	├── translate/   Module walker and wasm-to-IR function translator
//	├── ir/          IR functions, instructions and builder
//	├── environ/     Module and function environment (base-symbol convention)
//	├── isa/zkasm/   Immediates, registers, frame layout and lowering to text
//	├── reloc/       Relocation patching of lowered functions
//	├── labels/      Per-function label renaming and jump elision
//	├── program/     Program assembly (preamble, bodies, postamble)
//	├── cache/       On-disk cache of compiled function bodies
//	├── compiler/    Pipeline driver and settings
//	├── errors/      Structured error types
//	└── cmd/zkasmc/  Command line front end
//
// # Quick Start
//
//	res, err := compiler.Compile(ctx, wasmBytes, compiler.DefaultSettings())
//	if err != nil {
//		return err
//	}
//	fmt.Print(res.Text())
//
// # Execution model
//
// A zkASM program runs for a fixed number of steps. The generated program
// initializes globals and data, calls the start function, then pads the
// remaining steps in finalizeExecution before jumping back to start.
//
// Memory is addressed in 8-byte words. Wasm i32 values occupy a whole word
// and are masked to 32 bits after every arithmetic operation.
package wasmzkasm
