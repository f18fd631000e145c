// Package zkasm lowers IR functions to zkASM text for the Polygon zkEVM
// processor.
//
// The target has five general registers (A to E), a stack pointer SP, a
// return address register RR and word-addressed memory. Arithmetic goes
// through the binary and arithmetic state machines (:ADD, :SUB, :LT, :EQ,
// :AND, :OR, :XOR, :ARITH); values that the processor cannot compute
// directly are supplied as free inputs (${...}) and checked where the
// state machines allow it.
//
// Lowering keeps every IR value in a frame slot and loads operands into
// registers around each instruction. Calls and traps are emitted as a
// single placeholder line plus a relocation; package reloc replaces them
// with real text once the whole module is known.
//
// Known limitations:
//   - 32-bit loads and stores access a whole 8-byte word.
//   - Narrow loads and stores, signed division, rotations and bit counts
//     are rejected.
//   - Floating-point operations compile to a trap.
//   - Free-input results of shifts are not range checked.
package zkasm
