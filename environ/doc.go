// Package environ fixes the memory-layout conventions of the zkASM target
// and collects module declarations into a ModuleInfo.
//
// All heap, global and table addresses are expressed relative to a single
// synthetic symbol, BaseName. The symbol offset selects the region:
//
//	0  linear memory (HeapBase)
//	1  globals; global i is addressed at offset i (GlobalsBase)
//	2  function table, 8-byte entries (TableBase)
//
// Features the target cannot express compile to sentinels: memory.grow,
// memory.size, table.size and table.grow produce -1, bulk memory and table
// operations are dropped, and atomic wait and notify produce -1 and 0.
//
// Function index 0 is reserved for trap relocations. The imports
// env.assert_eq_i32 and env.assert_eq_i64 are replaced by inline
// assertions; calls to any other import are rejected.
package environ
