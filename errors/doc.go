// Package errors provides structured error types for the zkASM compiler.
//
// Errors are categorized by Phase (which pipeline stage failed) and Kind
// (error category). The Error type carries the owning function index when
// one is known, a context path, the offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLower, errors.KindUnsupported).
//		Func(3).
//		Path("block2", "inst7").
//		Detail("rotl is not supported").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Unsupported(errors.PhaseTranslate, "multi-memory")
//	err := errors.UnresolvedRelocation(4, 120, "colocated libcall")
//
// Unresolved relocations, malformed labels and internal errors are defects
// of the compiler itself rather than of its input; IsDefect reports them.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
