package errors

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates which pipeline stage produced the error
type Phase string

const (
	PhaseDecode    Phase = "decode"    // wasm binary decoding
	PhaseValidate  Phase = "validate"  // module validation
	PhaseTranslate Phase = "translate" // wasm to IR
	PhaseLower     Phase = "lower"     // IR to zkASM text
	PhasePatch     Phase = "patch"     // relocation patching
	PhaseLabel     Phase = "label"     // label renaming and elision
	PhaseAssemble  Phase = "assemble"  // program assembly
	PhaseConfig    Phase = "config"    // settings loading
	PhaseCache     Phase = "cache"     // compile cache
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData          Kind = "invalid_data"
	KindUnsupported          Kind = "unsupported"
	KindOutOfRange           Kind = "out_of_range"
	KindNotFound             Kind = "not_found"
	KindDuplicate            Kind = "duplicate"
	KindUnresolvedRelocation Kind = "unresolved_relocation"
	KindMalformedLabel       Kind = "malformed_label"
	KindInternal             Kind = "internal"
)

// Error is the structured error type used throughout the compiler
type Error struct {
	Value  any
	Cause  error
	Func   *uint32
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Func != nil {
		b.WriteString(" in function_")
		b.WriteString(strconv.FormatUint(uint64(*e.Func), 10))
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Defect reports whether the error signals a bug in the compiler rather
// than a problem with its input.
func (e *Error) Defect() bool {
	switch e.Kind {
	case KindUnresolvedRelocation, KindMalformedLabel, KindInternal:
		return true
	}
	return false
}

// IsDefect reports whether any *Error in err's chain is a compiler defect.
func IsDefect(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Defect()
	}
	return false
}

// WithFunc returns err annotated with a function index. Errors that are not
// *Error, or that already name a function, are returned unchanged.
func WithFunc(err error, index uint32) error {
	var e *Error
	if !stderrors.As(err, &e) || e.Func != nil {
		return err
	}
	cp := *e
	cp.Func = &index
	return &cp
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Func sets the owning function index
func (b *Builder) Func(index uint32) *Builder {
	b.err.Func = &index
	return b
}

// Path sets the context path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Unsupported creates an unsupported feature error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// OutOfRange creates an out of range error
func OutOfRange(phase Phase, what string, value any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfRange,
		Detail: fmt.Sprintf("%s %v out of range", what, value),
		Value:  value,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Duplicate creates a duplicate definition error
func Duplicate(phase Phase, what string, value any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicate,
		Detail: fmt.Sprintf("duplicate %s %v", what, value),
		Value:  value,
	}
}

// UnresolvedRelocation creates the error raised when a relocation target
// is neither a trap nor a call.
func UnresolvedRelocation(funcIndex uint32, offset int, target string) *Error {
	return &Error{
		Phase:  PhasePatch,
		Kind:   KindUnresolvedRelocation,
		Func:   &funcIndex,
		Detail: fmt.Sprintf("relocation at offset %d has unresolved target %s", offset, target),
		Value:  offset,
	}
}

// MalformedLabel creates the error raised for a label prefix without a
// numeric suffix.
func MalformedLabel(funcIndex uint32, line int, text string) *Error {
	return &Error{
		Phase:  PhaseLabel,
		Kind:   KindMalformedLabel,
		Func:   &funcIndex,
		Path:   []string{"line " + strconv.Itoa(line)},
		Detail: fmt.Sprintf("malformed label in %q", text),
		Value:  text,
	}
}

// Internal creates an internal compiler error
func Internal(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
