// Package errors provides the engine's structured error type.
//
// Error code ranges mirror the layering of the engine:
//
//	E1xxx: instrumenter invariant violations (static dataflow, IR shape)
//	E2xxx: pool/lifecycle invariant violations (refcounts, free-lists)
//	E3xxx: report/config errors (file I/O, option parsing)
package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

const (
	// E1001: a guest block reached the instrumenter in non-flattened form.
	ErrNonFlatIR = "E1001"
	// E1002: a Get/Put pair disagreed on the declared width of a TS slot.
	ErrTempWidthMismatch = "E1002"
	// E1003: instrumentation was asked to cover a temp index out of range.
	ErrTempOutOfRange = "E1003"

	// E2001: a value was mutated after its reference count exceeded one.
	ErrMutateSharedValue = "E2001"
	// E2002: disown was called on a value already at zero references.
	ErrDoubleDisown = "E2002"
	// E2003: a debt-list entry outlived its owning block.
	ErrDanglingDebt = "E2003"

	// E3001: the report file could not be opened.
	ErrReportOpen = "E3001"
	// E3002: a configuration option failed to parse.
	ErrConfigParse = "E3002"
)

// EngineError is a structured error carrying an error code in the ranges
// above plus freeform context, in the spirit of the teacher's
// internal/errors.CompilerError but scoped to runtime engine failures
// instead of compile diagnostics.
type EngineError struct {
	Code    string
	Message string
	Context map[string]any
}

func (e *EngineError) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s %v", e.Code, e.Message, e.Context)
}

// New builds an EngineError with the given code and message.
func New(code, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// Newf builds an EngineError with a formatted message.
func Newf(code, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// With attaches a context key/value pair and returns the receiver for
// chaining, e.g. errors.New(...).With("op_addr", addr).
func (e *EngineError) With(key string, value any) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Wrap annotates err with a message while crossing a package boundary
// (hostir into instrument/engine), preserving the original error via
// pkg/errors' cause chain so callers can still errors.Is/As through it.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, message)
}

// Invariant panics with an EngineError if cond is false. Instrumenter and
// pool invariant violations are bugs in the engine itself, not recoverable
// input errors, so they fail fast rather than propagate as error values
// (spec §7).
func Invariant(cond bool, code, format string, args ...any) {
	if !cond {
		panic(Newf(code, format, args...))
	}
}
