package core

import (
	"fmt"
)

// Error taxonomy of the engine. Every error propagates synchronously as the
// return value of the call that caused it; there are no retries and no
// partial results. A failed transform invalidates the whole pipeline
// invocation.

// StructuralError reports a malformed tape: an out-of-range or negative wire
// index, a duplicated wire within one operation, or an empty program where
// one is required. Detected eagerly at construction and always fatal.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural error: %s", e.Reason)
}

func NewStructuralError(format string, args ...interface{}) *StructuralError {
	return &StructuralError{Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedOperationError reports an operation a transform cannot
// classify. The default policy is identity passthrough; only transforms in
// strict mode surface this error.
type UnsupportedOperationError struct {
	Gate      string
	Transform string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation %q in transform %q", e.Gate, e.Transform)
}

func NewUnsupportedOperationError(gate, transform string) *UnsupportedOperationError {
	return &UnsupportedOperationError{Gate: gate, Transform: transform}
}

// DegenerateFitError reports a singular least-squares fit in a batch
// transform combiner, e.g. zero-variance scale factors. Fatal, never a
// silent NaN.
type DegenerateFitError struct {
	Reason string
}

func (e *DegenerateFitError) Error() string {
	return fmt.Sprintf("degenerate fit: %s", e.Reason)
}

func NewDegenerateFitError(format string, args ...interface{}) *DegenerateFitError {
	return &DegenerateFitError{Reason: fmt.Sprintf(format, args...)}
}

// NotDifferentiableError is surfaced by a differentiation backend when a
// gradient is requested through a value that is not on a differentiable
// path, such as a non-trainable parameter or an integer repeat count.
// The engine never swallows it.
type NotDifferentiableError struct {
	Reason string
}

func (e *NotDifferentiableError) Error() string {
	return fmt.Sprintf("not differentiable: %s", e.Reason)
}

func NewNotDifferentiableError(format string, args ...interface{}) *NotDifferentiableError {
	return &NotDifferentiableError{Reason: fmt.Sprintf(format, args...)}
}

// BackendError reports a tape the execution backend cannot run: a gate
// outside the device gate set or a wire at or above the device width.
type BackendError struct {
	Reason string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error: %s", e.Reason)
}

func NewBackendError(format string, args ...interface{}) *BackendError {
	return &BackendError{Reason: fmt.Sprintf(format, args...)}
}
