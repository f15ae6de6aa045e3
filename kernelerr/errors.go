// Package kernelerr provides typed error handling for the kernel core.
//
// Every kernel entry point returns either a distinguished error sentinel or
// the requested result, never a panic — panics are reserved for
// interrupt-context invariant violations, which are programming bugs,
// not recoverable conditions. All errors support errors.Is/errors.As.
package kernelerr

import (
	"errors"
	"fmt"
)

// Kind classifies a kernel error.
type Kind int

const (
	// InvalidID indicates an out-of-range id, or one referencing a free slot.
	InvalidID Kind = iota
	// QuotaExhausted indicates no free PCB, semaphore, timer, port, or mailbox.
	QuotaExhausted
	// Precondition indicates an operation attempted in an invalid state.
	Precondition
	// Timeout indicates a timedwait/recvtime expired before being satisfied.
	Timeout
	// Deleted indicates the resource being waited on was destroyed.
	Deleted
	// Internal indicates an unexpected internal condition.
	Internal
)

// String returns a human-readable name for the error kind.
func (k Kind) String() string {
	switch k {
	case InvalidID:
		return "invalid id"
	case QuotaExhausted:
		return "quota exhausted"
	case Precondition:
		return "precondition failure"
	case Timeout:
		return "timeout"
	case Deleted:
		return "resource deleted"
	case Internal:
		return "internal error"
	default:
		return "unknown error"
	}
}

// KernelError represents an error returned by a kernel operation.
type KernelError struct {
	// Op is the operation that failed (e.g. "wait", "create", "chprio").
	Op string
	// Kind is the error classification.
	Kind Kind
	// Detail provides additional context about the error.
	Detail string
	// Err is the underlying error, if any.
	Err error
}

// Error returns the error message.
func (e *KernelError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Op
	if msg != "" {
		msg += ": "
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *KernelError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether the error matches the target, comparing by Kind.
func (e *KernelError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	t, ok := target.(*KernelError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a new KernelError with the given kind.
func New(kind Kind, op, detail string) *KernelError {
	return &KernelError{Op: op, Kind: kind, Detail: detail}
}

// Wrap wraps an error with kernel operation context.
func Wrap(err error, kind Kind, op string) *KernelError {
	return &KernelError{Op: op, Kind: kind, Err: err}
}

// IsKind reports whether err is a KernelError of the given kind.
func IsKind(err error, kind Kind) bool {
	var kerr *KernelError
	if errors.As(err, &kerr) {
		return kerr.Kind == kind
	}
	return false
}

// GetKind returns the error kind if err is a KernelError.
func GetKind(err error) (Kind, bool) {
	var kerr *KernelError
	if errors.As(err, &kerr) {
		return kerr.Kind, true
	}
	return 0, false
}

// Re-exported standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
