package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the module lifecycle the error occurred
type Phase string

const (
	PhaseCompile     Phase = "compile"     // bytecode validation and compilation
	PhaseInstantiate Phase = "instantiate" // instance creation and memory reservation
	PhaseCall        Phase = "call"        // guest invocation
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidBytecode Kind = "invalid_bytecode"
	KindInstantiation   Kind = "instantiation"
	KindMethodNotFound  Kind = "method_not_found"
	KindTrap            Kind = "trap"
	KindOutOfMemory     Kind = "out_of_memory"
	KindFaulted         Kind = "faulted"
)

// Error is the structured error type used throughout the executor.
// Every failure crossing the sandbox boundary is one of these values;
// nothing unwinds out of a guest call uncaught.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Method string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Method != "" {
		b.WriteString(" in ")
		b.WriteString(e.Method)
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

// Convenience constructors for the executor error taxonomy

// InvalidBytecode reports that the guest bytecode failed validation or
// compilation.
func InvalidBytecode(cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindInvalidBytecode,
		Detail: "compile module",
		Cause:  cause,
	}
}

// Instantiation reports that the engine could not create an instance or
// reserve the page budget implied by the heap strategy.
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// InstantiationDetail is Instantiation with an explanation and no cause.
func InstantiationDetail(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// MethodNotFound reports that the requested export is absent from the guest.
func MethodNotFound(method string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindMethodNotFound,
		Method: method,
		Detail: "export not found",
	}
}

// Trap reports a guest-triggered sandbox fault: illegal memory access,
// stack exhaustion, or an explicit abort.
func Trap(method string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindTrap,
		Method: method,
		Cause:  cause,
	}
}

// TrapDetail is Trap with an explanation instead of an engine cause.
func TrapDetail(method, detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindTrap,
		Method: method,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// OutOfMemory reports that the active heap strategy's ceiling was exceeded.
// Kept distinct from Trap: consensus logic treats resource exhaustion
// specially.
func OutOfMemory(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindOutOfMemory,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Faulted reports a call attempted on a faulted instance before Reset.
func Faulted(method string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindFaulted,
		Method: method,
		Detail: "instance faulted; reset or discard it before reuse",
	}
}

// Predicates used by callers to branch on the error class.

func kindOf(err error) (Kind, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return "", false
		}
		err = u.Unwrap()
	}
	return "", false
}

// IsTrap reports whether err is a trap-class sandbox fault.
func IsTrap(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTrap
}

// IsOutOfMemory reports whether err is heap-ceiling exhaustion.
func IsOutOfMemory(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindOutOfMemory
}

// IsMethodNotFound reports whether err is a missing guest export.
func IsMethodNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindMethodNotFound
}

// IsCompileOrInstantiate reports whether err is fatal for the
// module/instance rather than scoped to a single call.
func IsCompileOrInstantiate(err error) bool {
	k, ok := kindOf(err)
	return ok && (k == KindInvalidBytecode || k == KindInstantiation)
}
