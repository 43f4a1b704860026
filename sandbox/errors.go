package sandbox

import (
	"errors"
	"fmt"
)

// Errors reported by the sandbox.
var (
	// ErrQuotaExceeded is returned when an allocation would exceed the memory quota.
	ErrQuotaExceeded = errors.New("not enough memory")

	// ErrInstructionLimit is raised when the instruction trap fires.
	ErrInstructionLimit = errors.New("instruction limit reached")

	// ErrBytecode is returned for files starting with the Lua bytecode signature.
	ErrBytecode = errors.New("for security, we do not evaluate Lua bytecode")

	// ErrInvalidScript is returned for files whose first byte is 0.
	ErrInvalidScript = errors.New("not a valid Lua script")

	// ErrClosed is returned when operating on a closed sandbox.
	ErrClosed = errors.New("sandbox is closed")
)

// Kind classifies sandbox failures.
type Kind int

const (
	KindNone Kind = iota
	KindResourceExhaustion
	KindSecurityRejection
	KindInvalidScript
	KindRuntime
	KindSetup
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindResourceExhaustion:
		return "resource_exhaustion"
	case KindSecurityRejection:
		return "security_rejection"
	case KindInvalidScript:
		return "invalid_script"
	case KindRuntime:
		return "runtime_error"
	case KindSetup:
		return "setup_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error describes a failed sandbox operation.
type Error struct {
	Kind  Kind
	Stage Stage // last stage reached before failing
	Path  string
	Err   error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindNone if err is not a sandbox error.
func KindOf(err error) Kind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return KindNone
}

// StageOf returns the stage recorded on err, or StageUnloaded if there is none.
func StageOf(err error) Stage {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Stage
	}
	return StageUnloaded
}

// IsResourceExhaustion reports whether err was caused by the memory quota or the
// instruction trap.
func IsResourceExhaustion(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrInstructionLimit)
}

// scriptError carries a Lua error message while still matching a sentinel.
type scriptError struct {
	msg   string
	cause error
}

func (e *scriptError) Error() string { return e.msg }

func (e *scriptError) Unwrap() error { return e.cause }
