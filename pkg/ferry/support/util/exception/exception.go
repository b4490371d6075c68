// Package exception provides the error taxonomy used by Ferry.
// Every error raised by the engine is a *FerryError carrying a Kind, so callers
// can classify failures (validation, crash, transfer, ...) with errors.As or IsKind.
package exception

import (
	"errors"
	"fmt"
	"runtime"
)

// Kind classifies a FerryError.
type Kind string

const (
	// ValidationError marks missing or invalid configuration and unknown capability keys.
	ValidationError Kind = "ValidationError"
	// ConnectionError marks an unreachable collaborator (database, storage, exporter).
	ConnectionError Kind = "ConnectionError"
	// TransferError marks a failed transfer capability.
	TransferError Kind = "TransferError"
	// CleanupError marks a failed cleanup capability.
	CleanupError Kind = "CleanupError"
	// ProbeError marks a failed count probe.
	ProbeError Kind = "ProbeError"
	// MismatchError marks a source/target count disagreement.
	MismatchError Kind = "MismatchError"
	// CrashError marks a worker that terminated without a usable result envelope.
	CrashError Kind = "CrashError"
	// ParseError marks a malformed job message or result envelope.
	ParseError Kind = "ParseError"
	// CriticalError marks a fault during initialization that pre-empts the transfer.
	CriticalError Kind = "CriticalError"
)

// Kinds lists every kind in declaration order.
var Kinds = []Kind{
	ValidationError, ConnectionError, TransferError, CleanupError, ProbeError,
	MismatchError, CrashError, ParseError, CriticalError,
}

// FerryError is the error type raised by the engine.
type FerryError struct {
	// Kind classifies the error.
	Kind Kind
	// Module is the component that raised the error (e.g. "dispatch", "worker", "audit").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped cause, if any.
	OriginalErr error
	// StackTrace is captured at construction for debugging.
	StackTrace string
}

// NewFerryError creates a FerryError.
//
// Parameters:
//
//	kind: The classification of the error.
//	module: The module where the error occurred.
//	message: The error message.
//	originalErr: The cause to wrap; may be nil.
func NewFerryError(kind Kind, module, message string, originalErr error) *FerryError {
	return &FerryError{
		Kind:        kind,
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
	}
}

// NewFerryErrorf creates a FerryError with a formatted message.
// If the last argument is an error it becomes OriginalErr and is not used for formatting.
//
// Example:
//
//	NewFerryErrorf(ValidationError, "registry", "unknown capability %q", key)
//	NewFerryErrorf(ConnectionError, "statestore", "persist %s failed", id, err)
func NewFerryErrorf(kind Kind, module, format string, a ...interface{}) *FerryError {
	var originalErr error
	args := a
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	return &FerryError{
		Kind:        kind,
		Module:      module,
		Message:     fmt.Sprintf(format, args...),
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
	}
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Error implements the error interface.
func (e *FerryError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *FerryError) Unwrap() error {
	return e.OriginalErr
}

// Is matches kind sentinels registered through Sentinel, so that
// errors.Is(err, exception.Sentinel(exception.CrashError)) works.
func (e *FerryError) Is(target error) bool {
	if s, ok := target.(*kindSentinel); ok {
		return s.kind == e.Kind
	}
	return false
}

// kindSentinel is a comparable stand-in for a Kind in errors.Is chains.
type kindSentinel struct{ kind Kind }

func (s *kindSentinel) Error() string { return string(s.kind) }

var sentinels = func() map[Kind]*kindSentinel {
	m := make(map[Kind]*kindSentinel, len(Kinds))
	for _, k := range Kinds {
		m[k] = &kindSentinel{kind: k}
	}
	return m
}()

// Sentinel returns the errors.Is target for kind.
func Sentinel(kind Kind) error {
	if s, ok := sentinels[kind]; ok {
		return s
	}
	return &kindSentinel{kind: kind}
}

// KindOf returns the kind of the outermost FerryError in err's chain, or "".
func KindOf(err error) Kind {
	var fe *FerryError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether any FerryError in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && errors.Is(err, Sentinel(kind))
}

// ExtractErrorMessage returns the Message of a FerryError, or err.Error() otherwise.
// Messages written into ErrorCollections use this so module prefixes stay out of them.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if fe, ok := err.(*FerryError); ok {
		if fe.OriginalErr != nil {
			return fmt.Sprintf("%s: %s", fe.Message, ExtractErrorMessage(fe.OriginalErr))
		}
		return fe.Message
	}
	return err.Error()
}
