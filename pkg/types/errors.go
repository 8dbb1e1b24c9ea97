package types

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned by long-running phases when the caller cancels.
var ErrCancelled = errors.New("refactoring cancelled by caller")

// RefactorError represents errors in refactoring operations
type RefactorError struct {
	Type    ErrorType
	Message string
	File    string
	Line    int
	Column  int
	Cause   error
}

func (e *RefactorError) Error() string {
	if e.File != "" && e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

func (e *RefactorError) Unwrap() error {
	return e.Cause
}

type ErrorType int

const (
	ParseError ErrorType = iota
	SymbolNotFound
	InvalidOperation
	CompilationError
	NameConflict
	FileSystemError
	PreconditionFailed
	InvariantViolation
	Cancelled
)

// String returns the string representation of ErrorType
func (t ErrorType) String() string {
	switch t {
	case ParseError:
		return "ParseError"
	case SymbolNotFound:
		return "SymbolNotFound"
	case InvalidOperation:
		return "InvalidOperation"
	case CompilationError:
		return "CompilationError"
	case NameConflict:
		return "NameConflict"
	case FileSystemError:
		return "FileSystemError"
	case PreconditionFailed:
		return "PreconditionFailed"
	case InvariantViolation:
		return "InvariantViolation"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// NewInvariantError reports a programming error inside the engine. These
// abort the transaction and are never downgraded to status entries.
func NewInvariantError(file, format string, args ...any) *RefactorError {
	return &RefactorError{
		Type:    InvariantViolation,
		Message: fmt.Sprintf(format, args...),
		File:    file,
	}
}

// IsInvariantViolation reports whether err carries an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var re *RefactorError
	return errors.As(err, &re) && re.Type == InvariantViolation
}

// IsCancelled reports whether err signals caller cancellation.
func IsCancelled(err error) bool {
	if errors.Is(err, ErrCancelled) {
		return true
	}
	var re *RefactorError
	return errors.As(err, &re) && re.Type == Cancelled
}
