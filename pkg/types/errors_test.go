package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefactorError_Error(t *testing.T) {
	testCases := []struct {
		name     string
		err      *RefactorError
		expected string
	}{
		{
			name: "With file location",
			err: &RefactorError{
				Type:    ParseError,
				Message: "Failed to parse",
				File:    "/test/file.go",
				Line:    15,
				Column:  10,
			},
			expected: "/test/file.go:15:10: Failed to parse",
		},
		{
			name: "With file only",
			err: &RefactorError{
				Type:    FileSystemError,
				Message: "cannot read",
				File:    "/test/file.go",
			},
			expected: "/test/file.go: cannot read",
		},
		{
			name: "Without file location",
			err: &RefactorError{
				Type:    SymbolNotFound,
				Message: "Symbol not found",
			},
			expected: "Symbol not found",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestRefactorError_Unwrap(t *testing.T) {
	cause := errors.New("original error")
	err := &RefactorError{Type: FileSystemError, Message: "File operation failed", Cause: cause}

	assert.Same(t, cause, err.Unwrap())
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), cause)
	assert.Nil(t, (&RefactorError{Type: ParseError}).Unwrap())
}

func TestErrorType_String(t *testing.T) {
	testCases := []struct {
		errType  ErrorType
		expected string
	}{
		{ParseError, "ParseError"},
		{SymbolNotFound, "SymbolNotFound"},
		{PreconditionFailed, "PreconditionFailed"},
		{InvariantViolation, "InvariantViolation"},
		{Cancelled, "Cancelled"},
		{ErrorType(99), "Unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.errType.String())
		})
	}
}

func TestInvariantAndCancelledClassification(t *testing.T) {
	inv := NewInvariantError("a.go", "edit %d overlaps", 3)
	assert.Equal(t, "a.go: edit 3 overlaps", inv.Error())
	assert.True(t, IsInvariantViolation(fmt.Errorf("rewrite: %w", inv)))
	assert.False(t, IsInvariantViolation(errors.New("plain")))

	assert.True(t, IsCancelled(fmt.Errorf("search: %w", ErrCancelled)))
	assert.True(t, IsCancelled(&RefactorError{Type: Cancelled}))
	assert.False(t, IsCancelled(inv))
}
