package orm

import (
	"errors"
	"fmt"

	"github.com/roach88/blazeorm/internal/meta"
)

// ErrorCode categorizes record manager errors.
type ErrorCode string

const (
	// CodeInvalidKey indicates a key that cannot identify a record.
	CodeInvalidKey ErrorCode = "INVALID_KEY"

	// CodeDuplicateKey indicates a live record already owns the key.
	CodeDuplicateKey ErrorCode = "DUPLICATE_KEY"

	// CodeInvalidState indicates an operation the record's state forbids.
	CodeInvalidState ErrorCode = "INVALID_STATE"

	// CodeRecursiveFlush indicates Flush was called while flushing.
	CodeRecursiveFlush ErrorCode = "RECURSIVE_FLUSH"

	// CodeModificationDuringSync indicates a mutation while the sync batch
	// is being written.
	CodeModificationDuringSync ErrorCode = "MODIFICATION_DURING_SYNC"

	// CodeUnmanagedRecord indicates a record the manager does not track.
	CodeUnmanagedRecord ErrorCode = "UNMANAGED_RECORD"

	// CodeUnsupportedOperation indicates a filter operator the field
	// cannot take.
	CodeUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"

	// CodeEmptyListenerStack indicates PopListener on an empty stack.
	CodeEmptyListenerStack ErrorCode = "EMPTY_LISTENER_STACK"

	// CodeNotFound indicates an unknown storage engine or record.
	CodeNotFound ErrorCode = "NOT_FOUND"
)

// Error is an error raised by the record manager or a storage engine.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Type is the record type involved, if any.
	Type string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: %s (type=%s)", e.Code, e.Message, e.Type)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrInvalidKey             = &Error{Code: CodeInvalidKey, Message: "invalid key"}
	ErrDuplicateKey           = &Error{Code: CodeDuplicateKey, Message: "duplicate key"}
	ErrInvalidState           = &Error{Code: CodeInvalidState, Message: "invalid record state"}
	ErrRecursiveFlush         = &Error{Code: CodeRecursiveFlush, Message: "recursive flush"}
	ErrModificationDuringSync = &Error{Code: CodeModificationDuringSync, Message: "modification during sync"}
	ErrUnmanagedRecord        = &Error{Code: CodeUnmanagedRecord, Message: "record is not managed"}
	ErrUnsupportedOperation   = &Error{Code: CodeUnsupportedOperation, Message: "unsupported operation"}
	ErrEmptyListenerStack     = &Error{Code: CodeEmptyListenerStack, Message: "listener stack is empty"}
	ErrNotFound               = &Error{Code: CodeNotFound, Message: "not found"}
)

// ErrUnsupportedType aliases meta.ErrUnsupportedType.
var ErrUnsupportedType = meta.ErrUnsupportedType

// NewError returns an *Error for typ with a formatted message.
func NewError(code ErrorCode, typ, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Type: typ}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsInvalidState returns true if the error is an invalid state error.
func IsInvalidState(err error) bool {
	return CodeOf(err) == CodeInvalidState
}

// IsDuplicateKey returns true if the error is a duplicate key error.
func IsDuplicateKey(err error) bool {
	return CodeOf(err) == CodeDuplicateKey
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}
