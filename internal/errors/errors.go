package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a promptkeep error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrOutOfRange        ErrorCode = "OUT_OF_RANGE"       // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"          // 404
	ErrFileNotFound      ErrorCode = "FILE_NOT_FOUND"     // 404
	ErrUndoEmpty         ErrorCode = "UNDO_EMPTY"         // 409
	ErrConflict          ErrorCode = "CONFLICT"           // 409
	ErrFileTooLarge      ErrorCode = "FILE_TOO_LARGE"     // 413
	ErrInvalidReference  ErrorCode = "INVALID_REFERENCE"  // 422
	ErrCancelled         ErrorCode = "CANCELLED"          // 499
	ErrInternal          ErrorCode = "INTERNAL"           // 500
	ErrPersistenceFailed ErrorCode = "PERSISTENCE_FAILED" // 503
)

// PromptError represents a structured error with code, status, and details.
type PromptError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *PromptError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *PromptError {
	return &PromptError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewOutOfRange creates a 400 error for an index outside [0, length).
func NewOutOfRange(what string, index, length int) *PromptError {
	return &PromptError{
		Code:    ErrOutOfRange,
		Status:  400,
		Message: fmt.Sprintf("%s index %d out of range (length %d)", what, index, length),
		Details: map[string]any{"index": index, "length": length},
	}
}

// NewNotFound creates a 404 error for a prompt or category that does not exist.
func NewNotFound(kind, id string) *PromptError {
	return &PromptError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *PromptError {
	return &PromptError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewUndoEmpty creates a 409 error when there is no deleted prompt to restore.
func NewUndoEmpty() *PromptError {
	return &PromptError{
		Code:    ErrUndoEmpty,
		Status:  409,
		Message: "no recently deleted prompt to restore",
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *PromptError {
	return &PromptError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewFileTooLarge creates a 413 error when an import file exceeds the size limit.
func NewFileTooLarge(max, actual int64) *PromptError {
	return &PromptError{
		Code:    ErrFileTooLarge,
		Status:  413,
		Message: fmt.Sprintf("file exceeds maximum size: %d bytes (max %d)", actual, max),
		Details: map[string]any{"max_bytes": max, "actual_bytes": actual},
	}
}

// NewInvalidReference creates a 422 error when a prompt points at a category that does not exist.
func NewInvalidReference(categoryID string) *PromptError {
	return &PromptError{
		Code:    ErrInvalidReference,
		Status:  422,
		Message: fmt.Sprintf("unknown category: %s", categoryID),
		Details: map[string]any{"category_id": categoryID},
	}
}

// NewCancelled creates a 499 error when the caller's context ends mid-operation.
func NewCancelled(op string) *PromptError {
	return &PromptError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
		Details: map[string]any{"operation": op},
	}
}

// NewPersistenceFailed creates a 503 error when the durable store rejects a write.
// The in-memory state has already been rolled back by the time callers see it.
func NewPersistenceFailed(op string, err error) *PromptError {
	details := map[string]any{"operation": op}
	if err != nil {
		details["cause"] = err.Error()
	}
	return &PromptError{
		Code:    ErrPersistenceFailed,
		Status:  503,
		Message: fmt.Sprintf("failed to persist %s", op),
		Details: details,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The original error is kept in Details for logging, never in Message.
func NewInternal(err error) *PromptError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &PromptError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error is (or wraps) a PromptError with the given code.
func Is(err error, code ErrorCode) bool {
	var pErr *PromptError
	if stderrors.As(err, &pErr) {
		return pErr.Code == code
	}
	return false
}

// As extracts the PromptError from err, if any.
func As(err error) (*PromptError, bool) {
	var pErr *PromptError
	if stderrors.As(err, &pErr) {
		return pErr, true
	}
	return nil, false
}
