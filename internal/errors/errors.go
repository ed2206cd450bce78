package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Tessera error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrConflict       ErrorCode = "CONFLICT"        // 409 (stale entry version)
	ErrNotLoaded      ErrorCode = "NOT_LOADED"      // 409
	ErrLoadFailed     ErrorCode = "LOAD_FAILED"     // 502
	ErrSaveFailed     ErrorCode = "SAVE_FAILED"     // 502
	ErrFetchFailed    ErrorCode = "FETCH_FAILED"    // 502
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// TesseraError represents a structured error with code, status, and details.
type TesseraError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *TesseraError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *TesseraError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *TesseraError {
	return &TesseraError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error. kind names what was looked up ("entry", "landing page").
func NewNotFound(kind, identifier string) *TesseraError {
	return &TesseraError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewConflict creates a 409 error for stale-version writes.
func NewConflict(id string, version int) *TesseraError {
	return &TesseraError{
		Code:    ErrConflict,
		Status:  409,
		Message: fmt.Sprintf("entry %s was modified since version %d", id, version),
		Details: map[string]any{"entry_id": id, "version": version},
	}
}

// NewNotLoaded creates a 409 error when an editing session has no baseline yet.
func NewNotLoaded(entryID string) *TesseraError {
	return &TesseraError{
		Code:    ErrNotLoaded,
		Status:  409,
		Message: fmt.Sprintf("layout for entry %s is not loaded", entryID),
		Details: map[string]any{"entry_id": entryID},
	}
}

// NewLoadFailed creates a 502 error when an entry or its layout field cannot be read.
func NewLoadFailed(entryID string, err error) *TesseraError {
	return &TesseraError{
		Code:    ErrLoadFailed,
		Status:  502,
		Message: fmt.Sprintf("failed to load entry %s", entryID),
		Details: map[string]any{"entry_id": entryID},
		Err:     err,
	}
}

// NewSaveFailed creates a 502 error when a layout write is rejected.
func NewSaveFailed(entryID string, err error) *TesseraError {
	return &TesseraError{
		Code:    ErrSaveFailed,
		Status:  502,
		Message: fmt.Sprintf("failed to save layout for entry %s", entryID),
		Details: map[string]any{"entry_id": entryID},
		Err:     err,
	}
}

// NewFetchFailed creates a 502 error for any content query or transport failure.
func NewFetchFailed(err error) *TesseraError {
	msg := "content fetch failed"
	if err != nil {
		msg = fmt.Sprintf("content fetch failed: %v", err)
	}
	return &TesseraError{
		Code:    ErrFetchFailed,
		Status:  502,
		Message: msg,
		Err:     err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging.
func NewInternal(err error) *TesseraError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &TesseraError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		Err:     err,
	}
}

// Is checks if err is, or wraps, a TesseraError with the given code.
func Is(err error, code ErrorCode) bool {
	var tErr *TesseraError
	if stderrors.As(err, &tErr) {
		return tErr.Code == code
	}
	return false
}

// As returns the TesseraError in err's chain, or nil.
func As(err error) *TesseraError {
	var tErr *TesseraError
	if stderrors.As(err, &tErr) {
		return tErr
	}
	return nil
}
