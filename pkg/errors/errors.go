package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so cloned errors still match their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if e == nil || !ok || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Generic errors shared by every surface.
var (
	ErrNotFound             = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden            = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized         = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict             = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation           = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal             = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrConfigurationMissing = New("CONFIGURATION_MISSING", http.StatusInternalServerError, "term configuration missing")
)

// Enrollment business errors. All of them are expected outcomes a caller can render.
var (
	ErrAlreadyEnrolled        = New("ALREADY_ENROLLED", http.StatusConflict, "student already enrolled in section for term")
	ErrCapacityExceeded       = New("CAPACITY_EXCEEDED", http.StatusConflict, "section has no seats available")
	ErrEnrollmentWindowClosed = New("ENROLLMENT_WINDOW_CLOSED", http.StatusForbidden, "enrollment is closed")
	ErrLevelMismatch          = New("LEVEL_MISMATCH", http.StatusUnprocessableEntity, "student level does not match section level")
	ErrSectionInactiveOrEnded = New("SECTION_INACTIVE_OR_ENDED", http.StatusUnprocessableEntity, "section is inactive or has ended")
	ErrInvalidGrade           = New("INVALID_GRADE", http.StatusBadRequest, "grade must be between 0 and 20")
	ErrSectionAlreadyEnded    = New("SECTION_ALREADY_ENDED", http.StatusConflict, "cannot withdraw from a section that has ended")
	ErrRolloverInProgress     = New("ROLLOVER_IN_PROGRESS", http.StatusConflict, "term rollover already running")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Internal wraps an unexpected failure with a caller-facing message.
func Internal(err error, message string) *Error {
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, message)
}
