package httputil

import (
	"errors"
	"fmt"
	"net/http"
)

// Session token failures, returned by the token services.
var (
	ErrTokenInvalid = errors.New("session token is malformed")
	ErrTokenExpired = errors.New("session token has expired")
)

// Error is a failure with an explicit HTTP status. Handlers and services
// return it for conditions whose status and message should reach the
// client unchanged.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewError builds a pass-through error with the given message and status.
func NewError(message string, status int) *Error {
	return &Error{Status: status, Message: message}
}

// InvalidIDError reports a malformed identifier for the named field.
type InvalidIDError struct {
	Field string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid %s", e.Field)
}

// DuplicateKeyError reports a unique-constraint violation on the named field.
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate %s", e.Field)
}

// Normalize rewrites a failure into the (status, message) pair the client
// sees. Rules apply in priority order, first match wins; anything
// unrecognized falls through to a plain 500.
func Normalize(err error) (int, string) {
	var invalidID *InvalidIDError
	if errors.As(err, &invalidID) {
		return http.StatusBadRequest, fmt.Sprintf("Resource not found. Invalid: %s", invalidID.Field)
	}

	var duplicate *DuplicateKeyError
	if errors.As(err, &duplicate) {
		return http.StatusBadRequest, fmt.Sprintf("Duplicate %s Entered", duplicate.Field)
	}

	if errors.Is(err, ErrTokenInvalid) {
		return http.StatusBadRequest, "Token is invalid, try again"
	}

	if errors.Is(err, ErrTokenExpired) {
		return http.StatusBadRequest, "Token is expired, try again"
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Message
	}

	return http.StatusInternalServerError, "Internal Server Error"
}
