package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the domain error type every layer speaks. Code identifies
// the failure class for clients, Status picks the HTTP response code,
// and Err optionally carries the underlying cause for logs.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches by code so clones compare equal to their base error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e != nil && e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Shared failure classes. Domain-specific codes follow below.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "resource already exists")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

var (
	// ErrReservationConflict signals an approved booking already occupies
	// the requested interval on the resource.
	ErrReservationConflict = New("RESERVATION_CONFLICT", http.StatusConflict, "resource already reserved for this period")
	// ErrInvalidState signals a status transition the reservation state machine forbids.
	ErrInvalidState = New("INVALID_STATE", http.StatusConflict, "operation not allowed in current status")

	ErrAlreadyMember = New("ALREADY_MEMBER", http.StatusConflict, "user is already a member of this chat")
	ErrNotMember     = New("NOT_MEMBER", http.StatusBadRequest, "user is not a member of this chat")
)

// FromError normalises any error into an *Error. Unknown errors become
// internal errors so their details never leak to clients.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone copies a base error, optionally overriding its message. The
// copy still matches the base under errors.Is.
func Clone(base *Error, message string) *Error {
	if base == nil {
		return nil
	}
	dup := *base
	if message != "" {
		dup.Message = message
	}
	return &dup
}
