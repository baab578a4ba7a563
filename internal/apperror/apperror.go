// Package apperror defines the application error taxonomy.
//
// Services return errors wrapping one of the sentinel values below; the
// HTTP boundary (handler/response.go) maps each sentinel to a fixed status
// code and a message. Auth failures deliberately carry NO detail about why
// they failed — "expired token", "unknown email" and "wrong password" all
// surface identically to the caller.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstream        = errors.New("upstream failure")
	ErrMisconfigured   = errors.New("server misconfigured")
)

type AppError struct {
	Err     error  // sentinel classifying the error
	Message string // Human-readable error message (safe to return to clients)
	Field   string // Optional: field causing a validation error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict returns a 409-class error. The message must stay generic when
// the conflict could reveal account existence (duplicate registration).
func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Unauthenticated returns a 401-class error with a uniform message.
// Callers must pass the SAME message for every failure cause within one
// endpoint so the causes are indistinguishable to the client.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// Upstream classifies an identity-provider network or response failure.
// reason is a short machine-readable code (e.g. "token_exchange_failed")
// — never the provider's raw error text.
func Upstream(reason string) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: reason,
	}
}

// Misconfigured flags an operator error (missing signing key, empty API
// key allow-list outside dev mode). Maps to 500, distinct from client
// auth failures.
func Misconfigured(message string) *AppError {
	return &AppError{
		Err:     ErrMisconfigured,
		Message: message,
	}
}
