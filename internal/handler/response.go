package handler

// RESPONSE HELPERS:
// writeJSON and writeError standardise how handlers emit responses.
// Every error body has the same shape:
//
//	{"error": "unauthenticated", "message": "Invalid email or password"}
//
// so the frontend always knows what fields to expect. writeError is the
// single place where the apperror taxonomy becomes HTTP status codes —
// services never know about HTTP.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/agenticbook/docschat/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g. "unauthenticated")
	Message string `json:"message"` // Human-readable description (already vetted as safe)
}

// writeJSON sends a JSON response with the given status code. Headers
// must be set before the body is written — hence the fixed order here.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; logging is all that's left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status code and sends it.
//
// The mapping is deliberately total over the apperror taxonomy:
//
//	validation      → 400   (detail safe to return)
//	unauthenticated → 401   (uniform message, no cause detail)
//	forbidden       → 403
//	not found       → 404
//	conflict        → 409   (generic message — resists enumeration)
//	rate limited    → 429
//	upstream        → 502   (reason code only, no provider error text)
//	misconfigured   → 500   (operator-facing)
//
// Anything that doesn't carry an *AppError is an internal error and is
// never echoed to the client — raw messages can contain SQL or paths.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthenticated):
			status = http.StatusUnauthorized
			errorType = "unauthenticated"
			w.Header().Set("WWW-Authenticate", "Bearer")
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		case errors.Is(err, apperror.ErrRateLimited):
			status = http.StatusTooManyRequests
			errorType = "rate_limited"
		case errors.Is(err, apperror.ErrUpstream):
			status = http.StatusBadGateway
			errorType = "upstream_error"
		case errors.Is(err, apperror.ErrMisconfigured):
			status = http.StatusInternalServerError
			errorType = "misconfigured"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
