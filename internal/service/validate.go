package service

import (
	"regexp"
	"strings"

	"github.com/agenticbook/docschat/internal/apperror"
)

// Registration input limits. Validation errors are safe to return in
// full — they describe the caller's own input, not account state.
const (
	maxEmailLength    = 255
	minPasswordLength = 8
	maxPasswordLength = 128
	maxNameLength     = 255

	// bcrypt only reads the first 72 bytes of its input. Anything longer
	// is rejected here so the caller gets a 400 with a clear message
	// instead of a failure deep in the hashing layer.
	maxPasswordBytes = 72
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	hasLetter    = regexp.MustCompile(`[a-zA-Z]`)
	hasDigit     = regexp.MustCompile(`[0-9]`)
)

// validateRegistration checks and normalizes registration input.
// Returns the trimmed, lowercased email and the trimmed name.
func validateRegistration(email, password, name string) (string, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return "", "", apperror.ValidationFailed("email", "Invalid email format")
	}
	if len(email) > maxEmailLength {
		return "", "", apperror.ValidationFailed("email", "Email must be 255 characters or fewer")
	}

	if len(password) < minPasswordLength {
		return "", "", apperror.ValidationFailed("password", "Password must be at least 8 characters")
	}
	if len(password) > maxPasswordLength {
		return "", "", apperror.ValidationFailed("password", "Password must be 128 characters or fewer")
	}
	if len(password) > maxPasswordBytes {
		return "", "", apperror.ValidationFailed("password", "Password must be 72 bytes or fewer")
	}
	if !hasLetter.MatchString(password) {
		return "", "", apperror.ValidationFailed("password", "Password must contain at least one letter")
	}
	if !hasDigit.MatchString(password) {
		return "", "", apperror.ValidationFailed("password", "Password must contain at least one number")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", apperror.ValidationFailed("name", "Name is required")
	}
	if len(name) > maxNameLength {
		return "", "", apperror.ValidationFailed("name", "Name must be 255 characters or fewer")
	}

	return email, name, nil
}
