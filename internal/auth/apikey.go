// Package auth — API-key validation for non-browser clients.
package auth

import (
	"errors"
	"strings"
)

// APIKeyHeader is the request header carrying an API key.
const APIKeyHeader = "X-API-Key"

var (
	// ErrInvalidAPIKey means the presented key is not in the allow-set
	// (or no key was presented). A client failure — maps to 401.
	ErrInvalidAPIKey = errors.New("auth: invalid API key")

	// ErrNoKeysConfigured means the allow-set is empty and dev mode is
	// off. An operator failure — maps to 500, NOT 401, so a deployment
	// that forgot to configure keys fails loudly instead of looking like
	// a stream of bad clients.
	ErrNoKeysConfigured = errors.New("auth: no API keys configured")
)

// APIKeySet holds the configured API-key allow-set.
//
// DEV MODE ESCAPE HATCH:
// When the allow-set is empty AND devMode is true, any non-empty key is
// accepted. This is inherently unsafe if it leaks into production, so the
// server logs a loud warning at startup whenever dev mode is enabled —
// never enable it outside local development.
type APIKeySet struct {
	keys    map[string]struct{}
	devMode bool
}

// NewAPIKeySet builds an APIKeySet from a list of keys. Blank entries are
// dropped, so a trailing comma in the env var does no harm.
func NewAPIKeySet(keys []string, devMode bool) *APIKeySet {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			set[k] = struct{}{}
		}
	}
	return &APIKeySet{keys: set, devMode: devMode}
}

// ParseAPIKeys splits a comma-separated key list (the CHAT_API_KEYS env
// var format: "key1,key2,key3").
func ParseAPIKeys(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// Empty reports whether no keys are configured.
func (a *APIKeySet) Empty() bool {
	return len(a.keys) == 0
}

// DevMode reports whether the accept-any escape hatch is enabled.
func (a *APIKeySet) DevMode() bool {
	return a.devMode
}

// Check validates a presented API key against the allow-set.
//
// Returns nil when the key is accepted, ErrInvalidAPIKey when rejected,
// and ErrNoKeysConfigured when the server itself is misconfigured (empty
// allow-set outside dev mode) — callers must surface that case as a
// server error, not a client one.
func (a *APIKeySet) Check(key string) error {
	if key == "" {
		return ErrInvalidAPIKey
	}

	if a.Empty() {
		if a.devMode {
			return nil // dev mode: accept any key
		}
		return ErrNoKeysConfigured
	}

	if _, ok := a.keys[key]; !ok {
		return ErrInvalidAPIKey
	}
	return nil
}
