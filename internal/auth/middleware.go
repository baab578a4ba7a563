package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package.
// A package-private key type means only this package can read or write
// principals in the context — no collisions with other packages.
type contextKey string

const principalKey contextKey = "principal"

// Principal is the resolved identity attached to an authenticated request.
//
// Exactly one of the two shapes occurs:
//   - a user principal: UserID and Email set (bearer token verified)
//   - a client principal: APIKey set, UserID empty (API-key fallback)
type Principal struct {
	UserID string
	Email  string
	APIKey string
}

// IsUser reports whether the principal is a verified user (as opposed to
// an anonymous API-key client).
func (p Principal) IsUser() bool {
	return p.UserID != ""
}

// RequireUser is the strict resolution policy: a valid Bearer access
// token or nothing.
//
// Used by the user-identity endpoints (/api/auth/me, /api/auth/logout)
// where an API key must NOT be accepted — an API key identifies a client
// application, not a person. The two policies are separate middlewares
// rather than one function with a flag so route declarations state their
// authorization intent explicitly.
func RequireUser(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := bearerIdentity(r, tokens)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := withPrincipal(r.Context(), Principal{UserID: id.UserID, Email: id.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireClient is the permissive resolution policy: a valid Bearer
// access token, else a configured API key, else 401.
//
// Policy order matters: the bearer token is tried first so a logged-in
// user keeps their identity even if their client also sends an API key.
// An empty allow-set outside dev mode is an operator error and maps to
// 500 — fail closed, and distinguishably from a client auth failure.
func RequireClient(tokens *TokenService, keys *APIKeySet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, err := bearerIdentity(r, tokens); err == nil {
				ctx := withPrincipal(r.Context(), Principal{UserID: id.UserID, Email: id.Email})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			apiKey := r.Header.Get(APIKeyHeader)
			switch err := keys.Check(apiKey); {
			case err == nil:
				ctx := withPrincipal(r.Context(), Principal{APIKey: apiKey})
				next.ServeHTTP(w, r.WithContext(ctx))
			case errors.Is(err, ErrNoKeysConfigured):
				misconfigured(w)
			default:
				unauthorized(w)
			}
		})
	}
}

// PrincipalFromContext retrieves the authenticated principal set by
// RequireUser or RequireClient. Returns (zero, false) on routes where
// neither middleware ran.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// bearerIdentity extracts and validates the Authorization: Bearer token.
func bearerIdentity(r *http.Request, tokens *TokenService) (Identity, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return Identity{}, ErrInvalidToken
	}
	return tokens.Validate(header[len(prefix):])
}

// unauthorized writes the uniform 401 body. One message for every cause —
// missing header, expired token, bad signature, wrong token kind.
func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthenticated","message":"valid authentication required"}`))
}

// misconfigured writes the operator-facing 500 for an empty allow-set.
func misconfigured(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`{"error":"misconfigured","message":"server authentication not configured"}`))
}
