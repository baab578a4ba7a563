// Package auth provides the credential engine: JWT access tokens, bcrypt
// password hashing, refresh-token generation, API-key checks and the HTTP
// middleware that resolves a request to a Principal.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. User registers or logs in (password), or completes the Google OAuth
//     flow — all three converge on one token-issuance routine.
//  2. The server returns a short-lived JWT access token in the response
//     body and a long-lived random refresh token in an httpOnly cookie.
//  3. API calls carry the access token as a Bearer header; middleware
//     validates it with no DB lookup — the signature is the proof.
//  4. When the access token expires, POST /api/auth/refresh rotates the
//     refresh token and mints a new pair. The old refresh token dies with
//     the rotation — replaying it fails.
//
// TOKEN-KIND CONFUSION:
// Access tokens embed a "typ":"access" claim. Validation rejects any token
// without it, so a refresh-shaped or otherwise foreign token can never be
// used where an access token is expected — the check is in the verifier,
// not a convention.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTypeAccess tags access tokens; Validate rejects anything else.
const tokenTypeAccess = "access"

// DefaultAccessTTL is the access-token lifetime when none is configured.
const DefaultAccessTTL = 15 * time.Minute

// ErrInvalidToken is returned for every access-token validation failure —
// expired, tampered, wrong type, wrong issuer. Collapsing them into one
// error avoids an oracle that would let callers distinguish "expired"
// from "forged".
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens. The same
// secret must be used for both operations — keep it safe, rotate it
// periodically in production.
type TokenService struct {
	secret    []byte
	accessTTL time.Duration
}

// NewTokenService creates a TokenService with the given secret and access
// token lifetime (DefaultAccessTTL when ttl is zero).
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	return &TokenService{secret: []byte(secret), accessTTL: ttl}, nil
}

// claims is the JWT payload. It embeds jwt.RegisteredClaims (Subject,
// ExpiresAt, IssuedAt, Issuer) and adds the user's email plus the token
// type tag.
type claims struct {
	Email     string `json:"email"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Generate creates and signs a new JWT access token for the given user.
//
// Signing algorithm: HS256 (HMAC-SHA256) — symmetric, fast, fine for a
// single-server deployment sharing one secret.
func (s *TokenService) Generate(userID, email string) (string, error) {
	return s.generateWithDuration(userID, email, s.accessTTL)
}

// generateWithDuration creates a token with a custom expiry. Used by
// Generate and by tests that need an already-expired token.
func (s *TokenService) generateWithDuration(userID, email string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		Email:     email,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    "docschat",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Identity is what a valid access token proves: who the caller is.
type Identity struct {
	UserID string
	Email  string
}

// Validate parses and verifies a JWT string and returns the identity it
// encodes.
//
// VALIDATION CHECKS:
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired
//   - Issuer matches "docschat" (prevents tokens from other apps)
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
//   - Type tag is "access" (prevents token-kind confusion)
//
// Every failure returns ErrInvalidToken — callers must not leak which
// check failed.
func (s *TokenService) Validate(tokenStr string) (Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer("docschat"),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	if c.TokenType != tokenTypeAccess || c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: c.Subject, Email: c.Email}, nil
}
