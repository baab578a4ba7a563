// Package auth — refresh-token generation and fingerprinting.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// refreshTokenBytes is how much randomness goes into a refresh token.
// 48 bytes ≈ 384 bits — far beyond brute-force reach, and the URL-safe
// base64 encoding keeps it cookie-friendly.
const refreshTokenBytes = 48

// DefaultRefreshTTL is the refresh-token lifetime when none is configured.
const DefaultRefreshTTL = 7 * 24 * time.Hour

// RefreshService generates refresh tokens and computes their storage
// fingerprints.
//
// UNLIKE ACCESS TOKENS, refresh tokens are not signed — they are opaque
// random values whose validity lives server-side. The store never holds
// the raw value, only its SHA-256 fingerprint; the raw token exists only
// at generation time and inside the httpOnly cookie.
type RefreshService struct {
	ttl time.Duration
}

// NewRefreshService creates a RefreshService with the given token
// lifetime (DefaultRefreshTTL when ttl is zero).
func NewRefreshService(ttl time.Duration) *RefreshService {
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	return &RefreshService{ttl: ttl}
}

// TTL returns the configured refresh-token lifetime. The cookie MaxAge
// must match it so the browser drops the cookie when the record expires.
func (s *RefreshService) TTL() time.Duration {
	return s.ttl
}

// Generate produces a new raw refresh token and its expiry timestamp.
// This is the only place raw refresh material is created.
func (s *RefreshService) Generate() (string, time.Time, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("auth: generating refresh token: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, time.Now().Add(s.ttl), nil
}

// Fingerprint returns the hex SHA-256 digest of a raw refresh token.
//
// WHY A FAST HASH AND NOT BCRYPT?
// bcrypt exists to slow down guessing of low-entropy secrets (passwords).
// Refresh tokens carry 384 bits of randomness — guessing is already
// hopeless — and the fingerprint doubles as the storage lookup key, so it
// must be deterministic. SHA-256 gives both.
func Fingerprint(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
