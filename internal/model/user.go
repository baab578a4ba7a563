// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Users arrive through two doors: email/password registration and Google
// OAuth. An OAuth-only user has no password — PasswordHash is empty and a
// password login for them must fail with the same generic message as a
// wrong password (enumeration resistance).
//
// WHY IsActive INSTEAD OF DELETING ROWS?
// Accounts are never physically deleted. Deactivating keeps chat history
// and OAuth links referentially intact, and a deactivated account behaves
// exactly like a nonexistent one at the login boundary.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Email        string    `json:"email"     db:"email"` // stored lowercased, unique
	Name         string    `json:"name"      db:"name"`
	PasswordHash string    `json:"-"         db:"password_hash"` // empty for OAuth-only users; never serialized
	IsActive     bool      `json:"-"         db:"is_active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// OAuthLink associates a User with one external identity-provider account.
//
// The (Provider, ProviderUserID) pair is UNIQUE — one Google account can
// only ever be linked to one local user. A user may hold links to several
// providers at once.
type OAuthLink struct {
	ID             string    `json:"id"             db:"id"`
	UserID         string    `json:"userId"         db:"user_id"`
	Provider       string    `json:"provider"       db:"provider"`         // e.g. "google"
	ProviderUserID string    `json:"providerUserId" db:"provider_user_id"` // provider-assigned subject id
	Email          string    `json:"email"          db:"email"`            // email reported by the provider (may differ from User.Email)
	CreatedAt      time.Time `json:"createdAt"      db:"created_at"`
}

// RefreshToken is the server-side record of an issued refresh token.
//
// SECURITY INVARIANT:
// Only the SHA-256 fingerprint of the token is stored. The raw value
// exists transiently — at generation time and inside the httpOnly cookie —
// and is never written to any durable store. A database leak therefore
// yields nothing usable for session hijacking.
//
// One user may have many live rows (one per device/session). Rotation
// deletes the old row as it inserts the new one; logout deletes them all.
type RefreshToken struct {
	TokenHash string    `json:"-" db:"token_hash"` // hex SHA-256 of the raw token, primary key
	UserID    string    `json:"-" db:"user_id"`
	ExpiresAt time.Time `json:"-" db:"expires_at"`
	CreatedAt time.Time `json:"-" db:"created_at"`
}

// UserProfile is the public view of a user returned by /api/auth/me and
// embedded in auth responses.
//
// AuthMethods lists how the account can sign in: "email" when a password
// is set, plus the name of every linked OAuth provider.
type UserProfile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	AuthMethods []string  `json:"auth_methods"`
	CreatedAt   time.Time `json:"created_at"`
}
