// Package service — authentication business logic.
//
// AuthService sits between the HTTP handlers and the repositories/
// credential engine:
//
//	AuthHandler (HTTP) → AuthService (business rules) → repositories (DB)
//	                   ↘ TokenService / RefreshService / PasswordService
//
// Every successful authentication — password registration, password
// login, OAuth completion, refresh rotation — converges on one private
// issueCredentials routine, so there is exactly one place where token
// pairs are minted.
//
// ENUMERATION RESISTANCE:
// The login and registration paths never reveal whether an email exists.
// Login returns one uniform message for a missing account, a
// passwordless (OAuth-only) account, a wrong password and a deactivated
// account; registration returns one generic conflict message for a
// duplicate email.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agenticbook/docschat/internal/apperror"
	"github.com/agenticbook/docschat/internal/auth"
	"github.com/agenticbook/docschat/internal/model"
	"github.com/agenticbook/docschat/internal/repository"
)

// Uniform client-facing messages. Shared across every failure cause of
// their endpoint — do not specialize them.
const (
	loginFailedMessage   = "Invalid email or password"
	registerConflictMsg  = "Registration failed. Please try again or sign in."
	refreshFailedMessage = "Invalid refresh token"
)

// AuthService handles the authentication business logic.
type AuthService struct {
	users     repository.UserRepository
	links     repository.OAuthLinkRepository
	sessions  repository.RefreshTokenRepository
	tokens    *auth.TokenService
	refresh   *auth.RefreshService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
// Call this in server.go when wiring the dependency graph.
func NewAuthService(
	users repository.UserRepository,
	links repository.OAuthLinkRepository,
	sessions repository.RefreshTokenRepository,
	tokens *auth.TokenService,
	refresh *auth.RefreshService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		links:     links,
		sessions:  sessions,
		tokens:    tokens,
		refresh:   refresh,
		passwords: passwords,
		logger:    logger,
	}
}

// Credentials bundles everything a successful authentication produces:
// the access token for the response body, the raw refresh token for the
// httpOnly cookie (with its expiry, so the cookie MaxAge matches the
// stored record), and the profile.
type Credentials struct {
	AccessToken   string
	RefreshToken  string
	RefreshExpiry time.Time
	User          *model.UserProfile
}

// Register creates a new password account and signs it in.
//
// A duplicate email comes back from the repository as a generic conflict
// — it is passed through unchanged so the HTTP layer can't tell (and
// can't leak) that the address was the problem.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*Credentials, error) {
	email, name, err := validateRegistration(email, password, name)
	if err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Conflict(registerConflictMsg)
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))

	return s.issueCredentials(ctx, user)
}

// Login authenticates an email/password pair.
//
// FOUR FAILURE CAUSES, ONE ANSWER:
// unknown email, OAuth-only account (no password set), wrong password,
// deactivated account — all return the identical Unauthenticated error.
// Any divergence here, including in the message text, would hand an
// attacker an account-enumeration oracle.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Credentials, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated(loginFailedMessage)
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if user.PasswordHash == "" {
		return nil, apperror.Unauthenticated(loginFailedMessage)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.Unauthenticated(loginFailedMessage)
	}

	if !user.IsActive {
		return nil, apperror.Unauthenticated(loginFailedMessage)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return s.issueCredentials(ctx, user)
}

// Logout revokes EVERY refresh token belonging to the user — all devices
// and sessions, not just the one making the call. The access token
// itself stays technically valid until expiry (it is stateless); without
// a refresh token the session cannot outlive those minutes.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("service/auth: revoking sessions for user %s: %w", userID, err)
	}

	s.logger.Info("user logged out", slog.String("userID", userID))
	return nil
}

// Refresh rotates a refresh token: the presented token is invalidated
// and a fresh access/refresh pair is issued.
//
// ROTATION ATOMICITY:
// The old record is removed with a compare-and-delete (DeleteByHash
// reports whether a row was deleted). If the same raw token is replayed
// concurrently, at most one caller observes the deletion and mints a new
// pair; all others fail Unauthenticated. A token is therefore spendable
// exactly once, even under retries.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (*Credentials, error) {
	// Opportunistic sweep of globally expired records. Best-effort: a
	// failing sweep must never fail the refresh itself.
	if _, err := s.sessions.DeleteExpired(ctx, time.Now()); err != nil {
		s.logger.Warn("expired-token sweep failed", slog.String("error", err.Error()))
	}

	if rawToken == "" {
		return nil, apperror.Unauthenticated(refreshFailedMessage)
	}

	tokenHash := auth.Fingerprint(rawToken)

	record, err := s.sessions.GetByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated(refreshFailedMessage)
		}
		return nil, fmt.Errorf("service/auth: looking up refresh token: %w", err)
	}

	if time.Now().After(record.ExpiresAt) {
		s.discardToken(ctx, tokenHash)
		return nil, apperror.Unauthenticated(refreshFailedMessage)
	}

	user, err := s.users.GetUserByID(ctx, record.UserID)
	if err != nil || !user.IsActive {
		s.discardToken(ctx, tokenHash)
		return nil, apperror.Unauthenticated(refreshFailedMessage)
	}

	// The rotation point. Losing the compare-and-delete means another
	// request already spent this token.
	deleted, err := s.sessions.DeleteByHash(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("service/auth: rotating refresh token: %w", err)
	}
	if !deleted {
		return nil, apperror.Unauthenticated(refreshFailedMessage)
	}

	return s.issueCredentials(ctx, user)
}

// Profile returns the public profile for a user, including the list of
// auth methods ("email" for a set password, plus linked providers).
func (s *AuthService) Profile(ctx context.Context, userID string) (*model.UserProfile, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("user", userID)
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}

	return s.buildProfile(ctx, user)
}

// CompleteOAuth resolves a provider identity to a local user and signs
// them in. Resolution order:
//
//  1. An existing (provider, subject) link → its owner signs in.
//  2. A local user with the provider's email → link the provider account
//     to that user (account merge by email).
//  3. Neither → create a new passwordless user and link it.
//
// The ProviderUser comes from the provider's userinfo endpoint fetched
// server-side — client-supplied identity claims never reach this method.
func (s *AuthService) CompleteOAuth(ctx context.Context, pu *auth.ProviderUser) (*Credentials, error) {
	if pu == nil || pu.Subject == "" {
		return nil, apperror.Upstream("user_creation_failed")
	}

	var user *model.User

	link, err := s.links.GetLinkByProviderSubject(ctx, pu.Provider, pu.Subject)
	switch {
	case err == nil:
		// Already linked — sign in the owner.
		user, err = s.users.GetUserByID(ctx, link.UserID)
		if err != nil {
			return nil, apperror.Upstream("user_creation_failed")
		}

	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.resolveOAuthUser(ctx, pu)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("service/auth: looking up oauth link: %w", err)
	}

	s.logger.Info("user authenticated via provider",
		slog.String("userID", user.ID),
		slog.String("provider", pu.Provider),
	)

	return s.issueCredentials(ctx, user)
}

// resolveOAuthUser handles the not-yet-linked cases: merge by email or
// create a fresh passwordless account, linking the provider either way.
func (s *AuthService) resolveOAuthUser(ctx context.Context, pu *auth.ProviderUser) (*model.User, error) {
	if pu.Email == "" {
		// Without an email we can neither merge nor create a unique
		// account.
		return nil, apperror.Upstream("user_creation_failed")
	}

	user, err := s.users.GetUserByEmail(ctx, pu.Email)
	switch {
	case err == nil:
		// Merge: same mailbox, new provider.

	case errors.Is(err, apperror.ErrNotFound):
		user = &model.User{
			Email: pu.Email,
			Name:  pu.Name,
			// No password hash — this account can only sign in via the
			// provider until the user sets one.
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return nil, apperror.Upstream("user_creation_failed")
		}

	default:
		return nil, fmt.Errorf("service/auth: looking up user by email: %w", err)
	}

	if err := s.links.CreateLink(ctx, &model.OAuthLink{
		UserID:         user.ID,
		Provider:       pu.Provider,
		ProviderUserID: pu.Subject,
		Email:          pu.Email,
	}); err != nil {
		return nil, apperror.Upstream("user_creation_failed")
	}

	return user, nil
}

// issueCredentials mints the access/refresh pair for an authenticated
// user and persists the refresh fingerprint. The single convergence
// point for register, login, OAuth and refresh.
func (s *AuthService) issueCredentials(ctx context.Context, user *model.User) (*Credentials, error) {
	access, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating access token: %w", err)
	}

	rawRefresh, expiresAt, err := s.refresh.Generate()
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating refresh token: %w", err)
	}

	if err := s.sessions.CreateRefreshToken(ctx, &model.RefreshToken{
		TokenHash: auth.Fingerprint(rawRefresh),
		UserID:    user.ID,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, fmt.Errorf("service/auth: storing refresh token: %w", err)
	}

	profile, err := s.buildProfile(ctx, user)
	if err != nil {
		return nil, err
	}

	return &Credentials{
		AccessToken:   access,
		RefreshToken:  rawRefresh,
		RefreshExpiry: expiresAt,
		User:          profile,
	}, nil
}

// discardToken removes a stale refresh record. Best-effort cleanup — the
// caller is already failing the request, so an error here is only logged.
func (s *AuthService) discardToken(ctx context.Context, tokenHash string) {
	if _, err := s.sessions.DeleteByHash(ctx, tokenHash); err != nil {
		s.logger.Warn("failed to discard stale refresh token", slog.String("error", err.Error()))
	}
}

// buildProfile assembles the public profile with its auth_methods list.
func (s *AuthService) buildProfile(ctx context.Context, user *model.User) (*model.UserProfile, error) {
	methods := []string{}
	if user.PasswordHash != "" {
		methods = append(methods, "email")
	}

	providers, err := s.links.ProvidersForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: listing providers for user %s: %w", user.ID, err)
	}
	methods = append(methods, providers...)

	return &model.UserProfile{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		AuthMethods: methods,
		CreatedAt:   user.CreatedAt,
	}, nil
}
