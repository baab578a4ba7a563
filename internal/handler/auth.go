package handler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/agenticbook/docschat/internal/apperror"
	"github.com/agenticbook/docschat/internal/auth"
	"github.com/agenticbook/docschat/internal/model"
	"github.com/agenticbook/docschat/internal/service"
)

// Cookie names. Both are httpOnly and path-scoped to the auth routes so
// they never ride along on ordinary API calls.
const (
	refreshCookieName = "refresh_token"
	stateCookieName   = "oauth_state"
	authCookiePath    = "/api/auth"
)

// stateCookieMaxAge bounds the OAuth handshake: long enough to pick an
// account on the consent screen, short enough to limit CSRF-state reuse.
const stateCookieMaxAge = 600 // 10 minutes

// exchangeTimeout caps the server-to-server leg of the OAuth callback. A
// hung provider surfaces as a redirect with token_exchange_failed rather
// than an indefinitely pending request.
const exchangeTimeout = 10 * time.Second

// OAuthProvider is the identity-provider bridge the handler drives. The
// concrete implementation is auth.GoogleProvider; tests substitute fakes.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.ProviderUser, error)
}

// AuthHandler exposes the authentication HTTP surface:
//
//	POST /api/auth/register         → HandleRegister
//	POST /api/auth/login            → HandleLogin
//	POST /api/auth/logout           → HandleLogout   (RequireUser)
//	GET  /api/auth/me               → HandleMe       (RequireUser)
//	GET  /api/auth/google           → HandleOAuthStart
//	GET  /api/auth/google/callback  → HandleOAuthCallback
//	POST /api/auth/refresh          → HandleRefresh
type AuthHandler struct {
	svc         *service.AuthService
	provider    OAuthProvider // nil when Google OAuth is not configured
	frontendURL string
	secure      bool // Secure flag on cookies; false only in dev mode
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. provider may be nil — the OAuth
// endpoints then answer 500 misconfigured instead of panicking.
func NewAuthHandler(
	svc *service.AuthService,
	provider OAuthProvider,
	frontendURL string,
	secure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		svc:         svc,
		provider:    provider,
		frontendURL: frontendURL,
		secure:      secure,
		logger:      logger,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register, login and the OAuth callback's
// JSON siblings: the access token plus the signed-in user's profile. The
// refresh token is NOT in the body — it travels only in the httpOnly
// cookie, out of reach of page JavaScript.
type AuthResponse struct {
	AccessToken string             `json:"access_token"`
	TokenType   string             `json:"token_type"`
	User        *model.UserProfile `json:"user"`
}

// RefreshResponse carries the rotated access token.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// HandleRegister creates a new password account.
//
// HTTP: POST /api/auth/register → 201
// Rate limited per client IP by the router.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid JSON body"})
		return
	}

	creds, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setRefreshCookie(w, creds.RefreshToken, creds.RefreshExpiry)
	writeJSON(w, http.StatusCreated, AuthResponse{
		AccessToken: creds.AccessToken,
		TokenType:   "bearer",
		User:        creds.User,
	})
}

// HandleLogin authenticates an email/password pair.
//
// HTTP: POST /api/auth/login
// Every failure cause produces the same 401 — see service.Login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid JSON body"})
		return
	}

	creds, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setRefreshCookie(w, creds.RefreshToken, creds.RefreshExpiry)
	writeJSON(w, http.StatusOK, AuthResponse{
		AccessToken: creds.AccessToken,
		TokenType:   "bearer",
		User:        creds.User,
	})
}

// HandleLogout revokes every session of the calling user and clears the
// refresh cookie.
//
// HTTP: POST /api/auth/logout
// Auth: RequireUser (bearer only — an API key cannot log anyone out)
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || !principal.IsUser() {
		// Unreachable behind RequireUser, but fail closed anyway.
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "valid authentication required"})
		return
	}

	if err := h.svc.Logout(r.Context(), principal.UserID); err != nil {
		writeError(w, err)
		return
	}

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// HandleMe returns the calling user's profile with linked auth methods.
//
// HTTP: GET /api/auth/me
// Auth: RequireUser
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || !principal.IsUser() {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "valid authentication required"})
		return
	}

	profile, err := h.svc.Profile(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// HandleRefresh rotates the refresh token from the httpOnly cookie.
//
// HTTP: POST /api/auth/refresh
//
// When the token is rejected, the presented cookie is cleared: the token
// behind it is gone (expired, rotated or revoked) and keeping the cookie
// around only produces more failing calls. Transient storage failures
// leave the cookie in place — the token may still be good.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var rawToken string
	if c, err := r.Cookie(refreshCookieName); err == nil {
		rawToken = c.Value
	}

	creds, err := h.svc.Refresh(r.Context(), rawToken)
	if err != nil {
		// Clear the cookie only when the token itself was rejected. A
		// transient storage failure says nothing about the token — the
		// browser should retry with it, not lose the session.
		if rawToken != "" && errors.Is(err, apperror.ErrUnauthenticated) {
			h.clearRefreshCookie(w)
		}
		writeError(w, err)
		return
	}

	h.setRefreshCookie(w, creds.RefreshToken, creds.RefreshExpiry)
	writeJSON(w, http.StatusOK, RefreshResponse{
		AccessToken: creds.AccessToken,
		TokenType:   "bearer",
	})
}

// HandleOAuthStart begins the Google OAuth flow.
//
// HTTP: GET /api/auth/google → {"authorization_url": "..."}
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived httpOnly cookie before the
// browser navigates to Google. The callback only proceeds when Google
// echoes the exact same value back — proving the flow started here.
func (h *AuthHandler) HandleOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "misconfigured", Message: "Google OAuth not configured"})
		return
	}

	state, err := newOAuthState()
	if err != nil {
		h.logger.Error("generating oauth state", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "An internal error occurred"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     authCookiePath,
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"authorization_url": h.provider.AuthURL(state),
	})
}

// HandleOAuthCallback completes the Google OAuth flow.
//
// HTTP: GET /api/auth/google/callback?code=xxx&state=yyy
//
// Every failure redirects to the frontend with a short reason code —
// never a raw provider error, and never a JSON error page the user would
// be stranded on mid-navigation.
func (h *AuthHandler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		h.redirectError(w, r, "misconfigured")
		return
	}

	// Provider-reported error (user denied the consent screen, etc.).
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("oauth callback: provider error", slog.String("error", errParam))
		h.redirectError(w, r, errParam)
		return
	}

	// CSRF check: the state Google echoed must exactly match our cookie.
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("oauth callback: state mismatch")
		h.redirectError(w, r, "invalid_state")
		return
	}

	// The state is single-use; drop the cookie regardless of what follows.
	h.clearStateCookie(w)

	ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
	defer cancel()

	pu, err := h.provider.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		reason := "token_exchange_failed"
		if errors.Is(err, auth.ErrUserInfo) {
			reason = "userinfo_failed"
		}
		h.logger.Error("oauth callback: exchange failed", slog.String("error", err.Error()))
		h.redirectError(w, r, reason)
		return
	}

	creds, err := h.svc.CompleteOAuth(r.Context(), pu)
	if err != nil {
		h.logger.Error("oauth callback: user resolution failed", slog.String("error", err.Error()))
		h.redirectError(w, r, "user_creation_failed")
		return
	}

	h.setRefreshCookie(w, creds.RefreshToken, creds.RefreshExpiry)
	http.Redirect(w, r, h.frontendURL+"/docs/intro?auth=success", http.StatusFound)
}

// stateBytes is the entropy behind a CSRF state nonce. The value must be
// unguessable — anything derived from timestamps, machine ids or counters
// would let an attacker forge a callback that binds a victim's session to
// the attacker's provider account.
const stateBytes = 32

// newOAuthState produces a random CSRF state value, URL-safe for the
// query string and the cookie alike.
func newOAuthState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("handler: generating oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// redirectError bounces the browser back to the frontend with a
// machine-readable reason code.
func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r,
		h.frontendURL+"/?auth=error&reason="+url.QueryEscape(reason),
		http.StatusFound,
	)
}

// setRefreshCookie attaches the raw refresh token as an httpOnly cookie.
// MaxAge tracks the stored record's expiry so browser and server agree on
// the session lifetime. SameSite=Lax keeps it off cross-site POSTs.
func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     authCookiePath,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     authCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   authCookiePath,
		MaxAge: -1,
	})
}
