package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Sentinel errors classifying which leg of the OAuth exchange failed.
// The callback handler maps them to redirect reason codes without ever
// exposing the provider's raw error text to the browser.
var (
	ErrTokenExchange = errors.New("auth: OAuth token exchange failed")
	ErrUserInfo      = errors.New("auth: OAuth userinfo fetch failed")
)

// ProviderUser is the provider-neutral identity the bridge hands to the
// rest of the system after a completed OAuth handshake.
//
// TRUST BOUNDARY:
// These fields come from the provider's userinfo endpoint, fetched
// server-to-server with the token WE obtained — never from anything the
// browser sent. The userinfo response is the sole source of truth for the
// linked subject id and email.
type ProviderUser struct {
	Provider string // e.g. "google"
	Subject  string // provider-assigned stable user id
	Email    string
	Name     string
}

// googleUserInfo is the portion of Google's userinfo response we care
// about. Google returns a larger object — we only unmarshal what we need.
type googleUserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GoogleProvider wraps golang.org/x/oauth2 for the Google Authorization
// Code flow.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. The server hands the browser Google's authorization URL with our
//     client id, redirect URI, scopes and a CSRF state value.
//  2. The user approves on Google's consent screen.
//  3. Google redirects back to the callback URL with a short-lived code.
//  4. The server exchanges the code for an access token — a
//     server-to-server call using the client secret; the token never
//     touches the browser.
//  5. The server calls the userinfo endpoint with that token to learn who
//     authenticated.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// NewGoogleProvider creates a GoogleProvider with the given credentials.
//
// callbackURL must exactly match one of the authorized redirect URIs
// configured in the Google Cloud console for this OAuth client.
//
// Scopes: "openid email profile" — enough for subject id, email and
// display name; nothing else.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

// newGoogleProviderForTest points the provider at fake endpoints so tests
// can drive the exchange against an httptest server.
func newGoogleProviderForTest(endpoint oauth2.Endpoint, userInfoURL, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     "test-client",
			ClientSecret: "test-secret",
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
	}
}

// AuthURL returns the Google authorization URL embedding the CSRF state.
//
// access_type=offline and prompt=select_account match the original
// consent-screen behavior: always show the account chooser, and allow
// Google to issue a refresh token of its own (unused here, but harmless).
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// Exchange completes the OAuth handshake: trades the authorization code
// for a ProviderUser.
//
// A failing token exchange wraps ErrTokenExchange; a failing userinfo
// fetch wraps ErrUserInfo — the caller needs the distinction only to pick
// a redirect reason code. A context timeout on either call surfaces as
// the corresponding error rather than hanging the callback.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*ProviderUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	// oauth2.Config.Client returns an *http.Client that attaches the
	// Authorization: Bearer header to every request.
	client := p.config.Client(ctx, oauthToken)

	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUserInfo, resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUserInfo, err)
	}

	if info.ID == "" {
		return nil, fmt.Errorf("%w: empty subject id", ErrUserInfo)
	}

	name := info.Name
	if name == "" {
		// Fall back to the mailbox part of the email, like the original UI did.
		name = info.Email
		if at := strings.IndexByte(name, '@'); at > 0 {
			name = name[:at]
		}
	}

	return &ProviderUser{
		Provider: "google",
		Subject:  info.ID,
		Email:    strings.ToLower(strings.TrimSpace(info.Email)),
		Name:     name,
	}, nil
}
