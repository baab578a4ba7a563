package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

// fakeGoogle stands in for Google's token and userinfo endpoints so the
// exchange can run against a local httptest server.
type fakeGoogle struct {
	tokenStatus    int
	userinfoStatus int
	userinfoBody   string
}

func (f *fakeGoogle) start(t *testing.T) (*GoogleProvider, func()) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if f.tokenStatus != 0 && f.tokenStatus != http.StatusOK {
			w.WriteHeader(f.tokenStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fake-access","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if f.userinfoStatus != 0 && f.userinfoStatus != http.StatusOK {
			w.WriteHeader(f.userinfoStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(f.userinfoBody))
	})

	srv := httptest.NewServer(mux)
	endpoint := oauth2.Endpoint{
		AuthURL:  srv.URL + "/auth",
		TokenURL: srv.URL + "/token",
	}
	p := newGoogleProviderForTest(endpoint, srv.URL+"/userinfo", "http://localhost/callback")
	return p, srv.Close
}

// =========================================================================
// AUTH URL TESTS
// =========================================================================

func TestAuthURL_EmbedsState(t *testing.T) {
	p := NewGoogleProvider("client-id", "client-secret", "http://localhost/callback")

	url := p.AuthURL("csrf-state-xyz")
	if url == "" {
		t.Fatal("AuthURL() returned empty string")
	}
	for _, want := range []string{"state=csrf-state-xyz", "client_id=client-id", "prompt=select_account"} {
		if !strings.Contains(url, want) {
			t.Errorf("AuthURL() = %q, missing %q", url, want)
		}
	}
}

// =========================================================================
// EXCHANGE TESTS
// =========================================================================

func TestExchange_Success(t *testing.T) {
	fake := &fakeGoogle{
		userinfoBody: `{"id":"google-sub-99","email":"Alice@Example.com","name":"Alice"}`,
	}
	p, done := fake.start(t)
	defer done()

	user, err := p.Exchange(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	if user.Provider != "google" {
		t.Errorf("Provider = %q, want %q", user.Provider, "google")
	}
	if user.Subject != "google-sub-99" {
		t.Errorf("Subject = %q, want %q", user.Subject, "google-sub-99")
	}
	// Email must be normalized to lowercase before anyone matches on it
	if user.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", user.Email, "alice@example.com")
	}
	if user.Name != "Alice" {
		t.Errorf("Name = %q, want %q", user.Name, "Alice")
	}
}

func TestExchange_NameFallsBackToMailbox(t *testing.T) {
	fake := &fakeGoogle{
		userinfoBody: `{"id":"google-sub-1","email":"bob@example.com","name":""}`,
	}
	p, done := fake.start(t)
	defer done()

	user, err := p.Exchange(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if user.Name != "bob" {
		t.Errorf("Name = %q, want mailbox fallback %q", user.Name, "bob")
	}
}

func TestExchange_TokenEndpointFailure(t *testing.T) {
	fake := &fakeGoogle{tokenStatus: http.StatusBadRequest}
	p, done := fake.start(t)
	defer done()

	_, err := p.Exchange(context.Background(), "bad-code")
	if !errors.Is(err, ErrTokenExchange) {
		t.Fatalf("Exchange() error = %v, want ErrTokenExchange", err)
	}
}

func TestExchange_UserinfoFailure(t *testing.T) {
	fake := &fakeGoogle{userinfoStatus: http.StatusInternalServerError}
	p, done := fake.start(t)
	defer done()

	_, err := p.Exchange(context.Background(), "auth-code")
	if !errors.Is(err, ErrUserInfo) {
		t.Fatalf("Exchange() error = %v, want ErrUserInfo", err)
	}
}

func TestExchange_EmptySubjectRejected(t *testing.T) {
	fake := &fakeGoogle{userinfoBody: `{"id":"","email":"x@example.com"}`}
	p, done := fake.start(t)
	defer done()

	_, err := p.Exchange(context.Background(), "auth-code")
	if !errors.Is(err, ErrUserInfo) {
		t.Fatalf("Exchange() error = %v, want ErrUserInfo for empty subject", err)
	}
}
