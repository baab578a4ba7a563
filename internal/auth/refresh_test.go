package auth

import (
	"encoding/base64"
	"testing"
	"time"
)

// =========================================================================
// GENERATE TESTS
// =========================================================================

func TestRefreshGenerate_TokenShape(t *testing.T) {
	rs := NewRefreshService(0)

	token, expiry, err := rs.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	// The raw token must decode back to exactly 48 bytes of entropy
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("Generate() token is not URL-safe base64: %v", err)
	}
	if len(raw) != refreshTokenBytes {
		t.Errorf("Generate() decoded length = %d, want %d", len(raw), refreshTokenBytes)
	}

	if !expiry.After(time.Now()) {
		t.Error("Generate() expiry is not in the future")
	}
}

func TestRefreshGenerate_TokensAreUnique(t *testing.T) {
	rs := NewRefreshService(0)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, _, err := rs.Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if seen[token] {
			t.Fatal("Generate() produced a duplicate token")
		}
		seen[token] = true
	}
}

func TestRefreshGenerate_ExpiryMatchesTTL(t *testing.T) {
	rs := NewRefreshService(time.Hour)

	before := time.Now()
	_, expiry, err := rs.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	want := before.Add(time.Hour)
	if expiry.Before(want.Add(-time.Minute)) || expiry.After(want.Add(time.Minute)) {
		t.Errorf("Generate() expiry = %v, want roughly %v", expiry, want)
	}
}

func TestNewRefreshService_ZeroTTLUsesDefault(t *testing.T) {
	rs := NewRefreshService(0)
	if rs.TTL() != DefaultRefreshTTL {
		t.Errorf("TTL() = %v, want %v", rs.TTL(), DefaultRefreshTTL)
	}
}

// =========================================================================
// FINGERPRINT TESTS
// =========================================================================

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("some-raw-token")
	b := Fingerprint("some-raw-token")
	if a != b {
		t.Error("Fingerprint() is not deterministic for the same input")
	}
}

func TestFingerprint_DistinctInputs(t *testing.T) {
	if Fingerprint("token-a") == Fingerprint("token-b") {
		t.Error("Fingerprint() collided for distinct inputs")
	}
}

func TestFingerprint_HexSHA256Shape(t *testing.T) {
	fp := Fingerprint("anything")
	if len(fp) != 64 {
		t.Errorf("Fingerprint() length = %d, want 64 hex chars", len(fp))
	}
	for _, c := range fp {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("Fingerprint() contains non-hex character %q", c)
		}
	}
}
