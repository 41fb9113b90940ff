package dispatch

import (
	"testing"
	"time"
)

func TestAuthenticator_VerifyNotRequired(t *testing.T) {
	a := NewAuthenticator(false, "", time.Hour)

	sess, err := a.Verify("conn-1", nil)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if sess.Token == "" {
		t.Error("expected a session token")
	}
}

func TestAuthenticator_VerifyBadToken(t *testing.T) {
	a := NewAuthenticator(true, "sekrit", time.Hour)

	if _, err := a.Verify("conn-1", map[string]any{"token": "wrong"}); err == nil {
		t.Error("expected verification failure")
	}
	if _, err := a.Verify("conn-1", nil); err == nil {
		t.Error("expected verification failure for missing token")
	}
}

func TestAuthenticator_SessionRoundtrip(t *testing.T) {
	a := NewAuthenticator(true, "sekrit", time.Hour)

	sess, err := a.Verify("conn-42", map[string]any{"token": "sekrit"})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	subject, err := a.ValidateSession(sess.Token)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if subject != "conn-42" {
		t.Errorf("expected subject conn-42, got %q", subject)
	}

	// A token minted under a different secret must not validate.
	other := NewAuthenticator(true, "other", time.Hour)
	if _, err := other.ValidateSession(sess.Token); err == nil {
		t.Error("expected validation failure with mismatched key")
	}
}

func TestAuthenticator_SessionExpiry(t *testing.T) {
	a := NewAuthenticator(true, "sekrit", -time.Hour)

	// A non-positive TTL falls back to the default of 24h.
	sess, err := a.Verify("conn-1", map[string]any{"token": "sekrit"})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	min := time.Now().Add(23 * time.Hour).UnixMilli()
	if sess.ExpiresAt < min {
		t.Errorf("expected default 24h TTL, expires %d", sess.ExpiresAt)
	}
}
