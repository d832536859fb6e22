package auth

import (
	"testing"
	"time"
)

func TestIssueAndValidate(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")

	token, err := issuer.Issue("user-1", "kid@example.com", time.Hour)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Expected valid token, got %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("Expected user id user-1, got %s", claims.UserID)
	}
	if claims.Email != "kid@example.com" {
		t.Errorf("Expected email kid@example.com, got %s", claims.Email)
	}
}

func TestValidateRejectsOtherSecret(t *testing.T) {
	token, _ := NewTokenIssuer("a").Issue("user-1", "", time.Hour)

	if _, err := NewTokenIssuer("b").Validate(token); err == nil {
		t.Error("Expected token signed with another secret to be rejected")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("s")
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _ := issuer.Issue("user-1", "", time.Hour)

	if _, err := NewTokenIssuer("s").Validate(token); err == nil {
		t.Error("Expected expired token to be rejected")
	}
}

func TestExpiryFromToken(t *testing.T) {
	issuer := NewTokenIssuer("server-only-secret")
	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return fixed }

	token, _ := issuer.Issue("user-1", "", 90*time.Second)

	exp, err := ExpiryFromToken(token)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !exp.Equal(fixed.Add(90 * time.Second)) {
		t.Errorf("Expected exp %s, got %s", fixed.Add(90*time.Second), exp)
	}

	if _, err := ExpiryFromToken("not-a-jwt"); err == nil {
		t.Error("Expected error for malformed token")
	}
}
