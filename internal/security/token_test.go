package security

import (
	"bytes"
	"testing"
	"time"
)

func TestAccessTokenRoundtrip(t *testing.T) {
	signed, err := GenerateAccessToken("test-secret", "user-1", "sess-1", "user", "pro", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseAccessToken(signed, "test-secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", claims.UserID)
	}
	if claims.SessionID != "sess-1" {
		t.Fatalf("expected sess-1, got %s", claims.SessionID)
	}
	if claims.Role != "user" {
		t.Fatalf("expected role user, got %s", claims.Role)
	}
	if claims.Tier != "pro" {
		t.Fatalf("expected tier pro, got %s", claims.Tier)
	}
}

func TestParseAccessToken_WrongSecret(t *testing.T) {
	signed, err := GenerateAccessToken("test-secret", "user-1", "sess-1", "user", "standard", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseAccessToken(signed, "other-secret"); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
}

func TestParseAccessToken_Expired(t *testing.T) {
	signed, err := GenerateAccessToken("test-secret", "user-1", "sess-1", "user", "standard", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseAccessToken(signed, "test-secret"); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseAccessToken_Garbage(t *testing.T) {
	if _, err := ParseAccessToken("not.a.jwt", "test-secret"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRefreshToken(t *testing.T) {
	token, hash, err := GenerateRefreshToken(64)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if !bytes.Equal(hash, HashRefreshToken(token)) {
		t.Fatal("returned hash does not match HashRefreshToken")
	}

	other, _, err := GenerateRefreshToken(64)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if other == token {
		t.Fatal("expected unique refresh tokens")
	}
}
