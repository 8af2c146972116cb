package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := IssueJWT(Claims{Sub: "uid-1", Email: "ada@example.com", Name: "Ada"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := VerifyJWT(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Sub != "uid-1" || claims.Email != "ada@example.com" || claims.Name != "Ada" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Exp-claims.Iat != int64(SessionTTL/time.Second) {
		t.Fatalf("expected default ttl, got %d", claims.Exp-claims.Iat)
	}
}

func TestVerifyRejectsOtherSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "one")
	token, err := IssueJWT(Claims{Sub: "uid-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	t.Setenv("JWT_SECRET", "two")
	if _, err := VerifyJWT(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	past := time.Now().Add(-time.Hour)
	token, err := IssueJWT(Claims{Sub: "uid-1", Iat: past.Add(-time.Hour).Unix(), Exp: past.Unix()})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := VerifyJWT(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestSecretRequiredInProduction(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ENV", "production")
	if _, err := IssueJWT(Claims{Sub: "uid-1"}); err == nil {
		t.Fatalf("expected missing secret error")
	}
}
