package auth

import (
	"errors"
	"testing"
	"time"

	"presence/internal/faults"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "presence-test"
)

func TestIssueAndParse(t *testing.T) {
	token, exp, err := IssueToken("actor-1", "student", testIssuer, testKey, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Errorf("expiry too soon: %v", exp)
	}

	claims, err := ParseToken(token, testKey, testIssuer)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "actor-1" || claims.Role != "student" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ID == "" {
		t.Error("expected non-empty jti")
	}
}

func TestTokensAreUnique(t *testing.T) {
	a, _, _ := IssueToken("actor-1", "student", testIssuer, testKey, time.Hour)
	b, _, _ := IssueToken("actor-1", "student", testIssuer, testKey, time.Hour)
	if a == b {
		t.Error("two tokens for the same actor must differ")
	}
}

func TestParseExpiredToken(t *testing.T) {
	token, _, err := IssueToken("actor-1", "student", testIssuer, testKey, -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, err = ParseToken(token, testKey, testIssuer)
	if !errors.Is(err, &faults.Error{Kind: faults.SessionExpired}) {
		t.Errorf("expected SessionExpired, got %v", err)
	}
}

func TestParseRejectsWrongKeyAndIssuer(t *testing.T) {
	token, _, _ := IssueToken("actor-1", "student", testIssuer, testKey, time.Hour)

	if _, err := ParseToken(token, "other-key", testIssuer); !errors.Is(err, &faults.Error{Kind: faults.Unauthenticated}) {
		t.Errorf("wrong key: expected Unauthenticated, got %v", err)
	}
	if _, err := ParseToken(token, testKey, "other-issuer"); !errors.Is(err, &faults.Error{Kind: faults.Unauthenticated}) {
		t.Errorf("wrong issuer: expected Unauthenticated, got %v", err)
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatal("hash equals plaintext")
	}
	if !VerifyPassword(hash, "s3cret-pass") {
		t.Error("correct password rejected")
	}
	if VerifyPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
	if _, err := HashPassword(""); err == nil {
		t.Error("empty password accepted")
	}
}
