package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuer_IssueAndParse(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	token, claims, err := issuer.Issue("user-1", "a@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.ID == "" {
		t.Error("expected jti to be set")
	}

	parsed, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.UserID() != "user-1" || parsed.Email != "a@example.com" {
		t.Errorf("claims = %+v", parsed)
	}
	if parsed.ID != claims.ID {
		t.Errorf("jti = %q, want %q", parsed.ID, claims.ID)
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := issuer.Issue("user-1", "a@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	issuer.now = time.Now

	if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	token, _, _ := NewTokenIssuer("secret-a", time.Hour).Issue("user-1", "a@example.com")

	if _, err := NewTokenIssuer("secret-b", time.Hour).Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenIssuer_RejectsNoneAlgorithm(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ID:        "jti",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}

	if _, err := NewTokenIssuer("secret", time.Hour).Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenIssuer_RejectsMissingSubject(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        "jti",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))

	if _, err := NewTokenIssuer("secret", time.Hour).Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestCheckPassword_EmptyHash(t *testing.T) {
	if CheckPassword("", "anything") {
		t.Error("empty hash must never match")
	}
}
