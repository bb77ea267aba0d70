package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testPassword = "correct horse battery staple"

func newTestIssuer(t *testing.T) *SessionIssuer {
	t.Helper()

	hash, err := HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return NewSessionIssuer(SessionIssuerConfig{
		SigningSecret: []byte("super-secret"),
		PasswordHash:  hash,
		SessionTTL:    time.Hour,
	})
}

func TestLoginIssuesSessionToken(t *testing.T) {
	issuer := newTestIssuer(t)

	tokenString, expiresIn, err := issuer.Login(testPassword)
	if err != nil {
		t.Fatalf("expected successful login: %v", err)
	}
	if expiresIn <= 0 {
		t.Fatalf("expected positive expiry seconds, got %d", expiresIn)
	}

	parser := jwt.Parser{}
	claims := &jwt.RegisteredClaims{}
	_, err = parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}
	if claims.Subject != AdminSubject {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Issuer != sessionIssuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	issuer := newTestIssuer(t)

	_, _, err := issuer.Login("not the password")
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
}

func TestValidateSessionRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)

	tokenString, _, err := issuer.Login(testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	subject, err := issuer.ValidateSession(tokenString)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	if subject != AdminSubject {
		t.Fatalf("unexpected subject %s", subject)
	}

	if _, err := issuer.ValidateSession("invalid.token"); err == nil {
		t.Fatalf("expected validation to fail for malformed token")
	}
}

func TestValidateSessionRejectsExpiredToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	hash, err := HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	issuer := NewSessionIssuer(SessionIssuerConfig{
		SigningSecret: []byte("super-secret"),
		PasswordHash:  hash,
		SessionTTL:    time.Minute,
		Clock:         func() time.Time { return now },
	})

	tokenString, _, err := issuer.IssueSession()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := issuer.ValidateSession(tokenString); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestIssueSessionRequiresSecret(t *testing.T) {
	issuer := NewSessionIssuer(SessionIssuerConfig{PasswordHash: "x"})
	if _, _, err := issuer.IssueSession(); err == nil {
		t.Fatalf("expected error for missing secret")
	}
}
