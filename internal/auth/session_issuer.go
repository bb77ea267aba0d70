package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultSessionTTL = 12 * time.Hour

	sessionIssuer   = "zapiski-admin"
	sessionAudience = "zapiski-admin"

	// AdminSubject is the only subject the console ever issues; there is
	// one operator account.
	AdminSubject = "admin"
)

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")

	// ErrBadCredentials is returned for a wrong password. Callers must not
	// leak anything more specific.
	ErrBadCredentials = errors.New("auth: bad credentials")
)

// SessionIssuerConfig configures the console session issuer.
type SessionIssuerConfig struct {
	SigningSecret []byte
	// PasswordHash is the bcrypt hash the login password is checked against.
	PasswordHash string
	SessionTTL   time.Duration
	Clock        func() time.Time
}

// SessionIssuer checks the operator password and mints session JWTs for the
// console cookie.
type SessionIssuer struct {
	config SessionIssuerConfig
	clock  func() time.Time
}

// NewSessionIssuer constructs a SessionIssuer with sane defaults.
func NewSessionIssuer(cfg SessionIssuerConfig) *SessionIssuer {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionIssuer{
		config: SessionIssuerConfig{
			SigningSecret: cfg.SigningSecret,
			PasswordHash:  cfg.PasswordHash,
			SessionTTL:    ttl,
			Clock:         clock,
		},
		clock: clock,
	}
}

// Login verifies the password against the stored hash and returns a signed
// session token plus its expiry in seconds.
func (i *SessionIssuer) Login(password string) (string, int64, error) {
	if i.config.PasswordHash == "" {
		return "", 0, errors.New("auth: password hash must be configured")
	}
	err := bcrypt.CompareHashAndPassword([]byte(i.config.PasswordHash), []byte(password))
	if err != nil {
		return "", 0, ErrBadCredentials
	}
	return i.IssueSession()
}

// IssueSession produces a signed session JWT and its expiry (seconds).
func (i *SessionIssuer) IssueSession() (string, int64, error) {
	if len(i.config.SigningSecret) == 0 {
		return "", 0, errMissingSigningSecret
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.config.SessionTTL).UTC()

	registered := jwt.RegisteredClaims{
		Subject:   AdminSubject,
		Issuer:    sessionIssuer,
		Audience:  []string{sessionAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, registered)
	signed, err := token.SignedString(i.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateSession ensures the session JWT is well formed and returns the
// subject.
func (i *SessionIssuer) ValidateSession(tokenString string) (string, error) {
	if len(i.config.SigningSecret) == 0 {
		return "", errMissingSigningSecret
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return i.config.SigningSecret, nil
		},
		jwt.WithAudience(sessionAudience),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errMissingSubjectClaim
	}
	return claims.Subject, nil
}

// HashPassword produces a bcrypt hash for provisioning the operator account.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
