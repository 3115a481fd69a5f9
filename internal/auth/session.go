// ABOUTME: Short-lived HS256 session tokens for spawned Git askpass processes
// ABOUTME: Lets the askpass endpoint accept only callers the server launched

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum accepted HMAC secret length in bytes.
const MinSecretLength = 32

const askpassAudience = "ocm-askpass"

// Session errors
var (
	ErrInvalidSession = errors.New("invalid askpass session")
	ErrExpiredSession = errors.New("askpass session expired")
	ErrWeakSecret     = fmt.Errorf("secret must be at least %d bytes", MinSecretLength)
)

// SessionIssuer mints and verifies askpass session tokens.
type SessionIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewSessionIssuer creates an issuer. The secret must be at least MinSecretLength bytes.
func NewSessionIssuer(secret []byte) (*SessionIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	return &SessionIssuer{secret: secret, now: time.Now}, nil
}

// Issue creates a session token whose subject names the launched process
// (for example a repo id or "cli").
func (s *SessionIssuer) Issue(subject string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{askpassAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify validates a session token and returns its subject.
func (s *SessionIssuer) Verify(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithAudience(askpassAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredSession
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !token.Valid {
		return "", ErrInvalidSession
	}
	return claims.Subject, nil
}
