package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session errors.
var (
	ErrNoSession      = errors.New("no session token")
	ErrSessionExpired = errors.New("session has expired")
	ErrMalformedToken = errors.New("malformed session token")
)

// Session describes the operator's bearer token as far as the client can tell.
// The signature is not verified here; the backend stays the authority and
// rejects forged tokens. The client only reads the expiry so pollers stop once
// the session is over.
type Session struct {
	Subject   string
	Email     string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// ParseSession decodes the claims of a JWT session token.
func ParseSession(token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	s := &Session{}
	s.Subject, _ = claims.GetSubject()
	if email, ok := claims["email"].(string); ok {
		s.Email = email
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s, nil
}

// Active reports whether the session has not yet expired at now.
func (s *Session) Active(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// Check returns ErrSessionExpired when the session is over at now.
func (s *Session) Check(now time.Time) error {
	if !s.Active(now) {
		return ErrSessionExpired
	}
	return nil
}
