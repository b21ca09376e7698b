package domain

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSubject is returned when the bearer token carries no subject claim.
var ErrNoSubject = errors.New("token has no subject claim")

// Session identifies an authenticated user for the lifetime of the client.
// It is created at login and destroyed at logout; the channel URL and every
// REST call are derived from it.
type Session struct {
	UserID string
	Token  string
}

// NewSession builds a session from a bearer token. The user ID is taken from
// the token's "sub" claim without verifying the signature: the client has no
// key material, and the server re-verifies the token on every request anyway.
func NewSession(token string) (*Session, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parsing bearer token: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, ErrNoSubject
	}

	return &Session{UserID: sub, Token: token}, nil
}
