package domain

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestNewSession_ExtractsSubject(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{"sub": "user-42"})

	session, err := NewSession(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-42", session.UserID)
	assert.Equal(t, tok, session.Token)
}

func TestNewSession_MissingSubject(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{"role": "buyer"})

	_, err := NewSession(tok)
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestNewSession_GarbageToken(t *testing.T) {
	_, err := NewSession("not-a-jwt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSubject)
}
