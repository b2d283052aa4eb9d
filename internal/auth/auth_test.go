package auth

import (
	"testing"
	"time"

	"expense-tracker/internal/config"
	"expense-tracker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(now time.Time) *TokenService {
	ts := NewTokenService(config.Config{JWTSecret: "test-secret", JWTExpiresIn: time.Hour})
	ts.now = func() time.Time { return now }
	return ts
}

func TestTokenRoundTrip(t *testing.T) {
	ts := newTestTokenService(time.Now())

	token, err := ts.GenerateToken("u-1", domain.RoleAdmin)
	require.NoError(t, err)

	claims, err := ts.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	token, err := newTestTokenService(issued).GenerateToken("u-1", domain.RoleUser)
	require.NoError(t, err)

	_, err = newTestTokenService(time.Now()).ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	other := NewTokenService(config.Config{JWTSecret: "other", JWTExpiresIn: time.Hour})
	token, err := other.GenerateToken("u-1", domain.RoleUser)
	require.NoError(t, err)

	_, err = newTestTokenService(time.Now()).ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	_, err := newTestTokenService(time.Now()).ParseToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)
	assert.True(t, CheckPassword(hash, "secret123"))
	assert.False(t, CheckPassword(hash, "secret124"))
}

func TestVerificationToken(t *testing.T) {
	token, hash, err := NewVerificationToken()
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.Equal(t, hash, HashToken(token))

	other, _, err := NewVerificationToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}
