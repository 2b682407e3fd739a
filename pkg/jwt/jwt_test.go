package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceRoundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.GenerateToken(42, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestServiceRejectsWrongSecret(t *testing.T) {
	token, err := NewService("secret-a", time.Hour).GenerateToken(1, "alice")
	require.NoError(t, err)

	_, err = NewService("secret-b", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestServiceRejectsExpiredToken(t *testing.T) {
	token, err := NewService("test-secret", -time.Minute).GenerateToken(1, "alice")
	require.NoError(t, err)

	_, err = NewService("test-secret", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestServiceRejectsGarbage(t *testing.T) {
	_, err := NewService("test-secret", time.Hour).ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
