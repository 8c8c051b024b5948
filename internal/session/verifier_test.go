package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, subject string, ttl time.Duration) string {
	t.Helper()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Email: subject + "@example.com",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestHMACVerifier_Valid(t *testing.T) {
	v := NewHMACVerifier("secret")
	id, err := v.Verify(context.Background(), signToken(t, "secret", "user-1", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "user-1@example.com", id.Email)
	assert.WithinDuration(t, time.Now().Add(time.Hour), id.ExpiresAt, 5*time.Second)
}

func TestHMACVerifier_Rejects(t *testing.T) {
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signToken(t, "other", "user-1", time.Hour)},
		{"expired", signToken(t, "secret", "user-1", -time.Minute)},
		{"missing subject", signToken(t, "secret", "", time.Hour)},
		{"no expiry", noExpiry},
		{"garbage", "not-a-jwt"},
	}
	v := NewHMACVerifier("secret")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}

func TestHMACVerifier_Issuer(t *testing.T) {
	v := NewHMACVerifier("secret", WithIssuer("medrecord"))
	_, err := v.Verify(context.Background(), signToken(t, "secret", "user-1", time.Hour))
	assert.ErrorIs(t, err, ErrInvalidToken)
}
