package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestValidateToken(t *testing.T) {
	verifier := NewJWTVerifier("secret")

	token := sign(t, "secret", &Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := verifier.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.True(t, claims.IsAdmin())
}

func TestValidateToken_Rejects(t *testing.T) {
	verifier := NewJWTVerifier("secret")

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", sign(t, "other", &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}})},
		{"expired", sign(t, "secret", &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}})},
		{"missing subject", sign(t, "secret", &Claims{})},
		{"garbage", "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
