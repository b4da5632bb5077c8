package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

var ErrInvalidToken = errors.New("invalid token")

// Claims are issued by the external auth service; this service only verifies them.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string { return c.Subject }

func (c *Claims) IsAdmin() bool { return c.Role == RoleAdmin }

type JWTVerifier struct {
	secretKey []byte
}

func NewJWTVerifier(secretKey string) *JWTVerifier {
	return &JWTVerifier{secretKey: []byte(secretKey)}
}

func (v *JWTVerifier) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
