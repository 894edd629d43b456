// Package auth validates the tokens that carry authenticated identities into
// the engine. Registration and login live in the external identity service;
// the engine only checks what it is handed at the websocket handshake.
package auth

import (
	"chat-engine/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	IdentityID string `json:"identity_id"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret   []byte
	duration time.Duration
}

func NewTokenManager(secret string, duration time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), duration: duration}
}

// GenerateToken creates a signed JWT for a specific identity. The external
// login endpoint normally issues these; the helper also serves tests and
// local tooling.
func (t *TokenManager) GenerateToken(identityID string) (string, error) {
	claims := &CustomClaims{
		IdentityID: identityID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "chat-engine",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateToken parses and validates the signature and expiration of a JWT
// string, returning the identity it authenticates.
func (t *TokenManager) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.IdentityID == "" {
		return nil, errors.ErrInvalidToken
	}
	return claims, nil
}
