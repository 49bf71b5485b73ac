package api

import (
	"fmt"
	"time"

	"github.com/adamscao/cspmauth/internal/identity"
	"github.com/golang-jwt/jwt/v5"
)

// sessionCookie is the cookie carrying the signed session token.
const sessionCookie = "cspm_session"

// mintSessionToken signs an HS256 token referencing the authenticated
// identity. The token is transport for the browser; the session record
// of truth lives in the session manager's scoped storage.
func mintSessionToken(key []byte, id identity.Identity, at time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":   id.ID,
		"email": id.Email,
		"iat":   at.Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// parseSessionToken verifies the token and returns the identity ID it
// references.
func parseSessionToken(key []byte, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid session token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid session token claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("session token missing subject")
	}
	return sub, nil
}
