// Package auth validates the bearer tokens presented by admin event feed
// subscribers.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Audience is the expected aud claim for admin tokens.
const Audience = "nexus-dht"

// Claims represents the JWT payload expected from admin subscribers.
type Claims struct {
	// Scope is informational; the feed is read-only either way.
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Validator validates admin bearer tokens and returns parsed claims.
type Validator interface {
	Validate(token string) (*Claims, error)
}

// NewValidator returns a Validator checking HMAC-signed tokens against
// the shared secret.
func NewValidator(secret string) (Validator, error) {
	if secret == "" {
		return nil, errors.New("auth: admin JWT secret must not be empty")
	}
	return &hmacValidator{secret: []byte(secret)}, nil
}

type hmacValidator struct {
	secret []byte
}

func (v *hmacValidator) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithAudience(Audience))
	if err != nil {
		return nil, fmt.Errorf("jwt validation failed: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("invalid jwt token")
	}
	return claims, nil
}
