package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/AtDexters-Lab/nexus-dht/internal/auth"
)

func signToken(t *testing.T, secret string, claims auth.Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims() auth.Claims {
	return auth.Claims{
		Scope: "events",
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{auth.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestValidateAcceptsGoodToken(t *testing.T) {
	v, err := auth.NewValidator("secret")
	require.NoError(t, err)

	claims, err := v.Validate(signToken(t, "secret", validClaims()))
	require.NoError(t, err)
	require.Equal(t, "events", claims.Scope)
}

func TestValidateRejectsBadTokens(t *testing.T) {
	v, err := auth.NewValidator("secret")
	require.NoError(t, err)

	// Wrong secret.
	_, err = v.Validate(signToken(t, "other", validClaims()))
	require.Error(t, err)

	// Wrong audience.
	c := validClaims()
	c.Audience = jwt.ClaimStrings{"somewhere-else"}
	_, err = v.Validate(signToken(t, "secret", c))
	require.Error(t, err)

	// Expired.
	c = validClaims()
	c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	_, err = v.Validate(signToken(t, "secret", c))
	require.Error(t, err)

	// Not a token at all.
	_, err = v.Validate("garbage")
	require.Error(t, err)
}

func TestNewValidatorRequiresSecret(t *testing.T) {
	_, err := auth.NewValidator("")
	require.Error(t, err)
}
