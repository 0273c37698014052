package service

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
	appErrors "github.com/noah-isme/unipass-integrity-api/pkg/errors"
)

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims() models.JWTClaims {
	return models.JWTClaims{
		UserID: "admin-1",
		Role:   models.RoleAdmin,
		Email:  "ops@unipass.test",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "unipass-auth",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "unipass-auth"})

	claims, err := svc.ValidateToken(signToken(t, "secret", jwt.SigningMethodHS256, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "unipass-auth"})

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	foreign := validClaims()
	foreign.Issuer = "someone-else"

	anonymous := validClaims()
	anonymous.UserID = ""

	cases := map[string]string{
		"wrong secret":  signToken(t, "other", jwt.SigningMethodHS256, validClaims()),
		"wrong method":  signToken(t, "secret", jwt.SigningMethodHS512, validClaims()),
		"expired":       signToken(t, "secret", jwt.SigningMethodHS256, expired),
		"wrong issuer":  signToken(t, "secret", jwt.SigningMethodHS256, foreign),
		"missing claim": signToken(t, "secret", jwt.SigningMethodHS256, anonymous),
		"garbage":       "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.Equal(t, http.StatusUnauthorized, appErrors.FromError(err).Status)
		})
	}
}
