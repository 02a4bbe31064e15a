package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Abraxas-365/chatflow/pkg/config"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(svc *JWTService) *fiber.App {
	app := fiber.New()
	app.Get("/private", NewAuthMiddleware(svc).Authenticate(), func(c *fiber.Ctx) error {
		ac, ok := GetAuthContext(c)
		if !ok {
			return c.SendStatus(http.StatusTeapot)
		}
		return c.SendString(ac.Subject)
	})
	return app
}

func status(t *testing.T, app *fiber.App, header string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestAuthenticate(t *testing.T) {
	svc := NewJWTService(config.AuthConfig{JWTSecret: "s3cret", JWTIssuer: "chatflow"})
	app := newApp(svc)

	valid, err := svc.GenerateToken("ops", time.Hour)
	require.NoError(t, err)
	expired, err := svc.GenerateToken("ops", -time.Minute)
	require.NoError(t, err)
	foreign, err := NewJWTService(config.AuthConfig{JWTSecret: "other", JWTIssuer: "chatflow"}).GenerateToken("ops", time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := NewJWTService(config.AuthConfig{JWTSecret: "s3cret", JWTIssuer: "elsewhere"}).GenerateToken("ops", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"no scheme", valid, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + wrongIssuer, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, status(t, app, tc.header))
		})
	}
}

func TestValidateTokenClaims(t *testing.T) {
	svc := NewJWTService(config.AuthConfig{JWTSecret: "k"})

	token, err := svc.GenerateToken("deploy-bot", time.Minute)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "deploy-bot", claims.Subject)
}
