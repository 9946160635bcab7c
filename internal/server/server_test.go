// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codeberg.org/oliverandrich/go-social-auth/internal/config"
	"codeberg.org/oliverandrich/go-social-auth/internal/handlers"
	"codeberg.org/oliverandrich/go-social-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/email"
	"codeberg.org/oliverandrich/go-social-auth/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHashKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Host: "localhost", Port: 8080, BaseURL: "http://localhost:8080", MaxBodySize: 1},
		Token:   config.TokenConfig{Secret: "0123456789abcdef0123456789abcdef", Issuer: "test"},
		Session: config.SessionConfig{CookieName: "_session", MaxAge: 3600, HashKey: testHashKey},
		Auth:    config.AuthConfig{MinPasswordLength: 8, FrontendURL: "http://localhost:3000"},
	}
}

func TestTokenSecret(t *testing.T) {
	t.Run("configured", func(t *testing.T) {
		cfg := testConfig()
		secret, err := tokenSecret(cfg)
		require.NoError(t, err)
		assert.Equal(t, []byte(cfg.Token.Secret), secret)
	})

	t.Run("generated in development", func(t *testing.T) {
		cfg := testConfig()
		cfg.Token.Secret = ""
		secret, err := tokenSecret(cfg)
		require.NoError(t, err)
		assert.Len(t, secret, 32)
	})

	t.Run("required in production", func(t *testing.T) {
		cfg := testConfig()
		cfg.Token.Secret = ""
		cfg.Server.Host = "0.0.0.0"
		_, err := tokenSecret(cfg)
		require.Error(t, err)
	})
}

func TestNewMailer(t *testing.T) {
	cfg := testConfig()
	m, err := newMailer(cfg)
	require.NoError(t, err)
	assert.IsType(t, &email.LogMailer{}, m)

	cfg.SMTP = config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"}
	m, err = newMailer(cfg)
	require.NoError(t, err)
	assert.IsType(t, &email.Service{}, m)

	cfg.SMTP.From = ""
	_, err = newMailer(cfg)
	require.Error(t, err)
}

type client struct {
	t *testing.T
	e *echo.Echo
}

func newClient(t *testing.T) (*client, *testutil.RecordingMailer) {
	t.Helper()
	require.NoError(t, i18n.Init())
	db, _ := testutil.NewTestDB(t)
	mailer := &testutil.RecordingMailer{}

	a, err := newApp(testConfig(), db, mailer)
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = handlers.ErrorHandler
	setupMiddleware(e, testConfig())
	setupRoutes(e, a)
	return &client{t: t, e: e}, mailer
}

func (c *client) do(method, path, body, accessToken string) (int, map[string]any) {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if accessToken != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+accessToken)
	}
	rec := httptest.NewRecorder()
	c.e.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestRoutes_Health(t *testing.T) {
	c, _ := newClient(t)

	code, body := c.do(http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestRoutes_AccountLifecycle(t *testing.T) {
	c, mailer := newClient(t)

	code, body := c.do(http.MethodPost, "/users/register",
		`{"name":"Alice","email":"alice@example.com","password":"correct-horse-battery","confirm_password":"correct-horse-battery"}`, "")
	require.Equal(t, http.StatusOK, code, body)
	access := body["access_token"].(string)
	userID := body["user"].(map[string]any)["id"].(string)

	code, body = c.do(http.MethodGet, "/users/me", "", access)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, userID, body["user"].(map[string]any)["id"])

	code, body = c.do(http.MethodPatch, "/users/me", `{"bio":"hi"}`, access)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Please verify your email address first", body["message"])

	verifyToken := mailer.Last(t).Token
	code, body = c.do(http.MethodPost, "/users/verify-email", `{"email_verify_token":"`+verifyToken+`"}`, "")
	require.Equal(t, http.StatusOK, code, body)
	access = body["result"].(map[string]any)["access_token"].(string)
	refresh := body["result"].(map[string]any)["refresh_token"].(string)

	code, body = c.do(http.MethodPost, "/users/verify-email", `{"email_verify_token":"`+verifyToken+`"}`, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Email has already been verified", body["message"])

	code, body = c.do(http.MethodPatch, "/users/me/", `{"bio":"hi","username":"alice_w"}`, access)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "alice_w", body["user"].(map[string]any)["username"])

	code, body = c.do(http.MethodPost, "/users/logout", `{"refresh_token":"`+refresh+`"}`, access)
	assert.Equal(t, http.StatusOK, code, body)

	code, body = c.do(http.MethodPost, "/users/logout", `{"refresh_token":"`+refresh+`"}`, access)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Token is invalid", body["message"])
}

func TestRoutes_GetUserOptionalAccess(t *testing.T) {
	c, _ := newClient(t)
	_, body := c.do(http.MethodPost, "/users/register",
		`{"email":"alice@example.com","password":"correct-horse-battery","confirm_password":"correct-horse-battery"}`, "")
	aliceID := body["user"].(map[string]any)["id"].(string)
	_, body = c.do(http.MethodPost, "/users/register",
		`{"email":"bob@example.com","password":"correct-horse-battery","confirm_password":"correct-horse-battery"}`, "")
	bobAccess := body["access_token"].(string)

	code, body := c.do(http.MethodGet, "/users/"+aliceID, "", bobAccess)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, false, body["is_following"])

	code, body = c.do(http.MethodGet, "/users/"+aliceID, "", "garbage")
	require.Equal(t, http.StatusOK, code, body)
	assert.NotContains(t, body, "is_following")
}

func TestRoutes_Unauthenticated(t *testing.T) {
	c, _ := newClient(t)

	code, body := c.do(http.MethodGet, "/users/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Authentication required", body["message"])

	code, body = c.do(http.MethodGet, "/users/me", "", "garbage")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Token is invalid", body["message"])
}

func TestRoutes_RefreshTokenIsNotAccess(t *testing.T) {
	c, _ := newClient(t)
	_, body := c.do(http.MethodPost, "/users/register",
		`{"email":"alice@example.com","password":"correct-horse-battery","confirm_password":"correct-horse-battery"}`, "")
	refresh := body["refresh_token"].(string)

	code, body := c.do(http.MethodGet, "/users/me", "", refresh)

	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Token cannot be used for this action", body["message"])
}

func TestRoutes_NotFound(t *testing.T) {
	c, _ := newClient(t)

	code, body := c.do(http.MethodGet, "/nope", "", "")

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Not found", body["message"])
}

func TestRoutes_PasswordPolicyErrors(t *testing.T) {
	c, _ := newClient(t)

	code, body := c.do(http.MethodPost, "/users/register",
		`{"email":"alice@example.com","password":"12345678","confirm_password":"12345678"}`, "")

	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "Password does not meet the requirements", body["message"])
	assert.NotEmpty(t, body["errors"])
}
