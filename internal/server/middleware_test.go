// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codeberg.org/oliverandrich/go-social-auth/internal/appcontext"
	"codeberg.org/oliverandrich/go-social-auth/internal/config"
	"codeberg.org/oliverandrich/go-social-auth/internal/i18n"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiddlewareEcho() *echo.Echo {
	e := echo.New()
	setupMiddleware(e, &config.Config{Server: config.ServerConfig{MaxBodySize: 1}})
	return e
}

func TestSetupMiddleware_AppContextAndLocale(t *testing.T) {
	require.NoError(t, i18n.Init())
	e := newMiddlewareEcho()

	var wrapped bool
	var locale string
	e.GET("/", func(c echo.Context) error {
		_, wrapped = appcontext.From(c)
		locale = i18n.GetLocale(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "de-DE")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, wrapped, "handler should receive appcontext.Context")
	assert.True(t, strings.HasPrefix(locale, "de"), "expected locale to start with 'de', got %s", locale)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestSetupMiddleware_TrailingSlash(t *testing.T) {
	e := newMiddlewareEcho()
	e.GET("/users/me", func(c echo.Context) error {
		return c.String(http.StatusOK, "me")
	})

	req := httptest.NewRequest(http.MethodGet, "/users/me/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "me", rec.Body.String())
}

func TestSetupMiddleware_BodyLimit(t *testing.T) {
	e := newMiddlewareEcho()
	e.POST("/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 2<<20)))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSetupMiddleware_Recover(t *testing.T) {
	e := newMiddlewareEcho()
	e.GET("/panic", func(c echo.Context) error {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestLogger(t *testing.T) {
	e := echo.New()
	e.Use(requestLogger())
	e.GET("/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/fail", func(c echo.Context) error {
		return echo.ErrBadRequest
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, requestLevel(http.StatusOK))
	assert.Equal(t, slog.LevelInfo, requestLevel(http.StatusUnauthorized))
	assert.Equal(t, slog.LevelInfo, requestLevel(http.StatusConflict))
	assert.Equal(t, slog.LevelError, requestLevel(http.StatusInternalServerError))
	assert.Equal(t, slog.LevelError, requestLevel(http.StatusServiceUnavailable))
}

func TestRequestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(newLogger(&buf, "debug", "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	e := newMiddlewareEcho()
	e.GET("/conflict", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict)
	})
	e.GET("/fault", func(c echo.Context) error {
		return errors.New("database is gone")
	})

	for _, path := range []string{"/conflict", "/fault"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	levels := map[string]string{}
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		if entry["msg"] == "request" {
			levels[entry["uri"].(string)] = entry["level"].(string)
		}
	}
	assert.Equal(t, "INFO", levels["/conflict"])
	assert.Equal(t, "ERROR", levels["/fault"])
}
