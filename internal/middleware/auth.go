// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware provides the Echo middleware for authentication and
// locale negotiation.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/go-social-auth/internal/appcontext"
	"codeberg.org/oliverandrich/go-social-auth/internal/models"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/session"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/token"
	"github.com/labstack/echo/v4"
)

var (
	// ErrMissingToken is returned when a protected route receives no access token.
	ErrMissingToken = errors.New("access token is required")
	// ErrNotVerified is returned when a route requires a verified account.
	ErrNotVerified = errors.New("account is not verified")
)

// AccessVerifier verifies access tokens.
type AccessVerifier interface {
	Verify(ctx context.Context, tokenString string, expected token.Kind) (*token.Claims, error)
}

// CookieReader reads the access token from the session cookie.
type CookieReader interface {
	Read(r *http.Request) (string, bool)
}

// AppContext wraps every request in an appcontext.Context.
func AppContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := appcontext.From(c); ok {
				return next(c)
			}
			return next(&appcontext.Context{Context: c})
		}
	}
}

// RequireAccess rejects requests without a valid access token. The token is
// taken from the Authorization header, falling back to the session cookie.
// The decoded claims are stored on the appcontext.Context.
func RequireAccess(tokens AccessVerifier, cookies CookieReader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := accessToken(c.Request(), cookies)
			if raw == "" {
				return ErrMissingToken
			}

			claims, err := tokens.Verify(c.Request().Context(), raw, token.KindAccess)
			if err != nil {
				return err
			}

			cc, ok := appcontext.From(c)
			if !ok {
				cc = &appcontext.Context{Context: c}
			}
			cc.Claims = claims
			return next(cc)
		}
	}
}

// OptionalAccess stores the claims of a valid access token when one is
// presented and lets every request through. Invalid or expired tokens are
// treated as anonymous.
func OptionalAccess(tokens AccessVerifier, cookies CookieReader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := accessToken(c.Request(), cookies)
			if raw == "" {
				return next(c)
			}
			claims, err := tokens.Verify(c.Request().Context(), raw, token.KindAccess)
			if err != nil {
				return next(c)
			}

			cc, ok := appcontext.From(c)
			if !ok {
				cc = &appcontext.Context{Context: c}
			}
			cc.Claims = claims
			return next(cc)
		}
	}
}

// RequireVerified rejects access tokens issued to unverified accounts. It
// must run after RequireAccess.
func RequireVerified() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc, ok := appcontext.From(c)
			if !ok || !cc.IsAuthenticated() {
				return ErrMissingToken
			}
			if cc.VerifyStatus() != models.Verified {
				return ErrNotVerified
			}
			return next(c)
		}
	}
}

func accessToken(r *http.Request, cookies CookieReader) string {
	if header := r.Header.Get(echo.HeaderAuthorization); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value)
		}
		return ""
	}
	if cookies != nil {
		if value, ok := cookies.Read(r); ok {
			return value
		}
	}
	return ""
}

var _ CookieReader = (*session.Cookies)(nil)
