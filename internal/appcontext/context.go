// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package appcontext provides the custom Echo context.
package appcontext

import (
	"codeberg.org/oliverandrich/go-social-auth/internal/models"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/token"
	"github.com/labstack/echo/v4"
)

// Context is a custom Echo context carrying the verified access token.
type Context struct {
	echo.Context
	Claims *token.Claims // nil if not authenticated
}

// IsAuthenticated returns true if a valid access token was presented.
func (c *Context) IsAuthenticated() bool {
	return c.Claims != nil
}

// UserID returns the subject of the access token, or "" if not authenticated.
func (c *Context) UserID() string {
	if c.Claims == nil {
		return ""
	}
	return c.Claims.UserID
}

// VerifyStatus returns the status carried in the access token.
func (c *Context) VerifyStatus() models.VerifyStatus {
	if c.Claims == nil {
		return ""
	}
	return c.Claims.VerifyStatus
}

// From returns the custom context wrapped around c, if any.
func From(c echo.Context) (*Context, bool) {
	cc, ok := c.(*Context)
	return cc, ok
}
