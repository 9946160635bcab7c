// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers binds the HTTP routes to the account services.
package handlers

import (
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/go-social-auth/internal/repository"
	"github.com/labstack/echo/v4"
)

// Handlers contains the handlers that are not tied to a user.
type Handlers struct {
	repo *repository.Repository
}

// New creates a new Handlers instance.
func New(repo *repository.Repository) *Handlers {
	return &Handlers{repo: repo}
}

// Health returns the health status, including database reachability.
func (h *Handlers) Health(c echo.Context) error {
	if h.repo != nil {
		if err := h.repo.DB().PingContext(c.Request().Context()); err != nil {
			slog.Error("health_check_failed", "error", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
