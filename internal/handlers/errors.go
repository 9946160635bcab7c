// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/go-social-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-social-auth/internal/middleware"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/profile"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/token"
	"github.com/labstack/echo/v4"
)

var (
	errInvalidRequest   = errors.New("invalid request")
	errPasswordMismatch = errors.New("passwords do not match")
)

// errorStatus maps an error to its HTTP status code and message id.
func errorStatus(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusBadRequest:
			return he.Code, "error_invalid_request"
		case http.StatusUnauthorized:
			return he.Code, "error_unauthorized"
		case http.StatusNotFound:
			return he.Code, "error_not_found"
		}
		if he.Code < http.StatusInternalServerError {
			return he.Code, http.StatusText(he.Code)
		}
		return he.Code, "error_internal"
	}

	var pwErr *auth.PasswordValidationError
	switch {
	case errors.As(err, &pwErr):
		return http.StatusUnprocessableEntity, "error_password_invalid"
	case errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, "error_invalid_request"
	case errors.Is(err, errPasswordMismatch):
		return http.StatusUnprocessableEntity, "error_password_mismatch"
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, "error_user_not_found"
	case errors.Is(err, auth.ErrEmailExists):
		return http.StatusConflict, "error_email_exists"
	case errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusUnprocessableEntity, "error_invalid_email"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "error_invalid_credentials"
	case errors.Is(err, auth.ErrAccountBanned):
		return http.StatusForbidden, "error_account_banned"
	case errors.Is(err, middleware.ErrMissingToken):
		return http.StatusUnauthorized, "error_unauthorized"
	case errors.Is(err, middleware.ErrNotVerified):
		return http.StatusForbidden, "error_user_not_verified"
	case errors.Is(err, token.ErrTokenExpired):
		return http.StatusUnauthorized, "error_token_expired"
	case errors.Is(err, token.ErrTokenKindMismatch):
		return http.StatusUnauthorized, "error_token_kind_mismatch"
	case errors.Is(err, token.ErrTokenInvalid):
		return http.StatusUnauthorized, "error_token_invalid"
	case errors.Is(err, profile.ErrCannotFollowSelf):
		return http.StatusBadRequest, "error_cannot_follow_self"
	case errors.Is(err, profile.ErrUsernameTaken):
		return http.StatusConflict, "error_username_taken"
	case errors.Is(err, profile.ErrInvalidUsernameFormat):
		return http.StatusUnprocessableEntity, "error_invalid_username_format"
	}
	return http.StatusInternalServerError, "error_internal"
}

// ErrorHandler renders every error returned by a handler or middleware as a
// localized JSON body. It is installed as the Echo HTTPErrorHandler.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, id := errorStatus(err)
	ctx := c.Request().Context()
	if code >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request_failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
	}

	body := echo.Map{"message": i18n.T(ctx, id)}
	var pwErr *auth.PasswordValidationError
	if errors.As(err, &pwErr) {
		details := make([]echo.Map, len(pwErr.Errors))
		for i, rule := range pwErr.Errors {
			details[i] = echo.Map{
				"code":    rule.Code,
				"message": i18n.TData(ctx, "password_"+rule.Code, rule.Params),
			}
		}
		body["errors"] = details
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else {
		writeErr = c.JSON(code, body)
	}
	if writeErr != nil {
		slog.ErrorContext(ctx, "error_response_failed", "error", writeErr)
	}
}

// message writes a 200 response carrying a localized message and extra fields.
func message(c echo.Context, id string, fields echo.Map) error {
	body := echo.Map{"message": i18n.T(c.Request().Context(), id)}
	for k, v := range fields {
		body[k] = v
	}
	return c.JSON(http.StatusOK, body)
}
