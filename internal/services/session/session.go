// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session issues, rotates and revokes sessions. A session is an
// access/refresh token pair; the refresh token's allow-list entry is what
// keeps the session alive.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"codeberg.org/oliverandrich/go-social-auth/internal/config"
	"codeberg.org/oliverandrich/go-social-auth/internal/models"
	"codeberg.org/oliverandrich/go-social-auth/internal/repository"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/token"
	"github.com/google/uuid"
)

// Store is the user storage the session manager needs.
type Store interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	DeleteUserRefreshTokens(ctx context.Context, userID string) (int64, error)
}

// VerificationMailer delivers the verification mail sent on registration.
type VerificationMailer interface {
	SendVerification(ctx context.Context, to, name, token string) error
}

// RegisterParams holds the parameters for user registration
type RegisterParams struct {
	Email    string
	Password string
	Name     string
}

// Registration is the result of a successful registration.
type Registration struct {
	User   *models.User
	Tokens token.Pair
}

type Manager struct {
	store     Store
	tokens    *token.Service
	passwords *auth.Service
	mailer    VerificationMailer
	cfg       config.AuthConfig
}

func NewManager(store Store, tokens *token.Service, passwords *auth.Service, mailer VerificationMailer, cfg *config.AuthConfig) *Manager {
	m := &Manager{store: store, tokens: tokens, passwords: passwords, mailer: mailer}
	if cfg != nil {
		m.cfg = *cfg
	}
	return m
}

// Register creates an unverified account with an outstanding email
// verification token and opens a first session for it.
func (m *Manager) Register(ctx context.Context, params RegisterParams) (*Registration, error) {
	email, err := auth.NormalizeEmail(params.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	exists, err := m.store.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if exists {
		return nil, auth.ErrEmailExists
	}

	if err := m.passwords.ValidatePassword(params.Password, email, name); err != nil {
		return nil, err
	}
	passwordHash, err := m.passwords.HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		VerifyStatus: models.Unverified,
	}
	verifyToken, err := m.tokens.Issue(ctx, token.KindEmailVerify, user.ID, user.VerifyStatus)
	if err != nil {
		return nil, err
	}
	user.EmailVerifyToken = verifyToken

	if err := m.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, auth.ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if m.mailer != nil {
		if err := m.mailer.SendVerification(ctx, user.Email, user.Name, verifyToken); err != nil {
			slog.Error("mail_delivery_failed", "kind", "verify_email", "user_id", user.ID, "error", err)
		}
	}

	pair, err := m.tokens.IssuePair(ctx, user.ID, user.VerifyStatus)
	if err != nil {
		return nil, err
	}

	slog.Info("register_success", "user_id", user.ID)
	return &Registration{User: user, Tokens: pair}, nil
}

// Login opens a session for a user whose credentials were already checked.
// The stored verify status wins over the caller's so that a banned or
// freshly verified account never gets a token with a stale status.
func (m *Manager) Login(ctx context.Context, userID string, status models.VerifyStatus) (token.Pair, error) {
	user, err := m.loadUser(ctx, userID)
	if err != nil {
		return token.Pair{}, err
	}
	if user.VerifyStatus == models.Banned {
		return token.Pair{}, auth.ErrAccountBanned
	}
	if status != user.VerifyStatus {
		slog.Debug("login_status_refreshed", "user_id", user.ID, "claimed", status, "stored", user.VerifyStatus)
	}

	pair, err := m.tokens.IssuePair(ctx, user.ID, user.VerifyStatus)
	if err != nil {
		return token.Pair{}, err
	}

	slog.Info("login_success", "user_id", user.ID)
	return pair, nil
}

// Logout revokes the session of refreshToken on behalf of userID. A token
// without an allow-list entry or issued to another user fails with
// token.ErrTokenInvalid.
func (m *Manager) Logout(ctx context.Context, userID, refreshToken string) error {
	claims, err := m.tokens.Verify(ctx, refreshToken, token.KindRefresh)
	if err != nil {
		return err
	}
	if claims.UserID != userID {
		slog.Warn("logout_rejected", "user_id", userID, "reason", "refresh_token_owner_mismatch")
		return fmt.Errorf("%w: refresh token belongs to another user", token.ErrTokenInvalid)
	}

	revoked, err := m.tokens.RevokeRefresh(ctx, refreshToken)
	if err != nil {
		return err
	}
	if !revoked {
		return fmt.Errorf("%w: refresh token not found", token.ErrTokenInvalid)
	}
	slog.Info("refresh_revoked", "reason", "logout", "user_id", userID)
	return nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked and the new refresh token keeps its expiry.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	claims, err := m.tokens.Verify(ctx, refreshToken, token.KindRefresh)
	if err != nil {
		return token.Pair{}, err
	}

	user, err := m.loadUser(ctx, claims.UserID)
	if err == nil && user.VerifyStatus == models.Banned {
		err = auth.ErrAccountBanned
	}
	if err != nil {
		if _, revokeErr := m.tokens.RevokeRefresh(ctx, refreshToken); revokeErr != nil {
			slog.Error("refresh_revoke_failed", "user_id", claims.UserID, "error", revokeErr)
		}
		return token.Pair{}, err
	}

	return m.tokens.Rotate(ctx, claims, refreshToken, user.VerifyStatus)
}

// ChangePassword sets a new password for a user. Existing sessions are kept
// unless the configuration asks for their revocation.
func (m *Manager) ChangePassword(ctx context.Context, userID, newPassword string) error {
	user, err := m.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := m.passwords.ValidatePassword(newPassword, user.Email, user.Name); err != nil {
		return err
	}
	passwordHash, err := m.passwords.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := m.store.UpdateUserPassword(ctx, user.ID, passwordHash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return auth.ErrUserNotFound
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	if m.cfg.RevokeSessionsOnPasswordChange {
		n, err := m.store.DeleteUserRefreshTokens(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}
		slog.Info("refresh_revoked", "reason", "password_changed", "user_id", user.ID, "count", n)
	}

	slog.Info("password_changed", "user_id", user.ID)
	return nil
}

func (m *Manager) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := m.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
