// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth holds the credential primitives: password hashing, the
// password policy and the email/password check that precedes a login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"codeberg.org/oliverandrich/go-social-auth/internal/config"
	"codeberg.org/oliverandrich/go-social-auth/internal/models"
	"codeberg.org/oliverandrich/go-social-auth/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountBanned      = errors.New("account is banned")
	ErrInvalidEmail       = errors.New("invalid email format")
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// UserFinder looks up users by email.
type UserFinder interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type Service struct {
	users     UserFinder
	validator *PasswordValidator
	cost      int
}

func NewService(users UserFinder, cfg *config.AuthConfig) *Service {
	minLength := 0
	if cfg != nil {
		minLength = cfg.MinPasswordLength
	}
	return &Service{
		users:     users,
		validator: NewPasswordValidator(minLength),
		cost:      bcrypt.DefaultCost,
	}
}

// PasswordValidator returns the password policy in use.
func (s *Service) PasswordValidator() *PasswordValidator {
	return s.validator
}

// ValidatePassword checks password against the policy.
func (s *Service) ValidatePassword(password string, userAttributes ...string) error {
	return s.validator.Validate(password, userAttributes...)
}

// HashPassword returns the bcrypt hash of password.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NormalizeEmail trims and lower-cases an address and checks its format.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Authenticate checks an email/password pair and returns the matching user.
// Banned accounts are rejected after the password check.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.Warn("login_failed", "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		slog.Warn("login_failed", "user_id", user.ID, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if user.VerifyStatus == models.Banned {
		slog.Warn("login_failed", "user_id", user.ID, "reason", "banned")
		return nil, ErrAccountBanned
	}

	return user, nil
}
