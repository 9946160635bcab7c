// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package verification drives the email confirmation and password reset
// flows. Email verification and reset tokens are single use: the stored
// value is compared and cleared in one statement.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"codeberg.org/oliverandrich/go-social-auth/internal/models"
	"codeberg.org/oliverandrich/go-social-auth/internal/repository"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/token"
)

// Outcome is the non-error result of a flow step.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeVerified
	OutcomeAlreadyVerified
	OutcomeAlreadyRequested
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeVerified:
		return "verified"
	case OutcomeAlreadyVerified:
		return "already_verified"
	case OutcomeAlreadyRequested:
		return "already_requested"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Store is the user storage the flows need.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetEmailVerifyToken(ctx context.Context, id, token string) (bool, error)
	MarkEmailVerified(ctx context.Context, id, token string) (bool, error)
	SetForgotPasswordToken(ctx context.Context, id, token string) (bool, error)
	ReplaceForgotPasswordToken(ctx context.Context, id, current, token string) (bool, error)
	ResetPassword(ctx context.Context, id, token, passwordHash string) (bool, error)
}

// Mailer delivers the emails carrying verification and reset tokens.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, token string) error
	SendPasswordReset(ctx context.Context, to, name, token string) error
}

// ConfirmResult is returned by ConfirmEmailVerification. Tokens is only set
// when Outcome is OutcomeVerified.
type ConfirmResult struct {
	Outcome Outcome
	User    *models.User
	Tokens  *token.Pair
}

type Service struct {
	store     Store
	tokens    *token.Service
	passwords *auth.Service
	mailer    Mailer
}

func NewService(store Store, tokens *token.Service, passwords *auth.Service, mailer Mailer) *Service {
	return &Service{store: store, tokens: tokens, passwords: passwords, mailer: mailer}
}

func (s *Service) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// RequestEmailVerification issues a new email verification token, replacing
// any outstanding one, and mails it.
func (s *Service) RequestEmailVerification(ctx context.Context, userID string) (Outcome, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	switch user.VerifyStatus {
	case models.Verified:
		return OutcomeAlreadyVerified, nil
	case models.Banned:
		return 0, auth.ErrAccountBanned
	}

	tok, err := s.tokens.Issue(ctx, token.KindEmailVerify, user.ID, user.VerifyStatus)
	if err != nil {
		return 0, err
	}
	ok, err := s.store.SetEmailVerifyToken(ctx, user.ID, tok)
	if err != nil {
		return 0, fmt.Errorf("failed to store verification token: %w", err)
	}
	if !ok {
		// Verified in the meantime.
		return OutcomeAlreadyVerified, nil
	}

	s.sendVerification(ctx, user, tok)
	return OutcomeSent, nil
}

// ResendVerificationMail mails the outstanding verification token again
// without rotating it.
func (s *Service) ResendVerificationMail(ctx context.Context, userID string) (Outcome, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.VerifyStatus == models.Banned {
		return 0, auth.ErrAccountBanned
	}
	if user.IsVerified() || !user.HasPendingEmailVerification() {
		return OutcomeAlreadyVerified, nil
	}

	s.sendVerification(ctx, user, user.EmailVerifyToken)
	return OutcomeSent, nil
}

// ConfirmEmailVerification consumes an email verification token, marks the
// account verified and issues a session for it. Presenting a consumed token
// again yields OutcomeAlreadyVerified without further side effects.
func (s *Service) ConfirmEmailVerification(ctx context.Context, tokenString string) (*ConfirmResult, error) {
	claims, err := s.tokens.Verify(ctx, tokenString, token.KindEmailVerify)
	if err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user.VerifyStatus == models.Banned {
		return nil, auth.ErrAccountBanned
	}
	if !user.HasPendingEmailVerification() {
		return &ConfirmResult{Outcome: OutcomeAlreadyVerified, User: user}, nil
	}
	if user.EmailVerifyToken != tokenString {
		return nil, fmt.Errorf("%w: verification token superseded", token.ErrTokenInvalid)
	}

	ok, err := s.store.MarkEmailVerified(ctx, user.ID, tokenString)
	if err != nil {
		return nil, fmt.Errorf("failed to mark email verified: %w", err)
	}
	if !ok {
		current, err := s.loadUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if current.HasPendingEmailVerification() {
			return nil, fmt.Errorf("%w: verification token superseded", token.ErrTokenInvalid)
		}
		return &ConfirmResult{Outcome: OutcomeAlreadyVerified, User: current}, nil
	}

	user.VerifyStatus = models.Verified
	user.EmailVerifyToken = ""

	pair, err := s.tokens.IssuePair(ctx, user.ID, user.VerifyStatus)
	if err != nil {
		return nil, err
	}

	slog.Info("email_verified", "user_id", user.ID)
	return &ConfirmResult{Outcome: OutcomeVerified, User: user, Tokens: &pair}, nil
}

// RequestPasswordReset issues a password reset token for the account with
// the given email and mails it. An outstanding unexpired token is left in
// place and OutcomeAlreadyRequested returned.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (Outcome, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, auth.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to get user: %w", err)
	}
	if user.VerifyStatus == models.Banned {
		return 0, auth.ErrAccountBanned
	}

	// Only a token that still verifies is outstanding. Expired tokens and
	// tokens signed with a previous secret are replaced.
	current := user.ForgotPasswordToken
	if current != "" {
		if _, err := s.tokens.Verify(ctx, current, token.KindForgotPassword); err == nil {
			return OutcomeAlreadyRequested, nil
		}
	}

	tok, err := s.tokens.Issue(ctx, token.KindForgotPassword, user.ID, user.VerifyStatus)
	if err != nil {
		return 0, err
	}

	var ok bool
	if current == "" {
		ok, err = s.store.SetForgotPasswordToken(ctx, user.ID, tok)
	} else {
		ok, err = s.store.ReplaceForgotPasswordToken(ctx, user.ID, current, tok)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to store reset token: %w", err)
	}
	if !ok {
		return OutcomeAlreadyRequested, nil
	}

	if s.mailer != nil {
		if err := s.mailer.SendPasswordReset(ctx, user.Email, user.Name, tok); err != nil {
			slog.Error("mail_delivery_failed", "kind", "forgot_password", "user_id", user.ID, "error", err)
		}
	}
	slog.Info("password_reset_requested", "user_id", user.ID)
	return OutcomeSent, nil
}

// VerifyPasswordResetToken checks that a reset token is valid and still the
// outstanding one, without consuming it.
func (s *Service) VerifyPasswordResetToken(ctx context.Context, tokenString string) (*models.User, error) {
	claims, err := s.tokens.Verify(ctx, tokenString, token.KindForgotPassword)
	if err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !user.HasPendingPasswordReset() || user.ForgotPasswordToken != tokenString {
		return nil, fmt.Errorf("%w: reset token already used", token.ErrTokenInvalid)
	}
	return user, nil
}

// ConfirmPasswordReset consumes a reset token and sets a new password.
func (s *Service) ConfirmPasswordReset(ctx context.Context, tokenString, newPassword string) error {
	user, err := s.VerifyPasswordResetToken(ctx, tokenString)
	if err != nil {
		return err
	}
	if err := s.passwords.ValidatePassword(newPassword, user.Email, user.Name); err != nil {
		return err
	}
	hash, err := s.passwords.HashPassword(newPassword)
	if err != nil {
		return err
	}

	ok, err := s.store.ResetPassword(ctx, user.ID, tokenString, hash)
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: reset token already used", token.ErrTokenInvalid)
	}

	slog.Info("password_reset", "user_id", user.ID)
	return nil
}

func (s *Service) sendVerification(ctx context.Context, user *models.User, tok string) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendVerification(ctx, user.Email, user.Name, tok); err != nil {
		slog.Error("mail_delivery_failed", "kind", "verify_email", "user_id", user.ID, "error", err)
	}
}
