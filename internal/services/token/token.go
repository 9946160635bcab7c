// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token issues and verifies the signed tokens of the account
// lifecycle: session access and refresh tokens, email verification tokens
// and password reset tokens.
package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/go-social-auth/internal/models"
	"codeberg.org/oliverandrich/go-social-auth/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid      = errors.New("token is invalid")
	ErrTokenExpired      = errors.New("token has expired")
	ErrTokenKindMismatch = errors.New("token kind does not match")
	ErrSigning           = errors.New("token signing failed")
)

// Kind is the purpose a token was issued for.
type Kind string

const (
	KindAccess         Kind = "access"
	KindRefresh        Kind = "refresh"
	KindEmailVerify    Kind = "email_verify"
	KindForgotPassword Kind = "forgot_password_verify"
)

// Default lifetimes per kind.
const (
	DefaultAccessTTL         = 15 * time.Minute
	DefaultRefreshTTL        = 100 * 24 * time.Hour
	DefaultEmailVerifyTTL    = 7 * 24 * time.Hour
	DefaultForgotPasswordTTL = 7 * 24 * time.Hour
)

// Claims is the decoded payload of a token.
type Claims struct {
	UserID       string              `json:"user_id"`
	Kind         Kind                `json:"token_type"`
	VerifyStatus models.VerifyStatus `json:"verify_status"`
	jwt.RegisteredClaims
}

// Pair is an access token together with its refresh token.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshStore persists the refresh token allow-list.
type RefreshStore interface {
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, tokenHash string) (bool, error)
}

// Config holds the key material and lifetimes of the token service.
type Config struct {
	Secret            []byte
	Issuer            string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	EmailVerifyTTL    time.Duration
	ForgotPasswordTTL time.Duration
	// Clock overrides time.Now.
	Clock func() time.Time
}

// Service issues and verifies tokens.
type Service struct {
	cfg   Config
	store RefreshStore
	now   func() time.Time
}

// NewService creates a token service. Zero lifetimes fall back to the defaults.
func NewService(cfg Config, store RefreshStore) (*Service, error) {
	if store == nil {
		return nil, errors.New("refresh store is required")
	}
	defaults := map[*time.Duration]time.Duration{
		&cfg.AccessTTL:         DefaultAccessTTL,
		&cfg.RefreshTTL:        DefaultRefreshTTL,
		&cfg.EmailVerifyTTL:    DefaultEmailVerifyTTL,
		&cfg.ForgotPasswordTTL: DefaultForgotPasswordTTL,
	}
	for ttl, def := range defaults {
		if *ttl < 0 {
			return nil, fmt.Errorf("invalid token lifetime %s", *ttl)
		}
		if *ttl == 0 {
			*ttl = def
		}
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{cfg: cfg, store: store, now: now}, nil
}

// TTL returns the lifetime of tokens of the given kind.
func (s *Service) TTL(kind Kind) time.Duration {
	switch kind {
	case KindAccess:
		return s.cfg.AccessTTL
	case KindRefresh:
		return s.cfg.RefreshTTL
	case KindEmailVerify:
		return s.cfg.EmailVerifyTTL
	case KindForgotPassword:
		return s.cfg.ForgotPasswordTTL
	}
	return 0
}

// Issue signs a new token of the given kind. Issuing a refresh token also
// stores its allow-list entry.
func (s *Service) Issue(ctx context.Context, kind Kind, userID string, status models.VerifyStatus) (string, error) {
	ttl := s.TTL(kind)
	if ttl == 0 {
		return "", fmt.Errorf("%w: unknown kind %q", ErrTokenInvalid, kind)
	}
	return s.issue(ctx, kind, userID, status, s.now().Add(ttl))
}

// IssuePair issues a fresh access and refresh token.
func (s *Service) IssuePair(ctx context.Context, userID string, status models.VerifyStatus) (Pair, error) {
	return s.issuePair(ctx, userID, status, s.now().Add(s.cfg.RefreshTTL))
}

func (s *Service) issuePair(ctx context.Context, userID string, status models.VerifyStatus, refreshExpiry time.Time) (Pair, error) {
	access, err := s.issue(ctx, KindAccess, userID, status, s.now().Add(s.cfg.AccessTTL))
	if err != nil {
		return Pair{}, err
	}
	refresh, err := s.issue(ctx, KindRefresh, userID, status, refreshExpiry)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) issue(ctx context.Context, kind Kind, userID string, status models.VerifyStatus, expiresAt time.Time) (string, error) {
	if len(s.cfg.Secret) == 0 {
		return "", fmt.Errorf("%w: signing key unavailable", ErrSigning)
	}

	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt = expiresAt.UTC().Truncate(time.Second)
	claims := Claims{
		UserID:       userID,
		Kind:         kind,
		VerifyStatus: status,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.cfg.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigning, err)
	}

	if kind == KindRefresh {
		record := &models.RefreshToken{
			TokenHash: HashToken(signed),
			UserID:    userID,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		}
		if err := s.store.CreateRefreshToken(ctx, record); err != nil {
			return "", fmt.Errorf("failed to store refresh token: %w", err)
		}
	}

	return signed, nil
}

// Verify checks signature, expiry and kind of a token and returns its claims.
// Refresh tokens must additionally still be present in the allow-list.
func (s *Service) Verify(ctx context.Context, tokenString string, expected Kind) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		if len(s.cfg.Secret) == 0 {
			return nil, ErrSigning
		}
		return s.cfg.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if claims.Kind != expected {
		return nil, ErrTokenKindMismatch
	}
	if claims.UserID == "" {
		return nil, ErrTokenInvalid
	}

	if expected == KindRefresh {
		record, err := s.store.GetRefreshToken(ctx, HashToken(tokenString))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: refresh token revoked", ErrTokenInvalid)
			}
			return nil, fmt.Errorf("failed to look up refresh token: %w", err)
		}
		if record.UserID != claims.UserID {
			return nil, ErrTokenInvalid
		}
		if record.Expired(s.now()) {
			return nil, ErrTokenExpired
		}
	}

	return claims, nil
}

// RevokeRefresh removes the allow-list entry of a refresh token. It is
// idempotent: revoked reports whether an entry was removed, and no error is
// returned when none existed.
func (s *Service) RevokeRefresh(ctx context.Context, tokenString string) (revoked bool, err error) {
	revoked, err = s.store.DeleteRefreshToken(ctx, HashToken(tokenString))
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return revoked, nil
}

// Rotate revokes a verified refresh token and issues a new pair for the
// same user. The new refresh token keeps the old one's expiry, and status
// is the caller's current view of the account.
func (s *Service) Rotate(ctx context.Context, claims *Claims, tokenString string, status models.VerifyStatus) (Pair, error) {
	revoked, err := s.RevokeRefresh(ctx, tokenString)
	if err != nil {
		return Pair{}, err
	}
	if !revoked {
		return Pair{}, fmt.Errorf("%w: refresh token revoked", ErrTokenInvalid)
	}
	return s.issuePair(ctx, claims.UserID, status, claims.ExpiresAt.Time)
}

// HashToken computes the SHA256 hash of a token for storage.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
