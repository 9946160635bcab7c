// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/go-social-auth/internal/models"
)

// CreateRefreshToken stores a refresh token allow-list entry.
func (r *Repository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, issued_at, expires_at) VALUES (?, ?, ?, ?)`,
		token.TokenHash, token.UserID, token.IssuedAt.UTC(), token.ExpiresAt.UTC())
	return wrapError(err)
}

// GetRefreshToken retrieves a refresh token entry by hash.
func (r *Repository) GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := r.db.GetContext(ctx, &token, `SELECT * FROM refresh_tokens WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// DeleteRefreshToken removes a refresh token entry. Returns false if no entry
// matched.
func (r *Repository) DeleteRefreshToken(ctx context.Context, tokenHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// DeleteUserRefreshTokens removes all refresh token entries of a user.
func (r *Repository) DeleteUserRefreshTokens(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountUserRefreshTokens returns the number of stored refresh tokens of a user.
func (r *Repository) CountUserRefreshTokens(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM refresh_tokens WHERE user_id = ?`, userID)
	return count, err
}

// DeleteExpiredRefreshTokens deletes expired entries and returns how many
// were removed.
func (r *Repository) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, r.timestamp())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
