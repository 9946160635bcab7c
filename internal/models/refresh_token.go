// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// RefreshToken is an allow-list entry for an issued refresh token.
// Only the SHA256 hash of the token string is stored.
type RefreshToken struct { //nolint:govet // fieldalignment: readability over optimization
	TokenHash string    `db:"token_hash" json:"-"`
	UserID    string    `db:"user_id" json:"user_id"`
	IssuedAt  time.Time `db:"issued_at" json:"issued_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the record is past its expiry at now.
func (r *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
