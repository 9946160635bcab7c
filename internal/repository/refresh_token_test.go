// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-social-auth/internal/models"
	"codeberg.org/oliverandrich/go-social-auth/internal/repository"
	"codeberg.org/oliverandrich/go-social-auth/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRefreshToken(userID, hash string, expiresAt time.Time) *models.RefreshToken {
	return &models.RefreshToken{
		TokenHash: hash,
		UserID:    userID,
		IssuedAt:  time.Now().UTC().Truncate(time.Second),
		ExpiresAt: expiresAt.UTC().Truncate(time.Second),
	}
}

func TestCreateRefreshToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "alice@example.com")
	expiresAt := time.Now().Add(24 * time.Hour)

	err := repo.CreateRefreshToken(ctx, newRefreshToken(user.ID, "hash1", expiresAt))
	require.NoError(t, err)

	got, err := repo.GetRefreshToken(ctx, "hash1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.UserID)
	assert.WithinDuration(t, expiresAt, got.ExpiresAt, time.Second)
}

func TestCreateRefreshToken_Duplicate(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "alice@example.com")
	expiresAt := time.Now().Add(time.Hour)

	require.NoError(t, repo.CreateRefreshToken(ctx, newRefreshToken(user.ID, "hash1", expiresAt)))
	err := repo.CreateRefreshToken(ctx, newRefreshToken(user.ID, "hash1", expiresAt))

	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestCreateRefreshToken_UnknownUser(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	err := repo.CreateRefreshToken(context.Background(), newRefreshToken("missing", "hash1", time.Now().Add(time.Hour)))

	assert.Error(t, err)
}

func TestGetRefreshToken_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	_, err := repo.GetRefreshToken(context.Background(), "nonexistent")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteRefreshToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "alice@example.com")
	require.NoError(t, repo.CreateRefreshToken(ctx, newRefreshToken(user.ID, "hash1", time.Now().Add(time.Hour))))

	deleted, err := repo.DeleteRefreshToken(ctx, "hash1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = repo.GetRefreshToken(ctx, "hash1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	deleted, err = repo.DeleteRefreshToken(ctx, "hash1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteUserRefreshTokens(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	alice := testutil.NewTestUser(t, repo, "alice@example.com")
	bob := testutil.NewTestUser(t, repo, "bob@example.com")
	expiresAt := time.Now().Add(time.Hour)
	require.NoError(t, repo.CreateRefreshToken(ctx, newRefreshToken(alice.ID, "a1", expiresAt)))
	require.NoError(t, repo.CreateRefreshToken(ctx, newRefreshToken(alice.ID, "a2", expiresAt)))
	require.NoError(t, repo.CreateRefreshToken(ctx, newRefreshToken(bob.ID, "b1", expiresAt)))

	n, err := repo.DeleteUserRefreshTokens(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := repo.CountUserRefreshTokens(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = repo.CountUserRefreshTokens(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDeleteExpiredRefreshTokens(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "alice@example.com")
	require.NoError(t, repo.CreateRefreshToken(ctx, newRefreshToken(user.ID, "expired", time.Now().Add(-time.Hour))))
	require.NoError(t, repo.CreateRefreshToken(ctx, newRefreshToken(user.ID, "valid", time.Now().Add(time.Hour))))

	n, err := repo.DeleteExpiredRefreshTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetRefreshToken(ctx, "expired")
	require.ErrorIs(t, err, repository.ErrNotFound)

	got, err := repo.GetRefreshToken(ctx, "valid")
	require.NoError(t, err)
	assert.Equal(t, "valid", got.TokenHash)
}
