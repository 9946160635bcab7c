// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package session_test

import (
	"context"
	"errors"
	"testing"

	"codeberg.org/oliverandrich/go-social-auth/internal/config"
	"codeberg.org/oliverandrich/go-social-auth/internal/models"
	"codeberg.org/oliverandrich/go-social-auth/internal/repository"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/session"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/token"
	"codeberg.org/oliverandrich/go-social-auth/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo   *repository.Repository
	tokens *token.Service
	mailer *testutil.RecordingMailer
	mgr    *session.Manager
}

func newFixture(t *testing.T, cfg *config.AuthConfig) *fixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	tokens, err := token.NewService(token.Config{Secret: []byte("0123456789abcdef0123456789abcdef")}, repo)
	require.NoError(t, err)
	mailer := &testutil.RecordingMailer{}
	return &fixture{
		repo:   repo,
		tokens: tokens,
		mailer: mailer,
		mgr:    session.NewManager(repo, tokens, auth.NewService(repo, cfg), mailer, cfg),
	}
}

func (f *fixture) register(t *testing.T, email string) *session.Registration {
	t.Helper()
	reg, err := f.mgr.Register(context.Background(), session.RegisterParams{
		Email:    email,
		Password: "violet-kettle-harbor",
		Name:     "Alice Liddell",
	})
	require.NoError(t, err)
	return reg
}

func TestRegister(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	reg := f.register(t, "Alice@Example.com")

	assert.Equal(t, "alice@example.com", reg.User.Email)
	assert.Equal(t, "Alice Liddell", reg.User.Name)
	assert.Equal(t, models.Unverified, reg.User.VerifyStatus)

	stored, err := f.repo.GetUserByID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Unverified, stored.VerifyStatus)
	assert.NotEmpty(t, stored.EmailVerifyToken)
	assert.True(t, auth.CheckPassword(stored.PasswordHash, "violet-kettle-harbor"))

	mail := f.mailer.Last(t)
	assert.Equal(t, "verify_email", mail.Kind)
	assert.Equal(t, stored.EmailVerifyToken, mail.Token)

	claims, err := f.tokens.Verify(ctx, mail.Token, token.KindEmailVerify)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)

	access, err := f.tokens.Verify(ctx, reg.Tokens.AccessToken, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, models.Unverified, access.VerifyStatus)
	_, err = f.tokens.Verify(ctx, reg.Tokens.RefreshToken, token.KindRefresh)
	require.NoError(t, err)
}

func TestRegister_DefaultName(t *testing.T) {
	f := newFixture(t, nil)

	reg, err := f.mgr.Register(context.Background(), session.RegisterParams{
		Email:    "bob@example.com",
		Password: "violet-kettle-harbor",
	})
	require.NoError(t, err)
	assert.Equal(t, "bob", reg.User.Name)
}

func TestRegister_EmailExists(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "alice@example.com")

	_, err := f.mgr.Register(context.Background(), session.RegisterParams{
		Email:    "ALICE@example.com",
		Password: "violet-kettle-harbor",
	})
	require.ErrorIs(t, err, auth.ErrEmailExists)
}

func TestRegister_InvalidEmail(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.mgr.Register(context.Background(), session.RegisterParams{
		Email:    "not-an-email",
		Password: "violet-kettle-harbor",
	})
	require.ErrorIs(t, err, auth.ErrInvalidEmail)
}

func TestRegister_WeakPassword(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.mgr.Register(ctx, session.RegisterParams{Email: "alice@example.com", Password: "123"})

	var verr *auth.PasswordValidationError
	require.ErrorAs(t, err, &verr)
	exists, err := f.repo.EmailExists(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRegister_MailFailureIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.mailer.Err = errors.New("smtp down")

	reg := f.register(t, "alice@example.com")

	assert.NotEmpty(t, reg.Tokens.AccessToken)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice@example.com")
	require.NoError(t, f.repo.SetUserStatus(ctx, user.ID, models.Verified))

	pair, err := f.mgr.Login(ctx, user.ID, models.Verified)
	require.NoError(t, err)

	claims, err := f.tokens.Verify(ctx, pair.AccessToken, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, models.Verified, claims.VerifyStatus)

	count, err := f.repo.CountUserRefreshTokens(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestLogin_UsesStoredStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice@example.com")

	pair, err := f.mgr.Login(ctx, user.ID, models.Verified)
	require.NoError(t, err)

	claims, err := f.tokens.Verify(ctx, pair.AccessToken, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, models.Unverified, claims.VerifyStatus)
}

func TestLogin_Banned(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice@example.com")
	require.NoError(t, f.repo.SetUserStatus(ctx, user.ID, models.Banned))

	_, err := f.mgr.Login(ctx, user.ID, models.Verified)
	require.ErrorIs(t, err, auth.ErrAccountBanned)
}

func TestLogin_UnknownUser(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.mgr.Login(context.Background(), "missing", models.Verified)
	require.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestLogout(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice@example.com")

	pair, err := f.mgr.Login(ctx, user.ID, models.Unverified)
	require.NoError(t, err)

	require.NoError(t, f.mgr.Logout(ctx, user.ID, pair.RefreshToken))

	count, err := f.repo.CountUserRefreshTokens(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	err = f.mgr.Logout(ctx, user.ID, pair.RefreshToken)
	require.ErrorIs(t, err, token.ErrTokenInvalid)
}

func TestLogout_OtherUsersToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	alice := testutil.NewTestUser(t, f.repo, "alice@example.com")
	mallory := testutil.NewTestUser(t, f.repo, "mallory@example.com")

	pair, err := f.mgr.Login(ctx, alice.ID, models.Unverified)
	require.NoError(t, err)

	err = f.mgr.Logout(ctx, mallory.ID, pair.RefreshToken)
	require.ErrorIs(t, err, token.ErrTokenInvalid)

	count, err := f.repo.CountUserRefreshTokens(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "session of the owner survives")
}

func TestRefresh(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice@example.com")

	pair, err := f.mgr.Login(ctx, user.ID, models.Unverified)
	require.NoError(t, err)
	require.NoError(t, f.repo.SetUserStatus(ctx, user.ID, models.Verified))

	rotated, err := f.mgr.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	claims, err := f.tokens.Verify(ctx, rotated.AccessToken, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, models.Verified, claims.VerifyStatus)

	_, err = f.mgr.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, token.ErrTokenInvalid)

	_, err = f.mgr.Refresh(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_WrongKind(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice@example.com")

	pair, err := f.mgr.Login(ctx, user.ID, models.Unverified)
	require.NoError(t, err)

	_, err = f.mgr.Refresh(ctx, pair.AccessToken)
	require.ErrorIs(t, err, token.ErrTokenKindMismatch)
}

func TestRefresh_BannedRevokes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice@example.com")

	pair, err := f.mgr.Login(ctx, user.ID, models.Unverified)
	require.NoError(t, err)
	require.NoError(t, f.repo.SetUserStatus(ctx, user.ID, models.Banned))

	_, err = f.mgr.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, auth.ErrAccountBanned)

	count, err := f.repo.CountUserRefreshTokens(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestChangePassword_KeepsSessions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice@example.com")
	pair, err := f.mgr.Login(ctx, user.ID, models.Unverified)
	require.NoError(t, err)

	require.NoError(t, f.mgr.ChangePassword(ctx, user.ID, "violet-kettle-harbor"))

	stored, err := f.repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(stored.PasswordHash, "violet-kettle-harbor"))

	_, err = f.tokens.Verify(ctx, pair.RefreshToken, token.KindRefresh)
	require.NoError(t, err)
}

func TestChangePassword_RevokesSessionsWhenConfigured(t *testing.T) {
	f := newFixture(t, &config.AuthConfig{RevokeSessionsOnPasswordChange: true})
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice@example.com")
	pair, err := f.mgr.Login(ctx, user.ID, models.Unverified)
	require.NoError(t, err)

	require.NoError(t, f.mgr.ChangePassword(ctx, user.ID, "violet-kettle-harbor"))

	_, err = f.tokens.Verify(ctx, pair.RefreshToken, token.KindRefresh)
	require.ErrorIs(t, err, token.ErrTokenInvalid)
}

func TestChangePassword_UnknownUser(t *testing.T) {
	f := newFixture(t, nil)

	err := f.mgr.ChangePassword(context.Background(), "missing", "violet-kettle-harbor")
	require.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestChangePassword_WeakPassword(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice@example.com")

	err := f.mgr.ChangePassword(ctx, user.ID, "password")

	var verr *auth.PasswordValidationError
	require.ErrorAs(t, err, &verr)
	stored, err := f.repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(stored.PasswordHash, testutil.TestPassword))
}
