// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"strings"

	"codeberg.org/oliverandrich/go-social-auth/internal/models"
	"golang.org/x/text/cases"
)

// foldName returns the case-folded form of a display name stored in
// name_search. SQLite LIKE folds ASCII only.
func foldName(name string) string {
	return cases.Fold().String(name)
}

// CreateUser inserts a new user. CreatedAt and UpdatedAt are set here.
// Returns ErrConflict if the email or username is taken.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	now := r.timestamp()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.VerifyStatus == "" {
		user.VerifyStatus = models.Unverified
	}
	user.NameSearch = foldName(user.Name)

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (
			id, email, name, name_search, username, password_hash, verify_status,
			email_verify_token, forgot_password_token, bio, location, website,
			date_of_birth, avatar_url, created_at, updated_at
		) VALUES (
			:id, :email, :name, :name_search, :username, :password_hash, :verify_status,
			:email_verify_token, :forgot_password_token, :bio, :location, :website,
			:date_of_birth, :avatar_url, :created_at, :updated_at
		)`, user)
	return wrapError(err)
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = ?`, email); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE username = ?`, username); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// EmailExists checks if a user with the given email exists.
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM users WHERE email = ?`, email); err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateUser applies a partial update. Only non-nil patch fields are written.
// Returns ErrNotFound if the user does not exist and ErrConflict if the new
// username is taken.
func (r *Repository) UpdateUser(ctx context.Context, id string, patch models.UserPatch) error {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.Name != nil {
		set("name", *patch.Name)
		set("name_search", foldName(*patch.Name))
	}
	if patch.Username != nil {
		set("username", *patch.Username)
	}
	if patch.Bio != nil {
		set("bio", *patch.Bio)
	}
	if patch.Location != nil {
		set("location", *patch.Location)
	}
	if patch.Website != nil {
		set("website", *patch.Website)
	}
	if patch.DateOfBirth != nil {
		set("date_of_birth", patch.DateOfBirth.UTC())
	}
	if patch.AvatarURL != nil {
		set("avatar_url", *patch.AvatarURL)
	}
	set("updated_at", r.timestamp())
	args = append(args, id)

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapError(err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// UpdateUserPassword replaces a user's password hash.
func (r *Repository) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, r.timestamp(), id)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// SetUserStatus sets the verify status of a user.
func (r *Repository) SetUserStatus(ctx context.Context, id string, status models.VerifyStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET verify_status = ?, updated_at = ? WHERE id = ?`,
		status, r.timestamp(), id)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// SetEmailVerifyToken overwrites the stored email verification token of an
// unverified user. Returns false if the user is missing or not unverified.
func (r *Repository) SetEmailVerifyToken(ctx context.Context, id, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET email_verify_token = ?, updated_at = ?
		 WHERE id = ? AND verify_status = ?`,
		token, r.timestamp(), id, models.Unverified)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// MarkEmailVerified marks an unverified user verified and clears the stored
// token, but only while the stored token still equals token. Exactly one of
// several concurrent callers presenting the same token gets true.
func (r *Repository) MarkEmailVerified(ctx context.Context, id, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET verify_status = ?, email_verify_token = '', updated_at = ?
		 WHERE id = ? AND verify_status = ? AND email_verify_token = ? AND email_verify_token != ''`,
		models.Verified, r.timestamp(), id, models.Unverified, token)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// SetForgotPasswordToken stores a password reset token if none is
// outstanding. Returns false if a token was already stored or the user is
// missing.
func (r *Repository) SetForgotPasswordToken(ctx context.Context, id, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET forgot_password_token = ?, updated_at = ?
		 WHERE id = ? AND forgot_password_token = ''`,
		token, r.timestamp(), id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ReplaceForgotPasswordToken swaps the stored reset token for token, but
// only while the stored value still equals current.
func (r *Repository) ReplaceForgotPasswordToken(ctx context.Context, id, current, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET forgot_password_token = ?, updated_at = ?
		 WHERE id = ? AND forgot_password_token = ?`,
		token, r.timestamp(), id, current)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ResetPassword replaces the password hash and clears the stored reset token,
// but only while the stored token still equals token.
func (r *Repository) ResetPassword(ctx context.Context, id, token, passwordHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, forgot_password_token = '', updated_at = ?
		 WHERE id = ? AND forgot_password_token = ? AND forgot_password_token != ''`,
		passwordHash, r.timestamp(), id, token)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// escapeLike escapes LIKE wildcards so the query matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// SearchUsersByName returns users whose display name contains substr,
// ignoring Unicode case, ordered by name. Never returns a nil slice.
func (r *Repository) SearchUsersByName(ctx context.Context, substr string, limit int) ([]models.User, error) {
	users := []models.User{}
	err := r.db.SelectContext(ctx, &users,
		`SELECT * FROM users WHERE name_search LIKE ? ESCAPE '\' ORDER BY name, id LIMIT ?`,
		"%"+escapeLike(foldName(substr))+"%", limit)
	if err != nil {
		return nil, err
	}
	return users, nil
}
