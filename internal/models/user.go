// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"time"
)

// VerifyStatus is the verification state of an account. The string values
// are persisted in the verify_status column.
type VerifyStatus string

const (
	Unverified VerifyStatus = "Unverified"
	Verified   VerifyStatus = "Verified"
	Banned     VerifyStatus = "Banned"
)

// Valid reports whether s is one of the known statuses.
func (s VerifyStatus) Valid() bool {
	switch s {
	case Unverified, Verified, Banned:
		return true
	}
	return false
}

// User is an account record. Empty EmailVerifyToken / ForgotPasswordToken
// mean no outstanding token of that kind.
type User struct { //nolint:govet // fieldalignment not critical for models
	ID                  string       `db:"id" json:"id"`
	Email               string       `db:"email" json:"email"`
	Name                string       `db:"name" json:"name"`
	NameSearch          string       `db:"name_search" json:"-"`
	Username            *string      `db:"username" json:"username,omitempty"`
	PasswordHash        string       `db:"password_hash" json:"-"`
	VerifyStatus        VerifyStatus `db:"verify_status" json:"verify_status"`
	EmailVerifyToken    string       `db:"email_verify_token" json:"-"`
	ForgotPasswordToken string       `db:"forgot_password_token" json:"-"`
	Bio                 string       `db:"bio" json:"bio"`
	Location            string       `db:"location" json:"location"`
	Website             string       `db:"website" json:"website"`
	DateOfBirth         *time.Time   `db:"date_of_birth" json:"date_of_birth,omitempty"`
	AvatarURL           *string      `db:"avatar_url" json:"avatar_url,omitempty"`
	CreatedAt           time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at" json:"updated_at"`
}

// IsVerified reports whether the account completed email verification.
func (u *User) IsVerified() bool {
	return u.VerifyStatus == Verified
}

// HasPendingEmailVerification reports whether an unconsumed email
// verification token is stored for the user.
func (u *User) HasPendingEmailVerification() bool {
	return u.EmailVerifyToken != ""
}

// HasPendingPasswordReset reports whether an unconsumed password reset
// token is stored for the user.
func (u *User) HasPendingPasswordReset() bool {
	return u.ForgotPasswordToken != ""
}

// UserPatch is a partial update of a user's profile fields. Nil fields are
// left unchanged.
type UserPatch struct {
	Name        *string
	Username    *string
	Bio         *string
	Location    *string
	Website     *string
	DateOfBirth *time.Time
	AvatarURL   *string
}

// IsEmpty reports whether the patch changes nothing.
func (p UserPatch) IsEmpty() bool {
	return p.Name == nil && p.Username == nil && p.Bio == nil && p.Location == nil &&
		p.Website == nil && p.DateOfBirth == nil && p.AvatarURL == nil
}
