// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"time"

	"codeberg.org/oliverandrich/go-social-auth/internal/appcontext"
	"codeberg.org/oliverandrich/go-social-auth/internal/middleware"
	"codeberg.org/oliverandrich/go-social-auth/internal/models"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/profile"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/session"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/verification"
	"github.com/labstack/echo/v4"
)

// UserHandlers contains the handlers of the /users routes.
type UserHandlers struct {
	accounts     *auth.Service
	sessions     *session.Manager
	verification *verification.Service
	profiles     *profile.Service
	cookies      *session.Cookies
}

// NewUsers creates a new UserHandlers instance.
func NewUsers(accounts *auth.Service, sessions *session.Manager, verification *verification.Service, profiles *profile.Service, cookies *session.Cookies) *UserHandlers {
	return &UserHandlers{
		accounts:     accounts,
		sessions:     sessions,
		verification: verification,
		profiles:     profiles,
		cookies:      cookies,
	}
}

// RegisterRequest is the request body for registration.
type RegisterRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Register creates an account and opens its first session.
func (h *UserHandlers) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidRequest
	}
	if req.Password != req.ConfirmPassword {
		return errPasswordMismatch
	}

	reg, err := h.sessions.Register(c.Request().Context(), session.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		return err
	}

	return message(c, "register_success", echo.Map{
		"access_token":  reg.Tokens.AccessToken,
		"refresh_token": reg.Tokens.RefreshToken,
		"user":          reg.User,
	})
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login checks the credentials, opens a session and sets the session cookie.
func (h *UserHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidRequest
	}

	ctx := c.Request().Context()
	user, err := h.accounts.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	tokens, err := h.sessions.Login(ctx, user.ID, user.VerifyStatus)
	if err != nil {
		return err
	}
	if err := h.setSessionCookie(c, tokens.AccessToken); err != nil {
		return err
	}

	return message(c, "login_success", echo.Map{"user": user, "tokens": tokens})
}

// RefreshTokenRequest carries a refresh token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout revokes the presented refresh token and clears the session cookie.
func (h *UserHandlers) Logout(c echo.Context) error {
	cc, err := subject(c)
	if err != nil {
		return err
	}
	var req RefreshTokenRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return errInvalidRequest
	}
	if err := h.sessions.Logout(c.Request().Context(), cc.UserID(), req.RefreshToken); err != nil {
		return err
	}
	if h.cookies != nil {
		c.SetCookie(h.cookies.Clear())
	}
	return message(c, "logout_success", nil)
}

// RefreshToken rotates a refresh token into a new token pair.
func (h *UserHandlers) RefreshToken(c echo.Context) error {
	var req RefreshTokenRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return errInvalidRequest
	}
	tokens, err := h.sessions.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	if err := h.setSessionCookie(c, tokens.AccessToken); err != nil {
		return err
	}
	return message(c, "refresh_token_success", echo.Map{"result": tokens})
}

// VerifyEmailRequest is the request body for email verification.
type VerifyEmailRequest struct {
	EmailVerifyToken string `json:"email_verify_token"`
}

// VerifyEmail consumes an email verification token. A replayed token
// answers "already verified" without issuing tokens.
func (h *UserHandlers) VerifyEmail(c echo.Context) error {
	var req VerifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidRequest
	}

	result, err := h.verification.ConfirmEmailVerification(c.Request().Context(), req.EmailVerifyToken)
	if err != nil {
		return err
	}
	if result.Outcome != verification.OutcomeVerified {
		return message(c, verificationMessage(result.Outcome), nil)
	}

	if err := h.setSessionCookie(c, result.Tokens.AccessToken); err != nil {
		return err
	}
	return message(c, "email_verify_success", echo.Map{"result": result.Tokens})
}

// ResendVerifyEmail rotates the verification token and mails it.
func (h *UserHandlers) ResendVerifyEmail(c echo.Context) error {
	cc, err := subject(c)
	if err != nil {
		return err
	}
	outcome, err := h.verification.RequestEmailVerification(c.Request().Context(), cc.UserID())
	if err != nil {
		return err
	}
	return message(c, verificationMessage(outcome), nil)
}

// ResendVerifyTokenMail mails the outstanding verification token again.
func (h *UserHandlers) ResendVerifyTokenMail(c echo.Context) error {
	cc, err := subject(c)
	if err != nil {
		return err
	}
	outcome, err := h.verification.ResendVerificationMail(c.Request().Context(), cc.UserID())
	if err != nil {
		return err
	}
	return message(c, verificationMessage(outcome), nil)
}

// ForgotPasswordRequest is the request body for requesting a password reset.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword mails a password reset token.
func (h *UserHandlers) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidRequest
	}
	outcome, err := h.verification.RequestPasswordReset(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	if outcome == verification.OutcomeAlreadyRequested {
		return message(c, "forgot_password_already_requested", nil)
	}
	return message(c, "forgot_password_check_email", nil)
}

// ForgotPasswordTokenRequest carries a password reset token.
type ForgotPasswordTokenRequest struct {
	ForgotPasswordToken string `json:"forgot_password_token"`
}

// VerifyForgotPassword checks a password reset token without consuming it.
func (h *UserHandlers) VerifyForgotPassword(c echo.Context) error {
	var req ForgotPasswordTokenRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidRequest
	}
	if _, err := h.verification.VerifyPasswordResetToken(c.Request().Context(), req.ForgotPasswordToken); err != nil {
		return err
	}
	return message(c, "verify_forgot_password_success", nil)
}

// ResetPasswordRequest is the request body for completing a password reset.
type ResetPasswordRequest struct {
	ForgotPasswordToken string `json:"forgot_password_token"`
	Password            string `json:"password"`
	ConfirmPassword     string `json:"confirm_password"`
}

// ResetPassword consumes a password reset token and sets the new password.
func (h *UserHandlers) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidRequest
	}
	if req.Password != req.ConfirmPassword {
		return errPasswordMismatch
	}
	if err := h.verification.ConfirmPasswordReset(c.Request().Context(), req.ForgotPasswordToken, req.Password); err != nil {
		return err
	}
	return message(c, "reset_password_success", nil)
}

// GetMe returns the profile of the authenticated user.
func (h *UserHandlers) GetMe(c echo.Context) error {
	cc, err := subject(c)
	if err != nil {
		return err
	}
	p, err := h.profiles.GetProfile(c.Request().Context(), cc.UserID())
	if err != nil {
		return err
	}
	return message(c, "get_profile_success", echo.Map{"user": p})
}

// GetUser returns the profile of the user named in the path. An
// authenticated caller also learns whether they follow that user.
func (h *UserHandlers) GetUser(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := h.profiles.GetProfile(ctx, c.Param("user_id"))
	if err != nil {
		return err
	}

	fields := echo.Map{"user": p}
	if cc, ok := appcontext.From(c); ok && cc.IsAuthenticated() && cc.UserID() != p.ID {
		following, err := h.profiles.IsFollowing(ctx, cc.UserID(), p.ID)
		if err != nil {
			return err
		}
		fields["is_following"] = following
	}
	return message(c, "get_profile_success", fields)
}

// UpdateMeRequest is the request body for a partial profile update. Absent
// fields are left unchanged.
type UpdateMeRequest struct {
	Name        *string    `json:"name"`
	Username    *string    `json:"username"`
	Bio         *string    `json:"bio"`
	Location    *string    `json:"location"`
	Website     *string    `json:"website"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	AvatarURL   *string    `json:"avatar_url"`
}

// UpdateMe updates the authenticated user's profile. A taken or malformed
// username is answered with an explanatory message and nothing is changed.
func (h *UserHandlers) UpdateMe(c echo.Context) error {
	cc, err := subject(c)
	if err != nil {
		return err
	}
	var req UpdateMeRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidRequest
	}

	user, err := h.profiles.UpdateProfile(c.Request().Context(), cc.UserID(), models.UserPatch{
		Name:        req.Name,
		Username:    req.Username,
		Bio:         req.Bio,
		Location:    req.Location,
		Website:     req.Website,
		DateOfBirth: req.DateOfBirth,
		AvatarURL:   req.AvatarURL,
	})
	switch {
	case errors.Is(err, profile.ErrUsernameTaken):
		return message(c, "error_username_taken", nil)
	case errors.Is(err, profile.ErrInvalidUsernameFormat):
		return message(c, "error_invalid_username_format", nil)
	case err != nil:
		return err
	}
	return message(c, "update_profile_success", echo.Map{"user": user})
}

// Search finds users by display name.
func (h *UserHandlers) Search(c echo.Context) error {
	users, err := h.profiles.SearchByName(c.Request().Context(), c.QueryParam("name"))
	if err != nil {
		return err
	}
	return message(c, "search_success", echo.Map{"users": users})
}

// FollowRequest is the request body for following a user.
type FollowRequest struct {
	FollowedUserID string `json:"followed_user_id"`
}

// Follow makes the authenticated user follow another user.
func (h *UserHandlers) Follow(c echo.Context) error {
	cc, err := subject(c)
	if err != nil {
		return err
	}
	var req FollowRequest
	if err := c.Bind(&req); err != nil || req.FollowedUserID == "" {
		return errInvalidRequest
	}
	outcome, err := h.profiles.Follow(c.Request().Context(), cc.UserID(), req.FollowedUserID)
	if err != nil {
		return err
	}
	return message(c, followMessage(outcome), nil)
}

// Unfollow removes the follow edge to the user named in the path.
func (h *UserHandlers) Unfollow(c echo.Context) error {
	cc, err := subject(c)
	if err != nil {
		return err
	}
	outcome, err := h.profiles.Unfollow(c.Request().Context(), cc.UserID(), c.Param("user_id"))
	if err != nil {
		return err
	}
	return message(c, followMessage(outcome), nil)
}

// ChangePasswordRequest is the request body for changing the password.
type ChangePasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ChangePassword sets a new password for the authenticated user.
func (h *UserHandlers) ChangePassword(c echo.Context) error {
	cc, err := subject(c)
	if err != nil {
		return err
	}
	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidRequest
	}
	if req.Password != req.ConfirmPassword {
		return errPasswordMismatch
	}
	if err := h.sessions.ChangePassword(c.Request().Context(), cc.UserID(), req.Password); err != nil {
		return err
	}
	return message(c, "change_password_success", nil)
}

func (h *UserHandlers) setSessionCookie(c echo.Context, accessToken string) error {
	if h.cookies == nil {
		return nil
	}
	cookie, err := h.cookies.Create(accessToken)
	if err != nil {
		return err
	}
	c.SetCookie(cookie)
	return nil
}

// subject returns the context of an authenticated request.
func subject(c echo.Context) (*appcontext.Context, error) {
	cc, ok := appcontext.From(c)
	if !ok || !cc.IsAuthenticated() {
		return nil, middleware.ErrMissingToken
	}
	return cc, nil
}

func verificationMessage(o verification.Outcome) string {
	switch o {
	case verification.OutcomeVerified:
		return "email_verify_success"
	case verification.OutcomeAlreadyVerified:
		return "email_already_verified"
	}
	return "resend_verify_email_success"
}

func followMessage(o profile.Outcome) string {
	switch o {
	case profile.OutcomeAlreadyFollowing:
		return "already_following"
	case profile.OutcomeUnfollowed:
		return "unfollow_success"
	case profile.OutcomeNotFollowing:
		return "not_following"
	}
	return "follow_success"
}
