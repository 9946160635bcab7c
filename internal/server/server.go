// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/go-social-auth/internal/config"
	"codeberg.org/oliverandrich/go-social-auth/internal/database"
	"codeberg.org/oliverandrich/go-social-auth/internal/handlers"
	"codeberg.org/oliverandrich/go-social-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-social-auth/internal/middleware"
	"codeberg.org/oliverandrich/go-social-auth/internal/repository"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/email"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/profile"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/session"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/token"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/verification"
	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

// janitorInterval is how often expired refresh tokens are purged.
const janitorInterval = time.Hour

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database, migrations are applied on open
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	mail, err := newMailer(cfg)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, db, mail)
	if err != nil {
		return err
	}

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.ErrorHandler

	setupMiddleware(e, cfg)
	setupRoutes(e, a)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go runJanitor(ctx, a.repo, janitorInterval)

	return startWithGracefulShutdown(ctx, e, cfg)
}

// app holds the services and handlers of a running server.
type app struct {
	repo     *repository.Repository
	tokens   *token.Service
	cookies  *session.Cookies
	handlers *handlers.Handlers
	users    *handlers.UserHandlers
}

// mailer delivers the verification and password reset mails.
type mailer interface {
	SendVerification(ctx context.Context, to, name, token string) error
	SendPasswordReset(ctx context.Context, to, name, token string) error
}

func newApp(cfg *config.Config, db *sqlx.DB, mail mailer) (*app, error) {
	repo := repository.New(db)

	secret, err := tokenSecret(cfg)
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewService(token.Config{
		Secret:            secret,
		Issuer:            cfg.Token.Issuer,
		AccessTTL:         cfg.Token.AccessTTL,
		RefreshTTL:        cfg.Token.RefreshTTL,
		EmailVerifyTTL:    cfg.Token.EmailVerifyTTL,
		ForgotPasswordTTL: cfg.Token.ForgotPasswordTTL,
	}, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}

	cookies, err := session.NewCookies(&cfg.Session, cfg.SecureCookies())
	if err != nil {
		return nil, fmt.Errorf("failed to create session cookies: %w", err)
	}

	accounts := auth.NewService(repo, &cfg.Auth)
	return &app{
		repo:     repo,
		tokens:   tokens,
		cookies:  cookies,
		handlers: handlers.New(repo),
		users: handlers.NewUsers(
			accounts,
			session.NewManager(repo, tokens, accounts, mail, &cfg.Auth),
			verification.NewService(repo, tokens, accounts, mail),
			profile.NewService(repo),
			cookies,
		),
	}, nil
}

// newMailer returns the SMTP mailer, or a mailer that only logs when no
// SMTP server is configured.
func newMailer(cfg *config.Config) (mailer, error) {
	if !cfg.SMTP.Enabled() {
		slog.Warn("smtp_disabled", "reason", "no SMTP host configured, mails are logged")
		return email.NewLogMailer(cfg.Auth.FrontendURL), nil
	}
	svc, err := email.NewService(&cfg.SMTP, cfg.Auth.FrontendURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create email service: %w", err)
	}
	return svc, nil
}

// tokenSecret returns the configured signing key. In development a random
// key is generated, so tokens do not survive a restart.
func tokenSecret(cfg *config.Config) ([]byte, error) {
	if cfg.Token.Secret != "" {
		return []byte(cfg.Token.Secret), nil
	}
	if !cfg.IsDevelopment() {
		return nil, errors.New("token secret is required when not running on localhost")
	}
	slog.Warn("token_secret_generated", "reason", "no token secret configured")
	secret := securecookie.GenerateRandomKey(32)
	if secret == nil {
		return nil, errors.New("failed to generate token secret")
	}
	return secret, nil
}

func setupRoutes(e *echo.Echo, a *app) {
	requireAccess := middleware.RequireAccess(a.tokens, a.cookies)
	requireVerified := middleware.RequireVerified()
	optionalAccess := middleware.OptionalAccess(a.tokens, a.cookies)

	e.GET("/health", a.handlers.Health)

	u := e.Group("/users")
	u.POST("/register", a.users.Register)
	u.POST("/login", a.users.Login)
	u.POST("/logout", a.users.Logout, requireAccess)
	u.POST("/refresh-token", a.users.RefreshToken)
	u.POST("/verify-email", a.users.VerifyEmail)
	u.POST("/resend-verify-email", a.users.ResendVerifyEmail, requireAccess)
	u.POST("/resend-verify-token-mail", a.users.ResendVerifyTokenMail, requireAccess)
	u.POST("/forgot-password", a.users.ForgotPassword)
	u.POST("/verify-forgot-password", a.users.VerifyForgotPassword)
	u.POST("/reset-password", a.users.ResetPassword)
	u.GET("/me", a.users.GetMe, requireAccess)
	u.PATCH("/me", a.users.UpdateMe, requireAccess, requireVerified)
	u.GET("/search", a.users.Search)
	u.GET("/:user_id", a.users.GetUser, optionalAccess)
	u.POST("/follow", a.users.Follow, requireAccess, requireVerified)
	u.DELETE("/follow/:user_id", a.users.Unfollow, requireAccess, requireVerified)
	u.PUT("/change-password", a.users.ChangePassword, requireAccess, requireVerified)
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	// Channel for server errors
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for interrupt signal, cancellation or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case <-ctx.Done():
		slog.Info("shutting down server", "reason", ctx.Err())
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
