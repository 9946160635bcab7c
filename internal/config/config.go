// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Token    TokenConfig
	Session  SessionConfig
	SMTP     SMTPConfig
	Auth     AuthConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type TokenConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Secret            string // HMAC signing key, auto-generated if empty in dev
	Issuer            string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	EmailVerifyTTL    time.Duration
	ForgotPasswordTTL time.Duration
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string // empty disables delivery, mails are logged instead
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// Enabled reports whether an SMTP server is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type AuthConfig struct { //nolint:govet // fieldalignment not critical for config structs
	MinPasswordLength              int
	RevokeSessionsOnPasswordChange bool
	FrontendURL                    string // base of the links in verification and reset mails
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Token: TokenConfig{
			Secret:            cmd.String("token-secret"),
			Issuer:            cmd.String("token-issuer"),
			AccessTTL:         cmd.Duration("token-access-ttl"),
			RefreshTTL:        cmd.Duration("token-refresh-ttl"),
			EmailVerifyTTL:    cmd.Duration("token-email-verify-ttl"),
			ForgotPasswordTTL: cmd.Duration("token-forgot-password-ttl"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Auth: AuthConfig{
			MinPasswordLength:              int(cmd.Int("min-password-length")),
			RevokeSessionsOnPasswordChange: cmd.Bool("revoke-sessions-on-password-change"),
			FrontendURL:                    cmd.String("frontend-url"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	if cfg.Auth.FrontendURL == "" {
		cfg.Auth.FrontendURL = cfg.Server.BaseURL
	}
	cfg.Auth.FrontendURL = strings.TrimSuffix(cfg.Auth.FrontendURL, "/")

	return cfg
}

// IsDevelopment reports whether the server binds to a local address.
// Missing keys are generated instead of failing startup in that case.
func (c *Config) IsDevelopment() bool {
	return IsLocalhost(c.Server.Host)
}

// SecureCookies reports whether cookies must carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.Server.BaseURL, "https://")
}

// buildBaseURL derives the public URL from host and port. TLS is terminated
// in front of the service, so the derived scheme is always http.
func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	if cfg.Server.Port == 80 {
		return fmt.Sprintf("http://%s", host)
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL of the API",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		// Token flags
		&cli.StringFlag{
			Name:    "token-secret",
			Usage:   "Token signing secret (auto-generated if empty in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_SECRET"), toml.TOML("token.secret", configFile)),
		},
		&cli.StringFlag{
			Name:    "token-issuer",
			Value:   "go-social-auth",
			Usage:   "Issuer claim of signed tokens",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_ISSUER"), toml.TOML("token.issuer", configFile)),
		},
		&cli.DurationFlag{
			Name:    "token-access-ttl",
			Value:   15 * time.Minute,
			Usage:   "Lifetime of access tokens",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_ACCESS_TTL"), toml.TOML("token.access_ttl", configFile)),
		},
		&cli.DurationFlag{
			Name:    "token-refresh-ttl",
			Value:   100 * 24 * time.Hour,
			Usage:   "Lifetime of refresh tokens",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_REFRESH_TTL"), toml.TOML("token.refresh_ttl", configFile)),
		},
		&cli.DurationFlag{
			Name:    "token-email-verify-ttl",
			Value:   7 * 24 * time.Hour,
			Usage:   "Lifetime of email verification tokens",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_EMAIL_VERIFY_TTL"), toml.TOML("token.email_verify_ttl", configFile)),
		},
		&cli.DurationFlag{
			Name:    "token-forgot-password-ttl",
			Value:   7 * 24 * time.Hour,
			Usage:   "Lifetime of password reset tokens",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_FORGOT_PASSWORD_TTL"), toml.TOML("token.forgot_password_ttl", configFile)),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_COOKIE_NAME"), toml.TOML("session.cookie_name", configFile)),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   604800, // 7 days in seconds
			Usage:   "Session max age in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_MAX_AGE"), toml.TOML("session.max_age", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_HASH_KEY"), toml.TOML("session.hash_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_BLOCK_KEY"), toml.TOML("session.block_key", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (mails are logged if empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "Go Social Auth",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require STARTTLS (implicit TLS on port 465)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		// Auth flags
		&cli.IntFlag{
			Name:    "min-password-length",
			Value:   8,
			Usage:   "Minimum password length",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MIN_PASSWORD_LENGTH"), toml.TOML("auth.min_password_length", configFile)),
		},
		&cli.BoolFlag{
			Name:    "revoke-sessions-on-password-change",
			Usage:   "Revoke all refresh tokens when a password is changed",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REVOKE_SESSIONS_ON_PASSWORD_CHANGE"), toml.TOML("auth.revoke_sessions_on_password_change", configFile)),
		},
		&cli.StringFlag{
			Name:    "frontend-url",
			Usage:   "Frontend URL used in mail links (defaults to base_url)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("FRONTEND_URL"), toml.TOML("auth.frontend_url", configFile)),
		},
	}
}
