// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email delivers the verification and password reset mails.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"codeberg.org/oliverandrich/go-social-auth/internal/config"
	"codeberg.org/oliverandrich/go-social-auth/internal/i18n"
	"github.com/wneessen/go-mail"
)

// Links builds the frontend URLs embedded in mails.
type Links struct {
	frontendURL string
}

// NewLinks creates a link builder rooted at frontendURL.
func NewLinks(frontendURL string) Links {
	return Links{frontendURL: strings.TrimSuffix(frontendURL, "/")}
}

// Verify returns the email verification link for token.
func (l Links) Verify(token string) string {
	return l.frontendURL + "/auth/verify/" + url.PathEscape(token)
}

// ResetPassword returns the password reset link for token.
func (l Links) ResetPassword(token string) string {
	return l.frontendURL + "/auth/reset-password/" + url.PathEscape(token)
}

// Message is a rendered mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// VerificationMessage renders the email verification mail.
func (l Links) VerificationMessage(ctx context.Context, to, name, token string) Message {
	return Message{
		To:      to,
		Subject: i18n.T(ctx, "email_verification_subject"),
		Body: i18n.TData(ctx, "email_verification_body", map[string]any{
			"Name":      name,
			"VerifyURL": l.Verify(token),
		}),
	}
}

// PasswordResetMessage renders the password reset mail.
func (l Links) PasswordResetMessage(ctx context.Context, to, name, token string) Message {
	return Message{
		To:      to,
		Subject: i18n.T(ctx, "password_reset_subject"),
		Body: i18n.TData(ctx, "password_reset_body", map[string]any{
			"Name":     name,
			"ResetURL": l.ResetPassword(token),
		}),
	}
}

// Service sends mails via SMTP.
type Service struct {
	cfg   *config.SMTPConfig
	links Links
}

// NewService creates a new email service.
func NewService(cfg *config.SMTPConfig, frontendURL string) (*Service, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	return &Service{
		cfg:   cfg,
		links: NewLinks(frontendURL),
	}, nil
}

// SendVerification sends the email verification link.
func (s *Service) SendVerification(ctx context.Context, to, name, token string) error {
	return s.send(ctx, s.links.VerificationMessage(ctx, to, name, token))
}

// SendPasswordReset sends the password reset link.
func (s *Service) SendPasswordReset(ctx context.Context, to, name, token string) error {
	return s.send(ctx, s.links.PasswordResetMessage(ctx, to, name, token))
}

// buildMsg assembles the go-mail message for m.
func (s *Service) buildMsg(m Message) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.Body)
	return msg, nil
}

// clientOptions returns the go-mail client options for the configuration.
func (s *Service) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Implicit TLS on 465, STARTTLS elsewhere
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

func (s *Service) send(ctx context.Context, m Message) error {
	msg, err := s.buildMsg(m)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	slog.Info("mail_sent", "subject", m.Subject)
	return nil
}

// LogMailer logs mails instead of sending them. It is used when no SMTP
// server is configured.
type LogMailer struct {
	links Links
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(frontendURL string) *LogMailer {
	return &LogMailer{links: NewLinks(frontendURL)}
}

// SendVerification logs the verification mail.
func (l *LogMailer) SendVerification(ctx context.Context, to, name, token string) error {
	l.log(ctx, "verify_email", l.links.VerificationMessage(ctx, to, name, token))
	return nil
}

// SendPasswordReset logs the password reset mail.
func (l *LogMailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	l.log(ctx, "forgot_password", l.links.PasswordResetMessage(ctx, to, name, token))
	return nil
}

func (l *LogMailer) log(ctx context.Context, kind string, m Message) {
	slog.InfoContext(ctx, "mail_not_sent", "kind", kind, "reason", "smtp_disabled")
	// The body holds the token link. Debug only.
	slog.DebugContext(ctx, "mail_body", "kind", kind, "subject", m.Subject, "body", m.Body)
}
