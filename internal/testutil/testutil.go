// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"codeberg.org/oliverandrich/go-social-auth/internal/database"
	"codeberg.org/oliverandrich/go-social-auth/internal/models"
	"codeberg.org/oliverandrich/go-social-auth/internal/repository"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// TestPassword is the plaintext password of users created by NewTestUser.
const TestPassword = "correct-horse-battery"

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestUser creates an unverified test user with TestPassword.
func NewTestUser(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         email,
		PasswordHash: string(hash),
		VerifyStatus: models.Unverified,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

// Mail is a message captured by RecordingMailer.
type Mail struct {
	Kind  string
	To    string
	Name  string
	Token string
}

// RecordingMailer records messages instead of sending them. If Err is set
// every send fails with it after recording.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []Mail
	Err  error
}

// SendVerification records a verification mail.
func (m *RecordingMailer) SendVerification(_ context.Context, to, name, token string) error {
	return m.record(Mail{Kind: "verify_email", To: to, Name: name, Token: token})
}

// SendPasswordReset records a password reset mail.
func (m *RecordingMailer) SendPasswordReset(_ context.Context, to, name, token string) error {
	return m.record(Mail{Kind: "forgot_password", To: to, Name: name, Token: token})
}

func (m *RecordingMailer) record(mail Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return m.Err
}

// Sent returns a copy of all recorded messages.
func (m *RecordingMailer) Sent() []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Mail(nil), m.sent...)
}

// Last returns the most recent message. It fails the test if none was sent.
func (m *RecordingMailer) Last(t *testing.T) Mail {
	t.Helper()
	sent := m.Sent()
	require.NotEmpty(t, sent, "no mail sent")
	return sent[len(sent)-1]
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}
