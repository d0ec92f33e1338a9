package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"digest_bot/internal/model"
	"digest_bot/internal/source"
	"digest_bot/internal/storage"
)

type fakeChannelClient struct {
	token string
}

func (c *fakeChannelClient) History(context.Context, string, int) ([]model.RawMessage, error) {
	return nil, nil
}

func (c *fakeChannelClient) DownloadMedia(context.Context, string, int64) ([]byte, error) {
	return nil, nil
}

// fakeLogin scripts the external login protocol. codeErr and passwordErr
// are consumed once each, so a retry after an invalid code can succeed.
type fakeLogin struct {
	codeErr     error
	passwordErr error
	startErr    error
	restoreErr  error

	startCalls   int
	restoreCalls int
}

func (f *fakeLogin) StartLogin(_ context.Context, phone string) (string, error) {
	f.startCalls++
	if f.startErr != nil {
		return "", f.startErr
	}
	return "hash-" + phone, nil
}

func (f *fakeLogin) SubmitCode(context.Context, string, string, string) error {
	err := f.codeErr
	f.codeErr = nil
	return err
}

func (f *fakeLogin) SubmitPassword(context.Context, string) error {
	err := f.passwordErr
	f.passwordErr = nil
	return err
}

func (f *fakeLogin) ExportToken(context.Context) (string, error) {
	return "session-token", nil
}

func (f *fakeLogin) Restore(_ context.Context, token string) (source.ChannelClient, error) {
	f.restoreCalls++
	if f.restoreErr != nil {
		return nil, f.restoreErr
	}
	return &fakeChannelClient{token: token}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAuthFlowWithSecondFactor(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	login := &fakeLogin{codeErr: ErrPasswordNeeded}
	m := NewManager(login, store, testLogger())

	if got := m.State(); got != NotStarted {
		t.Fatalf("initial state = %v, want NotStarted", got)
	}

	if err := m.StartAuth(ctx, "+15551234567"); err != nil {
		t.Fatalf("StartAuth() error = %v", err)
	}
	if got := m.State(); got != WaitingCode {
		t.Fatalf("state after StartAuth = %v, want WaitingCode", got)
	}

	state, err := m.ConfirmCode(ctx, "12345")
	if err != nil {
		t.Fatalf("ConfirmCode() error = %v", err)
	}
	if state != WaitingPassword {
		t.Fatalf("ConfirmCode() state = %v, want WaitingPassword", state)
	}

	state, err = m.ConfirmPassword(ctx, "hunter2")
	if err != nil {
		t.Fatalf("ConfirmPassword() error = %v", err)
	}
	if state != Authorized {
		t.Fatalf("ConfirmPassword() state = %v, want Authorized", state)
	}

	sess, err := store.ActiveAuthorizedSession(ctx)
	if err != nil {
		t.Fatalf("ActiveAuthorizedSession() error = %v", err)
	}
	if sess.PhoneNumber != "+15551234567" || sess.SessionToken != "session-token" {
		t.Errorf("persisted session = %+v, want phone +15551234567 with session-token", sess)
	}
}

func TestAuthFlowInvalidCodeKeepsWaiting(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	login := &fakeLogin{codeErr: ErrCodeInvalid}
	m := NewManager(login, store, testLogger())

	if err := m.StartAuth(ctx, "+15551234567"); err != nil {
		t.Fatalf("StartAuth() error = %v", err)
	}

	state, err := m.ConfirmCode(ctx, "00000")
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("ConfirmCode(wrong) error = %v, want ErrCodeInvalid", err)
	}
	if state != WaitingCode {
		t.Fatalf("ConfirmCode(wrong) state = %v, want WaitingCode", state)
	}

	// The scripted error is consumed; the retry succeeds.
	state, err = m.ConfirmCode(ctx, "12345")
	if err != nil {
		t.Fatalf("ConfirmCode(right) error = %v", err)
	}
	if state != Authorized {
		t.Fatalf("ConfirmCode(right) state = %v, want Authorized", state)
	}
}

func TestAuthFlowExpiredCodeResets(t *testing.T) {
	ctx := context.Background()
	m := NewManager(&fakeLogin{codeErr: ErrCodeExpired}, newTestStore(t), testLogger())

	if err := m.StartAuth(ctx, "+15551234567"); err != nil {
		t.Fatalf("StartAuth() error = %v", err)
	}
	state, err := m.ConfirmCode(ctx, "12345")
	if !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("ConfirmCode() error = %v, want ErrCodeExpired", err)
	}
	if state != NotStarted {
		t.Fatalf("ConfirmCode() state = %v, want NotStarted (caller restarts the flow)", state)
	}
}

func TestAuthFlowWrongPasswordKeepsWaiting(t *testing.T) {
	ctx := context.Background()
	login := &fakeLogin{codeErr: ErrPasswordNeeded, passwordErr: ErrPasswordInvalid}
	m := NewManager(login, newTestStore(t), testLogger())

	if err := m.StartAuth(ctx, "+15551234567"); err != nil {
		t.Fatalf("StartAuth() error = %v", err)
	}
	if _, err := m.ConfirmCode(ctx, "12345"); err != nil {
		t.Fatalf("ConfirmCode() error = %v", err)
	}

	state, err := m.ConfirmPassword(ctx, "wrong")
	if !errors.Is(err, ErrPasswordInvalid) {
		t.Fatalf("ConfirmPassword(wrong) error = %v, want ErrPasswordInvalid", err)
	}
	if state != WaitingPassword {
		t.Fatalf("ConfirmPassword(wrong) state = %v, want WaitingPassword", state)
	}

	state, err = m.ConfirmPassword(ctx, "hunter2")
	if err != nil {
		t.Fatalf("ConfirmPassword(right) error = %v", err)
	}
	if state != Authorized {
		t.Fatalf("ConfirmPassword(right) state = %v, want Authorized", state)
	}
}

func TestConfirmCodeOutOfOrder(t *testing.T) {
	ctx := context.Background()
	m := NewManager(&fakeLogin{}, newTestStore(t), testLogger())

	if _, err := m.ConfirmCode(ctx, "12345"); err == nil {
		t.Error("ConfirmCode() before StartAuth error = nil, want rejection")
	}
	if _, err := m.ConfirmPassword(ctx, "pw"); err == nil {
		t.Error("ConfirmPassword() before StartAuth error = nil, want rejection")
	}
}

func TestLogoutClearsSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	m := NewManager(&fakeLogin{}, store, testLogger())

	if err := m.StartAuth(ctx, "+15551234567"); err != nil {
		t.Fatalf("StartAuth() error = %v", err)
	}
	if _, err := m.ConfirmCode(ctx, "12345"); err != nil {
		t.Fatalf("ConfirmCode() error = %v", err)
	}

	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if got := m.State(); got != NotStarted {
		t.Errorf("state after Logout = %v, want NotStarted", got)
	}
	if _, err := store.ActiveAuthorizedSession(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ActiveAuthorizedSession() after logout error = %v, want ErrNotFound", err)
	}
	if _, err := m.Client(ctx); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Client() after logout error = %v, want ErrNotAuthorized", err)
	}
}

func TestClientRestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// A previous process authorized and persisted a session.
	if err := store.UpsertPendingSession(ctx, "+15551234567", "hash"); err != nil {
		t.Fatalf("UpsertPendingSession() error = %v", err)
	}
	if err := store.AuthorizeSession(ctx, "+15551234567", "old-token"); err != nil {
		t.Fatalf("AuthorizeSession() error = %v", err)
	}

	login := &fakeLogin{}
	m := NewManager(login, store, testLogger())

	client, err := m.Client(ctx)
	if err != nil {
		t.Fatalf("Client() error = %v", err)
	}
	if got := client.(*fakeChannelClient).token; got != "old-token" {
		t.Errorf("restored from token %q, want %q", got, "old-token")
	}
	if got := m.State(); got != Authorized {
		t.Errorf("state after restore = %v, want Authorized", got)
	}
	if login.startCalls != 0 {
		t.Errorf("StartLogin calls = %d, want 0 (no challenge flow on restore)", login.startCalls)
	}

	// The connected client is cached.
	if _, err := m.Client(ctx); err != nil {
		t.Fatalf("second Client() error = %v", err)
	}
	if login.restoreCalls != 1 {
		t.Errorf("Restore calls = %d, want 1", login.restoreCalls)
	}
}

func TestClientRestoreFailureMarksUnauthorized(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.UpsertPendingSession(ctx, "+15551234567", "hash"); err != nil {
		t.Fatalf("UpsertPendingSession() error = %v", err)
	}
	if err := store.AuthorizeSession(ctx, "+15551234567", "stale-token"); err != nil {
		t.Fatalf("AuthorizeSession() error = %v", err)
	}

	login := &fakeLogin{restoreErr: errors.New("token revoked")}
	m := NewManager(login, store, testLogger())

	if _, err := m.Client(ctx); err == nil {
		t.Fatal("Client() error = nil, want restore failure")
	}
	if got := m.State(); got != NotStarted {
		t.Errorf("state after failed restore = %v, want NotStarted", got)
	}
	if _, err := store.ActiveAuthorizedSession(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("session still authorized after failed restore, error = %v, want ErrNotFound", err)
	}
	if m.Ready(ctx) {
		t.Error("Ready() = true after failed restore, want false")
	}
}

func TestNewIdentityDeactivatesPrevious(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	m := NewManager(&fakeLogin{}, store, testLogger())

	if err := m.StartAuth(ctx, "+15551111111"); err != nil {
		t.Fatalf("StartAuth() error = %v", err)
	}
	if _, err := m.ConfirmCode(ctx, "11111"); err != nil {
		t.Fatalf("ConfirmCode() error = %v", err)
	}
	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if err := m.StartAuth(ctx, "+15552222222"); err != nil {
		t.Fatalf("StartAuth() error = %v", err)
	}
	if _, err := m.ConfirmCode(ctx, "22222"); err != nil {
		t.Fatalf("ConfirmCode() error = %v", err)
	}

	sess, err := store.ActiveAuthorizedSession(ctx)
	if err != nil {
		t.Fatalf("ActiveAuthorizedSession() error = %v", err)
	}
	if sess.PhoneNumber != "+15552222222" {
		t.Errorf("active session phone = %q, want +15552222222", sess.PhoneNumber)
	}
}
