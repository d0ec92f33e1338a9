// Package auth manages the userbot login flow and hands out a connected
// channel client once a session is authorized.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"digest_bot/internal/source"
	"digest_bot/internal/storage"
)

// State is the position of the login flow.
type State int

// Login flow states.
const (
	NotStarted State = iota
	WaitingCode
	WaitingPassword
	Authorized
	StateError
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case WaitingCode:
		return "waiting for code"
	case WaitingPassword:
		return "waiting for password"
	case Authorized:
		return "authorized"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Typed login protocol outcomes. The bot surfaces these to the operator;
// none of them crash the pipeline.
var (
	ErrNotAuthorized   = errors.New("no authorized session")
	ErrCodeInvalid     = errors.New("confirmation code is invalid")
	ErrCodeExpired     = errors.New("confirmation code expired, restart login")
	ErrPasswordNeeded  = errors.New("two-factor password required")
	ErrPasswordInvalid = errors.New("password is invalid")
)

// LoginClient is the external login protocol the manager drives. SubmitCode
// and SubmitPassword report protocol outcomes through the typed errors
// above; any other error is a transport failure.
type LoginClient interface {
	StartLogin(ctx context.Context, phone string) (codeHash string, err error)
	SubmitCode(ctx context.Context, phone, codeHash, code string) error
	SubmitPassword(ctx context.Context, password string) error
	ExportToken(ctx context.Context) (string, error)
	Restore(ctx context.Context, token string) (source.ChannelClient, error)
}

// Manager is the login state machine. It persists session rows so an
// authorized session survives restarts, and implements
// source.ClientProvider for the authenticated content source.
type Manager struct {
	login LoginClient
	store storage.Storage
	log   *slog.Logger

	mu           sync.Mutex
	state        State
	phone        string
	codeHash     string
	client       source.ChannelClient
	restoreTried bool
}

// NewManager creates a Manager in the NotStarted state. A previously
// authorized session is picked up lazily on the first Client call.
func NewManager(login LoginClient, store storage.Storage, log *slog.Logger) *Manager {
	return &Manager{
		login: login,
		store: store,
		log:   log,
		state: NotStarted,
	}
}

// State returns the current login flow state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Phone returns the identity of the in-flight or authorized login, if any.
func (m *Manager) Phone() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phone
}

// StartAuth begins a login for the given phone number and moves the flow to
// WaitingCode. Restarting an unfinished flow is allowed; an authorized
// session must be logged out first.
func (m *Manager) StartAuth(ctx context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Authorized:
		return errors.New("already authorized, use logout first")
	case NotStarted, WaitingCode, WaitingPassword, StateError:
	}

	codeHash, err := m.login.StartLogin(ctx, phone)
	if err != nil {
		m.state = StateError
		return fmt.Errorf("start login: %w", err)
	}
	if err := m.store.UpsertPendingSession(ctx, phone, codeHash); err != nil {
		m.state = StateError
		return fmt.Errorf("persist pending session: %w", err)
	}

	m.state = WaitingCode
	m.phone = phone
	m.codeHash = codeHash
	return nil
}

// ConfirmCode submits the confirmation code. The returned state tells the
// caller where the flow went: Authorized, WaitingPassword when a second
// factor is configured, WaitingCode again on an invalid code, or NotStarted
// when the code expired and the flow must be restarted.
func (m *Manager) ConfirmCode(ctx context.Context, code string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != WaitingCode {
		return m.state, fmt.Errorf("cannot confirm code while %s", m.state)
	}

	err := m.login.SubmitCode(ctx, m.phone, m.codeHash, code)
	switch {
	case err == nil:
		if err := m.finishAuthorize(ctx); err != nil {
			return m.state, err
		}
		return Authorized, nil
	case errors.Is(err, ErrPasswordNeeded):
		m.state = WaitingPassword
		return WaitingPassword, nil
	case errors.Is(err, ErrCodeInvalid):
		return WaitingCode, ErrCodeInvalid
	case errors.Is(err, ErrCodeExpired):
		m.state = NotStarted
		m.codeHash = ""
		return NotStarted, ErrCodeExpired
	default:
		m.state = StateError
		return StateError, fmt.Errorf("submit code: %w", err)
	}
}

// ConfirmPassword submits the two-factor password.
func (m *Manager) ConfirmPassword(ctx context.Context, password string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != WaitingPassword {
		return m.state, fmt.Errorf("cannot confirm password while %s", m.state)
	}

	err := m.login.SubmitPassword(ctx, password)
	switch {
	case err == nil:
		if err := m.finishAuthorize(ctx); err != nil {
			return m.state, err
		}
		return Authorized, nil
	case errors.Is(err, ErrPasswordInvalid):
		return WaitingPassword, ErrPasswordInvalid
	default:
		m.state = StateError
		return StateError, fmt.Errorf("submit password: %w", err)
	}
}

// finishAuthorize exports and persists the session token. Persisting
// authorization deactivates every session row for other identities.
// Caller holds the lock.
func (m *Manager) finishAuthorize(ctx context.Context) error {
	token, err := m.login.ExportToken(ctx)
	if err != nil {
		m.state = StateError
		return fmt.Errorf("export session token: %w", err)
	}
	if err := m.store.AuthorizeSession(ctx, m.phone, token); err != nil {
		m.state = StateError
		return fmt.Errorf("persist authorized session: %w", err)
	}

	m.state = Authorized
	m.codeHash = ""
	m.client = nil
	m.restoreTried = false
	m.log.Info("userbot authorized", "phone", m.phone)
	return nil
}

// Logout clears the login state and deactivates all persisted sessions.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.DeactivateAllSessions(ctx); err != nil {
		return fmt.Errorf("deactivate sessions: %w", err)
	}
	m.state = NotStarted
	m.phone = ""
	m.codeHash = ""
	m.client = nil
	m.restoreTried = false
	return nil
}

// Client returns a connected channel client, restoring it from the
// persisted session token when needed. After a restart this is where a
// previously authorized session comes back without repeating the challenge
// flow; a failed restore marks the row unauthorized and resets the state.
func (m *Manager) Client(ctx context.Context) (source.ChannelClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return m.client, nil
	}
	if m.state != Authorized && m.restoreTried {
		return nil, ErrNotAuthorized
	}
	m.restoreTried = true

	sess, err := m.store.ActiveAuthorizedSession(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		if m.state == Authorized {
			m.state = NotStarted
		}
		return nil, ErrNotAuthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	client, err := m.login.Restore(ctx, sess.SessionToken)
	if err != nil {
		if markErr := m.store.MarkSessionUnauthorized(ctx, sess.ID); markErr != nil {
			m.log.Error("mark session unauthorized", "session_id", sess.ID, "error", markErr)
		}
		m.state = NotStarted
		m.log.Warn("session restore failed", "phone", sess.PhoneNumber, "error", err)
		return nil, fmt.Errorf("restore session: %w", err)
	}

	m.client = client
	m.state = Authorized
	m.phone = sess.PhoneNumber
	if err := m.store.TouchSessionUsed(ctx, sess.ID); err != nil {
		m.log.Warn("touch session", "session_id", sess.ID, "error", err)
	}
	m.log.Info("userbot session restored", "phone", sess.PhoneNumber)
	return client, nil
}

// Ready reports whether an authorized, connected client is available.
func (m *Manager) Ready(ctx context.Context) bool {
	_, err := m.Client(ctx)
	return err == nil
}
