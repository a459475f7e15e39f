// internal/session/manager.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sessiondomain "devsync-agent/internal/domain/session"
	xerrors "devsync-agent/internal/pkg/errors"
	"devsync-agent/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
	StateRefreshing     State = "refreshing"
)

// AuthAPI is the slice of the backend client the manager needs.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*sessiondomain.LoginResponse, error)
	Logout(ctx context.Context, token string) error
	RefreshToken(ctx context.Context, token string) (string, error)
}

// Listener observes session changes. It receives a snapshot copy, or
// nil when the session is destroyed.
type Listener func(s *sessiondomain.Session)

// Manager owns the session lifecycle. Dependents (channel, link
// coordinator) never mutate the session directly; they go through
// UpdateProviderStatus or observe snapshots via Subscribe.
type Manager struct {
	api          AuthAPI
	store        store.Store
	logger       *zap.Logger
	refreshAhead time.Duration

	mu        sync.Mutex
	state     State
	current   *sessiondomain.Session
	refresh   *refreshFlight
	listeners []Listener

	// emitMu serializes listener delivery: emits can originate from
	// handler goroutines, background refreshes, and force-logout
	// events, but listeners never run concurrently.
	emitMu sync.Mutex
}

// refreshFlight is the single in-flight refresh; concurrent callers
// join it and read its outcome instead of issuing duplicate calls.
type refreshFlight struct {
	done chan struct{}
	sess *sessiondomain.Session
	err  error
}

func NewManager(api AuthAPI, st store.Store, refreshAhead time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		api:          api,
		store:        st,
		logger:       logger,
		refreshAhead: refreshAhead,
		state:        StateAnonymous,
	}
}

// Restore derives the initial state synchronously from the durable
// store, so a valid stored session is visible before any network
// verification completes. An invalid record drops straight to
// Anonymous and clears the slot.
func (m *Manager) Restore() {
	sess, err := m.store.LoadSession()
	if err != nil {
		if !errors.Is(err, xerrors.ErrNotFound) {
			m.logger.Warn("failed to load stored session", zap.Error(err))
		}
		return
	}

	if err := sess.Validate(); err != nil {
		m.logger.Warn("stored session failed validation, discarding", zap.Error(err))
		if err := m.store.ClearSession(); err != nil {
			m.logger.Error("failed to clear invalid session record", zap.Error(err))
		}
		return
	}

	m.mu.Lock()
	m.state = StateAuthenticated
	m.current = sess
	m.mu.Unlock()

	m.logger.Info("session restored",
		zap.String("user_id", sess.UserID),
		zap.String("role", string(sess.Role)),
	)

	// A stale token gets verified in the background; failure there
	// follows the normal terminal-auth path back to Anonymous.
	if sess.ExpiresWithin(m.refreshAhead) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := m.Refresh(ctx); err != nil {
				m.logger.Warn("background refresh of restored session failed", zap.Error(err))
			}
		}()
	}
}

// Subscribe registers a dependent and immediately delivers the current
// snapshot so late subscribers initialize correctly.
func (m *Manager) Subscribe(fn Listener) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	snapshot := m.current.Clone()
	m.mu.Unlock()

	fn(snapshot)
}

// Login authenticates against the backend, persists the session, and
// signals dependents to initialize.
func (m *Manager) Login(ctx context.Context, email, password string) (*sessiondomain.Session, error) {
	m.mu.Lock()
	m.state = StateAuthenticating
	m.mu.Unlock()

	resp, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.mu.Lock()
		m.state = StateAnonymous
		m.current = nil
		m.mu.Unlock()
		return nil, err
	}

	sess := &sessiondomain.Session{
		UserID:           resp.User.ID,
		Role:             resp.User.Role,
		AuthToken:        resp.Token,
		TokenExpiry:      tokenExpiry(resp.Token),
		ProviderLinked:   resp.User.ProviderLinked,
		ProviderUsername: resp.User.ProviderUsername,
	}
	if err := sess.Validate(); err != nil {
		m.mu.Lock()
		m.state = StateAnonymous
		m.current = nil
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", xerrors.ErrValidation, err)
	}

	m.mu.Lock()
	if err := m.store.SaveSession(sess); err != nil {
		m.logger.Error("failed to persist session", zap.Error(err))
	}
	m.state = StateAuthenticated
	m.current = sess
	m.mu.Unlock()

	m.emit()
	return sess.Clone(), nil
}

// Logout clears the durable store and resets to Anonymous before the
// remote invalidation call, so local state can never stay
// authenticated after a user-initiated logout. The remote error, if
// any, is returned for logging only.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	token := ""
	if m.current != nil {
		token = m.current.AuthToken
	}
	m.state = StateAnonymous
	m.current = nil
	if err := m.store.ClearSession(); err != nil {
		m.logger.Error("failed to clear session store", zap.Error(err))
	}
	m.mu.Unlock()

	m.emit()

	if token == "" {
		return nil
	}
	if err := m.api.Logout(ctx, token); err != nil {
		m.logger.Warn("remote logout failed, local session already cleared", zap.Error(err))
		return err
	}
	return nil
}

// LogoutLocal destroys the session without a remote call, for
// server-initiated invalidation (force-logout push, failed refresh).
func (m *Manager) LogoutLocal(reason string) {
	m.mu.Lock()
	if m.state == StateAnonymous && m.current == nil {
		m.mu.Unlock()
		return
	}
	m.state = StateAnonymous
	m.current = nil
	if err := m.store.ClearSession(); err != nil {
		m.logger.Error("failed to clear session store", zap.Error(err))
	}
	m.mu.Unlock()

	m.logger.Info("session destroyed", zap.String("reason", reason))
	m.emit()
}

// Refresh exchanges the token for a fresh one. At most one refresh is
// in flight; concurrent callers await the same outcome. A terminal
// auth failure (SessionExpired) drops to Anonymous and clears the
// store; transient failures leave the session in place.
func (m *Manager) Refresh(ctx context.Context) (*sessiondomain.Session, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil, xerrors.ErrSessionExpired
	}

	if m.refresh != nil {
		flight := m.refresh
		m.mu.Unlock()
		select {
		case <-flight.done:
			return flight.sess, flight.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	flight := &refreshFlight{done: make(chan struct{})}
	m.refresh = flight
	m.state = StateRefreshing
	token := m.current.AuthToken
	m.mu.Unlock()

	newToken, err := m.api.RefreshToken(ctx, token)

	m.mu.Lock()
	m.refresh = nil

	if err != nil {
		if errors.Is(err, xerrors.ErrSessionExpired) {
			m.state = StateAnonymous
			m.current = nil
			if cerr := m.store.ClearSession(); cerr != nil {
				m.logger.Error("failed to clear session store", zap.Error(cerr))
			}
			flight.err = xerrors.ErrSessionExpired
		} else {
			// Transient failure: keep the session, surface the error.
			m.state = StateAuthenticated
			flight.err = err
		}
		m.mu.Unlock()
		close(flight.done)

		if errors.Is(flight.err, xerrors.ErrSessionExpired) {
			m.logger.Warn("refresh failed terminally, session destroyed")
			m.emit()
		}
		return nil, flight.err
	}

	// Full read-modify-write of the record, then re-emit so dependents
	// observe a consistent value.
	sess := m.current.Clone()
	sess.AuthToken = newToken
	sess.TokenExpiry = tokenExpiry(newToken)
	if serr := m.store.SaveSession(sess); serr != nil {
		m.logger.Error("failed to persist refreshed session", zap.Error(serr))
	}
	m.state = StateAuthenticated
	m.current = sess
	flight.sess = sess.Clone()
	m.mu.Unlock()
	close(flight.done)

	m.emit()
	return flight.sess, nil
}

// UpdateProviderStatus merges the provider-link outcome into the
// current session. Idempotent; never touches the auth token.
func (m *Manager) UpdateProviderStatus(linked bool, username string) (*sessiondomain.Session, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil, xerrors.ErrSessionExpired
	}

	if m.current.ProviderLinked == linked && m.current.ProviderUsername == username {
		snapshot := m.current.Clone()
		m.mu.Unlock()
		return snapshot, nil
	}

	sess := m.current.Clone()
	sess.ProviderLinked = linked
	sess.ProviderUsername = username
	if err := m.store.SaveSession(sess); err != nil {
		m.logger.Error("failed to persist provider status", zap.Error(err))
	}
	m.current = sess
	snapshot := sess.Clone()
	m.mu.Unlock()

	m.emit()
	return snapshot, nil
}

// Current returns a read-only snapshot, or nil when Anonymous.
func (m *Manager) Current() *sessiondomain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// View builds the read-only shape exposed to UI components.
func (m *Manager) View() sessiondomain.View {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := sessiondomain.View{State: string(m.state)}
	if m.current != nil {
		view.UserID = m.current.UserID
		view.Role = m.current.Role
		view.ProviderLinked = m.current.ProviderLinked
		view.ProviderUsername = m.current.ProviderUsername
	}
	return view
}

// FreshToken returns a token valid for at least the refresh-ahead
// window, refreshing proactively when the current one is near expiry.
func (m *Manager) FreshToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return "", xerrors.ErrSessionExpired
	}
	needsRefresh := m.current.ExpiresWithin(m.refreshAhead)
	token := m.current.AuthToken
	m.mu.Unlock()

	if !needsRefresh {
		return token, nil
	}

	sess, err := m.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return sess.AuthToken, nil
}

// emit delivers the current snapshot to all listeners, outside the
// state lock so a listener can call back into the manager.
func (m *Manager) emit() {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	snapshot := m.current.Clone()
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

// tokenExpiry extracts the exp claim without verifying the signature;
// verification is the backend's job, the expiry only schedules
// proactive refresh.
func tokenExpiry(token string) *time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}
