// internal/oauth/coordinator.go
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	githubdomain "devsync-agent/internal/domain/github"
	sessiondomain "devsync-agent/internal/domain/session"
	xerrors "devsync-agent/internal/pkg/errors"
	"devsync-agent/internal/store"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// GitHubAPI is the slice of the backend client the coordinator needs.
type GitHubAPI interface {
	LinkStatus(ctx context.Context, token string) (*githubdomain.LinkStatus, error)
	ConnectURL(ctx context.Context, token string) (string, error)
	ExchangeCallback(ctx context.Context, token, code, state string) (string, error)
	Disconnect(ctx context.Context, token string) error
}

// Sessions is the narrow session access the coordinator gets: read the
// current snapshot, merge the link outcome.
type Sessions interface {
	Current() *sessiondomain.Session
	UpdateProviderStatus(linked bool, username string) (*sessiondomain.Session, error)
}

// Coordinator performs the CSRF-safe GitHub linking handshake. All of
// the provider's return paths (authorization-code redirect, explicit
// success redirect, resumed handshake after reload) converge on
// HandleReturn, which owns the validation-order tie-breaks.
type Coordinator struct {
	api      GitHubAPI
	sessions Sessions
	store    store.Store
	logger   *zap.Logger
	ttl      time.Duration

	mu sync.Mutex
	// Idempotency cache: a duplicate return for an already-consumed
	// state replays the prior result instead of re-exchanging.
	lastState  string
	lastResult *githubdomain.LinkResult
}

func NewCoordinator(api GitHubAPI, sessions Sessions, st store.Store, ttl time.Duration, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		api:      api,
		sessions: sessions,
		store:    st,
		logger:   logger,
		ttl:      ttl,
	}
}

// InitiateLink generates a fresh one-time state token, persists the
// request durably (the provider redirect may reload the application),
// and returns the URL the caller must navigate to.
func (c *Coordinator) InitiateLink(ctx context.Context) (string, error) {
	sess := c.sessions.Current()
	if sess == nil {
		return "", xerrors.ErrSessionExpired
	}

	authURL, err := c.api.ConnectURL(ctx, sess.AuthToken)
	if err != nil {
		return "", err
	}

	req := &githubdomain.LinkRequest{
		ID:          ulid.Make().String(),
		State:       generateState(),
		OwnerUserID: sess.UserID,
		IssuedAt:    time.Now(),
	}
	if err := c.store.SaveLinkRequest(req); err != nil {
		return "", fmt.Errorf("failed to persist link request: %w", err)
	}

	c.mu.Lock()
	c.lastState = ""
	c.lastResult = nil
	c.mu.Unlock()

	c.logger.Info("link initiated", zap.String("request_id", req.ID))
	return withState(authURL, req.State), nil
}

// HandleReturn reconciles a provider return, whichever path delivered
// it. Validation order: explicit provider error first, then explicit
// success parameters (accepted when the embedded user id matches the
// current session), then the code/state exchange against the stored,
// unconsumed, unexpired request. Idempotent under duplicate
// invocation.
func (c *Coordinator) HandleReturn(ctx context.Context, params githubdomain.ReturnParams) (*githubdomain.LinkResult, error) {
	sess := c.sessions.Current()
	if sess == nil {
		return nil, xerrors.ErrSessionExpired
	}

	if params.Error != "" {
		return nil, fmt.Errorf("%w: %s", xerrors.ErrProviderError, params.Error)
	}

	if params.ExplicitSuccess() {
		if params.UserID != "" && params.UserID != sess.UserID {
			return nil, fmt.Errorf("%w: success redirect for a different user", xerrors.ErrStateMismatch)
		}
		return c.accept(params.State, params.Username)
	}

	if params.Code == "" || params.State == "" {
		return nil, fmt.Errorf("%w: missing code or state", xerrors.ErrStateMismatch)
	}

	// Duplicate of an already-consumed return replays the cached
	// result; the exchange happened at most once.
	c.mu.Lock()
	if c.lastResult != nil && params.State == c.lastState {
		result := *c.lastResult
		c.mu.Unlock()
		return &result, nil
	}
	c.mu.Unlock()

	req, err := c.store.LoadLinkRequest()
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: no link request in progress", xerrors.ErrStateMismatch)
		}
		return nil, fmt.Errorf("failed to load link request: %w", err)
	}

	if req.Consumed || req.State != params.State {
		return nil, xerrors.ErrStateMismatch
	}
	if req.OwnerUserID != sess.UserID {
		return nil, fmt.Errorf("%w: link request belongs to a different user", xerrors.ErrStateMismatch)
	}
	if req.IsExpired(c.ttl) {
		if cerr := c.store.ClearLinkRequest(); cerr != nil {
			c.logger.Error("failed to clear expired link request", zap.Error(cerr))
		}
		return nil, xerrors.ErrLinkExpired
	}

	username, err := c.api.ExchangeCallback(ctx, sess.AuthToken, params.Code, params.State)
	if err != nil {
		return nil, err
	}

	return c.accept(params.State, username)
}

// accept consumes the request, records the idempotency cache, and
// merges the outcome into the session.
func (c *Coordinator) accept(state, username string) (*githubdomain.LinkResult, error) {
	if err := c.store.ClearLinkRequest(); err != nil {
		c.logger.Error("failed to clear consumed link request", zap.Error(err))
	}

	result := &githubdomain.LinkResult{Linked: true, Username: username}

	c.mu.Lock()
	c.lastState = state
	c.lastResult = result
	c.mu.Unlock()

	if _, err := c.sessions.UpdateProviderStatus(true, username); err != nil {
		return nil, err
	}

	c.logger.Info("provider linked", zap.String("username", username))
	return result, nil
}

// SyncStatus reconciles the local provider flags with the server-side
// association; used when a session appears (restored or fresh login).
func (c *Coordinator) SyncStatus(ctx context.Context) error {
	sess := c.sessions.Current()
	if sess == nil {
		return xerrors.ErrSessionExpired
	}

	status, err := c.api.LinkStatus(ctx, sess.AuthToken)
	if err != nil {
		return err
	}

	_, err = c.sessions.UpdateProviderStatus(status.Connected, status.Username)
	return err
}

// Unlink removes the association server-side and locally.
func (c *Coordinator) Unlink(ctx context.Context) error {
	sess := c.sessions.Current()
	if sess == nil {
		return xerrors.ErrSessionExpired
	}

	if err := c.api.Disconnect(ctx, sess.AuthToken); err != nil {
		return err
	}

	_, err := c.sessions.UpdateProviderStatus(false, "")
	return err
}

// Connected reports whether the current session carries a provider
// link.
func (c *Coordinator) Connected() bool {
	sess := c.sessions.Current()
	return sess != nil && sess.ProviderLinked
}

func generateState() string {
	buf := make([]byte, 32)
	rand.Read(buf)
	return base64.URLEncoding.EncodeToString(buf)
}

// withState forces our state parameter onto the authorization URL so
// the callback can be tied back to this request.
func withState(authURL, state string) string {
	u, err := url.Parse(authURL)
	if err != nil {
		return authURL
	}
	q := u.Query()
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String()
}
