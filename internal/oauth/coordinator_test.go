// internal/oauth/coordinator_test.go
package oauth

import (
	"context"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	githubdomain "devsync-agent/internal/domain/github"
	sessiondomain "devsync-agent/internal/domain/session"
	xerrors "devsync-agent/internal/pkg/errors"
	"devsync-agent/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGitHubAPI struct {
	status        *githubdomain.LinkStatus
	statusErr     error
	connectURL    string
	connectErr    error
	exchangeUser  string
	exchangeErr   error
	exchangeCalls int32
	disconnectErr error
}

func (f *fakeGitHubAPI) LinkStatus(ctx context.Context, token string) (*githubdomain.LinkStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeGitHubAPI) ConnectURL(ctx context.Context, token string) (string, error) {
	return f.connectURL, f.connectErr
}

func (f *fakeGitHubAPI) ExchangeCallback(ctx context.Context, token, code, state string) (string, error) {
	atomic.AddInt32(&f.exchangeCalls, 1)
	if f.exchangeErr != nil {
		return "", f.exchangeErr
	}
	return f.exchangeUser, nil
}

func (f *fakeGitHubAPI) Disconnect(ctx context.Context, token string) error {
	return f.disconnectErr
}

type fakeSessions struct {
	current *sessiondomain.Session
	updates []githubdomain.LinkStatus
}

func (f *fakeSessions) Current() *sessiondomain.Session {
	return f.current.Clone()
}

func (f *fakeSessions) UpdateProviderStatus(linked bool, username string) (*sessiondomain.Session, error) {
	if f.current == nil {
		return nil, xerrors.ErrSessionExpired
	}
	f.current.ProviderLinked = linked
	f.current.ProviderUsername = username
	f.updates = append(f.updates, githubdomain.LinkStatus{Connected: linked, Username: username})
	return f.current.Clone(), nil
}

func newTestCoordinator(t *testing.T, api GitHubAPI, sessions Sessions) (*Coordinator, store.Store) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewCoordinator(api, sessions, st, 10*time.Minute, zap.NewNop()), st
}

func activeSession() *fakeSessions {
	return &fakeSessions{current: &sessiondomain.Session{
		UserID:    "user-1",
		Role:      sessiondomain.RoleClient,
		AuthToken: "token-1",
	}}
}

func TestCoordinator_InitiateLink_PersistsRequest(t *testing.T) {
	api := &fakeGitHubAPI{connectURL: "https://github.com/login/oauth/authorize?client_id=abc"}
	sessions := activeSession()
	c, st := newTestCoordinator(t, api, sessions)

	authURL, err := c.InitiateLink(context.Background())
	require.NoError(t, err)

	req, err := st.LoadLinkRequest()
	require.NoError(t, err)
	assert.Equal(t, "user-1", req.OwnerUserID)
	assert.NotEmpty(t, req.State)
	assert.False(t, req.Consumed)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, req.State, u.Query().Get("state"))
	assert.Equal(t, "abc", u.Query().Get("client_id"))
}

func TestCoordinator_InitiateLink_NoSession(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeGitHubAPI{}, &fakeSessions{})

	_, err := c.InitiateLink(context.Background())
	assert.ErrorIs(t, err, xerrors.ErrSessionExpired)
}

func TestCoordinator_HandleReturn_ProviderError(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeGitHubAPI{}, activeSession())

	_, err := c.HandleReturn(context.Background(), githubdomain.ReturnParams{
		Error: "access_denied",
		Code:  "irrelevant",
		State: "irrelevant",
	})
	assert.ErrorIs(t, err, xerrors.ErrProviderError)
}

func TestCoordinator_HandleReturn_ExplicitSuccess(t *testing.T) {
	sessions := activeSession()
	c, _ := newTestCoordinator(t, &fakeGitHubAPI{}, sessions)

	result, err := c.HandleReturn(context.Background(), githubdomain.ReturnParams{
		Success:  "true",
		Username: "octocat",
		UserID:   "user-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Linked)
	assert.Equal(t, "octocat", result.Username)
	assert.True(t, sessions.current.ProviderLinked)
}

func TestCoordinator_HandleReturn_ExplicitSuccessWrongUser(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeGitHubAPI{}, activeSession())

	_, err := c.HandleReturn(context.Background(), githubdomain.ReturnParams{
		Success:  "true",
		Username: "octocat",
		UserID:   "someone-else",
	})
	assert.ErrorIs(t, err, xerrors.ErrStateMismatch)
}

func TestCoordinator_HandleReturn_CodeExchange(t *testing.T) {
	api := &fakeGitHubAPI{
		connectURL:   "https://github.com/login/oauth/authorize",
		exchangeUser: "octocat",
	}
	sessions := activeSession()
	c, st := newTestCoordinator(t, api, sessions)

	authURL, err := c.InitiateLink(context.Background())
	require.NoError(t, err)

	u, _ := url.Parse(authURL)
	state := u.Query().Get("state")

	result, err := c.HandleReturn(context.Background(), githubdomain.ReturnParams{
		Code:  "code-1",
		State: state,
	})
	require.NoError(t, err)
	assert.True(t, result.Linked)
	assert.Equal(t, "octocat", result.Username)
	assert.True(t, sessions.current.ProviderLinked)

	// Request is consumed.
	_, err = st.LoadLinkRequest()
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestCoordinator_HandleReturn_DuplicateReplaysResult(t *testing.T) {
	api := &fakeGitHubAPI{
		connectURL:   "https://github.com/login/oauth/authorize",
		exchangeUser: "octocat",
	}
	c, _ := newTestCoordinator(t, api, activeSession())

	authURL, err := c.InitiateLink(context.Background())
	require.NoError(t, err)
	u, _ := url.Parse(authURL)
	state := u.Query().Get("state")

	params := githubdomain.ReturnParams{Code: "code-1", State: state}

	first, err := c.HandleReturn(context.Background(), params)
	require.NoError(t, err)

	second, err := c.HandleReturn(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.exchangeCalls), "exchange must happen at most once")
}

func TestCoordinator_HandleReturn_StateMismatch(t *testing.T) {
	api := &fakeGitHubAPI{connectURL: "https://github.com/login/oauth/authorize"}
	c, _ := newTestCoordinator(t, api, activeSession())

	_, err := c.InitiateLink(context.Background())
	require.NoError(t, err)

	_, err = c.HandleReturn(context.Background(), githubdomain.ReturnParams{
		Code:  "code-1",
		State: "forged-state",
	})
	assert.ErrorIs(t, err, xerrors.ErrStateMismatch)
	assert.Equal(t, int32(0), atomic.LoadInt32(&api.exchangeCalls))
}

func TestCoordinator_HandleReturn_NoRequestInProgress(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeGitHubAPI{}, activeSession())

	_, err := c.HandleReturn(context.Background(), githubdomain.ReturnParams{
		Code:  "code-1",
		State: "some-state",
	})
	assert.ErrorIs(t, err, xerrors.ErrStateMismatch)
}

func TestCoordinator_HandleReturn_ExpiredRequest(t *testing.T) {
	api := &fakeGitHubAPI{connectURL: "https://github.com/login/oauth/authorize"}
	sessions := activeSession()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	c := NewCoordinator(api, sessions, st, time.Millisecond, zap.NewNop())

	authURL, err := c.InitiateLink(context.Background())
	require.NoError(t, err)
	u, _ := url.Parse(authURL)
	state := u.Query().Get("state")

	time.Sleep(5 * time.Millisecond)

	_, err = c.HandleReturn(context.Background(), githubdomain.ReturnParams{
		Code:  "code-1",
		State: state,
	})
	assert.ErrorIs(t, err, xerrors.ErrLinkExpired)

	// Expired request is discarded.
	_, err = st.LoadLinkRequest()
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestCoordinator_HandleReturn_OwnerMismatch(t *testing.T) {
	api := &fakeGitHubAPI{connectURL: "https://github.com/login/oauth/authorize"}
	sessions := activeSession()
	c, _ := newTestCoordinator(t, api, sessions)

	authURL, err := c.InitiateLink(context.Background())
	require.NoError(t, err)
	u, _ := url.Parse(authURL)
	state := u.Query().Get("state")

	// A different user resumes the handshake.
	sessions.current.UserID = "user-2"

	_, err = c.HandleReturn(context.Background(), githubdomain.ReturnParams{
		Code:  "code-1",
		State: state,
	})
	assert.ErrorIs(t, err, xerrors.ErrStateMismatch)
}

func TestCoordinator_SyncStatus(t *testing.T) {
	api := &fakeGitHubAPI{status: &githubdomain.LinkStatus{Connected: true, Username: "octocat"}}
	sessions := activeSession()
	c, _ := newTestCoordinator(t, api, sessions)

	require.NoError(t, c.SyncStatus(context.Background()))
	assert.True(t, c.Connected())
	assert.Equal(t, "octocat", sessions.current.ProviderUsername)
}

func TestCoordinator_Unlink(t *testing.T) {
	sessions := activeSession()
	sessions.current.ProviderLinked = true
	sessions.current.ProviderUsername = "octocat"
	c, _ := newTestCoordinator(t, &fakeGitHubAPI{}, sessions)

	require.NoError(t, c.Unlink(context.Background()))
	assert.False(t, c.Connected())
	assert.Empty(t, sessions.current.ProviderUsername)
}
