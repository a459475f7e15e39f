// internal/api/client_test.go
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xerrors "devsync-agent/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL, 5*time.Second, zap.NewNop())
}

func TestClient_Login_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"message": "signed in",
			"data": {
				"user": {"id": "user-1", "email": "dev@example.com", "role": "client"},
				"token": "token-1"
			}
		}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).Login(context.Background(), "dev@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.Equal(t, "token-1", resp.Token)
}

func TestClient_Login_BadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Login(context.Background(), "dev@example.com", "wrong")
	assert.ErrorIs(t, err, xerrors.ErrInvalidCredentials)
}

func TestClient_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Notifications(context.Background(), "stale-token")
	assert.ErrorIs(t, err, xerrors.ErrSessionExpired)
}

func TestClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Notifications(context.Background(), "token-1")
	require.ErrorIs(t, err, xerrors.ErrRateLimited)
	assert.Equal(t, 7*time.Second, xerrors.RetryAfter(err, time.Minute))
}

func TestClient_ServerUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Notifications(context.Background(), "token-1")
	assert.ErrorIs(t, err, xerrors.ErrServerUnavailable)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // Nothing listening anymore.

	_, err := newTestClient(srv).Notifications(context.Background(), "token-1")
	assert.ErrorIs(t, err, xerrors.ErrServerUnavailable)
}

func TestClient_Notifications_BarePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 1, "content": "task assigned", "is_read": false}]`))
	}))
	defer srv.Close()

	items, err := newTestClient(srv).Notifications(context.Background(), "token-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "task assigned", items[0].Content)
}

func TestClient_RefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/refresh-token", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "message": "refreshed", "data": {"token": "token-2"}}`))
	}))
	defer srv.Close()

	token, err := newTestClient(srv).RefreshToken(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
}
