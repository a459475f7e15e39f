// internal/api/github.go
package api

import (
	"context"
	"fmt"
	"net/http"

	githubdomain "devsync-agent/internal/domain/github"
	xerrors "devsync-agent/internal/pkg/errors"
)

type connectResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type callbackResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username"`
	Message  string `json:"message,omitempty"`
}

// LinkStatus returns the server-side view of the GitHub association.
func (c *Client) LinkStatus(ctx context.Context, token string) (*githubdomain.LinkStatus, error) {
	var status githubdomain.LinkStatus
	if err := c.do(ctx, http.MethodGet, "/oauth/github/status", token, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ConnectURL asks the backend for the provider authorization URL.
func (c *Client) ConnectURL(ctx context.Context, token string) (string, error) {
	var resp connectResponse
	if err := c.do(ctx, http.MethodPost, "/oauth/github/connect", token, nil, &resp); err != nil {
		return "", err
	}
	if resp.AuthorizationURL == "" {
		return "", fmt.Errorf("%w: connect response missing authorization url", xerrors.ErrValidation)
	}
	return resp.AuthorizationURL, nil
}

// ExchangeCallback performs the code/state exchange. A rejected
// exchange maps to ErrProviderError.
func (c *Client) ExchangeCallback(ctx context.Context, token, code, state string) (string, error) {
	req := &callbackRequest{Code: code, State: state}

	var resp callbackResponse
	if err := c.do(ctx, http.MethodPost, "/oauth/github/callback", token, req, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("%w: %s", xerrors.ErrProviderError, resp.Message)
	}
	return resp.Username, nil
}

// Disconnect removes the GitHub association server-side.
func (c *Client) Disconnect(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/oauth/github/disconnect", token, nil, nil)
}
