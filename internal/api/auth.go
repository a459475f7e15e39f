// internal/api/auth.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	sessiondomain "devsync-agent/internal/domain/session"
	xerrors "devsync-agent/internal/pkg/errors"

	"go.uber.org/zap"
)

// Login authenticates with email/password. A 401 here means the
// credentials were wrong, not that a session expired.
func (c *Client) Login(ctx context.Context, email, password string) (*sessiondomain.LoginResponse, error) {
	req := &sessiondomain.LoginRequest{Email: email, Password: password}

	var resp sessiondomain.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", req, &resp); err != nil {
		if errors.Is(err, xerrors.ErrSessionExpired) {
			return nil, fmt.Errorf("%w: %v", xerrors.ErrInvalidCredentials, err)
		}
		return nil, err
	}

	if resp.Token == "" || resp.User.ID == "" {
		return nil, fmt.Errorf("%w: login response missing token or user", xerrors.ErrValidation)
	}

	c.logger.Info("login succeeded",
		zap.String("user_id", resp.User.ID),
		zap.String("role", string(resp.User.Role)),
	)
	return &resp, nil
}

// Logout invalidates the session server-side. Callers clear local
// state regardless of the outcome.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
}

// RefreshToken exchanges the current bearer token for a fresh one.
func (c *Client) RefreshToken(ctx context.Context, token string) (string, error) {
	var resp sessiondomain.RefreshResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh-token", token, nil, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: refresh response missing token", xerrors.ErrValidation)
	}
	return resp.Token, nil
}
