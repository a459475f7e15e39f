// internal/api/notifications.go
package api

import (
	"context"
	"fmt"
	"net/http"

	notifdomain "devsync-agent/internal/domain/notification"
)

// Notifications fetches the full feed for the current user.
func (c *Client) Notifications(ctx context.Context, token string) ([]notifdomain.Notification, error) {
	var items []notifdomain.Notification
	if err := c.do(ctx, http.MethodGet, "/notifications", token, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// MarkRead flags a single notification as read.
func (c *Client) MarkRead(ctx context.Context, token string, id int64) error {
	path := fmt.Sprintf("/notifications/%d/read", id)
	return c.do(ctx, http.MethodPut, path, token, nil, nil)
}

// MarkAllRead flags every notification as read.
func (c *Client) MarkAllRead(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPut, "/notifications/read-all", token, nil, nil)
}
