// internal/handlers/notification/notification_handler.go
package notification

import (
	"errors"
	"net/http"
	"strconv"

	"devsync-agent/internal/channel"
	notifdomain "devsync-agent/internal/domain/notification"
	"devsync-agent/internal/notification"
	xerrors "devsync-agent/internal/pkg/errors"
	"devsync-agent/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	store   *notification.Store
	channel *channel.Manager
}

func NewNotificationHandler(store *notification.Store, ch *channel.Manager) *NotificationHandler {
	return &NotificationHandler{
		store:   store,
		channel: ch,
	}
}

// GetFeed returns the current feed snapshot along with the fetch and
// channel status flags.
func (h *NotificationHandler) GetFeed(c *gin.Context) {
	items, unread, status := h.store.Snapshot()

	response.Success(c, http.StatusOK, "notifications retrieved", notifdomain.FeedResponse{
		Notifications: items,
		UnreadCount:   unread,
		Status:        status,
		ChannelState:  string(h.channel.State()),
	})
}

// RefreshFeed triggers a fetch. A plain call respects the debounce
// window; ?force=true bypasses it. Rate-limit and connectivity
// failures are not errors here: they come back as status flags on the
// feed snapshot.
func (h *NotificationHandler) RefreshFeed(c *gin.Context) {
	force := c.DefaultQuery("force", "false") == "true"

	err := h.store.Refresh(c.Request.Context(), force)
	if err != nil && !errors.Is(err, xerrors.ErrRateLimited) && !errors.Is(err, xerrors.ErrServerUnavailable) {
		response.FromError(c, "failed to refresh notifications", err)
		return
	}

	items, unread, status := h.store.Snapshot()
	response.Success(c, http.StatusOK, "notifications refreshed", notifdomain.FeedResponse{
		Notifications: items,
		UnreadCount:   unread,
		Status:        status,
		ChannelState:  string(h.channel.State()),
	})
}

// MarkAsRead marks a notification as read
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	notifIDStr := c.Param("id")
	notifID, err := strconv.ParseInt(notifIDStr, 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid notification ID", err)
		return
	}

	if err := h.store.MarkRead(c.Request.Context(), notifID); err != nil {
		response.FromError(c, "failed to mark as read", err)
		return
	}

	response.Success(c, http.StatusOK, "notification marked as read", gin.H{
		"unread_count": h.store.UnreadCount(),
	})
}

// MarkAllAsRead marks all notifications as read
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	if err := h.store.MarkAllRead(c.Request.Context()); err != nil {
		response.FromError(c, "failed to mark all as read", err)
		return
	}

	response.Success(c, http.StatusOK, "all notifications marked as read", gin.H{
		"unread_count": h.store.UnreadCount(),
	})
}

// GetChannelStatus exposes the real-time connection snapshot.
func (h *NotificationHandler) GetChannelStatus(c *gin.Context) {
	response.Success(c, http.StatusOK, "channel status", h.channel.Status())
}
