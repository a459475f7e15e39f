// internal/app/events.go
package app

import (
	"context"
	"time"

	notifdomain "devsync-agent/internal/domain/notification"
	"devsync-agent/internal/notification"
	"devsync-agent/internal/session"

	"go.uber.org/zap"
)

// eventBridge fans channel events out to the feed store and the
// session manager. Callbacks run on the channel's read goroutine, so
// anything that can block goes to its own goroutine.
type eventBridge struct {
	feed     *notification.Store
	sessions *session.Manager
	logger   *zap.Logger
}

func newEventBridge(feed *notification.Store, sessions *session.Manager, logger *zap.Logger) *eventBridge {
	return &eventBridge{
		feed:     feed,
		sessions: sessions,
		logger:   logger,
	}
}

func (b *eventBridge) NotificationReceived(n notifdomain.Notification) {
	b.feed.ApplyPush(n)
}

func (b *eventBridge) UnreadCountChanged(count int) {
	b.feed.SetUnreadCount(count)
}

// ChannelConnected forces a feed sync; anything pushed while the
// channel was down was missed.
func (b *eventBridge) ChannelConnected() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := b.feed.Refresh(ctx, true); err != nil {
			b.logger.Warn("feed sync after reconnect failed", zap.Error(err))
		}
	}()
}

func (b *eventBridge) ForceLogout(reason string) {
	go b.sessions.LogoutLocal(reason)
}
