// internal/domain/notification/entity.go
package notification

import "time"

// Notification is a single event record in the feed. IDs are assigned
// by the backend and unique within the feed.
type Notification struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedStatus reflects the fetch coordinator's degraded-mode flags.
// Errors behind these flags are absorbed, never surfaced as failures.
type FeedStatus struct {
	CoolDown   bool   `json:"cool_down"`
	ServerDown bool   `json:"server_down"`
	LastError  string `json:"last_error,omitempty"`
}

// FeedResponse is the feed snapshot exposed to UI components.
type FeedResponse struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
	Status        FeedStatus     `json:"status"`
	ChannelState  string         `json:"channel_state"`
}
