// internal/channel/message.go
package channel

import (
	"encoding/json"
	"time"
)

// EventType represents different real-time event types
type EventType string

const (
	// Connection events
	EventTypePing  EventType = "ping"
	EventTypePong  EventType = "pong"
	EventTypeError EventType = "error"

	// Notification events (server -> client)
	EventTypeNotification      EventType = "notification"
	EventTypeNotificationCount EventType = "notification:count"

	// Session events
	EventTypeForceLogout EventType = "session:force_logout"
)

// Message is the universal event envelope on the wire.
type Message struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	ID        string          `json:"id,omitempty"`
}

// CountData carries an unread-counter update.
type CountData struct {
	UnreadCount int `json:"unread_count"`
}

// LogoutData carries a server-initiated session teardown.
type LogoutData struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	err := json.Unmarshal(data, &msg)
	return &msg, err
}
