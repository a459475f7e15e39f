// internal/channel/manager_test.go
package channel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	notifdomain "devsync-agent/internal/domain/notification"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingEvents struct {
	mu            sync.Mutex
	notifications []notifdomain.Notification
	counts        []int
	connects      int
	logoutReasons []string
}

func (r *recordingEvents) NotificationReceived(n notifdomain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recordingEvents) UnreadCountChanged(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, count)
}

func (r *recordingEvents) ChannelConnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects++
}

func (r *recordingEvents) ForceLogout(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logoutReasons = append(r.logoutReasons, reason)
}

func (r *recordingEvents) snapshot() recordingEvents {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recordingEvents{
		notifications: append([]notifdomain.Notification(nil), r.notifications...),
		counts:        append([]int(nil), r.counts...),
		connects:      r.connects,
		logoutReasons: append([]string(nil), r.logoutReasons...),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventServer upgrades connections and pushes the given messages.
func eventServer(t *testing.T, gotToken *string, messages ...Message) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotToken != nil {
			*gotToken = r.URL.Query().Get("token")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, msg := range messages {
			data, _ := json.Marshal(msg)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testChannelConfig(url string) Config {
	return Config{
		URL:                  url,
		HandshakeTimeout:     time.Second,
		MaxReconnectAttempts: 3,
		ReconnectBaseDelay:   10 * time.Millisecond,
		ReconnectMaxDelay:    40 * time.Millisecond,
		ProbeDelay:           time.Hour,
	}
}

func mustRaw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestManager_Start_ConnectsAndDispatchesEvents(t *testing.T) {
	var gotToken string
	srv := eventServer(t, &gotToken,
		Message{
			Type: EventTypeNotification,
			Data: mustRaw(t, notifdomain.Notification{ID: 1, Content: "task assigned"}),
		},
		Message{
			Type: EventTypeNotificationCount,
			Data: mustRaw(t, CountData{UnreadCount: 4}),
		},
	)
	defer srv.Close()

	events := &recordingEvents{}
	m := NewManager(testChannelConfig(wsURL(srv)), events, zap.NewNop())
	m.Start("token-1")
	defer m.Stop()

	assert.Eventually(t, func() bool {
		s := events.snapshot()
		return len(s.notifications) == 1 && len(s.counts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	s := events.snapshot()
	assert.Equal(t, "token-1", gotToken)
	assert.Equal(t, int64(1), s.notifications[0].ID)
	assert.Equal(t, 4, s.counts[0])
	assert.GreaterOrEqual(t, s.connects, 1)
	assert.Equal(t, StateConnected, m.State())
}

func TestManager_ForceLogoutEvent(t *testing.T) {
	srv := eventServer(t, nil, Message{
		Type: EventTypeForceLogout,
		Data: mustRaw(t, LogoutData{Reason: "password changed"}),
	})
	defer srv.Close()

	events := &recordingEvents{}
	m := NewManager(testChannelConfig(wsURL(srv)), events, zap.NewNop())
	m.Start("token-1")
	defer m.Stop()

	assert.Eventually(t, func() bool {
		s := events.snapshot()
		return len(s.logoutReasons) == 1 && s.logoutReasons[0] == "password changed"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_DegradedAfterAttemptBound(t *testing.T) {
	events := &recordingEvents{}
	// Nothing listens on this address.
	m := NewManager(testChannelConfig("ws://127.0.0.1:1/ws"), events, zap.NewNop())
	m.Start("token-1")
	defer m.Stop()

	assert.Eventually(t, func() bool {
		return m.State() == StateDegraded
	}, 5*time.Second, 10*time.Millisecond)

	status := m.Status()
	assert.True(t, status.Degraded)
	assert.NotEmpty(t, status.LastError)
}

func TestManager_Stop(t *testing.T) {
	srv := eventServer(t, nil)
	defer srv.Close()

	events := &recordingEvents{}
	m := NewManager(testChannelConfig(wsURL(srv)), events, zap.NewNop())
	m.Start("token-1")

	assert.Eventually(t, func() bool {
		return m.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	m.Stop()
	assert.Equal(t, StateDisconnected, m.State())

	// Idempotent.
	m.Stop()
	assert.Equal(t, StateDisconnected, m.State())
}

func TestManager_Stop_DuringReconnectStaysDisconnected(t *testing.T) {
	events := &recordingEvents{}
	// Nothing listens on this address, so the manager cycles through
	// dial failures and backoff waits.
	m := NewManager(testChannelConfig("ws://127.0.0.1:1/ws"), events, zap.NewNop())
	m.Start("token-1")

	assert.Eventually(t, func() bool {
		return m.Status().ReconnectAttempts >= 1 || m.State() == StateDegraded
	}, 2*time.Second, time.Millisecond)

	m.Stop()

	// The run goroutine must not resurrect any reconnect state after
	// teardown.
	assert.Never(t, func() bool {
		return m.State() != StateDisconnected
	}, 200*time.Millisecond, 5*time.Millisecond)
}

func TestManager_Start_RequiresToken(t *testing.T) {
	m := NewManager(testChannelConfig("ws://127.0.0.1:1/ws"), &recordingEvents{}, zap.NewNop())
	m.Start("")
	assert.Equal(t, StateDisconnected, m.State())
}

func TestManager_ReconnectDelayCapped(t *testing.T) {
	m := NewManager(Config{
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  8 * time.Second,
	}, &recordingEvents{}, zap.NewNop())

	assert.Equal(t, time.Second, m.reconnectDelay(1))
	assert.Equal(t, 2*time.Second, m.reconnectDelay(2))
	assert.Equal(t, 4*time.Second, m.reconnectDelay(3))
	assert.Equal(t, 8*time.Second, m.reconnectDelay(4))
	assert.Equal(t, 8*time.Second, m.reconnectDelay(10))
}
