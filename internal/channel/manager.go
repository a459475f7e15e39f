// internal/channel/manager.go
package channel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	notifdomain "devsync-agent/internal/domain/notification"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDegraded     State = "degraded"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512KB
)

// Events receives everything the channel pushes or signals. The
// implementation must not block.
type Events interface {
	NotificationReceived(n notifdomain.Notification)
	UnreadCountChanged(count int)
	ChannelConnected()
	ForceLogout(reason string)
}

type Config struct {
	URL                  string
	HandshakeTimeout     time.Duration
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	ProbeDelay           time.Duration
}

// Status is the connection snapshot exposed to UI components.
type Status struct {
	State             State  `json:"state"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	Degraded          bool   `json:"degraded"`
	LastError         string `json:"last_error,omitempty"`
}

// Manager maintains the real-time event connection for the current
// session. Reconnect attempts are strictly sequential: a single run
// goroutine owns the dial/read/backoff cycle, and at most one timer is
// live at any moment.
type Manager struct {
	cfg    Config
	events Events
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	attempts int
	degraded bool
	lastErr  error
	running  bool
	stop     chan struct{}
	conn     *websocket.Conn
}

func NewManager(cfg Config, events Events, logger *zap.Logger) *Manager {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 30 * time.Second
	}
	return &Manager{
		cfg:    cfg,
		events: events,
		logger: logger,
		state:  StateDisconnected,
	}
}

// Start brings the channel up for the given bearer token. No-op while
// already running; token rotation does not interrupt a live
// connection.
func (m *Manager) Start(token string) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	if token == "" {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.state = StateConnecting
	m.attempts = 0
	m.degraded = false
	m.lastErr = nil
	stop := make(chan struct{})
	m.stop = stop
	m.mu.Unlock()

	go m.run(token, stop)
}

// Stop tears the channel down (logout). Safe to call repeatedly.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = StateDisconnected
	m.degraded = false
	m.attempts = 0
	m.mu.Unlock()

	m.logger.Info("channel stopped")
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		State:             m.state,
		ReconnectAttempts: m.attempts,
		Degraded:          m.degraded,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// run owns the whole connect/read/backoff cycle for one Start.
func (m *Manager) run(token string, stop chan struct{}) {
	for {
		if stopped(stop) {
			return
		}

		conn, err := m.dial(token)
		if err != nil {
			if !m.backoff(err, stop) {
				return
			}
			continue
		}

		m.mu.Lock()
		if stopped(stop) {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		m.state = StateConnected
		m.attempts = 0
		m.degraded = false
		m.lastErr = nil
		m.mu.Unlock()

		m.logger.Info("channel connected")
		m.events.ChannelConnected()

		err = m.readLoop(conn, stop)
		conn.Close()
		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()

		if stopped(stop) {
			return
		}
		if !m.backoff(err, stop) {
			return
		}
	}
}

// backoff applies the reconnect policy after a failure and sleeps the
// resulting delay. After the attempt bound is exceeded the connection
// stays severed and a single long-delay probe is scheduled instead.
// Returns false when the manager was stopped while waiting.
func (m *Manager) backoff(err error, stop chan struct{}) bool {
	m.mu.Lock()
	// Stop may have landed between the connection failure and here;
	// its Disconnected state must not be overwritten.
	if stopped(stop) {
		m.mu.Unlock()
		return false
	}
	m.attempts++
	m.lastErr = err

	var delay time.Duration
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.state = StateDegraded
		m.degraded = true
		m.attempts = 0
		delay = m.cfg.ProbeDelay
		m.logger.Warn("channel degraded, real-time push unavailable",
			zap.Error(err),
			zap.Duration("probe_delay", delay),
		)
	} else {
		m.state = StateReconnecting
		delay = m.reconnectDelay(m.attempts)
		m.logger.Warn("channel connection lost, reconnecting",
			zap.Error(err),
			zap.Int("attempt", m.attempts),
			zap.Duration("delay", delay),
		)
	}
	m.mu.Unlock()

	timer := time.NewTimer(delay)
	select {
	case <-timer.C:
	case <-stop:
		timer.Stop()
		return false
	}

	m.mu.Lock()
	if stopped(stop) {
		m.mu.Unlock()
		return false
	}
	m.state = StateConnecting
	m.mu.Unlock()
	return true
}

func (m *Manager) reconnectDelay(attempt int) time.Duration {
	delay := m.cfg.ReconnectBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.cfg.ReconnectMaxDelay {
			return m.cfg.ReconnectMaxDelay
		}
	}
	if delay > m.cfg.ReconnectMaxDelay {
		delay = m.cfg.ReconnectMaxDelay
	}
	return delay
}

// dial establishes the websocket connection, carrying the bearer token
// for server-side authorization.
func (m *Manager) dial(token string) (*websocket.Conn, error) {
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid channel url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.HandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := dialer.Dial(u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("channel dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("channel dial failed: %w", err)
	}
	return conn, nil
}

// readLoop consumes server events until the connection dies. A ping
// goroutine keeps the connection alive; pongs refresh the read
// deadline.
func (m *Manager) readLoop(conn *websocket.Conn, stop chan struct{}) error {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go m.pingLoop(conn, pingDone, stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("channel read failed: %w", err)
			}
			return err
		}
		m.handleMessage(data)
	}
}

func (m *Manager) pingLoop(conn *websocket.Conn, done, stop chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-done:
			return
		case <-stop:
			return
		}
	}
}

func (m *Manager) handleMessage(data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		m.logger.Warn("failed to parse channel message", zap.Error(err))
		return
	}

	switch msg.Type {
	case EventTypeNotification:
		var n notifdomain.Notification
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			m.logger.Warn("invalid notification payload", zap.Error(err))
			return
		}
		m.events.NotificationReceived(n)

	case EventTypeNotificationCount:
		var c CountData
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			m.logger.Warn("invalid count payload", zap.Error(err))
			return
		}
		m.events.UnreadCountChanged(c.UnreadCount)

	case EventTypeForceLogout:
		var l LogoutData
		if err := json.Unmarshal(msg.Data, &l); err != nil {
			l.Reason = "server requested logout"
		}
		m.events.ForceLogout(l.Reason)

	case EventTypePing, EventTypePong:
		// Keepalive noise from the envelope layer; control-frame
		// ping/pong is handled by the websocket library.

	default:
		m.logger.Debug("ignoring channel event", zap.String("type", string(msg.Type)))
	}
}

func stopped(stop chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
