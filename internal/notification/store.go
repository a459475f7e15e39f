// internal/notification/store.go
package notification

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	notifdomain "devsync-agent/internal/domain/notification"
	sessiondomain "devsync-agent/internal/domain/session"
	xerrors "devsync-agent/internal/pkg/errors"

	"go.uber.org/zap"
)

// NotificationAPI is the slice of the backend client the store needs.
type NotificationAPI interface {
	Notifications(ctx context.Context, token string) ([]notifdomain.Notification, error)
	MarkRead(ctx context.Context, token string, id int64) error
	MarkAllRead(ctx context.Context, token string) error
}

// Sessions supplies tokens and the transparent-recovery hook for
// authorization failures.
type Sessions interface {
	FreshToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (*sessiondomain.Session, error)
}

type Config struct {
	DebounceWindow  time.Duration
	DefaultCoolDown time.Duration
	ProbeDelay      time.Duration
}

// Store holds the ordered notification feed and coordinates fetches:
// trailing debounce, one in-flight request, rate-limit cool-down, and
// a server-down health probe. Rate-limit and transport failures are
// absorbed into status flags, never surfaced as hard errors.
type Store struct {
	api      NotificationAPI
	sessions Sessions
	cfg      Config
	logger   *zap.Logger

	mu        sync.Mutex
	items     []notifdomain.Notification
	unread    int
	lastFetch time.Time
	lastErr   error

	inflight      *fetchFlight
	pending       bool
	debounceTimer *time.Timer

	coolDown   bool
	serverDown bool
	retryTimer *time.Timer
}

// fetchFlight is the single in-flight fetch; callers arriving while it
// is outstanding coalesce into the same outcome.
type fetchFlight struct {
	done chan struct{}
	err  error
}

func NewStore(api NotificationAPI, sessions Sessions, cfg Config, logger *zap.Logger) *Store {
	return &Store{
		api:      api,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
}

// Refresh fetches the feed. A non-forced call inside the debounce
// window is deferred to fire exactly once after the window elapses; a
// forced call bypasses the window and resets it. During cool-down or
// server-down only forced calls get through.
func (s *Store) Refresh(ctx context.Context, force bool) error {
	if !force {
		s.mu.Lock()
		if s.coolDown || s.serverDown {
			s.mu.Unlock()
			return nil
		}
		if elapsed := time.Since(s.lastFetch); elapsed < s.cfg.DebounceWindow {
			if !s.pending {
				s.pending = true
				s.debounceTimer = time.AfterFunc(s.cfg.DebounceWindow-elapsed, s.firePending)
			}
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
	}

	return s.fetch(ctx, force)
}

// firePending is the trailing edge of the debounce window.
func (s *Store) firePending() {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.fetch(ctx, false); err != nil {
		s.logger.Debug("deferred refresh failed", zap.Error(err))
	}
}

func (s *Store) fetch(ctx context.Context, force bool) error {
	s.mu.Lock()
	if !force && (s.coolDown || s.serverDown) {
		s.mu.Unlock()
		return nil
	}
	if s.inflight != nil {
		flight := s.inflight
		s.mu.Unlock()
		select {
		case <-flight.done:
			return flight.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	flight := &fetchFlight{done: make(chan struct{})}
	s.inflight = flight
	if force {
		// Forced calls reset the debounce window immediately and
		// absorb any trailing fetch still scheduled inside it.
		s.lastFetch = time.Now()
		if s.debounceTimer != nil {
			s.debounceTimer.Stop()
			s.debounceTimer = nil
		}
		s.pending = false
	}
	s.mu.Unlock()

	items, err := s.doFetch(ctx)

	s.mu.Lock()
	s.inflight = nil
	switch {
	case err == nil:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		})
		s.items = items
		s.unread = countUnread(items)
		s.lastFetch = time.Now()
		s.coolDown = false
		s.serverDown = false
		s.lastErr = nil

	case errors.Is(err, xerrors.ErrRateLimited):
		s.coolDown = true
		s.lastErr = err
		s.scheduleRetryLocked(xerrors.RetryAfter(err, s.cfg.DefaultCoolDown), "rate limit cool-down")

	case errors.Is(err, xerrors.ErrServerUnavailable):
		s.serverDown = true
		s.lastErr = err
		s.scheduleRetryLocked(s.cfg.ProbeDelay, "server-down probe")

	default:
		s.lastErr = err
	}
	flight.err = err
	s.mu.Unlock()
	close(flight.done)

	return err
}

// doFetch performs one authorized list call, transparently retrying
// once through a session refresh on an authorization failure.
func (s *Store) doFetch(ctx context.Context) ([]notifdomain.Notification, error) {
	token, err := s.sessions.FreshToken(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.api.Notifications(ctx, token)
	if err == nil || !errors.Is(err, xerrors.ErrSessionExpired) {
		return items, err
	}

	if _, rerr := s.sessions.Refresh(ctx); rerr != nil {
		return nil, rerr
	}
	token, err = s.sessions.FreshToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.api.Notifications(ctx, token)
}

// scheduleRetryLocked arms the single automatic retry. The retry is a
// forced refresh: success clears the flags, another failure re-arms.
func (s *Store) scheduleRetryLocked(delay time.Duration, reason string) {
	if s.retryTimer != nil {
		return
	}
	s.logger.Warn("notification fetch suppressed",
		zap.String("reason", reason),
		zap.Duration("retry_in", delay),
	)
	s.retryTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.retryTimer = nil
		s.coolDown = false
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.fetch(ctx, true); err != nil {
			s.logger.Debug("automatic retry failed", zap.Error(err))
		}
	})
}

// ApplyPush appends a channel push event, deduplicating by id. The
// feed stays most-recent-first.
func (s *Store) ApplyPush(n notifdomain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if existing.ID == n.ID {
			return
		}
	}
	s.items = append([]notifdomain.Notification{n}, s.items...)
	if !n.IsRead {
		s.unread++
	}
}

// SetUnreadCount reconciles the counter from a server-side count push.
func (s *Store) SetUnreadCount(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if count >= 0 {
		s.unread = count
	}
}

// MarkRead applies the read flag optimistically, then reconciles via a
// forced refresh if the remote call fails.
func (s *Store) MarkRead(ctx context.Context, id int64) error {
	s.mu.Lock()
	changed := false
	for i := range s.items {
		if s.items[i].ID == id && !s.items[i].IsRead {
			s.items[i].IsRead = true
			changed = true
			break
		}
	}
	if changed && s.unread > 0 {
		s.unread--
	}
	s.mu.Unlock()

	token, err := s.sessions.FreshToken(ctx)
	if err == nil {
		err = s.api.MarkRead(ctx, token, id)
	}
	if err != nil {
		s.logger.Warn("mark-read failed, reconciling", zap.Int64("id", id), zap.Error(err))
		s.fetch(ctx, true)
		return err
	}
	return nil
}

// MarkAllRead flags the whole feed read, optimistically.
func (s *Store) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	for i := range s.items {
		s.items[i].IsRead = true
	}
	s.unread = 0
	s.mu.Unlock()

	token, err := s.sessions.FreshToken(ctx)
	if err == nil {
		err = s.api.MarkAllRead(ctx, token)
	}
	if err != nil {
		s.logger.Warn("mark-all-read failed, reconciling", zap.Error(err))
		s.fetch(ctx, true)
		return err
	}
	return nil
}

// Snapshot returns the feed view exposed to UI components.
func (s *Store) Snapshot() ([]notifdomain.Notification, int, notifdomain.FeedStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]notifdomain.Notification, len(s.items))
	copy(items, s.items)

	status := notifdomain.FeedStatus{
		CoolDown:   s.coolDown,
		ServerDown: s.serverDown,
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return items, s.unread, status
}

func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Reset clears the feed and cancels pending timers; used on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.unread = 0
	s.lastFetch = time.Time{}
	s.lastErr = nil
	s.coolDown = false
	s.serverDown = false
	s.pending = false
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

func countUnread(items []notifdomain.Notification) int {
	count := 0
	for _, n := range items {
		if !n.IsRead {
			count++
		}
	}
	return count
}
