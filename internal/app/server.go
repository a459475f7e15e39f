// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"devsync-agent/internal/api"
	"devsync-agent/internal/channel"
	"devsync-agent/internal/config"
	"devsync-agent/internal/db"
	sessiondomain "devsync-agent/internal/domain/session"
	githubHandler "devsync-agent/internal/handlers/github"
	notifyH "devsync-agent/internal/handlers/notification"
	sessionHandler "devsync-agent/internal/handlers/session"
	"devsync-agent/internal/middleware"
	"devsync-agent/internal/notification"
	"devsync-agent/internal/oauth"
	"devsync-agent/internal/session"
	"devsync-agent/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg     config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	channel *channel.Manager
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.Default()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	// ----- Logger -----
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	s.logger = logger

	// ----- State store -----
	st, err := s.buildStore()
	if err != nil {
		return fmt.Errorf("failed to initialize state store: %w", err)
	}

	// ----- Backend API client -----
	client := api.NewClient(s.cfg.APIBaseURL, 30*time.Second, logger)

	// ----- Session manager -----
	sessions := session.NewManager(client, st, s.cfg.RefreshAhead, logger)
	sessions.Restore()

	// ----- Account link coordinator -----
	coordinator := oauth.NewCoordinator(client, sessions, st, s.cfg.LinkRequestTTL, logger)

	// ----- Notification feed -----
	feed := notification.NewStore(client, sessions, notification.Config{
		DebounceWindow:  s.cfg.DebounceWindow,
		DefaultCoolDown: s.cfg.DefaultCoolDown,
		ProbeDelay:      s.cfg.ProbeDelay,
	}, logger)

	// ----- Real-time channel -----
	bridge := newEventBridge(feed, sessions, logger)
	ch := channel.NewManager(channel.Config{
		URL:                  s.cfg.WSURL,
		MaxReconnectAttempts: s.cfg.MaxReconnectAttempts,
		ReconnectBaseDelay:   s.cfg.ReconnectBaseDelay,
		ReconnectMaxDelay:    s.cfg.ReconnectMaxDelay,
		ProbeDelay:           s.cfg.ChannelProbeDelay,
	}, bridge, logger)
	s.channel = ch

	// Session lifecycle drives the dependents: a session brings the
	// channel up and syncs link status and feed, its destruction tears
	// everything down.
	var lastUserID string
	sessions.Subscribe(func(sess *sessiondomain.Session) {
		if sess == nil {
			lastUserID = ""
			ch.Stop()
			feed.Reset()
			return
		}

		ch.Start(sess.AuthToken)
		if sess.UserID == lastUserID {
			return
		}
		lastUserID = sess.UserID

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := coordinator.SyncStatus(ctx); err != nil {
				logger.Warn("failed to sync provider link status", zap.Error(err))
			}
			if err := feed.Refresh(ctx, true); err != nil {
				logger.Warn("initial feed fetch failed", zap.Error(err))
			}
		}()
	})

	// ----- Handlers -----
	sessionHandlerInst := sessionHandler.NewSessionHandler(sessions, logger)
	githubHandlerInst := githubHandler.NewGitHubHandler(coordinator, logger)
	notifHandlerInst := notifyH.NewNotificationHandler(feed, ch)

	// ----- Middlewares -----
	sessionMiddleware := middleware.NewSessionMiddleware(sessions)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		SessionHandler:    sessionHandlerInst,
		GitHubHandler:     githubHandlerInst,
		NotifHandler:      notifHandlerInst,
		SessionMiddleware: sessionMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("🚀 Agent running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}

// Shutdown tears down the real-time channel.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.channel != nil {
		s.channel.Stop()
	}
	if s.logger != nil {
		s.logger.Info("agent stopped")
	}
	return nil
}

// buildStore selects the durable state backend.
func (s *Server) buildStore() (store.Store, error) {
	switch s.cfg.StoreBackend {
	case "redis":
		redisClient, err := db.NewRedisClient(db.RedisConfig{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPass,
			DB:       s.cfg.RedisDB,
			PoolSize: 10,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Println("[REDIS] ✅ Connected successfully")
		return store.NewRedisStore(redisClient, s.cfg.LinkRequestTTL), nil

	default:
		return store.NewFileStore(s.cfg.StateDir)
	}
}
