// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

type AppConfig struct {
	// Server
	HTTPAddr string

	// Backend
	APIBaseURL string
	WSURL      string

	// State persistence: "file" or "redis"
	StoreBackend string
	StateDir     string
	RedisAddr    string
	RedisPass    string
	RedisDB      int

	// Session
	RefreshAhead time.Duration

	// Account linking
	LinkRequestTTL time.Duration

	// Notifications
	DebounceWindow  time.Duration
	DefaultCoolDown time.Duration
	ProbeDelay      time.Duration

	// Real-time channel
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	ChannelProbeDelay    time.Duration
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		HTTPAddr: getEnv("HTTP_ADDR", ":7070"),

		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8000/api/v1"),
		WSURL:      getEnv("WS_URL", "ws://localhost:8000/ws"),

		StoreBackend: getEnv("STORE_BACKEND", "file"),
		StateDir:     getEnv("STATE_DIR", defaultStateDir()),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:    getEnv("REDIS_PASS", ""),
		RedisDB:      getEnvInt("REDIS_DB", 0),

		RefreshAhead: getEnvDuration("REFRESH_AHEAD", 60*time.Second),

		LinkRequestTTL: getEnvDuration("LINK_REQUEST_TTL", 10*time.Minute),

		DebounceWindow:  getEnvDuration("NOTIFY_DEBOUNCE_WINDOW", 10*time.Second),
		DefaultCoolDown: getEnvDuration("NOTIFY_COOLDOWN", 30*time.Second),
		ProbeDelay:      getEnvDuration("NOTIFY_PROBE_DELAY", 2*time.Minute),

		MaxReconnectAttempts: getEnvInt("WS_MAX_RECONNECT_ATTEMPTS", 5),
		ReconnectBaseDelay:   getEnvDuration("WS_RECONNECT_BASE_DELAY", 1*time.Second),
		ReconnectMaxDelay:    getEnvDuration("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		ChannelProbeDelay:    getEnvDuration("WS_PROBE_DELAY", 2*time.Minute),
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".devsync"
	}
	return home + "/.devsync"
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
